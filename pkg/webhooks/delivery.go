package webhooks

import (
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/eams/pkg/audit"
)

// DeliveryStatus represents the status of a webhook delivery
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// DeliveryLog tracks one event sent to one subscription across attempts
type DeliveryLog struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	EventID        string          `json:"event_id"`
	EventType      audit.EventType `json:"event_type"`
	URL            string          `json:"url"`
	Status         DeliveryStatus  `json:"status"`
	StatusCode     int             `json:"status_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Attempts       int             `json:"attempts"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Duration       time.Duration   `json:"duration,omitempty"`
}

// delivery is the mutable record behind a DeliveryLog
type delivery struct {
	mu      sync.Mutex
	log     DeliveryLog
	payload []byte
}

func (d *delivery) snapshot() DeliveryLog {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.log
}

// dueAt reports whether the delivery is waiting for a retry at or before now
func (d *delivery) dueAt(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.log.Status == DeliveryStatusRetrying && d.log.NextRetryAt != nil && !d.log.NextRetryAt.After(now)
}

// DeliveryLogStore keeps a bounded set of delivery logs in memory
type DeliveryLogStore struct {
	mu      sync.RWMutex
	logs    map[string]*delivery
	maxLogs int
}

// NewDeliveryLogStore creates a new delivery log store
func NewDeliveryLogStore(maxLogs int) *DeliveryLogStore {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &DeliveryLogStore{
		logs:    make(map[string]*delivery),
		maxLogs: maxLogs,
	}
}

// add stores a delivery, evicting the oldest entries when full
func (s *DeliveryLogStore) add(d *delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.logs) >= s.maxLogs {
		s.evictOldest()
	}
	s.logs[d.log.ID] = d
}

// Get returns a copy of a delivery log by ID
func (s *DeliveryLogStore) Get(id string) (DeliveryLog, bool) {
	s.mu.RLock()
	log, ok := s.logs[id]
	s.mu.RUnlock()
	if !ok {
		return DeliveryLog{}, false
	}
	return log.snapshot(), true
}

// BySubscription returns copies of a subscription's delivery logs, newest first
func (s *DeliveryLogStore) BySubscription(subscriptionID string, limit int) []DeliveryLog {
	s.mu.RLock()
	var result []DeliveryLog
	for _, log := range s.logs {
		if snap := log.snapshot(); snap.SubscriptionID == subscriptionID {
			result = append(result, snap)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// pendingRetries returns the deliveries due for another attempt
func (s *DeliveryLogStore) pendingRetries(now time.Time) []*delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery
	for _, log := range s.logs {
		if log.dueAt(now) {
			result = append(result, log)
		}
	}
	return result
}

// evictOldest removes the oldest 10% of logs. Callers hold the write lock.
func (s *DeliveryLogStore) evictOldest() {
	logs := make([]*delivery, 0, len(s.logs))
	for _, d := range s.logs {
		logs = append(logs, d)
	}
	// CreatedAt never changes after add
	sort.Slice(logs, func(i, j int) bool { return logs[i].log.CreatedAt.Before(logs[j].log.CreatedAt) })

	evictCount := len(logs) / 10
	if evictCount == 0 {
		evictCount = 1
	}
	for i := 0; i < evictCount && i < len(logs); i++ {
		delete(s.logs, logs[i].log.ID)
	}
}

// Stats summarizes a subscription's deliveries
func (s *DeliveryLogStore) Stats(subscriptionID string) DeliveryStats {
	stats := DeliveryStats{SubscriptionID: subscriptionID}
	var total time.Duration
	for _, log := range s.BySubscription(subscriptionID, 0) {
		stats.Total++
		switch log.Status {
		case DeliveryStatusSuccess:
			stats.Successful++
			total += log.Duration
		case DeliveryStatusFailed:
			stats.Failed++
		case DeliveryStatusRetrying:
			stats.Retrying++
		}
	}
	if stats.Successful > 0 {
		stats.AverageDuration = total / time.Duration(stats.Successful)
	}
	return stats
}

// DeliveryStats summarizes deliveries for one subscription
type DeliveryStats struct {
	SubscriptionID  string        `json:"subscription_id"`
	Total           int           `json:"total"`
	Successful      int           `json:"successful"`
	Failed          int           `json:"failed"`
	Retrying        int           `json:"retrying"`
	AverageDuration time.Duration `json:"average_duration"`
}
