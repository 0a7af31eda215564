package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/eams/pkg/async"
	"github.com/platinummonkey/eams/pkg/audit"
	"github.com/platinummonkey/eams/pkg/observability"
)

// Header names sent with every delivery
const (
	HeaderEvent     = "X-EAMS-Event"
	HeaderEventID   = "X-EAMS-Event-ID"
	HeaderSignature = "X-EAMS-Signature"
	HeaderDelivery  = "X-EAMS-Delivery"
)

// DefaultEvents are the event types a subscription receives when it names none
var DefaultEvents = []audit.EventType{
	audit.EventTypeAuthzPermissionGrant,
	audit.EventTypeAuthzPermissionRevoke,
	audit.EventTypeAuthzRoleChange,
}

// Event is the delivery envelope
type Event struct {
	ID        string            `json:"id"`
	Type      audit.EventType   `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      *audit.AuditEvent `json:"data"`
}

// Subscription is a configured webhook endpoint
type Subscription struct {
	ID     string            `json:"id"`
	URL    string            `json:"url"`
	Events []audit.EventType `json:"events"`
	Secret string            `json:"-"`
	Active bool              `json:"active"`
}

// wants reports whether the subscription receives eventType
func (s *Subscription) wants(eventType audit.EventType) bool {
	for _, t := range s.Events {
		if t == eventType {
			return true
		}
	}
	return false
}

// Options configures a Notifier
type Options struct {
	Client  *http.Client
	Retry   RetryConfig
	Metrics *observability.Metrics
	Logger  *observability.Logger
	// RequestsPerMinute caps deliveries per subscription; zero means 100
	RequestsPerMinute int
	// MaxLogs bounds the delivery log; zero means 1000
	MaxLogs int
}

// Notifier delivers audit events to subscriptions. It implements audit.Logger.
type Notifier struct {
	subs        map[string]*Subscription
	client      *http.Client
	deliveries  *DeliveryLogStore
	retryPolicy *RetryPolicy
	rateLimiter *RateLimiter
	metrics     *observability.Metrics
	logger      *observability.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// NewNotifier creates a notifier for subs. Subscriptions without an ID get one and
// subscriptions without events get DefaultEvents.
func NewNotifier(subs []Subscription, opts Options) (*Notifier, error) {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 100
	}

	n := &Notifier{
		subs:        make(map[string]*Subscription, len(subs)),
		client:      opts.Client,
		deliveries:  NewDeliveryLogStore(opts.MaxLogs),
		retryPolicy: NewRetryPolicy(opts.Retry),
		rateLimiter: NewRateLimiter(opts.RequestsPerMinute, time.Minute),
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         time.Now,
	}
	for i := range subs {
		sub := subs[i]
		if sub.URL == "" {
			return nil, fmt.Errorf("webhook URL is required")
		}
		if sub.ID == "" {
			sub.ID = uuid.NewString()
		}
		if len(sub.Events) == 0 {
			sub.Events = append([]audit.EventType(nil), DefaultEvents...)
		}
		sub.Active = true
		n.subs[sub.ID] = &sub
	}
	return n, nil
}

// Subscriptions returns the configured subscriptions
func (n *Notifier) Subscriptions() []Subscription {
	out := make([]Subscription, 0, len(n.subs))
	for _, s := range n.subs {
		out = append(out, *s)
	}
	return out
}

// Deliveries exposes the delivery log
func (n *Notifier) Deliveries() *DeliveryLogStore {
	return n.deliveries
}

// Log queues event for every interested subscription. Deliveries run in the
// background and outlive the caller's context.
func (n *Notifier) Log(ctx context.Context, event *audit.AuditEvent) error {
	var env *Event
	var payload []byte

	for _, sub := range n.subs {
		if !sub.Active || !sub.wants(event.EventType) {
			continue
		}
		if payload == nil {
			env = &Event{ID: uuid.NewString(), Type: event.EventType, Timestamp: n.now().UTC(), Data: event}
			var err error
			if payload, err = json.Marshal(env); err != nil {
				return fmt.Errorf("failed to marshal webhook event: %w", err)
			}
		}

		d := &delivery{
			log: DeliveryLog{
				ID:             uuid.NewString(),
				SubscriptionID: sub.ID,
				EventID:        env.ID,
				EventType:      env.Type,
				URL:            sub.URL,
				Status:         DeliveryStatusPending,
				CreatedAt:      n.now(),
			},
			payload: payload,
		}
		n.deliveries.add(d)

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			_ = async.Run(context.WithoutCancel(ctx), n.logger, n.client.Timeout, "webhook delivery", func(ctx context.Context) error {
				n.attempt(ctx, sub, d)
				return nil
			})
		}()
	}
	return nil
}

// Close waits for in-flight deliveries
func (n *Notifier) Close() error {
	n.wg.Wait()
	return nil
}

// attempt sends one delivery and records the outcome
func (n *Notifier) attempt(ctx context.Context, sub *Subscription, d *delivery) {
	start := n.now()
	statusCode, err := n.send(ctx, sub, d)

	d.mu.Lock()
	log := &d.log
	log.Attempts++
	log.StatusCode = statusCode
	log.Duration = n.now().Sub(start)
	switch {
	case err == nil:
		log.Status = DeliveryStatusSuccess
		log.ErrorMessage = ""
		log.NextRetryAt = nil
		completed := n.now()
		log.CompletedAt = &completed
	case n.retryPolicy.ShouldRetry(log.Attempts, err):
		log.Status = DeliveryStatusRetrying
		log.ErrorMessage = err.Error()
		next := n.retryPolicy.NextRetryTime(n.now(), log.Attempts)
		log.NextRetryAt = &next
	default:
		log.Status = DeliveryStatusFailed
		log.ErrorMessage = err.Error()
		log.NextRetryAt = nil
		completed := n.now()
		log.CompletedAt = &completed
	}
	status, attempts := log.Status, log.Attempts
	d.mu.Unlock()

	n.metrics.RecordWebhookDelivery(string(status))
	if err != nil {
		n.logger.WithError(err).WithFields(map[string]interface{}{
			"subscription_id": sub.ID,
			"event_type":      string(d.log.EventType),
			"attempts":        attempts,
			"status":          string(status),
		}).Warn("webhook delivery failed")
	}
}

// send posts the delivery payload to the subscription URL
func (n *Notifier) send(ctx context.Context, sub *Subscription, d *delivery) (int, error) {
	if !n.rateLimiter.Allow(sub.ID) {
		return 0, fmt.Errorf("rate limit exceeded for webhook %s", sub.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(d.payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(d.log.EventType))
	req.Header.Set(HeaderEventID, d.log.EventID)
	req.Header.Set(HeaderDelivery, d.log.ID)
	if sub.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(d.payload, sub.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// VerifySignature verifies the webhook signature
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// Sign returns the HMAC-SHA256 signature header value for payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
