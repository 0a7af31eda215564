package webhooks

import (
	"context"
	"math"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff retry logic
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling unset fields from DefaultRetryConfig
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry determines if a delivery should be retried
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	return err != nil && attempts < p.config.MaxAttempts
}

// NextRetryDelay calculates the delay before the next retry:
// initialDelay * multiplier^(attempts-1), capped at MaxDelay.
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// NextRetryTime calculates when the next retry should occur
func (p *RetryPolicy) NextRetryTime(now time.Time, attempts int) time.Time {
	return now.Add(p.NextRetryDelay(attempts))
}

// ProcessRetries re-sends every delivery whose retry time has passed. It is run
// periodically by the jobs scheduler.
func (n *Notifier) ProcessRetries(ctx context.Context) error {
	due := n.deliveries.pendingRetries(n.now())
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return err
		}

		sub, ok := n.subs[d.log.SubscriptionID]
		if !ok || !sub.Active {
			d.mu.Lock()
			d.log.Status = DeliveryStatusFailed
			d.log.ErrorMessage = "subscription is no longer active"
			d.log.NextRetryAt = nil
			completed := n.now()
			d.log.CompletedAt = &completed
			d.mu.Unlock()
			n.metrics.RecordWebhookDelivery(string(DeliveryStatusFailed))
			continue
		}
		n.attempt(ctx, sub, d)
	}
	if len(due) > 0 {
		n.logger.WithField("deliveries", len(due)).Debug("processed webhook retries")
	}
	return nil
}
