package webhooks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRetryPolicy_Defaults(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{BackoffMultiplier: 0.5})
	assert.Equal(t, DefaultRetryConfig(), p.config)

	p = NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffMultiplier: 1.5})
	assert.Equal(t, 3, p.config.MaxAttempts)
	assert.Equal(t, 1.5, p.config.BackoffMultiplier)
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{MaxAttempts: 3})
	failure := errors.New("boom")

	assert.False(t, p.ShouldRetry(1, nil))
	assert.True(t, p.ShouldRetry(1, failure))
	assert.True(t, p.ShouldRetry(2, failure))
	assert.False(t, p.ShouldRetry(3, failure))
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second})

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.NextRetryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(4*time.Second), p.NextRetryTime(now, 3))
}

func TestRateLimiter(t *testing.T) {
	clock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	// buckets are per key
	assert.True(t, rl.Allow("b"))

	// one token per 30s
	clock = clock.Add(30 * time.Second)
	assert.Equal(t, 1, rl.Remaining("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	clock = clock.Add(time.Hour)
	assert.Equal(t, 2, rl.Remaining("a"))
}

func TestDeliveryLogStore_Evicts(t *testing.T) {
	store := NewDeliveryLogStore(10)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 11; i++ {
		store.add(&delivery{log: DeliveryLog{
			ID:             string(rune('a' + i)),
			SubscriptionID: "s",
			CreatedAt:      start.Add(time.Duration(i) * time.Second),
		}})
	}

	_, ok := store.Get("a")
	assert.False(t, ok)
	logs := store.BySubscription("s", 3)
	assert.Len(t, logs, 3)
	assert.Equal(t, "k", logs[0].ID)
	assert.Len(t, store.BySubscription("s", 0), 10)
}
