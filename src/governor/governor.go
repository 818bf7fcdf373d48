package governor

import (
	"fmt"
	"sync"
	"time"

	"github.com/tradesignals/broker-gateway/src/models"
)

// Governor performs sliding-window admission control in front of every
// outbound vendor call, keyed by (userID, brokerKey). Windows are fully
// independent: exhausting one broker's budget never blocks another broker or
// another user.
type Governor struct {
	mu      sync.Mutex
	config  *Config
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	timestamps []time.Time
}

func New(config *Config) *Governor {
	if config == nil {
		config = DefaultConfig()
	}

	return &Governor{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Admit records one call against the (userID, brokerKey) window, or rejects
// with a RATE_LIMITED error carrying RetryAfter. Prune, check and record
// happen as one indivisible step under the lock so two concurrent calls can
// never both claim the last slot.
func (g *Governor) Admit(userID, brokerKey string) error {
	limit := g.config.limitFor(brokerKey)
	key := bucketKey(userID, brokerKey)

	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.buckets[key]
	if !ok {
		b = &bucket{}
		g.buckets[key] = b
	}

	now := g.now()
	b.prune(now, limit.Window)

	if len(b.timestamps) >= limit.MaxCalls {
		retryAfter := b.timestamps[0].Add(limit.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}

		return models.NewRateLimitedError(brokerKey, fmt.Sprintf("rate limit of %d calls per %s reached for user %s", limit.MaxCalls, limit.Window, userID), retryAfter)
	}

	b.timestamps = append(b.timestamps, now)

	return nil
}

// Usage reports how much of the window is consumed, for operator dashboards.
func (g *Governor) Usage(userID, brokerKey string) (used, max int) {
	limit := g.config.limitFor(brokerKey)

	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.buckets[bucketKey(userID, brokerKey)]
	if !ok {
		return 0, limit.MaxCalls
	}

	b.prune(g.now(), limit.Window)

	return len(b.timestamps), limit.MaxCalls
}

// Reset clears a single window, e.g. when a user disconnects a broker.
func (g *Governor) Reset(userID, brokerKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.buckets, bucketKey(userID, brokerKey))
}

func (b *bucket) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)

	keep := 0
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			break
		}
		keep++
	}

	if keep > 0 {
		b.timestamps = append(b.timestamps[:0], b.timestamps[keep:]...)
	}
}

func bucketKey(userID, brokerKey string) string {
	return userID + ":" + brokerKey
}
