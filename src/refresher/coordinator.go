package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/tradesignals/broker-gateway/src/models"
)

// Coordinator proactively renews stored OAuth tokens before they expire,
// independent of inbound trading activity. It is the only persistent
// background task in the gateway and shuts down cleanly: cancelling the
// context stops the loop after the in-flight cycle finishes.
type Coordinator struct {
	wg         *sync.WaitGroup
	store      CredentialStore
	refreshers map[string]TokenRefresher
	interval   time.Duration
	lookahead  time.Duration
	metrics    *Metrics

	sf singleflight.Group

	// retryGate tracks transient failures per credential so the next attempt
	// waits out an exponential backoff instead of hammering a flaky token
	// endpoint every cycle.
	mu        sync.Mutex
	retryGate map[string]*retryState
}

type retryState struct {
	policy      *backoff.ExponentialBackOff
	nextAttempt time.Time
}

func NewCoordinator(wg *sync.WaitGroup, store CredentialStore, refreshers map[string]TokenRefresher, interval, lookahead time.Duration) *Coordinator {
	return &Coordinator{
		wg:         wg,
		store:      store,
		refreshers: refreshers,
		interval:   interval,
		lookahead:  lookahead,
		metrics:    NewMetrics(),
		retryGate:  make(map[string]*retryState),
	}
}

func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// Start runs the scan loop until the context is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)

	timer := time.NewTicker(c.interval)

	go func() {
		defer c.wg.Done()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("stopping token refresh coordinator")
				return
			case <-timer.C:
				report := c.RunCycle(ctx)
				log.WithFields(log.Fields{
					"checked":   report.Checked,
					"refreshed": report.Refreshed,
					"succeeded": report.Succeeded,
					"failed":    report.Failed,
					"duration":  report.Duration,
				}).Info("token refresh cycle complete")
			}
		}
	}()
}

// RunCycle scans all stored OAuth credentials once and refreshes those whose
// expiry falls inside the lookahead window.
func (c *Coordinator) RunCycle(ctx context.Context) *CycleReport {
	started := time.Now()
	report := &CycleReport{
		StartedAt:      started,
		FailedByBroker: make(map[string]int),
	}

	creds, err := c.store.ListOAuthCredentials(ctx)
	if err != nil {
		log.Errorf("Coordinator.RunCycle: failed to list credentials: %v", err)
		report.Duration = time.Since(started)
		return report
	}

	now := time.Now()

	for _, cred := range creds {
		if ctx.Err() != nil {
			break
		}

		report.Checked++

		if !cred.ExpiresWithin(now, c.lookahead) {
			continue
		}

		if !c.attemptAllowed(cred.Key(), now) {
			continue
		}

		report.Refreshed++

		if err := c.RefreshOne(ctx, cred); err != nil {
			report.Failed++
			report.FailedByBroker[cred.BrokerKey]++

			if models.IsTransient(err) {
				c.deferRetry(cred.Key(), now)
				log.WithFields(log.Fields{"credential": cred.Key()}).Warnf("transient refresh failure, retrying next cycle: %v", err)
			} else {
				// permanent: reported, not retried this cycle; the user must
				// re-authorize
				log.WithFields(log.Fields{"credential": cred.Key()}).Errorf("permanent refresh failure: %v", err)
			}

			continue
		}

		report.Succeeded++
		c.clearRetry(cred.Key())
	}

	report.Duration = time.Since(started)

	for brokerKey := range c.refreshers {
		if c.metrics.BelowSLA(brokerKey) {
			log.WithFields(log.Fields{"broker": brokerKey, "rate": c.metrics.SuccessRate(brokerKey)}).Warn("token refresh success rate below SLA target")
		}
	}

	return report
}

// RefreshOne refreshes a single credential through the owning adapter's
// primitive and writes the result back. Concurrent calls for the same
// credential collapse into one underlying refresh via singleflight.
func (c *Coordinator) RefreshOne(ctx context.Context, cred *models.BrokerCredential) error {
	_, err, _ := c.sf.Do(cred.Key(), func() (interface{}, error) {
		refresher, ok := c.refreshers[cred.BrokerKey]
		if !ok {
			return nil, models.NewConfigurationError(cred.BrokerKey, "no token refresher registered for broker")
		}

		started := time.Now()

		updated, err := refresher.RefreshCredential(ctx, cred)

		c.metrics.Record(cred.BrokerKey, err == nil)

		if err != nil {
			return nil, err
		}

		if err := c.store.SaveCredential(ctx, updated); err != nil {
			return nil, fmt.Errorf("Coordinator.RefreshOne: failed to save refreshed credential: %w", err)
		}

		log.WithFields(log.Fields{
			"credential": cred.Key(),
			"duration":   time.Since(started),
			"expiresAt":  updated.OAuth.ExpiresAt,
		}).Debug("credential refreshed")

		return updated, nil
	})

	return err
}

func (c *Coordinator) attemptAllowed(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.retryGate[key]
	if !ok {
		return true
	}

	return !now.Before(state.nextAttempt)
}

func (c *Coordinator) deferRetry(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.retryGate[key]
	if !ok {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = c.interval
		policy.MaxInterval = 30 * time.Minute
		policy.MaxElapsedTime = 0
		state = &retryState{policy: policy}
		c.retryGate[key] = state
	}

	state.nextAttempt = now.Add(state.policy.NextBackOff())
}

func (c *Coordinator) clearRetry(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.retryGate, key)
}
