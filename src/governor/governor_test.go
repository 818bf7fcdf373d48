package governor

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesignals/broker-gateway/src/models"
)

func newTestGovernor(maxCalls int, window time.Duration) (*Governor, *time.Time) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	g := New(&Config{
		Default: Limit{MaxCalls: maxCalls, Window: window},
	})
	g.now = func() time.Time { return now }

	return g, &now
}

func Test_Governor_Admit(t *testing.T) {
	t.Run("admits up to the limit then rejects", func(t *testing.T) {
		// arrange
		g, _ := newTestGovernor(3, time.Minute)

		// act / assert
		for i := 0; i < 3; i++ {
			assert.NoError(t, g.Admit("user-1", "binance"))
		}

		err := g.Admit("user-1", "binance")

		require.Error(t, err)
		assert.Equal(t, models.ErrorKindRateLimited, models.ErrorKindOf(err))
	})

	t.Run("rejection carries retry after from the oldest call", func(t *testing.T) {
		g, now := newTestGovernor(2, time.Minute)

		require.NoError(t, g.Admit("user-1", "binance"))

		*now = now.Add(20 * time.Second)
		require.NoError(t, g.Admit("user-1", "binance"))

		*now = now.Add(10 * time.Second)
		err := g.Admit("user-1", "binance")
		require.Error(t, err)

		var brokerErr *models.BrokerError
		require.ErrorAs(t, err, &brokerErr)

		// first call was 30s ago in a 60s window
		assert.Equal(t, 30*time.Second, brokerErr.RetryAfter)
	})

	t.Run("window slides: old calls free up slots", func(t *testing.T) {
		g, now := newTestGovernor(2, time.Minute)

		require.NoError(t, g.Admit("user-1", "binance"))
		require.NoError(t, g.Admit("user-1", "binance"))
		require.Error(t, g.Admit("user-1", "binance"))

		*now = now.Add(61 * time.Second)

		assert.NoError(t, g.Admit("user-1", "binance"))
	})

	t.Run("windows are independent per user and broker", func(t *testing.T) {
		g, _ := newTestGovernor(1, time.Minute)

		require.NoError(t, g.Admit("user-1", "binance"))
		require.Error(t, g.Admit("user-1", "binance"))

		// other broker and other user are unaffected
		assert.NoError(t, g.Admit("user-1", "ameritrade"))
		assert.NoError(t, g.Admit("user-2", "binance"))
	})

	t.Run("reset clears the window", func(t *testing.T) {
		g, _ := newTestGovernor(1, time.Minute)

		require.NoError(t, g.Admit("user-1", "binance"))
		require.Error(t, g.Admit("user-1", "binance"))

		g.Reset("user-1", "binance")

		assert.NoError(t, g.Admit("user-1", "binance"))
	})
}

// Property: no more than max calls are ever admitted inside any rolling
// window, under randomized call timing.
func Test_Governor_NoOverAdmission(t *testing.T) {
	const maxCalls = 10
	window := time.Minute

	g, now := newTestGovernor(maxCalls, window)
	rng := rand.New(rand.NewSource(42))

	var admitted []time.Time

	for i := 0; i < 5000; i++ {
		*now = now.Add(time.Duration(rng.Intn(2000)) * time.Millisecond)

		if err := g.Admit("user-1", "binance"); err == nil {
			admitted = append(admitted, *now)
		}
	}

	require.NotEmpty(t, admitted)

	// slide a window over every admission and count what falls inside it
	for i, start := range admitted {
		count := 0
		for _, ts := range admitted[i:] {
			if ts.Sub(start) < window {
				count++
			} else {
				break
			}
		}

		assert.LessOrEqual(t, count, maxCalls, "over-admission in window starting at %v", start)
	}
}

// Concurrent admissions must never exceed the limit: check-and-increment is
// one indivisible step.
func Test_Governor_ConcurrentAdmission(t *testing.T) {
	g := New(&Config{Default: Limit{MaxCalls: 50, Window: time.Minute}})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Admit("user-1", "binance"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, admitted)
}

func Test_Governor_Usage(t *testing.T) {
	g, _ := newTestGovernor(5, time.Minute)

	used, max := g.Usage("user-1", "binance")
	assert.Equal(t, 0, used)
	assert.Equal(t, 5, max)

	require.NoError(t, g.Admit("user-1", "binance"))
	require.NoError(t, g.Admit("user-1", "binance"))

	used, _ = g.Usage("user-1", "binance")
	assert.Equal(t, 2, used)
}

func Test_Config_LimitFor(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 600, cfg.limitFor("binance").MaxCalls)
	assert.Equal(t, cfg.Default, cfg.limitFor("unknown-broker"))
}
