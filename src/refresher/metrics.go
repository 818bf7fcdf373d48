package refresher

import (
	"sync"
	"time"
)

// CycleReport aggregates one scan cycle for SLA reporting.
type CycleReport struct {
	StartedAt      time.Time
	Duration       time.Duration
	Checked        int
	Refreshed      int
	Succeeded      int
	Failed         int
	FailedByBroker map[string]int
}

// slaTarget is the minimum acceptable refresh success rate over the rolling
// window.
const slaTarget = 0.90

// rollingWindowSize bounds how many recent refresh attempts feed the SLA
// calculation per broker.
const rollingWindowSize = 200

// Metrics tracks refresh outcomes per broker over a bounded rolling window.
type Metrics struct {
	mu       sync.Mutex
	outcomes map[string][]bool
}

func NewMetrics() *Metrics {
	return &Metrics{
		outcomes: make(map[string][]bool),
	}
}

func (m *Metrics) Record(brokerKey string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := append(m.outcomes[brokerKey], success)
	if len(window) > rollingWindowSize {
		window = window[len(window)-rollingWindowSize:]
	}

	m.outcomes[brokerKey] = window
}

// SuccessRate returns the rolling success rate for a broker, and 1.0 when no
// attempts were recorded yet.
func (m *Metrics) SuccessRate(brokerKey string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.outcomes[brokerKey]
	if len(window) == 0 {
		return 1.0
	}

	succeeded := 0
	for _, ok := range window {
		if ok {
			succeeded++
		}
	}

	return float64(succeeded) / float64(len(window))
}

// BelowSLA reports whether a broker's rolling success rate dropped under the
// target.
func (m *Metrics) BelowSLA(brokerKey string) bool {
	return m.SuccessRate(brokerKey) < slaTarget
}
