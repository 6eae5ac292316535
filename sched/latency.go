// Package sched decides per frame whether to invoke detection and on
// which backend, balancing latency budget, scene volatility, and backend
// health.
package sched

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyWindow is a rolling window of recent detection latencies for one
// backend
type LatencyWindow struct {
	// samples is the ring storage
	samples []time.Duration
	// next is the ring write index
	next int
	// full is set once the ring has wrapped
	full bool
}

// NewLatencyWindow returns a window holding up to size samples
func NewLatencyWindow(size int) *LatencyWindow {

	if size < 1 {
		size = 1
	}

	return &LatencyWindow{
		samples: make([]time.Duration, size),
	}
}

// Add records a latency sample, evicting the oldest once full
func (w *LatencyWindow) Add(d time.Duration) {

	w.samples[w.next] = d
	w.next++

	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Len returns the number of samples held
func (w *LatencyWindow) Len() int {

	if w.full {
		return len(w.samples)
	}

	return w.next
}

// P95 returns the 95th percentile latency over the window, zero when empty
func (w *LatencyWindow) P95() time.Duration {

	n := w.Len()

	if n == 0 {
		return 0
	}

	values := make([]float64, n)

	for i := 0; i < n; i++ {
		values[i] = float64(w.samples[i])
	}

	sort.Float64s(values)

	return time.Duration(stat.Quantile(0.95, stat.Empirical, values, nil))
}
