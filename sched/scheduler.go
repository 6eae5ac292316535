package sched

import (
	"time"

	"github.com/sitelens/go-hazardar/detect"
)

// DegradedLevel is the reduced fidelity ladder surfaced to the overlay
// layout engine when backends stay unhealthy or over budget
type DegradedLevel int

const (
	// DegradedNone means full fidelity rendering
	DegradedNone DegradedLevel = 0
	// DegradedReduced means the overlay render cap is reduced
	DegradedReduced DegradedLevel = 1
	// DegradedMinimal means boxes only, no label text
	DegradedMinimal DegradedLevel = 2
)

// String returns a readable name for the degraded level
func (d DegradedLevel) String() string {
	switch d {
	case DegradedNone:
		return "none"
	case DegradedReduced:
		return "reduced"
	case DegradedMinimal:
		return "minimal"
	}
	return "unknown"
}

// Config holds the scheduler tuning parameters
type Config struct {
	// IntervalMin and IntervalMax clamp the target detection interval in
	// frames for this device tier
	IntervalMin int
	IntervalMax int
	// IntervalStep is the bounded adjustment applied after each detection
	// cycle
	IntervalStep int
	// LatencyBudget is the per-invocation budget, the invocation timeout
	// and the p95 threshold for backend selection
	LatencyBudget time.Duration
	// WindowSize is the number of latency samples kept per backend
	WindowSize int
	// FailureThreshold is the number of consecutive failures on the
	// active backend that triggers an automatic fallback to the other
	FailureThreshold int
	// DegradedAfter is how long both backends must keep failing before
	// the degraded signal is raised
	DegradedAfter time.Duration
	// VolatilityHigh and VolatilityLow are the scene volatility bounds
	// steering the detection interval down and up respectively
	VolatilityHigh float32
	VolatilityLow  float32
	// ConfidenceDrop is the broad mean-confidence drop per cycle that
	// also steers the interval down
	ConfidenceDrop float32
}

// DefaultConfig returns scheduler defaults for a mid tier device
func DefaultConfig() Config {
	return Config{
		IntervalMin:      6,
		IntervalMax:      30,
		IntervalStep:     2,
		LatencyBudget:    200 * time.Millisecond,
		WindowSize:       20,
		FailureThreshold: 3,
		DegradedAfter:    2 * time.Second,
		VolatilityHigh:   0.5,
		VolatilityLow:    0.1,
		ConfidenceDrop:   0.1,
	}
}

// Decision is the scheduler's per-frame output
type Decision struct {
	// RunDetection is whether to dispatch a detection cycle this frame
	RunDetection bool
	// Backend to invoke when RunDetection is set
	Backend detect.Backend
}

// Scheduler implements the adaptive detection cadence and the strict
// backend fallback chain.  It is called only from the per-frame pipeline
// goroutine
type Scheduler struct {
	cfg Config

	// interval is the current target frames between detection cycles
	interval int
	// framesSinceDetection counts frames since the last dispatch
	framesSinceDetection int

	// active is the backend currently selected by the fallback chain
	active detect.Backend
	// latency windows per backend
	latency map[detect.Backend]*LatencyWindow
	// consecutiveFailures on the active backend
	consecutiveFailures int
	// lastSuccess is when any backend last returned a healthy result
	lastSuccess time.Time
	// failingSince is set when results started failing across backends
	failingSince time.Time

	// lastMeanConfidence from the previous detection cycle
	lastMeanConfidence float32

	degraded DegradedLevel
}

// New creates a scheduler.  The accuracy-first fallback chain starts on
// the accurate backend, it falls back to the fast backend under budget or
// failure pressure
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		interval: cfg.IntervalMax,
		active:   detect.BackendAccurate,
		latency: map[detect.Backend]*LatencyWindow{
			detect.BackendFast:     NewLatencyWindow(cfg.WindowSize),
			detect.BackendAccurate: NewLatencyWindow(cfg.WindowSize),
		},
		lastMeanConfidence: 1.0,
	}
}

// Decide is called once per frame.  It reports whether to dispatch
// detection this frame and which backend to use.  Busy indicates the
// detection worker still has an invocation in flight, dispatch is skipped
// rather than queueing stale work behind it
func (s *Scheduler) Decide(busy bool) Decision {

	s.framesSinceDetection++

	if busy || s.framesSinceDetection < s.interval {
		return Decision{}
	}

	s.framesSinceDetection = 0

	return Decision{
		RunDetection: true,
		Backend:      s.selectBackend(),
	}
}

// selectBackend applies the strict fallback chain: use the accurate
// backend while its rolling p95 latency is within budget, otherwise fall
// back to the fast backend.  Failure fallback is handled in RecordResult
func (s *Scheduler) selectBackend() detect.Backend {

	if s.active == detect.BackendAccurate {

		p95 := s.latency[detect.BackendAccurate].P95()

		if p95 > s.cfg.LatencyBudget {
			return detect.BackendFast
		}
	}

	return s.active
}

// RecordResult folds a completed detection cycle back into the scheduler:
// latency windows, the failure fallback chain, the degraded signal, and
// the bounded interval adjustment.  Volatility is the scene volatility
// heuristic for the cycle and meanConfidence the tracker's current broad
// confidence
func (s *Scheduler) RecordResult(res *detect.Result, volatility,
	meanConfidence float32, now time.Time) {

	s.latency[res.Backend].Add(res.Latency)

	if res.Err != nil {

		s.consecutiveFailures++

		if s.failingSince.IsZero() {
			s.failingSince = now
		}

		// automatic fallback to the other backend on repeated failure
		if s.consecutiveFailures >= s.cfg.FailureThreshold {
			s.active = s.otherBackend(s.active)
			s.consecutiveFailures = 0
		}

	} else {
		s.consecutiveFailures = 0
		s.lastSuccess = now
		s.failingSince = time.Time{}
	}

	s.updateDegraded(now)
	s.adjustInterval(volatility, meanConfidence)
}

// otherBackend returns the opposite backend tier
func (s *Scheduler) otherBackend(b detect.Backend) detect.Backend {

	if b == detect.BackendFast {
		return detect.BackendAccurate
	}

	return detect.BackendFast
}

// updateDegraded raises the degraded ladder while results keep failing and
// clears it on recovery.  The render loop is never stopped, failure only
// reduces overlay fidelity
func (s *Scheduler) updateDegraded(now time.Time) {

	if s.failingSince.IsZero() {
		s.degraded = DegradedNone
		return
	}

	failingFor := now.Sub(s.failingSince)

	switch {
	case failingFor >= 2*s.cfg.DegradedAfter:
		s.degraded = DegradedMinimal
	case failingFor >= s.cfg.DegradedAfter:
		s.degraded = DegradedReduced
	}
}

// adjustInterval applies one bounded step to the target detection
// interval: more frequent when the scene is volatile or track confidence
// is broadly dropping, less frequent when the scene is calm and stable
func (s *Scheduler) adjustInterval(volatility, meanConfidence float32) {

	confidenceDropping := meanConfidence <
		s.lastMeanConfidence-s.cfg.ConfidenceDrop

	s.lastMeanConfidence = meanConfidence

	if volatility > s.cfg.VolatilityHigh || confidenceDropping {
		s.interval -= s.cfg.IntervalStep
	} else if volatility < s.cfg.VolatilityLow {
		s.interval += s.cfg.IntervalStep
	}

	if s.interval < s.cfg.IntervalMin {
		s.interval = s.cfg.IntervalMin
	}

	if s.interval > s.cfg.IntervalMax {
		s.interval = s.cfg.IntervalMax
	}
}

// Interval returns the current target detection interval in frames
func (s *Scheduler) Interval() int {
	return s.interval
}

// ActiveBackend returns the backend currently selected by the fallback
// chain
func (s *Scheduler) ActiveBackend() detect.Backend {
	return s.active
}

// Degraded returns the current degraded level for the overlay layer
func (s *Scheduler) Degraded() DegradedLevel {
	return s.degraded
}
