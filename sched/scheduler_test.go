package sched

import (
	"errors"
	"testing"
	"time"

	"github.com/sitelens/go-hazardar/detect"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IntervalMin = 4
	cfg.IntervalMax = 12
	cfg.IntervalStep = 2
	return cfg
}

// result builds a detection result for the given backend
func result(backend detect.Backend, latency time.Duration,
	err error) *detect.Result {

	return &detect.Result{
		Backend: backend,
		Latency: latency,
		Err:     err,
	}
}

func TestDecideRespectsInterval(t *testing.T) {
	s := New(testConfig())

	dispatches := 0

	// interval starts at IntervalMax of 12
	for i := 0; i < 12; i++ {
		if s.Decide(false).RunDetection {
			dispatches++
		}
	}

	if dispatches != 1 {
		t.Errorf("expected exactly 1 dispatch in 12 frames, got %d",
			dispatches)
	}
}

func TestDecideSkipsWhileBusy(t *testing.T) {
	s := New(testConfig())

	for i := 0; i < 30; i++ {
		if s.Decide(true).RunDetection {
			t.Fatal("dispatched while worker busy")
		}
	}
}

func TestAccurateBackendFirst(t *testing.T) {
	s := New(testConfig())

	if s.ActiveBackend() != detect.BackendAccurate {
		t.Errorf("expected accurate backend initially, got %v",
			s.ActiveBackend())
	}
}

// TestLatencyFallbackToFast verifies the p95 budget check steers dispatch
// to the fast backend while the accurate one is over budget
func TestLatencyFallbackToFast(t *testing.T) {
	cfg := testConfig()
	cfg.LatencyBudget = 100 * time.Millisecond

	s := New(cfg)
	now := time.Now()

	// accurate backend consistently over budget
	for i := 0; i < 10; i++ {
		s.RecordResult(result(detect.BackendAccurate,
			250*time.Millisecond, nil), 0.3, 1.0, now)
	}

	var decision Decision

	for i := 0; i < cfg.IntervalMax; i++ {
		if d := s.Decide(false); d.RunDetection {
			decision = d
		}
	}

	if decision.Backend != detect.BackendFast {
		t.Errorf("expected fast backend over budget, got %v",
			decision.Backend)
	}
}

// TestFailureFallback verifies three consecutive failures switch the
// active backend
func TestFailureFallback(t *testing.T) {
	s := New(testConfig())
	now := time.Now()

	boom := errors.New("inference failed")

	s.RecordResult(result(detect.BackendAccurate, time.Millisecond, boom),
		0.3, 1.0, now)
	s.RecordResult(result(detect.BackendAccurate, time.Millisecond, boom),
		0.3, 1.0, now)

	if s.ActiveBackend() != detect.BackendAccurate {
		t.Fatal("switched before the failure threshold")
	}

	s.RecordResult(result(detect.BackendAccurate, time.Millisecond, boom),
		0.3, 1.0, now)

	if s.ActiveBackend() != detect.BackendFast {
		t.Errorf("expected fallback to fast after 3 failures, got %v",
			s.ActiveBackend())
	}
}

// TestDegradedLadder verifies sustained failure raises the degraded level
// in steps and recovery clears it
func TestDegradedLadder(t *testing.T) {
	cfg := testConfig()
	cfg.DegradedAfter = 2 * time.Second

	s := New(cfg)
	now := time.Now()

	boom := errors.New("inference failed")

	s.RecordResult(result(detect.BackendAccurate, time.Millisecond, boom),
		0.3, 1.0, now)

	if s.Degraded() != DegradedNone {
		t.Fatal("degraded raised on first failure")
	}

	s.RecordResult(result(detect.BackendFast, time.Millisecond, boom),
		0.3, 1.0, now.Add(2500*time.Millisecond))

	if s.Degraded() != DegradedReduced {
		t.Errorf("expected reduced after sustained failure, got %v",
			s.Degraded())
	}

	s.RecordResult(result(detect.BackendFast, time.Millisecond, boom),
		0.3, 1.0, now.Add(4500*time.Millisecond))

	if s.Degraded() != DegradedMinimal {
		t.Errorf("expected minimal after extended failure, got %v",
			s.Degraded())
	}

	// one success clears the degraded signal
	s.RecordResult(result(detect.BackendFast, time.Millisecond, nil),
		0.3, 1.0, now.Add(5*time.Second))

	if s.Degraded() != DegradedNone {
		t.Errorf("expected recovery to clear degraded, got %v", s.Degraded())
	}
}

// TestIntervalTightensOnVolatility verifies high scene volatility walks
// the interval down to the floor one step at a time
func TestIntervalTightensOnVolatility(t *testing.T) {
	cfg := testConfig()
	s := New(cfg)
	now := time.Now()

	start := s.Interval()

	s.RecordResult(result(detect.BackendAccurate, time.Millisecond, nil),
		0.9, 1.0, now)

	if s.Interval() != start-cfg.IntervalStep {
		t.Errorf("expected one bounded step down, got %d", s.Interval())
	}

	// many volatile cycles clamp at the floor
	for i := 0; i < 20; i++ {
		s.RecordResult(result(detect.BackendAccurate, time.Millisecond, nil),
			0.9, 1.0, now)
	}

	if s.Interval() != cfg.IntervalMin {
		t.Errorf("expected clamp at interval floor %d, got %d",
			cfg.IntervalMin, s.Interval())
	}
}

// TestIntervalRelaxesWhenCalm verifies low volatility walks the interval
// back up to the ceiling
func TestIntervalRelaxesWhenCalm(t *testing.T) {
	cfg := testConfig()
	s := New(cfg)
	now := time.Now()

	// tighten first
	for i := 0; i < 20; i++ {
		s.RecordResult(result(detect.BackendAccurate, time.Millisecond, nil),
			0.9, 1.0, now)
	}

	// calm scene relaxes one step per cycle
	for i := 0; i < 20; i++ {
		s.RecordResult(result(detect.BackendAccurate, time.Millisecond, nil),
			0.01, 1.0, now)
	}

	if s.Interval() != cfg.IntervalMax {
		t.Errorf("expected clamp at interval ceiling %d, got %d",
			cfg.IntervalMax, s.Interval())
	}
}

// TestIntervalTightensOnConfidenceDrop verifies a broad track confidence
// drop tightens the interval even on a calm scene
func TestIntervalTightensOnConfidenceDrop(t *testing.T) {
	cfg := testConfig()
	s := New(cfg)
	now := time.Now()

	start := s.Interval()

	// mean confidence falls well past the drop threshold, volatility calm
	// enough to not trigger the volatile path but inside the deadband
	s.RecordResult(result(detect.BackendAccurate, time.Millisecond, nil),
		0.3, 0.5, now)

	if s.Interval() != start-cfg.IntervalStep {
		t.Errorf("expected tighten on confidence drop, got %d", s.Interval())
	}
}

func TestLatencyWindowP95(t *testing.T) {
	w := NewLatencyWindow(10)

	if w.P95() != 0 {
		t.Errorf("expected zero p95 on empty window")
	}

	for i := 1; i <= 10; i++ {
		w.Add(time.Duration(i) * 10 * time.Millisecond)
	}

	p95 := w.P95()

	if p95 < 90*time.Millisecond || p95 > 100*time.Millisecond {
		t.Errorf("expected p95 near the top of the window, got %v", p95)
	}

	// the ring evicts oldest samples
	for i := 0; i < 10; i++ {
		w.Add(time.Millisecond)
	}

	if w.P95() > 2*time.Millisecond {
		t.Errorf("expected p95 to follow evictions, got %v", w.P95())
	}
}
