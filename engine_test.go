package hazardar

import (
	"errors"
	"testing"
	"time"

	"github.com/sitelens/go-hazardar/detect"
	"github.com/sitelens/go-hazardar/projector"
	"github.com/sitelens/go-hazardar/tracker"
)

func testClasses() *tracker.ClassMap {
	return tracker.NewClassMap([]tracker.ClassInfo{
		{Label: "pothole", Severity: tracker.SeverityMajor,
			NominalHeight: 0.15},
		{Label: "open_manhole", Severity: tracker.SeverityCritical,
			NominalHeight: 0.10},
	})
}

// testConfig runs detection every frame so tests converge quickly
func testConfig() Config {
	cfg := DefaultConfig(TierMid)
	cfg.DetectionIntervalMin = 1
	cfg.DetectionIntervalMax = 1
	return cfg
}

// steadyDetection returns a script repeating one confident pothole
func steadyDetection() []detect.ScriptedCycle {
	return []detect.ScriptedCycle{
		{Detections: []detect.RawDetection{
			{ClassID: 0, Confidence: 0.9,
				Box: detect.Box{X: 0.45, Y: 0.45, Width: 0.1, Height: 0.1}},
		}},
	}
}

// newTestEngine builds a synchronous engine over scripted backends
func newTestEngine(t *testing.T, cfg Config,
	fast, accurate []detect.ScriptedCycle) *Engine {

	t.Helper()

	engine, err := NewEngine(cfg, testClasses(),
		map[detect.Backend]detect.Detector{
			detect.BackendFast: detect.NewScripted(detect.Profile{
				Backend: detect.BackendFast, ID: "fast"}, fast),
			detect.BackendAccurate: detect.NewScripted(detect.Profile{
				Backend: detect.BackendAccurate, ID: "accurate"}, accurate),
		},
		WithSyncDetection(),
	)

	if err != nil {
		t.Fatalf("engine creation failed: %v", err)
	}

	t.Cleanup(func() { engine.Close() })

	return engine
}

// runFrames processes n frames at 30fps starting from base
func runFrames(t *testing.T, engine *Engine, base time.Time,
	n int) FrameOutput {

	t.Helper()

	var out FrameOutput

	for i := 0; i < n; i++ {

		var err error
		out, err = engine.ProcessFrame(Frame{
			Pose:      projector.IdentityPose(),
			Timestamp: base.Add(time.Duration(i) * 33 * time.Millisecond),
			Quality:   projector.QualityNormal,
		})

		if err != nil {
			t.Fatalf("frame %d failed: %v", i, err)
		}
	}

	return out
}

func TestNewEngineValidation(t *testing.T) {

	bad := testConfig()
	bad.DecayRate = 0

	_, err := NewEngine(bad, testClasses(), map[detect.Backend]detect.Detector{
		detect.BackendFast: detect.NewScripted(detect.Profile{}, nil),
	})

	if !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for bad config, got %v", err)
	}

	_, err = NewEngine(testConfig(), testClasses(), nil)

	if !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for no detectors, got %v", err)
	}

	_, err = NewEngine(testConfig(), nil, map[detect.Backend]detect.Detector{
		detect.BackendFast: detect.NewScripted(detect.Profile{}, nil),
	})

	if !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for nil class map, got %v", err)
	}
}

// TestEngineEndToEnd verifies a steady detection stream turns into a
// rendered overlay primitive within a few frames
func TestEngineEndToEnd(t *testing.T) {
	engine := newTestEngine(t, testConfig(),
		steadyDetection(), steadyDetection())

	out := runFrames(t, engine, time.Now(), 10)

	if len(out.Primitives) != 1 {
		t.Fatalf("expected 1 primitive, got %d", len(out.Primitives))
	}

	prim := out.Primitives[0]

	if prim.Label != "pothole" {
		t.Errorf("expected pothole label, got %q", prim.Label)
	}

	if prim.Severity != tracker.SeverityMajor {
		t.Errorf("expected major severity, got %v", prim.Severity)
	}

	// box lands around the detection's pixel position
	if cx := (prim.Box.Min.X + prim.Box.Max.X) / 2; cx < 600 || cx > 680 {
		t.Errorf("expected box near x 640, got %d", cx)
	}

	if out.Degraded {
		t.Errorf("healthy pipeline reported degraded")
	}

	if out.Stats.ActiveTracks != 1 {
		t.Errorf("expected 1 active track, got %d", out.Stats.ActiveTracks)
	}

	tracks := engine.Tracks()

	if len(tracks) != 1 || tracks[0].State() != tracker.Confirmed {
		t.Errorf("expected a confirmed track")
	}
}

// TestEngineDetectorFailureNeverFailsFrame verifies detector errors leave
// the frame pipeline running with coasting tracks
func TestEngineDetectorFailureNeverFailsFrame(t *testing.T) {

	boom := errors.New("backend crashed")
	healthy := steadyDetection()[0]

	// the accurate backend serves the healthy phase then fails, the
	// fast fallback fails outright so the failure phase has no healthy
	// backend to switch to
	accurate := []detect.ScriptedCycle{
		healthy, healthy, healthy, healthy, healthy,
		{Err: boom},
	}
	fast := []detect.ScriptedCycle{{Err: boom}}

	engine := newTestEngine(t, testConfig(), fast, accurate)
	base := time.Now()

	// healthy frames establish a confirmed track
	runFrames(t, engine, base, 5)

	if len(engine.Tracks()) != 1 {
		t.Fatalf("expected 1 track before failures")
	}

	// failing cycles keep the pipeline alive and the track coasting
	out := runFrames(t, engine, base.Add(time.Second), 5)

	if out.Stats.ActiveTracks != 1 {
		t.Errorf("track lost during detector failure")
	}

	state := engine.Tracks()[0].State()

	if state != tracker.Coasting {
		t.Errorf("expected coasting during failures, got %v", state)
	}
}

// TestEngineBackendFallback verifies repeated failures on the active
// backend switch dispatch to the other one
func TestEngineBackendFallback(t *testing.T) {

	boom := errors.New("backend crashed")

	failing := []detect.ScriptedCycle{{Err: boom}}

	engine := newTestEngine(t, testConfig(), steadyDetection(), failing)

	if engine.Scheduler().ActiveBackend() != detect.BackendAccurate {
		t.Fatal("expected accurate backend initially")
	}

	runFrames(t, engine, time.Now(), 10)

	if engine.Scheduler().ActiveBackend() != detect.BackendFast {
		t.Errorf("expected fallback to fast backend, got %v",
			engine.Scheduler().ActiveBackend())
	}
}

// TestEngineDegradedOnSustainedFailure verifies both backends failing for
// longer than the degraded window raises the degraded flag
func TestEngineDegradedOnSustainedFailure(t *testing.T) {

	boom := errors.New("backend crashed")
	failing := []detect.ScriptedCycle{{Err: boom}}

	engine := newTestEngine(t, testConfig(), failing, failing)
	base := time.Now()

	// frame timestamps span 5 seconds of continuous failure
	var out FrameOutput

	for i := 0; i < 100; i++ {

		var err error
		out, err = engine.ProcessFrame(Frame{
			Pose:      projector.IdentityPose(),
			Timestamp: base.Add(time.Duration(i) * 50 * time.Millisecond),
			Quality:   projector.QualityNormal,
		})

		if err != nil {
			t.Fatalf("frame %d failed: %v", i, err)
		}
	}

	if !out.Degraded {
		t.Errorf("expected degraded after sustained failure")
	}
}

// TestEngineFrozenOverlayOnTrackingLost verifies lost pose tracking emits
// frozen, dimmed primitives instead of dropping them
func TestEngineFrozenOverlayOnTrackingLost(t *testing.T) {
	engine := newTestEngine(t, testConfig(),
		steadyDetection(), steadyDetection())
	base := time.Now()

	normal := runFrames(t, engine, base, 10)

	if len(normal.Primitives) != 1 {
		t.Fatalf("expected 1 primitive before tracking loss")
	}

	out, err := engine.ProcessFrame(Frame{
		Pose:      projector.IdentityPose(),
		Timestamp: base.Add(time.Second),
		Quality:   projector.QualityLost,
	})

	if err != nil {
		t.Fatalf("frame failed: %v", err)
	}

	if len(out.Primitives) != 1 {
		t.Fatalf("expected frozen primitive, got %d", len(out.Primitives))
	}

	if !out.Primitives[0].Frozen {
		t.Errorf("primitive not marked frozen")
	}

	if out.Primitives[0].Opacity >= normal.Primitives[0].Opacity {
		t.Errorf("frozen primitive not dimmed: %v vs %v",
			out.Primitives[0].Opacity, normal.Primitives[0].Opacity)
	}
}

// TestEngineReset verifies a reset clears tracks while never reusing IDs
func TestEngineReset(t *testing.T) {
	engine := newTestEngine(t, testConfig(),
		steadyDetection(), steadyDetection())
	base := time.Now()

	runFrames(t, engine, base, 5)

	firstID := engine.Tracks()[0].TrackID()

	engine.Reset()

	if len(engine.Tracks()) != 0 {
		t.Fatal("tracks survived reset")
	}

	runFrames(t, engine, base.Add(time.Minute), 5)

	if id := engine.Tracks()[0].TrackID(); id <= firstID {
		t.Errorf("track ID %d reused after reset", id)
	}
}
