package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitelens/go-hazardar/detect"
)

func TestLoadClassMap(t *testing.T) {

	file := filepath.Join(t.TempDir(), "hazards.txt")

	data := `# road hazard classes
pothole major 0.15

open_manhole critical 0.10
debris minor 0.3
`

	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	classes, err := LoadClassMap(file)

	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if classes.Len() != 3 {
		t.Fatalf("expected 3 classes, got %d", classes.Len())
	}

	// line order assigns class IDs
	info := classes.Info(1)

	if info.Label != "open_manhole" {
		t.Errorf("expected open_manhole at class 1, got %s", info.Label)
	}

	if info.Severity != SeverityCritical {
		t.Errorf("expected critical severity, got %v", info.Severity)
	}

	if diff := info.NominalHeight - 0.10; diff > 1e-5 || diff < -1e-5 {
		t.Errorf("expected nominal height 0.10, got %v", info.NominalHeight)
	}
}

func TestLoadClassMapRejectsBadSeverity(t *testing.T) {

	file := filepath.Join(t.TempDir(), "hazards.txt")

	if err := os.WriteFile(file,
		[]byte("pothole catastrophic 0.15\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadClassMap(file); err == nil {
		t.Error("expected error for unknown severity")
	}
}

// TestClassMapUnknownFallback verifies out-of-range class IDs get a
// conservative placeholder instead of a panic
func TestClassMapUnknownFallback(t *testing.T) {

	classes := NewClassMap([]ClassInfo{
		{Label: "pothole", Severity: SeverityMajor, NominalHeight: 0.15},
	})

	info := classes.Info(99)

	if info.Label != "class_99" {
		t.Errorf("expected placeholder label, got %s", info.Label)
	}

	if info.Severity != SeverityMinor {
		t.Errorf("expected minor severity fallback, got %v", info.Severity)
	}
}

func TestConvertDetections(t *testing.T) {

	ts := time.Now()

	raw := []detect.RawDetection{
		{
			ClassID:    0,
			Confidence: 0.9,
			Box:        detect.Box{X: 0.25, Y: 0.5, Width: 0.5, Height: 0.25},
			DetectorID: "npu0", FrameTimestamp: ts,
		},
		// degenerate box is dropped
		{
			ClassID:    1,
			Confidence: 0.8,
			Box:        detect.Box{X: 0.5, Y: 0.5, Width: 0, Height: 0},
		},
	}

	observations := ConvertDetections(raw, 1280, 720)

	if len(observations) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(observations))
	}

	obs := observations[0]

	// normalized box mapped into pixel space as xyah
	if diff := obs.Measurement[0] - 640; diff > 0.5 || diff < -0.5 {
		t.Errorf("expected center x 640, got %v", obs.Measurement[0])
	}

	if diff := obs.Measurement[3] - 180; diff > 0.5 || diff < -0.5 {
		t.Errorf("expected height 180, got %v", obs.Measurement[3])
	}

	if obs.DetectorID != "npu0" || !obs.Timestamp.Equal(ts) {
		t.Errorf("observation lost detection provenance")
	}
}
