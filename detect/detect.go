// Package detect defines the uniform contract hazard detection backends
// implement and the asynchronous dispatch machinery that keeps detector
// invocations off the per-frame path.
package detect

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// Detector errors.  Timeouts and failures are recovered by the scheduler's
// fallback chain rather than propagated to the render loop
var (
	// ErrTimeout indicates the detector exceeded its invocation budget
	ErrTimeout = errors.New("detector timed out")
	// ErrFailure indicates the detector invocation failed
	ErrFailure = errors.New("detector failed")
)

// Backend identifies a detector backend tier
type Backend int

const (
	// BackendFast is the lightweight low latency backend
	BackendFast Backend = 0
	// BackendAccurate is the slower high accuracy backend
	BackendAccurate Backend = 1
)

// String returns a readable name for the backend
func (b Backend) String() string {
	switch b {
	case BackendFast:
		return "fast"
	case BackendAccurate:
		return "accurate"
	}
	return "unknown"
}

// Box is a bounding box in normalized image space, all values in [0,1]
type Box struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
}

// IoU calculates the Intersection over Union with another box
func (b Box) IoU(other Box) float32 {

	ix := minf(b.X+b.Width, other.X+other.Width) - maxf(b.X, other.X)

	if ix <= 0 {
		return 0
	}

	iy := minf(b.Y+b.Height, other.Y+other.Height) - maxf(b.Y, other.Y)

	if iy <= 0 {
		return 0
	}

	intersection := ix * iy
	union := b.Width*b.Height + other.Width*other.Height - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// RawDetection is one detector output for one frame.  It is ephemeral,
// consumed by the tracker and discarded
type RawDetection struct {
	// ClassID is the hazard class index the model was trained on
	ClassID int
	// Confidence is the detection confidence in [0,1]
	Confidence float32
	// Box is the bounding box in normalized image space
	Box Box
	// FrameTimestamp is the timestamp of the frame the detection was
	// computed against, not the time the result arrived
	FrameTimestamp time.Time
	// DetectorID names the backend that produced the detection
	DetectorID string
}

// Profile declares a backend's cost and accuracy characteristics, used by
// the adaptive scheduler for backend selection
type Profile struct {
	// Backend tier this detector belongs to
	Backend Backend
	// ID is the unique detector name
	ID string
	// CostEstimate is the expected per-invocation latency before any
	// rolling measurements exist
	CostEstimate time.Duration
}

// Detector is the uniform contract all hazard detection backends implement.
// Implementations are responsible for their own backend specific
// preprocessing of the frame image
type Detector interface {
	// Detect runs detection over the frame image captured at ts.  The
	// context carries the invocation deadline, implementations should
	// abandon work when it is cancelled
	Detect(ctx context.Context, img *gocv.Mat, ts time.Time) ([]RawDetection, error)
	// Profile returns the backend's declared cost/accuracy profile
	Profile() Profile
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
