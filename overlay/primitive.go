// Package overlay converts the current frame's visible track set into a
// bounded list of readable, non-overlapping overlay primitives ordered by
// render priority.
package overlay

import (
	"image"
	"time"

	"github.com/sitelens/go-hazardar/tracker"
)

// Mode is the overlay fidelity ladder driven by the scheduler's degraded
// signal.  Critical severity hazards are the last thing dropped
type Mode int

const (
	// ModeFull renders boxes and labels up to the configured cap
	ModeFull Mode = 0
	// ModeReduced halves the render cap, labels stay on
	ModeReduced Mode = 1
	// ModeMinimal renders boxes only with the reduced cap
	ModeMinimal Mode = 2
)

// String returns a readable name for the overlay mode
func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeReduced:
		return "reduced"
	case ModeMinimal:
		return "minimal"
	}
	return "unknown"
}

// Candidate is one visible track proposed for rendering this frame
type Candidate struct {
	// TrackID of the underlying track
	TrackID int64
	// Rect is the projected bounding box in pixel space
	Rect tracker.Rect
	// Severity of the hazard
	Severity tracker.Severity
	// Confidence is the track confidence score in [0,1]
	Confidence float32
	// Distance to the hazard in meters
	Distance float32
	// LastObserved is the frame time of the last matched detection
	LastObserved time.Time
	// Label is the readable hazard name
	Label string
	// Frozen is set when the projection is held due to lost pose tracking
	Frozen bool
}

// OverlayPrimitive is one draw instruction for the renderer.  Primitives
// are ephemeral values rebuilt every frame, never persisted and never fed
// back into the tracker
type OverlayPrimitive struct {
	// TrackID of the underlying track
	TrackID int64
	// Box is the screen-space rectangle to draw
	Box image.Rectangle
	// BadgeAnchor is the top-left corner of the label badge
	BadgeAnchor image.Point
	// BadgeBounds is the reserved rectangle for the label badge
	BadgeBounds image.Rectangle
	// Label text, empty when labels are disabled or placement failed
	Label string
	// Severity of the hazard
	Severity tracker.Severity
	// Opacity in [0,1], a smooth function of confidence and distance
	Opacity float32
	// ZOrder is the draw order, lower draws first
	ZOrder int
	// Frozen is set when pose tracking is lost, renderers dim these
	Frozen bool
}
