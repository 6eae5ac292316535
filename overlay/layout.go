package overlay

import (
	"image"
	"sort"
)

// Config holds the layout engine tuning parameters
type Config struct {
	// MaxRenderedPrimitives is the hard cap on primitives per frame.
	// Lower priority candidates beyond the cap are dropped from
	// rendering only, never from tracking
	MaxRenderedPrimitives int
	// EffectiveRangeMeters culls hazards estimated beyond this distance
	EffectiveRangeMeters float32
	// MinRenderConfidence culls tracks below this confidence score
	MinRenderConfidence float32
	// FrozenOpacityScale multiplies opacity while pose tracking is lost
	FrozenOpacityScale float32
	// CharWidth and LineHeight estimate badge text extents in pixels,
	// the renderer measures precisely but placement only needs bounds
	CharWidth  int
	LineHeight int
	// BadgePad is the padding around badge text
	BadgePad int
}

// DefaultConfig returns layout defaults for a phone sized viewport
func DefaultConfig() Config {
	return Config{
		MaxRenderedPrimitives: 15,
		EffectiveRangeMeters:  25,
		MinRenderConfidence:   0.25,
		FrozenOpacityScale:    0.5,
		CharWidth:             9,
		LineHeight:            18,
		BadgePad:              4,
	}
}

// Layout is the overlay layout engine.  It owns nothing between frames,
// every Build call works from a fresh candidate snapshot
type Layout struct {
	cfg Config
}

// NewLayout creates a layout engine with the given configuration
func NewLayout(cfg Config) *Layout {
	return &Layout{cfg: cfg}
}

// Build produces the frame's ordered primitive list from the visible
// candidates.  Candidates are culled by range and confidence, ordered by
// severity then confidence then recency, capped, and labelled with greedy
// collision avoidance
func (l *Layout) Build(candidates []Candidate, mode Mode) []OverlayPrimitive {

	// 1. cull by effective range and render confidence
	kept := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {

		if c.Confidence < l.cfg.MinRenderConfidence {
			continue
		}

		if c.Distance > l.cfg.EffectiveRangeMeters {
			continue
		}

		kept = append(kept, c)
	}

	// 2. priority order: severity first, then confidence, then recency
	sort.SliceStable(kept, func(a, b int) bool {

		if kept[a].Severity != kept[b].Severity {
			return kept[a].Severity > kept[b].Severity
		}

		if kept[a].Confidence != kept[b].Confidence {
			return kept[a].Confidence > kept[b].Confidence
		}

		return kept[a].LastObserved.After(kept[b].LastObserved)
	})

	// 3. cap the number of rendered primitives, degraded modes halve it
	limit := l.cfg.MaxRenderedPrimitives

	if mode != ModeFull {
		limit = limit / 2

		if limit < 1 {
			limit = 1
		}
	}

	if len(kept) > limit {
		kept = kept[:limit]
	}

	// 4. badge placement with greedy collision avoidance, higher
	// priority primitives reserve their bounds first
	occupied := newOccupancy()
	primitives := make([]OverlayPrimitive, 0, len(kept))

	for i, c := range kept {

		box := image.Rect(int(c.Rect.TLX()), int(c.Rect.TLY()),
			int(c.Rect.BRX()), int(c.Rect.BRY()))

		prim := OverlayPrimitive{
			TrackID:  c.TrackID,
			Box:      box,
			Severity: c.Severity,
			Opacity:  l.opacity(c),
			ZOrder:   len(kept) - i,
			Frozen:   c.Frozen,
		}

		if mode != ModeMinimal && c.Label != "" {

			badge, ok := l.placeBadge(box, c.Label, occupied)

			if ok {
				prim.Label = c.Label
				prim.BadgeBounds = badge
				prim.BadgeAnchor = badge.Min
				occupied.reserve(badge)
			}
		}

		primitives = append(primitives, prim)
	}

	return primitives
}

// opacity computes a smooth fade from confidence and inverse distance
// rather than a hard visibility cutoff
func (l *Layout) opacity(c Candidate) float32 {

	opacity := c.Confidence

	if c.Distance > 0 {
		opacity *= l.cfg.EffectiveRangeMeters /
			(l.cfg.EffectiveRangeMeters + c.Distance)
	}

	if c.Frozen {
		opacity *= l.cfg.FrozenOpacityScale
	}

	if opacity > 1 {
		opacity = 1
	}

	return opacity
}

// placeBadge tries the default anchor position then a fixed sequence of
// offset candidates, accepting the first that does not overlap a higher
// priority primitive's reserved bounds.  Returns false when every
// candidate position collides, the box then renders without a label
func (l *Layout) placeBadge(box image.Rectangle, label string,
	occupied *occupancy) (image.Rectangle, bool) {

	w := len(label)*l.cfg.CharWidth + 2*l.cfg.BadgePad
	h := l.cfg.LineHeight + 2*l.cfg.BadgePad

	// fixed candidate sequence: above, below, right, left, inside-top
	positions := []image.Point{
		{X: box.Min.X, Y: box.Min.Y - h},
		{X: box.Min.X, Y: box.Max.Y},
		{X: box.Max.X, Y: box.Min.Y},
		{X: box.Min.X - w, Y: box.Min.Y},
		{X: box.Min.X, Y: box.Min.Y},
	}

	for _, pos := range positions {

		badge := image.Rect(pos.X, pos.Y, pos.X+w, pos.Y+h)

		if !occupied.overlaps(badge) {
			return badge, true
		}
	}

	return image.Rectangle{}, false
}
