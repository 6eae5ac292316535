package projector

import (
	"time"

	"github.com/sitelens/go-hazardar/tracker"
)

// Intrinsics is the pinhole camera model used to move between screen and
// camera space
type Intrinsics struct {
	// FocalX and FocalY are the focal lengths in pixels
	FocalX float32
	FocalY float32
	// CenterX and CenterY are the principal point in pixels
	CenterX float32
	CenterY float32
	// Width and Height of the camera frame in pixels
	Width  int
	Height int
}

// Projection is the screen-space placement of one track for the current
// frame
type Projection struct {
	// TrackID of the projected track
	TrackID int64
	// Rect is the projected bounding box in pixel space
	Rect tracker.Rect
	// Distance to the hazard in meters, estimated from class scale
	Distance float32
	// Frozen is set when pose tracking was lost and the projection is
	// held at its last known screen location
	Frozen bool
	// OnScreen reports whether any part of the box is inside the frame
	OnScreen bool
}

// anchor is the world-space state kept per track between observations
type anchor struct {
	// world position of the hazard center
	world Vec3
	// depth in meters at the time of observation
	obsDepth float32
	// observed box size in pixels at the time of observation
	obsWidth  float32
	obsHeight float32
	// last projected screen rect, used while frozen
	lastRect tracker.Rect
	// last estimated distance
	lastDistance float32
	// observedAt is the frame time of the last observation folded in
	observedAt time.Time
}

// Projector converts tracked hazard positions into current-frame screen
// coordinates.  An anchor in world space is established for each track
// from its observed screen box and class scale-to-distance, then
// reprojected through the current pose every frame
type Projector struct {
	intrinsics Intrinsics
	classes    *tracker.ClassMap
	anchors    map[int64]*anchor
}

// NewProjector creates a projector for the given camera intrinsics and
// hazard class map
func NewProjector(intrinsics Intrinsics, classes *tracker.ClassMap) *Projector {
	return &Projector{
		intrinsics: intrinsics,
		classes:    classes,
		anchors:    make(map[int64]*anchor),
	}
}

// EstimateDepth estimates the distance to a hazard of the given class from
// the pixel height of its bounding box
func (p *Projector) EstimateDepth(classID int, boxHeight float32) float32 {

	if boxHeight <= 0 {
		return 0
	}

	info := p.classes.Info(classID)

	return info.NominalHeight * p.intrinsics.FocalY / boxHeight
}

// Observe folds a track's latest observation into its world anchor using
// the pose of the frame the observation came from.  Call it for tracks
// whose FramesSinceObservation was reset this cycle
func (p *Projector) Observe(track *tracker.HazardTrack, pose Pose) {

	rect := track.Rect()
	depth := p.EstimateDepth(track.ClassID(), rect.Height())

	if depth <= 0 {
		return
	}

	// backproject the box center through the observation pose
	cam := p.backproject(rect.CenterX(), rect.CenterY(), depth)
	world := pose.CameraToWorld(cam)

	a, exists := p.anchors[track.TrackID()]

	if !exists {
		a = &anchor{}
		p.anchors[track.TrackID()] = a
	}

	a.world = world
	a.obsDepth = depth
	a.obsWidth = rect.Width()
	a.obsHeight = rect.Height()
	a.lastRect = rect
	a.lastDistance = depth
	a.observedAt = track.LastObserved()
}

// Project returns screen placements for the given tracks under the current
// pose.  When quality is QualityLost every anchored track keeps its last
// known screen location and is marked frozen so brief tracking
// interruptions do not flicker overlays off screen.  Anchors belonging to
// tracks no longer present are released
func (p *Projector) Project(tracks []*tracker.HazardTrack, pose Pose,
	quality TrackingQuality) []Projection {

	live := make(map[int64]bool, len(tracks))
	projections := make([]Projection, 0, len(tracks))

	for _, track := range tracks {

		live[track.TrackID()] = true

		a, exists := p.anchors[track.TrackID()]

		if !exists {
			// no anchor yet, place the track at its filter position
			rect := track.Rect()
			projections = append(projections, Projection{
				TrackID:  track.TrackID(),
				Rect:     rect,
				Distance: p.EstimateDepth(track.ClassID(), rect.Height()),
				OnScreen: p.onScreen(rect),
			})
			continue
		}

		if quality == QualityLost {
			// hold the last known screen location at reduced fidelity
			projections = append(projections, Projection{
				TrackID:  track.TrackID(),
				Rect:     a.lastRect,
				Distance: a.lastDistance,
				Frozen:   true,
				OnScreen: p.onScreen(a.lastRect),
			})
			continue
		}

		proj, visible := p.reproject(a, pose)

		if !visible {
			// behind the camera, keep the anchor but emit nothing
			continue
		}

		a.lastRect = proj.Rect
		a.lastDistance = proj.Distance
		proj.TrackID = track.TrackID()
		projections = append(projections, proj)
	}

	// release anchors for tracks that expired
	for id := range p.anchors {
		if !live[id] {
			delete(p.anchors, id)
		}
	}

	return projections
}

// reproject projects an anchor's world position through the current pose
func (p *Projector) reproject(a *anchor, pose Pose) (Projection, bool) {

	cam := pose.WorldToCamera(a.world)

	if cam.Z <= 0 {
		return Projection{}, false
	}

	u := p.intrinsics.FocalX*cam.X/cam.Z + p.intrinsics.CenterX
	v := p.intrinsics.FocalY*cam.Y/cam.Z + p.intrinsics.CenterY

	// scale the observed box size by the depth ratio
	scale := a.obsDepth / cam.Z
	w := a.obsWidth * scale
	h := a.obsHeight * scale

	rect := tracker.NewRect(u-w/2, v-h/2, w, h)

	return Projection{
		Rect:     rect,
		Distance: cam.Z,
		OnScreen: p.onScreen(rect),
	}, true
}

// backproject converts a screen point at the given depth to camera space
func (p *Projector) backproject(u, v, depth float32) Vec3 {
	return Vec3{
		X: (u - p.intrinsics.CenterX) / p.intrinsics.FocalX * depth,
		Y: (v - p.intrinsics.CenterY) / p.intrinsics.FocalY * depth,
		Z: depth,
	}
}

// onScreen reports whether any part of the rect is inside the frame
func (p *Projector) onScreen(r tracker.Rect) bool {
	return r.BRX() > 0 && r.BRY() > 0 &&
		r.TLX() < float32(p.intrinsics.Width) &&
		r.TLY() < float32(p.intrinsics.Height)
}
