package projector

import (
	"math"
	"testing"
	"time"

	"github.com/sitelens/go-hazardar/tracker"
)

func testIntrinsics() Intrinsics {
	return Intrinsics{
		FocalX:  1000,
		FocalY:  1000,
		CenterX: 640,
		CenterY: 360,
		Width:   1280,
		Height:  720,
	}
}

func testClasses() *tracker.ClassMap {
	return tracker.NewClassMap([]tracker.ClassInfo{
		{Label: "pothole", Severity: tracker.SeverityMajor,
			NominalHeight: 0.15},
	})
}

// settleTrack feeds a tracker observations at the given pixel center and
// box height and returns the resulting track snapshot
func settleTrack(t *testing.T, cx, cy, h float32) *tracker.HazardTrack {
	t.Helper()

	ht := tracker.NewHazardTracker(tracker.DefaultConfig(), testClasses())
	now := time.Now()

	for i := 0; i < 5; i++ {

		obs := tracker.Observation{
			ClassID:     0,
			Confidence:  0.9,
			Measurement: tracker.Measurement{cx, cy, 1.0, h},
			Timestamp:   now,
			DetectorID:  "test",
		}

		if _, err := ht.Step(now, []tracker.Observation{obs}, true); err != nil {
			t.Fatalf("tracker step failed: %v", err)
		}

		now = now.Add(33 * time.Millisecond)
	}

	return ht.Tracks()[0]
}

func near(a, b, tol float32) bool {
	diff := a - b
	return diff < tol && diff > -tol
}

func TestEstimateDepth(t *testing.T) {
	p := NewProjector(testIntrinsics(), testClasses())

	// 0.15m tall hazard filling 100px at focal length 1000
	depth := p.EstimateDepth(0, 100)

	if !near(depth, 1.5, 1e-4) {
		t.Errorf("expected depth 1.5, got %v", depth)
	}

	if p.EstimateDepth(0, 0) != 0 {
		t.Errorf("expected zero depth for degenerate box")
	}
}

// TestProjectIdentity verifies a hazard observed and reprojected under the
// same pose lands on its observed screen position
func TestProjectIdentity(t *testing.T) {
	p := NewProjector(testIntrinsics(), testClasses())
	track := settleTrack(t, 640, 360, 100)

	p.Observe(track, IdentityPose())

	projections := p.Project([]*tracker.HazardTrack{track},
		IdentityPose(), QualityNormal)

	if len(projections) != 1 {
		t.Fatalf("expected 1 projection, got %d", len(projections))
	}

	rect := projections[0].Rect

	if !near(rect.CenterX(), 640, 2) || !near(rect.CenterY(), 360, 2) {
		t.Errorf("expected projection at screen center, got %v,%v",
			rect.CenterX(), rect.CenterY())
	}

	if !near(projections[0].Distance, 1.5, 0.1) {
		t.Errorf("expected distance near 1.5, got %v", projections[0].Distance)
	}
}

// TestProjectForwardMotion verifies walking towards a hazard grows its
// projected box and shrinks its distance
func TestProjectForwardMotion(t *testing.T) {
	p := NewProjector(testIntrinsics(), testClasses())
	track := settleTrack(t, 640, 360, 100)

	p.Observe(track, IdentityPose())

	moved := IdentityPose()
	moved.Position = Vec3{Z: 0.5}

	projections := p.Project([]*tracker.HazardTrack{track}, moved,
		QualityNormal)

	if len(projections) != 1 {
		t.Fatalf("expected 1 projection, got %d", len(projections))
	}

	if !near(projections[0].Distance, 1.0, 0.1) {
		t.Errorf("expected distance near 1.0 after moving forward, got %v",
			projections[0].Distance)
	}

	// box grows by the depth ratio
	if h := projections[0].Rect.Height(); h < 140 || h > 160 {
		t.Errorf("expected box height near 150, got %v", h)
	}
}

// TestProjectLateralMotion verifies moving right shifts the projection
// left on screen
func TestProjectLateralMotion(t *testing.T) {
	p := NewProjector(testIntrinsics(), testClasses())
	track := settleTrack(t, 640, 360, 100)

	p.Observe(track, IdentityPose())

	moved := IdentityPose()
	moved.Position = Vec3{X: 0.1}

	projections := p.Project([]*tracker.HazardTrack{track}, moved,
		QualityNormal)

	if projections[0].Rect.CenterX() >= 640 {
		t.Errorf("expected projection left of center, got %v",
			projections[0].Rect.CenterX())
	}
}

// TestProjectFreezeOnTrackingLost verifies the projection holds its last
// screen location and is marked frozen while pose tracking is lost
func TestProjectFreezeOnTrackingLost(t *testing.T) {
	p := NewProjector(testIntrinsics(), testClasses())
	track := settleTrack(t, 640, 360, 100)

	p.Observe(track, IdentityPose())

	first := p.Project([]*tracker.HazardTrack{track}, IdentityPose(),
		QualityNormal)

	// a wildly wrong pose must not move the frozen projection
	wild := IdentityPose()
	wild.Position = Vec3{X: 50, Y: 50, Z: -10}

	frozen := p.Project([]*tracker.HazardTrack{track}, wild, QualityLost)

	if len(frozen) != 1 {
		t.Fatalf("expected 1 frozen projection, got %d", len(frozen))
	}

	if !frozen[0].Frozen {
		t.Errorf("projection not marked frozen")
	}

	if !near(frozen[0].Rect.CenterX(), first[0].Rect.CenterX(), 1e-3) {
		t.Errorf("frozen projection moved from %v to %v",
			first[0].Rect.CenterX(), frozen[0].Rect.CenterX())
	}
}

// TestProjectBehindCamera verifies a hazard behind the camera emits no
// projection but keeps its anchor for when it comes back into view
func TestProjectBehindCamera(t *testing.T) {
	p := NewProjector(testIntrinsics(), testClasses())
	track := settleTrack(t, 640, 360, 100)

	p.Observe(track, IdentityPose())

	// walk past the hazard
	past := IdentityPose()
	past.Position = Vec3{Z: 3}

	projections := p.Project([]*tracker.HazardTrack{track}, past,
		QualityNormal)

	if len(projections) != 0 {
		t.Fatalf("expected no projection behind camera, got %d",
			len(projections))
	}

	// turning around brings it back
	turned := Pose{
		Position:    Vec3{Z: 3},
		Orientation: AxisAngle(Vec3{Y: 1}, math.Pi),
	}

	projections = p.Project([]*tracker.HazardTrack{track}, turned,
		QualityNormal)

	if len(projections) != 1 {
		t.Errorf("expected projection after turning around, got %d",
			len(projections))
	}
}

// TestAnchorPruning verifies anchors for expired tracks are released
func TestAnchorPruning(t *testing.T) {
	p := NewProjector(testIntrinsics(), testClasses())
	track := settleTrack(t, 400, 300, 100)

	p.Observe(track, IdentityPose())

	// the track disappears for a frame, its anchor is pruned
	p.Project(nil, IdentityPose(), QualityNormal)

	// the same track now projects from its filter rect, not an anchor,
	// so a shifted pose has no effect on its position
	moved := IdentityPose()
	moved.Position = Vec3{X: 0.5}

	projections := p.Project([]*tracker.HazardTrack{track}, moved,
		QualityNormal)

	if !near(projections[0].Rect.CenterX(), 400, 2) {
		t.Errorf("expected anchor released and filter rect used, center %v",
			projections[0].Rect.CenterX())
	}
}

func TestQuaternionRotate(t *testing.T) {

	// 90 degrees around y maps forward to the side
	q := AxisAngle(Vec3{Y: 1}, math.Pi/2)
	out := q.Rotate(Vec3{Z: 1})

	if !near(out.X, 1, 1e-4) || !near(out.Z, 0, 1e-4) {
		t.Errorf("expected rotation onto x axis, got %+v", out)
	}
}

func TestPoseRoundTrip(t *testing.T) {

	pose := Pose{
		Position:    Vec3{X: 1, Y: 2, Z: 3},
		Orientation: AxisAngle(Vec3{X: 1, Y: 1, Z: 0}, 0.7),
	}

	v := Vec3{X: 0.5, Y: -0.25, Z: 2}
	back := pose.WorldToCamera(pose.CameraToWorld(v))

	if !near(back.X, v.X, 1e-4) || !near(back.Y, v.Y, 1e-4) ||
		!near(back.Z, v.Z, 1e-4) {
		t.Errorf("round trip mismatch: %+v vs %+v", back, v)
	}
}

func TestPoseDelta(t *testing.T) {

	a := IdentityPose()

	b := Pose{
		Position:    Vec3{X: 3, Y: 4},
		Orientation: AxisAngle(Vec3{Y: 1}, 0.5),
	}

	trans, angle := b.Delta(a)

	if !near(trans, 5, 1e-4) {
		t.Errorf("expected translation 5, got %v", trans)
	}

	if !near(angle, 0.5, 1e-3) {
		t.Errorf("expected rotation 0.5, got %v", angle)
	}
}
