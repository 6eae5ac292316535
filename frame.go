package hazardar

import (
	"time"

	"github.com/sitelens/go-hazardar/overlay"
	"github.com/sitelens/go-hazardar/projector"
	"github.com/sitelens/go-hazardar/sched"
	"github.com/sitelens/go-hazardar/telemetry"
	"gocv.io/x/gocv"
)

// Frame is one camera frame from the external pose/frame source
type Frame struct {
	// Image is the camera frame handle.  The engine only reads it, the
	// frame source retains ownership and frees it after ProcessFrame
	// returns
	Image *gocv.Mat
	// Pose is the device pose at capture time
	Pose projector.Pose
	// Timestamp of the frame capture
	Timestamp time.Time
	// Quality is the pose tracking quality
	Quality projector.TrackingQuality
}

// FrameOutput is the immutable per-frame result handed to the renderer.
// It is rebuilt every frame, the renderer must not feed it back into the
// engine
type FrameOutput struct {
	// Primitives is the ordered overlay draw list
	Primitives []overlay.OverlayPrimitive
	// Degraded reports reduced fidelity operation
	Degraded bool
	// DegradedLevel is the fidelity ladder position
	DegradedLevel sched.DegradedLevel
	// Stats is the frame's telemetry record
	Stats telemetry.FrameStats
}
