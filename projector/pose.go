// Package projector transforms tracked hazard positions into current-frame
// screen coordinates using the device pose delta since the hazard was last
// observed.
package projector

import "math"

// TrackingQuality is the pose tracking quality reported by the external
// pose/frame source
type TrackingQuality int

const (
	// QualityNormal means pose tracking is fully operational
	QualityNormal TrackingQuality = 0
	// QualityLimited means pose tracking is degraded but usable
	QualityLimited TrackingQuality = 1
	// QualityLost means pose tracking is lost, projected positions are
	// frozen at their last known screen location until it recovers
	QualityLost TrackingQuality = 2
)

// String returns a readable name for the tracking quality
func (q TrackingQuality) String() string {
	switch q {
	case QualityNormal:
		return "normal"
	case QualityLimited:
		return "limited"
	case QualityLost:
		return "lost"
	}
	return "unknown"
}

// Vec3 is a 3D vector in meters
type Vec3 struct {
	X, Y, Z float32
}

// Add returns v + o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Norm returns the euclidean length of the vector
func (v Vec3) Norm() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Quaternion is a rotation in WXYZ form
type Quaternion struct {
	W, X, Y, Z float32
}

// IdentityQuaternion returns the no-rotation quaternion
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// Mul returns the Hamilton product q * o
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

// Conjugate returns the inverse rotation for a unit quaternion
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Rotate applies the rotation to a vector
func (q Quaternion) Rotate(v Vec3) Vec3 {

	p := Quaternion{W: 0, X: v.X, Y: v.Y, Z: v.Z}
	r := q.Mul(p).Mul(q.Conjugate())

	return Vec3{X: r.X, Y: r.Y, Z: r.Z}
}

// AxisAngle builds a quaternion rotating angle radians around the given
// axis, the axis need not be normalized
func AxisAngle(axis Vec3, angle float32) Quaternion {

	n := axis.Norm()

	if n == 0 {
		return IdentityQuaternion()
	}

	half := float64(angle) / 2
	s := float32(math.Sin(half)) / n

	return Quaternion{
		W: float32(math.Cos(half)),
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
	}
}

// Pose is a 6-DoF device pose.  The camera convention is x right, y down,
// z forward in camera space
type Pose struct {
	// Position of the camera in world space
	Position Vec3
	// Orientation rotating camera space into world space
	Orientation Quaternion
}

// IdentityPose returns a pose at the world origin with no rotation
func IdentityPose() Pose {
	return Pose{Orientation: IdentityQuaternion()}
}

// CameraToWorld transforms a camera-space point to world space
func (p Pose) CameraToWorld(v Vec3) Vec3 {
	return p.Position.Add(p.Orientation.Rotate(v))
}

// WorldToCamera transforms a world-space point to camera space
func (p Pose) WorldToCamera(v Vec3) Vec3 {
	return p.Orientation.Conjugate().Rotate(v.Sub(p.Position))
}

// Delta returns the translation and rotation angle magnitude between two
// poses, used as the scene volatility heuristic
func (p Pose) Delta(o Pose) (float32, float32) {

	translation := p.Position.Sub(o.Position).Norm()

	// rotation angle between orientations
	rel := p.Orientation.Conjugate().Mul(o.Orientation)
	w := float64(rel.W)

	if w > 1 {
		w = 1
	} else if w < -1 {
		w = -1
	}

	angle := float32(2 * math.Acos(math.Abs(w)))

	return translation, angle
}
