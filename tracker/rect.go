package tracker

// Tlwh (top-left x, top-left y, width, height) represents a 1x4 matrix
type Tlwh []float32

// Xyah (center x, center y, aspect ratio, height) represents a 1x4 matrix
type Xyah []float32

// Rect represents a rectangle with Tlwh (top-left, width, height) format
// in pixel space
type Rect struct {
	Tlwh Tlwh
}

// NewRect creates a new Rect with given coordinates
func NewRect(x, y, width, height float32) Rect {
	return Rect{
		Tlwh: Tlwh{x, y, width, height},
	}
}

// X returns the x coordinate of the rectangle
func (r *Rect) X() float32 {
	return r.Tlwh[0]
}

// Y returns the y coordinate of the rectangle
func (r *Rect) Y() float32 {
	return r.Tlwh[1]
}

// Width returns the width of the rectangle
func (r *Rect) Width() float32 {
	return r.Tlwh[2]
}

// Height returns the height of the rectangle
func (r *Rect) Height() float32 {
	return r.Tlwh[3]
}

// SetX sets the x coordinate of the rectangle
func (r *Rect) SetX(x float32) {
	r.Tlwh[0] = x
}

// SetY sets the y coordinate of the rectangle
func (r *Rect) SetY(y float32) {
	r.Tlwh[1] = y
}

// SetWidth sets the width of the rectangle
func (r *Rect) SetWidth(width float32) {
	r.Tlwh[2] = width
}

// SetHeight sets the height of the rectangle
func (r *Rect) SetHeight(height float32) {
	r.Tlwh[3] = height
}

// TLX returns the top-left x coordinate of the rectangle
func (r *Rect) TLX() float32 {
	return r.Tlwh[0]
}

// TLY returns the top-left y coordinate of the rectangle
func (r *Rect) TLY() float32 {
	return r.Tlwh[1]
}

// BRX returns the bottom-right x coordinate of the rectangle
func (r *Rect) BRX() float32 {
	return r.Tlwh[0] + r.Tlwh[2]
}

// BRY returns the bottom-right y coordinate of the rectangle
func (r *Rect) BRY() float32 {
	return r.Tlwh[1] + r.Tlwh[3]
}

// CenterX returns the center x coordinate of the rectangle
func (r *Rect) CenterX() float32 {
	return r.Tlwh[0] + r.Tlwh[2]/2
}

// CenterY returns the center y coordinate of the rectangle
func (r *Rect) CenterY() float32 {
	return r.Tlwh[1] + r.Tlwh[3]/2
}

// GetXyah converts the rectangle to xyah (center x, center y, aspect
// ratio, height) form used by the Kalman filter state
func (r *Rect) GetXyah() Xyah {

	height := r.Tlwh[3]

	if height <= 0 {
		height = 1e-6
	}

	return Xyah{
		r.Tlwh[0] + r.Tlwh[2]/2,
		r.Tlwh[1] + r.Tlwh[3]/2,
		r.Tlwh[2] / height,
		r.Tlwh[3],
	}
}

// CalcIoU calculates the Intersection over Union with another rectangle
func (r *Rect) CalcIoU(other Rect) float32 {

	boxArea := (other.Width() + 1) * (other.Height() + 1)

	iw := min32(r.BRX(), other.BRX()) - max32(r.TLX(), other.TLX()) + 1

	if iw <= 0 {
		return 0
	}

	ih := min32(r.BRY(), other.BRY()) - max32(r.TLY(), other.TLY()) + 1

	if ih <= 0 {
		return 0
	}

	union := (r.Width()+1)*(r.Height()+1) + boxArea - iw*ih

	if union <= 0 {
		return 0
	}

	return iw * ih / union
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
