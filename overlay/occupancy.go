package overlay

import (
	"image"

	clipper "github.com/ctessum/go.clipper"
)

// occupancy tracks the screen regions already reserved by higher priority
// badges so lower priority labels can be pushed to a free position
type occupancy struct {
	reserved clipper.Paths
}

// newOccupancy returns an empty occupancy region
func newOccupancy() *occupancy {
	return &occupancy{}
}

// rectPath converts a rectangle to a closed clipper path
func rectPath(r image.Rectangle) clipper.Path {
	return clipper.Path{
		&clipper.IntPoint{X: clipper.CInt(r.Min.X), Y: clipper.CInt(r.Min.Y)},
		&clipper.IntPoint{X: clipper.CInt(r.Max.X), Y: clipper.CInt(r.Min.Y)},
		&clipper.IntPoint{X: clipper.CInt(r.Max.X), Y: clipper.CInt(r.Max.Y)},
		&clipper.IntPoint{X: clipper.CInt(r.Min.X), Y: clipper.CInt(r.Max.Y)},
	}
}

// overlaps reports whether the rectangle intersects any reserved region
func (o *occupancy) overlaps(r image.Rectangle) bool {

	if len(o.reserved) == 0 {
		return false
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(rectPath(r), clipper.PtSubject, true)
	c.AddPaths(o.reserved, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection,
		clipper.PftNonZero, clipper.PftNonZero)

	if !ok {
		// clipping failed, assume occupied so we fall through to the
		// next placement candidate
		return true
	}

	return len(solution) > 0
}

// reserve adds a rectangle to the occupied region
func (o *occupancy) reserve(r image.Rectangle) {
	o.reserved = append(o.reserved, rectPath(r))
}
