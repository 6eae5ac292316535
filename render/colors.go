package render

import (
	"image/color"

	"github.com/sitelens/go-hazardar/tracker"
)

var (
	// severityColors maps hazard severity to its overlay color, critical
	// hazards render red, major orange, minor yellow
	severityColors = map[tracker.Severity]color.RGBA{
		tracker.SeverityMinor:    {R: 255, G: 178, B: 29, A: 255},  // #FFB21D
		tracker.SeverityMajor:    {R: 255, G: 112, B: 31, A: 255},  // #FF701F
		tracker.SeverityCritical: {R: 255, G: 56, B: 56, A: 255},   // #FF3838
	}

	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 50, A: 255}
)

// SeverityColor returns the overlay color for the given hazard severity
func SeverityColor(s tracker.Severity) color.RGBA {

	clr, ok := severityColors[s]

	if !ok {
		return Yellow
	}

	return clr
}

// scaleColor multiplies the color channels by the primitive opacity,
// dimming instead of alpha blending keeps drawing single pass
func scaleColor(clr color.RGBA, opacity float32) color.RGBA {

	if opacity >= 1 {
		return clr
	}

	if opacity < 0 {
		opacity = 0
	}

	return color.RGBA{
		R: uint8(float32(clr.R) * opacity),
		G: uint8(float32(clr.G) * opacity),
		B: uint8(float32(clr.B) * opacity),
		A: clr.A,
	}
}
