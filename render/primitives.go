package render

import (
	"gocv.io/x/gocv"
	"image"
	"image/color"
	"sort"

	"github.com/sitelens/go-hazardar/overlay"
)

// badgeLabel holds a precalculated badge so text is rendered after all
// boxes and stays the top most layer on the image
type badgeLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// Primitives renders the overlay draw list onto the image.  Primitives
// are drawn in z-order with lower z first, so higher priority hazards end
// up on top
func Primitives(img *gocv.Mat, primitives []overlay.OverlayPrimitive,
	font Font, lineThickness int) {

	// draw lowest z first
	ordered := make([]overlay.OverlayPrimitive, len(primitives))
	copy(ordered, primitives)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ZOrder < ordered[j].ZOrder
	})

	// keep a record of all badge labels for later rendering
	badges := make([]badgeLabel, 0, len(ordered))

	for _, p := range ordered {

		useClr := scaleColor(SeverityColor(p.Severity), p.Opacity)

		gocv.Rectangle(img, p.Box, useClr, lineThickness)

		if p.Label == "" {
			continue
		}

		textSize := gocv.GetTextSize(p.Label, font.Face, font.Scale,
			font.Thickness)

		// center the text inside the reserved badge bounds
		textPos := image.Pt(
			p.BadgeBounds.Min.X+(p.BadgeBounds.Dx()-textSize.X)/2,
			p.BadgeBounds.Min.Y+(p.BadgeBounds.Dy()+textSize.Y)/2,
		)

		badges = append(badges, badgeLabel{
			rect:    p.BadgeBounds,
			clr:     useClr,
			text:    p.Label,
			textPos: textPos,
		})
	}

	// draw all precalculated badges so the text doesn't get overlapped
	// by box lines of later primitives
	for _, b := range badges {
		// draw box text gets written on
		gocv.Rectangle(img, b.rect, b.clr, -1)

		// Draw the label over box
		gocv.PutTextWithParams(img, b.text, b.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
