package detect

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Resizer handles scaling camera frames down to a detector's input tensor
// size.  Backends share one resizer per source resolution so the scratch
// Mat is reused between invocations
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	// letterbox parameters used in scaling
	xPad  int
	yPad  int
	scale float32
	// resize dimensions
	resizeW int
	resizeH int
}

// NewResizer returns a resizer used for scaling an image to the needed
// dimensions for detector input tensor size
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {
	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		tempMat:    gocv.NewMat(),
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// preCalc the scaling factors for source and destination Mats
func (r *Resizer) preCalc() {

	r.resizeW = r.destWidth
	r.resizeH = r.destHeight

	scaleW := float32(r.destWidth) / float32(r.srcWidth)
	scaleH := float32(r.destHeight) / float32(r.srcHeight)
	r.scale = scaleH

	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeH = int(float32(r.srcHeight) * r.scale)
	} else {
		r.resizeW = int(float32(r.srcWidth) * r.scale)
	}

	r.yPad = (r.destHeight - r.resizeH) / 2 // padding height / 2
	r.xPad = (r.destWidth - r.resizeW) / 2  // padding width / 2
}

// LetterBoxResize resizes the input image to the dimensions needed for the
// input tensor size whilst maintaining image aspect.  Color is that used
// for letter box padding
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, color color.RGBA) {

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationArea)

	gocv.CopyMakeBorder(r.tempMat, dest, r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad, gocv.BorderConstant, color)
}

// UnletterBox converts a normalized box in tensor space back to a
// normalized box in the source image space, undoing the letterbox padding
func (r *Resizer) UnletterBox(box Box) Box {

	sx := float32(r.destWidth) / (r.scale * float32(r.srcWidth))
	sy := float32(r.destHeight) / (r.scale * float32(r.srcHeight))

	return Box{
		X:      clampNorm((box.X - float32(r.xPad)/float32(r.destWidth)) * sx),
		Y:      clampNorm((box.Y - float32(r.yPad)/float32(r.destHeight)) * sy),
		Width:  clampNorm(box.Width * sx),
		Height: clampNorm(box.Height * sy),
	}
}

// LetterBox converts a normalized box in source image space to a
// normalized box in tensor space, the inverse of UnletterBox
func (r *Resizer) LetterBox(box Box) Box {

	sx := float32(r.destWidth) / (r.scale * float32(r.srcWidth))
	sy := float32(r.destHeight) / (r.scale * float32(r.srcHeight))

	return Box{
		X:      clampNorm(box.X/sx + float32(r.xPad)/float32(r.destWidth)),
		Y:      clampNorm(box.Y/sy + float32(r.yPad)/float32(r.destHeight)),
		Width:  clampNorm(box.Width / sx),
		Height: clampNorm(box.Height / sy),
	}
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() int {
	return r.yPad
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}
