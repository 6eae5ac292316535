package detect

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"time"

	"gocv.io/x/gocv"
)

// InferenceBackend runs a detection model over a preprocessed input image
// and returns the flat detection head tensor in half precision.
// Implementations wrap the platform inference runtime and own its model
// handle
type InferenceBackend interface {
	// Infer runs the model over the letterboxed input image
	Infer(ctx context.Context, input gocv.Mat) ([]uint16, error)
}

// padColor fills the letterbox borders
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// TensorDetector adapts a raw inference backend into a Detector.  It owns
// the backend specific preprocessing and postprocessing: letterbox resize
// to the model input size, half precision tensor decode, detection head
// decode with NMS, and unletterboxing the boxes back into source image
// space
type TensorDetector struct {
	profile Profile
	backend InferenceBackend
	resizer *Resizer
	// input is the scratch letterboxed model input, reused between
	// invocations.  The dispatcher runs one invocation at a time
	input      gocv.Mat
	numClasses int
	confThresh float32
	nmsThresh  float32
}

// TensorDetectorConfig describes the model a TensorDetector wraps
type TensorDetectorConfig struct {
	// InputWidth and InputHeight are the model input tensor dimensions
	InputWidth  int
	InputHeight int
	// SrcWidth and SrcHeight are the camera frame dimensions
	SrcWidth  int
	SrcHeight int
	// NumClasses is the number of hazard classes in the detection head
	NumClasses int
	// ConfThreshold drops detection head rows below this score
	ConfThreshold float32
	// NMSThreshold is the IoU threshold for non-maximum suppression
	NMSThreshold float32
}

// NewTensorDetector creates a detector over the given inference backend
func NewTensorDetector(profile Profile, backend InferenceBackend,
	cfg TensorDetectorConfig) (*TensorDetector, error) {

	if cfg.InputWidth < 1 || cfg.InputHeight < 1 ||
		cfg.SrcWidth < 1 || cfg.SrcHeight < 1 {
		return nil, fmt.Errorf("invalid tensor detector dimensions")
	}

	if cfg.NumClasses < 1 {
		return nil, fmt.Errorf("invalid tensor detector class count")
	}

	return &TensorDetector{
		profile: profile,
		backend: backend,
		resizer: NewResizer(cfg.SrcWidth, cfg.SrcHeight,
			cfg.InputWidth, cfg.InputHeight),
		input:      gocv.NewMat(),
		numClasses: cfg.NumClasses,
		confThresh: cfg.ConfThreshold,
		nmsThresh:  cfg.NMSThreshold,
	}, nil
}

// Detect preprocesses the frame, runs inference, and decodes the
// detection head back into source image space
func (t *TensorDetector) Detect(ctx context.Context, img *gocv.Mat,
	ts time.Time) ([]RawDetection, error) {

	t.resizer.LetterBoxResize(*img, &t.input, padColor)

	tensor, err := t.backend.Infer(ctx, t.input)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailure, err)
	}

	detections := DecodeBoxes(DecodeF16(tensor), t.numClasses,
		t.confThresh, t.nmsThresh, ts, t.profile.ID)

	// decoded boxes are in model input space, map them back onto the
	// source frame
	for i := range detections {
		detections[i].Box = t.resizer.UnletterBox(detections[i].Box)
	}

	return detections, nil
}

// Profile returns the backend's declared cost/accuracy profile
func (t *TensorDetector) Profile() Profile {
	return t.profile
}

// Close frees the scratch Mats and closes the inference backend if it
// holds resources
func (t *TensorDetector) Close() error {

	err := t.resizer.Close()

	if errMat := t.input.Close(); err == nil {
		err = errMat
	}

	if closer, ok := t.backend.(io.Closer); ok {
		if errBackend := closer.Close(); err == nil {
			err = errBackend
		}
	}

	return err
}
