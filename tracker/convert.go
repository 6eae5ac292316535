package tracker

import (
	"time"

	"github.com/sitelens/go-hazardar/detect"
)

// Observation is a raw detection converted into the tracker's pixel space
// measurement form
type Observation struct {
	// ClassID is the hazard class of the detection
	ClassID int
	// Confidence of the detection in [0,1]
	Confidence float32
	// Measurement is the observed box in xyah pixel space
	Measurement Measurement
	// Timestamp of the frame the detection was computed against
	Timestamp time.Time
	// DetectorID of the backend that produced the detection
	DetectorID string
}

// ConvertDetections converts raw detections in normalized image space to
// tracker observations in pixel space for the given frame dimensions
func ConvertDetections(detections []detect.RawDetection, frameWidth,
	frameHeight int) []Observation {

	var observations []Observation

	fw := float32(frameWidth)
	fh := float32(frameHeight)

	for _, det := range detections {

		rect := NewRect(det.Box.X*fw, det.Box.Y*fh,
			det.Box.Width*fw, det.Box.Height*fh)

		// degenerate boxes cannot seed the filter state
		if rect.Width() <= 0 || rect.Height() <= 0 {
			continue
		}

		observations = append(observations, Observation{
			ClassID:     det.ClassID,
			Confidence:  det.Confidence,
			Measurement: Measurement(rect.GetXyah()),
			Timestamp:   det.FrameTimestamp,
			DetectorID:  det.DetectorID,
		})
	}

	return observations
}
