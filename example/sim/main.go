package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sitelens/go-hazardar"
	"github.com/sitelens/go-hazardar/detect"
	"github.com/sitelens/go-hazardar/projector"
	"github.com/sitelens/go-hazardar/render"
	"github.com/sitelens/go-hazardar/telemetry"
	"github.com/sitelens/go-hazardar/tracker"
	"github.com/x448/float16"
	"gocv.io/x/gocv"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	classFile := flag.String("c", "../data/hazards.txt", "Hazard class definition file")
	outFile := flag.String("o", "sim-out.avi", "Annotated output video file")
	frames := flag.Int("n", 300, "Number of frames to simulate")
	tier := flag.Int("t", 1, "Device tier, 0=low, 1=mid, 2=high")

	flag.Parse()

	classes, err := tracker.LoadClassMap(*classFile)

	if err != nil {
		log.Fatal("Error loading hazard classes: ", err)
	}

	cfg := hazardar.DefaultConfig(hazardar.Tier(*tier))

	// a scripted detector stands in for the fast fallback runtime, a
	// pothole drifts left to right across the street scene
	fast := detect.NewScripted(detect.Profile{
		Backend:      detect.BackendFast,
		ID:           "sim-fast",
		CostEstimate: 30 * time.Millisecond,
	}, driftingHazard(0, 0.88))

	// the accurate backend runs the full tensor path, a synthetic
	// inference runtime hands back a half precision detection head
	accurate, err := detect.NewTensorDetector(detect.Profile{
		Backend:      detect.BackendAccurate,
		ID:           "sim-accurate",
		CostEstimate: 60 * time.Millisecond,
	}, &simInference{
		encode: detect.NewResizer(cfg.Intrinsics.Width,
			cfg.Intrinsics.Height, simInputSize, simInputSize),
		numClasses: classes.Len(),
		classID:    0,
		confidence: 0.95,
	}, detect.TensorDetectorConfig{
		InputWidth:    simInputSize,
		InputHeight:   simInputSize,
		SrcWidth:      cfg.Intrinsics.Width,
		SrcHeight:     cfg.Intrinsics.Height,
		NumClasses:    classes.Len(),
		ConfThreshold: 0.25,
		NMSThreshold:  0.45,
	})

	if err != nil {
		log.Fatal("Error creating tensor detector: ", err)
	}

	logger := logrus.New()

	engine, err := hazardar.NewEngine(cfg, classes,
		map[detect.Backend]detect.Detector{
			detect.BackendFast:     fast,
			detect.BackendAccurate: accurate,
		},
		hazardar.WithTelemetry(telemetry.NewLogSink(logger, 30)),
	)

	if err != nil {
		log.Fatal("Error creating engine: ", err)
	}

	defer engine.Close()

	writer, err := gocv.VideoWriterFile(*outFile, "MJPG", 30,
		cfg.Intrinsics.Width, cfg.Intrinsics.Height, true)

	if err != nil {
		log.Fatal("Error opening video writer: ", err)
	}

	defer writer.Close()

	img := gocv.NewMatWithSize(cfg.Intrinsics.Height, cfg.Intrinsics.Width,
		gocv.MatTypeCV8UC3)
	defer img.Close()

	font := render.DefaultFont()
	start := time.Now()

	for i := 0; i < *frames; i++ {

		// simulate a slow walk forward
		pose := projector.Pose{
			Position: projector.Vec3{
				Z: float32(i) * 0.03,
			},
			Orientation: projector.IdentityQuaternion(),
		}

		out, err := engine.ProcessFrame(hazardar.Frame{
			Image:     &img,
			Pose:      pose,
			Timestamp: start.Add(time.Duration(i) * 33 * time.Millisecond),
			Quality:   projector.QualityNormal,
		})

		if err != nil {
			log.Fatal("Error processing frame: ", err)
		}

		img.SetTo(gocv.NewScalar(40, 40, 40, 0))
		render.Primitives(&img, out.Primitives, font, 2)
		writer.Write(img)

		// real frame sources pace themselves, the simulation runs flat
		// out and only sleeps when a detection is in flight
		time.Sleep(time.Millisecond)
	}

	log.Printf("simulated %d frames, %d tracks live, wrote %s",
		*frames, len(engine.Tracks()), *outFile)
}

// simInputSize is the synthetic model's input tensor dimension
const simInputSize = 640

// simInference stands in for a platform inference runtime.  It
// synthesizes a half precision detection head tensor encoding a single
// hazard drifting left to right across the street scene
type simInference struct {
	encode     *detect.Resizer
	numClasses int
	classID    int
	confidence float32
	step       int
}

// Infer returns one detection head row per invocation, advancing the
// hazard position each call
func (s *simInference) Infer(ctx context.Context,
	input gocv.Mat) ([]uint16, error) {

	select {
	case <-time.After(25 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	i := s.step

	if s.step < 59 {
		s.step++
	}

	// hazard box mapped from the street scene into model input space
	box := s.encode.LetterBox(detect.Box{
		X:      0.1 + float32(i)*0.01,
		Y:      0.55,
		Width:  0.12,
		Height: 0.10,
	})

	// row layout is center x, center y, width, height, objectness,
	// then per class scores
	row := make([]float32, 5+s.numClasses)
	row[0] = box.X + box.Width/2
	row[1] = box.Y + box.Height/2
	row[2] = box.Width
	row[3] = box.Height
	row[4] = s.confidence
	row[5+s.classID] = 1.0

	out := make([]uint16, len(row))

	for j, v := range row {
		out[j] = float16.Fromfloat32(v).Bits()
	}

	return out, nil
}

// Close frees the encoding resizer
func (s *simInference) Close() error {
	return s.encode.Close()
}

// driftingHazard scripts a single hazard of the given class moving left to
// right across the frame with slight box jitter
func driftingHazard(classID int, confidence float32) []detect.ScriptedCycle {

	cycles := make([]detect.ScriptedCycle, 60)

	for i := range cycles {

		x := 0.1 + float32(i)*0.01

		cycles[i] = detect.ScriptedCycle{
			Detections: []detect.RawDetection{
				{
					ClassID:    classID,
					Confidence: confidence,
					Box: detect.Box{
						X:      x,
						Y:      0.55,
						Width:  0.12,
						Height: 0.10,
					},
				},
			},
			Latency: 25 * time.Millisecond,
		}
	}

	return cycles
}
