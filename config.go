package hazardar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sitelens/go-hazardar/projector"
)

// ErrConfigInvalid indicates an out-of-range configuration parameter.
// Configuration errors are fatal at startup, the engine refuses to run
// with an invalid tuning rather than silently clamping
var ErrConfigInvalid = errors.New("invalid configuration")

// Tier is the device capability tier selecting detection cadence defaults
type Tier int

const (
	// TierLow covers entry level devices
	TierLow Tier = 0
	// TierMid covers mainstream devices
	TierMid Tier = 1
	// TierHigh covers flagship devices with dedicated accelerators
	TierHigh Tier = 2
)

// Config holds every field-tunable engine parameter.  Gating distance and
// decay rate defaults are calibration starting points, not derived
// constants, deployments tune them in the field
type Config struct {
	// DetectionIntervalMin and DetectionIntervalMax clamp the adaptive
	// detection interval in frames
	DetectionIntervalMin int `json:"detectionIntervalMin"`
	DetectionIntervalMax int `json:"detectionIntervalMax"`
	// ConfidenceFloor is the track score below which a track expires
	ConfidenceFloor float32 `json:"confidenceFloor"`
	// DecayRate is the per second confidence retention while coasting
	DecayRate float32 `json:"decayRate"`
	// MaxCoastFrames is the maximum predict-only frames before expiry
	MaxCoastFrames int `json:"maxCoastFrames"`
	// MaxRenderedPrimitives caps overlay primitives per frame
	MaxRenderedPrimitives int `json:"maxRenderedPrimitives"`
	// EffectiveRangeMeters culls hazards beyond this distance
	EffectiveRangeMeters float32 `json:"effectiveRangeMeters"`
	// GatingDistance is the association gate, squared Mahalanobis
	GatingDistance float32 `json:"gatingDistance"`
	// MinConfidence is the spawn threshold for new tracks
	MinConfidence float32 `json:"minConfidence"`
	// MinRenderConfidence culls tracks from rendering below this score
	MinRenderConfidence float32 `json:"minRenderConfidence"`
	// DetectionBudgetMs is the per-invocation latency budget and timeout
	DetectionBudgetMs int `json:"detectionBudgetMs"`
	// Tier selects device tier cadence defaults
	Tier Tier `json:"tier"`
	// Intrinsics is the pinhole camera model of the frame source
	Intrinsics projector.Intrinsics `json:"intrinsics"`
}

// DefaultConfig returns engine defaults for the given device tier
func DefaultConfig(tier Tier) Config {

	cfg := Config{
		ConfidenceFloor:       0.05,
		DecayRate:             0.70,
		MaxCoastFrames:        60,
		MaxRenderedPrimitives: 15,
		EffectiveRangeMeters:  25,
		GatingDistance:        50,
		MinConfidence:         0.30,
		MinRenderConfidence:   0.25,
		DetectionBudgetMs:     200,
		Tier:                  tier,
		Intrinsics: projector.Intrinsics{
			FocalX:  1000,
			FocalY:  1000,
			CenterX: 640,
			CenterY: 360,
			Width:   1280,
			Height:  720,
		},
	}

	switch tier {
	case TierLow:
		cfg.DetectionIntervalMin = 12
		cfg.DetectionIntervalMax = 30
		cfg.DetectionBudgetMs = 350
	case TierHigh:
		cfg.DetectionIntervalMin = 3
		cfg.DetectionIntervalMax = 12
		cfg.DetectionBudgetMs = 120
	default:
		cfg.DetectionIntervalMin = 6
		cfg.DetectionIntervalMax = 20
	}

	return cfg
}

// LoadConfig reads a JSON configuration file and validates it
func LoadConfig(file string) (Config, error) {

	data, err := os.ReadFile(file)

	if err != nil {
		return Config{}, fmt.Errorf("error reading config: %w", err)
	}

	// unknown fields are rejected so typos fail at startup
	cfg := DefaultConfig(TierMid)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every parameter range, returning ErrConfigInvalid on
// the first violation
func (c *Config) Validate() error {

	if c.DetectionIntervalMin < 1 {
		return fmt.Errorf("%w: detectionIntervalMin %d must be >= 1",
			ErrConfigInvalid, c.DetectionIntervalMin)
	}

	if c.DetectionIntervalMax < c.DetectionIntervalMin {
		return fmt.Errorf("%w: detectionIntervalMax %d below detectionIntervalMin %d",
			ErrConfigInvalid, c.DetectionIntervalMax, c.DetectionIntervalMin)
	}

	if c.ConfidenceFloor < 0 || c.ConfidenceFloor >= 1 {
		return fmt.Errorf("%w: confidenceFloor %f outside [0,1)",
			ErrConfigInvalid, c.ConfidenceFloor)
	}

	if c.DecayRate <= 0 || c.DecayRate > 1 {
		return fmt.Errorf("%w: decayRate %f outside (0,1]",
			ErrConfigInvalid, c.DecayRate)
	}

	if c.MaxCoastFrames < 1 {
		return fmt.Errorf("%w: maxCoastFrames %d must be >= 1",
			ErrConfigInvalid, c.MaxCoastFrames)
	}

	if c.MaxRenderedPrimitives < 1 {
		return fmt.Errorf("%w: maxRenderedPrimitives %d must be >= 1",
			ErrConfigInvalid, c.MaxRenderedPrimitives)
	}

	if c.EffectiveRangeMeters <= 0 {
		return fmt.Errorf("%w: effectiveRangeMeters %f must be > 0",
			ErrConfigInvalid, c.EffectiveRangeMeters)
	}

	if c.GatingDistance <= 0 {
		return fmt.Errorf("%w: gatingDistance %f must be > 0",
			ErrConfigInvalid, c.GatingDistance)
	}

	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: minConfidence %f outside [0,1]",
			ErrConfigInvalid, c.MinConfidence)
	}

	if c.MinRenderConfidence < 0 || c.MinRenderConfidence > 1 {
		return fmt.Errorf("%w: minRenderConfidence %f outside [0,1]",
			ErrConfigInvalid, c.MinRenderConfidence)
	}

	if c.DetectionBudgetMs < 1 {
		return fmt.Errorf("%w: detectionBudgetMs %d must be >= 1",
			ErrConfigInvalid, c.DetectionBudgetMs)
	}

	if c.Intrinsics.FocalX <= 0 || c.Intrinsics.FocalY <= 0 {
		return fmt.Errorf("%w: camera focal length must be > 0",
			ErrConfigInvalid)
	}

	if c.Intrinsics.Width < 1 || c.Intrinsics.Height < 1 {
		return fmt.Errorf("%w: camera frame size must be >= 1x1",
			ErrConfigInvalid)
	}

	return nil
}

// DetectionBudget returns the detection budget as a duration
func (c *Config) DetectionBudget() time.Duration {
	return time.Duration(c.DetectionBudgetMs) * time.Millisecond
}
