package hazardar

import (
	"errors"
	"fmt"
	"time"

	"github.com/sitelens/go-hazardar/detect"
	"github.com/sitelens/go-hazardar/overlay"
	"github.com/sitelens/go-hazardar/projector"
	"github.com/sitelens/go-hazardar/sched"
	"github.com/sitelens/go-hazardar/telemetry"
	"github.com/sitelens/go-hazardar/tracker"
)

// poseHistorySize is the number of past frame poses kept for associating
// late detection results with the pose of the frame they were computed on
const poseHistorySize = 90

// volatilityAlpha is the EWMA smoothing factor for the scene volatility
// heuristic
const volatilityAlpha = float32(0.2)

// poseSample pairs a frame timestamp with the device pose at capture time
type poseSample struct {
	ts   time.Time
	pose projector.Pose
}

// Option configures optional Engine behaviour
type Option func(*Engine)

// WithTelemetry sets the telemetry sink receiving frame and detection
// measurements
func WithTelemetry(sink telemetry.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithSyncDetection runs detector invocations inline on the frame
// goroutine instead of through the background dispatcher.  Results are
// still applied on the following frame so the pipeline behaves the same
// either way.  Intended for deterministic testing and offline replay
func WithSyncDetection() Option {
	return func(e *Engine) {
		e.syncDetect = true
	}
}

// Engine is the per-frame hazard pipeline: it consumes camera frames and
// device poses, schedules detector invocations, maintains hazard tracks
// across frames, and emits an ordered overlay draw list.  ProcessFrame
// must be called from a single goroutine
type Engine struct {
	cfg Config

	tracker    *tracker.HazardTracker
	projector  *projector.Projector
	layout     *overlay.Layout
	scheduler  *sched.Scheduler
	dispatcher *detect.Dispatcher
	detectors  map[detect.Backend]detect.Detector
	classes    *tracker.ClassMap
	sink       telemetry.Sink

	// syncDetect runs detections inline, pendingSync holds the result
	// until the next frame collects it
	syncDetect  bool
	pendingSync *detect.Result

	// poses is a bounded history of recent frame poses
	poses []poseSample
	// prevPose is the pose of the previous processed frame
	prevPose    projector.Pose
	haveForPose bool

	// volatility is the smoothed scene volatility estimate in [0,1]
	volatility float32

	// degradedActive tracks degraded signal transitions for telemetry
	degradedActive bool
}

// NewEngine validates the configuration and builds the pipeline.  At
// least one detector backend must be supplied, a missing backend tier is
// covered by the other.  Configuration errors are fatal, the engine never
// starts with out-of-range tuning
func NewEngine(cfg Config, classes *tracker.ClassMap,
	detectors map[detect.Backend]detect.Detector,
	opts ...Option) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(detectors) == 0 {
		return nil, fmt.Errorf("%w: at least one detector backend is required",
			ErrConfigInvalid)
	}

	if classes == nil {
		return nil, fmt.Errorf("%w: hazard class map is required",
			ErrConfigInvalid)
	}

	trkCfg := tracker.DefaultConfig()
	trkCfg.GatingDistance = cfg.GatingDistance
	trkCfg.MinConfidence = cfg.MinConfidence
	trkCfg.ConfidenceFloor = cfg.ConfidenceFloor
	trkCfg.DecayRate = cfg.DecayRate
	trkCfg.MaxCoastFrames = cfg.MaxCoastFrames

	schCfg := sched.DefaultConfig()
	schCfg.IntervalMin = cfg.DetectionIntervalMin
	schCfg.IntervalMax = cfg.DetectionIntervalMax
	schCfg.LatencyBudget = cfg.DetectionBudget()

	ovlCfg := overlay.DefaultConfig()
	ovlCfg.MaxRenderedPrimitives = cfg.MaxRenderedPrimitives
	ovlCfg.EffectiveRangeMeters = cfg.EffectiveRangeMeters
	ovlCfg.MinRenderConfidence = cfg.MinRenderConfidence

	e := &Engine{
		cfg:        cfg,
		tracker:    tracker.NewHazardTracker(trkCfg, classes),
		projector:  projector.NewProjector(cfg.Intrinsics, classes),
		layout:     overlay.NewLayout(ovlCfg),
		scheduler:  sched.New(schCfg),
		dispatcher: detect.NewDispatcher(),
		detectors:  detectors,
		classes:    classes,
		sink:       telemetry.NopSink{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// ProcessFrame runs one full pipeline cycle for the given frame and
// returns the overlay draw list.  A failed or absent detection cycle is
// never a frame error, tracks coast on prediction until results return.
// The returned output is rebuilt every call, callers must not retain
// references across frames
func (e *Engine) ProcessFrame(frame Frame) (FrameOutput, error) {

	start := time.Now()

	e.recordPose(frame.Timestamp, frame.Pose)
	e.updateVolatility(frame.Pose)

	// apply any completed detection cycle
	res := e.collectResult()

	var observations []tracker.Observation
	detectionRan := false

	if res != nil {

		e.sink.RecordDetection(telemetry.DetectionStats{
			Backend:    res.Backend.String(),
			Latency:    res.Latency,
			Detections: len(res.Detections),
			Failed:     res.Err != nil,
		})

		e.scheduler.RecordResult(res, e.volatility,
			e.tracker.MeanConfidence(), frame.Timestamp)

		// a failed cycle contributes no observations, tracks coast
		if res.Err == nil {
			observations = tracker.ConvertDetections(res.Detections,
				e.cfg.Intrinsics.Width, e.cfg.Intrinsics.Height)
			detectionRan = true
		}
	}

	stats, err := e.tracker.Step(frame.Timestamp, observations, detectionRan)

	if err != nil {
		return FrameOutput{}, fmt.Errorf("tracker step failed: %w", err)
	}

	// fold the association churn into the volatility estimate, a low
	// reassociation rate on a busy scene means the scene is changing
	if detectionRan && stats.Observations > 0 {
		churn := 1.0 - stats.ReassociationRate()
		e.volatility += volatilityAlpha * (churn - e.volatility)
	}

	// anchor freshly observed tracks in world space using the pose of
	// the frame the detections were computed against
	if detectionRan {
		obsPose := e.poseAt(res.FrameTimestamp, frame.Pose)

		for _, t := range e.tracker.Tracks() {
			if t.FramesSinceObservation() == 0 {
				e.projector.Observe(t, obsPose)
			}
		}
	}

	// schedule the next detection cycle
	decision := e.scheduler.Decide(e.busy())

	if decision.RunDetection {
		e.dispatch(frame, decision.Backend)
	}

	// project confirmed and coasting tracks to screen space
	visible := make([]*tracker.HazardTrack, 0, e.tracker.Len())
	byID := make(map[int64]*tracker.HazardTrack, e.tracker.Len())

	for _, t := range e.tracker.Tracks() {
		if t.State() == tracker.Confirmed || t.State() == tracker.Coasting {
			visible = append(visible, t)
			byID[t.TrackID()] = t
		}
	}

	projections := e.projector.Project(visible, frame.Pose, frame.Quality)

	candidates := make([]overlay.Candidate, 0, len(projections))

	for _, p := range projections {

		if !p.OnScreen {
			continue
		}

		t := byID[p.TrackID]

		candidates = append(candidates, overlay.Candidate{
			TrackID:      p.TrackID,
			Rect:         p.Rect,
			Severity:     t.Severity(),
			Confidence:   t.Confidence(),
			Distance:     p.Distance,
			LastObserved: t.LastObserved(),
			Label:        e.classes.Info(t.ClassID()).Label,
			Frozen:       p.Frozen,
		})
	}

	level := e.scheduler.Degraded()
	primitives := e.layout.Build(candidates, overlayMode(level))

	e.recordDegraded(level)

	out := FrameOutput{
		Primitives:    primitives,
		Degraded:      level != sched.DegradedNone,
		DegradedLevel: level,
		Stats: telemetry.FrameStats{
			Timestamp:    frame.Timestamp,
			FrameTime:    time.Since(start),
			ActiveTracks: stats.ActiveTracks,
			Primitives:   len(primitives),
			Degraded:     level != sched.DegradedNone,
		},
	}

	e.sink.RecordFrame(out.Stats)

	return out, nil
}

// Tracks returns snapshots of all live hazard tracks
func (e *Engine) Tracks() []*tracker.HazardTrack {
	return e.tracker.Tracks()
}

// Scheduler exposes the adaptive scheduler for inspection
func (e *Engine) Scheduler() *sched.Scheduler {
	return e.scheduler
}

// Reset clears all tracks and pending detection state.  Track IDs keep
// incrementing across resets
func (e *Engine) Reset() {
	e.tracker.Reset()
	e.pendingSync = nil
	e.poses = nil
	e.haveForPose = false
	e.volatility = 0

	// drain a result computed before the reset
	e.dispatcher.Collect()
}

// Close stops the background dispatcher and closes any detectors that
// hold releasable resources
func (e *Engine) Close() error {

	e.dispatcher.Close()

	var errs []error

	for _, d := range e.detectors {
		if c, ok := d.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// collectResult returns a completed detection result or nil
func (e *Engine) collectResult() *detect.Result {

	if e.syncDetect {
		res := e.pendingSync
		e.pendingSync = nil
		return res
	}

	return e.dispatcher.Collect()
}

// busy reports whether a detection invocation is already in flight
func (e *Engine) busy() bool {

	if e.syncDetect {
		return e.pendingSync != nil
	}

	return e.dispatcher.Busy()
}

// dispatch submits one detection invocation on the chosen backend.  A
// missing backend tier falls back to whichever detector is configured
func (e *Engine) dispatch(frame Frame, backend detect.Backend) {

	det, ok := e.detectors[backend]

	if !ok {
		for _, d := range e.detectors {
			det = d
			break
		}
	}

	job := detect.Job{
		Img:       frame.Image,
		Timestamp: frame.Timestamp,
		Detector:  det,
		Timeout:   e.cfg.DetectionBudget(),
	}

	if e.syncDetect {
		res := detect.Run(job)
		e.pendingSync = &res
		return
	}

	e.dispatcher.TrySubmit(job)
}

// recordPose appends the frame pose to the bounded history
func (e *Engine) recordPose(ts time.Time, pose projector.Pose) {

	e.poses = append(e.poses, poseSample{ts: ts, pose: pose})

	if len(e.poses) > poseHistorySize {
		e.poses = e.poses[1:]
	}
}

// poseAt returns the recorded pose nearest to ts, falling back to the
// current frame pose when the history does not cover it
func (e *Engine) poseAt(ts time.Time, fallback projector.Pose) projector.Pose {

	best := fallback
	bestDiff := time.Duration(-1)

	for i := range e.poses {

		diff := e.poses[i].ts.Sub(ts)

		if diff < 0 {
			diff = -diff
		}

		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			best = e.poses[i].pose
		}
	}

	return best
}

// updateVolatility folds the frame-to-frame pose delta into the smoothed
// scene volatility estimate
func (e *Engine) updateVolatility(pose projector.Pose) {

	if !e.haveForPose {
		e.prevPose = pose
		e.haveForPose = true
		return
	}

	trans, angle := pose.Delta(e.prevPose)
	e.prevPose = pose

	// normalise against fast walking motion, roughly 0.1m and 0.2rad
	// between frames at 30fps
	instant := trans/0.1 + angle/0.2

	if instant > 1 {
		instant = 1
	}

	e.volatility += volatilityAlpha * (instant - e.volatility)
}

// recordDegraded notifies the telemetry sink on degraded transitions
func (e *Engine) recordDegraded(level sched.DegradedLevel) {

	active := level != sched.DegradedNone

	if active != e.degradedActive {
		e.degradedActive = active
		e.sink.RecordDegraded(active)
	}
}

// overlayMode maps the scheduler degraded ladder onto overlay fidelity
func overlayMode(level sched.DegradedLevel) overlay.Mode {

	switch level {
	case sched.DegradedReduced:
		return overlay.ModeReduced
	case sched.DegradedMinimal:
		return overlay.ModeMinimal
	}

	return overlay.ModeFull
}
