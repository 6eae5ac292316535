package tracker

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// TrackState represents the lifecycle state of a tracked hazard
type TrackState int

const (
	// Tentative is a newly spawned track awaiting confirmation
	Tentative TrackState = 0
	// Confirmed is a track with the minimum number of associated
	// observations
	Confirmed TrackState = 1
	// Coasting is a confirmed track currently predicted without a fresh
	// detection
	Coasting TrackState = 2
	// Expired is a track that decayed below the confidence floor or
	// exceeded the coast window and is about to be removed
	Expired TrackState = 3
)

// String returns a readable name for the track state
func (s TrackState) String() string {
	switch s {
	case Tentative:
		return "tentative"
	case Confirmed:
		return "confirmed"
	case Coasting:
		return "coasting"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// HazardTrack represents a single tracked hazard.  It is owned exclusively
// by the HazardTracker, external readers only ever see copies
type HazardTrack struct {
	// kalmanFilter used for tracking
	kalmanFilter *KalmanFilter
	// mean state vector
	mean StateMean
	// covariance matrix
	covariance StateCov
	// current lifecycle state of the track
	state TrackState
	// trackID is unique and monotonic for the tracker's lifetime
	trackID int64
	// classID is the detector class the track was spawned from
	classID int
	// severity class derived from classID at spawn time
	severity Severity
	// confidence score in [0,1], decayed between observations and boosted
	// on matched detections
	confidence float32
	// detectorID of the backend that produced the last matched detection
	detectorID string
	// lastObserved is the frame timestamp of the last matched detection
	lastObserved time.Time
	// framesSinceObservation counts predict-only frames since the last
	// association
	framesSinceObservation int
	// observations is the total number of associated detections
	observations int
	// confirmStreak counts consecutive detection cycles that matched the
	// track with a confident detection, the confirmation criterion
	confirmStreak int
	// history of observed boxes for size smoothing
	history *BoxHistory
}

// newHazardTrack spawns a tentative track from an unmatched measurement
func newHazardTrack(trackID int64, classID int, severity Severity,
	measurement Measurement, confidence float32, detectorID string,
	observed time.Time, kf *KalmanFilter, historySize int) *HazardTrack {

	t := &HazardTrack{
		kalmanFilter: kf,
		mean:         make(StateMean, 8),
		covariance:   StateCov{mat.NewDense(8, 8, nil)},
		state:        Tentative,
		trackID:      trackID,
		classID:      classID,
		severity:     severity,
		confidence:   confidence,
		detectorID:   detectorID,
		lastObserved: observed,
		observations: 1,
		// spawning already requires the minimum confidence
		confirmStreak: 1,
		history:       NewBoxHistory(historySize),
	}

	t.kalmanFilter.Initiate(t.mean, &t.covariance, measurement)
	t.history.Add(measurementRect(measurement))

	return t
}

// TrackID returns the unique ID for the track
func (t *HazardTrack) TrackID() int64 {
	return t.trackID
}

// ClassID returns the detector class the track was spawned from
func (t *HazardTrack) ClassID() int {
	return t.classID
}

// Severity returns the severity class of the track
func (t *HazardTrack) Severity() Severity {
	return t.severity
}

// State returns the current lifecycle state of the track
func (t *HazardTrack) State() TrackState {
	return t.state
}

// Confidence returns the current confidence score
func (t *HazardTrack) Confidence() float32 {
	return t.confidence
}

// LastObserved returns the frame timestamp of the last matched detection
func (t *HazardTrack) LastObserved() time.Time {
	return t.lastObserved
}

// FramesSinceObservation returns the number of predict-only frames since
// the last association
func (t *HazardTrack) FramesSinceObservation() int {
	return t.framesSinceObservation
}

// Observations returns the total number of associated detections
func (t *HazardTrack) Observations() int {
	return t.observations
}

// DetectorID returns the backend that produced the last matched detection
func (t *HazardTrack) DetectorID() string {
	return t.detectorID
}

// Position returns the estimated center position in pixel space
func (t *HazardTrack) Position() (float32, float32) {
	return t.mean[0], t.mean[1]
}

// Velocity returns the estimated center velocity in pixels per second
func (t *HazardTrack) Velocity() (float32, float32) {
	return t.mean[4], t.mean[5]
}

// PositionVariance returns the filter variance of the center position
func (t *HazardTrack) PositionVariance() (float32, float32) {
	return t.kalmanFilter.PositionVariance(&t.covariance)
}

// Rect returns the estimated bounding box, with width and height smoothed
// over the observation history
func (t *HazardTrack) Rect() Rect {

	w := t.mean[2] * t.mean[3]
	h := t.mean[3]

	if t.history.Len() > 1 {
		w, h = t.history.SmoothedSize()
	}

	return NewRect(t.mean[0]-w/2, t.mean[1]-h/2, w, h)
}

// predict advances the track state by dt seconds using the motion model
func (t *HazardTrack) predict(dt float32) {
	t.kalmanFilter.Predict(t.mean, &t.covariance, dt)
}

// gatingDistance returns the squared Mahalanobis distance to a measurement
// aged by age seconds
func (t *HazardTrack) gatingDistance(measurement Measurement,
	age float32) (float32, error) {

	return t.kalmanFilter.GatingDistance(t.mean, &t.covariance, measurement, age)
}

// update applies an associated measurement to the track
func (t *HazardTrack) update(measurement Measurement, detConfidence float32,
	detectorID string, observed time.Time, minObservations int,
	minConfidence float32) error {

	err := t.kalmanFilter.Update(t.mean, &t.covariance, measurement)

	if err != nil {
		return fmt.Errorf("error updating track %d: %w", t.trackID, err)
	}

	t.history.Add(measurementRect(measurement))

	t.framesSinceObservation = 0
	t.observations++
	t.detectorID = detectorID

	if observed.After(t.lastObserved) {
		t.lastObserved = observed
	}

	// boost confidence towards 1, weighted by the detection confidence
	t.confidence += (1 - t.confidence) * detConfidence

	if t.confidence > 1 {
		t.confidence = 1
	}

	// only confident detections count toward confirmation, a weak match
	// still updates the filter but breaks the streak
	if detConfidence >= minConfidence {
		t.confirmStreak++
	} else {
		t.confirmStreak = 0
	}

	// promote once enough consecutive confident detection cycles matched,
	// a coasting track that re-associates returns to confirmed
	if t.state == Tentative && t.confirmStreak >= minObservations {
		t.state = Confirmed
	} else if t.state == Coasting {
		t.state = Confirmed
	}

	return nil
}

// coast records a cycle with no association, decaying the confidence
// score exponentially over the elapsed time.  A detection cycle that ran
// without matching the track breaks its confirmation streak, predict-only
// frames between detection cycles do not
func (t *HazardTrack) coast(dt float32, decayRate float32,
	detectionRan bool) {

	t.framesSinceObservation++

	if detectionRan {
		t.confirmStreak = 0
	}

	if dt > 0 {
		t.confidence *= float32(math.Pow(float64(decayRate), float64(dt)))
	}

	if t.state == Confirmed {
		t.state = Coasting
	}
}

// markExpired transitions the track to the terminal state
func (t *HazardTrack) markExpired() {
	t.state = Expired
}

// Snapshot returns an immutable deep copy of the track for reader layers
func (t *HazardTrack) Snapshot() *HazardTrack {

	c := &HazardTrack{
		kalmanFilter:           t.kalmanFilter,
		mean:                   make(StateMean, 8),
		covariance:             StateCov{mat.DenseCopyOf(t.covariance.Dense)},
		state:                  t.state,
		trackID:                t.trackID,
		classID:                t.classID,
		severity:               t.severity,
		confidence:             t.confidence,
		detectorID:             t.detectorID,
		lastObserved:           t.lastObserved,
		framesSinceObservation: t.framesSinceObservation,
		observations:           t.observations,
		confirmStreak:          t.confirmStreak,
		history:                t.history.copy(),
	}

	copy(c.mean, t.mean)

	return c
}

// measurementRect converts an xyah measurement back to a Rect
func measurementRect(m Measurement) Rect {

	w := m[2] * m[3]

	return NewRect(m[0]-w/2, m[1]-m[3]/2, w, m[3])
}
