// Package tracker maintains the authoritative set of tracked hazards.  It
// smooths noisy per-cycle detections into temporally stable tracks using a
// Kalman filter per track and Mahalanobis-gated greedy association.
package tracker

import (
	"fmt"
	"sort"
	"time"
)

// Config holds the tracker tuning parameters.  All values are supplied by
// configuration, defaults here are starting points for field calibration
type Config struct {
	// GatingDistance is the maximum squared Mahalanobis distance for a
	// detection-to-track match
	GatingDistance float32
	// MinConfidence is the minimum detection confidence required to spawn
	// a new tentative track
	MinConfidence float32
	// ConfidenceFloor is the score below which a track expires
	ConfidenceFloor float32
	// DecayRate is the per second confidence retention factor applied to
	// tracks while coasting
	DecayRate float32
	// MaxCoastFrames is the maximum number of predict-only frames before
	// a track expires
	MaxCoastFrames int
	// MinObservations is the number of associated detections required to
	// promote a tentative track to confirmed
	MinObservations int
	// HistorySize is the number of observed boxes kept for size smoothing
	HistorySize int
	// StdWeightPosition is the Kalman filter position noise weight
	StdWeightPosition float32
	// StdWeightVelocity is the Kalman filter velocity noise weight.  Kept
	// low so velocity stays heavily damped, construction hazards are
	// largely immobile and jitter stability wins over responsiveness
	StdWeightVelocity float32
	// VelocityDamping is the per second velocity retention factor
	VelocityDamping float32
}

// DefaultConfig returns tracker defaults for a mid tier device
func DefaultConfig() Config {
	return Config{
		GatingDistance:    50.0,
		MinConfidence:     0.30,
		ConfidenceFloor:   0.05,
		DecayRate:         0.70,
		MaxCoastFrames:    60,
		MinObservations:   2,
		HistorySize:       10,
		StdWeightPosition: 1.0 / 20,
		StdWeightVelocity: 1.0 / 160,
		VelocityDamping:   0.60,
	}
}

// StepStats summarizes one tracker cycle for the adaptive scheduler's
// volatility heuristic and for telemetry
type StepStats struct {
	// DetectionRan reports whether this cycle applied detection results
	DetectionRan bool
	// Observations is the number of detections applied
	Observations int
	// Matched is the number of detections associated to existing tracks
	Matched int
	// Spawned is the number of new tentative tracks created
	Spawned int
	// Expired is the number of tracks removed this cycle
	Expired int
	// ActiveTracks is the number of live tracks after the cycle
	ActiveTracks int
}

// ReassociationRate returns the fraction of applied detections that
// matched an existing track, a low rate on a busy scene signals volatility
func (s StepStats) ReassociationRate() float32 {

	if s.Observations == 0 {
		return 1.0
	}

	return float32(s.Matched) / float32(s.Observations)
}

// HazardTracker owns the full lifecycle of HazardTrack objects: creation
// on first unmatched detection, mutation on association and prediction,
// destruction on expiry.  It is single-writer, all methods must be called
// from the per-frame pipeline goroutine
type HazardTracker struct {
	cfg Config
	// kalmanFilter is shared by all tracks, it holds no per-track state
	kalmanFilter *KalmanFilter
	classes      *ClassMap
	idGen        *IDGenerator
	tracks       []*HazardTrack
	// lastStep is the pipeline time of the most recent Step call
	lastStep time.Time
}

// NewHazardTracker creates a tracker with the given configuration and
// hazard class map
func NewHazardTracker(cfg Config, classes *ClassMap) *HazardTracker {
	return &HazardTracker{
		cfg: cfg,
		kalmanFilter: NewKalmanFilter(cfg.StdWeightPosition,
			cfg.StdWeightVelocity, cfg.VelocityDamping),
		classes: classes,
		idGen:   NewIDGenerator(),
	}
}

// Reset clears all tracks.  Track IDs keep incrementing so IDs from before
// the reset are never reused
func (ht *HazardTracker) Reset() {
	ht.tracks = nil
	ht.lastStep = time.Time{}
}

// Step runs one tracker cycle at pipeline time now: predict always,
// associate/update/spawn when a detection cycle completed, then decay and
// expire coasting tracks.  Observations may have been computed several
// frames in the past, association compensates for their age.  A step with
// zero tracks and zero observations is a no-op
func (ht *HazardTracker) Step(now time.Time, observations []Observation,
	detectionRan bool) (StepStats, error) {

	stats := StepStats{
		DetectionRan: detectionRan,
		Observations: len(observations),
	}

	// elapsed pipeline time since the previous cycle
	var dt float32

	if !ht.lastStep.IsZero() && now.After(ht.lastStep) {
		dt = float32(now.Sub(ht.lastStep).Seconds())
	}

	ht.lastStep = now

	// 1. Predict: always advance every track, even on frames with no
	// new detections
	for _, track := range ht.tracks {
		track.predict(dt)
	}

	matchedTracks := make(map[int64]bool)

	if detectionRan {

		// 2. Associate via greedy nearest Mahalanobis distance
		matchedObs, err := ht.associate(observations, now, matchedTracks)

		if err != nil {
			return stats, err
		}

		stats.Matched = len(matchedObs)

		// 4. Spawn: unmatched detections above the minimum confidence
		// create new tentative tracks.  A detection burst intentionally
		// spawns many tentative tracks, false positives are filtered by
		// the confirmation threshold rather than by suppressing spawns
		for i := range observations {

			if matchedObs[i] {
				continue
			}

			if observations[i].Confidence < ht.cfg.MinConfidence {
				continue
			}

			track := ht.spawn(&observations[i])
			matchedTracks[track.trackID] = true
			stats.Spawned++
		}
	}

	// 5. Decay & Expire
	stats.Expired = ht.decayAndExpire(dt, matchedTracks, detectionRan)
	stats.ActiveTracks = len(ht.tracks)

	return stats, nil
}

// associate matches observations to existing tracks.  Candidate pairs
// inside the gate are taken nearest first, ties on distance are broken by
// the higher detector confidence.  Tracks never merge, each observation
// and each track match at most once
func (ht *HazardTracker) associate(observations []Observation,
	now time.Time, matchedTracks map[int64]bool) (map[int]bool, error) {

	matchedObs := make(map[int]bool)

	if len(ht.tracks) == 0 || len(observations) == 0 {
		return matchedObs, nil
	}

	type candidate struct {
		trackIdx int
		obsIdx   int
		dist     float32
	}

	var candidates []candidate

	for ti, track := range ht.tracks {
		for oi := range observations {

			obs := &observations[oi]

			// age of the detection relative to the predicted state
			var age float32

			if now.After(obs.Timestamp) {
				age = float32(now.Sub(obs.Timestamp).Seconds())
			}

			dist, err := track.gatingDistance(obs.Measurement, age)

			if err != nil {
				// a degenerate covariance cannot gate this pair,
				// skip it rather than fail the cycle
				continue
			}

			// hard gate, detections beyond it cannot associate
			if dist > ht.cfg.GatingDistance {
				continue
			}

			candidates = append(candidates, candidate{
				trackIdx: ti,
				obsIdx:   oi,
				dist:     dist,
			})
		}
	}

	// nearest first, ties broken by higher detector confidence
	sort.SliceStable(candidates, func(a, b int) bool {

		if candidates[a].dist != candidates[b].dist {
			return candidates[a].dist < candidates[b].dist
		}

		return observations[candidates[a].obsIdx].Confidence >
			observations[candidates[b].obsIdx].Confidence
	})

	usedTrack := make(map[int]bool)

	// 3. Update: greedy assignment and measurement update
	for _, c := range candidates {

		if usedTrack[c.trackIdx] || matchedObs[c.obsIdx] {
			continue
		}

		track := ht.tracks[c.trackIdx]
		obs := &observations[c.obsIdx]

		err := track.update(obs.Measurement, obs.Confidence, obs.DetectorID,
			obs.Timestamp, ht.cfg.MinObservations, ht.cfg.MinConfidence)

		if err != nil {
			return matchedObs, fmt.Errorf("association update failed: %w", err)
		}

		usedTrack[c.trackIdx] = true
		matchedObs[c.obsIdx] = true
		matchedTracks[track.trackID] = true
	}

	return matchedObs, nil
}

// spawn creates a new tentative track from an unmatched observation
func (ht *HazardTracker) spawn(obs *Observation) *HazardTrack {

	info := ht.classes.Info(obs.ClassID)

	track := newHazardTrack(ht.idGen.GetNext(), obs.ClassID, info.Severity,
		obs.Measurement, obs.Confidence, obs.DetectorID, obs.Timestamp,
		ht.kalmanFilter, ht.cfg.HistorySize)

	ht.tracks = append(ht.tracks, track)

	return track
}

// decayAndExpire ages unmatched tracks and removes those past the coast
// window or below the confidence floor, whichever comes first
func (ht *HazardTracker) decayAndExpire(dt float32,
	matchedTracks map[int64]bool, detectionRan bool) int {

	expired := 0
	kept := ht.tracks[:0]

	for _, track := range ht.tracks {

		if !matchedTracks[track.trackID] {
			track.coast(dt, ht.cfg.DecayRate, detectionRan)
		}

		if track.framesSinceObservation > ht.cfg.MaxCoastFrames ||
			track.confidence < ht.cfg.ConfidenceFloor {

			track.markExpired()
			expired++
			continue
		}

		kept = append(kept, track)
	}

	ht.tracks = kept

	return expired
}

// Tracks returns immutable snapshots of all live tracks.  The copies are
// safe to hand to reader layers while the next cycle mutates tracker state
func (ht *HazardTracker) Tracks() []*HazardTrack {

	out := make([]*HazardTrack, 0, len(ht.tracks))

	for _, track := range ht.tracks {
		out = append(out, track.Snapshot())
	}

	return out
}

// MeanConfidence returns the mean confidence over confirmed and coasting
// tracks, used by the scheduler to detect broad confidence decay
func (ht *HazardTracker) MeanConfidence() float32 {

	var sum float32
	n := 0

	for _, track := range ht.tracks {
		if track.state == Confirmed || track.state == Coasting {
			sum += track.confidence
			n++
		}
	}

	if n == 0 {
		return 1.0
	}

	return sum / float32(n)
}

// Len returns the number of live tracks
func (ht *HazardTracker) Len() int {
	return len(ht.tracks)
}
