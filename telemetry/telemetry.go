// Package telemetry is the fire-and-forget metrics sink the engine emits
// per-frame measurements to.  Sinks must never block or feed state back
// into the pipeline.
package telemetry

import (
	"time"

	"github.com/sirupsen/logrus"
)

// FrameStats is one frame's worth of pipeline measurements
type FrameStats struct {
	// Timestamp of the frame
	Timestamp time.Time
	// FrameTime is the time spent in the per-frame pipeline
	FrameTime time.Duration
	// ActiveTracks is the number of live tracks after the cycle
	ActiveTracks int
	// Primitives is the number of overlay primitives emitted
	Primitives int
	// Degraded reports whether degraded mode is active
	Degraded bool
}

// DetectionStats is one completed detection cycle's measurements
type DetectionStats struct {
	// Backend name that ran the cycle
	Backend string
	// Latency of the invocation
	Latency time.Duration
	// Detections returned
	Detections int
	// Failed reports whether the invocation errored or timed out
	Failed bool
}

// Sink receives engine measurements.  Implementations must be cheap, the
// engine calls them from the frame path
type Sink interface {
	RecordFrame(FrameStats)
	RecordDetection(DetectionStats)
	RecordDegraded(active bool)
}

// NopSink discards all measurements
type NopSink struct{}

// RecordFrame discards the frame stats
func (NopSink) RecordFrame(FrameStats) {}

// RecordDetection discards the detection stats
func (NopSink) RecordDetection(DetectionStats) {}

// RecordDegraded discards the transition
func (NopSink) RecordDegraded(bool) {}

// LogSink writes measurements to a logrus logger.  Frame stats are
// sampled so the log is not flooded at 60 Hz
type LogSink struct {
	log *logrus.Logger
	// sampleEvery logs one frame record per this many frames
	sampleEvery int
	frameCount  int
}

// NewLogSink creates a sink logging to log, recording every nth frame
func NewLogSink(log *logrus.Logger, sampleEvery int) *LogSink {

	if sampleEvery < 1 {
		sampleEvery = 1
	}

	return &LogSink{
		log:         log,
		sampleEvery: sampleEvery,
	}
}

// RecordFrame logs sampled frame stats
func (s *LogSink) RecordFrame(stats FrameStats) {

	s.frameCount++

	if s.frameCount%s.sampleEvery != 0 {
		return
	}

	s.log.WithFields(logrus.Fields{
		"frame_time_ms": float64(stats.FrameTime.Microseconds()) / 1000.0,
		"active_tracks": stats.ActiveTracks,
		"primitives":    stats.Primitives,
		"degraded":      stats.Degraded,
	}).Debug("frame")
}

// RecordDetection logs every completed detection cycle
func (s *LogSink) RecordDetection(stats DetectionStats) {

	entry := s.log.WithFields(logrus.Fields{
		"backend":    stats.Backend,
		"latency_ms": stats.Latency.Milliseconds(),
		"detections": stats.Detections,
	})

	if stats.Failed {
		entry.Warn("detection cycle failed")
		return
	}

	entry.Debug("detection cycle")
}

// RecordDegraded logs degraded mode transitions
func (s *LogSink) RecordDegraded(active bool) {

	if active {
		s.log.Warn("degraded mode entered")
		return
	}

	s.log.Info("degraded mode cleared")
}
