package detect

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ScriptedCycle is the canned outcome of one Detect invocation on a
// Scripted detector
type ScriptedCycle struct {
	// Detections returned for this cycle
	Detections []RawDetection
	// Err returned instead of detections when set
	Err error
	// Latency simulated before returning
	Latency time.Duration
}

// Scripted is a detector returning canned results, used in tests and the
// simulation demo in place of a real inference backend.  Each invocation
// consumes the next scripted cycle, the final cycle repeats once the
// script is exhausted
type Scripted struct {
	profile Profile

	mu     sync.Mutex
	cycles []ScriptedCycle
	next   int
	// calls counts total Detect invocations
	calls int
}

// NewScripted returns a scripted detector for the given backend profile
func NewScripted(profile Profile, cycles []ScriptedCycle) *Scripted {
	return &Scripted{
		profile: profile,
		cycles:  cycles,
	}
}

// Detect returns the next scripted cycle, honouring the context deadline
// during any simulated latency
func (s *Scripted) Detect(ctx context.Context, img *gocv.Mat,
	ts time.Time) ([]RawDetection, error) {

	s.mu.Lock()

	s.calls++

	var cycle ScriptedCycle

	if len(s.cycles) > 0 {
		cycle = s.cycles[s.next]

		if s.next < len(s.cycles)-1 {
			s.next++
		}
	}

	s.mu.Unlock()

	if cycle.Latency > 0 {
		select {
		case <-time.After(cycle.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if cycle.Err != nil {
		return nil, cycle.Err
	}

	// stamp the frame timestamp and detector identity on the way out
	out := make([]RawDetection, len(cycle.Detections))

	for i, det := range cycle.Detections {
		det.FrameTimestamp = ts
		det.DetectorID = s.profile.ID
		out[i] = det
	}

	return out, nil
}

// Profile returns the backend's declared profile
func (s *Scripted) Profile() Profile {
	return s.profile
}

// Calls returns the total number of Detect invocations made
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
