package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// Job is one detection invocation handed to the background worker
type Job struct {
	// Img is the frame image to run detection over
	Img *gocv.Mat
	// Timestamp of the frame the image was captured on
	Timestamp time.Time
	// Detector backend to invoke
	Detector Detector
	// Timeout is the hard invocation budget, a timeout is treated the
	// same as a detector failure
	Timeout time.Duration
}

// Result is the outcome of one detection invocation, delivered through the
// dispatcher mailbox
type Result struct {
	// Detections produced, nil on error
	Detections []RawDetection
	// Err is nil on success, otherwise wraps ErrTimeout or ErrFailure
	Err error
	// FrameTimestamp of the frame the detections were computed against
	FrameTimestamp time.Time
	// Backend that ran the invocation
	Backend Backend
	// DetectorID of the backend that ran the invocation
	DetectorID string
	// Latency of the invocation
	Latency time.Duration
}

// invokeResult carries the raw detector return values out of the
// invocation goroutine
type invokeResult struct {
	detections []RawDetection
	err        error
}

// Dispatcher runs detector invocations on a background worker so they
// never block the per-frame pipeline.  Jobs flow through a single slot
// queue and results land in a single slot latest-result mailbox keyed by
// frame timestamp, stale results are discarded on arrival rather than
// cancelling in-flight work
type Dispatcher struct {
	jobs chan Job
	// pending counts jobs queued or running
	pending int32

	mu sync.Mutex
	// result is the mailbox slot holding the most recent result
	result *Result

	close sync.Once
	done  chan struct{}
}

// NewDispatcher creates a dispatcher and starts its background worker
func NewDispatcher() *Dispatcher {

	d := &Dispatcher{
		jobs: make(chan Job, 1),
		done: make(chan struct{}),
	}

	go d.worker()

	return d
}

// TrySubmit queues a detection job without blocking.  It returns false
// when the worker is saturated, the caller skips detection for this cycle
// and lets tracks coast
func (d *Dispatcher) TrySubmit(job Job) bool {

	select {
	case <-d.done:
		return false
	default:
	}

	// one invocation in flight at most, queueing behind a slow backend
	// would only produce stale results
	if atomic.LoadInt32(&d.pending) > 0 {
		return false
	}

	select {
	case d.jobs <- job:
		atomic.AddInt32(&d.pending, 1)
		return true
	default:
		return false
	}
}

// Busy reports whether an invocation is queued or running
func (d *Dispatcher) Busy() bool {
	return atomic.LoadInt32(&d.pending) > 0
}

// Collect takes the latest result from the mailbox, returning nil when no
// new result has arrived since the last call
func (d *Dispatcher) Collect() *Result {

	d.mu.Lock()
	defer d.mu.Unlock()

	res := d.result
	d.result = nil

	return res
}

// Close stops the worker.  In-flight invocations are abandoned
func (d *Dispatcher) Close() {
	d.close.Do(func() {
		close(d.done)
		close(d.jobs)
	})
}

// worker consumes jobs one at a time and delivers results to the mailbox
func (d *Dispatcher) worker() {

	for job := range d.jobs {
		res := Run(job)
		d.deliver(res)
		atomic.AddInt32(&d.pending, -1)
	}
}

// Run executes a single detection with the job's timeout.  The backend is
// not assumed to support cancellation, on timeout the invocation goroutine
// is abandoned and its eventual result dropped
func Run(job Job) Result {

	start := time.Now()

	res := Result{
		FrameTimestamp: job.Timestamp,
		Backend:        job.Detector.Profile().Backend,
		DetectorID:     job.Detector.Profile().ID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
	defer cancel()

	out := make(chan invokeResult, 1)

	go func() {
		detections, err := job.Detector.Detect(ctx, job.Img, job.Timestamp)
		out <- invokeResult{detections: detections, err: err}
	}()

	select {
	case r := <-out:
		if errors.Is(r.err, context.DeadlineExceeded) {
			// the backend honoured the deadline itself
			res.Err = fmt.Errorf("%w after %v", ErrTimeout, job.Timeout)
		} else if r.err != nil {
			res.Err = fmt.Errorf("%w: %v", ErrFailure, r.err)
		} else {
			res.Detections = r.detections
		}

	case <-ctx.Done():
		res.Err = fmt.Errorf("%w after %v", ErrTimeout, job.Timeout)
	}

	res.Latency = time.Since(start)

	return res
}

// deliver stores a result in the mailbox.  Results older than the one
// already waiting are stale and dropped
func (d *Dispatcher) deliver(res Result) {

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.result != nil && res.FrameTimestamp.Before(d.result.FrameTimestamp) {
		return
	}

	d.result = &res
}
