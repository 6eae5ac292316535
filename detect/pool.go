package detect

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Pool is a simple detector pool so a backend can hold multiple instances
// of the same model open, one per accelerator core
type Pool struct {
	// pool of detector instances
	detectors chan Detector
	// size of pool
	size  int
	close sync.Once
}

// NewPool creates a new detector pool of the given size, using factory to
// construct each instance
func NewPool(size int, factory func(i int) (Detector, error)) (*Pool, error) {

	p := &Pool{
		detectors: make(chan Detector, size),
		size:      size,
	}

	for i := 0; i < size; i++ {
		det, err := factory(i)

		if err != nil {
			// close any instances that may have been created before
			// receiving the error
			p.Close()
			return nil, err
		}

		// attach to pool
		p.Return(det)
	}

	return p, nil
}

// Get a detector from the pool
func (p *Pool) Get() Detector {
	return <-p.detectors
}

// Return a detector to the pool
func (p *Pool) Return(det Detector) {
	select {
	case p.detectors <- det:
	default:
		// pool is full or closed
	}
}

// Close the pool and all detectors in it
func (p *Pool) Close() {
	p.close.Do(func() {
		// close channel
		close(p.detectors)

		// close all detector instances that support it
		for next := range p.detectors {
			if closer, ok := next.(io.Closer); ok {
				_ = closer.Close()
			}
		}
	})
}

// Pooled presents a pool of detector instances as a single Detector so
// callers borrow an instance per invocation
type Pooled struct {
	pool    *Pool
	profile Profile
}

// NewPooled wraps a pool under the given backend profile
func NewPooled(pool *Pool, profile Profile) *Pooled {
	return &Pooled{
		pool:    pool,
		profile: profile,
	}
}

// Detect borrows an instance from the pool for the duration of the
// invocation
func (p *Pooled) Detect(ctx context.Context, img *gocv.Mat,
	ts time.Time) ([]RawDetection, error) {

	det := p.pool.Get()

	if det == nil {
		return nil, fmt.Errorf("%w: detector pool closed", ErrFailure)
	}

	defer p.pool.Return(det)

	return det.Detect(ctx, img, ts)
}

// Profile returns the backend's declared profile
func (p *Pooled) Profile() Profile {
	return p.profile
}

// Close closes the underlying pool
func (p *Pooled) Close() error {
	p.pool.Close()
	return nil
}
