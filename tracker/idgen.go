package tracker

import "sync"

// IDGenerator holds a counter for generating the next incremental track ID.
// Track IDs are monotonic and never reused for the lifetime of the tracker
type IDGenerator struct {
	id int64
	sync.Mutex
}

// NewIDGenerator returns a new IDGenerator starting at 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next incremental number
func (id *IDGenerator) GetNext() int64 {
	id.Lock()
	defer id.Unlock()
	id.id++
	return id.id
}
