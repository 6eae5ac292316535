package tracker

// BoxHistory is a bounded ring buffer of the most recent observed bounding
// boxes for a track.  The smoothed size taken over the history is used for
// rendering so a single noisy detection does not make the overlay jump
type BoxHistory struct {
	// size is the maximum number of most recent boxes to keep
	size int
	// boxes is the ring storage, oldest first
	boxes []Rect
}

// NewBoxHistory returns a new box history keeping up to size entries
func NewBoxHistory(size int) *BoxHistory {
	return &BoxHistory{
		size:  size,
		boxes: make([]Rect, 0, size),
	}
}

// Add records an observed box, dropping the oldest entry when the history
// is full
func (h *BoxHistory) Add(box Rect) {

	h.boxes = append(h.boxes, NewRect(box.X(), box.Y(), box.Width(), box.Height()))

	if len(h.boxes) > h.size {
		h.boxes = h.boxes[1:]
	}
}

// Len returns the number of boxes held
func (h *BoxHistory) Len() int {
	return len(h.boxes)
}

// Latest returns the most recent box, or a zero Rect when empty
func (h *BoxHistory) Latest() Rect {

	if len(h.boxes) == 0 {
		return NewRect(0, 0, 0, 0)
	}

	return h.boxes[len(h.boxes)-1]
}

// SmoothedSize returns the mean width and height over the history
func (h *BoxHistory) SmoothedSize() (float32, float32) {

	if len(h.boxes) == 0 {
		return 0, 0
	}

	var sumW, sumH float32

	for i := range h.boxes {
		sumW += h.boxes[i].Width()
		sumH += h.boxes[i].Height()
	}

	n := float32(len(h.boxes))

	return sumW / n, sumH / n
}

// copy returns a deep copy of the history, used for track snapshots
func (h *BoxHistory) copy() *BoxHistory {

	c := NewBoxHistory(h.size)

	for i := range h.boxes {
		c.Add(h.boxes[i])
	}

	return c
}
