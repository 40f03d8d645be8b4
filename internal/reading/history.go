package reading

import (
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// History keeps the most recent readings of a stream, dropping the oldest on overflow.
// Add may be called from any goroutine.
type History struct {
	buffer      mpmc.RichOverlappedRingBuffer[Reading]
	added       atomic.Int64
	overwritten atomic.Int64
}

// NewHistory creates a History holding about size readings (the buffer may round it up).
func NewHistory(size uint32) (*History, error) {
	if size == 0 {
		return nil, fmt.Errorf("history size must be > 0")
	}
	return &History{buffer: mpmc.NewOverlappedRingBuffer[Reading](size)}, nil
}

// Add records r, evicting the oldest readings if the buffer is full.
func (h *History) Add(r Reading) error {
	overwrites, err := h.buffer.EnqueueM(r)
	if err != nil {
		return fmt.Errorf("history enqueue failed: %w", err)
	}
	h.added.Add(1)
	h.overwritten.Add(int64(overwrites))
	return nil
}

// Drain removes and returns the buffered readings, oldest first.
func (h *History) Drain() []Reading {
	var out []Reading
	for !h.buffer.IsEmpty() {
		r, err := h.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, r)
	}
	return out
}

// Added returns how many readings were ever added.
func (h *History) Added() int64 { return h.added.Load() }

// Overwritten returns how many readings were evicted before being drained.
func (h *History) Overwritten() int64 { return h.overwritten.Load() }
