package window

import (
	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
)

// Window is one fixed-length decode unit taken from the buffer head.
type Window struct {
	Index   int
	Offset  float64
	Samples []float32
	// Padded is set on the end-of-stream tail; Valid counts the real
	// samples before the zero padding.
	Padded bool
	Valid  int
}

// Scheduler hands out windows in chunk index order.
type Scheduler struct {
	geom  Geometry
	index int
}

// NewScheduler creates a scheduler starting at chunk index 0.
func NewScheduler(geom Geometry) *Scheduler {
	return &Scheduler{geom: geom}
}

// Geometry returns the scheduler's window geometry.
func (s *Scheduler) Geometry() Geometry {
	return s.geom
}

// Index returns the chunk index of the next window.
func (s *Scheduler) Index() int {
	return s.index
}

// Next takes the window at the current index if buf holds a full window,
// then advances buf by one step.
func (s *Scheduler) Next(buf *audio.Buffer) (Window, bool) {
	if !buf.HasFullWindow(s.geom.ChunkSize) {
		return Window{}, false
	}
	w := Window{
		Index:   s.index,
		Offset:  s.geom.Offset(s.index),
		Samples: buf.Window(s.geom.ChunkSize),
		Valid:   s.geom.ChunkSize,
	}
	buf.Advance(s.geom.StepSize)
	s.index++
	return w, true
}

// Tail zero-pads whatever remains in buf into a final window at the next
// index and empties buf. It reports false when nothing remains.
func (s *Scheduler) Tail(buf *audio.Buffer) (Window, bool) {
	if buf.Len() == 0 {
		return Window{}, false
	}
	rest := buf.Drain()
	if len(rest) > s.geom.ChunkSize {
		// Callers drain full windows first; keep the oldest audio if not.
		rest = rest[:s.geom.ChunkSize]
	}
	samples := make([]float32, s.geom.ChunkSize)
	copy(samples, rest)

	w := Window{
		Index:   s.index,
		Offset:  s.geom.Offset(s.index),
		Samples: samples,
		Padded:  true,
		Valid:   len(rest),
	}
	s.index++
	return w, true
}
