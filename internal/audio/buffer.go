package audio

// Buffer accumulates decoded mono samples for a single stream.
// Samples are appended at the tail and drained from the head; it is owned
// by one session and is not safe for concurrent use.
type Buffer struct {
	samples []float32
}

// NewBuffer creates a buffer with room for capacity samples.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{samples: make([]float32, 0, capacity)}
}

// Append adds samples to the tail in arrival order.
func (b *Buffer) Append(samples []float32) {
	b.samples = append(b.samples, samples...)
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// HasFullWindow reports whether at least size samples are buffered.
func (b *Buffer) HasFullWindow(size int) bool {
	return size > 0 && len(b.samples) >= size
}

// Window returns a copy of the first size samples without removing them.
// The copy keeps an in-flight transcription independent of later appends.
func (b *Buffer) Window(size int) []float32 {
	if size > len(b.samples) {
		size = len(b.samples)
	}
	out := make([]float32, size)
	copy(out, b.samples[:size])
	return out
}

// Advance removes n samples from the head.
func (b *Buffer) Advance(n int) {
	if n >= len(b.samples) {
		b.samples = b.samples[:0]
		return
	}
	// Shift down instead of re-slicing so the backing array does not grow
	// without bound on long streams.
	remaining := copy(b.samples, b.samples[n:])
	b.samples = b.samples[:remaining]
}

// Drain removes and returns every buffered sample.
func (b *Buffer) Drain() []float32 {
	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	b.samples = b.samples[:0]
	return out
}
