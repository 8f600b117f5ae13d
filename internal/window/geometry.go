// Package window slices a sample stream into overlapping decode windows and
// selects the words each window is trusted to commit.
package window

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned for window settings that cannot tile a stream.
var ErrInvalidGeometry = errors.New("window: invalid geometry")

// Geometry holds the derived sizes of the sliding window.
//
// Consecutive windows share ChunkSize-StepSize samples. Each window trusts
// only the words centred in [SafeStart, SafeEnd] (seconds from the window
// start); shifted by the window offsets those intervals tile the timeline.
type Geometry struct {
	SampleRate    int
	ChunkSize     int
	StepSize      int
	ChunkDuration float64
	Stride        float64
	SafeStart     float64
	SafeEnd       float64
}

// NewGeometry derives window sizes from a sample rate, a window duration in
// seconds and an overlap fraction in [0, 1).
func NewGeometry(sampleRate int, windowSeconds, overlap float64) (Geometry, error) {
	if sampleRate <= 0 {
		return Geometry{}, fmt.Errorf("%w: sample rate %d", ErrInvalidGeometry, sampleRate)
	}
	if !(windowSeconds > 0) || math.IsInf(windowSeconds, 0) {
		return Geometry{}, fmt.Errorf("%w: window duration %v", ErrInvalidGeometry, windowSeconds)
	}
	if !(overlap >= 0 && overlap < 1) {
		return Geometry{}, fmt.Errorf("%w: overlap %v outside [0, 1)", ErrInvalidGeometry, overlap)
	}

	chunk := int(math.Round(windowSeconds * float64(sampleRate)))
	if chunk < 1 {
		return Geometry{}, fmt.Errorf("%w: window of %v s holds no samples at %d Hz", ErrInvalidGeometry, windowSeconds, sampleRate)
	}
	step := int(math.Floor(float64(chunk) * (1 - overlap)))
	if step < 1 {
		step = 1
	}

	g := Geometry{
		SampleRate:    sampleRate,
		ChunkSize:     chunk,
		StepSize:      step,
		ChunkDuration: float64(chunk) / float64(sampleRate),
		Stride:        float64(step) / float64(sampleRate),
	}
	g.SafeStart = (g.ChunkDuration - g.Stride) / 2
	g.SafeEnd = g.SafeStart + g.Stride
	return g, nil
}

// Offset returns the global start time of the window at index.
func (g Geometry) Offset(index int) float64 {
	return float64(index) * g.Stride
}

// SafeBounds returns the global trusted interval of the window at index.
func (g Geometry) SafeBounds(index int) (lo, hi float64) {
	off := g.Offset(index)
	return off + g.SafeStart, off + g.SafeEnd
}

// Overlap returns the number of samples shared by consecutive windows.
func (g Geometry) Overlap() int {
	return g.ChunkSize - g.StepSize
}
