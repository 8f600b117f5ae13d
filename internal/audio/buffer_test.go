package audio

import (
	"testing"
)

func ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestBufferIrregularAppends(t *testing.T) {
	buf := NewBuffer(0)

	// Frames that do not line up with the window or step size
	for _, size := range []int{3, 7, 1, 5} {
		buf.Append(ramp(buf.Len(), size))
	}

	if buf.Len() != 16 {
		t.Fatalf("Expected 16 samples, got %d", buf.Len())
	}
	if !buf.HasFullWindow(16) {
		t.Error("Expected full window of 16")
	}
	if buf.HasFullWindow(17) {
		t.Error("Did not expect full window of 17")
	}

	win := buf.Window(8)
	for i, v := range win {
		if v != float32(i) {
			t.Fatalf("Window sample %d = %v, want %d", i, v, i)
		}
	}
	if buf.Len() != 16 {
		t.Errorf("Window must not remove samples, len=%d", buf.Len())
	}
}

func TestBufferAdvanceKeepsOrder(t *testing.T) {
	buf := NewBuffer(4)
	buf.Append(ramp(0, 10))

	buf.Advance(4)
	if buf.Len() != 6 {
		t.Fatalf("Expected 6 samples after advance, got %d", buf.Len())
	}
	win := buf.Window(6)
	for i, v := range win {
		if v != float32(i+4) {
			t.Fatalf("Sample %d = %v, want %d", i, v, i+4)
		}
	}

	buf.Advance(100)
	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer, got %d", buf.Len())
	}
}

func TestBufferWindowIsIndependentCopy(t *testing.T) {
	buf := NewBuffer(0)
	buf.Append(ramp(0, 4))

	win := buf.Window(4)
	buf.Advance(2)
	buf.Append(ramp(100, 2))

	if win[0] != 0 || win[3] != 3 {
		t.Errorf("Window changed after buffer mutation: %v", win)
	}
}

func TestBufferDrain(t *testing.T) {
	buf := NewBuffer(0)
	buf.Append(ramp(0, 5))

	rest := buf.Drain()
	if len(rest) != 5 {
		t.Fatalf("Expected 5 drained samples, got %d", len(rest))
	}
	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after drain, got %d", buf.Len())
	}
}
