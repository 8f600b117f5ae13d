package window

import (
	"errors"
	"math"
	"testing"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
	"github.com/amanullahtanweer/windowed-transcriber/internal/transcriber"
)

func mustGeometry(t *testing.T, rate int, seconds, overlap float64) Geometry {
	t.Helper()
	g, err := NewGeometry(rate, seconds, overlap)
	if err != nil {
		t.Fatalf("NewGeometry(%d, %v, %v): %v", rate, seconds, overlap, err)
	}
	return g
}

func TestNewGeometryDefaults(t *testing.T) {
	g := mustGeometry(t, 16000, 2.0, 0.5)

	if g.ChunkSize != 32000 {
		t.Errorf("Expected chunk size 32000, got %d", g.ChunkSize)
	}
	if g.StepSize != 16000 {
		t.Errorf("Expected step size 16000, got %d", g.StepSize)
	}
	if g.Stride != 1.0 {
		t.Errorf("Expected stride 1.0, got %v", g.Stride)
	}
	if g.SafeStart != 0.5 || g.SafeEnd != 1.5 {
		t.Errorf("Expected safe interval [0.5, 1.5], got [%v, %v]", g.SafeStart, g.SafeEnd)
	}
	if g.Overlap() != 16000 {
		t.Errorf("Expected 16000 shared samples, got %d", g.Overlap())
	}
}

func TestNewGeometryRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		rate    int
		seconds float64
		overlap float64
	}{
		{"zero rate", 0, 2, 0.5},
		{"negative window", 16000, -1, 0.5},
		{"NaN window", 16000, math.NaN(), 0.5},
		{"overlap one", 16000, 2, 1},
		{"negative overlap", 16000, 2, -0.1},
		{"window shorter than a sample", 16000, 1e-6, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGeometry(tt.rate, tt.seconds, tt.overlap)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("Expected ErrInvalidGeometry, got %v", err)
			}
		})
	}
}

func TestNoOverlapMakesWholeWindowSafe(t *testing.T) {
	g := mustGeometry(t, 16000, 2.0, 0)

	if g.StepSize != g.ChunkSize {
		t.Errorf("Expected step == chunk, got %d vs %d", g.StepSize, g.ChunkSize)
	}
	if g.SafeStart != 0 || g.SafeEnd != g.ChunkDuration {
		t.Errorf("Expected safe interval [0, %v], got [%v, %v]", g.ChunkDuration, g.SafeStart, g.SafeEnd)
	}

	words := []transcriber.Word{
		transcriber.TimedWord(" a", 0, 0.1),
		transcriber.TimedWord(" b", 1.9, 2.0),
	}
	if got := SelectSafe(words, g.Offset(3), g); len(got) != 2 {
		t.Errorf("Expected every timed word safe, got %d", len(got))
	}
}

func TestSafeIntervalsTile(t *testing.T) {
	for _, overlap := range []float64{0, 0.1, 0.25, 1.0 / 3, 0.5, 0.75, 0.9, 0.99} {
		for _, seconds := range []float64{0.5, 1, 2, 2.5, 30} {
			g := mustGeometry(t, 16000, seconds, overlap)
			if !(g.SafeEnd > g.SafeStart) {
				t.Fatalf("overlap=%v seconds=%v: empty safe interval", overlap, seconds)
			}
			if g.SafeStart < 0 || g.SafeEnd > g.ChunkDuration+1e-12 {
				t.Errorf("overlap=%v seconds=%v: safe interval outside window", overlap, seconds)
			}
			for i := 0; i < 200; i++ {
				_, hi := g.SafeBounds(i)
				nextLo, nextHi := g.SafeBounds(i + 1)
				if math.Abs(hi-nextLo) > 1e-9 {
					t.Fatalf("overlap=%v seconds=%v window=%d: gap or overlap %v vs %v", overlap, seconds, i, hi, nextLo)
				}
				if math.Abs((nextHi-nextLo)-g.Stride) > 1e-9 {
					t.Fatalf("overlap=%v seconds=%v window=%d: width %v != stride %v", overlap, seconds, i, nextHi-nextLo, g.Stride)
				}
			}
		}
	}
}

func TestSelectSafe(t *testing.T) {
	g := mustGeometry(t, 16000, 2.0, 0.5)
	start := 0.9

	words := []transcriber.Word{
		transcriber.TimedWord(" early", 0.1, 0.3),  // mid 0.2
		transcriber.TimedWord(" edge", 0.4, 0.6),   // mid 0.5, inclusive
		transcriber.TimedWord(" middle", 0.9, 1.1), // mid 1.0
		{Text: " untimed", Start: &start},
		transcriber.TimedWord(" last", 1.4, 1.6), // mid 1.5, inclusive
		transcriber.TimedWord(" late", 1.7, 1.9), // mid 1.8
	}

	got := SelectSafe(words, g.Offset(4), g)
	if text := JoinText(got); text != "edge middle last" {
		t.Errorf("Expected %q, got %q", "edge middle last", text)
	}
}

func TestJoinTextKeepsEngineSpacing(t *testing.T) {
	words := []transcriber.Word{
		transcriber.TimedWord(" Hel", 0, 1),
		transcriber.TimedWord("lo", 0, 1),
		transcriber.TimedWord(" world ", 0, 1),
	}
	if got := JoinText(words); got != "Hello world" {
		t.Errorf("Expected %q, got %q", "Hello world", got)
	}
	if got := JoinText(nil); got != "" {
		t.Errorf("Expected empty text, got %q", got)
	}
}

func TestSchedulerStepsThroughBuffer(t *testing.T) {
	g := mustGeometry(t, 10, 1.0, 0.5) // chunk 10, step 5
	sched := NewScheduler(g)
	buf := audio.NewBuffer(0)

	samples := make([]float32, 27)
	for i := range samples {
		samples[i] = float32(i)
	}

	// Irregular frames
	buf.Append(samples[:4])
	if _, ok := sched.Next(buf); ok {
		t.Fatal("Did not expect a window from 4 samples")
	}
	buf.Append(samples[4:27])

	var windows []Window
	for {
		w, ok := sched.Next(buf)
		if !ok {
			break
		}
		windows = append(windows, w)
	}

	if len(windows) != 4 {
		t.Fatalf("Expected 4 windows, got %d", len(windows))
	}
	for i, w := range windows {
		if w.Index != i {
			t.Errorf("Window %d has index %d", i, w.Index)
		}
		if w.Offset != float64(i)*0.5 {
			t.Errorf("Window %d offset %v, want %v", i, w.Offset, float64(i)*0.5)
		}
		if w.Samples[0] != float32(i*5) {
			t.Errorf("Window %d starts at sample %v, want %d", i, w.Samples[0], i*5)
		}
		if len(w.Samples) != 10 || w.Padded {
			t.Errorf("Window %d should be a full unpadded window", i)
		}
	}

	// 27 - 4*5 = 7 samples remain
	if buf.Len() != 7 {
		t.Fatalf("Expected 7 samples left, got %d", buf.Len())
	}

	tail, ok := sched.Tail(buf)
	if !ok {
		t.Fatal("Expected a tail window")
	}
	if tail.Index != 4 || !tail.Padded || tail.Valid != 7 {
		t.Errorf("Unexpected tail: index=%d padded=%v valid=%d", tail.Index, tail.Padded, tail.Valid)
	}
	if tail.Samples[0] != 20 || tail.Samples[6] != 26 || tail.Samples[7] != 0 || tail.Samples[9] != 0 {
		t.Errorf("Tail not zero padded correctly: %v", tail.Samples)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after tail, got %d", buf.Len())
	}

	if _, ok := sched.Tail(buf); ok {
		t.Error("Did not expect a second tail from an empty buffer")
	}
	if sched.Index() != 5 {
		t.Errorf("Expected next index 5, got %d", sched.Index())
	}
}
