package transcriber

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
)

const (
	stubFrameSeconds = 0.1
	stubThreshold    = 0.01
)

// StubTranscriber produces deterministic tokens without a recognition model.
// Every contiguous run of voiced 100 ms frames becomes one token, so windows
// that share audio report the same tokens at shifted timestamps.
type StubTranscriber struct {
	sampleRate int
	threshold  float64
	log        zerolog.Logger
}

// NewStubTranscriber returns an energy-based token spotter.
func NewStubTranscriber(sampleRate int, threshold float64) *StubTranscriber {
	if threshold <= 0 {
		threshold = stubThreshold
	}
	return &StubTranscriber{
		sampleRate: sampleRate,
		threshold:  threshold,
		log:        log.With().Str("component", "engine.stub").Logger(),
	}
}

func (s *StubTranscriber) Name() string { return "stub" }

func (s *StubTranscriber) Close() error { return nil }

// Transcribe implements Transcriber. The prompt is ignored.
func (s *StubTranscriber) Transcribe(ctx context.Context, samples []float32, prompt string) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame := int(float64(s.sampleRate) * stubFrameSeconds)
	if frame < 1 {
		frame = 1
	}

	var (
		words []Word
		start = -1
	)
	flush := func(end int) {
		if start < 0 {
			return
		}
		from := float64(start) / float64(s.sampleRate)
		to := float64(end) / float64(s.sampleRate)
		words = append(words, TimedWord(fmt.Sprintf(" [voice %.1fs]", to-from), from, to).WithConfidence(1))
		start = -1
	}

	for i := 0; i < len(samples); i += frame {
		end := i + frame
		if end > len(samples) {
			end = len(samples)
		}
		if audio.RMS(samples[i:end]) >= s.threshold {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(samples))

	s.log.Debug().Int("samples", len(samples)).Int("words", len(words)).Msg("stub transcript")
	return words, nil
}
