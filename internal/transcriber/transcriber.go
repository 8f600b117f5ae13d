// Package transcriber defines the recognition engine contract consumed by
// the window scheduler, a bounded worker pool in front of it, and the
// concrete engine bindings.
package transcriber

import (
	"context"
	"strings"
)

// Transcriber decodes one fixed-length window of mono float32 samples.
//
// Implementations decode deterministically (temperature 0), condition on
// prompt when it is non-empty, and return words with timestamps in seconds
// relative to the window start. Transcribe blocks and is CPU or network
// bound; callers reach it through a Pool.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, samples []float32, prompt string) ([]Word, error)
	Close() error
}

// Word is a decoded token. Text carries its own leading space.
type Word struct {
	Text       string
	Start      *float64
	End        *float64
	Confidence *float64
}

// TimedWord builds a word with both timestamps set.
func TimedWord(text string, start, end float64) Word {
	return Word{Text: text, Start: &start, End: &end}
}

// WithConfidence returns a copy of w carrying confidence p.
func (w Word) WithConfidence(p float64) Word {
	w.Confidence = &p
	return w
}

// Midpoint returns the window-local centre of the word, if it is timed.
func (w Word) Midpoint() (float64, bool) {
	if w.Start == nil || w.End == nil {
		return 0, false
	}
	return (*w.Start + *w.End) / 2, true
}

// Options are engine decoding parameters. The scheduler never interprets
// them; each engine maps what it understands and ignores the rest.
type Options struct {
	SampleRate              int
	Model                   string
	Language                string
	BeamSize                int
	BestOf                  int
	ConditionOnPreviousText bool
	VADFilter               bool
	MinSilenceDurationMs    int
	Extra                   map[string]string
}

// leadingSpace normalises engines that return bare words so that
// concatenating tokens yields spaced text.
func leadingSpace(text string) string {
	if text == "" || strings.HasPrefix(text, " ") {
		return text
	}
	return " " + text
}
