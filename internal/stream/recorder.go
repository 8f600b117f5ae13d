package stream

import (
	"context"
	"time"

	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
)

// Recorder receives a copy of a session's results alongside the primary
// Output. Recorder errors are logged and counted; they never end a session.
type Recorder interface {
	Name() string
	Fragment(ctx context.Context, f commit.Fragment) error
	End(ctx context.Context, r Report) error
}

// AudioRecorder is a Recorder that also wants the raw inbound samples.
type AudioRecorder interface {
	Recorder
	Audio(sessionID string, samples []float32)
}

// Report summarises a finished session for recorders.
type Report struct {
	SessionID  string
	Transport  string
	Engine     string
	SampleRate int
	Outcome    string
	Started    time.Time
	Ended      time.Time
	Fragments  []commit.Fragment
}

// Transcript joins the committed fragments with single spaces.
func (r Report) Transcript() string {
	n := 0
	for _, f := range r.Fragments {
		n += len(f.Text) + 1
	}
	b := make([]byte, 0, n)
	for i, f := range r.Fragments {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, f.Text...)
	}
	return string(b)
}

const recorderTimeout = 5 * time.Second
