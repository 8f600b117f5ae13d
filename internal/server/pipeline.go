// Package server exposes the streaming transcriber over a websocket
// endpoint and an Asterisk AudioSocket listener.
package server

import (
	"context"
	"errors"

	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
	"github.com/amanullahtanweer/windowed-transcriber/internal/transcriber"
	"github.com/amanullahtanweer/windowed-transcriber/internal/window"
)

// ErrSampleRateMismatch is returned when a client's audio rate differs from
// the rate the service was configured for.
var ErrSampleRateMismatch = errors.New("server: sample rate mismatch")

const defaultInboundQueue = 64

// Pipeline holds what every transport needs to start a session.
type Pipeline struct {
	Engine       transcriber.Transcriber
	Geometry     window.Geometry
	ContextChars int
	Recorders    []stream.Recorder
	// InboundQueue bounds the frames buffered between a connection's reader
	// and its session.
	InboundQueue int
}

func (p Pipeline) newSession(id, transport string, out stream.Output) *stream.Session {
	return stream.NewSession(stream.Config{
		SessionID:    id,
		Transport:    transport,
		Geometry:     p.Geometry,
		ContextChars: p.ContextChars,
		Recorders:    p.Recorders,
	}, p.Engine, out)
}

func (p Pipeline) inbound() chan stream.Event {
	n := p.InboundQueue
	if n <= 0 {
		n = defaultInboundQueue
	}
	return make(chan stream.Event, n)
}

// send delivers ev unless ctx ends first.
func send(ctx context.Context, ch chan<- stream.Event, ev stream.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
