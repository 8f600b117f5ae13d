// Package stream drives one audio stream from first frame to completion:
// it buffers samples, schedules overlapping windows, passes each through
// the engine and the commitment controller, and handles end of stream,
// disconnects and failures.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
	"github.com/amanullahtanweer/windowed-transcriber/internal/logging"
	"github.com/amanullahtanweer/windowed-transcriber/internal/metrics"
	"github.com/amanullahtanweer/windowed-transcriber/internal/transcriber"
	"github.com/amanullahtanweer/windowed-transcriber/internal/window"
)

var (
	// ErrDisconnected is returned by Run when the inbound channel closes
	// without an end-of-stream marker.
	ErrDisconnected = errors.New("stream: client disconnected")
	// ErrEnded is returned when audio arrives after the session ended.
	ErrEnded = errors.New("stream: session ended")
)

// Session outcomes, as recorded in metrics.
const (
	OutcomeCompleted    = "completed"
	OutcomeDisconnected = "disconnected"
	OutcomeFailed       = "failed"
)

// Output is where a session's results go. Complete is the end-of-stream
// marker and is called at most once, after the last fragment.
type Output interface {
	commit.Sink
	Complete(ctx context.Context) error
}

// Config configures a Session.
type Config struct {
	SessionID    string
	Transport    string
	Geometry     window.Geometry
	ContextChars int
	Recorders    []Recorder
	// RecorderTimeout bounds each recorder call. Zero means five seconds.
	RecorderTimeout time.Duration
}

// Session is the per-stream pipeline. It is not safe for concurrent use;
// Run drives it from a single goroutine.
type Session struct {
	id        string
	transport string
	engine    transcriber.Transcriber
	out       Output

	buf   *audio.Buffer
	sched *window.Scheduler
	ctrl  *commit.Controller

	recorders []Recorder
	fanout    *fanout
	committed []commit.Fragment

	log   zerolog.Logger
	stats *metrics.SessionMetrics
	prom  *metrics.Metrics

	ended   bool
	outcome string
}

// NewSession creates a session and records it as started.
func NewSession(cfg Config, engine transcriber.Transcriber, out Output) *Session {
	s := &Session{
		id:        cfg.SessionID,
		transport: cfg.Transport,
		engine:    engine,
		buf:       audio.NewBuffer(2 * cfg.Geometry.ChunkSize),
		sched:     window.NewScheduler(cfg.Geometry),
		recorders: cfg.Recorders,
		log:       logging.WithSession(cfg.SessionID, cfg.Transport, engine.Name()),
		stats:     metrics.NewSessionMetrics(engine.Name(), cfg.Transport, cfg.SessionID, cfg.Geometry.SampleRate),
		prom:      metrics.DefaultMetrics,
	}
	if len(cfg.Recorders) > 0 {
		s.fanout = newFanout(cfg.Recorders, cfg.RecorderTimeout, 0, s.recorderFailed)
	}
	s.out = countingOutput{Output: out, session: s}
	s.ctrl = commit.NewController(cfg.Geometry, s.out, commit.Config{
		SessionID:    cfg.SessionID,
		ContextChars: cfg.ContextChars,
		OnDuplicate: func(text string) {
			s.stats.AddDuplicate()
			s.prom.RecordDuplicate()
			s.log.Debug().Str("text", text).Msg("Duplicate commit suppressed")
		},
	})
	s.prom.RecordSessionStart(cfg.Transport)
	s.log.Info().
		Int("chunkSize", cfg.Geometry.ChunkSize).
		Int("stepSize", cfg.Geometry.StepSize).
		Float64("safeStart", cfg.Geometry.SafeStart).
		Float64("safeEnd", cfg.Geometry.SafeEnd).
		Msg("Session started")
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Outcome returns how the session ended, or "" while it is running.
func (s *Session) Outcome() string { return s.outcome }

// State returns the commitment state.
func (s *Session) State() commit.State { return s.ctrl.State() }

// Metrics returns the per-session counters.
func (s *Session) Metrics() *metrics.SessionMetrics { return s.stats }

// HandleAudio appends samples and decodes every full window now available.
// A returned error is either ctx's error (disconnect) or an unexpected
// error from the output.
func (s *Session) HandleAudio(ctx context.Context, samples []float32) error {
	if s.ended {
		return ErrEnded
	}
	s.buf.Append(samples)
	for _, r := range s.recorders {
		if ar, ok := r.(AudioRecorder); ok {
			ar.Audio(s.id, samples)
		}
	}
	s.stats.AddSamples(len(samples))
	s.prom.RecordAudio(len(samples))
	return s.drainFull(ctx)
}

// Finish runs the end-of-stream path: decode remaining full windows,
// commit the held window, decode and commit the zero-padded tail, then
// signal completion. Nothing is emitted afterwards.
func (s *Session) Finish(ctx context.Context) error {
	if s.ended {
		return ErrEnded
	}
	s.ctrl.BeginDrain()
	s.log.Debug().Int("buffered", s.buf.Len()).Msg("End of stream, draining")

	if err := s.drainFull(ctx); err != nil {
		return err
	}
	if err := s.ctrl.Flush(ctx); err != nil {
		return fmt.Errorf("commit pending window: %w", err)
	}

	if w, ok := s.sched.Tail(s.buf); ok {
		s.prom.RecordWindow("tail")
		words, err := s.transcribe(ctx, w)
		if err != nil {
			return err
		}
		if err := s.ctrl.CommitTail(ctx, w, words); err != nil {
			return fmt.Errorf("commit tail window: %w", err)
		}
	}

	if err := s.out.Complete(ctx); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	s.end(OutcomeCompleted)
	return nil
}

// Fail runs the unexpected-error path: flush the held window if possible
// and stop. Errors raised while flushing are logged and dropped.
func (s *Session) Fail(ctx context.Context, cause error) {
	if s.ended {
		return
	}
	s.log.Error().Err(cause).Msg("Session failed, flushing pending window")
	if err := s.ctrl.Flush(ctx); err != nil {
		s.log.Debug().Err(err).Msg("Flush after failure")
	}
	s.end(OutcomeFailed)
}

// Abort stops the session after a disconnect. Nothing more is emitted.
func (s *Session) Abort() {
	if s.ended {
		return
	}
	s.log.Info().Msg("Client disconnected")
	s.end(OutcomeDisconnected)
}

// Run consumes events until the stream ends. It returns nil after a
// completed stream, ErrDisconnected or ctx's error after a disconnect, and
// the causing error after a failure. Cancelling ctx is a disconnect: events
// still queued are dropped.
func (s *Session) Run(ctx context.Context, inbound <-chan Event) error {
	for {
		if err := ctx.Err(); err != nil {
			s.Abort()
			return err
		}
		select {
		case <-ctx.Done():
			s.Abort()
			return ctx.Err()
		case ev, ok := <-inbound:
			if !ok {
				s.Abort()
				return ErrDisconnected
			}
			switch ev.Kind {
			case EventAudio:
				if err := s.HandleAudio(ctx, ev.Samples); err != nil {
					return s.stop(ctx, err)
				}
			case EventEndOfStream:
				if err := s.Finish(ctx); err != nil {
					return s.stop(ctx, err)
				}
				return nil
			case EventFailure:
				s.Fail(ctx, ev.Err)
				return ev.Err
			case EventDisconnect:
				s.Abort()
				return ErrDisconnected
			}
		}
	}
}

func (s *Session) stop(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.Abort()
		return ctx.Err()
	}
	s.Fail(ctx, err)
	return err
}

func (s *Session) drainFull(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, ok := s.sched.Next(s.buf)
		if !ok {
			return nil
		}
		s.prom.RecordWindow("full")
		words, err := s.transcribe(ctx, w)
		if err != nil {
			return err
		}
		if err := s.ctrl.Observe(ctx, w, words); err != nil {
			return fmt.Errorf("commit window %d: %w", w.Index, err)
		}
	}
}

// transcribe decodes w with the current context as prompt. Engine failures
// yield an empty word list so the stream keeps going; only a cancelled ctx
// is returned as an error.
func (s *Session) transcribe(ctx context.Context, w window.Window) ([]transcriber.Word, error) {
	words, err := s.engine.Transcribe(ctx, w.Samples, s.ctrl.Prompt())
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		s.stats.AddWindow(true)
		s.log.Warn().Err(err).Int("window", w.Index).Msg("Window transcription failed")
		return nil, nil
	}
	s.stats.AddWindow(false)
	s.log.Debug().Int("window", w.Index).Int("words", len(words)).Bool("tail", w.Padded).Msg("Window decoded")
	return words, nil
}

func (s *Session) end(outcome string) {
	s.ended = true
	s.outcome = outcome
	s.ctrl.Close()
	s.buf.Drain()

	s.stats.Finalize()
	s.prom.RecordSessionEnd(outcome, s.stats.Duration().Seconds())
	s.log.Info().
		Str("outcome", outcome).
		Int("fragments", s.ctrl.Emitted()).
		Msg("Session ended")
	s.log.Debug().Msg("Session summary:\n" + s.stats.Summary())

	if s.fanout == nil {
		return
	}
	s.fanout.End(Report{
		SessionID:  s.id,
		Transport:  s.transport,
		Engine:     s.engine.Name(),
		SampleRate: s.stats.SampleRate,
		Outcome:    outcome,
		Started:    s.stats.StartTime,
		Ended:      s.stats.StartTime.Add(s.stats.Duration()),
		Fragments:  s.committed,
	})
}

func (s *Session) recorderFailed(r Recorder, err error) {
	s.prom.RecordFanoutError(r.Name())
	s.log.Warn().Err(err).Str("sink", r.Name()).Msg("Recorder failed")
}

// countingOutput records fragment metrics on the way to the real output,
// then hands the fragment to the recorders.
type countingOutput struct {
	Output
	session *Session
}

func (o countingOutput) Emit(ctx context.Context, f commit.Fragment) error {
	o.session.stats.AddFragment(f.Text)
	o.session.prom.RecordFragment()
	o.session.log.Info().Int("seq", f.Seq).Int("window", f.Window).Str("text", f.Text).Msg("Fragment committed")

	err := o.Output.Emit(ctx, f)
	if o.session.fanout != nil {
		o.session.committed = append(o.session.committed, f)
		o.session.fanout.Fragment(f)
	}
	return err
}
