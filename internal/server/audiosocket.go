package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
	"github.com/amanullahtanweer/windowed-transcriber/internal/logging"
	"github.com/amanullahtanweer/windowed-transcriber/internal/metrics"
	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
)

// AudioSocketRate is the fixed sample rate of AudioSocket slin payloads.
const AudioSocketRate = 8000

const transportAudioSocket = "audiosocket"

// AudioSocketServer accepts Asterisk AudioSocket calls. Each call is one
// stream; fragments go to the pipeline's recorders.
type AudioSocketServer struct {
	addr     string
	pipeline Pipeline
	listener net.Listener
	log      zerolog.Logger
	metrics  *metrics.Metrics

	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	shutdown chan struct{}
	stopped  bool
}

// NewAudioSocketServer creates a server listening on addr once Start is
// called.
func NewAudioSocketServer(addr string, p Pipeline) *AudioSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &AudioSocketServer{
		addr:     addr,
		pipeline: p,
		log:      logging.WithComponent("audiosocket"),
		metrics:  metrics.DefaultMetrics,
		baseCtx:  ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}
}

// Start listens and serves until Stop.
func (s *AudioSocketServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts calls on listener until Stop.
func (s *AudioSocketServer) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()
	s.log.Info().Str("addr", listener.Addr().String()).Msg("AudioSocket server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn().Err(err).Msg("Accept error")
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.HandleConn(conn)
		}()
	}
}

// Stop closes the listener, disconnects active calls and waits for them.
func (s *AudioSocketServer) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// HandleConn runs one call to completion and closes conn.
func (s *AudioSocketServer) HandleConn(conn net.Conn) {
	defer conn.Close()

	id, err := audiosocket.GetID(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("Failed to get ID")
		return
	}
	log := s.log.With().Str("sessionId", id.String()).Logger()

	if want := s.pipeline.Geometry.SampleRate; want != AudioSocketRate {
		s.metrics.RecordRejected(transportAudioSocket, "sample_rate")
		log.Error().
			Err(fmt.Errorf("%w: audiosocket carries %d Hz, configured for %d Hz", ErrSampleRateMismatch, AudioSocketRate, want)).
			Msg("Rejected call")
		conn.Write(audiosocket.HangupMessage())
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	session := s.pipeline.newSession(id.String(), transportAudioSocket, discardOutput{})
	inbound := s.pipeline.inbound()
	go readMessages(ctx, cancel, conn, inbound, log)

	if err := session.Run(ctx, inbound); err != nil && !errors.Is(err, stream.ErrDisconnected) && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Call ended with error")
	}
}

// readMessages decodes AudioSocket messages into session events. A read
// error means the call is gone and cancels the session through disconnect.
func readMessages(ctx context.Context, disconnect context.CancelFunc, r io.Reader, inbound chan<- stream.Event, log zerolog.Logger) {
	for {
		msg, err := audiosocket.NextMessage(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Msg("Failed to read message")
			}
			disconnect()
			return
		}

		switch msg.Kind() {
		case audiosocket.KindSlin:
			samples, err := audio.DecodeSlin16LE(msg.Payload())
			if err != nil {
				send(ctx, inbound, stream.Failure(err))
				return
			}
			if !send(ctx, inbound, stream.Audio(samples)) {
				return
			}
		case audiosocket.KindHangup:
			log.Info().Msg("Received hangup")
			send(ctx, inbound, stream.EndOfStream())
			return
		case audiosocket.KindError:
			send(ctx, inbound, stream.Failure(fmt.Errorf("audiosocket error code %d", msg.ErrorCode())))
			return
		case audiosocket.KindDTMF:
			if p := msg.Payload(); len(p) > 0 {
				log.Debug().Str("digit", string(p[0])).Msg("DTMF")
			}
		case audiosocket.KindSilence:
			log.Debug().Msg("Silence detected")
		}
	}
}

// discardOutput is the primary output of calls, which have no return
// channel for text.
type discardOutput struct{}

func (discardOutput) Emit(context.Context, commit.Fragment) error { return nil }
func (discardOutput) Complete(context.Context) error              { return nil }
