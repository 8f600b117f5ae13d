package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
	"github.com/amanullahtanweer/windowed-transcriber/internal/logging"
	"github.com/amanullahtanweer/windowed-transcriber/internal/metrics"
	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
)

// Text protocol markers.
const (
	EndOfStreamMarker = "EOS"
	DoneMarker        = "DONE"
)

const transportWebsocket = "websocket"

// WebsocketConfig configures the websocket endpoint.
type WebsocketConfig struct {
	Addr          string
	Path          string
	MaxFrameBytes int64
	WriteTimeout  time.Duration
}

// WebsocketServer accepts one stream per websocket connection.
type WebsocketServer struct {
	cfg      WebsocketConfig
	pipeline Pipeline
	upgrader websocket.Upgrader
	http     *http.Server
	log      zerolog.Logger
	metrics  *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWebsocketServer creates the server; call ListenAndServe to start it.
func NewWebsocketServer(cfg WebsocketConfig, p Pipeline) *WebsocketServer {
	if cfg.Path == "" {
		cfg.Path = "/ws/audio"
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 1 << 20
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebsocketServer{
		cfg:      cfg,
		pipeline: p,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     logging.WithComponent("websocket"),
		metrics: metrics.DefaultMetrics,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving the stream path. Health and
// metrics live on the observability server.
func (s *WebsocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleStream)
	return mux
}

// ListenAndServe blocks until Shutdown.
func (s *WebsocketServer) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.Addr).Str("path", s.cfg.Path).Msg("Websocket server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, disconnects open sessions and
// waits for them to end.
func (s *WebsocketServer) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// checkSampleRate validates the optional sample_rate query parameter.
func (s *WebsocketServer) checkSampleRate(r *http.Request) error {
	raw := r.URL.Query().Get("sample_rate")
	if raw == "" {
		return nil
	}
	rate, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid sample_rate %q", ErrSampleRateMismatch, raw)
	}
	if want := s.pipeline.Geometry.SampleRate; rate != want {
		return fmt.Errorf("%w: got %d, want %d", ErrSampleRateMismatch, rate, want)
	}
	return nil
}

func (s *WebsocketServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if err := s.checkSampleRate(r); err != nil {
		s.metrics.RecordRejected(transportWebsocket, "sample_rate")
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected stream")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Upgrade failed")
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer conn.Close()

	conn.SetReadLimit(s.cfg.MaxFrameBytes)

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	out := &websocketOutput{conn: conn, timeout: s.cfg.WriteTimeout}
	session := s.pipeline.newSession(id, transportWebsocket, out)
	inbound := s.pipeline.inbound()

	go s.readLoop(ctx, cancel, conn, inbound, session.ID())

	err = session.Run(ctx, inbound)
	switch session.Outcome() {
	case stream.OutcomeCompleted:
		out.close(websocket.CloseNormalClosure, "")
	case stream.OutcomeFailed:
		if errors.Is(err, audio.ErrMalformedFrame) {
			out.close(websocket.CloseUnsupportedData, "malformed audio frame")
		} else {
			out.close(websocket.CloseInternalServerErr, "internal error")
		}
	}
}

// readLoop decodes frames into events until the stream ends or the
// connection fails. It is the connection's only reader. A lost connection
// cancels the session through disconnect instead of queueing behind audio.
func (s *WebsocketServer) readLoop(ctx context.Context, disconnect context.CancelFunc, conn *websocket.Conn, inbound chan<- stream.Event, id string) {
	log := s.log.With().Str("sessionId", id).Logger()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				send(ctx, inbound, stream.Failure(fmt.Errorf("%w: frame exceeds %d bytes", audio.ErrMalformedFrame, s.cfg.MaxFrameBytes)))
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("Read ended")
			}
			disconnect()
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			samples, err := audio.DecodeFloat32LE(data)
			if err != nil {
				send(ctx, inbound, stream.Failure(err))
				return
			}
			if !send(ctx, inbound, stream.Audio(samples)) {
				return
			}
		case websocket.TextMessage:
			if string(data) == EndOfStreamMarker {
				send(ctx, inbound, stream.EndOfStream())
				return
			}
			log.Debug().Str("text", string(data)).Msg("Ignoring text message")
		}
	}
}

// websocketOutput writes fragments as text messages. Only the session
// goroutine writes.
type websocketOutput struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (o *websocketOutput) Emit(_ context.Context, f commit.Fragment) error {
	return o.write(f.Text)
}

func (o *websocketOutput) Complete(context.Context) error {
	return o.write(DoneMarker)
}

func (o *websocketOutput) write(text string) error {
	o.conn.SetWriteDeadline(time.Now().Add(o.timeout))
	if err := o.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (o *websocketOutput) close(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	o.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
