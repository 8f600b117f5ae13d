package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
)

// voskChunkBytes is 250 ms of 16 kHz slin per binary message.
const voskChunkBytes = 8000

// VoskTranscriber decodes each window on a fresh Vosk server recognizer.
// Vosk does not accept a text prompt; it is ignored.
type VoskTranscriber struct {
	serverURL  string
	sampleRate int
	dialer     *websocket.Dialer
	log        zerolog.Logger
}

type voskConfig struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
		Words      int `json:"words"`
	} `json:"config"`
}

type VoskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

func NewVoskTranscriber(serverURL string, sampleRate int) (*VoskTranscriber, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("vosk server URL is required")
	}
	return &VoskTranscriber{
		serverURL:  serverURL,
		sampleRate: sampleRate,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "engine.vosk").Str("url", serverURL).Logger(),
	}, nil
}

func (vt *VoskTranscriber) Name() string { return "vosk" }

func (vt *VoskTranscriber) Close() error { return nil }

// Transcribe implements Transcriber.
func (vt *VoskTranscriber) Transcribe(ctx context.Context, samples []float32, prompt string) ([]Word, error) {
	conn, _, err := vt.dialer.DialContext(ctx, vt.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Vosk server: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller gives up on this window.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var cfg voskConfig
	cfg.Config.SampleRate = vt.sampleRate
	cfg.Config.Words = 1
	if err := conn.WriteJSON(cfg); err != nil {
		return nil, vt.ctxErr(ctx, fmt.Errorf("failed to send config to Vosk: %w", err))
	}

	pcm := audio.EncodeSlin16LE(samples)
	for i := 0; i < len(pcm); i += voskChunkBytes {
		end := i + voskChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[i:end]); err != nil {
			return nil, vt.ctxErr(ctx, fmt.Errorf("failed to send audio to Vosk: %w", err))
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`)); err != nil {
		return nil, vt.ctxErr(ctx, fmt.Errorf("failed to send EOF to Vosk: %w", err))
	}

	var words []Word
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, io.EOF) {
				break
			}
			return nil, vt.ctxErr(ctx, fmt.Errorf("vosk websocket error: %w", err))
		}

		var result VoskResult
		if err := json.Unmarshal(message, &result); err != nil {
			vt.log.Warn().Err(err).Msg("Failed to parse Vosk result")
			continue
		}
		for _, r := range result.Result {
			words = append(words, TimedWord(leadingSpace(r.Word), r.Start, r.End).WithConfidence(r.Conf))
		}
	}

	vt.log.Debug().Int("words", len(words)).Msg("vosk window decoded")
	return words, nil
}

func (vt *VoskTranscriber) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
