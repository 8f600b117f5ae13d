package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
)

// WhisperHTTPTranscriber posts windows to an OpenAI-compatible
// /v1/audio/transcriptions endpoint (faster-whisper and whisper.cpp servers
// expose one) and requests word timestamps.
type WhisperHTTPTranscriber struct {
	endpoint   string
	apiKey     string
	opts       Options
	httpClient *http.Client
	log        zerolog.Logger
}

type whisperWord struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability,omitempty"`
}

type whisperResponse struct {
	Text     string        `json:"text"`
	Words    []whisperWord `json:"words"`
	Segments []struct {
		Words []whisperWord `json:"words"`
	} `json:"segments"`
}

func NewWhisperHTTPTranscriber(endpoint, apiKey string, opts Options) (*WhisperHTTPTranscriber, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("whisper endpoint URL is required")
	}
	return &WhisperHTTPTranscriber{
		endpoint:   endpoint,
		apiKey:     apiKey,
		opts:       opts,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("component", "engine.whisper_http").Str("url", endpoint).Logger(),
	}, nil
}

func (wt *WhisperHTTPTranscriber) Name() string { return "whisper-http" }

func (wt *WhisperHTTPTranscriber) Close() error {
	wt.httpClient.CloseIdleConnections()
	return nil
}

// Transcribe implements Transcriber.
func (wt *WhisperHTTPTranscriber) Transcribe(ctx context.Context, samples []float32, prompt string) ([]Word, error) {
	body, contentType, err := wt.form(samples, prompt)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wt.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if wt.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+wt.apiKey)
	}

	resp, err := wt.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisper request: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var parsed whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}

	raw := parsed.Words
	if len(raw) == 0 {
		for _, seg := range parsed.Segments {
			raw = append(raw, seg.Words...)
		}
	}
	words := make([]Word, 0, len(raw))
	for _, w := range raw {
		word := TimedWord(leadingSpace(w.Word), w.Start, w.End)
		if w.Probability != nil {
			word = word.WithConfidence(*w.Probability)
		}
		words = append(words, word)
	}

	wt.log.Debug().Int("words", len(words)).Int("prompt_chars", len(prompt)).Msg("whisper window decoded")
	return words, nil
}

func (wt *WhisperHTTPTranscriber) form(samples []float32, prompt string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "window.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.EncodeWAV(samples, wt.opts.SampleRate)); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}

	fields := [][2]string{
		{"temperature", "0"},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
	}
	if wt.opts.Model != "" {
		fields = append(fields, [2]string{"model", wt.opts.Model})
	}
	if wt.opts.Language != "" {
		fields = append(fields, [2]string{"language", wt.opts.Language})
	}
	if prompt != "" && wt.opts.ConditionOnPreviousText {
		fields = append(fields, [2]string{"prompt", prompt})
	}
	if wt.opts.BeamSize > 0 {
		fields = append(fields, [2]string{"beam_size", strconv.Itoa(wt.opts.BeamSize)})
	}
	if wt.opts.BestOf > 0 {
		fields = append(fields, [2]string{"best_of", strconv.Itoa(wt.opts.BestOf)})
	}
	fields = append(fields, [2]string{"vad_filter", strconv.FormatBool(wt.opts.VADFilter)})
	if wt.opts.VADFilter && wt.opts.MinSilenceDurationMs > 0 {
		fields = append(fields, [2]string{"min_silence_duration_ms", strconv.Itoa(wt.opts.MinSilenceDurationMs)})
	}
	for k, v := range wt.opts.Extra {
		fields = append(fields, [2]string{k, v})
	}

	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
