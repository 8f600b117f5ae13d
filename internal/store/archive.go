package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
	"github.com/amanullahtanweer/windowed-transcriber/internal/logging"
	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
)

// ArchiveConfig configures the file archive.
type ArchiveConfig struct {
	OutputDir       string
	SaveTranscripts bool
	SaveAudio       bool
}

// Archive writes each finished session's transcript, and optionally its
// audio, to OutputDir. It is shared by all sessions.
type Archive struct {
	cfg ArchiveConfig
	log zerolog.Logger

	mu    sync.Mutex
	audio map[string][]float32
}

// NewArchive creates the output directory if needed.
func NewArchive(cfg ArchiveConfig) (*Archive, error) {
	if (cfg.SaveTranscripts || cfg.SaveAudio) && cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return &Archive{
		cfg:   cfg,
		log:   logging.WithComponent("archive"),
		audio: make(map[string][]float32),
	}, nil
}

// Name identifies the archive in logs and metrics.
func (a *Archive) Name() string { return "archive" }

// Audio buffers samples for the session when audio saving is on.
func (a *Archive) Audio(sessionID string, samples []float32) {
	if !a.cfg.SaveAudio {
		return
	}
	a.mu.Lock()
	a.audio[sessionID] = append(a.audio[sessionID], samples...)
	a.mu.Unlock()
}

// Fragment is a no-op; the transcript is written from the final report.
func (a *Archive) Fragment(context.Context, commit.Fragment) error { return nil }

// End writes the session files.
func (a *Archive) End(_ context.Context, r stream.Report) error {
	a.mu.Lock()
	samples := a.audio[r.SessionID]
	delete(a.audio, r.SessionID)
	a.mu.Unlock()

	base := filepath.Join(a.cfg.OutputDir, a.basename(r))

	transcript := r.Transcript()
	if a.cfg.SaveTranscripts && transcript != "" {
		metadata := fmt.Sprintf("Session ID: %s\nEngine: %s\nTransport: %s\nStart Time: %s\nDuration: %v\nSample Rate: %dHz\nOutcome: %s\n\n---TRANSCRIPT---\n\n",
			r.SessionID,
			r.Engine,
			r.Transport,
			r.Started.Format("2006-01-02 15:04:05"),
			r.Ended.Sub(r.Started),
			r.SampleRate,
			r.Outcome,
		)
		filename := base + ".txt"
		if err := os.WriteFile(filename, []byte(metadata+transcript+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to save transcript: %w", err)
		}
		a.log.Info().Str("sessionId", r.SessionID).Str("file", filename).Msg("Transcript saved")
	}

	if a.cfg.SaveAudio && len(samples) > 0 {
		filename := base + ".wav"
		if err := os.WriteFile(filename, audio.EncodeWAV(samples, r.SampleRate), 0644); err != nil {
			return fmt.Errorf("failed to save audio: %w", err)
		}
		a.log.Info().
			Str("sessionId", r.SessionID).
			Str("file", filename).
			Float64("seconds", float64(len(samples))/float64(r.SampleRate)).
			Msg("Audio saved")
	}
	return nil
}

func (a *Archive) basename(r stream.Report) string {
	id := r.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s", r.Started.Format("20060102_150405"), r.Engine, id)
}

var _ stream.AudioRecorder = (*Archive)(nil)
