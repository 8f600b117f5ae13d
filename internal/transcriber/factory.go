package transcriber

import (
	"fmt"
)

// Engine names accepted by New.
const (
	EngineStub        = "stub"
	EngineVosk        = "vosk"
	EngineWhisperHTTP = "whisper-http"
)

// EngineConfig selects and configures a concrete engine.
type EngineConfig struct {
	Provider string
	URL      string
	APIKey   string
	// StubThreshold is the RMS level the stub engine treats as voiced.
	StubThreshold float64
	Options       Options
}

// New builds the engine named by cfg.Provider.
func New(cfg EngineConfig) (Transcriber, error) {
	switch cfg.Provider {
	case EngineStub, "":
		return NewStubTranscriber(cfg.Options.SampleRate, cfg.StubThreshold), nil
	case EngineVosk:
		return NewVoskTranscriber(cfg.URL, cfg.Options.SampleRate)
	case EngineWhisperHTTP:
		return NewWhisperHTTPTranscriber(cfg.URL, cfg.APIKey, cfg.Options)
	default:
		return nil, fmt.Errorf("unknown engine: %s", cfg.Provider)
	}
}
