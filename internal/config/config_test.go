package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amanullahtanweer/windowed-transcriber/internal/window"
)

var envVars = []string{
	"WT_SAMPLE_RATE", "WT_WINDOW_SECONDS", "WT_OVERLAP", "WT_CONTEXT_CHARS",
	"WT_ENGINE", "WT_ENGINE_URL", "WT_ENGINE_API_KEY", "WT_ENGINE_WORKERS",
	"WT_PORT", "WT_REDIS_ADDR", "WT_KAFKA_BROKERS", "WT_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected missing file to be allowed, got %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.WindowSeconds != 2.0 || cfg.Audio.Overlap != 0.5 {
		t.Errorf("expected 2.0s windows with 0.5 overlap, got %v/%v", cfg.Audio.WindowSeconds, cfg.Audio.Overlap)
	}
	if cfg.Audio.ContextChars != 220 {
		t.Errorf("expected 220 context chars, got %d", cfg.Audio.ContextChars)
	}
	if cfg.Engine.Provider != "stub" || cfg.Engine.Language != "en" {
		t.Errorf("expected stub engine in en, got %s/%s", cfg.Engine.Provider, cfg.Engine.Language)
	}
	if cfg.Engine.BeamSize != 5 || cfg.Engine.BestOf != 5 {
		t.Errorf("expected beam 5 best-of 5, got %d/%d", cfg.Engine.BeamSize, cfg.Engine.BestOf)
	}
	if !cfg.Engine.ConditionOnPreviousText || !cfg.Engine.VADFilter || cfg.Engine.MinSilenceDurationMs != 500 {
		t.Errorf("unexpected decode defaults: %+v", cfg.Engine)
	}
	if cfg.Server.MaxFrameBytes != 1<<20 {
		t.Errorf("expected 1 MiB frame limit, got %d", cfg.Server.MaxFrameBytes)
	}
	if cfg.Redis.Enabled || cfg.Kafka.Enabled {
		t.Error("expected redis and kafka disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
  write_timeout: 3s
audio:
  sample_rate: 8000
  window_seconds: 4
  overlap: 0.25
engine:
  provider: vosk
  url: ws://localhost:2700
  timeout: 1500ms
redis:
  enabled: true
  addr: redis:6379
  ttl: 1h
kafka:
  enabled: true
  brokers: [k1:9092, k2:9092]
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.WriteTimeout != 3*time.Second {
		t.Errorf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Audio.SampleRate != 8000 || cfg.Audio.WindowSeconds != 4 || cfg.Audio.Overlap != 0.25 {
		t.Errorf("unexpected audio section: %+v", cfg.Audio)
	}
	if cfg.Audio.ContextChars != 220 {
		t.Errorf("expected unset keys to keep defaults, got %d", cfg.Audio.ContextChars)
	}
	if cfg.Engine.Provider != "vosk" || cfg.Engine.Timeout != 1500*time.Millisecond {
		t.Errorf("unexpected engine section: %+v", cfg.Engine)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" || cfg.Redis.TTL != time.Hour {
		t.Errorf("unexpected redis section: %+v", cfg.Redis)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.TopicFragments != "transcript.fragment" {
		t.Errorf("unexpected kafka section: %+v", cfg.Kafka)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("unexpected logging section: %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected file config to validate, got %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "audio: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WT_SAMPLE_RATE", "8000")
	t.Setenv("WT_WINDOW_SECONDS", "3")
	t.Setenv("WT_OVERLAP", "0.75")
	t.Setenv("WT_CONTEXT_CHARS", "100")
	t.Setenv("WT_ENGINE", "whisper-http")
	t.Setenv("WT_ENGINE_URL", "http://whisper:8080/v1/audio/transcriptions")
	t.Setenv("WT_ENGINE_WORKERS", "3")
	t.Setenv("WT_REDIS_ADDR", "cache:6379")
	t.Setenv("WT_KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("WT_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.SampleRate != 8000 || cfg.Audio.WindowSeconds != 3 || cfg.Audio.Overlap != 0.75 || cfg.Audio.ContextChars != 100 {
		t.Errorf("unexpected audio overrides: %+v", cfg.Audio)
	}
	if cfg.Engine.Provider != "whisper-http" || cfg.Engine.Workers != 3 {
		t.Errorf("unexpected engine overrides: %+v", cfg.Engine)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Errorf("expected redis enabled at cache:6379, got %+v", cfg.Redis)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("expected two kafka brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("WT_SAMPLE_RATE", "fast")
	t.Setenv("WT_OVERLAP", "half")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("expected fallback sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Overlap != 0.5 {
		t.Errorf("expected fallback overlap 0.5, got %v", cfg.Audio.Overlap)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		geom   bool
	}{
		{"overlap one", func(c *Config) { c.Audio.Overlap = 1 }, true},
		{"zero rate", func(c *Config) { c.Audio.SampleRate = 0 }, true},
		{"unknown engine", func(c *Config) { c.Engine.Provider = "assemblyai" }, false},
		{"vosk without url", func(c *Config) { c.Engine.Provider = "vosk" }, false},
		{"no context", func(c *Config) { c.Audio.ContextChars = 0 }, false},
		{"negative workers", func(c *Config) { c.Engine.Workers = -1 }, false},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tt.geom && !errors.Is(err, window.ErrInvalidGeometry) {
				t.Errorf("expected ErrInvalidGeometry, got %v", err)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := Default()
	cfg.Engine.Extra = map[string]string{"temperature_increment_on_fallback": "0"}
	ec := cfg.EngineConfig()
	if ec.Provider != "stub" || ec.Options.SampleRate != 16000 || ec.Options.BeamSize != 5 {
		t.Errorf("unexpected engine config: %+v", ec)
	}
	if ec.Options.Extra["temperature_increment_on_fallback"] != "0" {
		t.Errorf("expected extra options passed through")
	}
}

func TestGeometry(t *testing.T) {
	cfg := Default()
	g, err := cfg.Geometry()
	if err != nil {
		t.Fatalf("Geometry: %v", err)
	}
	if g.ChunkSize != 32000 || g.StepSize != 16000 {
		t.Errorf("expected 32000/16000, got %d/%d", g.ChunkSize, g.StepSize)
	}

	cfg.Audio.WindowSeconds = 0
	if _, err := cfg.Geometry(); !errors.Is(err, window.ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry, got %v", err)
	}
}
