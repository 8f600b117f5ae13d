// Package config loads service configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amanullahtanweer/windowed-transcriber/internal/events"
	"github.com/amanullahtanweer/windowed-transcriber/internal/logging"
	"github.com/amanullahtanweer/windowed-transcriber/internal/store"
	"github.com/amanullahtanweer/windowed-transcriber/internal/transcriber"
	"github.com/amanullahtanweer/windowed-transcriber/internal/window"
)

// Config is the full service configuration.
type Config struct {
	Server struct {
		Host          string        `yaml:"host"`
		Port          int           `yaml:"port"`
		Path          string        `yaml:"path"`
		MaxFrameBytes int64         `yaml:"max_frame_bytes"`
		WriteTimeout  time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`
	AudioSocket struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"audiosocket"`
	Audio struct {
		SampleRate    int     `yaml:"sample_rate"`
		WindowSeconds float64 `yaml:"window_seconds"`
		Overlap       float64 `yaml:"overlap"`
		ContextChars  int     `yaml:"context_chars"`
	} `yaml:"audio"`
	Engine struct {
		Provider                string            `yaml:"provider"`
		URL                     string            `yaml:"url"`
		APIKey                  string            `yaml:"api_key"`
		Model                   string            `yaml:"model"`
		Language                string            `yaml:"language"`
		BeamSize                int               `yaml:"beam_size"`
		BestOf                  int               `yaml:"best_of"`
		ConditionOnPreviousText bool              `yaml:"condition_on_previous_text"`
		VADFilter               bool              `yaml:"vad_filter"`
		MinSilenceDurationMs    int               `yaml:"min_silence_duration_ms"`
		StubThreshold           float64           `yaml:"stub_threshold"`
		Workers                 int               `yaml:"workers"`
		Timeout                 time.Duration     `yaml:"timeout"`
		Extra                   map[string]string `yaml:"extra"`
	} `yaml:"engine"`
	Transcription struct {
		OutputDir       string `yaml:"output_dir"`
		SaveTranscripts bool   `yaml:"save_transcripts"`
		SaveAudio       bool   `yaml:"save_audio"`
		SaveJournal     bool   `yaml:"save_journal"`
	} `yaml:"transcription"`
	Redis         store.RedisConfig `yaml:"redis"`
	Kafka         events.Config     `yaml:"kafka"`
	Logging       logging.Config    `yaml:"logging"`
	Observability struct {
		Addr           string `yaml:"addr"`
		HealthGRPCAddr string `yaml:"health_grpc_addr"`
	} `yaml:"observability"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8000
	c.Server.Path = "/ws/audio"
	c.Server.MaxFrameBytes = 1 << 20
	c.Server.WriteTimeout = 10 * time.Second

	c.AudioSocket.Host = "0.0.0.0"
	c.AudioSocket.Port = 9092

	c.Audio.SampleRate = 16000
	c.Audio.WindowSeconds = 2.0
	c.Audio.Overlap = 0.5
	c.Audio.ContextChars = 220

	c.Engine.Provider = transcriber.EngineStub
	c.Engine.Language = "en"
	c.Engine.BeamSize = 5
	c.Engine.BestOf = 5
	c.Engine.ConditionOnPreviousText = true
	c.Engine.VADFilter = true
	c.Engine.MinSilenceDurationMs = 500
	c.Engine.StubThreshold = 0.02

	c.Transcription.OutputDir = "./transcripts"

	c.Redis.Addr = "localhost:6379"
	c.Redis.Prefix = "wt:session:"
	c.Redis.TTL = 24 * time.Hour

	c.Kafka.TopicFragments = "transcript.fragment"
	c.Kafka.TopicCompleted = "transcript.completed"
	c.Kafka.Principal = "windowed-transcriber"

	c.Logging = logging.DefaultConfig()
	c.Observability.Addr = ":9090"
	return c
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	c.Audio.SampleRate = envInt("WT_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.WindowSeconds = envFloat("WT_WINDOW_SECONDS", c.Audio.WindowSeconds)
	c.Audio.Overlap = envFloat("WT_OVERLAP", c.Audio.Overlap)
	c.Audio.ContextChars = envInt("WT_CONTEXT_CHARS", c.Audio.ContextChars)

	c.Engine.Provider = envString("WT_ENGINE", c.Engine.Provider)
	c.Engine.URL = envString("WT_ENGINE_URL", c.Engine.URL)
	c.Engine.APIKey = envString("WT_ENGINE_API_KEY", c.Engine.APIKey)
	c.Engine.Workers = envInt("WT_ENGINE_WORKERS", c.Engine.Workers)

	c.Server.Port = envInt("WT_PORT", c.Server.Port)

	if addr := os.Getenv("WT_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	if brokers := os.Getenv("WT_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
		c.Kafka.Enabled = true
	}
	c.Logging.Level = envString("WT_LOG_LEVEL", c.Logging.Level)
}

// Validate checks the window geometry and the engine selection.
func (c *Config) Validate() error {
	if _, err := c.Geometry(); err != nil {
		return err
	}
	switch c.Engine.Provider {
	case transcriber.EngineStub, transcriber.EngineVosk, transcriber.EngineWhisperHTTP:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine.Provider)
	}
	if c.Engine.Provider != transcriber.EngineStub && c.Engine.URL == "" {
		return fmt.Errorf("engine %s requires engine.url", c.Engine.Provider)
	}
	if c.Audio.ContextChars <= 0 {
		return fmt.Errorf("audio.context_chars must be positive, got %d", c.Audio.ContextChars)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative, got %d", c.Engine.Workers)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.enabled requires kafka.brokers")
	}
	return nil
}

// Geometry derives the window geometry.
func (c *Config) Geometry() (window.Geometry, error) {
	return window.NewGeometry(c.Audio.SampleRate, c.Audio.WindowSeconds, c.Audio.Overlap)
}

// EngineConfig maps the engine section for transcriber.New.
func (c *Config) EngineConfig() transcriber.EngineConfig {
	e := c.Engine
	return transcriber.EngineConfig{
		Provider:      e.Provider,
		URL:           e.URL,
		APIKey:        e.APIKey,
		StubThreshold: e.StubThreshold,
		Options: transcriber.Options{
			SampleRate:              c.Audio.SampleRate,
			Model:                   e.Model,
			Language:                e.Language,
			BeamSize:                e.BeamSize,
			BestOf:                  e.BestOf,
			ConditionOnPreviousText: e.ConditionOnPreviousText,
			VADFilter:               e.VADFilter,
			MinSilenceDurationMs:    e.MinSilenceDurationMs,
			Extra:                   e.Extra,
		},
	}
}

// ServerAddr is the websocket listen address.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AudioSocketAddr is the AudioSocket listen address.
func (c *Config) AudioSocketAddr() string {
	return fmt.Sprintf("%s:%d", c.AudioSocket.Host, c.AudioSocket.Port)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
