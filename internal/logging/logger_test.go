package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitLevel(t *testing.T) {
	old := log.Logger
	defer func() { log.Logger = old }()
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		InitWriter(Config{Level: tt.level}, &bytes.Buffer{})
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("level %q: expected %v, got %v", tt.level, tt.want, got)
		}
	}
}

func TestWithSessionFields(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	old := log.Logger
	defer func() { log.Logger = old }()

	var buf bytes.Buffer
	InitWriter(DefaultConfig(), &buf)

	l := WithSession("abc", "websocket", "stub")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	for k, want := range map[string]string{
		"sessionId": "abc",
		"transport": "websocket",
		"engine":    "stub",
		"component": "stream",
		"message":   "hello",
	} {
		if entry[k] != want {
			t.Errorf("Expected %s=%q, got %v", k, want, entry[k])
		}
	}
}

func TestConsoleFormat(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	old := log.Logger
	defer func() { log.Logger = old }()

	var buf bytes.Buffer
	InitWriter(Config{Level: "info", Format: "console"}, &buf)

	l := WithComponent("server")
	l.Info().Msg("listening")
	if strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("Expected console output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "listening") {
		t.Fatalf("Expected message in output, got %q", buf.String())
	}
}
