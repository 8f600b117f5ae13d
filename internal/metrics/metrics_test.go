package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionMetricsSummary(t *testing.T) {
	m := NewSessionMetrics("stub", "websocket", "abc", 16000)
	m.AddSamples(32000)
	m.AddWindow(false)
	m.AddWindow(true)
	m.AddFragment("hello")
	m.AddFragment("world")
	m.AddDuplicate()
	m.Finalize()

	if m.AudioSeconds() != 2 {
		t.Errorf("Expected 2s of audio, got %v", m.AudioSeconds())
	}
	if m.FirstFragmentTime == nil {
		t.Fatal("Expected first fragment time to be set")
	}
	end := m.EndTime
	m.Finalize()
	if !m.EndTime.Equal(end) {
		t.Error("Expected Finalize to keep the first end time")
	}
	if m.Duration() < 0 || m.Duration() > time.Minute {
		t.Errorf("Unexpected duration %v", m.Duration())
	}

	s := m.Summary()
	for _, want := range []string{
		"Engine: stub",
		"Session: abc",
		"Windows: 2 (failed 1)",
		"Fragments: 2 (duplicates suppressed 1)",
		"Transcript Length: 10 chars",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected summary to contain %q:\n%s", want, s)
		}
	}
}

func TestPrometheusRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionStart("websocket")
	m.RecordSessionStart("audiosocket")
	m.RecordSessionEnd("completed", 1.5)
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsEnded.WithLabelValues("completed")); got != 1 {
		t.Errorf("Expected 1 completed session, got %v", got)
	}

	m.RecordAudio(8000)
	m.RecordAudio(8000)
	if got := testutil.ToFloat64(m.AudioSamples); got != 16000 {
		t.Errorf("Expected 16000 samples, got %v", got)
	}

	m.RecordTranscribe("stub", 0.1, "")
	m.RecordTranscribe("stub", 0.2, "timeout")
	if got := testutil.ToFloat64(m.TranscribeError.WithLabelValues("stub", "timeout")); got != 1 {
		t.Errorf("Expected 1 timeout, got %v", got)
	}

	m.RecordSinkWrite("redis", "fragment", nil, 0.001)
	m.RecordSinkWrite("redis", "fragment", errors.New("down"), 0.001)
	if got := testutil.ToFloat64(m.SinkWrites.WithLabelValues("redis", "fragment", "error")); got != 1 {
		t.Errorf("Expected 1 failed sink write, got %v", got)
	}

	m.RecordRejected("websocket", "sample_rate")
	if got := testutil.ToFloat64(m.SessionsRejected.WithLabelValues("websocket", "sample_rate")); got != 1 {
		t.Errorf("Expected 1 rejection, got %v", got)
	}
}
