package metrics

import (
	"fmt"
	"sync"
	"time"
)

// SessionMetrics tracks one stream for the end-of-session summary log.
type SessionMetrics struct {
	Engine            string
	Transport         string
	SessionID         string
	SampleRate        int
	StartTime         time.Time
	EndTime           time.Time
	Samples           int
	Windows           int
	FailedWindows     int
	Fragments         int
	Duplicates        int
	TranscriptLength  int
	FirstFragmentTime *time.Time
	mu                sync.Mutex
}

func NewSessionMetrics(engine, transport, sessionID string, sampleRate int) *SessionMetrics {
	return &SessionMetrics{
		Engine:     engine,
		Transport:  transport,
		SessionID:  sessionID,
		SampleRate: sampleRate,
		StartTime:  time.Now(),
	}
}

func (m *SessionMetrics) AddSamples(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Samples += n
}

func (m *SessionMetrics) AddWindow(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Windows++
	if failed {
		m.FailedWindows++
	}
}

func (m *SessionMetrics) AddFragment(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstFragmentTime == nil {
		now := time.Now()
		m.FirstFragmentTime = &now
	}
	m.Fragments++
	m.TranscriptLength += len(text)
}

func (m *SessionMetrics) AddDuplicate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Duplicates++
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndTime.IsZero() {
		m.EndTime = time.Now()
	}
}

// Duration returns the wall time from start to Finalize (or now).
func (m *SessionMetrics) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// AudioSeconds returns the duration of audio received so far.
func (m *SessionMetrics) AudioSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioSeconds()
}

func (m *SessionMetrics) audioSeconds() float64 {
	if m.SampleRate <= 0 {
		return 0
	}
	return float64(m.Samples) / float64(m.SampleRate)
}

func (m *SessionMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	duration := end.Sub(m.StartTime)
	var latency time.Duration
	if m.FirstFragmentTime != nil {
		latency = m.FirstFragmentTime.Sub(m.StartTime)
	}

	audioDuration := m.audioSeconds()
	rtf := 0.0
	if audioDuration > 0 {
		rtf = duration.Seconds() / audioDuration
	}

	return fmt.Sprintf(
		"Engine: %s\n"+
			"Transport: %s\n"+
			"Session: %s\n"+
			"Duration: %v\n"+
			"Audio Duration: %.2f seconds\n"+
			"Samples: %d\n"+
			"Windows: %d (failed %d)\n"+
			"Fragments: %d (duplicates suppressed %d)\n"+
			"Transcript Length: %d chars\n"+
			"First Fragment Latency: %v\n"+
			"Real-time Factor: %.2fx\n",
		m.Engine,
		m.Transport,
		m.SessionID,
		duration,
		audioDuration,
		m.Samples,
		m.Windows,
		m.FailedWindows,
		m.Fragments,
		m.Duplicates,
		m.TranscriptLength,
		latency,
		rtf,
	)
}
