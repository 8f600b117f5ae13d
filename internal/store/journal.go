package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
)

// Journal writes one JSONL file per session, a line per committed fragment
// followed by a session_end line.
type Journal struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	files map[string]*os.File
}

type journalRecord struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	Seq       *int              `json:"seq,omitempty"`
	Window    *int              `json:"window,omitempty"`
	Text      string            `json:"text,omitempty"`
	Start     *float64          `json:"start,omitempty"`
	End       *float64          `json:"end,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewJournal creates dir if needed.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Journal{dir: dir, now: time.Now, files: make(map[string]*os.File)}, nil
}

// Name identifies the journal in logs and metrics.
func (j *Journal) Name() string { return "journal" }

// Fragment appends a fragment line.
func (j *Journal) Fragment(_ context.Context, f commit.Fragment) error {
	return j.write(f.SessionID, journalRecord{
		Event:  "fragment",
		Seq:    &f.Seq,
		Window: &f.Window,
		Text:   f.Text,
		Start:  &f.Start,
		End:    &f.End,
	}, false)
}

// End appends the session_end line and closes the file.
func (j *Journal) End(_ context.Context, r stream.Report) error {
	return j.write(r.SessionID, journalRecord{
		Event: "session_end",
		Details: map[string]string{
			"outcome":   r.Outcome,
			"transport": r.Transport,
			"engine":    r.Engine,
			"fragments": strconv.Itoa(len(r.Fragments)),
		},
	}, true)
}

func (j *Journal) write(sessionID string, rec journalRecord, last bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.open(sessionID)
	if err != nil {
		return err
	}
	rec.SessionID = sessionID
	rec.Timestamp = j.now().Format(time.RFC3339Nano)
	err = json.NewEncoder(f).Encode(rec)

	if last {
		delete(j.files, sessionID)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("journal %s: %w", sessionID, err)
	}
	return nil
}

func (j *Journal) open(sessionID string) (*os.File, error) {
	if f, ok := j.files[sessionID]; ok {
		return f, nil
	}
	shortID := sessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	name := filepath.Join(j.dir, fmt.Sprintf("%s_session_%s.jsonl", j.now().Format("20060102_150405"), shortID))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j.files[sessionID] = f
	return f, nil
}

// Close closes files of sessions that never ended.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var err error
	for id, f := range j.files {
		if e := f.Close(); e != nil {
			err = e
		}
		delete(j.files, id)
	}
	return err
}

var _ stream.Recorder = (*Journal)(nil)
