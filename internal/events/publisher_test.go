package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func enabledPublisher(frag, done *fakeWriter) *Publisher {
	p := New(&Config{Enabled: false, TopicFragments: "t.frag", TopicCompleted: "t.done", Principal: "svc"})
	p.writerFragments = frag
	p.writerCompleted = done
	p.enabled = true
	return p
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerFragments != nil || p.writerCompleted != nil {
				t.Error("expected nil writers when disabled")
			}
			if err := p.Fragment(context.Background(), commit.Fragment{SessionID: "s", Text: "hi"}); err != nil {
				t.Errorf("expected no error when disabled, got %v", err)
			}
			if err := p.Close(); err != nil {
				t.Errorf("expected no error closing disabled publisher, got %v", err)
			}
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{Enabled: true, Brokers: []string{"localhost:9092"}, TopicFragments: "a", TopicCompleted: "b"})
	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	w, ok := p.writerFragments.(*kafka.Writer)
	if !ok || w.Topic != "a" {
		t.Fatalf("expected kafka writer for topic a, got %#v", p.writerFragments)
	}
	if err := p.Close(); err != nil {
		t.Errorf("expected clean close, got %v", err)
	}
}

func TestPublisher_Fragment(t *testing.T) {
	frag, done := &fakeWriter{}, &fakeWriter{}
	p := enabledPublisher(frag, done)

	f := commit.Fragment{SessionID: "sess-1", Seq: 2, Window: 3, Text: "hello world", Start: 3.5, End: 4.25}
	if err := p.Fragment(context.Background(), f); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(frag.msgs) != 1 || len(done.msgs) != 0 {
		t.Fatalf("expected one fragment message, got %d/%d", len(frag.msgs), len(done.msgs))
	}
	msg := frag.msgs[0]
	if string(msg.Key) != "sess-1" {
		t.Errorf("expected key sess-1, got %s", msg.Key)
	}
	var ev FragmentEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != TypeFragment || ev.Text != "hello world" || ev.Seq != 2 || ev.StartSec != 3.5 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != TypeFragment || string(msg.Headers[1].Value) != "svc" {
		t.Errorf("unexpected headers: %+v", msg.Headers)
	}
}

func TestPublisher_End(t *testing.T) {
	frag, done := &fakeWriter{}, &fakeWriter{}
	p := enabledPublisher(frag, done)

	started := time.Now()
	r := stream.Report{
		SessionID: "sess-1",
		Transport: "websocket",
		Engine:    "stub",
		Outcome:   stream.OutcomeCompleted,
		Started:   started,
		Ended:     started.Add(1500 * time.Millisecond),
		Fragments: []commit.Fragment{{Text: "one"}, {Text: "two"}},
	}
	if err := p.End(context.Background(), r); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(done.msgs) != 1 {
		t.Fatalf("expected one completed message, got %d", len(done.msgs))
	}
	var ev CompletedEvent
	if err := json.Unmarshal(done.msgs[0].Value, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Transcript != "one two" || ev.Fragments != 2 || ev.DurationMs != 1500 || ev.Outcome != "completed" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := enabledPublisher(&fakeWriter{err: boom}, &fakeWriter{})

	err := p.Fragment(context.Background(), commit.Fragment{SessionID: "s", Text: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestPublisher_Close(t *testing.T) {
	frag, done := &fakeWriter{}, &fakeWriter{}
	p := enabledPublisher(frag, done)
	if err := p.Close(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !frag.closed || !done.closed {
		t.Error("expected both writers closed")
	}
}
