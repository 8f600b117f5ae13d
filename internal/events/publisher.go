// Package events publishes transcript events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
	"github.com/amanullahtanweer/windowed-transcriber/internal/metrics"
	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	TopicFragments string   `yaml:"topic_fragments"`
	TopicCompleted string   `yaml:"topic_completed"`
	Principal      string   `yaml:"principal"`
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes fragment and completion events keyed by session id.
// It implements stream.Recorder.
type Publisher struct {
	writerFragments messageWriter
	writerCompleted messageWriter
	principal       string
	topicFragments  string
	topicCompleted  string
	enabled         bool
	metrics         *metrics.Metrics
}

// New creates a publisher. A nil or disabled config yields a log-only
// publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicFragments: cfg.TopicFragments,
			topicCompleted: cfg.TopicCompleted,
			metrics:        m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicFragments", cfg.TopicFragments).
		Str("topicCompleted", cfg.TopicCompleted).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerFragments: newWriter(cfg.TopicFragments),
		writerCompleted: newWriter(cfg.TopicCompleted),
		principal:       cfg.Principal,
		topicFragments:  cfg.TopicFragments,
		topicCompleted:  cfg.TopicCompleted,
		enabled:         true,
		metrics:         m,
	}
}

// Name identifies the publisher in logs and metrics.
func (p *Publisher) Name() string { return "kafka" }

// Fragment publishes a transcript.fragment event.
func (p *Publisher) Fragment(ctx context.Context, f commit.Fragment) error {
	return p.publish(ctx, p.writerFragments, p.topicFragments, TypeFragment, f.SessionID, FragmentEvent{
		EventType: TypeFragment,
		SessionID: f.SessionID,
		Seq:       f.Seq,
		Window:    f.Window,
		Text:      f.Text,
		StartSec:  f.Start,
		EndSec:    f.End,
		Tail:      f.Tail,
		Timestamp: time.Now().UnixMilli(),
	})
}

// End publishes a transcript.completed event.
func (p *Publisher) End(ctx context.Context, r stream.Report) error {
	return p.publish(ctx, p.writerCompleted, p.topicCompleted, TypeCompleted, r.SessionID, CompletedEvent{
		EventType:  TypeCompleted,
		SessionID:  r.SessionID,
		Transport:  r.Transport,
		Engine:     r.Engine,
		Outcome:    r.Outcome,
		Fragments:  len(r.Fragments),
		Transcript: r.Transcript(),
		DurationMs: r.Ended.Sub(r.Started).Milliseconds(),
		Timestamp:  time.Now().UnixMilli(),
	})
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	log.Debug().
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}
	err = writer.WriteMessages(ctx, msg)
	p.metrics.RecordSinkWrite(p.Name(), eventType, err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("write %s to %s: %w", eventType, topic, err)
	}
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerFragments != nil {
		if e := p.writerFragments.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing fragments writer")
			err = e
		}
	}
	if p.writerCompleted != nil {
		if e := p.writerCompleted.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing completed writer")
			err = e
		}
	}
	return err
}

var _ stream.Recorder = (*Publisher)(nil)
