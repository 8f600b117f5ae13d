// Package store persists session transcripts to Redis and to local files.
package store

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
	"github.com/amanullahtanweer/windowed-transcriber/internal/metrics"
	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
)

// RedisConfig configures the Redis transcript store.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// RedisStore keeps each session's fragments in a list and its status in a
// hash:
//
//	<prefix><session>:fragments  RPUSH per fragment
//	<prefix><session>            HSET status, fragments, completed_at ...
type RedisStore struct {
	redis   redis.Cmdable
	closer  func() error
	prefix  string
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewRedisStore connects a go-redis client for cfg.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := newRedisStore(client, cfg.Prefix, cfg.TTL)
	s.closer = client.Close
	return s
}

func newRedisStore(c redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redis:   c,
		prefix:  prefix,
		ttl:     ttl,
		metrics: metrics.DefaultMetrics,
	}
}

// Name identifies the store in logs and metrics.
func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) metaKey(sessionID string) string { return s.prefix + sessionID }

func (s *RedisStore) fragmentsKey(sessionID string) string {
	return s.prefix + sessionID + ":fragments"
}

// Fragment appends f to the session's fragment list.
func (s *RedisStore) Fragment(ctx context.Context, f commit.Fragment) error {
	start := time.Now()
	err := s.fragment(ctx, f)
	s.metrics.RecordSinkWrite(s.Name(), "fragment", err, time.Since(start).Seconds())
	return err
}

func (s *RedisStore) fragment(ctx context.Context, f commit.Fragment) error {
	listKey := s.fragmentsKey(f.SessionID)
	if err := s.redis.RPush(ctx, listKey, f.Text).Err(); err != nil {
		return fmt.Errorf("redis RPUSH %s: %w", listKey, err)
	}
	metaKey := s.metaKey(f.SessionID)
	if err := s.redis.HSet(ctx, metaKey, "status", "streaming", "fragments", f.Seq+1).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", metaKey, err)
	}
	if f.Seq == 0 {
		return s.expire(ctx, listKey, metaKey)
	}
	return nil
}

// End records the session outcome.
func (s *RedisStore) End(ctx context.Context, r stream.Report) error {
	start := time.Now()
	err := s.end(ctx, r)
	s.metrics.RecordSinkWrite(s.Name(), "end", err, time.Since(start).Seconds())
	return err
}

func (s *RedisStore) end(ctx context.Context, r stream.Report) error {
	metaKey := s.metaKey(r.SessionID)
	err := s.redis.HSet(ctx, metaKey,
		"status", r.Outcome,
		"fragments", len(r.Fragments),
		"transport", r.Transport,
		"engine", r.Engine,
		"started_at", r.Started.UTC().Format(time.RFC3339),
		"completed_at", r.Ended.UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("redis HSET %s: %w", metaKey, err)
	}
	return s.expire(ctx, s.fragmentsKey(r.SessionID), metaKey)
}

func (s *RedisStore) expire(ctx context.Context, keys ...string) error {
	if s.ttl <= 0 {
		return nil
	}
	for _, k := range keys {
		if err := s.redis.Expire(ctx, k, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis EXPIRE %s: %w", k, err)
		}
	}
	return nil
}

// Fragments returns the stored fragments of a session.
func (s *RedisStore) Fragments(ctx context.Context, sessionID string) ([]string, error) {
	key := s.fragmentsKey(sessionID)
	vals, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE %s: %w", key, err)
	}
	return vals, nil
}

// Status returns a session's status field.
func (s *RedisStore) Status(ctx context.Context, sessionID string) (string, error) {
	key := s.metaKey(sessionID)
	val, err := s.redis.HGet(ctx, key, "status").Result()
	if err != nil {
		return "", fmt.Errorf("redis HGET %s status: %w", key, err)
	}
	return val, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

var _ stream.Recorder = (*RedisStore)(nil)
