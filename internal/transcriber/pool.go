package transcriber

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/amanullahtanweer/windowed-transcriber/internal/metrics"
)

// ErrWindowTimeout is returned when a window overruns the per-call limit.
var ErrWindowTimeout = errors.New("transcriber: window timed out")

// Pool bounds the number of concurrent engine calls across all sessions.
// Sessions beyond the bound wait for a worker; they are never refused.
type Pool struct {
	engine  Transcriber
	sem     *semaphore.Weighted
	workers int
	timeout time.Duration
	metrics *metrics.Metrics
}

type result struct {
	words []Word
	err   error
}

// NewPool wraps engine with workers slots (runtime.NumCPU() when <= 0).
// A positive timeout bounds each call.
func NewPool(engine Transcriber, workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		engine:  engine,
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		timeout: timeout,
		metrics: metrics.DefaultMetrics,
	}
}

// Name returns the wrapped engine name.
func (p *Pool) Name() string { return p.engine.Name() }

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Transcribe runs the engine on a worker goroutine and waits for that call
// only. If ctx ends first the caller returns immediately; the worker runs
// to completion and its result is discarded.
func (p *Pool) Transcribe(ctx context.Context, samples []float32, prompt string) ([]Word, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
	}

	done := make(chan result, 1)
	p.metrics.WorkersInFlight.Inc()
	go func() {
		defer p.sem.Release(1)
		defer p.metrics.WorkersInFlight.Dec()
		defer cancel()

		start := time.Now()
		words, err := p.engine.Transcribe(callCtx, samples, prompt)
		p.metrics.RecordTranscribe(p.engine.Name(), time.Since(start).Seconds(), errorType(err))
		done <- result{words: words, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %v", ErrWindowTimeout, p.timeout)
		}
		return r.words, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %v", ErrWindowTimeout, p.timeout)
	}
}

// Close closes the wrapped engine.
func (p *Pool) Close() error {
	return p.engine.Close()
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "engine"
	}
}
