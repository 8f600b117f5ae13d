package stream

import (
	"context"
	"errors"
	"time"

	"github.com/amanullahtanweer/windowed-transcriber/internal/commit"
)

const defaultFanoutQueue = 256

// ErrFanoutFull is reported for a recorder when a fragment is dropped
// because the session's fan-out queue is full.
var ErrFanoutFull = errors.New("stream: recorder queue full")

type fanoutItem struct {
	fragment commit.Fragment
	report   *Report
}

// fanout delivers fragments and the final report to recorders on its own
// goroutine, so a slow recorder never holds up the session. Every recorder
// call runs under its own deadline.
type fanout struct {
	recorders []Recorder
	timeout   time.Duration
	queue     chan fanoutItem
	done      chan struct{}
	failed    func(Recorder, error)
}

func newFanout(recorders []Recorder, timeout time.Duration, queue int, failed func(Recorder, error)) *fanout {
	if timeout <= 0 {
		timeout = recorderTimeout
	}
	if queue <= 0 {
		queue = defaultFanoutQueue
	}
	f := &fanout{
		recorders: recorders,
		timeout:   timeout,
		queue:     make(chan fanoutItem, queue),
		done:      make(chan struct{}),
		failed:    failed,
	}
	go f.run()
	return f
}

func (f *fanout) run() {
	defer close(f.done)
	for item := range f.queue {
		for _, r := range f.recorders {
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			var err error
			if item.report != nil {
				err = r.End(ctx, *item.report)
			} else {
				err = r.Fragment(ctx, item.fragment)
			}
			cancel()
			if err != nil {
				f.failed(r, err)
			}
		}
	}
}

// Fragment queues frag without blocking. When the queue is full the
// fragment is dropped and counted as a failure of every recorder.
func (f *fanout) Fragment(frag commit.Fragment) {
	select {
	case f.queue <- fanoutItem{fragment: frag}:
	default:
		for _, r := range f.recorders {
			f.failed(r, ErrFanoutFull)
		}
	}
}

// End queues the report, then waits for everything queued to be delivered.
func (f *fanout) End(rep Report) {
	f.queue <- fanoutItem{report: &rep}
	close(f.queue)
	<-f.done
}
