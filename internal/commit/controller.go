// Package commit turns decoded windows into committed transcript fragments.
//
// A window's words are held until the next, overlapping window has been
// decoded; only then are the words centred in the held window's safe
// interval emitted. Emission suppresses exact repeats and feeds a bounded
// trailing context back into later decode prompts.
package commit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/amanullahtanweer/windowed-transcriber/internal/transcriber"
	"github.com/amanullahtanweer/windowed-transcriber/internal/window"
)

// DefaultContextChars bounds the prompt carried between windows.
const DefaultContextChars = 220

// ErrClosed is returned when a controller is used after Close.
var ErrClosed = errors.New("commit: controller closed")

// State is the controller's position in the commit cycle.
type State int

const (
	// StateEmpty - No window held.
	StateEmpty State = iota
	// StateHolding - One decoded window awaits confirmation by the next.
	StateHolding
	// StateDraining - End of stream; remaining state is being flushed.
	StateDraining
	// StateClosed - The stream is over.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateHolding:
		return "HOLDING"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Fragment is one committed piece of transcript.
type Fragment struct {
	SessionID string
	Seq       int
	Text      string
	Window    int
	// Start and End are the global times (seconds) spanned by the
	// committed words.
	Start float64
	End   float64
	Tail  bool
}

// Sink receives committed fragments in chronological order.
type Sink interface {
	Emit(ctx context.Context, f Fragment) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f Fragment) error

func (fn SinkFunc) Emit(ctx context.Context, f Fragment) error { return fn(ctx, f) }

// Config configures a Controller.
type Config struct {
	SessionID    string
	ContextChars int
	// OnDuplicate, if set, is called for every suppressed repeat.
	OnDuplicate func(text string)
}

// Controller holds the commitment state of one stream. It is driven from a
// single goroutine.
type Controller struct {
	geom         window.Geometry
	sink         Sink
	sessionID    string
	contextChars int
	onDuplicate  func(string)

	holding       bool
	draining      bool
	closed        bool
	pending       []transcriber.Word
	pendingIndex  int
	pendingOffset float64

	contextText string
	lastEmitted string
	// claimed is the latest global word midpoint already committed. Safe
	// intervals share their end points, so a word sitting exactly on a
	// boundary can be selected by two windows; only the first commits it.
	claimed float64
	seq     int
}

// NewController creates a controller in StateEmpty.
func NewController(geom window.Geometry, sink Sink, cfg Config) *Controller {
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = DefaultContextChars
	}
	return &Controller{
		geom:         geom,
		sink:         sink,
		sessionID:    cfg.SessionID,
		contextChars: cfg.ContextChars,
		onDuplicate:  cfg.OnDuplicate,
		claimed:      math.Inf(-1),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	switch {
	case c.closed:
		return StateClosed
	case c.draining:
		return StateDraining
	case c.holding:
		return StateHolding
	default:
		return StateEmpty
	}
}

// Holding reports whether a decoded window awaits commitment.
func (c *Controller) Holding() bool { return c.holding }

// Prompt returns the trailing committed text for the next decode call.
func (c *Controller) Prompt() string { return c.contextText }

// LastEmitted returns the most recently emitted fragment text.
func (c *Controller) LastEmitted() string { return c.lastEmitted }

// Emitted returns the number of fragments sent to the sink.
func (c *Controller) Emitted() int { return c.seq }

// Observe records the decode of w. A previously held window is committed
// first; then w becomes the held window. A sink error is returned but the
// state still advances.
func (c *Controller) Observe(ctx context.Context, w window.Window, words []transcriber.Word) error {
	if c.closed {
		return ErrClosed
	}
	var err error
	if c.holding {
		err = c.commit(ctx, c.pending, c.pendingIndex, c.pendingOffset, false)
	}
	c.pending = words
	c.pendingIndex = w.Index
	c.pendingOffset = w.Offset
	c.holding = true
	return err
}

// Flush commits the held window, if any, without waiting for a successor.
func (c *Controller) Flush(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if !c.holding {
		return nil
	}
	words, index, offset := c.pending, c.pendingIndex, c.pendingOffset
	c.pending = nil
	c.holding = false
	return c.commit(ctx, words, index, offset, false)
}

// BeginDrain marks the end of the stream. Observe keeps working so full
// windows still in the buffer can be drained.
func (c *Controller) BeginDrain() {
	c.draining = true
}

// CommitTail commits the final, zero-padded window directly; nothing
// follows it to confirm it.
func (c *Controller) CommitTail(ctx context.Context, w window.Window, words []transcriber.Word) error {
	if c.closed {
		return ErrClosed
	}
	return c.commit(ctx, words, w.Index, w.Offset, true)
}

// Close releases the held state. Further calls return ErrClosed.
func (c *Controller) Close() {
	c.closed = true
	c.holding = false
	c.pending = nil
}

func (c *Controller) commit(ctx context.Context, words []transcriber.Word, index int, offset float64, tail bool) error {
	safe := window.SelectSafe(words, offset, c.geom)

	kept := safe[:0:0]
	start, end := 0.0, 0.0
	claimed := c.claimed
	for _, w := range safe {
		mid, _ := w.Midpoint()
		g := mid + offset
		if g <= c.claimed {
			continue
		}
		if len(kept) == 0 {
			start = *w.Start + offset
		}
		end = *w.End + offset
		if g > claimed {
			claimed = g
		}
		kept = append(kept, w)
	}
	c.claimed = claimed

	return c.emit(ctx, Fragment{
		SessionID: c.sessionID,
		Text:      window.JoinText(kept),
		Window:    index,
		Start:     start,
		End:       end,
		Tail:      tail,
	})
}

func (c *Controller) emit(ctx context.Context, f Fragment) error {
	if f.Text == "" {
		return nil
	}
	if f.Text == c.lastEmitted {
		if c.onDuplicate != nil {
			c.onDuplicate(f.Text)
		}
		return nil
	}

	f.Seq = c.seq
	c.seq++
	err := c.sink.Emit(ctx, f)

	c.lastEmitted = f.Text
	if c.contextText == "" {
		c.contextText = f.Text
	} else {
		c.contextText += " " + f.Text
	}
	c.contextText = clipTrailing(c.contextText, c.contextChars)

	if err != nil {
		return fmt.Errorf("emit fragment %d: %w", f.Seq, err)
	}
	return nil
}

// clipTrailing keeps the last n runes of s.
func clipTrailing(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
