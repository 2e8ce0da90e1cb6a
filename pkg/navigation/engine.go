package navigation

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"weak"
)

// Validation failures. Returned errors wrap one of these.
var (
	ErrModeMismatch = errors.New("position type doesn't match navigation mode")
	ErrOutOfBounds  = errors.New("position out of bounds")
	ErrAtBoundary   = errors.New("no further step in this direction")
)

// Subscriber receives a snapshot after every successful state change.
type Subscriber interface {
	OnNavigationChange(ctx Context)
}

// subscriberRef resolves to nil once the subscriber has been collected.
type subscriberRef func() Subscriber

// Engine is the navigation state machine. It is safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	mode      Mode
	position  Position
	rng       *Range
	totalRows int

	subsMu sync.Mutex
	subs   []subscriberRef

	notifyMu  sync.Mutex
	notifying bool
	pending   []Context

	logger *slog.Logger
}

// New creates an engine in Sequential mode at row 0 with no rows.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		mode:     SequentialMode(),
		position: Sequential(0),
		logger:   logger,
	}
}

// AddSubscriber registers s without keeping it alive. Once the caller drops
// every reference to s it stops receiving notifications and its slot is
// reclaimed during a later notification pass.
func AddSubscriber[T any, PT interface {
	*T
	Subscriber
}](e *Engine, s PT) {
	wp := weak.Make((*T)(s))
	ref := func() Subscriber {
		if p := wp.Value(); p != nil {
			return PT(p)
		}
		return nil
	}
	e.subsMu.Lock()
	e.subs = append(e.subs, ref)
	e.subsMu.Unlock()
}

// UpdateSpec adopts a new addressable space and resets the position to the
// start of the new mode. It always notifies.
func (e *Engine) UpdateSpec(spec Spec) {
	e.mu.Lock()
	e.mode = Mode{Kind: spec.Mode.Kind, Categories: slices.Clone(spec.Mode.Categories)}
	e.totalRows = spec.TotalRows
	switch e.mode.Kind {
	case KindTemporal:
		e.position = Temporal(0)
	case KindCategorical:
		if len(e.mode.Categories) > 0 {
			e.position = Categorical(e.mode.Categories[0])
		} else {
			e.position = Sequential(0)
		}
	default:
		e.position = Sequential(0)
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug("navigation spec updated",
		slog.String("mode", spec.Mode.String()),
		slog.Int("total_rows", spec.TotalRows))
	e.publish(snap)
}

// SeekTo moves to pos. The position must match the current mode and lie
// within bounds; otherwise nothing changes and an error is returned.
func (e *Engine) SeekTo(pos Position) error {
	e.mu.Lock()
	if err := e.validateLocked(pos); err != nil {
		e.mu.Unlock()
		return err
	}
	e.position = pos
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
	return nil
}

func (e *Engine) validateLocked(pos Position) error {
	if pos.Kind != e.mode.Kind {
		return fmt.Errorf("%w: got %s, mode is %s", ErrModeMismatch, pos.Kind, e.mode.Kind)
	}
	switch pos.Kind {
	case KindSequential:
		if pos.Index < 0 || pos.Index >= e.totalRows {
			return fmt.Errorf("%w: position %d (total rows: %d)", ErrOutOfBounds, pos.Index, e.totalRows)
		}
	case KindCategorical:
		if !slices.Contains(e.mode.Categories, pos.Category) {
			return fmt.Errorf("%w: category %q not found", ErrOutOfBounds, pos.Category)
		}
	}
	return nil
}

// Next moves one step forward. It fails without change at the last row or
// category. Temporal positions have no upper bound.
func (e *Engine) Next() error {
	return e.step(1)
}

// Previous moves one step back. It fails without change at row 0, the first
// category, or timestamp 0.
func (e *Engine) Previous() error {
	return e.step(-1)
}

func (e *Engine) step(dir int) error {
	e.mu.Lock()
	next, err := e.stepLocked(dir)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.position = next
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
	return nil
}

func (e *Engine) stepLocked(dir int) (Position, error) {
	pos := e.position
	switch pos.Kind {
	case KindTemporal:
		if dir < 0 && pos.Timestamp <= 0 {
			return pos, fmt.Errorf("%w: already at beginning", ErrAtBoundary)
		}
		return Temporal(pos.Timestamp + int64(dir)), nil
	case KindCategorical:
		i := slices.Index(e.mode.Categories, pos.Category)
		if i < 0 {
			return pos, fmt.Errorf("%w: category %q not found", ErrOutOfBounds, pos.Category)
		}
		if dir > 0 && i+1 >= len(e.mode.Categories) {
			return pos, fmt.Errorf("%w: already at last category", ErrAtBoundary)
		}
		if dir < 0 && i == 0 {
			return pos, fmt.Errorf("%w: already at first category", ErrAtBoundary)
		}
		return Categorical(e.mode.Categories[i+dir]), nil
	default:
		if dir > 0 && pos.Index+1 >= e.totalRows {
			return pos, fmt.Errorf("%w: already at end", ErrAtBoundary)
		}
		if dir < 0 && pos.Index <= 0 {
			return pos, fmt.Errorf("%w: already at beginning", ErrAtBoundary)
		}
		return Sequential(pos.Index + dir), nil
	}
}

// Advance moves by steps, clamping to the valid bounds instead of failing.
// Negative steps move backwards. It always notifies.
func (e *Engine) Advance(steps int) {
	e.mu.Lock()
	pos := e.position
	switch pos.Kind {
	case KindTemporal:
		ts := pos.Timestamp
		switch {
		case steps > 0 && ts > math.MaxInt64-int64(steps):
			ts = math.MaxInt64
		case steps < 0 && (ts <= 0 || int64(steps) <= -ts):
			ts = 0
		default:
			ts = max(ts+int64(steps), 0)
		}
		pos = Temporal(ts)
	case KindCategorical:
		if i := slices.Index(e.mode.Categories, pos.Category); i >= 0 {
			pos = Categorical(e.mode.Categories[shift(i, steps, len(e.mode.Categories)-1)])
		}
	default:
		pos = Sequential(shift(pos.Index, steps, e.totalRows-1))
	}
	e.position = pos
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
}

// shift moves i by n within [0, hi] without overflowing.
func shift(i, n, hi int) int {
	hi = max(hi, 0)
	i = max(min(i, hi), 0)
	switch {
	case n > 0 && n > hi-i:
		return hi
	case n < 0 && n < -i:
		return 0
	}
	return i + n
}

// SetRange stores r as the current selection. A nil range clears it.
// The range is not checked against the mode.
func (e *Engine) SetRange(r *Range) {
	e.mu.Lock()
	if r != nil {
		cp := *r
		r = &cp
	}
	e.rng = r
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
}

// Context returns a snapshot of the current state.
func (e *Engine) Context() Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Context {
	c := Context{
		Mode:      Mode{Kind: e.mode.Kind, Categories: slices.Clone(e.mode.Categories)},
		Position:  e.position,
		TotalRows: e.totalRows,
	}
	if e.rng != nil {
		r := *e.rng
		c.Range = &r
	}
	return c
}

// publish delivers snap to every live subscriber. A mutation made from
// inside a callback is queued behind the pass in progress and delivered
// once it finishes.
func (e *Engine) publish(snap Context) {
	e.notifyMu.Lock()
	e.pending = append(e.pending, snap)
	if e.notifying {
		e.notifyMu.Unlock()
		return
	}
	e.notifying = true
	e.notifyMu.Unlock()

	drained := false
	defer func() {
		// a panicking subscriber must not leave later passes queued forever
		if !drained {
			e.notifyMu.Lock()
			e.notifying = false
			e.notifyMu.Unlock()
		}
	}()
	for {
		e.notifyMu.Lock()
		if len(e.pending) == 0 {
			e.notifying = false
			e.notifyMu.Unlock()
			drained = true
			return
		}
		c := e.pending[0]
		e.pending = e.pending[1:]
		e.notifyMu.Unlock()
		e.deliver(c)
	}
}

func (e *Engine) deliver(c Context) {
	e.subsMu.Lock()
	live := make([]Subscriber, 0, len(e.subs))
	kept := e.subs[:0]
	for _, ref := range e.subs {
		if s := ref(); s != nil {
			live = append(live, s)
			kept = append(kept, ref)
		}
	}
	if pruned := len(e.subs) - len(kept); pruned > 0 {
		clear(e.subs[len(kept):])
		e.logger.Debug("pruned dead subscribers", slog.Int("count", pruned))
	}
	e.subs = kept
	e.subsMu.Unlock()

	for _, s := range live {
		s.OnNavigationChange(c)
	}
}

// SubscriberCount returns the number of registered subscribers, including
// ones that have been collected but not yet pruned.
func (e *Engine) SubscriberCount() int {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	return len(e.subs)
}
