package board

import (
	"context"
	"sync"
	"time"
)

const (
	// DragThreshold is the pointer distance a press must travel before it
	// becomes a drag.
	DragThreshold = 8
	// SettleWindow is how long after a drag ends clicks are ignored.
	SettleWindow = 300 * time.Millisecond
)

// Clock abstracts time for the settle window.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseDragging
	PhaseSettling
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseDragging:
		return "dragging"
	case PhaseSettling:
		return "settling"
	default:
		return "idle"
	}
}

// Outcome is the effect a finished drag had on the board.
type Outcome int

const (
	OutcomeNoop Outcome = iota
	OutcomeReorder
	OutcomeMove
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReorder:
		return "reorder"
	case OutcomeMove:
		return "move"
	default:
		return "noop"
	}
}

// Point is a pointer position in the units DragThreshold is expressed in.
type Point struct {
	X, Y int
}

type DragConfig struct {
	Threshold    int
	SettleWindow time.Duration
	Clock        Clock
	ScrollLock   *ScrollLock
}

func (c DragConfig) withDefaults() DragConfig {
	if c.Threshold <= 0 {
		c.Threshold = DragThreshold
	}
	if c.SettleWindow <= 0 {
		c.SettleWindow = SettleWindow
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	if c.ScrollLock == nil {
		c.ScrollLock = NewScrollLock(nil)
	}
	return c
}

// DragTracker models the drag lifecycle idle -> pending -> dragging ->
// settling -> idle. Settling ends lazily once the window has elapsed.
type DragTracker struct {
	cfg DragConfig

	mu          sync.Mutex
	phase       Phase
	activeID    int64
	origin      Point
	settleUntil time.Time
	release     func()
}

func NewDragTracker(cfg DragConfig) *DragTracker {
	return &DragTracker{cfg: cfg.withDefaults()}
}

func (d *DragTracker) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phaseLocked()
}

func (d *DragTracker) phaseLocked() Phase {
	if d.phase == PhaseIdle && d.cfg.Clock.Now().Before(d.settleUntil) {
		return PhaseSettling
	}
	return d.phase
}

// ActiveID is the card being pressed or dragged, or 0.
func (d *DragTracker) ActiveID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == PhasePending || d.phase == PhaseDragging {
		return d.activeID
	}
	return 0
}

func (d *DragTracker) Dragging() bool {
	return d.Phase() == PhaseDragging
}

// CanOpenDetail reports whether a click may open a card. It is false while a
// drag is in progress and during the settle window after it.
func (d *DragTracker) CanOpenDetail() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.phaseLocked()
	if p == PhaseDragging || p == PhaseSettling {
		return false
	}
	return !d.cfg.Clock.Now().Before(d.settleUntil)
}

// Press records a pointer press on a card. It is ignored during a drag.
func (d *DragTracker) Press(taskID int64, at Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == PhaseDragging {
		return
	}
	d.phase = PhasePending
	d.activeID = taskID
	d.origin = at
}

// PointerMove promotes a pending press to a drag once it has travelled the
// threshold distance. It reports whether a drag is active.
func (d *DragTracker) PointerMove(at Point) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.phase {
	case PhaseDragging:
		return true
	case PhasePending:
		dx, dy := at.X-d.origin.X, at.Y-d.origin.Y
		if dx*dx+dy*dy >= d.cfg.Threshold*d.cfg.Threshold {
			d.startLocked()
			return true
		}
	}
	return false
}

// Activate starts a keyboard drag immediately.
func (d *DragTracker) Activate(taskID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == PhaseDragging {
		return
	}
	d.activeID = taskID
	d.startLocked()
}

func (d *DragTracker) startLocked() {
	d.phase = PhaseDragging
	d.release = d.cfg.ScrollLock.Acquire()
}

// Release ends a press that never became a drag. It reports whether the
// press counts as a click.
func (d *DragTracker) Release() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != PhasePending {
		return false
	}
	d.phase = PhaseIdle
	d.activeID = 0
	return !d.cfg.Clock.Now().Before(d.settleUntil)
}

// Cancel abandons any press or drag. It is safe to call at any time.
func (d *DragTracker) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endLocked()
}

// endLocked leaves the current phase, releasing the scroll lock and entering
// the settle window when a drag was active. It returns the dragged id.
func (d *DragTracker) endLocked() int64 {
	id := d.activeID
	wasDragging := d.phase == PhaseDragging
	if d.release != nil {
		d.release()
		d.release = nil
	}
	d.phase = PhaseIdle
	d.activeID = 0
	if wasDragging {
		d.settleUntil = d.cfg.Clock.Now().Add(d.cfg.SettleWindow)
		return id
	}
	return 0
}

// End finishes the drag and returns the dragged card, or 0 when no drag was
// active. The scroll lock is released and the settle window starts.
func (d *DragTracker) End() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endLocked()
}

// Drop finishes the drag and hands the dragged card to apply. The scroll
// lock is released before apply runs, and apply is skipped when no drag was
// active.
func (d *DragTracker) Drop(ctx context.Context, apply func(ctx context.Context, activeID int64) (Outcome, error)) (Outcome, error) {
	id := d.End()
	if id == 0 {
		return OutcomeNoop, nil
	}
	return apply(ctx, id)
}

// DropOn is Drop applied to the controller's drop classification.
func (d *DragTracker) DropOn(ctx context.Context, c *Controller, target Target) (Outcome, error) {
	return d.Drop(ctx, func(ctx context.Context, activeID int64) (Outcome, error) {
		return c.Drop(ctx, activeID, target)
	})
}
