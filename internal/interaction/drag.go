package interaction

import (
	"time"

	"bookcal/internal/model"
)

// DragState enumerates the drag-to-reschedule states.
type DragState int

const (
	DragIdle DragState = iota
	// DragPressed: pointer is down on an event but has not yet moved past
	// the activation threshold.
	DragPressed
	DragDragging
	DragCommitting
	DragCancelled
)

func (s DragState) String() string {
	switch s {
	case DragIdle:
		return "idle"
	case DragPressed:
		return "pressed"
	case DragDragging:
		return "dragging"
	case DragCommitting:
		return "committing"
	case DragCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MoveCommit is the outcome of a successful drag, addressed to the id that
// must be persisted (the template for recurring instances).
type MoveCommit struct {
	EventID string
	Start   time.Time
	End     time.Time
}

// DragController is the drag-to-reschedule state machine. It is driven by
// plain method calls and holds at most one drag at a time.
type DragController struct {
	threshold float64

	state  DragState
	event  model.CalendarEvent
	origin Point
	delta  Point
	target DropTarget

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to DragState)
}

// NewDragController returns an idle controller. threshold is the pointer
// travel in pixels needed before a press turns into a drag.
func NewDragController(threshold float64) *DragController {
	return &DragController{threshold: threshold}
}

func (c *DragController) State() DragState { return c.state }

// Active reports whether a press or drag is in progress.
func (c *DragController) Active() bool { return c.state != DragIdle }

// Dragging reports whether the threshold has been crossed.
func (c *DragController) Dragging() bool { return c.state == DragDragging }

// Press captures ev under the pointer. It is ignored unless idle.
func (c *DragController) Press(ev model.CalendarEvent, p Point) bool {
	if c.state != DragIdle {
		return false
	}
	c.event = ev
	c.origin = p
	c.delta = Point{}
	c.target = nil
	c.transition(DragPressed)
	return true
}

// Move tracks pointer movement. A press becomes a drag once the pointer has
// travelled further than the threshold.
func (c *DragController) Move(p Point) {
	switch c.state {
	case DragPressed:
		c.delta = p.Sub(c.origin)
		if c.delta.Len() > c.threshold {
			c.transition(DragDragging)
		}
	case DragDragging:
		c.delta = p.Sub(c.origin)
	}
}

// Hover records the drop target currently under the pointer; nil means
// none.
func (c *DragController) Hover(t DropTarget) {
	if c.state == DragDragging {
		c.target = t
	}
}

// Draft returns the live drag state. ok is false unless dragging.
func (c *DragController) Draft() (Draft, bool) {
	if c.state != DragDragging {
		return Draft{}, false
	}
	d := Draft{EventID: c.event.ID, Origin: c.origin, Delta: c.delta, AllDay: c.event.AllDay}
	if c.target != nil {
		d.ProposedStart, d.ProposedEnd, d.HasProposal = c.candidate(c.target)
	}
	return d, true
}

// Release ends the gesture. Releasing over a valid target commits;
// releasing elsewhere, or before the threshold was crossed, cancels.
// Either way the controller is idle afterwards.
func (c *DragController) Release(t DropTarget) (MoveCommit, bool) {
	switch c.state {
	case DragPressed:
		// A click, not a drag.
		c.reset()
		return MoveCommit{}, false
	case DragDragging:
	default:
		return MoveCommit{}, false
	}

	start, end, ok := c.candidate(t)
	if !ok {
		c.transition(DragCancelled)
		c.reset()
		return MoveCommit{}, false
	}

	c.transition(DragCommitting)
	commit := MoveCommit{
		EventID: c.event.TemplateID(),
		Start:   start,
		End:     end,
	}
	c.reset()
	return commit, true
}

// Cancel abandons any press or drag without a commit.
func (c *DragController) Cancel() {
	if c.state == DragIdle {
		return
	}
	c.transition(DragCancelled)
	c.reset()
}

// Event returns the captured event while a gesture is active.
func (c *DragController) Event() (model.CalendarEvent, bool) {
	if c.state == DragIdle {
		return model.CalendarEvent{}, false
	}
	return c.event, true
}

// candidate computes the new interval for a drop on t. A day drop keeps the
// time-of-day, a slot drop snaps to the slot; the duration never changes.
// All-day events only accept day drops.
func (c *DragController) candidate(t DropTarget) (time.Time, time.Time, bool) {
	ev := c.event
	dur := ev.Duration()

	switch t := t.(type) {
	case DayTarget:
		start := model.WithDate(ev.Start, t.Date)
		return start, start.Add(dur), true
	case SlotTarget:
		if ev.AllDay || !t.valid() {
			return time.Time{}, time.Time{}, false
		}
		y, m, d := t.Date.Date()
		start := time.Date(y, m, d, t.Hour, t.Minute, 0, 0, ev.Start.Location())
		return start, start.Add(dur), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

func (c *DragController) reset() {
	c.event = model.CalendarEvent{}
	c.origin = Point{}
	c.delta = Point{}
	c.target = nil
	c.transition(DragIdle)
}

func (c *DragController) transition(to DragState) {
	from := c.state
	c.state = to
	if c.OnTransition != nil && from != to {
		c.OnTransition(from, to)
	}
}
