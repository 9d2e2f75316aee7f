package interaction

import (
	"time"

	"bookcal/internal/layout"
	"bookcal/internal/model"
)

// ResizeState enumerates the end-edge resize states. There is no cancelled
// state: a release always commits, clamped to the floor.
type ResizeState int

const (
	ResizeIdle ResizeState = iota
	ResizeResizing
	ResizeCommitting
)

func (s ResizeState) String() string {
	switch s {
	case ResizeIdle:
		return "idle"
	case ResizeResizing:
		return "resizing"
	case ResizeCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// ResizeCommit is the outcome of a resize. Start is always the event's
// original start.
type ResizeCommit struct {
	EventID string
	Start   time.Time
	End     time.Time
}

// ResizeController drags the end edge of a timed event. Pointer deltas are
// mapped to time through the grid's inverse formula.
type ResizeController struct {
	grid        layout.Grid
	minDuration time.Duration
	snap        time.Duration

	state  ResizeState
	event  model.CalendarEvent
	origin Point
	delta  Point
	end    time.Time

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to ResizeState)
}

// NewResizeController returns an idle controller. minDuration is the floor
// between start and end; snap rounds the previewed end (0 disables).
func NewResizeController(grid layout.Grid, minDuration, snap time.Duration) *ResizeController {
	if minDuration < 0 {
		minDuration = 0
	}
	return &ResizeController{grid: grid, minDuration: minDuration, snap: snap}
}

func (c *ResizeController) State() ResizeState { return c.state }

// Active reports whether a resize is in progress.
func (c *ResizeController) Active() bool { return c.state != ResizeIdle }

// ResizingID returns the id of the event being resized, or "".
func (c *ResizeController) ResizingID() string {
	if c.state == ResizeIdle {
		return ""
	}
	return c.event.ID
}

// Press starts resizing ev from its resize handle. All-day events have no
// handle and are refused, as is a second concurrent resize.
func (c *ResizeController) Press(ev model.CalendarEvent, p Point) bool {
	if c.state != ResizeIdle || ev.AllDay {
		return false
	}
	c.event = ev
	c.origin = p
	c.delta = Point{}
	c.end = c.clamp(ev.End)
	c.transition(ResizeResizing)
	return true
}

// Move recomputes the candidate end from the vertical pointer delta.
func (c *ResizeController) Move(p Point) {
	if c.state != ResizeResizing {
		return
	}
	c.delta = p.Sub(c.origin)
	end := c.event.End.Add(c.grid.DurationForPixels(c.delta.Y))
	c.end = c.clamp(c.snapTo(end))
}

// Preview returns the live end time for rendering; ok is false when idle.
func (c *ResizeController) Preview() (time.Time, bool) {
	if c.state != ResizeResizing {
		return time.Time{}, false
	}
	return c.end, true
}

// Draft returns the live resize state.
func (c *ResizeController) Draft() (Draft, bool) {
	if c.state != ResizeResizing {
		return Draft{}, false
	}
	return Draft{
		EventID:       c.event.ID,
		Origin:        c.origin,
		Delta:         c.delta,
		ProposedStart: c.event.Start,
		ProposedEnd:   c.end,
		HasProposal:   true,
	}, true
}

// Release commits the current preview. A release without movement commits
// the floor-clamped original end.
func (c *ResizeController) Release() (ResizeCommit, bool) {
	if c.state != ResizeResizing {
		return ResizeCommit{}, false
	}
	c.transition(ResizeCommitting)
	commit := ResizeCommit{
		EventID: c.event.TemplateID(),
		Start:   c.event.Start,
		End:     c.end,
	}
	c.event = model.CalendarEvent{}
	c.origin = Point{}
	c.delta = Point{}
	c.end = time.Time{}
	c.transition(ResizeIdle)
	return commit, true
}

// Apply returns ev with its end replaced by the live preview when ev is the
// event being resized. The input is not modified.
func (c *ResizeController) Apply(ev model.CalendarEvent) model.CalendarEvent {
	if c.state == ResizeResizing && ev.ID == c.event.ID {
		ev.End = c.end
	}
	return ev
}

func (c *ResizeController) clamp(end time.Time) time.Time {
	floor := c.event.Start.Add(c.minDuration)
	if end.Before(floor) {
		return floor
	}
	return end
}

// snapTo rounds end to the nearest multiple of snap past midnight.
func (c *ResizeController) snapTo(end time.Time) time.Time {
	if c.snap <= 0 {
		return end
	}
	midnight := model.DateOf(end)
	return midnight.Add(end.Sub(midnight).Round(c.snap))
}

func (c *ResizeController) transition(to ResizeState) {
	from := c.state
	c.state = to
	if c.OnTransition != nil && from != to {
		c.OnTransition(from, to)
	}
}
