package calendar

import (
	"time"

	"bookcal/internal/conflict"
	"bookcal/internal/interaction"
	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

// OutcomeKind says how a gesture ended.
type OutcomeKind string

const (
	OutcomeNone      OutcomeKind = "none"
	OutcomeClick     OutcomeKind = "click"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeMoved     OutcomeKind = "moved"
	OutcomeResized   OutcomeKind = "resized"
)

// Outcome is returned from PointerUp. Conflicts are advisory: the change
// has already been handed to the Persister.
type Outcome struct {
	Kind      OutcomeKind           `json:"kind"`
	EventID   string                `json:"event_id,omitempty"`
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Conflicts []model.CalendarEvent `json:"conflicts,omitempty"`
}

// PointerDown starts a gesture on the event with id (as rendered, so
// instance ids are accepted). A press on the resize handle starts a resize
// and never a drag. Nothing starts while another gesture is active.
func (v *View) PointerDown(id string, p interaction.Point, onResizeHandle bool) bool {
	if v.drag.Active() || v.resize.Active() {
		return false
	}
	ev, ok := v.Lookup(id)
	if !ok {
		return false
	}
	if onResizeHandle {
		if v.mode == ModeMonth {
			return false
		}
		return v.resize.Press(ev, p)
	}
	return v.drag.Press(ev, p)
}

// PointerMove forwards pointer movement to the active gesture.
func (v *View) PointerMove(p interaction.Point) {
	switch {
	case v.resize.Active():
		v.resize.Move(p)
	case v.drag.Active():
		v.drag.Move(p)
	}
}

// Hover reports the drop target under the pointer; nil means none.
func (v *View) Hover(t interaction.DropTarget) {
	v.drag.Hover(t)
}

// PointerUp ends the active gesture. For drags, t is the drop target under
// the pointer at release (nil when none).
func (v *View) PointerUp(t interaction.DropTarget) Outcome {
	switch {
	case v.resize.Active():
		editing := v.resize.ResizingID()
		commit, ok := v.resize.Release()
		if !ok {
			return Outcome{Kind: OutcomeNone}
		}
		out := Outcome{
			Kind:      OutcomeResized,
			EventID:   commit.EventID,
			Start:     commit.Start,
			End:       commit.End,
			Conflicts: conflict.Find(model.Interval{Start: commit.Start, End: commit.End}, v.instances, editing),
		}
		appLog.Debug("calendar: resize committed", "id", commit.EventID, "end", commit.End)
		if v.persister != nil {
			v.persister.Resize(commit.EventID, commit.Start, commit.End)
		}
		return out

	case v.drag.Active():
		ev, _ := v.drag.Event()
		wasDragging := v.drag.Dragging()
		commit, ok := v.drag.Release(t)
		if !ok {
			if !wasDragging {
				return Outcome{Kind: OutcomeClick, EventID: ev.ID, Start: ev.Start, End: ev.End}
			}
			return Outcome{Kind: OutcomeCancelled, EventID: ev.ID}
		}
		out := Outcome{
			Kind:    OutcomeMoved,
			EventID: commit.EventID,
			Start:   commit.Start,
			End:     commit.End,
		}
		if !ev.AllDay {
			out.Conflicts = conflict.Find(model.Interval{Start: commit.Start, End: commit.End}, v.instances, ev.ID)
		}
		appLog.Debug("calendar: move committed", "id", commit.EventID, "start", commit.Start)
		if v.persister != nil {
			v.persister.Move(commit.EventID, commit.Start, commit.End)
		}
		return out
	}

	return Outcome{Kind: OutcomeNone}
}

// CancelGesture abandons an active drag. Resizes have no cancel and are
// left running.
func (v *View) CancelGesture() {
	v.drag.Cancel()
}

// Draft exposes the live drag or resize draft.
func (v *View) Draft() (interaction.Draft, bool) {
	if d, ok := v.resize.Draft(); ok {
		return d, true
	}
	return v.drag.Draft()
}

// CreateAt builds a new event at t and hands it to the Persister. A day
// target creates an all-day event; a slot target creates a timed event of
// the type's default duration.
func (v *View) CreateAt(t interaction.DropTarget, typ model.EventType, title string) (model.CalendarEvent, bool) {
	ev := model.CalendarEvent{
		ID:     v.opts.NewID(),
		Title:  title,
		Type:   typ,
		Status: model.StatusConfirmed,
	}

	switch t := t.(type) {
	case interaction.DayTarget:
		ev.AllDay = true
		ev.Start = model.DateOf(t.Date)
		ev.End = ev.Start.AddDate(0, 0, 1)
	case interaction.SlotTarget:
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return model.CalendarEvent{}, false
		}
		y, m, d := t.Date.Date()
		ev.Start = time.Date(y, m, d, t.Hour, t.Minute, 0, 0, t.Date.Location())
		ev.End = ev.Start.Add(v.opts.DefaultDuration(typ))
	default:
		return model.CalendarEvent{}, false
	}

	if v.persister != nil {
		v.persister.Create(ev)
	}
	return ev, true
}

// Delete removes the event with id, resolving instance ids to their
// template. It returns the id handed to the Persister.
func (v *View) Delete(id string) string {
	target := id
	if ev, ok := v.Lookup(id); ok {
		target = ev.TemplateID()
	} else if ref, err := model.ParseInstanceID(id, v.current.Location()); err == nil {
		target = ref.TemplateID
	}
	if v.persister != nil {
		v.persister.Delete(target)
	}
	return target
}
