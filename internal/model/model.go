package model

import (
	"errors"
	"strings"
	"time"
)

// EventType classifies a booking. It drives color and default duration.
type EventType string

const (
	TypeShowing     EventType = "showing"
	TypeMoveIn      EventType = "move-in"
	TypeMaintenance EventType = "maintenance"
	TypeOther       EventType = "other"
)

// EventTypes lists every known type in display order.
var EventTypes = []EventType{TypeShowing, TypeMoveIn, TypeMaintenance, TypeOther}

// ParseEventType maps a free-form string (e.g. an ICS CATEGORIES value)
// onto a known type. Unknown values map to TypeOther.
func ParseEventType(s string) EventType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "showing", "viewing":
		return TypeShowing
	case "move-in", "movein", "move in":
		return TypeMoveIn
	case "maintenance", "repair":
		return TypeMaintenance
	default:
		return TypeOther
	}
}

// Color returns the palette key used by renderers for this type.
func (t EventType) Color() string {
	switch t {
	case TypeShowing:
		return "blue"
	case TypeMoveIn:
		return "green"
	case TypeMaintenance:
		return "orange"
	default:
		return "gray"
	}
}

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus maps an ICS STATUS or API value onto a Status.
// Empty or unknown values are treated as confirmed.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "tentative":
		return StatusPending
	case "completed":
		return StatusCompleted
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusConfirmed
	}
}

// Frequency is the step unit of a RecurrenceRule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// RecurrenceRule describes how a template event repeats. The template's own
// start/end is occurrence #1; the rule generates occurrences #2 onward.
//
// Exactly one of Until and Count must be set.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`
	// DaysOfWeek is only meaningful for Weekly.
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	// Until is an inclusive end date; only its calendar date is used.
	Until *time.Time `json:"until,omitempty"`
	Count int        `json:"count,omitempty"`
}

// CalendarEvent is a booking/appointment as supplied by the host.
type CalendarEvent struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
	Type   EventType `json:"type"`
	Status Status    `json:"status"`

	// Recurrence is present only on template events.
	Recurrence *RecurrenceRule `json:"recurrence,omitempty"`
	// RecurrenceID points at the owning template on expanded instances.
	RecurrenceID string `json:"recurrence_id,omitempty"`

	// Meta carries contact/property details untouched.
	Meta map[string]string `json:"meta,omitempty"`
}

// Duration returns End - Start, never negative.
func (e CalendarEvent) Duration() time.Duration {
	d := e.End.Sub(e.Start)
	if d < 0 {
		return 0
	}
	return d
}

// IsInstance reports whether e was produced by recurrence expansion.
func (e CalendarEvent) IsInstance() bool {
	return e.RecurrenceID != ""
}

// TemplateID returns the id that writes must be addressed to: the template
// id for expanded instances, the event's own id otherwise.
func (e CalendarEvent) TemplateID() string {
	if e.RecurrenceID != "" {
		return e.RecurrenceID
	}
	return e.ID
}

// Interval is a proposed time range, used for conflict checks.
type Interval struct {
	Start  time.Time
	End    time.Time
	AllDay bool
}

// Interval returns the event's time range.
func (e CalendarEvent) Interval() Interval {
	return Interval{Start: e.Start, End: e.End, AllDay: e.AllDay}
}

const instanceKeyLayout = "20060102T150405"

// InstanceRef identifies one occurrence of a recurring template.
type InstanceRef struct {
	TemplateID      string
	OccurrenceStart time.Time
}

// ID renders the synthetic instance id. The same ref always renders the
// same id.
func (r InstanceRef) ID() string {
	return r.TemplateID + "@" + r.OccurrenceStart.Format(instanceKeyLayout)
}

// ParseInstanceID reverses InstanceRef.ID. The occurrence start is parsed in
// loc (wall-clock); nil means time.Local.
func ParseInstanceID(id string, loc *time.Location) (InstanceRef, error) {
	i := strings.LastIndexByte(id, '@')
	if i <= 0 || i == len(id)-1 {
		return InstanceRef{}, errors.New("model: not an instance id")
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(instanceKeyLayout, id[i+1:], loc)
	if err != nil {
		return InstanceRef{}, err
	}
	return InstanceRef{TemplateID: id[:i], OccurrenceStart: t}, nil
}

// DateOf truncates t to midnight of its calendar day, keeping its location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WithDate returns t moved onto the calendar date of day, keeping t's
// time-of-day.
func WithDate(t, day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
