package interaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// DropTarget is what the pointer is over when a drag is released. It is
// either a DayTarget (month view) or a SlotTarget (week/day view).
type DropTarget interface {
	dropTarget()
}

// DayTarget is a whole calendar day cell.
type DayTarget struct {
	Date time.Time
}

// SlotTarget is a time slot in a week/day column.
type SlotTarget struct {
	Date   time.Time
	Hour   int
	Minute int
}

func (DayTarget) dropTarget()  {}
func (SlotTarget) dropTarget() {}

func (s SlotTarget) valid() bool {
	return s.Hour >= 0 && s.Hour < 24 && s.Minute >= 0 && s.Minute < 60
}

// Point is a pointer position in view pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Len returns the euclidean length of p.
func (p Point) Len() float64 {
	return math.Hypot(p.X, p.Y)
}

// Draft is the in-progress state of a drag or resize. It only exists
// between press and release.
type Draft struct {
	EventID       string    `json:"event_id"`
	Origin        Point     `json:"origin"`
	Delta         Point     `json:"delta"`
	ProposedStart time.Time `json:"proposed_start"`
	ProposedEnd   time.Time `json:"proposed_end"`
	// AllDay is set when the dragged event is all-day; its proposal then
	// never conflicts.
	AllDay bool `json:"all_day,omitempty"`
	// HasProposal is false while no valid target is under the pointer.
	HasProposal bool `json:"has_proposal"`
}

type dropTargetJSON struct {
	Type   string `json:"type"`
	Date   string `json:"date"`
	Hour   *int   `json:"hour,omitempty"`
	Minute *int   `json:"minute,omitempty"`
}

const dateLayout = "2006-01-02"

// DecodeDropTarget parses {"type":"day","date":"2024-01-05"} or
// {"type":"slot","date":"2024-01-05","hour":9,"minute":30}. Dates are
// wall-clock dates in loc; nil means time.Local.
func DecodeDropTarget(data []byte, loc *time.Location) (DropTarget, error) {
	var raw dropTargetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("drop target: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	date, err := time.ParseInLocation(dateLayout, raw.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("drop target: bad date %q: %w", raw.Date, err)
	}

	switch raw.Type {
	case "day":
		return DayTarget{Date: date}, nil
	case "slot":
		if raw.Hour == nil {
			return nil, errors.New("drop target: slot without hour")
		}
		s := SlotTarget{Date: date, Hour: *raw.Hour}
		if raw.Minute != nil {
			s.Minute = *raw.Minute
		}
		if !s.valid() {
			return nil, fmt.Errorf("drop target: slot %02d:%02d out of range", s.Hour, s.Minute)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("drop target: unknown type %q", raw.Type)
	}
}

// EncodeDropTarget is the inverse of DecodeDropTarget.
func EncodeDropTarget(t DropTarget) ([]byte, error) {
	switch t := t.(type) {
	case DayTarget:
		return json.Marshal(dropTargetJSON{Type: "day", Date: t.Date.Format(dateLayout)})
	case SlotTarget:
		h, m := t.Hour, t.Minute
		return json.Marshal(dropTargetJSON{Type: "slot", Date: t.Date.Format(dateLayout), Hour: &h, Minute: &m})
	default:
		return nil, fmt.Errorf("drop target: unsupported %T", t)
	}
}
