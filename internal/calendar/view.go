package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookcal/internal/config"
	"bookcal/internal/conflict"
	"bookcal/internal/interaction"
	"bookcal/internal/layout"
	appLog "bookcal/internal/log"
	"bookcal/internal/model"
	"bookcal/internal/recurrence"
)

// Mode is the active calendar view.
type Mode string

const (
	ModeMonth Mode = "month"
	ModeWeek  Mode = "week"
	ModeDay   Mode = "day"
)

// ParseMode accepts month/week/day; anything else is an error.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMonth:
		return ModeMonth, nil
	case ModeWeek:
		return ModeWeek, nil
	case ModeDay:
		return ModeDay, nil
	default:
		return "", fmt.Errorf("calendar: unknown view %q", s)
	}
}

// Persister receives committed changes. Calls are fire-and-forget: the
// host persists them and re-supplies an updated event snapshot. Ids are
// always stored ids, never synthetic instance ids.
type Persister interface {
	Create(ev model.CalendarEvent)
	Move(id string, start, end time.Time)
	Resize(id string, start, end time.Time)
	Delete(id string)
}

// Options configures a View.
type Options struct {
	Grid            layout.Grid
	WeekStart       time.Weekday
	MonthMaxVisible int
	DragThreshold   float64
	MinDuration     time.Duration
	Snap            time.Duration
	MaxOccurrences  int
	DefaultDuration func(model.EventType) time.Duration
	// NewID names events created through CreateAt.
	NewID func() string
}

// OptionsFromConfig maps the application config onto view options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Grid:            layout.NewGrid(cfg.Grid),
		WeekStart:       cfg.FirstWeekday(),
		MonthMaxVisible: cfg.MonthMaxVisible,
		DragThreshold:   cfg.DragThresholdPx,
		MinDuration:     time.Duration(cfg.Resize.MinMinutes) * time.Minute,
		Snap:            time.Duration(cfg.Resize.SnapMinutes) * time.Minute,
		MaxOccurrences:  cfg.MaxOccurrences,
		DefaultDuration: cfg.DefaultDuration,
		NewID:           uuid.NewString,
	}
}

// View owns navigation state and the two interaction controllers. It is
// not safe for concurrent use; hosts serialize access.
type View struct {
	opts      Options
	persister Persister

	mode    Mode
	current time.Time

	drag   *interaction.DragController
	resize *interaction.ResizeController

	// instances is the expanded set from the latest Render, used to resolve
	// pointer targets by id.
	instances []model.CalendarEvent
}

// New returns a View showing mode around current.
func New(opts Options, persister Persister, mode Mode, current time.Time) *View {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.DefaultDuration == nil {
		opts.DefaultDuration = func(model.EventType) time.Duration { return time.Hour }
	}
	return &View{
		opts:      opts,
		persister: persister,
		mode:      mode,
		current:   model.DateOf(current),
		drag:      interaction.NewDragController(opts.DragThreshold),
		resize:    interaction.NewResizeController(opts.Grid, opts.MinDuration, opts.Snap),
	}
}

func (v *View) Mode() Mode { return v.mode }

func (v *View) SetMode(m Mode) { v.mode = m }

// Date is the anchor date of the active view.
func (v *View) Date() time.Time { return v.current }

func (v *View) SetDate(d time.Time) { v.current = model.DateOf(d) }

// Today jumps to the date of now.
func (v *View) Today(now time.Time) { v.current = model.DateOf(now) }

// Previous steps back one unit of the active view.
func (v *View) Previous() { v.step(-1) }

// Next steps forward one unit of the active view.
func (v *View) Next() { v.step(1) }

func (v *View) Grid() layout.Grid { return v.opts.Grid }

func (v *View) step(n int) {
	switch v.mode {
	case ModeMonth:
		y, m, _ := v.current.Date()
		v.current = time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, v.current.Location())
	case ModeWeek:
		v.current = v.current.AddDate(0, 0, 7*n)
	default:
		v.current = v.current.AddDate(0, 0, n)
	}
}

// Window returns the half-open range the active view shows. Month view
// covers whole weeks around the month.
func (v *View) Window() (time.Time, time.Time) {
	switch v.mode {
	case ModeMonth:
		y, m, _ := v.current.Date()
		first := time.Date(y, m, 1, 0, 0, 0, 0, v.current.Location())
		last := first.AddDate(0, 1, -1)
		return v.weekStartOf(first), v.weekStartOf(last).AddDate(0, 0, 7)
	case ModeWeek:
		start := v.weekStartOf(v.current)
		return start, start.AddDate(0, 0, 7)
	default:
		return v.current, v.current.AddDate(0, 0, 1)
	}
}

// Days lists the dates of the active window.
func (v *View) Days() []time.Time {
	start, end := v.Window()
	days := make([]time.Time, 0, 42)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (v *View) weekStartOf(t time.Time) time.Time {
	d := model.DateOf(t)
	offset := (int(d.Weekday()) - int(v.opts.WeekStart) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// DayColumn is one column of a week/day view.
type DayColumn struct {
	Date   time.Time             `json:"date"`
	AllDay []model.CalendarEvent `json:"all_day"`
	Timed  []layout.Placed       `json:"timed"`
}

// NowLine is the current-time indicator for week/day views.
type NowLine struct {
	Day int     `json:"day"`
	Top float64 `json:"top"`
}

// Rendered is everything a renderer needs for one frame.
type Rendered struct {
	Mode        Mode      `json:"mode"`
	Date        time.Time `json:"date"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// Days is set for week/day views, Cells for month view.
	Days  []DayColumn      `json:"days,omitempty"`
	Cells []layout.DayCell `json:"cells,omitempty"`

	Now *NowLine `json:"now,omitempty"`

	Rejected  []string `json:"rejected,omitempty"`
	Truncated []string `json:"truncated,omitempty"`

	Draft          *interaction.Draft    `json:"draft,omitempty"`
	DraftConflicts []model.CalendarEvent `json:"draft_conflicts,omitempty"`
}

// Render expands events for the active window and lays them out. events is
// read-only; now is the caller's clock.
func (v *View) Render(events []model.CalendarEvent, now time.Time) Rendered {
	start, end := v.Window()
	out := Rendered{Mode: v.mode, Date: v.current, WindowStart: start, WindowEnd: end}

	res, err := recurrence.Expand(events, start, end, recurrence.Options{
		WeekStart:      v.opts.WeekStart,
		MaxOccurrences: v.opts.MaxOccurrences,
	})
	if err != nil {
		appLog.Error("calendar: expand failed", err, "view", string(v.mode))
	}
	v.instances = res.Events
	for _, r := range res.Rejected {
		out.Rejected = append(out.Rejected, r.TemplateID)
	}
	out.Truncated = res.Truncated

	shown := make([]model.CalendarEvent, len(res.Events))
	for i, ev := range res.Events {
		shown[i] = v.resize.Apply(ev)
	}

	days := v.Days()
	if v.mode == ModeMonth {
		out.Cells = layout.BucketMonth(shown, days, v.opts.MonthMaxVisible)
	} else {
		timed := make([]model.CalendarEvent, 0, len(shown))
		for _, ev := range shown {
			if !ev.AllDay {
				timed = append(timed, ev)
			}
		}
		for i, day := range days {
			out.Days = append(out.Days, DayColumn{
				Date:   day,
				AllDay: layout.AllDayOn(shown, day),
				Timed:  v.opts.Grid.PlaceDay(timed, day),
			})
			if model.DateOf(now).Equal(day) {
				if top, ok := v.opts.Grid.NowIndicator(now); ok {
					out.Now = &NowLine{Day: i, Top: top}
				}
			}
		}
	}

	if d, ok := v.Draft(); ok {
		out.Draft = &d
		if d.HasProposal {
			out.DraftConflicts = conflict.Find(
				model.Interval{Start: d.ProposedStart, End: d.ProposedEnd, AllDay: d.AllDay},
				res.Events, d.EventID)
		}
	}

	return out
}

// Instances returns the expanded events from the latest Render.
func (v *View) Instances() []model.CalendarEvent {
	return v.instances
}

// Lookup finds an event from the latest Render by id.
func (v *View) Lookup(id string) (model.CalendarEvent, bool) {
	for _, ev := range v.instances {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.CalendarEvent{}, false
}

// Conflicts checks proposed against events expanded over the days it
// touches. excludeID is the event being edited, if any.
func (v *View) Conflicts(events []model.CalendarEvent, proposed model.Interval, excludeID string) []model.CalendarEvent {
	start := model.DateOf(proposed.Start)
	end := model.DateOf(proposed.End).AddDate(0, 0, 1)
	res, err := recurrence.Expand(events, start, end, recurrence.Options{
		WeekStart:      v.opts.WeekStart,
		MaxOccurrences: v.opts.MaxOccurrences,
	})
	if err != nil {
		return nil
	}
	return conflict.Find(proposed, res.Events, excludeID)
}
