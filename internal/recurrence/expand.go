package recurrence

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// Options controls how recurrence expansion is performed.
type Options struct {
	// WeekStart anchors weekly steps when Interval > 1. Zero value is Sunday;
	// callers normally pass the configured week start.
	WeekStart time.Weekday

	// MaxOccurrences caps the instances one template contributes to a
	// window. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrences int
}

// Rejection records a template whose rule failed validation.
type Rejection struct {
	TemplateID string
	Err        error
}

// Result wraps the expanded events and what had to be skipped.
type Result struct {
	// Events are ascending by start; ties keep input order.
	Events []model.CalendarEvent
	// Rejected templates still contribute their own occurrence #1.
	Rejected []Rejection
	// Truncated lists template ids that hit MaxOccurrences.
	Truncated []string
}

// Expand turns templates into concrete instances intersecting
// [windowStart, windowEnd) and passes non-recurring events through when they
// intersect the window. The window is half-open rather than inclusive at
// both ends: an event ending exactly at windowStart, or starting exactly at
// windowEnd, belongs to the neighbouring window, so paging through adjacent
// windows never shows an event twice. The input slice is never modified.
func Expand(events []model.CalendarEvent, windowStart, windowEnd time.Time, opts Options) (Result, error) {
	var result Result

	if windowEnd.Before(windowStart) {
		return result, errors.New("expand: window end is before window start")
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = defaultMaxOccurrencesPerEvent
	}

	out := make([]model.CalendarEvent, 0, len(events))

	for _, ev := range events {
		if ev.Recurrence == nil {
			if intersects(ev.Start, ev.End, windowStart, windowEnd) {
				out = append(out, ev)
			}
			continue
		}

		if err := Validate(*ev.Recurrence); err != nil {
			appLog.Error("expand: recurrence rule rejected", err, "id", ev.ID)
			result.Rejected = append(result.Rejected, Rejection{TemplateID: ev.ID, Err: err})
			if intersects(ev.Start, ev.End, windowStart, windowEnd) {
				single := ev
				single.Recurrence = nil
				out = append(out, single)
			}
			continue
		}

		instances, hitCap := expandTemplate(ev, windowStart, windowEnd, opts)
		if hitCap {
			result.Truncated = append(result.Truncated, ev.ID)
			appLog.Error("expand: truncated occurrences for template due to cap",
				errors.New("max occurrences reached"),
				"id", ev.ID,
				"cap", opts.MaxOccurrences,
			)
		}
		out = append(out, instances...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})

	result.Events = out
	return result, nil
}

// expandTemplate walks the template's occurrences from its own start until
// the rule ends or a start reaches windowEnd, keeping those that intersect
// the window. Occurrences before the window still count towards Count but
// not towards MaxOccurrences. It reports whether MaxOccurrences stopped the
// walk.
func expandTemplate(template model.CalendarEvent, windowStart, windowEnd time.Time, opts Options) ([]model.CalendarEvent, bool) {
	out := make([]model.CalendarEvent, 0)
	duration := template.Duration()
	limit := template.Recurrence.Count

	// Occurrence #1 is the template itself.
	if intersects(template.Start, template.Start.Add(duration), windowStart, windowEnd) {
		out = append(out, makeInstance(template, template.Start, template.Start.Add(duration)))
	}
	n := 1

	r, err := rrule.NewRRule(ROption(template, opts.WeekStart))
	if err != nil {
		appLog.Error("expand: failed to build rule", err, "id", template.ID)
		return out, false
	}
	next := r.Iterator()

	for {
		if limit > 0 && n >= limit {
			return out, false
		}
		start, ok := next()
		if !ok {
			return out, false
		}
		if !start.After(template.Start) {
			continue
		}
		if !start.Before(windowEnd) {
			return out, false
		}
		n++
		end := start.Add(duration)
		if !intersects(start, end, windowStart, windowEnd) {
			continue
		}
		if len(out) >= opts.MaxOccurrences {
			return out, true
		}
		out = append(out, makeInstance(template, start, end))
	}
}

func makeInstance(template model.CalendarEvent, start, end time.Time) model.CalendarEvent {
	inst := template
	inst.Recurrence = nil
	inst.RecurrenceID = template.ID
	inst.ID = model.InstanceRef{TemplateID: template.ID, OccurrenceStart: start}.ID()
	inst.Start = start
	inst.End = end
	return inst
}

// intersects treats the window as half-open. A zero-length event counts when
// it starts inside the window.
func intersects(start, end, windowStart, windowEnd time.Time) bool {
	if !start.Before(windowEnd) {
		return false
	}
	if end.After(windowStart) {
		return true
	}
	return !end.After(start) && !start.Before(windowStart)
}
