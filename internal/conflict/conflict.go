package conflict

import (
	"bookcal/internal/model"
)

// Find returns the existing events whose time range overlaps proposed, in
// input order. Ranges are half-open, so events that only touch at a
// boundary do not conflict.
//
// The result is advisory; nothing here blocks a commit. All-day proposals
// never conflict. The event identified by excludeID (the one being edited),
// all-day events and cancelled events are skipped.
func Find(proposed model.Interval, existing []model.CalendarEvent, excludeID string) []model.CalendarEvent {
	if proposed.AllDay {
		return nil
	}

	var out []model.CalendarEvent
	for _, ev := range existing {
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		if ev.AllDay || ev.Status == model.StatusCancelled {
			continue
		}
		if overlaps(proposed, ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Has reports whether Find would return anything.
func Has(proposed model.Interval, existing []model.CalendarEvent, excludeID string) bool {
	return len(Find(proposed, existing, excludeID)) > 0
}

func overlaps(p model.Interval, ev model.CalendarEvent) bool {
	return p.Start.Before(ev.End) && p.End.After(ev.Start)
}
