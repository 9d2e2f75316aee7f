package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"bookcal/internal/model"
	"bookcal/internal/recurrence"
)

const productID = "-//bookcal//Booking Calendar//EN"

// Export renders events as a VCALENDAR. Timed events use floating local
// times so wall-clock values survive the round trip. Templates keep their
// RRULE; pass expanded instances to publish concrete occurrences instead.
func Export(events []model.CalendarEvent, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Title)

		if ev.AllDay {
			ve.SetAllDayStartAt(ev.Start)
			ve.SetAllDayEndAt(ev.End)
		} else {
			ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start.Format(layoutFloating))
			ve.SetProperty(ical.ComponentPropertyDtEnd, ev.End.Format(layoutFloating))
		}

		if ev.Type != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, string(ev.Type))
		}
		if ev.Status != "" {
			ve.SetProperty(ical.ComponentPropertyStatus, strings.ToUpper(string(ev.Status)))
		}
		if v := ev.Meta["location"]; v != "" {
			ve.SetLocation(v)
		}
		if v := ev.Meta["description"]; v != "" {
			ve.SetDescription(v)
		}
		if ev.Recurrence != nil && recurrence.Validate(*ev.Recurrence) == nil {
			ve.AddProperty(ical.ComponentPropertyRrule, rruleString(ev))
		}
		if ev.RecurrenceID != "" {
			ve.SetProperty("RELATED-TO", ev.RecurrenceID)
		}
	}

	return cal.Serialize()
}

func rruleString(ev model.CalendarEvent) string {
	opt := recurrence.ROption(ev, time.Monday)
	opt.Count = ev.Recurrence.Count
	return opt.RRuleString()
}
