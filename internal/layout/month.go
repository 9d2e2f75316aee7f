package layout

import (
	"fmt"
	"sort"
	"time"

	"bookcal/internal/model"
)

// DayCell is one day of the month grid.
type DayCell struct {
	Date    time.Time             `json:"date"`
	Visible []model.CalendarEvent `json:"visible"`
	// Hidden counts events collapsed behind the "+N more" indicator.
	Hidden int `json:"hidden"`
}

// More renders the overflow indicator, or "" when nothing is hidden.
func (c DayCell) More() string {
	if c.Hidden <= 0 {
		return ""
	}
	return fmt.Sprintf("+%d more", c.Hidden)
}

// BucketMonth assigns events to each of days. Within a day all-day events
// come first, then timed events by start. At most maxVisible are kept per
// cell; maxVisible <= 0 disables the cap. Events spanning several days
// appear in every day they cover.
func BucketMonth(events []model.CalendarEvent, days []time.Time, maxVisible int) []DayCell {
	cells := make([]DayCell, 0, len(days))
	for _, day := range days {
		dayStart := model.DateOf(day)
		dayEnd := dayStart.AddDate(0, 0, 1)

		bucket := make([]model.CalendarEvent, 0)
		for _, ev := range events {
			if ev.AllDay {
				if allDayCovers(ev, dayStart) {
					bucket = append(bucket, ev)
				}
				continue
			}
			if coversDay(ev, dayStart, dayEnd) {
				bucket = append(bucket, ev)
			}
		}

		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].AllDay != bucket[j].AllDay {
				return bucket[i].AllDay
			}
			return bucket[i].Start.Before(bucket[j].Start)
		})

		cell := DayCell{Date: dayStart, Visible: bucket}
		if maxVisible > 0 && len(bucket) > maxVisible {
			cell.Visible = bucket[:maxVisible]
			cell.Hidden = len(bucket) - maxVisible
		}
		cells = append(cells, cell)
	}
	return cells
}

// allDayCovers uses date granularity with an exclusive end date. An all-day
// event whose end date is not after its start date covers its start day.
func allDayCovers(ev model.CalendarEvent, day time.Time) bool {
	first := model.DateOf(ev.Start)
	last := model.DateOf(ev.End)
	if !last.After(first) {
		return sameDate(first, day)
	}
	return !day.Before(first) && day.Before(last)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AllDayOn returns the all-day events covering day, in input order.
func AllDayOn(events []model.CalendarEvent, day time.Time) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)
	d := model.DateOf(day)
	for _, ev := range events {
		if ev.AllDay && allDayCovers(ev, d) {
			out = append(out, ev)
		}
	}
	return out
}
