package layout

import (
	"math"
	"sort"
	"time"

	"bookcal/internal/config"
	"bookcal/internal/model"
)

// Grid maps wall-clock time onto the vertical axis of a week/day view.
// A Grid is a plain value; every method is pure.
type Grid struct {
	// HourHeight is the pixel height of one hour.
	HourHeight float64
	// StartHour is the hour at pixel 0; EndHour bounds the visible range.
	StartHour int
	EndHour   int
	// MinHeight keeps zero-length and very short events visible.
	MinHeight float64
}

// NewGrid builds a Grid from config.
func NewGrid(c config.GridConfig) Grid {
	return Grid{
		HourHeight: c.HourHeight,
		StartHour:  c.StartHour,
		EndHour:    c.EndHour,
		MinHeight:  c.MinHeight,
	}
}

// Box is the vertical geometry of one event.
type Box struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// Bottom returns Top + Height.
func (b Box) Bottom() float64 { return b.Top + b.Height }

// Height returns the pixel height of the visible hour range.
func (g Grid) Height() float64 {
	return float64(g.EndHour-g.StartHour) * g.HourHeight
}

// Place computes
//
//	top    = (startHourFractional - StartHour) * HourHeight
//	height = max(durationHours * HourHeight, MinHeight)
func (g Grid) Place(start, end time.Time) Box {
	top := (fractionalHour(start) - float64(g.StartHour)) * g.HourHeight
	height := end.Sub(start).Hours() * g.HourHeight
	if height < g.MinHeight {
		height = g.MinHeight
	}
	return Box{Top: top, Height: height}
}

// PlaceEvent is Place for an event's own start/end.
func (g Grid) PlaceEvent(ev model.CalendarEvent) Box {
	return g.Place(ev.Start, ev.End)
}

// HoursForPixels is the inverse of the height formula.
func (g Grid) HoursForPixels(px float64) float64 {
	if g.HourHeight == 0 {
		return 0
	}
	return px / g.HourHeight
}

// PixelsForHours converts a span of hours to pixels.
func (g Grid) PixelsForHours(h float64) float64 {
	return h * g.HourHeight
}

// DurationForPixels converts a vertical pointer delta to a duration,
// rounded to the second.
func (g Grid) DurationForPixels(px float64) time.Duration {
	secs := math.Round(g.HoursForPixels(px) * 3600)
	return time.Duration(secs) * time.Second
}

// NowIndicator positions the current-time line. now is supplied by the
// caller each render. It is hidden outside [StartHour, EndHour).
func (g Grid) NowIndicator(now time.Time) (float64, bool) {
	h := fractionalHour(now)
	if h < float64(g.StartHour) || h >= float64(g.EndHour) {
		return 0, false
	}
	return (h - float64(g.StartHour)) * g.HourHeight, true
}

func fractionalHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

// Placed is a timed event positioned inside one day column. Overlapping
// events share the column side by side: Lane is the event's slot and Lanes
// the number of slots in its overlap group.
type Placed struct {
	Event model.CalendarEvent `json:"event"`
	Box   Box                 `json:"box"`
	Lane  int                 `json:"lane"`
	Lanes int                 `json:"lanes"`
	// ContinuesBefore/After mark events clipped at the day boundary.
	ContinuesBefore bool `json:"continues_before,omitempty"`
	ContinuesAfter  bool `json:"continues_after,omitempty"`
}

// PlaceDay positions the timed events that overlap day. Events crossing
// midnight are clipped to the day. All-day events are ignored.
func (g Grid) PlaceDay(events []model.CalendarEvent, day time.Time) []Placed {
	dayStart := model.DateOf(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	out := make([]Placed, 0)
	for _, ev := range events {
		if ev.AllDay || !coversDay(ev, dayStart, dayEnd) {
			continue
		}
		start, end := ev.Start, ev.End
		p := Placed{Event: ev}
		if start.Before(dayStart) {
			start = dayStart
			p.ContinuesBefore = true
		}
		if end.After(dayEnd) {
			end = dayEnd
			p.ContinuesAfter = true
		}
		p.Box = g.Place(start, end)
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Box.Top != out[j].Box.Top {
			return out[i].Box.Top < out[j].Box.Top
		}
		return out[i].Box.Height > out[j].Box.Height
	})
	assignLanes(out)
	return out
}

// assignLanes packs each overlap group greedily into the lowest free lane.
// out must be sorted by Top.
func assignLanes(out []Placed) {
	groupStart := 0
	groupBottom := math.Inf(-1)
	var laneBottoms []float64

	closeGroup := func(end int) {
		for i := groupStart; i < end; i++ {
			out[i].Lanes = len(laneBottoms)
		}
	}

	for i := range out {
		b := out[i].Box
		if b.Top >= groupBottom {
			closeGroup(i)
			groupStart = i
			laneBottoms = laneBottoms[:0]
		}
		lane := -1
		for l, bottom := range laneBottoms {
			if bottom <= b.Top {
				lane = l
				break
			}
		}
		if lane == -1 {
			lane = len(laneBottoms)
			laneBottoms = append(laneBottoms, 0)
		}
		laneBottoms[lane] = b.Bottom()
		out[i].Lane = lane
		groupBottom = math.Max(groupBottom, b.Bottom())
	}
	closeGroup(len(out))
}

// coversDay reports whether ev overlaps [dayStart, dayEnd). Zero-length
// events belong to the day they start on.
func coversDay(ev model.CalendarEvent, dayStart, dayEnd time.Time) bool {
	if !ev.Start.Before(dayEnd) {
		return false
	}
	if ev.End.After(dayStart) {
		return true
	}
	return !ev.End.After(ev.Start) && !ev.Start.Before(dayStart)
}
