package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"bookcal/internal/calendar"
	"bookcal/internal/ics"
	"bookcal/internal/layout"
	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

var pageFuncs = template.FuncMap{
	"px": func(v float64) string { return fmt.Sprintf("%.1fpx", v) },
	"pct": func(lane, lanes int) string {
		if lanes <= 0 {
			lanes = 1
		}
		return fmt.Sprintf("%.3f%%", 100*float64(lane)/float64(lanes))
	},
	"width": func(lanes int) string {
		if lanes <= 0 {
			lanes = 1
		}
		return fmt.Sprintf("%.3f%%", 100/float64(lanes))
	},
	"day":   func(t time.Time) string { return t.Format("Mon Jan 2") },
	"clock": func(t time.Time) string { return t.Format("15:04") },
	"color": func(t model.EventType) string { return t.Color() },
}

type hourLabel struct {
	Label string
	Top   float64
}

// pageData feeds templates/calendar.html.
type pageData struct {
	calendar.Rendered
	Title      string
	GridHeight float64
	Hours      []hourLabel
	Prev, Next string
}

// handleCalendarPage serves the server-rendered calendar. The root element
// carries data-ready="true" once rendered, which the snapshot capture
// waits for.
//
// GET /calendar?view=week&date=2024-01-10
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	mode, date, err := s.viewFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := s.store.List(r.Context())
	if err != nil {
		appLog.Error("calendar page: list failed", err)
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}

	v := s.newView(mode, date, nil)
	data := pageData{
		Rendered:   v.Render(events, s.now().In(s.loc)),
		GridHeight: v.Grid().Height(),
		Hours:      hourLabels(v.Grid()),
	}
	data.Title = pageTitle(mode, data.Date, data.WindowStart)
	v.Previous()
	data.Prev = v.Date().Format(dateLayout)
	v.Next()
	v.Next()
	data.Next = v.Date().Format(dateLayout)

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		appLog.Error("calendar page: template failed", err)
		http.Error(w, "failed to render calendar", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func pageTitle(mode calendar.Mode, date, windowStart time.Time) string {
	switch mode {
	case calendar.ModeMonth:
		return date.Format("January 2006")
	case calendar.ModeDay:
		return date.Format("Monday, January 2, 2006")
	default:
		return "Week of " + windowStart.Format("January 2, 2006")
	}
}

func hourLabels(g layout.Grid) []hourLabel {
	out := make([]hourLabel, 0, g.EndHour-g.StartHour)
	for h := g.StartHour; h < g.EndHour; h++ {
		out = append(out, hourLabel{
			Label: fmt.Sprintf("%02d:00", h),
			Top:   g.PixelsForHours(float64(h - g.StartHour)),
		})
	}
	return out
}

// handleICS publishes every stored event, recurring ones as RRULE templates.
//
// GET /calendar.ics
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.List(r.Context())
	if err != nil {
		appLog.Error("calendar.ics: list failed", err)
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="bookcal.ics"`)
	_, _ = w.Write([]byte(ics.Export(events, s.now().UTC())))
}
