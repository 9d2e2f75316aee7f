package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"bookcal/internal/calendar"
	"bookcal/internal/interaction"
	appLog "bookcal/internal/log"
	"bookcal/internal/model"
	"bookcal/internal/store"
)

const (
	dateLayout   = "2006-01-02"
	minuteLayout = "2006-01-02T15:04"
	maxBodyBytes = 64 << 10
)

// viewFromQuery reads ?view=month|week|day and ?date=YYYY-MM-DD, defaulting
// to this week.
func (s *Server) viewFromQuery(r *http.Request) (calendar.Mode, time.Time, error) {
	q := r.URL.Query()
	mode := calendar.ModeWeek
	if v := q.Get("view"); v != "" {
		m, err := calendar.ParseMode(v)
		if err != nil {
			return "", time.Time{}, err
		}
		mode = m
	}
	date := s.now().In(s.loc)
	if v := q.Get("date"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, s.loc)
		if err != nil {
			return "", time.Time{}, errors.New("date must be YYYY-MM-DD")
		}
		date = d
	}
	return mode, date, nil
}

// parseWallClock accepts RFC 3339 or a bare "YYYY-MM-DDTHH:MM" in the
// configured zone.
func (s *Server) parseWallClock(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(s.loc), nil
	}
	return time.ParseInLocation(minuteLayout, v, s.loc)
}

// handleView renders the active window as JSON.
//
// GET /api/view?view=week&date=2024-01-10
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	mode, date, err := s.viewFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.store.List(r.Context())
	if err != nil {
		appLog.Error("api view: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	v := s.newView(mode, date, nil)
	writeJSON(w, http.StatusOK, v.Render(events, s.now().In(s.loc)))
}

type conflictsResponse struct {
	HasConflict bool                  `json:"has_conflict"`
	Conflicts   []model.CalendarEvent `json:"conflicts"`
}

// handleConflicts checks a proposed range against stored events, recurring
// ones expanded.
//
// GET /api/conflicts?start=2024-01-10T09:00&end=2024-01-10T10:00&exclude=id
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := s.parseWallClock(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := s.parseWallClock(q.Get("end"))
	if err != nil || end.Before(start) {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}

	events, err := s.store.List(r.Context())
	if err != nil {
		appLog.Error("api conflicts: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	v := s.newView(calendar.ModeDay, start, nil)
	found := v.Conflicts(events, model.Interval{Start: start, End: end}, q.Get("exclude"))
	if found == nil {
		found = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, conflictsResponse{HasConflict: len(found) > 0, Conflicts: found})
}

type createRequest struct {
	Title  string          `json:"title"`
	Type   string          `json:"type"`
	Target json.RawMessage `json:"target"`
}

// handleCreate adds an event at a drop target: a day target creates an
// all-day event, a slot target a timed one of the type's default length.
//
// POST /api/events {"title":"..","type":"showing","target":{"type":"slot","date":"2024-01-10","hour":9}}
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target, err := interaction.DecodeDropTarget(req.Target, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var failed error
	v := s.newView(calendar.ModeWeek, s.now().In(s.loc), &failed)
	ev, ok := v.CreateAt(target, model.ParseEventType(req.Type), req.Title)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid target")
		return
	}
	if failed != nil {
		writeError(w, http.StatusInternalServerError, "failed to store event")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handleDrop runs a drag of {id} onto the posted drop target.
//
// POST /api/events/{id}/drop {"type":"day","date":"2024-01-12"}
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	target, err := interaction.DecodeDropTarget(body, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.gesture(w, r, id, func(v *calendar.View, rid string) (calendar.Outcome, bool) {
		if !v.PointerDown(rid, interaction.Point{}, false) {
			return calendar.Outcome{}, false
		}
		v.PointerMove(interaction.Point{X: s.cfg.DragThresholdPx + 1})
		v.Hover(target)
		return v.PointerUp(target), true
	}, calendar.OutcomeMoved)
}

type resizeRequest struct {
	DeltaPx float64 `json:"delta_px"`
}

// handleResize drags the bottom edge of {id} by delta_px.
//
// POST /api/events/{id}/resize {"delta_px":30}
func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req resizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.gesture(w, r, id, func(v *calendar.View, rid string) (calendar.Outcome, bool) {
		if !v.PointerDown(rid, interaction.Point{}, true) {
			return calendar.Outcome{}, false
		}
		v.PointerMove(interaction.Point{Y: req.DeltaPx})
		return v.PointerUp(nil), true
	}, calendar.OutcomeResized)
}

// gesture renders the day {id} occurs on, runs drive against a fresh View
// with the id the event rendered under, and reports the outcome.
func (s *Server) gesture(w http.ResponseWriter, r *http.Request, id string, drive func(v *calendar.View, rid string) (calendar.Outcome, bool), want calendar.OutcomeKind) {
	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	day, rid, ok := s.anchorDate(ctx, id)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	events, err := s.store.List(ctx)
	if err != nil {
		appLog.Error("api gesture: list failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	var failed error
	v := s.newView(calendar.ModeDay, day, &failed)
	v.Render(events, s.now().In(s.loc))

	out, started := drive(v, rid)
	switch {
	case !started:
		writeError(w, http.StatusUnprocessableEntity, "event cannot be changed this way")
	case out.Kind != want:
		writeJSON(w, http.StatusUnprocessableEntity, out)
	case failed != nil:
		writeError(w, http.StatusInternalServerError, "failed to store change")
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

// handleDelete removes {id}; instance ids delete their whole series.
//
// DELETE /api/events/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.anchorDate(r.Context(), id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	var failed error
	v := s.newView(calendar.ModeDay, s.now().In(s.loc), &failed)
	target := v.Delete(id)
	if failed != nil {
		if errors.Is(failed, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	appLog.Info("event deleted", "id", target)
	w.WriteHeader(http.StatusNoContent)
}
