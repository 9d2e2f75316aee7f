package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"bookcal/internal/calendar"
	"bookcal/internal/config"
	appLog "bookcal/internal/log"
	"bookcal/internal/model"
	"bookcal/internal/recurrence"
	"bookcal/internal/store"
)

//go:embed templates/*.html
var templates embed.FS

// Server exposes the calendar over HTTP: a JSON API for the interactive
// client and a server-rendered /calendar page for snapshots.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	loc    *time.Location
	now    func() time.Time
	router *mux.Router
	page   *template.Template

	// mu serializes drag/resize/create/delete. Each request drives its own
	// View, but the read-render-write sequence must not interleave with
	// another request's write.
	mu sync.Mutex
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer wires the routes for cfg and st.
func NewServer(cfg *config.Config, st *store.Store, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		loc:    cfg.Location(),
		now:    time.Now,
		router: mux.NewRouter(),
	}
	for _, o := range opts {
		o(s)
	}
	s.page = template.Must(template.New("calendar.html").Funcs(pageFuncs).ParseFS(templates, "templates/calendar.html"))
	s.registerRoutes()
	return s
}

// Handler returns the router, behind basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/view", s.handleView).Methods(http.MethodGet)
	api.HandleFunc("/conflicts", s.handleConflicts).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/events/{id}/drop", s.handleDrop).Methods(http.MethodPost)
	api.HandleFunc("/events/{id}/resize", s.handleResize).Methods(http.MethodPost)
	api.HandleFunc("/events/{id}", s.handleDelete).Methods(http.MethodDelete)

	r.HandleFunc("/calendar", s.handleCalendarPage).Methods(http.MethodGet)
	r.HandleFunc("/calendar.ics", s.handleICS).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="bookcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// newView builds a View for one request. Writes go through a Persister
// whose failures are reported into *failed.
func (s *Server) newView(mode calendar.Mode, date time.Time, failed *error) *calendar.View {
	var p calendar.Persister
	if failed != nil {
		sp := store.NewPersister(s.store, 0)
		sp.OnError = func(_, _ string, err error) { *failed = err }
		p = sp
	}
	return calendar.New(calendar.OptionsFromConfig(s.cfg), p, mode, date)
}

// anchorDate finds the day an id (stored or instance) occurs on, and the id
// it renders under: a recurring template shows up as its first instance,
// unless its rule is rejected and it renders as a plain event.
func (s *Server) anchorDate(ctx context.Context, id string) (time.Time, string, bool) {
	if ev, err := s.store.Get(ctx, id); err == nil {
		if ev.Recurrence != nil && recurrence.Validate(*ev.Recurrence) == nil {
			return ev.Start, model.InstanceRef{TemplateID: ev.ID, OccurrenceStart: ev.Start}.ID(), true
		}
		return ev.Start, ev.ID, true
	}
	ref, err := model.ParseInstanceID(id, s.loc)
	if err != nil {
		return time.Time{}, "", false
	}
	if _, err := s.store.Get(ctx, ref.TemplateID); err != nil {
		return time.Time{}, "", false
	}
	return ref.OccurrenceStart, id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
