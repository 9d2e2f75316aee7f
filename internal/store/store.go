package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

// ErrNotFound is returned when no event has the requested id.
var ErrNotFound = errors.New("store: event not found")

const (
	wallClockLayout = "2006-01-02T15:04:05"
	untilLayout     = "2006-01-02"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	start_at   TEXT NOT NULL,
	end_at     TEXT NOT NULL,
	all_day    INTEGER NOT NULL DEFAULT 0,
	type       TEXT NOT NULL DEFAULT 'other',
	status     TEXT NOT NULL DEFAULT 'confirmed',
	recurrence TEXT,
	meta       TEXT,
	source     TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_start_idx ON events (start_at);
CREATE INDEX IF NOT EXISTS events_source_idx ON events (source);
`

const columns = `id, title, start_at, end_at, all_day, type, status, recurrence, meta, source`

const insertSQL = `INSERT INTO events (` + columns + `, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const upsertSQL = insertSQL + `
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	start_at = excluded.start_at,
	end_at = excluded.end_at,
	all_day = excluded.all_day,
	type = excluded.type,
	status = excluded.status,
	recurrence = excluded.recurrence,
	meta = excluded.meta,
	source = excluded.source,
	updated_at = excluded.updated_at`

// Store keeps events in SQLite. Times are stored as wall-clock text and
// read back in loc.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, loc *time.Location) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: empty database path")
	}
	if loc == nil {
		loc = time.Local
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite serializes writers anyway, and an in-memory database only
	// exists on the connection that created it.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	appLog.Info("store opened", "path", path)
	return &Store{db: db, loc: loc}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// List returns every stored event ordered by start.
func (s *Store) List(ctx context.Context) ([]model.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM events ORDER BY start_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list events query: %w", err)
	}
	defer rows.Close()

	out := make([]model.CalendarEvent, 0)
	for rows.Next() {
		ev, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list events scan: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events rows: %w", err)
	}
	return out, nil
}

// Get returns the event with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM events WHERE id = ?`, id)
	ev, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CalendarEvent{}, ErrNotFound
	}
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return ev, nil
}

// Insert adds a new event. Instance events are rejected: only stored ids
// may be written.
func (s *Store) Insert(ctx context.Context, ev model.CalendarEvent) error {
	r, err := s.toRow(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertSQL, r.args(time.Now().UTC())...)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// Upsert inserts ev or replaces the stored event with the same id.
func (s *Store) Upsert(ctx context.Context, ev model.CalendarEvent) error {
	r, err := s.toRow(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertSQL, r.args(time.Now().UTC())...)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", ev.ID, err)
	}
	return nil
}

// UpdateTimes moves or resizes a stored event.
func (s *Store) UpdateTimes(ctx context.Context, id string, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("update event %s: end before start", id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET start_at = ?, end_at = ?, updated_at = ? WHERE id = ?`,
		start.Format(wallClockLayout), end.Format(wallClockLayout), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	return affected(res, id)
}

// Delete removes a stored event.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return affected(res, id)
}

// ReplaceSource makes the events of one import source match events: every
// event is upserted under source, and stored events of that source that
// are no longer present are removed. Events created locally (empty source)
// are never touched.
func (s *Store) ReplaceSource(ctx context.Context, source string, events []model.CalendarEvent) error {
	if source == "" {
		return errors.New("store: replace needs a source id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace source %s: begin: %w", source, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	keep := make([]any, 0, len(events)+1)
	keep = append(keep, source)
	for _, ev := range events {
		ev.Meta = withSource(ev.Meta, source)
		r, err := s.toRow(ev)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertSQL, r.args(now)...); err != nil {
			return fmt.Errorf("replace source %s: upsert %s: %w", source, ev.ID, err)
		}
		keep = append(keep, ev.ID)
	}

	query := `DELETE FROM events WHERE source = ?`
	if len(keep) > 1 {
		query += ` AND id NOT IN (?` + strings.Repeat(", ?", len(keep)-2) + `)`
	}
	res, err := tx.ExecContext(ctx, query, keep...)
	if err != nil {
		return fmt.Errorf("replace source %s: prune: %w", source, err)
	}
	pruned, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace source %s: commit: %w", source, err)
	}
	appLog.Info("store source replaced", "source", source, "events", len(events), "pruned", pruned)
	return nil
}

func affected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func withSource(meta map[string]string, source string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["source"] = source
	return out
}

// ruleRow is the stored form of a RecurrenceRule. Until is kept as a bare
// date since only its calendar date matters.
type ruleRow struct {
	Frequency model.Frequency `json:"frequency"`
	Interval  int             `json:"interval"`
	Days      []time.Weekday  `json:"days,omitempty"`
	Until     string          `json:"until,omitempty"`
	Count     int             `json:"count,omitempty"`
}

type row struct {
	id, title, start, end string
	allDay                bool
	typ, status           string
	recurrence, meta      sql.NullString
	source                string
}

func (r row) args(now time.Time) []any {
	return []any{r.id, r.title, r.start, r.end, r.allDay, r.typ, r.status, r.recurrence, r.meta, r.source, now.Format(time.RFC3339)}
}

func (s *Store) toRow(ev model.CalendarEvent) (row, error) {
	if ev.ID == "" {
		return row{}, errors.New("store: event id is empty")
	}
	if ev.IsInstance() {
		return row{}, fmt.Errorf("store: %s is an expanded instance, write its template %s", ev.ID, ev.RecurrenceID)
	}
	if ev.End.Before(ev.Start) {
		return row{}, fmt.Errorf("store: event %s ends before it starts", ev.ID)
	}

	r := row{
		id:     ev.ID,
		title:  ev.Title,
		start:  ev.Start.Format(wallClockLayout),
		end:    ev.End.Format(wallClockLayout),
		allDay: ev.AllDay,
		typ:    string(ev.Type),
		status: string(ev.Status),
		source: ev.Meta["source"],
	}
	if r.typ == "" {
		r.typ = string(model.TypeOther)
	}
	if r.status == "" {
		r.status = string(model.StatusConfirmed)
	}

	if rule := ev.Recurrence; rule != nil {
		rr := ruleRow{Frequency: rule.Frequency, Interval: rule.Interval, Days: rule.DaysOfWeek, Count: rule.Count}
		if rule.Until != nil {
			rr.Until = rule.Until.Format(untilLayout)
		}
		data, err := json.Marshal(rr)
		if err != nil {
			return row{}, fmt.Errorf("store: encode recurrence of %s: %w", ev.ID, err)
		}
		r.recurrence = sql.NullString{String: string(data), Valid: true}
	}
	if len(ev.Meta) > 0 {
		data, err := json.Marshal(ev.Meta)
		if err != nil {
			return row{}, fmt.Errorf("store: encode meta of %s: %w", ev.ID, err)
		}
		r.meta = sql.NullString{String: string(data), Valid: true}
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(sc scanner) (model.CalendarEvent, error) {
	var r row
	if err := sc.Scan(&r.id, &r.title, &r.start, &r.end, &r.allDay, &r.typ, &r.status, &r.recurrence, &r.meta, &r.source); err != nil {
		return model.CalendarEvent{}, err
	}

	ev := model.CalendarEvent{
		ID:     r.id,
		Title:  r.title,
		AllDay: r.allDay,
		Type:   model.ParseEventType(r.typ),
		Status: model.ParseStatus(r.status),
	}
	var err error
	if ev.Start, err = time.ParseInLocation(wallClockLayout, r.start, s.loc); err != nil {
		return ev, fmt.Errorf("event %s start: %w", r.id, err)
	}
	if ev.End, err = time.ParseInLocation(wallClockLayout, r.end, s.loc); err != nil {
		return ev, fmt.Errorf("event %s end: %w", r.id, err)
	}

	if r.recurrence.Valid && r.recurrence.String != "" {
		var rr ruleRow
		if err := json.Unmarshal([]byte(r.recurrence.String), &rr); err != nil {
			return ev, fmt.Errorf("event %s recurrence: %w", r.id, err)
		}
		rule := &model.RecurrenceRule{Frequency: rr.Frequency, Interval: rr.Interval, DaysOfWeek: rr.Days, Count: rr.Count}
		if rr.Until != "" {
			until, err := time.ParseInLocation(untilLayout, rr.Until, s.loc)
			if err != nil {
				return ev, fmt.Errorf("event %s until: %w", r.id, err)
			}
			rule.Until = &until
		}
		ev.Recurrence = rule
	}
	if r.meta.Valid && r.meta.String != "" {
		if err := json.Unmarshal([]byte(r.meta.String), &ev.Meta); err != nil {
			return ev, fmt.Errorf("event %s meta: %w", r.id, err)
		}
	}
	return ev, nil
}
