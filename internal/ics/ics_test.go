package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bookcal/internal/model"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

var feed = crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:show-1
DTSTAMP:20240101T000000Z
SUMMARY:Showing 12 Elm
DTSTART:20240108T100000
DTEND:20240108T110000
CATEGORIES:showing
STATUS:TENTATIVE
LOCATION:12 Elm St
RRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4
END:VEVENT
BEGIN:VEVENT
UID:show-1
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240110T100000
SUMMARY:Showing 12 Elm (moved)
DTSTART:20240110T120000
DTEND:20240110T130000
END:VEVENT
BEGIN:VEVENT
UID:hol-1
DTSTAMP:20240101T000000Z
SUMMARY:Office closed
DTSTART;VALUE=DATE:20240110
DTEND;VALUE=DATE:20240111
END:VEVENT
BEGIN:VEVENT
UID:yearly-1
DTSTAMP:20240101T000000Z
SUMMARY:Annual inspection
DTSTART:20240110T090000Z
DTEND:20240110T093000Z
CATEGORIES:maintenance
STATUS:CANCELLED
RRULE:FREQ=YEARLY
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20240101T000000Z
SUMMARY:No uid
DTSTART:20240110T090000
END:VEVENT
END:VCALENDAR
`)

func byID(events []model.CalendarEvent) map[string]model.CalendarEvent {
	out := make(map[string]model.CalendarEvent, len(events))
	for _, ev := range events {
		out[ev.ID] = ev
	}
	return out
}

func TestParseICS(t *testing.T) {
	t.Parallel()

	events, err := ParseICS(Source{ID: "feed"}, feed, ParseOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (override and uid-less event skipped)", len(events))
	}
	got := byID(events)

	show := got["show-1"]
	if show.Title != "Showing 12 Elm" || show.Type != model.TypeShowing || show.Status != model.StatusPending {
		t.Fatalf("show-1 fields = %+v", show)
	}
	if want := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC); !show.Start.Equal(want) {
		t.Fatalf("show-1 start = %v, want %v", show.Start, want)
	}
	if show.Meta["location"] != "12 Elm St" || show.Meta["source"] != "feed" {
		t.Fatalf("show-1 meta = %v", show.Meta)
	}
	r := show.Recurrence
	if r == nil || r.Frequency != model.Weekly || r.Interval != 1 || r.Count != 4 || r.Until != nil {
		t.Fatalf("show-1 rule = %+v", r)
	}
	if len(r.DaysOfWeek) != 2 || r.DaysOfWeek[0] != time.Monday || r.DaysOfWeek[1] != time.Wednesday {
		t.Fatalf("show-1 days = %v", r.DaysOfWeek)
	}

	hol := got["hol-1"]
	if !hol.AllDay || hol.End.Sub(hol.Start) != 24*time.Hour || hol.Type != model.TypeOther {
		t.Fatalf("hol-1 = %+v", hol)
	}

	yearly := got["yearly-1"]
	if yearly.Recurrence != nil {
		t.Fatalf("yearly rule should be dropped, got %+v", yearly.Recurrence)
	}
	if yearly.Status != model.StatusCancelled || yearly.Type != model.TypeMaintenance {
		t.Fatalf("yearly-1 = %+v", yearly)
	}
}

func TestParseICSConvertsUTCIntoLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("X", 2*60*60)
	events, err := ParseICS(Source{}, feed, ParseOptions{Location: loc})
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	got := byID(events)
	if h := got["yearly-1"].Start.Hour(); h != 11 {
		t.Fatalf("UTC start hour in +02:00 = %d, want 11", h)
	}
	if h := got["show-1"].Start.Hour(); h != 10 {
		t.Fatalf("floating start hour = %d, want 10", h)
	}
}

func TestRuleFromRRule(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	opts := ParseOptions{Location: time.UTC, OpenEndedHorizon: 30 * 24 * time.Hour}

	tests := []struct {
		raw     string
		wantErr bool
		check   func(*model.RecurrenceRule) bool
	}{
		{raw: "FREQ=DAILY;INTERVAL=2;COUNT=5", check: func(r *model.RecurrenceRule) bool {
			return r.Frequency == model.Daily && r.Interval == 2 && r.Count == 5
		}},
		{raw: "FREQ=MONTHLY;UNTIL=20240601T000000Z", check: func(r *model.RecurrenceRule) bool {
			return r.Frequency == model.Monthly && r.Until != nil && r.Until.Month() == time.June
		}},
		{raw: "FREQ=WEEKLY", check: func(r *model.RecurrenceRule) bool {
			return r.Until != nil && r.Until.Equal(start.Add(30*24*time.Hour))
		}},
		{raw: "FREQ=YEARLY;COUNT=2", wantErr: true},
		{raw: "FREQ=WEEKLY;BYDAY=1MO;COUNT=2", wantErr: true},
		{raw: "FREQ=MONTHLY;BYDAY=MO;COUNT=2", wantErr: true},
		{raw: "FREQ=MONTHLY;BYMONTHDAY=15;COUNT=2", wantErr: true},
		{raw: "FREQ=MONTHLY;BYMONTHDAY=8;COUNT=2", check: func(r *model.RecurrenceRule) bool {
			return r.Count == 2
		}},
		{raw: "not a rule", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			r, err := ruleFromRRule(tt.raw, start, opts)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", r)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(r) {
				t.Fatalf("unexpected rule %+v", r)
			}
		})
	}
}

func TestExportParsesBack(t *testing.T) {
	t.Parallel()

	in := []model.CalendarEvent{
		{
			ID: "a", Title: "Move-in 4B", Type: model.TypeMoveIn, Status: model.StatusConfirmed,
			Start: time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
			End:   time.Date(2024, 3, 4, 11, 30, 0, 0, time.UTC),
			Recurrence: &model.RecurrenceRule{
				Frequency: model.Weekly, Interval: 1,
				DaysOfWeek: []time.Weekday{time.Monday, time.Friday}, Count: 6,
			},
			Meta: map[string]string{"location": "Unit 4B"},
		},
		{
			ID: "b", Title: "Closed", Type: model.TypeOther, Status: model.StatusCancelled, AllDay: true,
			Start: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		},
	}

	out := Export(in, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if !strings.Contains(out, "DTSTART:20240304T093000") {
		t.Fatalf("timed DTSTART should be floating:\n%s", out)
	}

	back, err := ParseICS(Source{}, []byte(out), ParseOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	got := byID(back)

	a := got["a"]
	if !a.Start.Equal(in[0].Start) || !a.End.Equal(in[0].End) || a.Type != model.TypeMoveIn {
		t.Fatalf("a = %+v", a)
	}
	if a.Recurrence == nil || a.Recurrence.Count != 6 || len(a.Recurrence.DaysOfWeek) != 2 {
		t.Fatalf("a rule = %+v", a.Recurrence)
	}
	if a.Meta["location"] != "Unit 4B" {
		t.Fatalf("a meta = %v", a.Meta)
	}

	b := got["b"]
	if !b.AllDay || !b.Start.Equal(in[1].Start) || b.Status != model.StatusCancelled {
		t.Fatalf("b = %+v", b)
	}
}

func TestFetchLocalFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feed.ics")
	if err := os.WriteFile(path, feed, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Source{ID: "local", URL: path})
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	if res.FromCache || len(res.Body) != len(feed) {
		t.Fatalf("unexpected result: cache=%v bytes=%d", res.FromCache, len(res.Body))
	}
}

func TestFetchConditionalAndFallback(t *testing.T) {
	t.Parallel()

	var calls, fail atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(feed)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL + "/private.ics?token=secret"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, src)
	if err != nil || first.FromCache {
		t.Fatalf("first fetch: cache=%v err=%v", first.FromCache, err)
	}

	second, err := f.FetchOne(ctx, src)
	if err != nil || !second.FromCache || len(second.Body) != len(feed) {
		t.Fatalf("second fetch should hit 304 cache: cache=%v err=%v", second.FromCache, err)
	}

	fail.Store(1)
	third, err := f.FetchOne(ctx, src)
	if err != nil || !third.FromCache {
		t.Fatalf("third fetch should fall back to cache: cache=%v err=%v", third.FromCache, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("server calls = %d, want 3", calls.Load())
	}
}

func TestFetchAllCombinesErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ok.ics")
	if err := os.WriteFile(path, feed, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	results, err := NewFetcher(t.TempDir()).FetchAll(context.Background(), []Source{
		{ID: "ok", URL: path},
		{ID: "missing", URL: filepath.Join(t.TempDir(), "nope.ics")},
		{ID: "empty"},
	})
	if len(results) != 1 || results[0].Source.ID != "ok" {
		t.Fatalf("results = %+v", results)
	}
	if err == nil || !strings.Contains(err.Error(), "missing") || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("combined error = %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://example.com/path/private.ics?token=abc": "https://example.com/...(redacted)",
		"/var/lib/bookcal/feed.ics":                      "feed.ics",
		"":                                               "ics://...(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Fatalf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeSink struct {
	got map[string][]model.CalendarEvent
}

func (s *fakeSink) ReplaceSource(_ context.Context, source string, events []model.CalendarEvent) error {
	if s.got == nil {
		s.got = map[string][]model.CalendarEvent{}
	}
	s.got[source] = events
	return nil
}

func TestSyncKeepsGoingPastBadSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.ics")
	bad := filepath.Join(dir, "bad.ics")
	if err := os.WriteFile(good, feed, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(bad, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	sink := &fakeSink{}
	err := Sync(context.Background(), NewFetcher(t.TempDir()), sink, []Source{
		{ID: "good", URL: good},
		{ID: "bad", URL: bad},
		{ID: "gone", URL: filepath.Join(dir, "gone.ics")},
	}, ParseOptions{Location: time.UTC})

	if err == nil || !strings.Contains(err.Error(), "bad") || !strings.Contains(err.Error(), "gone") {
		t.Fatalf("Sync error = %v", err)
	}
	if len(sink.got) != 1 || len(sink.got["good"]) != 3 {
		t.Fatalf("sink = %+v", sink.got)
	}
}
