package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "bookcal/internal/log"
	"bookcal/internal/model"
	"bookcal/internal/recurrence"
)

const (
	layoutUTC      = "20060102T150405Z"
	layoutFloating = "20060102T150405"
	layoutDate     = "20060102"

	defaultOpenEndedHorizon = 365 * 24 * time.Hour
)

// ParseOptions controls how VEVENTs are mapped onto calendar events.
type ParseOptions struct {
	// Location is the wall-clock zone events are read into. UTC ("Z")
	// timestamps are converted; everything else is taken as wall-clock.
	// If nil, time.Local is used.
	Location *time.Location

	// OpenEndedHorizon bounds RRULEs that have neither COUNT nor UNTIL,
	// measured from DTSTART. If zero, one year is used.
	OpenEndedHorizon time.Duration
}

// ParseICS parses a single ICS payload into calendar events.
//
//   - RRULEs with FREQ DAILY/WEEKLY/MONTHLY become RecurrenceRules; other
//     rules are logged and the event is kept as a single occurrence.
//   - RECURRENCE-ID overrides are skipped; the series template stands.
//   - CATEGORIES maps to the event type, STATUS to the status.
func ParseICS(src Source, body []byte, opts ParseOptions) ([]model.CalendarEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.OpenEndedHorizon <= 0 {
		opts.OpenEndedHorizon = defaultOpenEndedHorizon
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]model.CalendarEvent, 0)
	for _, ve := range cal.Events() {
		if ve.GetProperty("RECURRENCE-ID") != nil {
			appLog.Debug("ics: skipping recurrence override", "id", src.ID)
			continue
		}
		ev, perr := parseVEvent(src, ve, opts)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, opts ParseOptions) (model.CalendarEvent, error) {
	var out model.CalendarEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	out.Type = model.TypeOther
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		first, _, _ := strings.Cut(p.Value, ",")
		out.Type = model.ParseEventType(first)
	}
	out.Status = model.StatusConfirmed
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = model.ParseStatus(p.Value)
	}

	meta := map[string]string{}
	if src.ID != "" {
		meta["source"] = src.ID
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil && p.Value != "" {
		meta["location"] = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil && p.Value != "" {
		meta["description"] = p.Value
	}
	if len(meta) > 0 {
		out.Meta = meta
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parsePropertyTime(dtStart, opts.Location)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, _, err := parsePropertyTime(dtEnd, opts.Location)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	} else if allDay {
		out.End = start.AddDate(0, 0, 1)
	} else {
		out.End = start
	}
	if out.End.Before(out.Start) {
		return out, errors.New("DTEND before DTSTART")
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rule, err := ruleFromRRule(p.Value, out.Start, opts)
		if err != nil {
			appLog.Warn("ics: unsupported RRULE, keeping single occurrence", "uid", out.ID, "rrule", p.Value, "reason", err.Error())
		} else {
			out.Recurrence = rule
		}
	}
	if len(ve.GetProperties(ical.ComponentPropertyExdate)) > 0 {
		appLog.Debug("ics: EXDATE ignored", "uid", out.ID)
	}

	return out, nil
}

// parsePropertyTime reads DTSTART/DTEND as wall-clock time in loc. TZID is
// not honored: times are taken as local wall-clock.
func parsePropertyTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	v := strings.TrimSpace(p.Value)
	isDate := !strings.Contains(v, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}
	t, err := parseICSTime(v, loc)
	return t, isDate, err
}

// parseICSTime parses a basic ICS date/date-time string.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation(layoutFloating, v, loc)
	}
	return time.ParseInLocation(layoutDate, v, loc)
}

// ruleFromRRule maps an RRULE value onto a RecurrenceRule using rrule-go's
// parser. Only the subset the expander supports is accepted.
func ruleFromRRule(raw string, start time.Time, opts ParseOptions) (*model.RecurrenceRule, error) {
	opt, err := rrule.StrToROptionInLocation(raw, opts.Location)
	if err != nil {
		return nil, err
	}

	rule := &model.RecurrenceRule{Interval: opt.Interval}
	if rule.Interval == 0 {
		rule.Interval = 1
	}

	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = model.Daily
	case rrule.WEEKLY:
		rule.Frequency = model.Weekly
	case rrule.MONTHLY:
		rule.Frequency = model.Monthly
	default:
		return nil, fmt.Errorf("frequency %v not supported", opt.Freq)
	}

	if len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 {
		return nil, errors.New("BY* parts beyond BYDAY not supported")
	}
	if len(opt.Bymonthday) > 0 && !(len(opt.Bymonthday) == 1 && opt.Bymonthday[0] == start.Day()) {
		return nil, errors.New("BYMONTHDAY other than the start day not supported")
	}
	if len(opt.Byweekday) > 0 {
		if rule.Frequency != model.Weekly {
			return nil, errors.New("BYDAY only supported for weekly rules")
		}
		for _, w := range opt.Byweekday {
			d, ok := recurrence.FromRRuleWeekday(w)
			if !ok {
				return nil, errors.New("ordinal BYDAY not supported")
			}
			rule.DaysOfWeek = append(rule.DaysOfWeek, d)
		}
	}

	switch {
	case opt.Count > 0:
		rule.Count = opt.Count
	case !opt.Until.IsZero():
		until := opt.Until.In(opts.Location)
		rule.Until = &until
	default:
		until := start.Add(opts.OpenEndedHorizon)
		rule.Until = &until
		appLog.Debug("ics: open-ended RRULE bounded", "rrule", raw, "until", until)
	}

	if err := recurrence.Validate(*rule); err != nil {
		return nil, err
	}
	return rule, nil
}
