package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/teambition/rrule-go"

	"bookcal/internal/model"
)

// ErrInvalidRule is wrapped by every validation problem Validate reports.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Validate checks that rule terminates and steps forward. All problems are
// reported together.
func Validate(rule model.RecurrenceRule) error {
	var result *multierror.Error

	switch rule.Frequency {
	case model.Daily, model.Weekly, model.Monthly:
	default:
		result = multierror.Append(result, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, rule.Frequency))
	}
	if rule.Interval <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidRule, rule.Interval))
	}
	if rule.Count < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: negative count %d", ErrInvalidRule, rule.Count))
	}
	switch {
	case rule.Until == nil && rule.Count == 0:
		result = multierror.Append(result, fmt.Errorf("%w: neither end date nor count set", ErrInvalidRule))
	case rule.Until != nil && rule.Count > 0:
		result = multierror.Append(result, fmt.Errorf("%w: both end date and count set", ErrInvalidRule))
	}
	for _, d := range rule.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			result = multierror.Append(result, fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, d))
		}
	}

	return result.ErrorOrNil()
}

var toRRuleWeekday = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// FromRRuleWeekday maps an rrule-go weekday back to time.Weekday. Weekdays
// carrying an ordinal (e.g. 2MO) are not representable and report false.
func FromRRuleWeekday(w rrule.Weekday) (time.Weekday, bool) {
	for d, rw := range toRRuleWeekday {
		if rw == w {
			return d, true
		}
	}
	return 0, false
}

// ROption builds the rrule-go options for a template. Count is not passed
// through: the template itself is occurrence #1 and the caller counts.
func ROption(template model.CalendarEvent, weekStart time.Weekday) rrule.ROption {
	rule := template.Recurrence
	opt := rrule.ROption{
		Dtstart:  template.Start,
		Interval: rule.Interval,
		Wkst:     toRRuleWeekday[weekStart],
	}

	switch rule.Frequency {
	case model.Daily:
		opt.Freq = rrule.DAILY
	case model.Weekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range sortedDays(rule.DaysOfWeek, weekStart) {
			opt.Byweekday = append(opt.Byweekday, toRRuleWeekday[d])
		}
	case model.Monthly:
		opt.Freq = rrule.MONTHLY
	}

	if rule.Until != nil {
		// Inclusive end date: keep everything up to the last second of that day.
		loc := template.Start.Location()
		y, m, d := rule.Until.Date()
		opt.Until = time.Date(y, m, d, 23, 59, 59, 0, loc)
	}

	return opt
}

// sortedDays de-duplicates days and orders them from weekStart onward.
func sortedDays(days []time.Weekday, weekStart time.Weekday) []time.Weekday {
	var seen [7]bool
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			seen[d] = true
		}
	}
	out := make([]time.Weekday, 0, len(days))
	for i := 0; i < 7; i++ {
		d := (weekStart + time.Weekday(i)) % 7
		if seen[d] {
			out = append(out, d)
		}
	}
	return out
}
