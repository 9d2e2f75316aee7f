package ics

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

// Sink receives the parsed events of one source, replacing whatever that
// source contributed before.
type Sink interface {
	ReplaceSource(ctx context.Context, source string, events []model.CalendarEvent) error
}

// Sync fetches, parses and stores every source. A source that fails to
// fetch or parse leaves its previously stored events alone; the other
// sources still sync. All failures are returned together.
func Sync(ctx context.Context, f *Fetcher, dst Sink, sources []Source, opts ParseOptions) error {
	var errs *multierror.Error

	results, err := f.FetchAll(ctx, sources)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	total := 0
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body, opts)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: parse: %w", res.Source.ID, err))
			continue
		}
		if err := dst.ReplaceSource(ctx, res.Source.ID, events); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: store: %w", res.Source.ID, err))
			continue
		}
		total += len(events)
	}

	appLog.Info("ics sync completed", "sources", len(sources), "synced", len(results), "events", total)
	return errs.ErrorOrNil()
}
