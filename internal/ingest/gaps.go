// Package ingest implements the reconciliation engine: computing which
// trading dates are missing per security, filling them through the throttled
// provider client with bounded retries, and fanning that work across a
// bounded pool of workers.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"amarket/internal/calendar"
	"amarket/internal/domain"
)

// CalendarSource supplies expected trading dates for an interval.
type CalendarSource interface {
	ExpectedDates(ctx context.Context, start, end time.Time) (calendar.DateSet, error)
}

// DateReader is the store-read capability the gap scan needs.
type DateReader interface {
	DatesPresent(ctx context.Context, code string, start, end time.Time) (map[time.Time]struct{}, error)
}

// GapFinder computes the missing date ranges for one security by diffing the
// trading calendar against stored rows.
type GapFinder struct {
	calendar    CalendarSource
	dates       DateReader
	maxSpanDays int
}

// NewGapFinder creates a GapFinder. maxSpanDays bounds the span of a single
// emitted range so one downstream fetch stays a manageable size.
func NewGapFinder(cal CalendarSource, dates DateReader, maxSpanDays int) *GapFinder {
	return &GapFinder{
		calendar:    cal,
		dates:       dates,
		maxSpanDays: maxSpanDays,
	}
}

// FindMissingRanges returns the maximal contiguous runs of missing trading
// dates for the code within [start, end], sorted ascending and pairwise
// disjoint. A run breaks where the next missing date is not exactly one
// calendar day after the previous one, or where the run's span would reach
// maxSpanDays. An empty result means the code is fully synced for the
// interval.
func (g *GapFinder) FindMissingRanges(ctx context.Context, code string, start, end time.Time) ([]domain.MissingRange, error) {
	start, end = domain.Day(start), domain.Day(end)

	expected, err := g.calendar.ExpectedDates(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("resolving trading calendar: %w", err)
	}
	existing, err := g.dates.DatesPresent(ctx, code, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading stored dates for %s: %w", code, err)
	}

	missing := make([]time.Time, 0, len(expected))
	for d := range expected {
		if _, ok := existing[d]; !ok {
			missing = append(missing, d)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Before(missing[j]) })

	return mergeRuns(missing, g.maxSpanDays), nil
}

// mergeRuns folds a sorted list of missing dates into maximal contiguous
// runs, each spanning fewer than maxSpanDays days.
func mergeRuns(missing []time.Time, maxSpanDays int) []domain.MissingRange {
	var ranges []domain.MissingRange
	for _, d := range missing {
		if len(ranges) > 0 {
			cur := &ranges[len(ranges)-1]
			contiguous := d.Equal(cur.End.AddDate(0, 0, 1))
			withinSpan := d.Sub(cur.Start) < time.Duration(maxSpanDays)*24*time.Hour
			if contiguous && withinSpan {
				cur.End = d
				continue
			}
		}
		ranges = append(ranges, domain.MissingRange{Start: d, End: d})
	}
	return ranges
}
