// Package calendar supplies the set of expected trading dates for an
// interval. The authoritative source is the provider's trading calendar; when
// that is unavailable the source falls back to the scmhub exchange calendar
// for Shanghai, and to plain weekdays if even that cannot be loaded. Results
// are cached per interval for the process lifetime — past trading-day status
// never changes retroactively.
package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	scmcal "github.com/scmhub/calendar"

	"amarket/internal/domain"
)

// ProviderAPI is the upstream trading-calendar call. May be absent (nil) when
// running offline.
type ProviderAPI interface {
	TradingDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// DateSet is a set of midnight-UTC dates.
type DateSet = map[time.Time]struct{}

// Source resolves expected trading dates with caching and fallback. Safe for
// concurrent use.
type Source struct {
	api      ProviderAPI
	exchange *scmcal.Calendar // nil when the MIC could not be loaded

	mu    sync.Mutex
	cache map[string]DateSet

	log *slog.Logger
}

// NewSource creates a Source backed by the given provider calendar API. Pass
// nil to run purely on the offline fallback chain.
func NewSource(api ProviderAPI) *Source {
	// XSHG is the Shanghai Stock Exchange MIC; the A-share venues share
	// trading days so one calendar covers the whole universe.
	exchange := scmcal.GetCalendar("xshg")
	if exchange == nil {
		slog.Warn("exchange calendar xshg unavailable, falling back to weekdays")
	}
	return &Source{
		api:      api,
		exchange: exchange,
		cache:    make(map[string]DateSet),
		log:      slog.Default().With("component", "calendar"),
	}
}

// ExpectedDates returns the set of trading dates within [start, end]
// inclusive. The first resolution of a given interval is cached for the
// process lifetime.
func (s *Source) ExpectedDates(ctx context.Context, start, end time.Time) (DateSet, error) {
	start, end = domain.Day(start), domain.Day(end)
	key := start.Format(domain.DateLayout) + "|" + end.Format(domain.DateLayout)

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	dates, err := s.resolve(ctx, start, end)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = dates
	s.mu.Unlock()
	return dates, nil
}

func (s *Source) resolve(ctx context.Context, start, end time.Time) (DateSet, error) {
	if s.api != nil {
		dates, err := s.api.TradingDates(ctx, start, end)
		if err == nil && len(dates) > 0 {
			set := make(DateSet, len(dates))
			for _, d := range dates {
				set[domain.Day(d)] = struct{}{}
			}
			return set, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("provider calendar unavailable, using offline calendar",
			"start", start.Format(domain.DateLayout),
			"end", end.Format(domain.DateLayout),
			"err", err,
		)
	}
	return s.offlineDates(start, end), nil
}

// offlineDates walks the interval day by day against the exchange calendar,
// or plain Mon-Fri when no calendar is loaded.
func (s *Source) offlineDates(start, end time.Time) DateSet {
	set := make(DateSet)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if s.isTradingDay(d) {
			set[d] = struct{}{}
		}
	}
	return set
}

func (s *Source) isTradingDay(d time.Time) bool {
	if s.exchange != nil {
		return s.exchange.IsBusinessDay(d)
	}
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
