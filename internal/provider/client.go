package provider

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"amarket/internal/domain"
	"amarket/internal/util"
)

// BarAPI is the raw remote call the throttled client wraps.
type BarAPI interface {
	DailyBars(ctx context.Context, code string, start, end time.Time) ([]domain.Bar, error)
}

// Compile-time interface check.
var _ BarAPI = (*TushareAPI)(nil)

// Client wraps a BarAPI with provider-wide throttling, ban classification,
// and row validation. All workers share one Client so every outbound call
// funnels through the same rate-limit accounting.
type Client struct {
	api     BarAPI
	limiter *util.RateLimiter
	bans    BanDetector
	now     func() time.Time
	log     *slog.Logger
}

// NewClient creates a throttled Client around the given raw API.
func NewClient(api BarAPI, limiter *util.RateLimiter, bans BanDetector) *Client {
	return &Client{
		api:     api,
		limiter: limiter,
		bans:    bans,
		now:     time.Now,
		log:     slog.Default().With("component", "provider"),
	}
}

// FetchBars fetches daily bars for one security over [start, end]. It blocks
// on the shared rate limiter before calling out. Errors that look like a
// provider ban are returned as *RateLimitError wrapping the original cause;
// all other errors pass through unchanged. Returned rows are deduplicated by
// date, checked against the caller's clock, and sorted ascending; a
// validation failure yields no rows.
func (c *Client) FetchBars(ctx context.Context, code string, start, end time.Time) ([]domain.Bar, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	bars, err := c.api.DailyBars(ctx, code, start, end)
	if err != nil {
		if c.bans.IsBan(err) {
			c.log.Warn("fetch classified as provider ban", "code", code, "err", err)
			return nil, &RateLimitError{Cause: err}
		}
		return nil, err
	}

	return validateBars(code, bars, domain.Day(c.now()))
}

// validateBars collapses duplicate dates (keeping the first occurrence),
// rejects missing or future dates, and sorts ascending.
func validateBars(code string, bars []domain.Bar, today time.Time) ([]domain.Bar, error) {
	seen := make(map[time.Time]struct{}, len(bars))
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Date.IsZero() {
			return nil, &ValidationError{Code: code, Reason: "row with missing date"}
		}
		d := domain.Day(b.Date)
		if d.After(today) {
			return nil, &ValidationError{Code: code, Reason: "row dated in the future: " + d.Format(domain.DateLayout)}
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		b.Date = d
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
