package ingest

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"amarket/internal/domain"
	"amarket/internal/provider"
)

// BarFetcher is the throttled provider call the worker drives.
type BarFetcher interface {
	FetchBars(ctx context.Context, code string, start, end time.Time) ([]domain.Bar, error)
}

// BarWriter is the store-write capability the worker needs.
type BarWriter interface {
	UpsertBars(ctx context.Context, code string, bars []domain.Bar) (int, error)
	AdvanceLastUpdate(ctx context.Context, code string, d time.Time) error
}

// Worker fills missing ranges for one security at a time: gap scan, then a
// strictly sequential fetch→validate→persist pass over each range. One
// worker instance is shared across the pool; it holds no per-code state.
type Worker struct {
	client BarFetcher
	finder *GapFinder
	store  BarWriter

	maxAttempts int
	cooldown    time.Duration // ban cooldown, jittered on use
	retryDelay  time.Duration // linear backoff step for ordinary failures

	log *slog.Logger
}

// NewWorker creates a Worker with the given retry policy.
func NewWorker(client BarFetcher, finder *GapFinder, store BarWriter, maxAttempts int, cooldown, retryDelay time.Duration) *Worker {
	return &Worker{
		client:      client,
		finder:      finder,
		store:       store,
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		retryDelay:  retryDelay,
		log:         slog.Default().With("component", "worker"),
	}
}

// CodeResult summarizes one security's sync pass.
type CodeResult struct {
	Code         string
	Ranges       int // missing ranges found
	FailedRanges int // ranges that exhausted their attempts
	Rows         int // rows persisted
}

// Current reports whether the code had nothing to fill.
func (r CodeResult) Current() bool { return r.Ranges == 0 }

// SyncCode reconciles one security over [start, end]. Ranges are processed
// in order; a range that exhausts its attempts is logged and skipped, never
// aborting the rest of the code's ranges. The returned error is non-nil only
// for the gap scan failing or the context ending.
func (w *Worker) SyncCode(ctx context.Context, code string, start, end time.Time) (CodeResult, error) {
	res := CodeResult{Code: code}

	ranges, err := w.finder.FindMissingRanges(ctx, code, start, end)
	if err != nil {
		return res, err
	}
	res.Ranges = len(ranges)
	if len(ranges) == 0 {
		return res, nil
	}

	w.log.Debug("missing ranges found", "code", code, "ranges", len(ranges))

	for _, r := range ranges {
		rows, err := w.fillRange(ctx, code, r)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err != nil {
			res.FailedRanges++
			w.log.Error("range failed after all attempts",
				"code", code,
				"range", r.String(),
				"attempts", w.maxAttempts,
				"err", err,
			)
			continue
		}
		res.Rows += rows
	}
	return res, nil
}

// fillRange drives one (code, range) pair through fetch→validate→persist
// with up to maxAttempts attempts. A ban-classified failure waits out the
// jittered cooldown; any other failure (transport, validation, persistence)
// backs off linearly with the attempt number. An empty fetch is success with
// zero rows.
func (w *Worker) fillRange(ctx context.Context, code string, r domain.MissingRange) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		rows, err := w.attemptFill(ctx, code, r)
		if err == nil {
			return rows, nil
		}
		if ctx.Err() != nil {
			return 0, err
		}
		lastErr = err

		// No sleep after the final failed attempt.
		if attempt == w.maxAttempts {
			break
		}

		var delay time.Duration
		var rle *provider.RateLimitError
		if errors.As(err, &rle) {
			delay = jitter(w.cooldown)
			w.log.Warn("provider ban suspected, entering cooldown",
				"code", code, "range", r.String(), "attempt", attempt,
				"cooldown", delay.Round(time.Second), "err", err,
			)
		} else {
			delay = time.Duration(attempt) * w.retryDelay
			w.log.Warn("attempt failed, backing off",
				"code", code, "range", r.String(), "attempt", attempt,
				"backoff", delay, "err", err,
			)
		}
		if err := sleep(ctx, delay); err != nil {
			return 0, err
		}
	}
	return 0, lastErr
}

func (w *Worker) attemptFill(ctx context.Context, code string, r domain.MissingRange) (int, error) {
	bars, err := w.client.FetchBars(ctx, code, r.Start, r.End)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		// Nothing available for the range (delisted period, suspension).
		// Not an error; the range is settled.
		w.log.Debug("no data for range", "code", code, "range", r.String())
		return 0, nil
	}

	n, err := w.store.UpsertBars(ctx, code, bars)
	if err != nil {
		return 0, err
	}

	// Bars come back date-ascending from the client, so the batch max is the
	// last row. The advance is monotonic in the store; retried attempts
	// re-upsert idempotently.
	maxDate := bars[len(bars)-1].Date
	if err := w.store.AdvanceLastUpdate(ctx, code, maxDate); err != nil {
		return 0, err
	}

	w.log.Info("range filled",
		"code", code, "range", r.String(), "rows", n,
		"mark", maxDate.Format(domain.DateLayout),
	)
	return n, nil
}

// jitter scales the cooldown by a factor drawn from [0.9, 1.2) so workers
// banned together do not all re-enter together.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.9 + rand.Float64()*0.3))
}

// sleep waits for d or until the context ends, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
