package ingest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"amarket/internal/domain"
)

// StockLister is the store capability that yields the reconciliation
// frontier.
type StockLister interface {
	CodesNeedingUpdate(ctx context.Context, asOf time.Time) ([]string, error)
}

// Coordinator fans sync work across a bounded pool of workers, one task per
// security. Each task owns its code exclusively — ranges for a code are
// processed by exactly one goroutine — while cross-code work runs in
// parallel up to the pool size, all funneling through the shared rate
// limiter inside the provider client.
type Coordinator struct {
	worker      *Worker
	stocks      StockLister
	concurrency int
	startDate   time.Time // oldest supported date floor

	log *slog.Logger
}

// NewCoordinator creates a Coordinator dispatching to the given worker.
func NewCoordinator(worker *Worker, stocks StockLister, concurrency int, startDate time.Time) *Coordinator {
	return &Coordinator{
		worker:      worker,
		stocks:      stocks,
		concurrency: concurrency,
		startDate:   domain.Day(startDate),
		log:         slog.Default().With("component", "coordinator"),
	}
}

// Summary aggregates one run's outcome.
type Summary struct {
	Synced  int // codes with all ranges filled
	Failed  int // codes with a failed range or a failed gap scan
	Skipped int // codes already current
	Rows    int // total rows persisted
}

// Run reconciles every security whose high-water mark is behind end. It
// blocks until all dispatched tasks finish and returns the aggregate
// summary. Individual code failures are counted, not propagated; the only
// error returned is the frontier query failing or the context ending.
func (c *Coordinator) Run(ctx context.Context, end time.Time) (Summary, error) {
	end = domain.Day(end)

	codes, err := c.stocks.CodesNeedingUpdate(ctx, end)
	if err != nil {
		return Summary{}, err
	}
	if len(codes) == 0 {
		c.log.Info("no codes need update", "end", end.Format(domain.DateLayout))
		return Summary{}, nil
	}

	c.log.Info("starting sync run",
		"codes", len(codes),
		"start", c.startDate.Format(domain.DateLayout),
		"end", end.Format(domain.DateLayout),
		"workers", c.concurrency,
	)

	codeCh := make(chan string, len(codes))
	for _, code := range codes {
		codeCh <- code
	}
	close(codeCh)

	var (
		wg       sync.WaitGroup
		synced   atomic.Int64
		failed   atomic.Int64
		skipped  atomic.Int64
		rows     atomic.Int64
		runStart = time.Now()
	)

	workers := min(c.concurrency, len(codes))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range codeCh {
				if ctx.Err() != nil {
					return
				}

				res, err := c.worker.SyncCode(ctx, code, c.startDate, end)
				switch {
				case err != nil:
					if ctx.Err() != nil {
						return
					}
					failed.Add(1)
					c.log.Error("code sync failed", "code", code, "err", err)
				case res.FailedRanges > 0:
					failed.Add(1)
					rows.Add(int64(res.Rows))
				case res.Current():
					skipped.Add(1)
				default:
					synced.Add(1)
					rows.Add(int64(res.Rows))
				}
			}
		}()
	}

	wg.Wait()

	summary := Summary{
		Synced:  int(synced.Load()),
		Failed:  int(failed.Load()),
		Skipped: int(skipped.Load()),
		Rows:    int(rows.Load()),
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}

	c.log.Info("sync run complete",
		"synced", summary.Synced,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"rows", summary.Rows,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return summary, nil
}
