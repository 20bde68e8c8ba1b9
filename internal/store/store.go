// Package store defines the persistence interfaces the sync engine works
// against, plus the SQLite implementation and a Parquet exporter.
package store

import (
	"context"
	"time"

	"amarket/internal/domain"
)

// BarStore persists and retrieves daily bar rows.
type BarStore interface {
	// DatesPresent returns the set of dates already stored for the code
	// within [start, end].
	DatesPresent(ctx context.Context, code string, start, end time.Time) (map[time.Time]struct{}, error)

	// UpsertBars writes a batch of bars for one code in a single
	// transaction. Idempotent on (code, date): re-upserting overwrites in
	// place. Returns the number of rows written.
	UpsertBars(ctx context.Context, code string, bars []domain.Bar) (int, error)

	// ReadBars returns stored bars for the code within [start, end], sorted
	// ascending by date.
	ReadBars(ctx context.Context, code string, start, end time.Time) ([]domain.Bar, error)
}

// StockStore persists the security universe and each code's sync frontier.
type StockStore interface {
	// UpsertStocks inserts or refreshes universe rows, preserving any
	// existing last_update_date. Returns the number of rows written.
	UpsertStocks(ctx context.Context, stocks []domain.Stock) (int, error)

	// CodesNeedingUpdate returns listed codes whose last_update_date is null
	// or earlier than asOf.
	CodesNeedingUpdate(ctx context.Context, asOf time.Time) ([]string, error)

	// AdvanceLastUpdate moves the code's high-water mark forward to d.
	// Monotonic: a no-op when d is not later than the current mark.
	AdvanceLastUpdate(ctx context.Context, code string, d time.Time) error

	// ListCodes returns all codes in the universe, sorted.
	ListCodes(ctx context.Context) ([]string, error)
}
