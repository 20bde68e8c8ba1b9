// Package universe maintains the security universe: which codes the sync
// engine tracks. The universe comes from the provider's listing endpoint or
// from a local CSV snapshot, optionally filtered by board.
package universe

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"amarket/internal/domain"
	"amarket/internal/provider"
)

// StockAPI is the provider capability that lists the tradable universe.
type StockAPI interface {
	StockList(ctx context.Context) ([]domain.Stock, error)
}

var _ StockAPI = (*provider.TushareAPI)(nil)

// StockWriter is the store capability universe refreshes need.
type StockWriter interface {
	UpsertStocks(ctx context.Context, stocks []domain.Stock) (int, error)
}

// Board prefixes on the six-digit code. BJ-listed codes additionally carry
// the .BJ exchange suffix on their ts_code.
var boardPrefixes = map[string][]string{
	"gem":  {"300", "301"},
	"star": {"688"},
	"bj":   {"4", "8"},
}

// FilterBoards drops stocks belonging to any of the named boards. Unknown
// board names are ignored. The input slice is not modified.
func FilterBoards(stocks []domain.Stock, exclude []string) []domain.Stock {
	if len(exclude) == 0 {
		return stocks
	}

	var prefixes []string
	dropBJ := false
	for _, b := range exclude {
		b = strings.ToLower(strings.TrimSpace(b))
		prefixes = append(prefixes, boardPrefixes[b]...)
		if b == "bj" {
			dropBJ = true
		}
	}

	kept := make([]domain.Stock, 0, len(stocks))
outer:
	for _, s := range stocks {
		if dropBJ && s.Exchange == "BJ" {
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(s.Code, p) {
				continue outer
			}
		}
		kept = append(kept, s)
	}
	return kept
}

// LoadCSV reads a universe snapshot from a CSV file with a header row. The
// first column must be the code; name, area, industry, market and list_date
// columns are picked up when the header names them.
func LoadCSV(path string) ([]domain.Stock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	stocks := make([]domain.Stock, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		code := strings.TrimSpace(row[0])
		if code == "" {
			continue
		}
		tsCode := domain.ToTSCode(code)
		code, exchange := domain.FromTSCode(tsCode)

		var listDate time.Time
		if s := field(row, "list_date"); s != "" {
			if d, perr := domain.ParseDate(s); perr == nil {
				listDate = d
			}
		}

		stocks = append(stocks, domain.Stock{
			Code:       code,
			TSCode:     tsCode,
			Name:       field(row, "name"),
			Area:       field(row, "area"),
			Industry:   field(row, "industry"),
			Market:     field(row, "market"),
			Exchange:   exchange,
			ListStatus: "L",
			ListDate:   listDate,
		})
	}
	return stocks, nil
}

// Refresher pulls the universe and writes it to the store.
type Refresher struct {
	api     StockAPI
	store   StockWriter
	exclude []string

	log *slog.Logger
}

// NewRefresher creates a Refresher that drops the named boards on refresh.
func NewRefresher(api StockAPI, store StockWriter, excludeBoards []string) *Refresher {
	return &Refresher{
		api:     api,
		store:   store,
		exclude: excludeBoards,
		log:     slog.Default().With("component", "universe"),
	}
}

// Refresh fetches the listed universe from the provider, filters it and
// upserts the result. Existing sync frontiers are preserved by the store.
// Returns the number of codes written.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	stocks, err := r.api.StockList(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing universe: %w", err)
	}
	return r.write(ctx, stocks)
}

// RefreshFromCSV loads a universe snapshot from a CSV file instead of the
// provider, applying the same board filter.
func (r *Refresher) RefreshFromCSV(ctx context.Context, path string) (int, error) {
	stocks, err := LoadCSV(path)
	if err != nil {
		return 0, err
	}
	return r.write(ctx, stocks)
}

func (r *Refresher) write(ctx context.Context, stocks []domain.Stock) (int, error) {
	before := len(stocks)
	stocks = FilterBoards(stocks, r.exclude)
	if len(stocks) == 0 {
		r.log.Warn("universe refresh produced no codes")
		return 0, nil
	}

	n, err := r.store.UpsertStocks(ctx, stocks)
	if err != nil {
		return 0, fmt.Errorf("writing universe: %w", err)
	}
	r.log.Info("universe refreshed",
		"codes", n,
		"filtered", before-len(stocks),
		"excluded_boards", strings.Join(r.exclude, ","),
	)
	return n, nil
}
