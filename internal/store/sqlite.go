package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"amarket/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ BarStore = (*SQLiteStore)(nil)
var _ StockStore = (*SQLiteStore)(nil)

// SQLiteStore implements BarStore and StockStore backed by a SQLite database.
// Dates are stored as YYYY-MM-DD text. Bars use a composite (code, date)
// primary key, so concurrent writers for different codes never contend on
// rows.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS stocks (
	code             TEXT PRIMARY KEY,
	ts_code          TEXT UNIQUE NOT NULL,
	name             TEXT NOT NULL,
	area             TEXT,
	industry         TEXT,
	market           TEXT,
	exchange         TEXT,
	list_status      TEXT,
	list_date        TEXT,
	last_update_date TEXT
);

CREATE TABLE IF NOT EXISTS bars (
	code      TEXT NOT NULL,
	date      TEXT NOT NULL,
	open      REAL,
	high      REAL,
	low       REAL,
	close     REAL,
	pre_close REAL,
	change    REAL,
	volume    INTEGER,
	amount    REAL,
	PRIMARY KEY (code, date)
);

CREATE INDEX IF NOT EXISTS ix_bars_date ON bars(date);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", dbPath, err)
	}
	// SQLite allows one writer at a time; serialize through a single
	// connection so concurrent workers queue instead of erroring with
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// DatesPresent returns the set of stored dates for the code within [start, end].
func (s *SQLiteStore) DatesPresent(ctx context.Context, code string, start, end time.Time) (map[time.Time]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date FROM bars WHERE code = ? AND date >= ? AND date <= ?`,
		code, fmtDate(start), fmtDate(end))
	if err != nil {
		return nil, fmt.Errorf("querying dates for %s: %w", code, err)
	}
	defer rows.Close()

	present := make(map[time.Time]struct{})
	for rows.Next() {
		var ds string
		if err := rows.Scan(&ds); err != nil {
			return nil, err
		}
		d, err := domain.ParseDate(ds)
		if err != nil {
			return nil, err
		}
		present[d] = struct{}{}
	}
	return present, rows.Err()
}

// UpsertBars writes the batch inside one transaction; either every row lands
// or none do.
func (s *SQLiteStore) UpsertBars(ctx context.Context, code string, bars []domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert tx for %s: %w", code, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (code, date, open, high, low, close, pre_close, change, volume, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			pre_close = excluded.pre_close,
			change = excluded.change,
			volume = excluded.volume,
			amount = excluded.amount`)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert for %s: %w", code, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			code, fmtDate(b.Date),
			b.Open, b.High, b.Low, b.Close,
			b.PreClose, b.Change, b.Volume, b.Amount,
		); err != nil {
			return 0, fmt.Errorf("upserting bar %s %s: %w", code, fmtDate(b.Date), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert for %s: %w", code, err)
	}
	return len(bars), nil
}

// ReadBars returns stored bars for the code within [start, end], ascending.
func (s *SQLiteStore) ReadBars(ctx context.Context, code string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, pre_close, change, volume, amount
		FROM bars WHERE code = ? AND date >= ? AND date <= ?
		ORDER BY date`,
		code, fmtDate(start), fmtDate(end))
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", code, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b  domain.Bar
			ds string
		)
		if err := rows.Scan(&ds, &b.Open, &b.High, &b.Low, &b.Close, &b.PreClose, &b.Change, &b.Volume, &b.Amount); err != nil {
			return nil, err
		}
		d, err := domain.ParseDate(ds)
		if err != nil {
			return nil, err
		}
		b.Code = code
		b.Date = d
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ---------------------------------------------------------------------------
// StockStore implementation
// ---------------------------------------------------------------------------

// UpsertStocks refreshes universe rows without touching last_update_date.
func (s *SQLiteStore) UpsertStocks(ctx context.Context, stocks []domain.Stock) (int, error) {
	if len(stocks) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning stock upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stocks (code, ts_code, name, area, industry, market, exchange, list_status, list_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			ts_code = excluded.ts_code,
			name = excluded.name,
			area = excluded.area,
			industry = excluded.industry,
			market = excluded.market,
			exchange = excluded.exchange,
			list_status = excluded.list_status,
			list_date = excluded.list_date`)
	if err != nil {
		return 0, fmt.Errorf("preparing stock upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range stocks {
		var listDate any
		if !st.ListDate.IsZero() {
			listDate = fmtDate(st.ListDate)
		}
		if _, err := stmt.ExecContext(ctx,
			st.Code, st.TSCode, st.Name, st.Area, st.Industry,
			st.Market, st.Exchange, st.ListStatus, listDate,
		); err != nil {
			return 0, fmt.Errorf("upserting stock %s: %w", st.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing stock upsert: %w", err)
	}
	return len(stocks), nil
}

// CodesNeedingUpdate returns listed codes behind the asOf frontier.
func (s *SQLiteStore) CodesNeedingUpdate(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code FROM stocks
		WHERE list_status = 'L'
		  AND (last_update_date IS NULL OR last_update_date < ?)
		ORDER BY code`,
		fmtDate(asOf))
	if err != nil {
		return nil, fmt.Errorf("querying codes needing update: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// AdvanceLastUpdate moves the high-water mark forward, never back. The guard
// lives in the WHERE clause so concurrent advances cannot regress the mark.
func (s *SQLiteStore) AdvanceLastUpdate(ctx context.Context, code string, d time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stocks SET last_update_date = ?
		WHERE code = ? AND (last_update_date IS NULL OR last_update_date < ?)`,
		fmtDate(d), code, fmtDate(d))
	if err != nil {
		return fmt.Errorf("advancing last_update_date for %s: %w", code, err)
	}
	return nil
}

// LastUpdate returns the code's current high-water mark; zero when never
// synced.
func (s *SQLiteStore) LastUpdate(ctx context.Context, code string) (time.Time, error) {
	var ds sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT last_update_date FROM stocks WHERE code = ?`, code).Scan(&ds)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last_update_date for %s: %w", code, err)
	}
	if !ds.Valid {
		return time.Time{}, nil
	}
	return domain.ParseDate(ds.String)
}

// ListCodes returns every code in the universe, sorted.
func (s *SQLiteStore) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM stocks ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func fmtDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}
