package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"amarket/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "amarket.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testBars(code string, dates ...time.Time) []domain.Bar {
	bars := make([]domain.Bar, len(dates))
	for i, d := range dates {
		bars[i] = domain.Bar{
			Code: code, Date: d,
			Open: 10, High: 11, Low: 9.5, Close: 10.5,
			PreClose: 10.1, Change: 0.4, Volume: 123456, Amount: 1300.5,
		}
	}
	return bars
}

func TestUpsertBarsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bars := testBars("000001", date(2024, 1, 2), date(2024, 1, 3))
	n, err := s.UpsertBars(ctx, "000001", bars)
	if err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	if n != 2 {
		t.Errorf("UpsertBars returned %d, want 2", n)
	}

	// Upsert the same batch again with a changed close: same row count,
	// updated values, no duplicates.
	bars[0].Close = 20.0
	if _, err := s.UpsertBars(ctx, "000001", bars); err != nil {
		t.Fatalf("UpsertBars (second): %v", err)
	}

	got, err := s.ReadBars(ctx, "000001", date(2024, 1, 1), date(2024, 1, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d rows, want 2", len(got))
	}
	if got[0].Close != 20.0 {
		t.Errorf("first bar Close = %v, want 20.0 (overwritten in place)", got[0].Close)
	}
	if got[0].PreClose != 10.1 || got[0].Volume != 123456 {
		t.Errorf("bar fields not preserved: %+v", got[0])
	}
}

func TestDatesPresent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertBars(ctx, "000001", testBars("000001", date(2024, 1, 2), date(2024, 1, 4))); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	// Another code's rows must not leak in.
	if _, err := s.UpsertBars(ctx, "600000", testBars("600000", date(2024, 1, 3))); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}

	present, err := s.DatesPresent(ctx, "000001", date(2024, 1, 1), date(2024, 1, 5))
	if err != nil {
		t.Fatalf("DatesPresent: %v", err)
	}
	if len(present) != 2 {
		t.Fatalf("DatesPresent returned %d dates, want 2", len(present))
	}
	if _, ok := present[date(2024, 1, 2)]; !ok {
		t.Error("2024-01-02 missing from present set")
	}
	if _, ok := present[date(2024, 1, 3)]; ok {
		t.Error("2024-01-03 belongs to another code")
	}
}

func seedStock(t *testing.T, s *SQLiteStore, code string) {
	t.Helper()
	_, err := s.UpsertStocks(context.Background(), []domain.Stock{{
		Code: code, TSCode: domain.ToTSCode(code), Name: "test", ListStatus: "L",
	}})
	if err != nil {
		t.Fatalf("UpsertStocks: %v", err)
	}
}

func TestAdvanceLastUpdateMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStock(t, s, "000001")

	if err := s.AdvanceLastUpdate(ctx, "000001", date(2024, 3, 1)); err != nil {
		t.Fatalf("AdvanceLastUpdate: %v", err)
	}
	// An older date must be a no-op.
	if err := s.AdvanceLastUpdate(ctx, "000001", date(2024, 2, 1)); err != nil {
		t.Fatalf("AdvanceLastUpdate (older): %v", err)
	}

	got, err := s.LastUpdate(ctx, "000001")
	if err != nil {
		t.Fatalf("LastUpdate: %v", err)
	}
	if !got.Equal(date(2024, 3, 1)) {
		t.Errorf("LastUpdate = %v, want 2024-03-01 (mark must never regress)", got)
	}

	// A newer date advances.
	if err := s.AdvanceLastUpdate(ctx, "000001", date(2024, 4, 1)); err != nil {
		t.Fatalf("AdvanceLastUpdate (newer): %v", err)
	}
	got, _ = s.LastUpdate(ctx, "000001")
	if !got.Equal(date(2024, 4, 1)) {
		t.Errorf("LastUpdate = %v, want 2024-04-01", got)
	}
}

func TestCodesNeedingUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedStock(t, s, "000001") // never synced
	seedStock(t, s, "600000") // synced to 2024-01-15
	seedStock(t, s, "300750") // current
	if err := s.AdvanceLastUpdate(ctx, "600000", date(2024, 1, 15)); err != nil {
		t.Fatal(err)
	}
	if err := s.AdvanceLastUpdate(ctx, "300750", date(2024, 2, 1)); err != nil {
		t.Fatal(err)
	}

	codes, err := s.CodesNeedingUpdate(ctx, date(2024, 2, 1))
	if err != nil {
		t.Fatalf("CodesNeedingUpdate: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("CodesNeedingUpdate = %v, want [000001 600000]", codes)
	}
	if codes[0] != "000001" || codes[1] != "600000" {
		t.Errorf("CodesNeedingUpdate = %v, want [000001 600000]", codes)
	}
}

func TestUpsertStocksPreservesMark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStock(t, s, "000001")

	if err := s.AdvanceLastUpdate(ctx, "000001", date(2024, 3, 1)); err != nil {
		t.Fatal(err)
	}

	// A universe refresh must not reset the sync frontier.
	seedStock(t, s, "000001")
	got, err := s.LastUpdate(ctx, "000001")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(date(2024, 3, 1)) {
		t.Errorf("LastUpdate after universe refresh = %v, want 2024-03-01", got)
	}
}

func TestListCodes(t *testing.T) {
	s := newTestStore(t)
	seedStock(t, s, "600000")
	seedStock(t, s, "000001")

	codes, err := s.ListCodes(context.Background())
	if err != nil {
		t.Fatalf("ListCodes: %v", err)
	}
	if len(codes) != 2 || codes[0] != "000001" || codes[1] != "600000" {
		t.Errorf("ListCodes = %v", codes)
	}
}
