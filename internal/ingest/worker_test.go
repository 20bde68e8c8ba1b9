package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"amarket/internal/domain"
	"amarket/internal/provider"
)

// scriptedFetcher returns one scripted response per call, repeating the last
// entry once the script runs out.
type scriptedFetcher struct {
	mu     sync.Mutex
	script []fetchResponse
	calls  int
}

type fetchResponse struct {
	bars []domain.Bar
	err  error
}

func (f *scriptedFetcher) FetchBars(_ context.Context, _ string, _, _ time.Time) ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	r := f.script[i]
	return r.bars, r.err
}

// memWriter records upserts and keeps a monotonic high-water mark.
type memWriter struct {
	mu         sync.Mutex
	upserts    int
	rows       int
	marks      map[string]time.Time
	upsertErrs int // fail this many upserts before succeeding
	markErr    error
}

func newMemWriter() *memWriter {
	return &memWriter{marks: make(map[string]time.Time)}
}

func (m *memWriter) UpsertBars(_ context.Context, _ string, bars []domain.Bar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErrs > 0 {
		m.upsertErrs--
		return 0, errors.New("disk full")
	}
	m.upserts++
	m.rows += len(bars)
	return len(bars), nil
}

func (m *memWriter) AdvanceLastUpdate(_ context.Context, code string, d time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	if cur, ok := m.marks[code]; !ok || cur.Before(d) {
		m.marks[code] = d
	}
	return nil
}

func (m *memWriter) mark(code string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[code]
}

func singleRangeFinder(dates ...time.Time) *GapFinder {
	return NewGapFinder(&fakeCalendar{dates: dateSet(dates...)}, &fakeDates{}, 365)
}

// newTestWorker builds a worker with zero delays so retries run instantly.
func newTestWorker(f BarFetcher, finder *GapFinder, w BarWriter) *Worker {
	return NewWorker(f, finder, w, 3, 0, 0)
}

func barsFor(code string, dates ...time.Time) []domain.Bar {
	out := make([]domain.Bar, len(dates))
	for i, d := range dates {
		out[i] = domain.Bar{Code: code, Date: d, Close: 10}
	}
	return out
}

func TestSyncCodeBanThenSuccess(t *testing.T) {
	ban := errors.New("too many requests")
	fetcher := &scriptedFetcher{script: []fetchResponse{
		{err: &provider.RateLimitError{Cause: ban}},
		{err: &provider.RateLimitError{Cause: ban}},
		{bars: barsFor("000001", day(2024, 1, 2), day(2024, 1, 3))},
	}}
	writer := newMemWriter()
	w := newTestWorker(fetcher, singleRangeFinder(day(2024, 1, 2), day(2024, 1, 3)), writer)

	res, err := w.SyncCode(context.Background(), "000001", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)
	require.Equal(t, 0, res.FailedRanges)
	require.Equal(t, 2, res.Rows)
	require.Equal(t, 3, fetcher.calls, "two cooldown retries then success")
	require.Equal(t, day(2024, 1, 3), writer.mark("000001"), "mark advanced to batch max date")
}

func TestSyncCodeExhaustsAttempts(t *testing.T) {
	fetcher := &scriptedFetcher{script: []fetchResponse{
		{err: &provider.ValidationError{Code: "000001", Reason: "row dated in the future"}},
	}}
	writer := newMemWriter()
	w := newTestWorker(fetcher, singleRangeFinder(day(2024, 1, 2)), writer)

	res, err := w.SyncCode(context.Background(), "000001", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err, "a failed range is counted, not propagated")
	require.Equal(t, 1, res.FailedRanges)
	require.Equal(t, 3, fetcher.calls, "exactly maxAttempts attempts")
	require.Equal(t, 0, writer.upserts, "nothing persisted")
	require.True(t, writer.mark("000001").IsZero(), "mark not advanced on failure")
}

func TestSyncCodeEmptyFetchIsSuccess(t *testing.T) {
	fetcher := &scriptedFetcher{script: []fetchResponse{{}}}
	writer := newMemWriter()
	w := newTestWorker(fetcher, singleRangeFinder(day(2024, 1, 2)), writer)

	res, err := w.SyncCode(context.Background(), "000001", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)
	require.Equal(t, 0, res.FailedRanges)
	require.Equal(t, 0, res.Rows)
	require.Equal(t, 1, fetcher.calls, "empty result is terminal, no retries")
	require.Equal(t, 0, writer.upserts)
}

func TestSyncCodeRetriesPersistFailure(t *testing.T) {
	fetcher := &scriptedFetcher{script: []fetchResponse{
		{bars: barsFor("000001", day(2024, 1, 2))},
	}}
	writer := newMemWriter()
	writer.upsertErrs = 1 // first upsert fails, second succeeds
	w := newTestWorker(fetcher, singleRangeFinder(day(2024, 1, 2)), writer)

	res, err := w.SyncCode(context.Background(), "000001", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)
	require.Equal(t, 0, res.FailedRanges)
	require.Equal(t, 1, res.Rows)
	require.Equal(t, 2, fetcher.calls, "persist failure consumes an attempt and refetches")
}

func TestSyncCodeFullySynced(t *testing.T) {
	cal := &fakeCalendar{dates: dateSet(day(2024, 1, 2))}
	dates := &fakeDates{present: map[string]map[time.Time]struct{}{
		"000001": dateSet(day(2024, 1, 2)),
	}}
	fetcher := &scriptedFetcher{script: []fetchResponse{{}}}
	w := newTestWorker(fetcher, NewGapFinder(cal, dates, 365), newMemWriter())

	res, err := w.SyncCode(context.Background(), "000001", day(2024, 1, 1), day(2024, 1, 5))
	require.NoError(t, err)
	require.True(t, res.Current())
	require.Equal(t, 0, fetcher.calls, "no fetch for a current code")
}

func TestSyncCodeBadRangeDoesNotBlockOthers(t *testing.T) {
	// Two ranges (split by a weekend). The first exhausts its attempts, the
	// second succeeds.
	finder := singleRangeFinder(day(2024, 1, 4), day(2024, 1, 5), day(2024, 1, 8))
	fetcher := &scriptedFetcher{script: []fetchResponse{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{bars: barsFor("000001", day(2024, 1, 8))},
	}}
	writer := newMemWriter()
	w := newTestWorker(fetcher, finder, writer)

	res, err := w.SyncCode(context.Background(), "000001", day(2024, 1, 1), day(2024, 1, 8))
	require.NoError(t, err)
	require.Equal(t, 2, res.Ranges)
	require.Equal(t, 1, res.FailedRanges)
	require.Equal(t, 1, res.Rows, "second range still filled")
	require.Equal(t, day(2024, 1, 8), writer.mark("000001"))
}

func TestSyncCodeContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &scriptedFetcher{script: []fetchResponse{{err: context.Canceled}}}
	w := newTestWorker(fetcher, singleRangeFinder(day(2024, 1, 2)), newMemWriter())

	_, err := w.SyncCode(ctx, "000001", day(2024, 1, 1), day(2024, 1, 5))
	require.ErrorIs(t, err, context.Canceled)
}

func TestJitterBounds(t *testing.T) {
	base := 600 * time.Second
	for i := 0; i < 1000; i++ {
		d := jitter(base)
		require.GreaterOrEqual(t, d, 540*time.Second)
		require.Less(t, d, 720*time.Second)
	}
}
