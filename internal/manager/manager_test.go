package manager

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"histdata/internal/cache"
	"histdata/internal/database"
	"histdata/internal/synthetic"
	"histdata/models"
)

var testStart = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func syntheticOptions(count int) synthetic.Options {
	return synthetic.Options{Seed: 5, Start: testStart, Count: count}
}

// fakeSource serves a fixed series and counts calls.
type fakeSource struct {
	candles []models.Candle
	err     error
	calls   int
}

func (f *fakeSource) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func (f *fakeSource) GetCandleRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Candle
	for _, c := range f.candles {
		if !c.Timestamp.Before(from) && !c.Timestamp.After(to) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, models.ErrNoData
	}
	return out, nil
}

// fakeStore keeps candles in memory and can be told to fail writes.
type fakeStore struct {
	candles     []models.Candle
	saveErr     error
	saves       int
	recentCalls int
	rangeCalls  int
}

func (f *fakeStore) SaveCandles(ctx context.Context, symbol, timeframe string, batchID uuid.UUID, candles []models.Candle) error {
	f.saves++
	return f.saveErr
}

func (f *fakeStore) GetCandleRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	f.rangeCalls++
	var out []models.Candle
	for _, c := range f.candles {
		if !c.Timestamp.Before(from) && !c.Timestamp.After(to) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, models.ErrNoData
	}
	return out, nil
}

func (f *fakeStore) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	f.recentCalls++
	if len(f.candles) == 0 {
		return nil, models.ErrNoData
	}
	if count > len(f.candles) {
		count = len(f.candles)
	}
	out := make([]models.Candle, count)
	copy(out, f.candles[len(f.candles)-count:])
	return out, nil
}

func (f *fakeStore) GetCoverage(ctx context.Context, symbol, timeframe string) (*database.Coverage, error) {
	if len(f.candles) == 0 {
		return nil, nil
	}
	return &database.Coverage{
		Symbol:    symbol,
		Timeframe: timeframe,
		First:     f.candles[0].Timestamp,
		Last:      f.candles[len(f.candles)-1].Timestamp,
		Count:     int64(len(f.candles)),
	}, nil
}

func hourlySeries(count int) []models.Candle {
	candles := make([]models.Candle, 0, count)
	for i := 0; i < count; i++ {
		candles = append(candles, models.Candle{
			Timestamp: testStart.Add(time.Duration(i) * time.Hour),
			Open:      100 + float64(i),
			High:      102 + float64(i),
			Low:       99 + float64(i),
			Close:     101 + float64(i),
			Volume:    1000,
		})
	}
	return candles
}

func TestManager_FetchThenMemoryHit(t *testing.T) {
	source := &fakeSource{candles: hourlySeries(40)}
	mgr, err := New(Options{Source: source})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := models.DataRequest{Symbol: "EURUSD", Timeframe: "1h", Count: 40}

	first, err := mgr.GetCandles(context.Background(), req)
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if len(first) != 40 {
		t.Fatalf("expected 40 candles, got %d", len(first))
	}
	if source.calls != 1 {
		t.Fatalf("expected 1 platform call, got %d", source.calls)
	}

	second, err := mgr.GetCandles(context.Background(), req)
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if len(second) != 40 {
		t.Fatalf("expected 40 candles, got %d", len(second))
	}
	if source.calls != 1 {
		t.Errorf("expected memory cache to absorb the second request, got %d calls", source.calls)
	}

	hits, _ := mgr.CacheStats()
	if hits != 1 {
		t.Errorf("expected 1 cache hit, got %d", hits)
	}
}

func TestManager_CleansFetchedData(t *testing.T) {
	candles := hourlySeries(30)
	// Duplicate of the last bar, as platforms resend the forming candle.
	candles = append(candles, candles[29])

	source := &fakeSource{candles: candles}
	mgr, err := New(Options{Source: source})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 30,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if len(got) != 30 {
		t.Fatalf("expected 30 deduplicated candles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("output not strictly ascending at index %d", i)
		}
	}
}

func TestManager_FileCachePromotion(t *testing.T) {
	dir := t.TempDir()
	files, err := cache.NewFileCache(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Seed the file tier as a previous process run would have.
	if err := files.Save(cache.Snapshot{
		Symbol:    "EURUSD",
		Timeframe: "1h",
		SavedAt:   time.Now().UTC(),
		Candles:   hourlySeries(50),
	}); err != nil {
		t.Fatalf("seeding file cache failed: %v", err)
	}

	source := &fakeSource{err: errors.New("bridge down")}
	mgr, err := New(Options{Source: source, Files: files, FileTTL: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 20,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("expected 20 candles, got %d", len(got))
	}
	if source.calls != 0 {
		t.Errorf("expected no platform calls, got %d", source.calls)
	}

	// The snapshot must have been promoted into memory.
	if _, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 20,
	}); err != nil {
		t.Fatalf("promoted request failed: %v", err)
	}
	hits, _ := mgr.CacheStats()
	if hits != 1 {
		t.Errorf("expected 1 memory hit after promotion, got %d", hits)
	}
}

func TestManager_StaleFallback(t *testing.T) {
	files, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Snapshot old enough to be expired for the 1h TTL.
	if err := files.Save(cache.Snapshot{
		Symbol:    "EURUSD",
		Timeframe: "1h",
		SavedAt:   time.Now().UTC().Add(-2 * time.Hour),
		Candles:   hourlySeries(50),
	}); err != nil {
		t.Fatalf("seeding file cache failed: %v", err)
	}

	source := &fakeSource{err: errors.New("bridge down")}
	mgr, err := New(Options{Source: source, Files: files, FileTTL: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Without AllowStale the fetch error propagates.
	_, err = mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 20,
	})
	if err == nil {
		t.Fatal("expected error without AllowStale")
	}

	// With AllowStale the expired snapshot is served.
	got, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 20, AllowStale: true,
	})
	if err != nil {
		t.Fatalf("stale request failed: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("expected 20 stale candles, got %d", len(got))
	}
}

func TestManager_DatabaseServesCountRequests(t *testing.T) {
	store := &fakeStore{candles: hourlySeries(100)}
	source := &fakeSource{err: errors.New("bridge down")}
	mgr, err := New(Options{Source: source, Store: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 40,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if len(got) != 40 {
		t.Fatalf("expected 40 candles, got %d", len(got))
	}
	if source.calls != 0 {
		t.Errorf("expected the database to absorb the request, got %d platform calls", source.calls)
	}
	if store.recentCalls != 1 {
		t.Errorf("expected 1 GetRecentCandles call, got %d", store.recentCalls)
	}
	if !got[len(got)-1].Timestamp.Equal(store.candles[99].Timestamp) {
		t.Errorf("expected the most recent stored candles, last at %s", got[len(got)-1].Timestamp)
	}

	// The database read must have been promoted into memory.
	if _, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 40,
	}); err != nil {
		t.Fatalf("promoted request failed: %v", err)
	}
	if store.recentCalls != 1 {
		t.Errorf("expected memory to absorb the second request, got %d store reads", store.recentCalls)
	}
}

func TestManager_DatabaseInsufficientCoverageFallsThrough(t *testing.T) {
	store := &fakeStore{candles: hourlySeries(10)}
	source := &fakeSource{candles: hourlySeries(40)}
	mgr, err := New(Options{Source: source, Store: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 40,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if len(got) != 40 {
		t.Fatalf("expected 40 candles, got %d", len(got))
	}
	if source.calls != 1 {
		t.Errorf("expected a platform fetch when the store holds too little, got %d calls", source.calls)
	}
	if store.recentCalls != 0 {
		t.Errorf("expected no store read below coverage, got %d", store.recentCalls)
	}
}

func TestManager_WriteFailuresDoNotFailReads(t *testing.T) {
	dir := t.TempDir()
	files, err := cache.NewFileCache(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Yank the directory out from under the cache so every Save fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("removing cache dir: %v", err)
	}

	store := &fakeStore{saveErr: errors.New("disk full")}
	source := &fakeSource{candles: hourlySeries(40)}
	mgr, err := New(Options{Source: source, Files: files, Store: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 40,
	})
	if err != nil {
		t.Fatalf("read must survive write failures, got: %v", err)
	}
	if len(got) != 40 {
		t.Fatalf("expected 40 candles, got %d", len(got))
	}
	if store.saves != 1 {
		t.Errorf("expected the store write to be attempted, got %d", store.saves)
	}
}

func TestManager_InvalidRequest(t *testing.T) {
	mgr, err := New(Options{Source: &fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		req  models.DataRequest
	}{
		{"missing symbol", models.DataRequest{Timeframe: "1h", Count: 10}},
		{"bad timeframe", models.DataRequest{Symbol: "EURUSD", Timeframe: "3min", Count: 10}},
		{"no count or window", models.DataRequest{Symbol: "EURUSD", Timeframe: "1h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mgr.GetCandles(context.Background(), tt.req); err == nil {
				t.Error("expected error, got none")
			}
		})
	}
}

func TestManager_RangeRequest(t *testing.T) {
	source := &fakeSource{candles: hourlySeries(100)}
	mgr, err := New(Options{Source: source})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	from := testStart.Add(10 * time.Hour)
	to := testStart.Add(30 * time.Hour)

	got, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", From: from, To: to,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	for _, c := range got {
		if c.Timestamp.Before(from) || c.Timestamp.After(to) {
			t.Fatalf("candle outside window: %s", c.Timestamp)
		}
	}
	if len(got) != 21 {
		t.Errorf("expected 21 candles in window, got %d", len(got))
	}
}

func TestManager_GenerateSynthetic(t *testing.T) {
	files, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr, err := New(Options{Source: &fakeSource{}, Files: files})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	candles, report, err := mgr.GenerateSynthetic(context.Background(), "SYNTH-TEST", "1h", syntheticOptions(100))
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	if len(candles) != 100 {
		t.Fatalf("expected 100 candles, got %d", len(candles))
	}
	if report.DroppedInvalid != 0 {
		t.Errorf("synthetic data must pass validation, dropped %d", report.DroppedInvalid)
	}

	// Snapshot lands in the file tier, marked synthetic.
	snap, err := files.Load("SYNTH-TEST", "1h")
	if err != nil {
		t.Fatalf("snapshot not saved: %v", err)
	}
	if !snap.Synthetic {
		t.Error("snapshot not marked synthetic")
	}
}

func TestManager_Preload(t *testing.T) {
	source := &fakeSource{candles: hourlySeries(200)}
	mgr, err := New(Options{Source: source})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mgr.Preload(context.Background(), []string{"EURUSD", "GBPUSD"}, "1h", 5); err != nil {
		t.Fatalf("preload failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expected 2 platform calls, got %d", source.calls)
	}

	// Preloaded data serves from memory.
	if _, err := mgr.GetCandles(context.Background(), models.DataRequest{
		Symbol: "EURUSD", Timeframe: "1h", Count: 100,
	}); err != nil {
		t.Fatalf("post-preload request failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expected preloaded data to serve from cache, got %d calls", source.calls)
	}
}
