package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"histdata/internal/cache"
	"histdata/internal/database"
	"histdata/internal/synthetic"
	"histdata/internal/validate"
	"histdata/models"
)

// Store is the persistence surface the manager needs from the database
// layer. *database.DB satisfies it.
type Store interface {
	SaveCandles(ctx context.Context, symbol, timeframe string, batchID uuid.UUID, candles []models.Candle) error
	GetCandleRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error)
	GetCoverage(ctx context.Context, symbol, timeframe string) (*database.Coverage, error)
}

// Options configures a Manager. Source is required; everything else
// degrades gracefully when absent.
type Options struct {
	Source  models.CandleSource
	Memory  *cache.MemoryCache
	Files   *cache.FileCache
	Store   Store
	FileTTL time.Duration
}

// Manager is the historical data manager: it serves candle requests from
// the memory cache, the file cache, the database, and finally the trading
// platform, cleaning and writing through on every fetch.
type Manager struct {
	source  models.CandleSource
	memory  *cache.MemoryCache
	files   *cache.FileCache
	store   Store
	fileTTL time.Duration
	logger  zerolog.Logger
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Source == nil {
		return nil, errors.New("candle source is required")
	}
	if opts.Memory == nil {
		opts.Memory = cache.NewMemoryCache(5 * time.Minute)
	}
	if opts.FileTTL == 0 {
		opts.FileTTL = time.Hour
	}

	return &Manager{
		source:  opts.Source,
		memory:  opts.Memory,
		files:   opts.Files,
		store:   opts.Store,
		fileTTL: opts.FileTTL,
		logger:  log.With().Str("component", "data_manager").Logger(),
	}, nil
}

// GetCandles resolves a request through the cache tiers, fetching from the
// platform only on a full miss. Fetched data is cleaned and written through
// to every tier; write failures are logged but never fail the read.
func (m *Manager) GetCandles(ctx context.Context, req models.DataRequest) ([]models.Candle, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	logger := m.logger.With().
		Str("request_id", uuid.NewString()).
		Str("symbol", req.Symbol).
		Str("timeframe", req.Timeframe).
		Logger()

	// 1. Memory cache
	if cached, ok := m.memory.Get(req.Symbol, req.Timeframe); ok {
		if out, ok := sliceForRequest(cached, req); ok {
			logger.Debug().Int("count", len(out)).Msg("Memory cache hit")
			return out, nil
		}
	}

	// 2. File cache
	var stale []models.Candle
	if m.files != nil {
		snap, err := m.files.Load(req.Symbol, req.Timeframe)
		if err != nil && !errors.Is(err, models.ErrNoData) {
			logger.Warn().Err(err).Msg("File cache read failed")
		}
		if err == nil {
			if time.Since(snap.SavedAt) <= m.fileTTL {
				if out, ok := sliceForRequest(snap.Candles, req); ok {
					m.memory.Put(req.Symbol, req.Timeframe, snap.Candles)
					logger.Debug().Int("count", len(out)).Msg("File cache hit")
					return out, nil
				}
			} else {
				stale = snap.Candles
			}
		}
	}

	// 3. Database, when the stored coverage satisfies the request
	if m.store != nil {
		coverage, err := m.store.GetCoverage(ctx, req.Symbol, req.Timeframe)
		if err != nil {
			logger.Warn().Err(err).Msg("Coverage query failed")
		}
		if coverage != nil {
			var candles []models.Candle
			var readErr error
			switch {
			case req.Count > 0 && coverage.Count >= int64(req.Count):
				candles, readErr = m.store.GetRecentCandles(ctx, req.Symbol, req.Timeframe, req.Count)
			case req.Count <= 0 && !coverage.First.After(req.From) && !coverage.Last.Before(req.To):
				candles, readErr = m.store.GetCandleRange(ctx, req.Symbol, req.Timeframe, req.From, req.To)
			}
			if readErr != nil && !errors.Is(readErr, models.ErrNoData) {
				logger.Warn().Err(readErr).Msg("Database read failed")
			}
			if readErr == nil && len(candles) > 0 {
				m.memory.Put(req.Symbol, req.Timeframe, candles)
				logger.Debug().Int("count", len(candles)).Msg("Database hit")
				return candles, nil
			}
		}
	}

	// 4. Platform fetch
	fetched, err := m.fetch(ctx, req)
	if err != nil {
		if req.AllowStale && len(stale) > 0 {
			if out, ok := sliceForRequest(stale, req); ok {
				logger.Warn().Err(err).Msg("Platform fetch failed, serving stale cache data")
				return out, nil
			}
		}
		return nil, err
	}

	cleaned, report, err := validate.Clean(fetched, req.Timeframe, validate.Options{FillGaps: req.FillGaps})
	if err != nil {
		return nil, fmt.Errorf("cleaning fetched data: %w", err)
	}
	if report.DroppedInvalid > 0 || len(report.Anomalies) > 0 {
		logger.Info().
			Int("dropped_invalid", report.DroppedInvalid).
			Int("anomalies", len(report.Anomalies)).
			Msg("Cleaning flagged fetched data")
	}
	if len(cleaned) == 0 {
		return nil, models.ErrNoData
	}

	m.writeThrough(ctx, logger, req.Symbol, req.Timeframe, cleaned, false)

	out, ok := sliceForRequest(cleaned, req)
	if !ok {
		// The platform returned less than asked for; hand back what exists.
		out = cleaned
	}
	logger.Debug().Int("count", len(out)).Msg("Served from platform")
	return out, nil
}

// Preload warms the caches for a set of symbols ahead of a backtest run.
func (m *Manager) Preload(ctx context.Context, symbols []string, timeframe string, days int) error {
	var errs []error
	for _, symbol := range symbols {
		req := models.DataRequest{
			Symbol:    symbol,
			Timeframe: timeframe,
			Count:     models.CalculateCandlesForBacktest(timeframe, days),
		}
		if _, err := m.GetCandles(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("preload %s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

// GenerateSynthetic produces a cleaned synthetic series and caches it under
// the given symbol. Callers pick a symbol name that cannot collide with a
// platform instrument.
func (m *Manager) GenerateSynthetic(ctx context.Context, symbol, timeframe string, opts synthetic.Options) ([]models.Candle, *validate.Report, error) {
	candles, err := synthetic.Generate(symbol, timeframe, opts)
	if err != nil {
		return nil, nil, err
	}

	cleaned, report, err := validate.Clean(candles, timeframe, validate.Options{})
	if err != nil {
		return nil, nil, err
	}

	logger := m.logger.With().Str("symbol", symbol).Str("timeframe", timeframe).Logger()
	m.writeThrough(ctx, logger, symbol, timeframe, cleaned, true)

	return cleaned, report, nil
}

// CacheStats exposes the memory cache counters.
func (m *Manager) CacheStats() (hits, misses int64) {
	return m.memory.Stats()
}

// fetch routes a request to the right source call.
func (m *Manager) fetch(ctx context.Context, req models.DataRequest) ([]models.Candle, error) {
	if req.Count > 0 {
		return m.source.GetCandles(ctx, req.Symbol, req.Timeframe, req.Count)
	}
	return m.source.GetCandleRange(ctx, req.Symbol, req.Timeframe, req.From, req.To)
}

// writeThrough populates every tier; failures are logged only.
func (m *Manager) writeThrough(ctx context.Context, logger zerolog.Logger, symbol, timeframe string, candles []models.Candle, isSynthetic bool) {
	m.memory.Put(symbol, timeframe, candles)

	if m.files != nil {
		snap := cache.Snapshot{
			Symbol:    symbol,
			Timeframe: timeframe,
			Synthetic: isSynthetic,
			Candles:   candles,
		}
		if err := m.files.Save(snap); err != nil {
			logger.Warn().Err(err).Msg("File cache write failed")
		}
	}

	if m.store != nil {
		if err := m.store.SaveCandles(ctx, symbol, timeframe, uuid.New(), candles); err != nil {
			logger.Warn().Err(err).Msg("Database write failed")
		}
	}
}

// sliceForRequest cuts a cached series down to a request, reporting whether
// the cached data actually satisfies it.
func sliceForRequest(candles []models.Candle, req models.DataRequest) ([]models.Candle, bool) {
	if len(candles) == 0 {
		return nil, false
	}

	if req.Count > 0 {
		if len(candles) < req.Count {
			return nil, false
		}
		out := make([]models.Candle, req.Count)
		copy(out, candles[len(candles)-req.Count:])
		return out, true
	}

	step, err := models.TimeframeDuration(req.Timeframe)
	if err != nil {
		return nil, false
	}
	// The cached series must span the window, allowing one bar of slack
	// at each edge.
	if candles[0].Timestamp.After(req.From.Add(step)) || candles[len(candles)-1].Timestamp.Before(req.To.Add(-step)) {
		return nil, false
	}

	var out []models.Candle
	for _, candle := range candles {
		if candle.Timestamp.Before(req.From) || candle.Timestamp.After(req.To) {
			continue
		}
		out = append(out, candle)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
