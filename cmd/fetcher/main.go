package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"histdata/config"
	"histdata/internal/api/mt5"
	"histdata/internal/cache"
	"histdata/internal/database"
	"histdata/internal/manager"
	"histdata/models"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	watchlistPath := flag.String("watchlist", "watchlist.yaml", "path to the YAML watchlist")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	lvl, _ := zerolog.ParseLevel(cfg.LogLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)

	wl, err := config.LoadWatchlist(*watchlistPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load watchlist")
	}

	client := mt5.NewClient(mt5.ClientOptions{
		BaseURL:         cfg.MT5BridgeURL,
		AuthToken:       cfg.MT5AuthToken,
		RequestTimeout:  time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSec:  cfg.RequestsPerSec,
		MaxRetryTimeout: time.Duration(cfg.MaxRetryTimeout) * time.Second,
	})

	files, err := cache.NewFileCache(cfg.CacheDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create file cache")
	}

	var store manager.Store
	if cfg.DBEnabled() {
		db, err := database.New(database.ConnectionParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		store = db
	}

	mgr, err := manager.New(manager.Options{
		Source:  client,
		Memory:  cache.NewMemoryCache(time.Duration(cfg.CacheTTL) * time.Second),
		Files:   files,
		Store:   store,
		FileTTL: time.Duration(cfg.FileCacheTTL) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create data manager")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failures := 0
	for _, entry := range wl.Entries {
		req := models.DataRequest{
			Symbol:    entry.Symbol,
			Timeframe: entry.Timeframe,
			Count:     models.CalculateCandlesForBacktest(entry.Timeframe, entry.Days),
			FillGaps:  cfg.FillGaps,
		}

		candles, err := mgr.GetCandles(ctx, req)
		if err != nil {
			log.Error().Err(err).
				Str("symbol", entry.Symbol).
				Str("timeframe", entry.Timeframe).
				Msg("Fetch failed")
			failures++
			continue
		}

		log.Info().
			Str("symbol", entry.Symbol).
			Str("timeframe", entry.Timeframe).
			Int("count", len(candles)).
			Time("first", candles[0].Timestamp).
			Time("last", candles[len(candles)-1].Timestamp).
			Msg("Updated historical data")
	}

	hits, misses := mgr.CacheStats()
	log.Info().
		Int("symbols", len(wl.Entries)).
		Int("failures", failures).
		Int64("cache_hits", hits).
		Int64("cache_misses", misses).
		Msg("Fetcher run complete")

	if failures > 0 {
		os.Exit(1)
	}
}
