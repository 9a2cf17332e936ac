package main

import (
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"histdata/internal/cache"
	"histdata/internal/synthetic"
	"histdata/internal/validate"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	symbol := flag.String("symbol", "SYNTH-EURUSD", "symbol name for the generated series")
	timeframe := flag.String("timeframe", "1h", "candle timeframe")
	count := flag.Int("count", 1000, "number of candles to generate")
	seed := flag.Uint64("seed", 0, "random seed (0 = from clock)")
	regime := flag.String("regime", "", "market regime preset: TRENDING_UP, TRENDING_DOWN, RANGING, VOLATILE")
	price := flag.Float64("price", 100, "starting price")
	volatility := flag.Float64("volatility", 0.002, "per-bar volatility of log returns")
	outDir := flag.String("out", "data/cache", "output directory for the snapshot")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	lvl, _ := zerolog.ParseLevel(*logLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)

	candles, err := synthetic.Generate(*symbol, *timeframe, synthetic.Options{
		Seed:       *seed,
		Count:      *count,
		StartPrice: *price,
		Volatility: *volatility,
		Regime:     synthetic.Regime(*regime),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Generation failed")
	}

	cleaned, report, err := validate.Clean(candles, *timeframe, validate.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Cleaning failed")
	}

	files, err := cache.NewFileCache(*outDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}

	snap := cache.Snapshot{
		Symbol:    *symbol,
		Timeframe: *timeframe,
		Synthetic: true,
		SavedAt:   time.Now().UTC(),
		Candles:   cleaned,
	}
	if err := files.Save(snap); err != nil {
		log.Fatal().Err(err).Msg("Failed to save snapshot")
	}

	log.Info().
		Str("symbol", *symbol).
		Str("timeframe", *timeframe).
		Int("count", len(cleaned)).
		Int("anomalies", len(report.Anomalies)).
		Msg("Synthetic series written")
}
