package synthetic

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat/distuv"

	"histdata/models"
)

// Regime selects a market-condition preset for generated data.
type Regime string

const (
	RegimeTrendingUp   Regime = "TRENDING_UP"
	RegimeTrendingDown Regime = "TRENDING_DOWN"
	RegimeRanging      Regime = "RANGING"
	RegimeVolatile     Regime = "VOLATILE"
)

// Options controls one synthetic series.
type Options struct {
	// Seed makes the series reproducible. Zero seeds from the clock.
	Seed       uint64
	Start      time.Time
	Count      int
	StartPrice float64

	// Drift and Volatility are per-bar log-return parameters. Regime
	// presets adjust them when set.
	Drift      float64
	Volatility float64
	Regime     Regime

	// BaseVolume scales the log-normal volume draws.
	BaseVolume int64
}

// Generate produces a geometric-Brownian-motion candle series for the
// symbol/timeframe pair. Candles honor the OHLC invariants and are spaced
// exactly one timeframe step apart.
func Generate(symbol, timeframe string, opts Options) ([]models.Candle, error) {
	step, err := models.TimeframeDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, timeframe)
	}
	if opts.Count <= 0 {
		return nil, errors.New("count must be positive")
	}

	if opts.StartPrice <= 0 {
		opts.StartPrice = 100
	}
	if opts.Volatility <= 0 {
		opts.Volatility = 0.002
	}
	if opts.BaseVolume <= 0 {
		opts.BaseVolume = 1000
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC().Truncate(step).Add(-time.Duration(opts.Count) * step)
	}

	drift, vol := applyRegime(opts.Regime, opts.Drift, opts.Volatility)

	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	// Log-normal volume with sigma 0.5 keeps draws around BaseVolume
	// without the occasional zero a normal would produce.
	volume := distuv.LogNormal{Mu: 0, Sigma: 0.5, Src: src}

	candles := make([]models.Candle, 0, opts.Count)
	price := opts.StartPrice
	anchor := opts.StartPrice

	for i := 0; i < opts.Count; i++ {
		open := price

		ret := drift - 0.5*vol*vol + vol*normal.Rand()
		if opts.Regime == RegimeRanging {
			// Mean reversion toward the starting price.
			ret -= 0.1 * math.Log(open/anchor)
		}
		close := open * math.Exp(ret)

		// Wicks extend beyond the body by a fraction of the bar volatility.
		upper := math.Max(open, close) * math.Exp(math.Abs(normal.Rand())*vol/2)
		lower := math.Min(open, close) * math.Exp(-math.Abs(normal.Rand())*vol/2)

		candles = append(candles, models.Candle{
			Timestamp: opts.Start.Add(time.Duration(i) * step),
			Open:      open,
			High:      upper,
			Low:       lower,
			Close:     close,
			Volume:    int64(volume.Rand() * float64(opts.BaseVolume)),
		})

		price = close
	}

	log.Debug().
		Str("component", "synthetic").
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("count", len(candles)).
		Uint64("seed", seed).
		Msg("Generated synthetic candles")

	return candles, nil
}

// applyRegime maps a regime preset onto drift and volatility.
func applyRegime(regime Regime, drift, vol float64) (float64, float64) {
	switch regime {
	case RegimeTrendingUp:
		if drift == 0 {
			drift = vol / 4
		}
	case RegimeTrendingDown:
		if drift == 0 {
			drift = -vol / 4
		}
	case RegimeVolatile:
		vol *= 3
	case RegimeRanging:
		drift = 0
	}
	return drift, vol
}
