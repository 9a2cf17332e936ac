package validate

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"histdata/internal/anomaly"
	"histdata/models"
)

// maxGapFill caps flat candles inserted per gap; anything larger is a
// market closure, not missing data.
const maxGapFill = 500

// Options controls optional cleaning behavior.
type Options struct {
	// FillGaps inserts flat candles (previous close carried forward,
	// zero volume) into detected gaps.
	FillGaps bool
}

// Report summarizes what cleaning did to a series.
type Report struct {
	Input             int               `json:"input"`
	Output            int               `json:"output"`
	DroppedDuplicates int               `json:"dropped_duplicates"`
	DroppedInvalid    int               `json:"dropped_invalid"`
	GapsFound         int               `json:"gaps_found"`
	GapsFilled        int               `json:"gaps_filled"`
	Anomalies         []anomaly.Anomaly `json:"anomalies,omitempty"`
}

// Clean sorts, deduplicates, and validates a candle series, detects gaps
// (optionally filling them), and flags anomalies without dropping them.
// The input slice is not modified.
func Clean(candles []models.Candle, timeframe string, opts Options) ([]models.Candle, *Report, error) {
	step, err := models.TimeframeDuration(timeframe)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", err, timeframe)
	}

	logger := log.With().Str("component", "validator").Logger()

	report := &Report{Input: len(candles)}
	if len(candles) == 0 {
		return nil, report, nil
	}

	working := make([]models.Candle, len(candles))
	copy(working, candles)

	// Oldest first; stable so a later duplicate stays behind its twin.
	sort.SliceStable(working, func(i, j int) bool {
		return working[i].Timestamp.Before(working[j].Timestamp)
	})

	working = dedupe(working, report)
	working = dropInvalid(working, report, logger)
	working = handleGaps(working, step, opts, report, logger)

	report.Anomalies = anomaly.Detect(working)
	report.Output = len(working)

	logger.Debug().
		Int("input", report.Input).
		Int("output", report.Output).
		Int("dropped_duplicates", report.DroppedDuplicates).
		Int("dropped_invalid", report.DroppedInvalid).
		Int("gaps_found", report.GapsFound).
		Int("anomalies", len(report.Anomalies)).
		Msg("Cleaned candle series")

	return working, report, nil
}

// dedupe keeps the last candle seen for each timestamp. Platforms resend
// the forming candle; the latest version is the settled one.
func dedupe(candles []models.Candle, report *Report) []models.Candle {
	out := candles[:0]
	for i, candle := range candles {
		if i+1 < len(candles) && candles[i+1].Timestamp.Equal(candle.Timestamp) {
			report.DroppedDuplicates++
			continue
		}
		out = append(out, candle)
	}
	return out
}

func dropInvalid(candles []models.Candle, report *Report, logger zerolog.Logger) []models.Candle {
	out := candles[:0]
	for _, candle := range candles {
		if err := candle.Validate(); err != nil {
			report.DroppedInvalid++
			logger.Warn().Err(err).Msg("Dropping invalid candle")
			continue
		}
		out = append(out, candle)
	}
	return out
}

func handleGaps(candles []models.Candle, step time.Duration, opts Options, report *Report, logger zerolog.Logger) []models.Candle {
	if len(candles) < 2 {
		return candles
	}

	out := make([]models.Candle, 0, len(candles))
	out = append(out, candles[0])

	for i := 1; i < len(candles); i++ {
		delta := candles[i].Timestamp.Sub(candles[i-1].Timestamp)
		if delta > step+step/2 {
			report.GapsFound++
			missing := int(delta/step) - 1

			if opts.FillGaps && missing <= maxGapFill {
				prev := candles[i-1]
				for k := 1; k <= missing; k++ {
					out = append(out, models.Candle{
						Timestamp: prev.Timestamp.Add(time.Duration(k) * step),
						Open:      prev.Close,
						High:      prev.Close,
						Low:       prev.Close,
						Close:     prev.Close,
						Volume:    0,
					})
					report.GapsFilled++
				}
			} else if opts.FillGaps {
				logger.Warn().
					Time("after", candles[i-1].Timestamp).
					Int("missing", missing).
					Msg("Gap too large to fill, leaving as-is")
			}
		}
		out = append(out, candles[i])
	}

	return out
}
