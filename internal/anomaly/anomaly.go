package anomaly

import (
	"fmt"
	"math"
	"time"

	"histdata/models"
)

// Kind classifies a detected anomaly.
type Kind string

const (
	KindPriceSpike  Kind = "PRICE_SPIKE"
	KindVolumeSpike Kind = "VOLUME_SPIKE"
	KindGap         Kind = "GAP"
)

// Anomaly flags one suspicious candle in a series.
type Anomaly struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Score     float64   `json:"score"` // 0-1
	Details   string    `json:"details,omitempty"`
}

// minLookback is the number of candles needed before scoring starts;
// shorter series have no usable volatility baseline.
const minLookback = 20

// Detect scans a candle series for price spikes, volume spikes, and price
// gaps, scored against the recent ATR. Candles are expected oldest-first.
func Detect(candles []models.Candle) []Anomaly {
	if len(candles) < minLookback {
		return nil
	}

	var found []Anomaly

	for i := minLookback; i < len(candles); i++ {
		current := candles[i]
		prev := candles[i-1]

		atr10 := calculateATR(candles[:i], 10)
		if atr10 == 0 {
			continue
		}

		// 1. Price spikes
		priceChange := math.Abs(current.Close - prev.Close)
		normalizedPriceChange := priceChange / atr10
		if normalizedPriceChange > 3.0 {
			found = append(found, Anomaly{
				Index:     i,
				Timestamp: current.Timestamp,
				Kind:      KindPriceSpike,
				Score:     math.Min(normalizedPriceChange/6.0, 1.0),
				Details:   fmt.Sprintf("Price moved %.1f times the normal range", normalizedPriceChange),
			})
		}

		// 2. Volume spikes (if volume data is available)
		if current.Volume > 0 && i >= 11 {
			var totalVolume int64
			for j := i - 10; j < i; j++ {
				totalVolume += candles[j].Volume
			}
			avgVolume := float64(totalVolume) / 10.0

			if avgVolume > 0 {
				volumeRatio := float64(current.Volume) / avgVolume
				if volumeRatio > 3.0 {
					found = append(found, Anomaly{
						Index:     i,
						Timestamp: current.Timestamp,
						Kind:      KindVolumeSpike,
						Score:     math.Min(volumeRatio/5.0, 1.0),
						Details:   fmt.Sprintf("Volume %.1f times the average", volumeRatio),
					})
				}
			}
		}

		// 3. Price gaps against the previous close
		gapSize := 0.0
		if current.Low > prev.Close {
			gapSize = current.Low - prev.Close
		} else if current.High < prev.Close {
			gapSize = prev.Close - current.High
		}

		normalizedGapSize := gapSize / atr10
		if normalizedGapSize > 1.0 {
			found = append(found, Anomaly{
				Index:     i,
				Timestamp: current.Timestamp,
				Kind:      KindGap,
				Score:     math.Min(normalizedGapSize/3.0, 1.0),
				Details:   fmt.Sprintf("Gap of %.1f times the normal range", normalizedGapSize),
			})
		}
	}

	return found
}

// calculateATR computes the average true range over the last period candles.
func calculateATR(candles []models.Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}
	if period > len(candles)-1 {
		period = len(candles) - 1
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(high-low, math.Max(
			math.Abs(high-prevClose),
			math.Abs(low-prevClose),
		))
		sum += tr
	}

	return sum / float64(period)
}
