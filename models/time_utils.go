package models

import "time"

// timeframeDurations maps every supported timeframe to its bar duration.
var timeframeDurations = map[string]time.Duration{
	"1min":   time.Minute,
	"5min":   5 * time.Minute,
	"15min":  15 * time.Minute,
	"30min":  30 * time.Minute,
	"45min":  45 * time.Minute,
	"1h":     time.Hour,
	"2h":     2 * time.Hour,
	"4h":     4 * time.Hour,
	"8h":     8 * time.Hour,
	"1day":   24 * time.Hour,
	"1week":  7 * 24 * time.Hour,
	"1month": 30 * 24 * time.Hour,
}

// IsValidTimeframe reports whether the timeframe is supported by the platform.
func IsValidTimeframe(timeframe string) bool {
	_, ok := timeframeDurations[timeframe]
	return ok
}

// TimeframeDuration returns the bar duration for a timeframe.
func TimeframeDuration(timeframe string) (time.Duration, error) {
	d, ok := timeframeDurations[timeframe]
	if !ok {
		return 0, ErrUnsupportedTimeframe
	}
	return d, nil
}

// CalculateCandlesForBacktest estimates how many candles cover the given
// number of days, with a small buffer on top.
func CalculateCandlesForBacktest(timeframe string, days int) int {
	candlesPerDay := 0

	switch timeframe {
	case "1min":
		candlesPerDay = 24 * 60
	case "5min":
		candlesPerDay = 24 * 12
	case "15min":
		candlesPerDay = 24 * 4
	case "30min":
		candlesPerDay = 24 * 2
	case "45min":
		candlesPerDay = 24 * 60 / 45 // Using integer division to get proper count
	case "1h":
		candlesPerDay = 24
	case "2h":
		candlesPerDay = 12
	case "4h":
		candlesPerDay = 6
	case "8h":
		candlesPerDay = 3
	case "1day":
		candlesPerDay = 1
	case "1week":
		// Weekly candles: convert days to a weekly equivalent
		candlesPerDay = 1
		days = days / 7
		if days < 1 {
			days = 1
		}
	case "1month":
		// Monthly candles: convert days to a monthly equivalent
		candlesPerDay = 1
		days = days / 30
		if days < 1 {
			days = 1
		}
	}

	// Calculate the number of candles for the specified days and add a buffer
	return int(float64(candlesPerDay) * float64(days) * 1.1)
}
