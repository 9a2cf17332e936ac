package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoData is returned when a source or store has no candles for a request.
	ErrNoData = errors.New("no candle data available")

	// ErrUnsupportedTimeframe is returned for timeframes the platform doesn't serve.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
)

// Candle represents a single price candle
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume,omitempty"`
}

// Validate checks the OHLC invariants of a single candle.
func (c Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("candle has zero timestamp")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("non-positive price in candle at %s", c.Timestamp.Format(time.RFC3339))
	}
	if c.Volume < 0 {
		return fmt.Errorf("negative volume in candle at %s", c.Timestamp.Format(time.RFC3339))
	}
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("high below body in candle at %s", c.Timestamp.Format(time.RFC3339))
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("low above body in candle at %s", c.Timestamp.Format(time.RFC3339))
	}
	if c.Low > c.High {
		return fmt.Errorf("low above high in candle at %s", c.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// MT5Response represents the candle payload returned by the MT5 bridge
type MT5Response struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		Timeframe string `json:"timeframe"`
	} `json:"meta"`
	Values []struct {
		Datetime string  `json:"datetime"`
		Open     float64 `json:"open,string"`
		High     float64 `json:"high,string"`
		Low      float64 `json:"low,string"`
		Close    float64 `json:"close,string"`
		Volume   int64   `json:"volume,string,omitempty"`
	} `json:"values"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// DataRequest describes one historical data lookup handled by the manager.
// Either Count or the From/To window must be set; Count wins when both are.
type DataRequest struct {
	Symbol    string
	Timeframe string
	Count     int
	From      time.Time
	To        time.Time

	// AllowStale permits serving expired cache entries when the platform
	// fetch fails.
	AllowStale bool

	// FillGaps requests flat-candle gap filling during cleaning.
	FillGaps bool
}

// Validate checks that the request is well-formed.
func (r DataRequest) Validate() error {
	if r.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !IsValidTimeframe(r.Timeframe) {
		return fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, r.Timeframe)
	}
	if r.Count <= 0 && (r.From.IsZero() || r.To.IsZero()) {
		return errors.New("either count or a from/to window is required")
	}
	if r.Count <= 0 && !r.To.After(r.From) {
		return errors.New("request window must end after it starts")
	}
	return nil
}
