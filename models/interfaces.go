package models

import (
	"context"
	"time"
)

// CandleSource provides historical candles from a trading platform.
// Implementations: the MT5 bridge client, test fakes.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)
	GetCandleRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]Candle, error)
}
