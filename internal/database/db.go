package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"histdata/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Coverage describes what the store holds for one symbol/timeframe pair.
type Coverage struct {
	Symbol    string
	Timeframe string
	First     time.Time
	Last      time.Time
	Count     int64
}

// New creates a new database connection
func New(params ConnectionParams) (*DB, error) {
	// Create PostgreSQL connection string
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Check connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume BIGINT NOT NULL DEFAULT 0,
			batch_id UUID,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (symbol, timeframe, ts)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS candles_symbol_tf_ts_idx
		ON candles (symbol, timeframe, ts DESC)
	`)

	return err
}

// SaveCandles upserts a batch of candles under one batch ID.
// Re-fetched candles overwrite earlier rows for the same timestamp.
func (db *DB) SaveCandles(ctx context.Context, symbol, timeframe string, batchID uuid.UUID, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (
			symbol, timeframe, ts, open, high, low, close, volume, batch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timeframe, ts)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			batch_id = EXCLUDED.batch_id
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, candle := range candles {
		_, err := stmt.ExecContext(ctx,
			symbol, timeframe, candle.Timestamp,
			candle.Open, candle.High, candle.Low, candle.Close,
			candle.Volume, batchID,
		)
		if err != nil {
			return fmt.Errorf("upserting candle at %s: %w", candle.Timestamp.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// GetCandleRange returns candles within [from, to], oldest first.
func (db *DB) GetCandleRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts
	`, symbol, timeframe, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(candles) == 0 {
		return nil, models.ErrNoData
	}
	return candles, nil
}

// GetRecentCandles returns the most recent count candles, oldest first.
func (db *DB) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = $1 AND timeframe = $2
			ORDER BY ts DESC
			LIMIT $3
		) recent
		ORDER BY ts
	`, symbol, timeframe, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(candles) == 0 {
		return nil, models.ErrNoData
	}
	return candles, nil
}

// GetCoverage reports the stored range for a symbol/timeframe pair.
// Returns nil when nothing is stored.
func (db *DB) GetCoverage(ctx context.Context, symbol, timeframe string) (*Coverage, error) {
	var first, last sql.NullTime
	var count int64

	err := db.QueryRowContext(ctx, `
		SELECT MIN(ts), MAX(ts), COUNT(*)
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
	`, symbol, timeframe).Scan(&first, &last, &count)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if !first.Valid || count == 0 {
		return nil, nil
	}

	return &Coverage{
		Symbol:    symbol,
		Timeframe: timeframe,
		First:     first.Time,
		Last:      last.Time,
		Count:     count,
	}, nil
}

// DeleteSymbol removes all candles for a symbol across timeframes.
func (db *DB) DeleteSymbol(ctx context.Context, symbol string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM candles WHERE symbol = $1`, symbol)
	return err
}
