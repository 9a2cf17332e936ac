package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"histdata/models"
)

// Snapshot is the on-disk form of a cached candle series.
type Snapshot struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Synthetic bool            `json:"synthetic,omitempty"`
	SavedAt   time.Time       `json:"saved_at"`
	Candles   []models.Candle `json:"candles"`
}

// FileCache persists candle series as JSON snapshot files, one file per
// symbol/timeframe pair.
type FileCache struct {
	dir    string
	logger zerolog.Logger
}

// NewFileCache creates the cache directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileCache{
		dir:    dir,
		logger: log.With().Str("component", "file_cache").Logger(),
	}, nil
}

// Save writes a snapshot atomically (temp file + rename).
func (c *FileCache) Save(snap Snapshot) error {
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	path := c.path(snap.Symbol, snap.Timeframe)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming snapshot: %w", err)
	}

	c.logger.Debug().
		Str("file", path).
		Int("count", len(snap.Candles)).
		Msg("Saved snapshot")
	return nil
}

// Load reads the snapshot for a symbol/timeframe pair.
// Returns models.ErrNoData when no snapshot exists.
func (c *FileCache) Load(symbol, timeframe string) (*Snapshot, error) {
	path := c.path(symbol, timeframe)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.ErrNoData
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}

	return &snap, nil
}

// Remove deletes the snapshot for a symbol/timeframe pair, if present.
func (c *FileCache) Remove(symbol, timeframe string) error {
	err := os.Remove(c.path(symbol, timeframe))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (c *FileCache) path(symbol, timeframe string) string {
	// Symbols like "EUR/USD" must not produce nested paths.
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(symbol)
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.json", name, timeframe))
}
