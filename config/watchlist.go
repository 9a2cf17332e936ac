package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"histdata/models"
)

// Watchlist lists the symbol/timeframe pairs the fetcher keeps up to date.
type Watchlist struct {
	Entries []WatchEntry `yaml:"watchlist"`
}

// WatchEntry is one instrument to track.
type WatchEntry struct {
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
	Days      int    `yaml:"days"`
}

// LoadWatchlist reads a YAML watchlist file and expands environment variables.
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var wl Watchlist
	if err := yaml.Unmarshal([]byte(expanded), &wl); err != nil {
		return nil, fmt.Errorf("parse watchlist yaml: %w", err)
	}

	if err := wl.Validate(); err != nil {
		return nil, fmt.Errorf("validate watchlist: %w", err)
	}

	return &wl, nil
}

// Validate checks every entry and applies the per-entry defaults.
func (w *Watchlist) Validate() error {
	if len(w.Entries) == 0 {
		return errors.New("watchlist is empty")
	}

	for i := range w.Entries {
		entry := &w.Entries[i]
		if entry.Symbol == "" {
			return fmt.Errorf("watchlist[%d]: symbol is required", i)
		}
		if !models.IsValidTimeframe(entry.Timeframe) {
			return fmt.Errorf("watchlist[%d]: timeframe %q is not supported", i, entry.Timeframe)
		}
		if entry.Days <= 0 {
			entry.Days = 30
		}
	}

	return nil
}
