package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		MT5BridgeURL:   "http://127.0.0.1:6542",
		RequestTimeout: 30,
		RequestsPerSec: 5,
		CacheDir:       "data/cache",
		CacheTTL:       300,
		DefaultTimefrm: "1h",
		DBName:         "histdata",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing bridge url", func(c *Config) { c.MT5BridgeURL = "" }, "MT5_BRIDGE_URL"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
		{"zero rate", func(c *Config) { c.RequestsPerSec = 0 }, "REQUESTS_PER_SEC"},
		{"missing cache dir", func(c *Config) { c.CacheDir = "" }, "CACHE_DIR"},
		{"bad timeframe", func(c *Config) { c.DefaultTimefrm = "3min" }, "DEFAULT_TIMEFRAME"},
		{"db host without name", func(c *Config) { c.DBHost = "localhost"; c.DBName = "" }, "DB_NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadWatchlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")

	content := `
watchlist:
  - symbol: EURUSD
    timeframe: 1h
    days: 90
  - symbol: ${WATCH_SYMBOL}
    timeframe: 5min
`
	os.Setenv("WATCH_SYMBOL", "GBPUSD")
	defer os.Unsetenv("WATCH_SYMBOL")

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	wl, err := LoadWatchlist(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wl.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(wl.Entries))
	}
	if wl.Entries[0].Days != 90 {
		t.Errorf("expected 90 days, got %d", wl.Entries[0].Days)
	}
	if wl.Entries[1].Symbol != "GBPUSD" {
		t.Errorf("expected env-expanded symbol GBPUSD, got %q", wl.Entries[1].Symbol)
	}
	if wl.Entries[1].Days != 30 {
		t.Errorf("expected default 30 days, got %d", wl.Entries[1].Days)
	}
}

func TestLoadWatchlist_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"empty", "watchlist: []"},
		{"missing symbol", "watchlist:\n  - timeframe: 1h"},
		{"bad timeframe", "watchlist:\n  - symbol: EURUSD\n    timeframe: 3min"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("writing fixture: %v", err)
			}
			if _, err := LoadWatchlist(path); err == nil {
				t.Error("expected error, got none")
			}
		})
	}
}

func TestLoadWatchlist_MissingFile(t *testing.T) {
	if _, err := LoadWatchlist(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
