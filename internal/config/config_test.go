package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad_FirstRunCreatesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, name := range []string{"config.toml", "credentials.toml", "portfolio.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be created: %v", name, err)
		}
	}

	if cfg.Refresh.Interval != 15*time.Second {
		t.Errorf("Refresh.Interval = %v, want 15s", cfg.Refresh.Interval)
	}
	if cfg.Refresh.FetchDelay != 2*time.Second {
		t.Errorf("Refresh.FetchDelay = %v, want 2s", cfg.Refresh.FetchDelay)
	}
	if cfg.Provider.Price != PriceYahoo {
		t.Errorf("Provider.Price = %q, want %q", cfg.Provider.Price, PriceYahoo)
	}
	if len(cfg.Holdings) != 4 {
		t.Fatalf("len(Holdings) = %d, want 4", len(cfg.Holdings))
	}
	if got, ok := cfg.Fundamentals.Static["RELIANCE"]; !ok || got.PE != 28.5 {
		t.Errorf("Static[RELIANCE] = %+v, %v", got, ok)
	}
	if cfg.Store.Path != filepath.Join(dir, "tracker.db") {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
}

func TestLoad_ReadsOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.toml", `
[refresh]
interval = "30s"
cache_ttl = "20s"
fetch_delay = "0s"

[provider]
price = "paper"

[fundamentals]
source = "none"
`)
	writeFile(t, dir, "credentials.toml", "")
	portfolio := writeFile(t, dir, "mine.toml", `
[[holdings]]
particulars = "State Bank of India"
symbol = "sbin"
purchase_price = 600.5
quantity = 3
`)

	t.Setenv("TRACKER_LISTEN_ADDR", "127.0.0.1:9999")

	cfg, err := Load(dir, portfolio)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Refresh.Interval != 30*time.Second || cfg.Refresh.CacheTTL != 20*time.Second {
		t.Errorf("Refresh = %+v", cfg.Refresh)
	}
	if cfg.Refresh.FetchDelay != 0 {
		t.Errorf("FetchDelay = %v, want 0", cfg.Refresh.FetchDelay)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Server.Addr = %q, want env override", cfg.Server.Addr)
	}

	if len(cfg.Holdings) != 1 {
		t.Fatalf("len(Holdings) = %d, want 1", len(cfg.Holdings))
	}
	h := cfg.Holdings[0]
	if h.Symbol != "SBIN" || h.Exchange != models.NSE {
		t.Errorf("holding = %s/%s, want SBIN/NSE", h.Symbol, h.Exchange)
	}
	if !h.PurchasePrice.Equal(decimal.RequireFromString("600.5")) {
		t.Errorf("PurchasePrice = %s", h.PurchasePrice)
	}
	if h.SectorLabel() != models.UnassignedSector {
		t.Errorf("SectorLabel() = %q", h.SectorLabel())
	}

	basket := cfg.Basket()
	if len(basket) != 1 || basket[0].Key() != "NSE:SBIN" {
		t.Errorf("Basket() = %+v", basket)
	}
}

func TestLoadHoldings_RejectsUnknownExchange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "portfolio.toml", `
[[holdings]]
symbol = "TCS"
exchange = "NYSE"
purchase_price = 10
quantity = 1
`)

	_, err := LoadHoldings(path)
	if !apperrors.Is(err, apperrors.ErrInvalidExchange) {
		t.Fatalf("LoadHoldings() error = %v, want ErrInvalidExchange", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Holdings = []models.Holding{{
			Symbol:        "TCS",
			Exchange:      models.NSE,
			PurchasePrice: decimal.NewFromInt(3000),
			Quantity:      1,
		}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero interval", func(c *Config) { c.Refresh.Interval = 0 }, true},
		{"negative delay", func(c *Config) { c.Refresh.FetchDelay = -time.Second }, true},
		{"unknown provider", func(c *Config) { c.Provider.Price = "bloomberg" }, true},
		{"kite without key", func(c *Config) { c.Provider.Price = PriceKite }, true},
		{"kite with key", func(c *Config) {
			c.Provider.Price = PriceKite
			c.Credentials.Kite.APIKey = "k"
		}, false},
		{"alphavantage fundamentals without key", func(c *Config) { c.Fundamentals.Source = FundamentalsAlphaVantage }, true},
		{"unknown fundamentals", func(c *Config) { c.Fundamentals.Source = "tips" }, true},
		{"zero quantity", func(c *Config) { c.Holdings[0].Quantity = 0 }, true},
		{"zero purchase price", func(c *Config) { c.Holdings[0].PurchasePrice = decimal.Zero }, true},
		{"duplicate holding", func(c *Config) { c.Holdings = append(c.Holdings, c.Holdings[0]) }, true},
		{"same symbol other exchange", func(c *Config) {
			dup := c.Holdings[0]
			dup.Exchange = models.BSE
			c.Holdings = append(c.Holdings, dup)
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
