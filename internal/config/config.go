// Package config provides configuration management for the holdings tracker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"holdings-tracker/internal/models"
)

// Supported price providers.
const (
	PriceYahoo        = "yahoo"
	PriceKite         = "kite"
	PriceAlphaVantage = "alphavantage"
	PricePaper        = "paper"
)

// Supported fundamentals sources.
const (
	FundamentalsScreener     = "screener"
	FundamentalsAlphaVantage = "alphavantage"
	FundamentalsStatic       = "static"
	FundamentalsNone         = "none"
)

// Config holds all application configuration.
type Config struct {
	Refresh      RefreshConfig      `mapstructure:"refresh"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Fundamentals FundamentalsConfig `mapstructure:"fundamentals"`
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	UI           UIConfig           `mapstructure:"ui"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Credentials  Credentials        `mapstructure:"-"` // Loaded separately
	Holdings     []models.Holding   `mapstructure:"-"` // Loaded separately
}

// RefreshConfig controls the refresh pipeline cadence.
type RefreshConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchDelay   time.Duration `mapstructure:"fetch_delay"`
	PassDeadline time.Duration `mapstructure:"pass_deadline"` // 0 disables
}

// ProviderConfig selects and tunes the price source.
type ProviderConfig struct {
	Price             string        `mapstructure:"price"` // yahoo, kite, alphavantage, paper
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CircuitFailures   int           `mapstructure:"circuit_failures"`
	CircuitCooldown   time.Duration `mapstructure:"circuit_cooldown"`
}

// FundamentalsConfig selects the P/E and EPS source.
type FundamentalsConfig struct {
	Source string                        `mapstructure:"source"` // screener, alphavantage, static, none
	Static map[string]StaticFundamentals `mapstructure:"static"`
}

// StaticFundamentals is one row of the fixed fundamentals table.
type StaticFundamentals struct {
	PE  float64 `mapstructure:"pe"`
	EPS float64 `mapstructure:"eps"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StoreConfig holds the refresh log database location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	TimeFormat   string `mapstructure:"time_format"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite         KiteCredentials         `mapstructure:"kite"`
	AlphaVantage AlphaVantageCredentials `mapstructure:"alphavantage"`
}

// KiteCredentials holds Zerodha Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
	SessionPath string `mapstructure:"session_path"`
}

// AlphaVantageCredentials holds the Alpha Vantage API key.
type AlphaVantageCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/holdings-tracker"
	}
	return filepath.Join(home, ".config", "holdings-tracker")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. If portfolioPath
// is empty, holdings are read from portfolio.toml inside configDir.
func Load(configDir, portfolioPath string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if portfolioPath == "" {
		portfolioPath = filepath.Join(configDir, "portfolio.toml")
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	holdings, err := LoadHoldings(portfolioPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", filepath.Base(portfolioPath), err)
	}
	cfg.Holdings = holdings

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "tracker.db")
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated only with defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	normalizeStatic(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("refresh.interval", "15s")
	v.SetDefault("refresh.cache_ttl", "15s")
	v.SetDefault("refresh.fetch_delay", "2s")
	v.SetDefault("refresh.pass_deadline", "0s")

	v.SetDefault("provider.price", PriceYahoo)
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.requests_per_second", 2.0)
	v.SetDefault("provider.circuit_failures", 5)
	v.SetDefault("provider.circuit_cooldown", "30s")

	v.SetDefault("fundamentals.source", FundamentalsStatic)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.time_format", "15:04:05")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// First run: write the template and read it back.
		if err := createTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return err
	}
	normalizeStatic(cfg)
	return nil
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetDefault("kite.session_path", filepath.Join(configDir, "session.json"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600); err != nil {
			return err
		}
	}

	return v.Unmarshal(creds)
}

// normalizeStatic upper-cases the static fundamentals keys; viper lower-cases
// every map key it reads.
func normalizeStatic(cfg *Config) {
	if len(cfg.Fundamentals.Static) == 0 {
		return
	}
	normalized := make(map[string]StaticFundamentals, len(cfg.Fundamentals.Static))
	for symbol, f := range cfg.Fundamentals.Static {
		normalized[strings.ToUpper(symbol)] = f
	}
	cfg.Fundamentals.Static = normalized
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.Credentials.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("TRACKER_PRICE_PROVIDER"); v != "" {
		cfg.Provider.Price = v
	}
	if v := os.Getenv("TRACKER_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive")
	}
	if c.Refresh.CacheTTL <= 0 {
		return fmt.Errorf("refresh.cache_ttl must be positive")
	}
	if c.Refresh.FetchDelay < 0 {
		return fmt.Errorf("refresh.fetch_delay must be non-negative")
	}
	if c.Refresh.PassDeadline < 0 {
		return fmt.Errorf("refresh.pass_deadline must be non-negative")
	}

	switch c.Provider.Price {
	case PriceYahoo, PricePaper:
	case PriceKite:
		if c.Credentials.Kite.APIKey == "" {
			return fmt.Errorf("provider.price is kite but no Kite api_key is configured")
		}
	case PriceAlphaVantage:
		if c.Credentials.AlphaVantage.APIKey == "" {
			return fmt.Errorf("provider.price is alphavantage but no Alpha Vantage api_key is configured")
		}
	default:
		return fmt.Errorf("invalid provider.price: %s (must be yahoo, kite, alphavantage or paper)", c.Provider.Price)
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	if c.Provider.RequestsPerSecond < 0 {
		return fmt.Errorf("provider.requests_per_second must be non-negative")
	}

	switch c.Fundamentals.Source {
	case FundamentalsScreener, FundamentalsStatic, FundamentalsNone:
	case FundamentalsAlphaVantage:
		if c.Credentials.AlphaVantage.APIKey == "" {
			return fmt.Errorf("fundamentals.source is alphavantage but no Alpha Vantage api_key is configured")
		}
	default:
		return fmt.Errorf("invalid fundamentals.source: %s (must be screener, alphavantage, static or none)", c.Fundamentals.Source)
	}

	return ValidateHoldings(c.Holdings)
}

// Basket returns the ordered basket for the configured holdings.
func (c *Config) Basket() []models.BasketItem {
	items := make([]models.BasketItem, len(c.Holdings))
	for i, h := range c.Holdings {
		items[i] = models.BasketItem{Symbol: h.Symbol, Exchange: h.Exchange}
	}
	return items
}
