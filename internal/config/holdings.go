package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
)

type holdingEntry struct {
	Particulars   string  `mapstructure:"particulars"`
	Symbol        string  `mapstructure:"symbol"`
	Exchange      string  `mapstructure:"exchange"`
	PurchasePrice float64 `mapstructure:"purchase_price"`
	Quantity      int64   `mapstructure:"quantity"`
	Sector        string  `mapstructure:"sector"`
}

type portfolioFile struct {
	Holdings []holdingEntry `mapstructure:"holdings"`
}

// LoadHoldings reads the static holdings list from a TOML file. A missing file
// is replaced with a sample portfolio which is then loaded.
func LoadHoldings(path string) ([]models.Holding, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createTemplate(filepath.Dir(path), filepath.Base(path), portfolioTemplate, 0644); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var file portfolioFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, err
	}

	holdings := make([]models.Holding, 0, len(file.Holdings))
	for i, e := range file.Holdings {
		exchange, ok := models.ParseExchange(e.Exchange)
		if !ok {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidExchange, "holding %d (%s): %q", i+1, e.Symbol, e.Exchange)
		}
		holdings = append(holdings, models.Holding{
			Particulars:   strings.TrimSpace(e.Particulars),
			Symbol:        strings.ToUpper(strings.TrimSpace(e.Symbol)),
			Exchange:      exchange,
			PurchasePrice: decimal.NewFromFloat(e.PurchasePrice),
			Quantity:      e.Quantity,
			Sector:        strings.TrimSpace(e.Sector),
		})
	}

	return holdings, nil
}

// ValidateHoldings checks each holding and rejects duplicate positions.
func ValidateHoldings(holdings []models.Holding) error {
	seen := make(map[string]int, len(holdings))
	for i, h := range holdings {
		if h.Symbol == "" {
			return fmt.Errorf("holding %d: symbol is required", i+1)
		}
		if !h.Exchange.Valid() {
			return fmt.Errorf("holding %d (%s): invalid exchange %q", i+1, h.Symbol, h.Exchange)
		}
		if !h.PurchasePrice.IsPositive() {
			return fmt.Errorf("holding %d (%s): purchase_price must be positive", i+1, h.Symbol)
		}
		if h.Quantity <= 0 {
			return fmt.Errorf("holding %d (%s): quantity must be positive", i+1, h.Symbol)
		}

		key := models.BasketItem{Symbol: h.Symbol, Exchange: h.Exchange}.Key()
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("holding %d duplicates holding %d (%s)", i+1, prev, key)
		}
		seen[key] = i + 1
	}
	return nil
}
