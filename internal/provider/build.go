package provider

import (
	"fmt"

	"holdings-tracker/internal/config"
	"holdings-tracker/internal/models"
	"holdings-tracker/internal/resilience"
)

// Sources bundles the configured price and fundamentals sources.
type Sources struct {
	Price        PriceSource
	Fundamentals FundamentalsSource
}

// FromConfig builds the sources named in cfg. Network sources are guarded by
// a breaker from breakers, keyed by source name.
func FromConfig(cfg *config.Config, breakers *resilience.CircuitBreakerRegistry) (Sources, error) {
	opts := []Option{
		WithTimeout(cfg.Provider.Timeout),
		WithRateLimit(cfg.Provider.RequestsPerSecond),
	}

	var (
		price PriceSource
		alpha *AlphaVantage
	)

	switch cfg.Provider.Price {
	case config.PriceYahoo:
		price = NewYahoo(opts...)
	case config.PriceKite:
		price = NewKite(KiteConfig{
			APIKey:      cfg.Credentials.Kite.APIKey,
			AccessToken: cfg.Credentials.Kite.AccessToken,
			SessionPath: cfg.Credentials.Kite.SessionPath,
			Timeout:     cfg.Provider.Timeout,
		})
	case config.PriceAlphaVantage:
		alpha = NewAlphaVantage(cfg.Credentials.AlphaVantage.APIKey, opts...)
		price = alpha
	case config.PricePaper:
		price = NewPaper(seedPrices(cfg.Holdings))
	default:
		return Sources{}, fmt.Errorf("unknown price provider %q", cfg.Provider.Price)
	}

	var fundamentals FundamentalsSource
	switch cfg.Fundamentals.Source {
	case config.FundamentalsScreener:
		fundamentals = NewScreener(opts...)
	case config.FundamentalsAlphaVantage:
		if alpha == nil {
			alpha = NewAlphaVantage(cfg.Credentials.AlphaVantage.APIKey, opts...)
		}
		fundamentals = alpha
	case config.FundamentalsStatic:
		fundamentals = NewStaticFundamentals(staticTable(cfg.Fundamentals.Static))
	case config.FundamentalsNone, "":
		fundamentals = NoFundamentals{}
	default:
		return Sources{}, fmt.Errorf("unknown fundamentals source %q", cfg.Fundamentals.Source)
	}

	if breakers != nil {
		if cfg.Provider.Price != config.PricePaper {
			price = GuardPrice(price, breakers.Get("price:"+price.Name()))
		}
		switch fundamentals.(type) {
		case *Screener, *AlphaVantage:
			fundamentals = GuardFundamentals(fundamentals, breakers.Get("fundamentals:"+fundamentals.Name()))
		}
	}

	return Sources{Price: price, Fundamentals: fundamentals}, nil
}

func seedPrices(holdings []models.Holding) map[string]float64 {
	seed := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		key := models.BasketItem{Symbol: h.Symbol, Exchange: h.Exchange}.Key()
		seed[key] = h.PurchasePrice.InexactFloat64()
	}
	return seed
}

func staticTable(rows map[string]config.StaticFundamentals) map[string]Fundamentals {
	table := make(map[string]Fundamentals, len(rows))
	for symbol, row := range rows {
		table[symbol] = Fundamentals{
			PERatio: floatPtr(row.PE),
			EPS:     floatPtr(row.EPS),
		}
	}
	return table
}
