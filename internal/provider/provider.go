// Package provider implements price and fundamentals sources for NSE and BSE
// listed symbols. Each source answers for one symbol at a time; batching and
// pacing belong to the callers.
package provider

import (
	"context"
	"strings"

	"holdings-tracker/internal/models"
)

// PriceSource returns the current market price of a symbol.
type PriceSource interface {
	// Name identifies the source in logs and circuit breaker stats.
	Name() string
	// Price returns the latest traded price. A missing or non-numeric price is
	// an error; zero is returned only with a nil error when the upstream
	// genuinely reports zero.
	Price(ctx context.Context, symbol string, exchange models.Exchange) (float64, error)
}

// Fundamentals carries the optional valuation figures of a symbol.
// Either field may be nil when the upstream does not report it.
type Fundamentals struct {
	PERatio *float64
	EPS     *float64
}

// FundamentalsSource returns P/E and EPS for a symbol.
type FundamentalsSource interface {
	Name() string
	Fundamentals(ctx context.Context, symbol string, exchange models.Exchange) (Fundamentals, error)
}

// NoFundamentals always answers with empty fundamentals.
type NoFundamentals struct{}

// Name returns the source name.
func (NoFundamentals) Name() string { return "none" }

// Fundamentals returns empty fundamentals.
func (NoFundamentals) Fundamentals(context.Context, string, models.Exchange) (Fundamentals, error) {
	return Fundamentals{}, nil
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// yahooTicker maps a symbol to Yahoo Finance notation (RELIANCE.NS, RELIANCE.BO).
func yahooTicker(symbol string, exchange models.Exchange) string {
	if exchange == models.BSE {
		return symbol + ".BO"
	}
	return symbol + ".NS"
}

// alphaVantageTicker maps a symbol to Alpha Vantage notation (RELIANCE.NSE, RELIANCE.BSE).
func alphaVantageTicker(symbol string, exchange models.Exchange) string {
	if exchange == models.BSE {
		return symbol + ".BSE"
	}
	return symbol + ".NSE"
}

func floatPtr(v float64) *float64 {
	return &v
}
