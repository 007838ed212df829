package provider

import (
	"context"

	"holdings-tracker/internal/models"
	"holdings-tracker/internal/resilience"
)

type guardedPrice struct {
	src PriceSource
	cb  *resilience.CircuitBreaker
}

// GuardPrice wraps src so calls fail fast while its circuit is open.
func GuardPrice(src PriceSource, cb *resilience.CircuitBreaker) PriceSource {
	return &guardedPrice{src: src, cb: cb}
}

func (g *guardedPrice) Name() string { return g.src.Name() }

func (g *guardedPrice) Price(ctx context.Context, symbol string, exchange models.Exchange) (float64, error) {
	return resilience.ExecuteWithResult(g.cb, ctx, func(ctx context.Context) (float64, error) {
		return g.src.Price(ctx, symbol, exchange)
	})
}

type guardedFundamentals struct {
	src FundamentalsSource
	cb  *resilience.CircuitBreaker
}

// GuardFundamentals wraps src so calls fail fast while its circuit is open.
func GuardFundamentals(src FundamentalsSource, cb *resilience.CircuitBreaker) FundamentalsSource {
	return &guardedFundamentals{src: src, cb: cb}
}

func (g *guardedFundamentals) Name() string { return g.src.Name() }

func (g *guardedFundamentals) Fundamentals(ctx context.Context, symbol string, exchange models.Exchange) (Fundamentals, error) {
	return resilience.ExecuteWithResult(g.cb, ctx, func(ctx context.Context) (Fundamentals, error) {
		return g.src.Fundamentals(ctx, symbol, exchange)
	})
}
