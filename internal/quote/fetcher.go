// Package quote fetches price and fundamentals for a single symbol and folds
// every failure into the returned QuoteResult.
package quote

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/logging"
	"holdings-tracker/internal/models"
	"holdings-tracker/internal/provider"
)

// FailedMarker prefixes the Error field of every failed QuoteResult.
const FailedMarker = "Failed to fetch"

// Fetcher combines one price source and one fundamentals source.
type Fetcher struct {
	prices       provider.PriceSource
	fundamentals provider.FundamentalsSource
	logger       zerolog.Logger
	now          func() time.Time
}

// NewFetcher creates a Fetcher. A nil fundamentals source means no fundamentals.
func NewFetcher(prices provider.PriceSource, fundamentals provider.FundamentalsSource, logger zerolog.Logger) *Fetcher {
	if fundamentals == nil {
		fundamentals = provider.NoFundamentals{}
	}
	return &Fetcher{
		prices:       prices,
		fundamentals: fundamentals,
		logger:       logging.WithOperation(logger, "quote"),
		now:          time.Now,
	}
}

// SetClock replaces the timestamp source. Intended for tests.
func (f *Fetcher) SetClock(now func() time.Time) {
	f.now = now
}

// ParseItem validates a requested symbol and exchange. A blank exchange
// defaults to NSE.
func ParseItem(symbol, exchange string) (models.BasketItem, error) {
	sym := provider.NormalizeSymbol(symbol)
	if sym == "" {
		return models.BasketItem{}, &apperrors.ValidationError{Field: "symbol", Value: symbol, Message: "symbol is required", Err: apperrors.ErrInvalidSymbol}
	}
	if strings.ContainsAny(sym, " /:?#") {
		return models.BasketItem{}, &apperrors.ValidationError{Field: "symbol", Value: symbol, Message: "symbol contains invalid characters", Err: apperrors.ErrInvalidSymbol}
	}
	ex, ok := models.ParseExchange(exchange)
	if !ok {
		return models.BasketItem{}, &apperrors.ValidationError{Field: "exchange", Value: exchange, Message: "exchange must be NSE or BSE", Err: apperrors.ErrInvalidExchange}
	}
	return models.BasketItem{Symbol: sym, Exchange: ex}, nil
}

// Fetch retrieves price and fundamentals concurrently. It never returns a
// Go error: a failed price lookup yields a result with nil figures and an
// Error marker. A failed fundamentals lookup only leaves P/E and EPS nil.
func (f *Fetcher) Fetch(ctx context.Context, item models.BasketItem) models.QuoteResult {
	start := f.now()
	result := models.QuoteResult{
		Symbol:   item.Symbol,
		Exchange: item.Exchange,
	}

	if item.Symbol == "" || !item.Exchange.Valid() {
		err := apperrors.NewValidationError("item", item.Key(), "invalid basket item")
		logging.LogFetch(f.logger, item.Symbol, string(item.Exchange), 0, err)
		return Failed(item, err, start)
	}

	var (
		price float64
		funds provider.Fundamentals
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer recoverInto(&err, "price")
		price, err = f.prices.Price(gctx, item.Symbol, item.Exchange)
		if err != nil {
			return apperrors.NewDataError("price", item.Key(), f.prices.Name(), err)
		}
		if !validPrice(price) {
			return apperrors.NewDataError("price", item.Key(), fmt.Sprintf("%s returned price %v", f.prices.Name(), price), apperrors.ErrMalformedResponse)
		}
		return nil
	})

	g.Go(func() (err error) {
		defer recoverInto(&err, "fundamentals")
		fd, ferr := f.fundamentals.Fundamentals(gctx, item.Symbol, item.Exchange)
		if ferr != nil {
			// Fundamentals are optional.
			l := logging.WithSymbol(f.logger, item.Symbol)
			l.Debug().
				Str("source", f.fundamentals.Name()).
				Err(ferr).
				Msg("Fundamentals unavailable")
			return nil
		}
		funds = fd
		return nil
	})

	err := g.Wait()
	result.Timestamp = f.now()
	logging.LogFetch(f.logger, item.Symbol, string(item.Exchange), result.Timestamp.Sub(start), err)

	if err != nil {
		return Failed(item, err, result.Timestamp)
	}

	result.Price = &price
	result.PERatio = finite(funds.PERatio)
	result.EPS = finite(funds.EPS)
	return result
}

// validPrice rejects zero, negative and non-finite quotes.
func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

// finite drops NaN and infinite figures, which have no JSON encoding.
func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Failed builds the result reported for a symbol whose fetch did not succeed.
func Failed(item models.BasketItem, err error, at time.Time) models.QuoteResult {
	return models.QuoteResult{
		Symbol:    item.Symbol,
		Exchange:  item.Exchange,
		Timestamp: at,
		Error:     FailedMarker + ": " + Reason(err),
	}
}

// Reason maps an error to the short cause shown to clients. Upstream
// messages are never exposed.
func Reason(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case apperrors.Is(err, apperrors.ErrDeadlineExceeded):
		return "refresh deadline exceeded"
	case apperrors.Is(err, apperrors.ErrCircuitOpen):
		return "provider temporarily disabled"
	case apperrors.Is(err, apperrors.ErrRateLimited):
		return "rate limited"
	case apperrors.Is(err, apperrors.ErrTimeout), apperrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case apperrors.Is(err, context.Canceled):
		return "cancelled"
	case apperrors.Is(err, apperrors.ErrNotAuthenticated):
		return "provider not authenticated"
	case apperrors.Is(err, apperrors.ErrMalformedResponse):
		return "malformed response"
	case apperrors.Is(err, apperrors.ErrInvalidSymbol), apperrors.Is(err, apperrors.ErrInputValidation):
		return "invalid symbol"
	case apperrors.Is(err, apperrors.ErrQuoteUnavailable):
		return "quote unavailable"
	default:
		return "provider error"
	}
}

func recoverInto(err *error, what string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s lookup panicked: %v", what, r)
	}
}
