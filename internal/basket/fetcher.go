// Package basket walks an ordered basket of symbols one at a time, pacing
// requests so the upstream provider's rate budget is respected.
package basket

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/logging"
	"holdings-tracker/internal/models"
	"holdings-tracker/internal/quote"
)

// QuoteFetcher fetches one symbol. *quote.Fetcher satisfies it.
type QuoteFetcher interface {
	Fetch(ctx context.Context, item models.BasketItem) models.QuoteResult
}

// Config controls pacing of a basket walk.
type Config struct {
	// Delay is the pause between the end of one fetch and the start of the next.
	Delay time.Duration
	// Deadline bounds a whole walk. Zero means no bound.
	Deadline time.Duration
}

// Fetcher drives a QuoteFetcher over a basket sequentially.
type Fetcher struct {
	quotes QuoteFetcher
	config Config
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a basket Fetcher.
func NewFetcher(quotes QuoteFetcher, cfg Config, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		quotes: quotes,
		config: cfg,
		logger: logging.WithOperation(logger, "basket"),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// SetClock replaces the time source. Intended for tests.
func (f *Fetcher) SetClock(now func() time.Time) {
	f.now = now
}

// SetSleep replaces the inter-fetch pause. Intended for tests.
func (f *Fetcher) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	f.sleep = sleep
}

// Validate rejects empty baskets, malformed items and repeated
// symbol+exchange pairs.
func Validate(items []models.BasketItem) error {
	if len(items) == 0 {
		return apperrors.NewBasketError("stocks", nil, "basket must contain at least one symbol")
	}
	seen := make(map[string]int, len(items))
	for i, item := range items {
		if item.Symbol == "" {
			return apperrors.NewBasketError(fmt.Sprintf("stocks[%d].symbol", i), item.Symbol, "symbol is required")
		}
		if !item.Exchange.Valid() {
			return apperrors.NewBasketError(fmt.Sprintf("stocks[%d].exchange", i), item.Exchange, "exchange must be NSE or BSE")
		}
		if prev, dup := seen[item.Key()]; dup {
			return apperrors.NewBasketError(fmt.Sprintf("stocks[%d]", i), item.Key(), fmt.Sprintf("duplicates stocks[%d]", prev))
		}
		seen[item.Key()] = i
	}
	return nil
}

// FetchAll fetches every item in order and returns exactly one result per
// item, index-aligned with the input. Individual failures become failed
// results; once the deadline or ctx expires the remaining items are marked
// failed and the partial results are returned with complete set to false.
// The only error is an invalid basket, reported before any fetch starts.
func (f *Fetcher) FetchAll(ctx context.Context, items []models.BasketItem) (results []models.QuoteResult, complete bool, err error) {
	if err := Validate(items); err != nil {
		return nil, false, err
	}

	if f.config.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Deadline)
		defer cancel()
	}

	results = make([]models.QuoteResult, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results = append(results, f.abandon(items[i:], err)...)
			break
		}

		results = append(results, f.fetchOne(ctx, item))

		if i < len(items)-1 && f.config.Delay > 0 {
			_ = f.sleep(ctx, f.config.Delay)
		}
	}

	// An expired ctx may also have cut short the last in-flight fetch.
	return results, ctx.Err() == nil, nil
}

// fetchOne isolates a single fetch so a panic costs one symbol, not the pass.
func (f *Fetcher) fetchOne(ctx context.Context, item models.BasketItem) (result models.QuoteResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("fetch panicked: %v", r)
			l := logging.WithSymbol(f.logger, item.Symbol)
			l.Error().Err(err).Msg("Recovered from panic")
			result = quote.Failed(item, err, f.now())
		}
	}()
	return f.quotes.Fetch(ctx, item)
}

func (f *Fetcher) abandon(items []models.BasketItem, cause error) []models.QuoteResult {
	err := cause
	if cause == context.DeadlineExceeded {
		err = apperrors.ErrDeadlineExceeded
	}
	f.logger.Warn().
		Int("remaining", len(items)).
		Err(err).
		Msg("Basket walk stopped early")

	at := f.now()
	out := make([]models.QuoteResult, len(items))
	for i, item := range items {
		out[i] = quote.Failed(item, err, at)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
