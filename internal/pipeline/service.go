// Package pipeline sequences the cache, the basket walk and the aggregator
// into the operations the transports and the scheduler call.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"holdings-tracker/internal/basket"
	"holdings-tracker/internal/cache"
	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/logging"
	"holdings-tracker/internal/models"
	"holdings-tracker/internal/portfolio"
	"holdings-tracker/internal/quote"
)

// SymbolFetcher fetches one symbol. *quote.Fetcher satisfies it.
type SymbolFetcher interface {
	Fetch(ctx context.Context, item models.BasketItem) models.QuoteResult
}

// BasketFetcher walks a basket. *basket.Fetcher satisfies it.
type BasketFetcher interface {
	FetchAll(ctx context.Context, items []models.BasketItem) (results []models.QuoteResult, complete bool, err error)
}

// RunRecorder persists pass outcomes. *store.SQLiteStore satisfies it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *models.RefreshRun) error
}

// Service is the refresh pipeline: cache lookup, basket walk, cache write
// and aggregation. Concurrent requests for the same basket share one walk.
type Service struct {
	quotes SymbolFetcher
	basket BasketFetcher
	cache  *cache.SnapshotCache
	runs   RunRecorder
	logger zerolog.Logger
	now    func() time.Time

	group singleflight.Group
}

// NewService wires a pipeline. runs may be nil.
func NewService(quotes SymbolFetcher, walker BasketFetcher, snapshots *cache.SnapshotCache, runs RunRecorder, logger zerolog.Logger) *Service {
	return &Service{
		quotes: quotes,
		basket: walker,
		cache:  snapshots,
		runs:   runs,
		logger: logging.WithOperation(logger, "pipeline"),
		now:    time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Cache exposes the snapshot cache for status reporting.
func (s *Service) Cache() *cache.SnapshotCache {
	return s.cache
}

// ParseBasket normalizes a raw request into basket items. Blank exchanges
// default to NSE; symbols are trimmed and upper-cased.
func ParseBasket(reqs []models.StockRequest) ([]models.BasketItem, error) {
	if len(reqs) == 0 {
		return nil, apperrors.NewBasketError("stocks", nil, "basket must contain at least one symbol")
	}
	items := make([]models.BasketItem, len(reqs))
	for i, r := range reqs {
		item, err := quote.ParseItem(r.Symbol, r.Exchange)
		if err != nil {
			return nil, apperrors.NewBasketError(fmt.Sprintf("stocks[%d]", i), r, err.Error())
		}
		items[i] = item
	}
	if err := basket.Validate(items); err != nil {
		return nil, err
	}
	return items, nil
}

// ItemsOf returns the basket for a list of holdings, in holding order.
func ItemsOf(holdings []models.Holding) []models.BasketItem {
	items := make([]models.BasketItem, len(holdings))
	for i, h := range holdings {
		items[i] = models.BasketItem{Symbol: h.Symbol, Exchange: h.Exchange}
	}
	return items
}

// walk is the outcome shared by every caller of one singleflight walk.
type walk struct {
	entry cache.Entry
	// abandoned is set when the walking caller's own context ended the walk.
	abandoned bool
}

// FetchBasket returns results for items, index-aligned with the request.
// A fresh cache entry is served as is with Cached set. Otherwise one caller
// walks the basket and stores the result while concurrent callers for the
// same basket wait and reuse it. Only complete walks are cached.
func (s *Service) FetchBasket(ctx context.Context, items []models.BasketItem) (*models.BasketResponse, error) {
	if err := basket.Validate(items); err != nil {
		return nil, err
	}

	key := cache.Fingerprint(items)
	for {
		if e, ok := s.cache.Get(key); ok {
			return response(e, true), nil
		}

		ran := false
		v, err, _ := s.group.Do(key, func() (interface{}, error) {
			if e, ok := s.cache.Get(key); ok {
				return walk{entry: e}, nil
			}
			ran = true
			results, complete, err := s.basket.FetchAll(ctx, items)
			if err != nil {
				return nil, err
			}
			if !complete {
				l := logging.WithBasket(s.logger, key)
				l.Warn().Msg("Basket walk incomplete, result not cached")
				// Callers retrying after this must start a new walk.
				s.group.Forget(key)
				return walk{
					entry:     cache.Entry{Key: key, Payload: results, CreatedAt: s.now()},
					abandoned: ctx.Err() != nil,
				}, nil
			}
			return walk{entry: s.cache.Set(key, results)}, nil
		})
		if err != nil {
			return nil, err
		}

		w := v.(walk)
		if !ran && w.abandoned && ctx.Err() == nil {
			// The walking caller went away mid-walk; its cancellation is not ours.
			continue
		}
		return response(w.entry, !ran), nil
	}
}

func response(e cache.Entry, cached bool) *models.BasketResponse {
	return &models.BasketResponse{
		Data:      append([]models.QuoteResult(nil), e.Payload...),
		Cached:    cached,
		Timestamp: e.CreatedAt,
	}
}

// FetchSymbol fetches a single symbol without touching the basket cache.
func (s *Service) FetchSymbol(ctx context.Context, symbol, exchange string) (*models.BasketResponse, error) {
	item, err := quote.ParseItem(symbol, exchange)
	if err != nil {
		return nil, err
	}
	r := s.quotes.Fetch(ctx, item)
	return &models.BasketResponse{
		Data:      []models.QuoteResult{r},
		Cached:    false,
		Timestamp: r.Timestamp,
	}, nil
}

// Refresh runs one full pass for the holdings: fetch (through the cache),
// aggregate and record the run.
func (s *Service) Refresh(ctx context.Context, holdings []models.Holding) (*models.PortfolioSnapshot, error) {
	start := s.now()
	items := ItemsOf(holdings)
	key := cache.Fingerprint(items)
	run := &models.RefreshRun{StartedAt: start, BasketKey: key, Symbols: len(items)}

	resp, err := s.FetchBasket(ctx, items)
	if err != nil {
		s.finish(ctx, run, err)
		return nil, err
	}

	snap, err := portfolio.Enrich(holdings, resp.Data)
	if err != nil {
		l := logging.WithBasket(s.logger, key)
		l.Error().Err(err).Msg("Aggregation failed")
		s.finish(ctx, run, err)
		return nil, err
	}
	snap.BasketKey = key
	snap.Cached = resp.Cached
	snap.GeneratedAt = resp.Timestamp

	run.Cached = resp.Cached
	run.Failed = snap.Totals.FailedCount
	run.Succeeded = run.Symbols - run.Failed
	s.finish(ctx, run, nil)

	logging.LogRefresh(s.logger, key, run.Symbols, run.Failed, run.Cached, run.Duration())
	return snap, nil
}

func (s *Service) finish(ctx context.Context, run *models.RefreshRun, err error) {
	run.FinishedAt = s.now()
	if err != nil {
		run.Error = err.Error()
	}
	if s.runs == nil {
		return
	}
	// A run log failure must not fail the pass.
	recordCtx := context.WithoutCancel(ctx)
	if rerr := s.runs.RecordRun(recordCtx, run); rerr != nil {
		l := logging.WithBasket(s.logger, run.BasketKey)
		l.Warn().Err(rerr).Msg("Failed to record refresh run")
	}
}
