package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"holdings-tracker/internal/basket"
	"holdings-tracker/internal/cache"
	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
	"holdings-tracker/internal/quote"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// countingWalker returns a fixed price per symbol and counts walks.
type countingWalker struct {
	calls   atomic.Int32
	gate    chan struct{}
	price   float64
	failing map[string]bool
}

func (w *countingWalker) FetchAll(ctx context.Context, items []models.BasketItem) ([]models.QuoteResult, bool, error) {
	w.calls.Add(1)
	if w.gate != nil {
		<-w.gate
	}
	out := make([]models.QuoteResult, len(items))
	for i, it := range items {
		if w.failing[it.Symbol] {
			out[i] = models.QuoteResult{Symbol: it.Symbol, Exchange: it.Exchange, Error: "Failed to fetch: timeout"}
			continue
		}
		p := w.price
		out[i] = models.QuoteResult{Symbol: it.Symbol, Exchange: it.Exchange, Price: &p}
	}
	return out, true, nil
}

type stubQuotes struct{ calls atomic.Int32 }

func (q *stubQuotes) Fetch(ctx context.Context, item models.BasketItem) models.QuoteResult {
	q.calls.Add(1)
	p := 101.5
	return models.QuoteResult{Symbol: item.Symbol, Exchange: item.Exchange, Price: &p, Timestamp: time.Unix(1, 0)}
}

type memRuns struct {
	mu   sync.Mutex
	runs []models.RefreshRun
	err  error
}

func (m *memRuns) RecordRun(ctx context.Context, run *models.RefreshRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return m.err
}

func newTestService(w *countingWalker, runs RunRecorder) (*Service, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	c := cache.New(15*time.Second, 0)
	c.SetClock(clock.now)
	s := NewService(&stubQuotes{}, w, c, runs, zerolog.Nop())
	s.SetClock(clock.now)
	return s, clock
}

var basketTCSInfy = []models.BasketItem{
	{Symbol: "TCS", Exchange: models.NSE},
	{Symbol: "INFY", Exchange: models.NSE},
}

func TestFetchBasket_IdempotentWithinTTL(t *testing.T) {
	w := &countingWalker{price: 3300}
	s, clock := newTestService(w, nil)
	ctx := context.Background()

	first, err := s.FetchBasket(ctx, basketTCSInfy)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first call should not be cached")
	}

	clock.advance(10 * time.Second)
	second, err := s.FetchBasket(ctx, basketTCSInfy)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("second call within TTL should be cached")
	}
	if !second.Timestamp.Equal(first.Timestamp) {
		t.Errorf("cached timestamp = %v, want %v", second.Timestamp, first.Timestamp)
	}
	if w.calls.Load() != 1 {
		t.Errorf("walks = %d, want 1", w.calls.Load())
	}
}

func TestFetchBasket_FreshAfterTTL(t *testing.T) {
	w := &countingWalker{price: 3300}
	s, clock := newTestService(w, nil)
	ctx := context.Background()

	_, _ = s.FetchBasket(ctx, basketTCSInfy)
	clock.advance(15 * time.Second)

	resp, err := s.FetchBasket(ctx, basketTCSInfy)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Cached {
		t.Error("call after TTL should refetch")
	}
	if w.calls.Load() != 2 {
		t.Errorf("walks = %d, want 2", w.calls.Load())
	}
}

func TestFetchBasket_OrderIsPartOfKey(t *testing.T) {
	w := &countingWalker{price: 1}
	s, _ := newTestService(w, nil)
	ctx := context.Background()

	_, _ = s.FetchBasket(ctx, basketTCSInfy)
	resp, _ := s.FetchBasket(ctx, []models.BasketItem{basketTCSInfy[1], basketTCSInfy[0]})
	if resp.Cached {
		t.Error("reordered basket must not hit the cache")
	}
	if resp.Data[0].Symbol != "INFY" {
		t.Errorf("data[0] = %s, want INFY", resp.Data[0].Symbol)
	}
}

func TestFetchBasket_ConcurrentCallersShareOneWalk(t *testing.T) {
	w := &countingWalker{price: 42, gate: make(chan struct{})}
	s, _ := newTestService(w, nil)

	const callers = 8
	var wg sync.WaitGroup
	var cachedCount atomic.Int32
	results := make([]*models.BasketResponse, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := s.FetchBasket(context.Background(), basketTCSInfy)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = resp
			if resp.Cached {
				cachedCount.Add(1)
			}
		}(i)
	}

	// Let the callers pile up behind the first walk.
	for w.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(w.gate)
	wg.Wait()

	if w.calls.Load() != 1 {
		t.Errorf("walks = %d, want 1", w.calls.Load())
	}
	if cachedCount.Load() != callers-1 {
		t.Errorf("cached responses = %d, want %d", cachedCount.Load(), callers-1)
	}
	for i, r := range results {
		if r == nil || len(r.Data) != 2 || *r.Data[0].Price != 42 {
			t.Errorf("caller %d got %+v", i, r)
		}
	}
}

// slowQuotes takes delay per symbol unless ctx ends first.
type slowQuotes struct {
	delay time.Duration
	calls atomic.Int32
}

func (q *slowQuotes) Fetch(ctx context.Context, item models.BasketItem) models.QuoteResult {
	q.calls.Add(1)
	select {
	case <-time.After(q.delay):
	case <-ctx.Done():
		return quote.Failed(item, ctx.Err(), time.Time{})
	}
	p := 100.0
	return models.QuoteResult{Symbol: item.Symbol, Exchange: item.Exchange, Price: &p}
}

func TestFetchBasket_DeadlineWalkIsNotCached(t *testing.T) {
	q := &slowQuotes{delay: 30 * time.Millisecond}
	walker := basket.NewFetcher(q, basket.Config{Deadline: 40 * time.Millisecond}, zerolog.Nop())
	s := NewService(q, walker, cache.New(15*time.Second, 0), nil, zerolog.Nop())
	items := []models.BasketItem{
		{Symbol: "A", Exchange: models.NSE},
		{Symbol: "B", Exchange: models.NSE},
		{Symbol: "C", Exchange: models.NSE},
	}

	first, err := s.FetchBasket(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || !first.Data[2].Failed() {
		t.Fatalf("first = %+v, want a fresh walk cut short before C", first)
	}
	if s.Cache().Len() != 0 {
		t.Error("walk cut short by the deadline must not be cached")
	}

	second, err := s.FetchBasket(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if second.Cached {
		t.Error("second call should walk again instead of serving the partial result")
	}
}

// abortingWalker blocks its first walk until the caller's ctx ends, then
// walks normally.
type abortingWalker struct {
	calls   atomic.Int32
	started chan struct{}
}

func (w *abortingWalker) FetchAll(ctx context.Context, items []models.BasketItem) ([]models.QuoteResult, bool, error) {
	out := make([]models.QuoteResult, len(items))
	if w.calls.Add(1) == 1 {
		close(w.started)
		<-ctx.Done()
		for i, it := range items {
			out[i] = quote.Failed(it, ctx.Err(), time.Time{})
		}
		return out, false, nil
	}
	for i, it := range items {
		p := 7.0
		out[i] = models.QuoteResult{Symbol: it.Symbol, Exchange: it.Exchange, Price: &p}
	}
	return out, true, nil
}

func TestFetchBasket_JoinerSurvivesWalkerCancellation(t *testing.T) {
	w := &abortingWalker{started: make(chan struct{})}
	s := NewService(&stubQuotes{}, w, cache.New(15*time.Second, 0), nil, zerolog.Nop())

	walkerCtx, cancel := context.WithCancel(context.Background())
	walkerDone := make(chan *models.BasketResponse, 1)
	go func() {
		resp, _ := s.FetchBasket(walkerCtx, basketTCSInfy)
		walkerDone <- resp
	}()
	<-w.started

	joinerDone := make(chan *models.BasketResponse, 1)
	go func() {
		resp, err := s.FetchBasket(context.Background(), basketTCSInfy)
		if err != nil {
			t.Errorf("joiner: %v", err)
		}
		joinerDone <- resp
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if resp := <-walkerDone; resp == nil || !resp.Data[0].Failed() {
		t.Errorf("cancelled caller = %+v, want failed results", resp)
	}
	resp := <-joinerDone
	if resp == nil || resp.Cached {
		t.Fatalf("joiner = %+v, want its own fresh walk", resp)
	}
	for _, r := range resp.Data {
		if r.Failed() || r.Price == nil || *r.Price != 7 {
			t.Errorf("joiner result %+v", r)
		}
	}
	if w.calls.Load() != 2 {
		t.Errorf("walks = %d, want 2", w.calls.Load())
	}
	if s.Cache().Len() != 1 {
		t.Error("the joiner's complete walk should be cached")
	}
}

func TestFetchBasket_InvalidBasket(t *testing.T) {
	w := &countingWalker{}
	s, _ := newTestService(w, nil)

	_, err := s.FetchBasket(context.Background(), nil)
	if !apperrors.IsClientError(err) || !errors.Is(err, apperrors.ErrInvalidBasket) {
		t.Errorf("FetchBasket(nil) error = %v", err)
	}
	if w.calls.Load() != 0 {
		t.Error("invalid basket must not reach the walker")
	}
}

func TestParseBasket(t *testing.T) {
	items, err := ParseBasket([]models.StockRequest{{Symbol: " tcs "}, {Symbol: "infy", Exchange: "bse"}})
	if err != nil {
		t.Fatal(err)
	}
	want := []models.BasketItem{{Symbol: "TCS", Exchange: models.NSE}, {Symbol: "INFY", Exchange: models.BSE}}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("items[%d] = %+v, want %+v", i, items[i], want[i])
		}
	}

	bad := [][]models.StockRequest{
		nil,
		{{Symbol: ""}},
		{{Symbol: "TCS", Exchange: "LSE"}},
		{{Symbol: "TCS"}, {Symbol: "tcs", Exchange: "NSE"}},
	}
	for i, reqs := range bad {
		if _, err := ParseBasket(reqs); !apperrors.IsClientError(err) {
			t.Errorf("case %d: error = %v, want client error", i, err)
		}
	}
}

func TestFetchSymbol_BypassesCache(t *testing.T) {
	w := &countingWalker{}
	s, _ := newTestService(w, nil)

	resp, err := s.FetchSymbol(context.Background(), "reliance", "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Cached || len(resp.Data) != 1 || resp.Data[0].Symbol != "RELIANCE" || resp.Data[0].Exchange != models.NSE {
		t.Errorf("FetchSymbol() = %+v", resp)
	}
	if s.Cache().Len() != 0 || w.calls.Load() != 0 {
		t.Error("single-symbol fetch must not use the basket path")
	}

	if _, err := s.FetchSymbol(context.Background(), "", "NSE"); !apperrors.IsClientError(err) {
		t.Errorf("blank symbol error = %v", err)
	}
}

func TestRefresh_AggregatesAndRecords(t *testing.T) {
	w := &countingWalker{price: 2600, failing: map[string]bool{"TCS": true}}
	runs := &memRuns{}
	s, clock := newTestService(w, runs)

	holdings := []models.Holding{
		{Symbol: "RELIANCE", Exchange: models.NSE, PurchasePrice: decimal.NewFromInt(2500), Quantity: 10, Sector: "Energy"},
		{Symbol: "TCS", Exchange: models.NSE, PurchasePrice: decimal.NewFromInt(3200), Quantity: 5, Sector: "Technology"},
	}

	snap, err := s.Refresh(context.Background(), holdings)
	if err != nil {
		t.Fatal(err)
	}
	if snap.BasketKey != cache.Fingerprint(ItemsOf(holdings)) {
		t.Errorf("BasketKey = %q", snap.BasketKey)
	}
	if !snap.Totals.TotalGainLoss.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("TotalGainLoss = %s, want 1000", snap.Totals.TotalGainLoss)
	}
	if snap.GeneratedAt.IsZero() || snap.Cached {
		t.Errorf("GeneratedAt = %v, Cached = %v", snap.GeneratedAt, snap.Cached)
	}

	clock.advance(time.Second)
	again, _ := s.Refresh(context.Background(), holdings)
	if !again.Cached {
		t.Error("second refresh within TTL should be cached")
	}

	if len(runs.runs) != 2 {
		t.Fatalf("recorded runs = %d, want 2", len(runs.runs))
	}
	r := runs.runs[0]
	if r.Symbols != 2 || r.Failed != 1 || r.Succeeded != 1 || r.Cached {
		t.Errorf("first run = %+v", r)
	}
	if !runs.runs[1].Cached {
		t.Error("second run should be marked cached")
	}
}

func TestRefresh_RunLogFailureIsNotFatal(t *testing.T) {
	w := &countingWalker{price: 10}
	s, _ := newTestService(w, &memRuns{err: errors.New("disk full")})

	holdings := []models.Holding{{Symbol: "SBIN", Exchange: models.NSE, PurchasePrice: decimal.NewFromInt(5), Quantity: 1}}
	if _, err := s.Refresh(context.Background(), holdings); err != nil {
		t.Errorf("Refresh() error = %v, want nil", err)
	}
}

func TestRefresh_EmptyHoldingsRecordsError(t *testing.T) {
	runs := &memRuns{}
	s, _ := newTestService(&countingWalker{}, runs)

	if _, err := s.Refresh(context.Background(), nil); err == nil {
		t.Fatal("Refresh(nil) should fail")
	}
	if len(runs.runs) != 1 || runs.runs[0].Error == "" {
		t.Errorf("runs = %+v", runs.runs)
	}
}
