package basket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
	"holdings-tracker/internal/quote"
)

// scriptedQuotes records call order and fails the symbols listed in fail.
type scriptedQuotes struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]bool
	panic  map[string]bool
	onCall func(symbol string)
}

func (s *scriptedQuotes) Fetch(_ context.Context, item models.BasketItem) models.QuoteResult {
	s.mu.Lock()
	s.calls = append(s.calls, item.Symbol)
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(item.Symbol)
	}
	if s.panic[item.Symbol] {
		panic("provider exploded")
	}
	if s.fail[item.Symbol] {
		return quote.Failed(item, apperrors.ErrQuoteUnavailable, time.Time{})
	}
	p := 100.0
	return models.QuoteResult{Symbol: item.Symbol, Exchange: item.Exchange, Price: &p}
}

func items(symbols ...string) []models.BasketItem {
	out := make([]models.BasketItem, len(symbols))
	for i, s := range symbols {
		out[i] = models.BasketItem{Symbol: s, Exchange: models.NSE}
	}
	return out
}

type recordedSleep struct {
	mu    sync.Mutex
	count int
	total time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	r.total += d
	return nil
}

func TestFetchAll_SequentialWithDelayBetweenItems(t *testing.T) {
	q := &scriptedQuotes{}
	f := NewFetcher(q, Config{Delay: 2 * time.Second}, zerolog.Nop())
	rec := &recordedSleep{}
	f.SetSleep(rec.sleep)

	results, _, err := f.FetchAll(context.Background(), items("RELIANCE", "TCS", "INFY"))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if strings.Join(q.calls, ",") != "RELIANCE,TCS,INFY" {
		t.Errorf("call order = %v", q.calls)
	}
	// No pause after the final element.
	if rec.count != 2 || rec.total != 4*time.Second {
		t.Errorf("sleeps = %d totalling %v, want 2 totalling 4s", rec.count, rec.total)
	}
}

func TestFetchAll_SingleItemNeverSleeps(t *testing.T) {
	f := NewFetcher(&scriptedQuotes{}, Config{Delay: time.Second}, zerolog.Nop())
	rec := &recordedSleep{}
	f.SetSleep(rec.sleep)

	if _, _, err := f.FetchAll(context.Background(), items("TCS")); err != nil {
		t.Fatal(err)
	}
	if rec.count != 0 {
		t.Errorf("sleeps = %d, want 0", rec.count)
	}
}

func TestFetchAll_FailuresAndPanicsDoNotAbort(t *testing.T) {
	q := &scriptedQuotes{
		fail:  map[string]bool{"TCS": true},
		panic: map[string]bool{"INFY": true},
	}
	f := NewFetcher(q, Config{}, zerolog.Nop())

	results, complete, err := f.FetchAll(context.Background(), items("RELIANCE", "TCS", "INFY", "SBIN"))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if !complete {
		t.Error("symbol failures should not mark the walk incomplete")
	}

	wantFailed := []bool{false, true, true, false}
	for i, r := range results {
		if r.Failed() != wantFailed[i] {
			t.Errorf("results[%d] (%s) failed = %v, want %v", i, r.Symbol, r.Failed(), wantFailed[i])
		}
		if r.Failed() && (r.Price != nil || r.PERatio != nil || r.EPS != nil) {
			t.Errorf("results[%d] failed but carries figures", i)
		}
	}
	if len(q.calls) != 4 {
		t.Errorf("calls = %v, want all four symbols attempted", q.calls)
	}
}

func TestFetchAll_DeadlineMarksRemainingFailed(t *testing.T) {
	q := &scriptedQuotes{}
	f := NewFetcher(q, Config{Delay: time.Hour, Deadline: 30 * time.Millisecond}, zerolog.Nop())

	results, complete, err := f.FetchAll(context.Background(), items("A", "B", "C"))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if complete {
		t.Error("walk cut short by the deadline should not report complete")
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Failed() {
		t.Errorf("first result should have been collected: %+v", results[0])
	}
	for _, r := range results[1:] {
		if r.Error != "Failed to fetch: refresh deadline exceeded" {
			t.Errorf("%s Error = %q", r.Symbol, r.Error)
		}
	}
	if len(q.calls) != 1 {
		t.Errorf("calls = %v, want only the first symbol", q.calls)
	}
}

func TestFetchAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &scriptedQuotes{onCall: func(string) { cancel() }}
	f := NewFetcher(q, Config{}, zerolog.Nop())

	results, complete, err := f.FetchAll(ctx, items("A", "B"))
	if err != nil {
		t.Fatal(err)
	}
	if complete {
		t.Error("cancelled walk should not report complete")
	}
	if results[0].Failed() || !results[1].Failed() {
		t.Errorf("results = %+v", results)
	}
	if results[1].Error != "Failed to fetch: cancelled" {
		t.Errorf("Error = %q", results[1].Error)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		items []models.BasketItem
		ok    bool
	}{
		{"empty", nil, false},
		{"blank symbol", []models.BasketItem{{Symbol: "", Exchange: models.NSE}}, false},
		{"bad exchange", []models.BasketItem{{Symbol: "TCS", Exchange: "LSE"}}, false},
		{"duplicate", items("TCS", "TCS"), false},
		{"same symbol both exchanges", []models.BasketItem{{Symbol: "TCS", Exchange: models.NSE}, {Symbol: "TCS", Exchange: models.BSE}}, true},
		{"valid", items("TCS", "INFY"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.items)
			if tt.ok {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, apperrors.ErrInvalidBasket) || !apperrors.IsClientError(err) {
				t.Errorf("Validate() error = %v, want client ErrInvalidBasket", err)
			}
		})
	}
}

func TestFetchAll_InvalidBasketFetchesNothing(t *testing.T) {
	q := &scriptedQuotes{}
	f := NewFetcher(q, Config{}, zerolog.Nop())

	if _, _, err := f.FetchAll(context.Background(), nil); !errors.Is(err, apperrors.ErrInvalidBasket) {
		t.Fatalf("FetchAll(nil) error = %v", err)
	}
	if len(q.calls) != 0 {
		t.Errorf("calls = %v, want none", q.calls)
	}
}
