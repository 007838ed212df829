package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"holdings-tracker/internal/config"
	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
	"holdings-tracker/internal/resilience"
	"holdings-tracker/internal/scheduler"
	"holdings-tracker/internal/stream"
)

type fakeQuotes struct {
	mu       sync.Mutex
	lastReq  []models.BasketItem
	basketFn func(items []models.BasketItem) (*models.BasketResponse, error)
}

func (f *fakeQuotes) FetchBasket(ctx context.Context, items []models.BasketItem) (*models.BasketResponse, error) {
	f.mu.Lock()
	f.lastReq = items
	f.mu.Unlock()
	if f.basketFn != nil {
		return f.basketFn(items)
	}
	data := make([]models.QuoteResult, len(items))
	for i, it := range items {
		p := 100.0 + float64(i)
		data[i] = models.QuoteResult{Symbol: it.Symbol, Exchange: it.Exchange, Price: &p}
	}
	return &models.BasketResponse{Data: data, Timestamp: time.Unix(1700000000, 0).UTC()}, nil
}

func (f *fakeQuotes) FetchSymbol(ctx context.Context, symbol, exchange string) (*models.BasketResponse, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, apperrors.NewValidationError("symbol", symbol, "symbol is required")
	}
	p := 2600.0
	return &models.BasketResponse{Data: []models.QuoteResult{{Symbol: strings.ToUpper(symbol), Exchange: models.NSE, Price: &p}}}, nil
}

type fakePortfolio struct {
	snap       *models.PortfolioSnapshot
	refreshErr error
}

func (f *fakePortfolio) Latest() (*models.PortfolioSnapshot, bool) { return f.snap, f.snap != nil }

func (f *fakePortfolio) RefreshNow(ctx context.Context) (*models.PortfolioSnapshot, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	f.snap = &models.PortfolioSnapshot{BasketKey: "basket:manual"}
	return f.snap, nil
}

func (f *fakePortfolio) Status() scheduler.Status {
	return scheduler.Status{State: scheduler.StateScheduled, NextRefreshIn: 7}
}

type fakeRuns struct{}

func (fakeRuns) LastRun(ctx context.Context) (*models.RefreshRun, error) {
	return &models.RefreshRun{ID: 3, BasketKey: "basket:abc", Symbols: 4, Failed: 1}, nil
}

func testServer(q *fakeQuotes, p *fakePortfolio, events Stream) *Server {
	deps := Deps{
		Quotes:    q,
		Portfolio: p,
		Runs:      fakeRuns{},
		Events:    events,
		Breakers:  resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig()),
	}
	return New(config.ServerConfig{Addr: ":0"}, deps, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleBasket_Success(t *testing.T) {
	q := &fakeQuotes{}
	s := testServer(q, &fakePortfolio{}, nil)

	rec := do(t, s, http.MethodPost, "/api/stocks", `{"stocks":[{"symbol":"tcs","exchange":"NSE"},{"symbol":"INFY"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp models.BasketResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 || resp.Data[0].Symbol != "TCS" || resp.Data[1].Symbol != "INFY" {
		t.Errorf("data = %+v", resp.Data)
	}
	if q.lastReq[1].Exchange != models.NSE {
		t.Error("blank exchange should default to NSE")
	}
}

func TestHandleBasket_ClientErrors(t *testing.T) {
	s := testServer(&fakeQuotes{}, &fakePortfolio{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"stocks":`},
		{"empty basket", `{"stocks":[]}`},
		{"missing stocks", `{}`},
		{"blank symbol", `{"stocks":[{"symbol":"  "}]}`},
		{"bad exchange", `{"stocks":[{"symbol":"TCS","exchange":"NYSE"}]}`},
		{"duplicate", `{"stocks":[{"symbol":"TCS"},{"symbol":"tcs","exchange":"nse"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/stocks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestHandleBasket_UnexpectedFaultHidesDetail(t *testing.T) {
	q := &fakeQuotes{basketFn: func([]models.BasketItem) (*models.BasketResponse, error) {
		return nil, errors.New("sqlite: disk I/O error at /secret/path")
	}}
	s := testServer(q, &fakePortfolio{}, nil)

	rec := do(t, s, http.MethodPost, "/api/stocks", `{"stocks":[{"symbol":"TCS"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != FetchFailedMessage {
		t.Errorf("error = %q, want %q", body.Error, FetchFailedMessage)
	}
}

func TestHandleSymbol(t *testing.T) {
	s := testServer(&fakeQuotes{}, &fakePortfolio{}, nil)

	rec := do(t, s, http.MethodGet, "/api/stocks?symbol=reliance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"RELIANCE"`) {
		t.Errorf("body = %s", rec.Body)
	}

	if rec := do(t, s, http.MethodGet, "/api/stocks", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing symbol status = %d, want 400", rec.Code)
	}
}

func TestHandlePortfolio_UnavailableThenReady(t *testing.T) {
	p := &fakePortfolio{}
	s := testServer(&fakeQuotes{}, p, nil)

	if rec := do(t, s, http.MethodGet, "/api/portfolio", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before first pass status = %d, want 503", rec.Code)
	}

	rec := do(t, s, http.MethodPost, "/api/portfolio/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/portfolio", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "basket:manual") {
		t.Errorf("portfolio = %d %s", rec.Code, rec.Body)
	}
}

func TestHandleRefresh_Failure(t *testing.T) {
	s := testServer(&fakeQuotes{}, &fakePortfolio{refreshErr: errors.New("boom")}, nil)
	if rec := do(t, s, http.MethodPost, "/api/portfolio/refresh", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleStatusAndHealth(t *testing.T) {
	s := testServer(&fakeQuotes{}, &fakePortfolio{}, nil)

	rec := do(t, s, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Scheduler.NextRefreshIn != 7 || st.LastRun == nil || st.LastRun.ID != 3 || st.MarketStatus == "" {
		t.Errorf("status = %+v", st)
	}

	if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := testServer(&fakeQuotes{}, &fakePortfolio{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/stocks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("preflight should carry Access-Control-Allow-Origin")
	}
}

func TestWebSocket_StreamsSnapshots(t *testing.T) {
	hub := stream.NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	s := testServer(&fakeQuotes{}, &fakePortfolio{}, hub)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the server side to subscribe before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.PublishSnapshot(&models.PortfolioSnapshot{BasketKey: "basket:ws"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev stream.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != stream.EventSnapshot || ev.Data == nil || ev.Data.BasketKey != "basket:ws" {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocket_DisabledWithoutHub(t *testing.T) {
	s := testServer(&fakeQuotes{}, &fakePortfolio{}, nil)
	if rec := do(t, s, http.MethodGet, "/ws", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
