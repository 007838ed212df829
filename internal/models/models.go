// Package models provides domain models for the holdings tracker.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
)

// DefaultExchange is used when a request leaves the exchange blank.
const DefaultExchange = NSE

// UnassignedSector labels holdings that carry no sector.
const UnassignedSector = "Unassigned"

// ParseExchange normalizes an exchange identifier. An empty value maps to
// DefaultExchange; anything other than NSE or BSE is rejected.
func ParseExchange(s string) (Exchange, bool) {
	switch Exchange(strings.ToUpper(strings.TrimSpace(s))) {
	case "":
		return DefaultExchange, true
	case NSE:
		return NSE, true
	case BSE:
		return BSE, true
	default:
		return "", false
	}
}

// Valid reports whether e is one of the supported exchanges.
func (e Exchange) Valid() bool {
	return e == NSE || e == BSE
}

// Holding is a static portfolio position supplied by configuration.
type Holding struct {
	Particulars   string          `json:"particulars"`
	Symbol        string          `json:"symbol"`
	Exchange      Exchange        `json:"exchange"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Quantity      int64           `json:"quantity"`
	Sector        string          `json:"sector,omitempty"`
}

// SectorLabel returns the grouping label for the holding.
func (h Holding) SectorLabel() string {
	if s := strings.TrimSpace(h.Sector); s != "" {
		return s
	}
	return UnassignedSector
}

// BasketItem is one symbol+exchange pair of a refresh request.
type BasketItem struct {
	Symbol   string   `json:"symbol"`
	Exchange Exchange `json:"exchange"`
}

// Key returns the EXCHANGE:SYMBOL form used for fingerprints and provider lookups.
func (b BasketItem) Key() string {
	return string(b.Exchange) + ":" + b.Symbol
}

// StockRequest is one raw entry of an inbound basket request, before
// normalization.
type StockRequest struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// BasketRequest is the inbound body of a basket refresh.
type BasketRequest struct {
	Stocks []StockRequest `json:"stocks"`
}

// QuoteResult is the outcome of one fetch attempt for one symbol.
// Price is nil when the fetch failed; PERatio and EPS may be nil even on success.
type QuoteResult struct {
	Symbol    string    `json:"symbol"`
	Exchange  Exchange  `json:"exchange"`
	Price     *float64  `json:"cmp"`
	PERatio   *float64  `json:"pe_ratio"`
	EPS       *float64  `json:"eps"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Failed reports whether the result carries an error marker.
func (q QuoteResult) Failed() bool {
	return q.Error != ""
}

// EnrichedHolding is a holding combined with its latest quote.
type EnrichedHolding struct {
	Holding
	Investment       decimal.Decimal `json:"investment"`
	CMP              decimal.Decimal `json:"cmp"`
	PresentValue     decimal.Decimal `json:"present_value"`
	GainLoss         decimal.Decimal `json:"gain_loss"`
	PortfolioPercent float64         `json:"portfolio_percent"`
	PERatio          *float64        `json:"pe_ratio"`
	LatestEarnings   *string         `json:"latest_earnings"`
	PriceFallback    bool            `json:"price_fallback,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// SectorSummary rolls up holdings that share a sector label.
type SectorSummary struct {
	Sector            string            `json:"sector"`
	TotalInvestment   decimal.Decimal   `json:"total_investment"`
	TotalPresentValue decimal.Decimal   `json:"total_present_value"`
	GainLoss          decimal.Decimal   `json:"gain_loss"`
	Holdings          []EnrichedHolding `json:"holdings"`
}

// PortfolioTotals holds portfolio-wide figures.
type PortfolioTotals struct {
	TotalInvestment   decimal.Decimal `json:"total_investment"`
	TotalPresentValue decimal.Decimal `json:"total_present_value"`
	TotalGainLoss     decimal.Decimal `json:"total_gain_loss"`
	GainLossPercent   float64         `json:"gain_loss_percent"`
	HoldingCount      int             `json:"holding_count"`
	FailedCount       int             `json:"failed_count"`
}

// PortfolioSnapshot is the result of one refresh pass, ready for display.
type PortfolioSnapshot struct {
	Holdings    []EnrichedHolding `json:"holdings"`
	Sectors     []SectorSummary   `json:"sectors"`
	Totals      PortfolioTotals   `json:"totals"`
	Cached      bool              `json:"cached"`
	BasketKey   string            `json:"basket_key"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// BasketResponse is the payload returned for a basket request.
type BasketResponse struct {
	Data      []QuoteResult `json:"data"`
	Cached    bool          `json:"cached"`
	Timestamp time.Time     `json:"timestamp"`
}

// RefreshRun records the outcome of one pipeline pass.
type RefreshRun struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	BasketKey  string    `json:"basket_key"`
	Symbols    int       `json:"symbols"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Cached     bool      `json:"cached"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the pass took.
func (r RefreshRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)
