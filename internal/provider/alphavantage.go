package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
)

// AlphaVantageBaseURL is the Alpha Vantage API host.
const AlphaVantageBaseURL = "https://www.alphavantage.co"

// AlphaVantage serves prices (GLOBAL_QUOTE) and fundamentals (OVERVIEW).
type AlphaVantage struct {
	apiKey string
	http   *httpClient
}

// NewAlphaVantage creates an Alpha Vantage source. The free tier allows
// roughly one request per second.
func NewAlphaVantage(apiKey string, opts ...Option) *AlphaVantage {
	return &AlphaVantage{
		apiKey: apiKey,
		http:   newHTTPClient("alphavantage", buildOptions(AlphaVantageBaseURL, 1, opts)),
	}
}

// Name returns the source name.
func (a *AlphaVantage) Name() string { return "alphavantage" }

// avThrottle captures the fields Alpha Vantage uses to report throttling
// with a 200 status.
type avThrottle struct {
	Note        string `json:"Note"`
	Information string `json:"Information"`
	ErrorMsg    string `json:"Error Message"`
}

func (t avThrottle) err(provider string) error {
	switch {
	case t.ErrorMsg != "":
		return apperrors.NewProviderError(provider, 0, t.ErrorMsg, apperrors.ErrInvalidSymbol)
	case t.Note != "":
		return apperrors.NewProviderError(provider, 0, t.Note, apperrors.ErrRateLimited)
	case t.Information != "":
		return apperrors.NewProviderError(provider, 0, t.Information, apperrors.ErrRateLimited)
	}
	return nil
}

type avGlobalQuote struct {
	avThrottle
	Quote map[string]string `json:"Global Quote"`
}

type avOverview struct {
	avThrottle
	Symbol  string `json:"Symbol"`
	PERatio string `json:"PERatio"`
	EPS     string `json:"EPS"`
}

func (a *AlphaVantage) query(function, ticker string) string {
	params := url.Values{}
	params.Set("function", function)
	params.Set("symbol", ticker)
	params.Set("apikey", a.apiKey)
	return fmt.Sprintf("%s/query?%s", a.http.baseURL, params.Encode())
}

// Price returns the "05. price" field of GLOBAL_QUOTE.
func (a *AlphaVantage) Price(ctx context.Context, symbol string, exchange models.Exchange) (float64, error) {
	ticker := alphaVantageTicker(symbol, exchange)

	var resp avGlobalQuote
	if err := a.http.getJSON(ctx, a.query("GLOBAL_QUOTE", ticker), &resp); err != nil {
		return 0, fmt.Errorf("alphavantage quote %s: %w", ticker, err)
	}
	if err := resp.err(a.Name()); err != nil {
		return 0, err
	}

	raw, ok := resp.Quote["05. price"]
	if !ok {
		return 0, apperrors.NewDataError("price", ticker, "empty global quote", apperrors.ErrQuoteUnavailable)
	}
	price, ok := parseAVNumber(raw)
	if !ok {
		return 0, apperrors.NewDataError("price", ticker, fmt.Sprintf("non-numeric price %q", raw), apperrors.ErrMalformedResponse)
	}
	return price, nil
}

// Fundamentals returns PERatio and EPS from OVERVIEW. Fields reported as
// "None" or "-" come back nil.
func (a *AlphaVantage) Fundamentals(ctx context.Context, symbol string, exchange models.Exchange) (Fundamentals, error) {
	ticker := alphaVantageTicker(symbol, exchange)

	var resp avOverview
	if err := a.http.getJSON(ctx, a.query("OVERVIEW", ticker), &resp); err != nil {
		return Fundamentals{}, fmt.Errorf("alphavantage overview %s: %w", ticker, err)
	}
	if err := resp.err(a.Name()); err != nil {
		return Fundamentals{}, err
	}

	var f Fundamentals
	if v, ok := parseAVNumber(resp.PERatio); ok {
		f.PERatio = floatPtr(v)
	}
	if v, ok := parseAVNumber(resp.EPS); ok {
		f.EPS = floatPtr(v)
	}
	return f, nil
}

func parseAVNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "-", "N/A":
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
