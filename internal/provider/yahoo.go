package provider

import (
	"context"
	"fmt"
	"net/url"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
)

// YahooBaseURL is the Yahoo Finance query host.
const YahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo reads prices from the Yahoo Finance chart API.
type Yahoo struct {
	http *httpClient
}

// NewYahoo creates a Yahoo Finance price source.
func NewYahoo(opts ...Option) *Yahoo {
	return &Yahoo{http: newHTTPClient("yahoo", buildOptions(YahooBaseURL, 5, opts))}
}

// Name returns the source name.
func (y *Yahoo) Name() string { return "yahoo" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"previousClose"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Price returns the regular market price, falling back to the previous close
// outside trading hours.
func (y *Yahoo) Price(ctx context.Context, symbol string, exchange models.Exchange) (float64, error) {
	ticker := yahooTicker(symbol, exchange)
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", y.http.baseURL, url.PathEscape(ticker))

	var resp yahooChartResponse
	if err := y.http.getJSON(ctx, endpoint, &resp); err != nil {
		return 0, fmt.Errorf("yahoo chart %s: %w", ticker, err)
	}

	if resp.Chart.Error != nil {
		return 0, apperrors.NewProviderError(y.Name(), 0, resp.Chart.Error.Description, apperrors.ErrQuoteUnavailable)
	}
	if len(resp.Chart.Result) == 0 {
		return 0, apperrors.NewDataError("price", ticker, "no chart result", apperrors.ErrQuoteUnavailable)
	}

	meta := resp.Chart.Result[0].Meta
	for _, p := range []float64{meta.RegularMarketPrice, meta.PreviousClose, meta.ChartPreviousClose} {
		if p > 0 {
			return p, nil
		}
	}
	return 0, apperrors.NewDataError("price", ticker, "no price in chart meta", apperrors.ErrQuoteUnavailable)
}
