package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
)

// ScreenerBaseURL is the Screener.in host.
const ScreenerBaseURL = "https://www.screener.in"

// Screener scrapes P/E and EPS from Screener.in company pages.
type Screener struct {
	http *httpClient
}

// NewScreener creates a Screener.in fundamentals source.
func NewScreener(opts ...Option) *Screener {
	return &Screener{http: newHTTPClient("screener", buildOptions(ScreenerBaseURL, 1, opts))}
}

// Name returns the source name.
func (s *Screener) Name() string { return "screener" }

// Fundamentals reads "Stock P/E" from the top ratios list and the latest
// annual EPS from the profit and loss table.
func (s *Screener) Fundamentals(ctx context.Context, symbol string, _ models.Exchange) (Fundamentals, error) {
	doc, err := s.fetchPage(ctx, symbol)
	if err != nil {
		return Fundamentals{}, err
	}

	var f Fundamentals
	doc.Find("#top-ratios li").Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Find(".name").Text())
		if !strings.Contains(name, "Stock P/E") {
			return
		}
		if v, ok := parseScreenerNumber(sel.Find(".number").Text()); ok {
			f.PERatio = floatPtr(v)
		}
	})

	doc.Find("#profit-loss table tbody tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find("td").First().Text())
		if !strings.HasPrefix(label, "EPS") {
			return
		}
		cells := row.Find("td")
		for i := cells.Length() - 1; i > 0; i-- {
			if v, ok := parseScreenerNumber(cells.Eq(i).Text()); ok {
				f.EPS = floatPtr(v)
				return
			}
		}
	})

	return f, nil
}

// fetchPage loads the consolidated page, falling back to standalone.
func (s *Screener) fetchPage(ctx context.Context, symbol string) (*goquery.Document, error) {
	headers := map[string]string{"Accept": "text/html"}

	url := fmt.Sprintf("%s/company/%s/consolidated/", s.http.baseURL, symbol)
	body, err := s.http.get(ctx, url, headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("screener.in %s: %w", symbol, err)
		}
		url = fmt.Sprintf("%s/company/%s/", s.http.baseURL, symbol)
		body, err = s.http.get(ctx, url, headers)
		if err != nil {
			return nil, fmt.Errorf("screener.in %s: %w", symbol, err)
		}
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, apperrors.NewDataError("fundamentals", symbol, "parse screener HTML", apperrors.ErrMalformedResponse)
	}
	return doc, nil
}

// parseScreenerNumber parses figures such as "1,234.5", "₹ 95.20" or "28.4 %".
func parseScreenerNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, "₹", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
