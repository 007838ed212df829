// Package portfolio turns holdings plus fetched quotes into enriched
// holdings, sector summaries and portfolio totals. Everything here is pure.
package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Enrich combines holdings with index-aligned quote results. Holdings whose
// fetch failed are valued at their purchase price. The returned snapshot has
// no BasketKey, Cached flag or GeneratedAt; the caller fills those in.
func Enrich(holdings []models.Holding, quotes []models.QuoteResult) (*models.PortfolioSnapshot, error) {
	if len(holdings) != len(quotes) {
		return nil, apperrors.Wrapf(apperrors.ErrMisaligned, "%d holdings, %d quotes", len(holdings), len(quotes))
	}
	for i := range holdings {
		if holdings[i].Symbol != quotes[i].Symbol || holdings[i].Exchange != quotes[i].Exchange {
			return nil, apperrors.Wrapf(apperrors.ErrMisaligned, "index %d: holding %s:%s, quote %s:%s",
				i, holdings[i].Exchange, holdings[i].Symbol, quotes[i].Exchange, quotes[i].Symbol)
		}
	}

	// Weights depend on the grand total, so investments come first.
	investments := make([]decimal.Decimal, len(holdings))
	totalInvestment := decimal.Zero
	for i, h := range holdings {
		investments[i] = Investment(h)
		totalInvestment = totalInvestment.Add(investments[i])
	}

	enriched := make([]models.EnrichedHolding, len(holdings))
	for i, h := range holdings {
		enriched[i] = enrichOne(h, quotes[i], investments[i], totalInvestment)
	}

	sectors := GroupBySector(enriched)
	totals := Totals(sectors)

	return &models.PortfolioSnapshot{
		Holdings: enriched,
		Sectors:  sectors,
		Totals:   totals,
	}, nil
}

// Investment returns purchase price times quantity.
func Investment(h models.Holding) decimal.Decimal {
	return h.PurchasePrice.Mul(decimal.NewFromInt(h.Quantity))
}

// Percent returns part/whole*100, or 0 when whole is zero.
func Percent(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(hundred).InexactFloat64()
}

// FormatEarnings renders EPS the way the dashboard shows it.
func FormatEarnings(eps float64) string {
	return fmt.Sprintf("₹%.2f", eps)
}

func enrichOne(h models.Holding, q models.QuoteResult, investment, totalInvestment decimal.Decimal) models.EnrichedHolding {
	e := models.EnrichedHolding{
		Holding:          h,
		Investment:       investment,
		PortfolioPercent: Percent(investment, totalInvestment),
		Error:            q.Error,
	}

	if !q.Failed() && q.Price != nil && *q.Price > 0 {
		e.CMP = decimal.NewFromFloat(*q.Price)
	} else {
		e.CMP = h.PurchasePrice
		e.PriceFallback = true
	}

	e.PresentValue = e.CMP.Mul(decimal.NewFromInt(h.Quantity))
	e.GainLoss = e.PresentValue.Sub(investment)

	if q.PERatio != nil {
		pe := *q.PERatio
		e.PERatio = &pe
	}
	if q.EPS != nil {
		s := FormatEarnings(*q.EPS)
		e.LatestEarnings = &s
	}

	return e
}

// GroupBySector buckets holdings by sector label in first-seen order. A
// holding without a sector lands in the Unassigned bucket.
func GroupBySector(holdings []models.EnrichedHolding) []models.SectorSummary {
	index := make(map[string]int)
	var sectors []models.SectorSummary

	for _, h := range holdings {
		label := h.SectorLabel()
		i, ok := index[label]
		if !ok {
			i = len(sectors)
			index[label] = i
			sectors = append(sectors, models.SectorSummary{
				Sector:            label,
				TotalInvestment:   decimal.Zero,
				TotalPresentValue: decimal.Zero,
			})
		}
		s := &sectors[i]
		s.TotalInvestment = s.TotalInvestment.Add(h.Investment)
		s.TotalPresentValue = s.TotalPresentValue.Add(h.PresentValue)
		s.Holdings = append(s.Holdings, h)
	}

	for i := range sectors {
		sectors[i].GainLoss = sectors[i].TotalPresentValue.Sub(sectors[i].TotalInvestment)
	}
	return sectors
}

// Totals sums sector summaries into portfolio-wide figures.
func Totals(sectors []models.SectorSummary) models.PortfolioTotals {
	t := models.PortfolioTotals{
		TotalInvestment:   decimal.Zero,
		TotalPresentValue: decimal.Zero,
	}
	for _, s := range sectors {
		t.TotalInvestment = t.TotalInvestment.Add(s.TotalInvestment)
		t.TotalPresentValue = t.TotalPresentValue.Add(s.TotalPresentValue)
		for _, h := range s.Holdings {
			t.HoldingCount++
			if h.Error != "" {
				t.FailedCount++
			}
		}
	}
	t.TotalGainLoss = t.TotalPresentValue.Sub(t.TotalInvestment)
	t.GainLossPercent = Percent(t.TotalGainLoss, t.TotalInvestment)
	return t
}
