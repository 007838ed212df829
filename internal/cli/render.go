package cli

import (
	"fmt"
	"time"

	"holdings-tracker/internal/models"
	"holdings-tracker/pkg/utils"
)

// holdingHeaders are the columns of the per-sector holdings table.
var holdingHeaders = []string{
	"Particulars", "Symbol", "Exch", "Qty", "Buy Price", "Investment",
	"Weight", "CMP", "Present Value", "Gain/Loss", "P/E", "Earnings",
}

// renderSnapshot prints the portfolio grouped by sector followed by a summary box.
func renderSnapshot(output *Output, snap *models.PortfolioSnapshot, timeFormat string) {
	for _, sector := range snap.Sectors {
		renderSector(output, sector)
		output.Println()
	}
	renderSummary(output, snap, timeFormat)
}

func renderSector(output *Output, sector models.SectorSummary) {
	output.Bold("%s (%d)", sector.Sector, len(sector.Holdings))

	table := NewTable(output, holdingHeaders...)
	failed := 0
	for _, h := range sector.Holdings {
		table.AddRow(holdingRow(output, h)...)
		if h.Error != "" {
			failed++
		}
	}
	table.AddRow(
		output.BoldText("Subtotal"), "", "", "", "",
		output.BoldText(FormatRupees(sector.TotalInvestment)),
		"", "",
		output.BoldText(FormatRupees(sector.TotalPresentValue)),
		output.FormatGain(sector.GainLoss),
		"", "",
	)
	table.Render()

	if failed > 0 {
		output.Warning("  %d of %d prices unavailable; purchase price shown (*)", failed, len(sector.Holdings))
	}
}

func holdingRow(output *Output, h models.EnrichedHolding) []string {
	cmp := FormatRupees(h.CMP)
	if h.PriceFallback || h.Error != "" {
		cmp = output.Yellow(cmp + "*")
	}
	return []string{
		h.Particulars,
		h.Symbol,
		string(h.Exchange),
		FormatQuantity(h.Quantity),
		FormatRupees(h.PurchasePrice),
		FormatRupees(h.Investment),
		FormatWeight(h.PortfolioPercent),
		cmp,
		FormatRupees(h.PresentValue),
		output.FormatGain(h.GainLoss),
		FormatOptionalFloat(h.PERatio),
		FormatOptionalString(h.LatestEarnings),
	}
}

func renderSummary(output *Output, snap *models.PortfolioSnapshot, timeFormat string) {
	t := snap.Totals
	holdings := fmt.Sprintf("%d", t.HoldingCount)
	if t.FailedCount > 0 {
		holdings += output.Yellow(fmt.Sprintf(" (%d failed)", t.FailedCount))
	}
	updated := FormatTime(snap.GeneratedAt, timeFormat)
	if snap.Cached {
		updated += output.DimText(" (cached)")
	}

	output.Box("Portfolio Summary", []string{
		fmt.Sprintf("Investment:     %s", FormatRupees(t.TotalInvestment)),
		fmt.Sprintf("Present Value:  %s", FormatRupees(t.TotalPresentValue)),
		fmt.Sprintf("Gain/Loss:      %s  %s", output.FormatGain(t.TotalGainLoss), output.FormatPercent(t.GainLossPercent)),
		fmt.Sprintf("Compact:        %s", utils.FormatCompact(t.TotalPresentValue)),
		fmt.Sprintf("Holdings:       %s", holdings),
		fmt.Sprintf("Updated:        %s", updated),
		fmt.Sprintf("Market:         %s", marketLabel(output, utils.GetMarketStatus())),
	})
}

func marketLabel(output *Output, status models.MarketStatus) string {
	switch status {
	case models.MarketOpen:
		return output.Green("OPEN")
	case models.MarketPreOpen:
		return output.Yellow("PRE-OPEN")
	}
	return output.DimText("CLOSED")
}

// renderQuotes prints one row per quote result.
func renderQuotes(output *Output, resp *models.BasketResponse, timeFormat string) {
	table := NewTable(output, "Symbol", "Exch", "CMP", "P/E", "EPS", "Status")
	for _, q := range resp.Data {
		status := output.Green("ok")
		if q.Failed() {
			status = output.Red(q.Error)
		}
		table.AddRow(
			q.Symbol,
			string(q.Exchange),
			formatPrice(q.Price),
			FormatOptionalFloat(q.PERatio),
			FormatOptionalFloat(q.EPS),
			status,
		)
	}
	table.Render()

	note := "fetched " + FormatTime(resp.Timestamp, timeFormat)
	if resp.Cached {
		note += " (cached)"
	}
	output.Dim("%s", note)
}

func formatPrice(p *float64) string {
	if p == nil {
		return placeholder
	}
	return FormatIndianCurrency(*p)
}

// renderRuns prints the refresh run log, newest first.
func renderRuns(output *Output, runs []models.RefreshRun, timeFormat string) {
	table := NewTable(output, "ID", "Started", "Basket", "Symbols", "OK", "Failed", "Cached", "Took", "Error")
	for _, r := range runs {
		failed := fmt.Sprintf("%d", r.Failed)
		if r.Failed > 0 {
			failed = output.Red(failed)
		}
		errText := placeholder
		if r.Error != "" {
			errText = output.Red(r.Error)
		}
		table.AddRow(
			fmt.Sprintf("%d", r.ID),
			FormatTime(r.StartedAt, timeFormat),
			shortKey(r.BasketKey),
			fmt.Sprintf("%d", r.Symbols),
			fmt.Sprintf("%d", r.Succeeded),
			failed,
			yesNo(r.Cached),
			FormatDuration(r.Duration()),
			errText,
		)
	}
	table.Render()
}

// shortKey trims a basket fingerprint for display.
func shortKey(key string) string {
	const limit = 14
	if len(key) <= limit {
		return key
	}
	return key[:limit] + "…"
}

// countdownLine is the status line shown under the live view.
func countdownLine(output *Output, remaining time.Duration, refreshing bool) string {
	if refreshing {
		return output.Yellow("Refreshing…")
	}
	return output.DimText(fmt.Sprintf("Next refresh in %ds · Enter to refresh now · Ctrl+C to quit", int(remaining.Round(time.Second)/time.Second)))
}
