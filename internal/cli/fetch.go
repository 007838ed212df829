package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"holdings-tracker/internal/models"
	"holdings-tracker/internal/pipeline"
)

func newSnapshotCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Refresh the portfolio once and print it",
		Long: `Fetch live prices and fundamentals for every holding, then print the
portfolio grouped by sector with subtotals and a summary.`,
		Example: `  tracker snapshot
  tracker snapshot --json
  tracker snapshot --offline --portfolio ./demo.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireHoldings(); err != nil {
				return err
			}

			svc, err := app.newPipeline()
			if err != nil {
				return err
			}

			if !output.IsJSON() {
				output.Dim("Fetching %d holdings…", len(app.Config.Holdings))
			}
			snap, err := svc.Refresh(cmd.Context(), app.Config.Holdings)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(snap)
			}
			renderSnapshot(output, snap, app.Config.UI.TimeFormat)
			return nil
		},
	}
}

func newQuoteCmd(app *App) *cobra.Command {
	var exchange string

	cmd := &cobra.Command{
		Use:   "quote SYMBOL [SYMBOL...]",
		Short: "Fetch quotes for ad-hoc symbols",
		Long: `Fetch the current price, P/E and EPS for one or more symbols.

A single symbol is fetched directly. Several symbols are fetched as a basket,
in order, and the result is cached for the configured TTL.`,
		Example: `  tracker quote RELIANCE
  tracker quote TCS INFY HDFCBANK
  tracker quote 500325 --exchange BSE`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			svc, err := app.newPipeline()
			if err != nil {
				return err
			}

			reqs := splitArgs(args, exchange)
			var resp *models.BasketResponse
			if len(reqs) == 1 {
				resp, err = svc.FetchSymbol(cmd.Context(), reqs[0].Symbol, reqs[0].Exchange)
			} else {
				items, perr := pipeline.ParseBasket(reqs)
				if perr != nil {
					return perr
				}
				resp, err = svc.FetchBasket(cmd.Context(), items)
			}
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(resp)
			}
			renderQuotes(output, resp, app.Config.UI.TimeFormat)
			return nil
		},
	}

	cmd.Flags().StringVarP(&exchange, "exchange", "e", string(models.DefaultExchange), "exchange (NSE or BSE)")

	return cmd
}

// splitArgs accepts SYMBOL or EXCHANGE:SYMBOL arguments. A bare symbol takes
// the default exchange.
func splitArgs(args []string, exchange string) []models.StockRequest {
	reqs := make([]models.StockRequest, len(args))
	for i, a := range args {
		reqs[i] = models.StockRequest{Symbol: a, Exchange: exchange}
		if ex, sym, ok := strings.Cut(a, ":"); ok {
			reqs[i] = models.StockRequest{Symbol: sym, Exchange: ex}
		}
	}
	return reqs
}
