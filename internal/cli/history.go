package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"holdings-tracker/internal/store"
)

var errNoRunLog = errors.New("run log unavailable; check store.path")

func newHistoryCmd(app *App) *cobra.Command {
	var (
		limit      int
		failedOnly bool
		basketKey  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent refresh runs",
		Example: `  tracker history
  tracker history --limit 50 --failed
  tracker history prune --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			app.openStore()
			if app.Store == nil {
				return errNoRunLog
			}

			runs, err := app.Store.Runs(cmd.Context(), store.RunFilter{
				BasketKey:  basketKey,
				FailedOnly: failedOnly,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Info("No refresh runs recorded yet")
				return nil
			}
			renderRuns(output, runs, app.Config.UI.TimeFormat)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultRunLimit, "number of runs to show")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only runs with failures")
	cmd.Flags().StringVar(&basketKey, "basket", "", "only runs for this basket key")

	cmd.AddCommand(newHistoryPruneCmd(app))

	return cmd
}

func newHistoryPruneCmd(app *App) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old refresh runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			app.openStore()
			if app.Store == nil {
				return errNoRunLog
			}

			removed, err := app.Store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"removed": removed})
			}
			output.Success("✓ Removed %d runs older than %s", removed, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")

	return cmd
}
