package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"holdings-tracker/internal/models"
	"holdings-tracker/internal/scheduler"
	"holdings-tracker/internal/stream"
)

func newWatchCmd(app *App) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live portfolio view in the terminal",
		Long: `Refresh the portfolio on a fixed interval and redraw it in place.

A countdown to the next refresh is shown under the table. Press Enter to
refresh immediately; a refresh already in flight is joined, not repeated.`,
		Example: `  tracker watch
  tracker watch --interval 30s
  tracker watch --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireHoldings(); err != nil {
				return err
			}
			if interval > 0 {
				app.Config.Refresh.Interval = interval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.watch(ctx, NewOutput(cmd), cmd.InOrStdin())
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "refresh interval (overrides refresh.interval)")

	return cmd
}

func (a *App) watch(ctx context.Context, output *Output, input io.Reader) error {
	a.quietConsole()
	svc, err := a.newPipeline()
	if err != nil {
		return err
	}

	hub := stream.NewHub(a.Logger)
	hub.Start(ctx)
	defer hub.Stop()

	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	sched := scheduler.New(svc, a.Config.Holdings, scheduler.Config{Interval: a.Config.Refresh.Interval}, hub, a.Logger)

	runErr := make(chan error, 1)
	go func() { runErr <- sched.Run(ctx) }()

	if !output.IsJSON() {
		go readRefreshKeys(ctx, input, sched)
	}

	v := &liveView{output: output, timeFormat: a.Config.UI.TimeFormat}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			output.Println()
			return nil
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := v.show(ev); err != nil {
				return err
			}
		case <-ticker.C:
			v.tick(sched.Countdown(), sched.State() == scheduler.StateRefreshing)
		}
	}
}

// readRefreshKeys triggers a refresh for every line read from input.
func readRefreshKeys(ctx context.Context, input io.Reader, sched *scheduler.Scheduler) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		go func() { _, _ = sched.RefreshNow(ctx) }()
	}
}

// liveView redraws the terminal as events arrive.
type liveView struct {
	output     *Output
	timeFormat string
	last       *models.PortfolioSnapshot
	lastErr    string
}

func (v *liveView) show(ev stream.Event) error {
	if v.output.IsJSON() {
		return v.output.JSON(ev)
	}

	switch ev.Type {
	case stream.EventSnapshot:
		v.last = ev.Data
		v.lastErr = ""
	case stream.EventRefreshFailed:
		v.lastErr = ev.Error
	}
	v.redraw()
	return nil
}

func (v *liveView) redraw() {
	v.output.ClearScreen()
	if v.last != nil {
		renderSnapshot(v.output, v.last, v.timeFormat)
	} else {
		v.output.Dim("Waiting for first refresh…")
	}
	if v.lastErr != "" {
		v.output.Error("Last refresh failed: %s", v.lastErr)
	}
}

func (v *liveView) tick(remaining time.Duration, refreshing bool) {
	if v.output.IsJSON() {
		return
	}
	v.output.Printf("\r\033[K%s", countdownLine(v.output, remaining, refreshing))
}
