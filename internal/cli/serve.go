package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"holdings-tracker/internal/scheduler"
	"holdings-tracker/internal/server"
	"holdings-tracker/internal/stream"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the refresh pipeline over HTTP",
		Long: `Start the HTTP API and WebSocket stream.

The configured portfolio is refreshed immediately and then on every interval.
Ad-hoc baskets can be posted to /api/stocks; snapshots are streamed on /ws.`,
		Example: `  tracker serve
  tracker serve --addr :9090
  tracker serve --offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				app.Config.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

// serve runs the scheduler, hub and HTTP server until ctx is done.
func (a *App) serve(ctx context.Context) error {
	svc, err := a.newPipeline()
	if err != nil {
		return err
	}

	hub := stream.NewHub(a.Logger)
	hub.Start(ctx)
	defer hub.Stop()

	sched := scheduler.New(svc, a.Config.Holdings, scheduler.Config{Interval: a.Config.Refresh.Interval}, hub, a.Logger)

	deps := server.Deps{
		Quotes:    svc,
		Portfolio: sched,
		Events:    hub,
		Breakers:  a.Breakers,
	}
	if a.Store != nil {
		deps.Runs = a.Store
	}
	srv := server.New(a.Config.Server, deps, a.Logger)

	a.Logger.Info().
		Int("holdings", len(a.Config.Holdings)).
		Dur("interval", a.Config.Refresh.Interval).
		Str("provider", a.Config.Provider.Price).
		Msg("Starting tracker service")

	g, gctx := errgroup.WithContext(ctx)
	if len(a.Config.Holdings) > 0 {
		g.Go(func() error {
			if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		a.Logger.Warn().Msg("No holdings configured, portfolio refresh disabled")
	}
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	return g.Wait()
}
