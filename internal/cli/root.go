package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"holdings-tracker/internal/basket"
	"holdings-tracker/internal/cache"
	"holdings-tracker/internal/config"
	"holdings-tracker/internal/logging"
	"holdings-tracker/internal/pipeline"
	"holdings-tracker/internal/provider"
	"holdings-tracker/internal/quote"
	"holdings-tracker/internal/resilience"
	"holdings-tracker/internal/store"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// App holds the application dependencies.
type App struct {
	ConfigDir     string
	PortfolioPath string
	Offline       bool

	Config   *config.Config
	Logger   zerolog.Logger
	Breakers *resilience.CircuitBreakerRegistry
	Store    *store.SQLiteStore

	logConfig logging.LogConfig
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Holdings Tracker - live Indian equity portfolio dashboard",
		Long: `Holdings Tracker refreshes a static portfolio of NSE/BSE holdings against live
prices, enriches each position with P/E and earnings, and rolls the result up
by sector.

It can print a one-off snapshot, keep a live view in the terminal, or serve the
pipeline over HTTP and WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			noColor, _ := cmd.Flags().GetBool("no-color")
			return app.load(debug, noColor)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.ConfigDir, "config", "", "config directory (default: ~/.config/holdings-tracker)")
	rootCmd.PersistentFlags().StringVar(&app.PortfolioPath, "portfolio", "", "holdings file (default: <config>/portfolio.toml)")
	rootCmd.PersistentFlags().BoolVar(&app.Offline, "offline", false, "use simulated prices instead of a live provider")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newSnapshotCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))

	return rootCmd
}

// load reads configuration and rebuilds the logger from it.
func (a *App) load(debug, noColor bool) error {
	if a.ConfigDir == "" {
		a.ConfigDir = config.DefaultConfigDir()
	}

	if a.Offline {
		// Picked up by config.Load before validation, so live credentials are not required.
		os.Setenv("TRACKER_PRICE_PROVIDER", config.PricePaper)
	}
	cfg, err := config.Load(a.ConfigDir, a.PortfolioPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.Offline {
		if cfg.Fundamentals.Source == config.FundamentalsScreener || cfg.Fundamentals.Source == config.FundamentalsAlphaVantage {
			cfg.Fundamentals.Source = config.FundamentalsStatic
		}
	}
	a.Config = cfg

	a.logConfig = logging.DefaultLogConfig()
	a.logConfig.Level = cfg.Logging.Level
	if debug {
		a.logConfig.Level = "debug"
	}
	a.logConfig.NoColor = noColor || !cfg.UI.ColorEnabled
	a.logConfig.File = cfg.Logging.File
	a.logConfig.FilePath = filepath.Join(a.ConfigDir, "logs", "tracker.log")
	a.Logger = logging.NewLoggerWithConfig(a.logConfig)

	a.Breakers = resilience.NewCircuitBreakerRegistry(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Provider.CircuitFailures,
		SuccessThreshold: 1,
		Cooldown:         cfg.Provider.CircuitCooldown,
	})
	return nil
}

// quietConsole sends logs to the log file only, for commands that own the terminal.
func (a *App) quietConsole() {
	cfg := a.logConfig
	cfg.Console = false
	if !cfg.File {
		a.Logger = zerolog.Nop()
		return
	}
	a.Logger = logging.NewLoggerWithConfig(cfg)
}

// Close releases resources opened by commands.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// openStore opens the run log. Failure is logged and leaves Store nil so the
// pipeline still runs.
func (a *App) openStore() {
	if a.Store != nil {
		return
	}
	s, err := store.NewSQLiteStore(a.Config.Store.Path)
	if err != nil {
		a.Logger.Warn().Err(err).Str("path", a.Config.Store.Path).Msg("Failed to open run log, history disabled")
		return
	}
	a.Store = s
}

// newPipeline wires providers, fetchers, cache and run log into a Service.
func (a *App) newPipeline() (*pipeline.Service, error) {
	sources, err := provider.FromConfig(a.Config, a.Breakers)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().
		Str("price", sources.Price.Name()).
		Str("fundamentals", sources.Fundamentals.Name()).
		Msg("Providers configured")

	quotes := quote.NewFetcher(sources.Price, sources.Fundamentals, a.Logger)
	walker := basket.NewFetcher(quotes, basket.Config{
		Delay:    a.Config.Refresh.FetchDelay,
		Deadline: a.Config.Refresh.PassDeadline,
	}, a.Logger)
	snapshots := cache.New(a.Config.Refresh.CacheTTL, 0)

	a.openStore()
	var runs pipeline.RunRecorder
	if a.Store != nil {
		runs = a.Store
	}
	return pipeline.NewService(quotes, walker, snapshots, runs, a.Logger), nil
}

// requireHoldings fails when the portfolio file has no holdings.
func (a *App) requireHoldings() error {
	if len(a.Config.Holdings) == 0 {
		return errors.New("no holdings configured; edit portfolio.toml or pass --portfolio")
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading.
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Holdings Tracker v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}
