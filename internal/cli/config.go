package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"holdings-tracker/internal/config"
	"holdings-tracker/internal/security"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the tracker configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			redacted := redact(app.Config)
			if output.IsJSON() {
				return output.JSON(redacted)
			}
			showConfig(output, redacted)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"config":   app.ConfigDir,
					"database": app.Config.Store.Path,
				})
			}
			output.Println(app.ConfigDir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			// Load already validated; run it again so offline overrides are checked too.
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]any{"valid": true, "holdings": len(app.Config.Holdings)})
			}
			output.Success("✓ Configuration is valid (%d holdings)", len(app.Config.Holdings))
			return nil
		},
	})

	return cmd
}

// redact returns a copy of cfg with secrets masked.
func redact(cfg *config.Config) *config.Config {
	c := *cfg
	c.Credentials.Kite.APIKey = security.MaskCredential(c.Credentials.Kite.APIKey)
	c.Credentials.Kite.AccessToken = security.MaskCredential(c.Credentials.Kite.AccessToken)
	c.Credentials.AlphaVantage.APIKey = security.MaskCredential(c.Credentials.AlphaVantage.APIKey)
	return &c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Refresh")
	output.Printf("  Interval:        %s\n", cfg.Refresh.Interval)
	output.Printf("  Cache TTL:       %s\n", cfg.Refresh.CacheTTL)
	output.Printf("  Fetch Delay:     %s\n", cfg.Refresh.FetchDelay)
	if cfg.Refresh.PassDeadline > 0 {
		output.Printf("  Pass Deadline:   %s\n", cfg.Refresh.PassDeadline)
	} else {
		output.Printf("  Pass Deadline:   %s\n", placeholder)
	}
	output.Println()

	output.Bold("Providers")
	output.Printf("  Price:           %s\n", cfg.Provider.Price)
	output.Printf("  Fundamentals:    %s\n", cfg.Fundamentals.Source)
	output.Printf("  Timeout:         %s\n", cfg.Provider.Timeout)
	output.Printf("  Rate Limit:      %.1f req/s\n", cfg.Provider.RequestsPerSecond)
	output.Printf("  Circuit:         %d failures, %s cooldown\n", cfg.Provider.CircuitFailures, cfg.Provider.CircuitCooldown)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  CORS Origins:    %v\n", cfg.Server.CORSOrigins)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Run Log:         %s\n", cfg.Store.Path)
	output.Printf("  Log File:        %s\n", yesNo(cfg.Logging.File))
	output.Printf("  Log Level:       %s\n", cfg.Logging.Level)
	output.Println()

	output.Bold("Credentials")
	output.Printf("  Kite API Key:    %s\n", orPlaceholder(cfg.Credentials.Kite.APIKey))
	output.Printf("  Kite Session:    %s\n", filepath.Base(cfg.Credentials.Kite.SessionPath))
	output.Printf("  Alpha Vantage:   %s\n", orPlaceholder(cfg.Credentials.AlphaVantage.APIKey))
	output.Println()

	output.Bold("Holdings")
	output.Printf("  Positions:       %d\n", len(cfg.Holdings))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}
