package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Holdings Tracker Configuration

[refresh]
# How often the scheduler starts a refresh pass
interval = "15s"
# How long a basket result stays fresh in the snapshot cache
cache_ttl = "15s"
# Pause between consecutive symbols within one pass
fetch_delay = "2s"
# Upper bound on a whole pass; "0s" disables the bound
pass_deadline = "0s"

[provider]
# Price source: yahoo, kite, alphavantage, paper
price = "yahoo"
# Per-request timeout
timeout = "10s"
# Outbound request rate per provider (0 disables limiting)
requests_per_second = 2.0
# Consecutive failures before the provider circuit opens
circuit_failures = 5
# How long an open circuit rejects calls
circuit_cooldown = "30s"

[fundamentals]
# P/E and EPS source: screener, alphavantage, static, none
source = "static"

# Fixed table used when source = "static"
[fundamentals.static.RELIANCE]
pe = 28.5
eps = 95.2

[fundamentals.static.TCS]
pe = 32.1
eps = 115.8

[fundamentals.static.HDFCBANK]
pe = 19.4
eps = 82.6

[fundamentals.static.INFY]
pe = 27.3
eps = 58.4

[server]
# Listen address for the HTTP API
addr = ":8080"
cors_origins = ["*"]

[store]
# Refresh log database; defaults to tracker.db in the config directory
path = ""

[ui]
# Enable colored output
color_enabled = true
# Time format
time_format = "15:04:05"

[logging]
level = "info"
file = true
`

const credentialsTemplate = `# Holdings Tracker Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
api_key = ""
access_token = ""
# session_path = ""

[alphavantage]
api_key = ""
`

const portfolioTemplate = `# Holdings Tracker Portfolio
# One [[holdings]] block per position. exchange defaults to NSE.

[[holdings]]
particulars = "Reliance Industries"
symbol = "RELIANCE"
exchange = "NSE"
purchase_price = 2450.00
quantity = 10
sector = "Energy"

[[holdings]]
particulars = "Tata Consultancy Services"
symbol = "TCS"
exchange = "NSE"
purchase_price = 3400.00
quantity = 5
sector = "Technology"

[[holdings]]
particulars = "Infosys"
symbol = "INFY"
exchange = "NSE"
purchase_price = 1450.00
quantity = 12
sector = "Technology"

[[holdings]]
particulars = "HDFC Bank"
symbol = "HDFCBANK"
exchange = "NSE"
purchase_price = 1550.00
quantity = 8
sector = "Financials"
`

// createTemplate writes a starter file when it does not exist yet.
func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}

	return nil
}
