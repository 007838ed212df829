// Command tracker refreshes a portfolio of Indian equities and serves it in
// the terminal or over HTTP.
package main

import (
	"context"
	"fmt"
	"os"

	"holdings-tracker/internal/cli"
	"holdings-tracker/internal/logging"
)

func main() {
	logger := logging.NewLogger()

	root := cli.NewRootCmd(logger)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
