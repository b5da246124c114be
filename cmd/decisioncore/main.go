// Command decisioncore is the CLI entry point for the trading decision
// core: backtest playbooks over historical bars, run the live engine
// against a broker bridge, or validate a playbook file.
//
// Grounded on NimbleMarkets-dbn-go's cobra command-tree shape
// (package-level *cobra.Command vars wired together in main()),
// replacing the teacher's flat flag-per-binary cmd/* layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridopark/decisioncore/internal/obs"
)

func main() {
	cfg := obs.DefaultLogConfig()
	cfg.EnableFile = false
	obs.InitLogging(cfg)

	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(validatePlaybookCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "decisioncore",
	Short: "decisioncore runs and backtests playbook-driven trading decisions",
	Long:  "decisioncore evaluates declarative playbooks against market data, either replayed historically or streamed live from a broker bridge.",
}
