package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"receivables/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "receivables",
	Short: "Invoice sync and payment reconciliation",
	Long: `receivables collects customer invoices from Google Sheets, a Document AI
PDF inbox and accounting JSON exports, keeps their payment status current and
suggests which bank payment settles which invoice.

Suggestions are reviewed by a human with "receivables matches". The serve
command exposes the same operations over HTTP and syncs on an interval.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Debug().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("output", "o", "", "Write JSON output to this file instead of stdout")
}
