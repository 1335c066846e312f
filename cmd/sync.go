package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"receivables/internal/logger"
	"receivables/internal/reconciliation"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle over all configured sources",
	Long: `Fetch invoices and payments from every source in SYNC_SOURCES, merge them
into the database, refresh overdue statuses and suggest payment matches.

A failing source is reported and skipped; the other sources still sync.

Environment variables:
  SYNC_SOURCES          - comma list of sheets, documentai, jsonfile
  SOURCE_TIMEOUT        - per source time limit (default 2m)
  GOOGLE_SHEET_URL      - spreadsheet with the Debitoren and Bank sheets
  INVOICE_INBOX_DIR     - PDF inbox processed by Document AI
  JSON_SOURCE_FILE      - accounting system export`,
	Example: `  # Sync and print the result
  receivables sync

  # Save the result of the cycle
  receivables sync -o last-sync.json`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sync")
	outputPath, _ := cmd.Flags().GetString("output")

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.svc.Sync(ctx)
	if err != nil {
		if res != nil {
			if werr := writeJSON(res, outputPath, log); werr != nil {
				log.Error().Err(werr).Msg("Failed to write result of aborted cycle")
			}
		}
		return friendlyError(err, log)
	}

	if res.Outcome != reconciliation.OutcomeCompleted {
		for _, src := range res.Sources {
			if src.Unavailable() {
				fmt.Fprintf(os.Stderr, "source %s unavailable: %s\n", src.Source, src.Error)
			}
		}
	}

	return writeJSON(res, outputPath, log)
}
