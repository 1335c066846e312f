package cmd

import (
	"github.com/spf13/cobra"

	"receivables/internal/logger"
)

var statusCmd = &cobra.Command{
	Use:   "status [invoice-id]",
	Short: "Show receivables totals or the status of one invoice",
	Example: `  # Totals per status and the last sync run
  receivables status

  # One invoice, including days overdue
  receivables status 3f0c6d0e-8d0e-4c43-9a43-9b1c2f7e1a10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("status")
	outputPath, _ := cmd.Flags().GetString("output")

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 1 {
		view, err := a.svc.InvoiceStatus(ctx, args[0])
		if err != nil {
			return friendlyError(err, log)
		}
		return writeJSON(view, outputPath, log)
	}

	summary, err := a.svc.Status(ctx)
	if err != nil {
		return friendlyError(err, log)
	}
	return writeJSON(summary, outputPath, log)
}
