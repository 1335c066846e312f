package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"receivables/internal/logger"
	"receivables/internal/matching"
	"receivables/internal/reconciliation"
	"receivables/pkg/models"
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Review payment match suggestions",
}

var matchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payment matches",
	Example: `  # Everything still waiting for review
  receivables matches list --status pending`,
	Args: cobra.NoArgs,
	RunE: runMatchesList,
}

var matchesUpdateCmd = &cobra.Command{
	Use:   "update [match-id]",
	Short: "Confirm, ignore or reset a payment match",
	Long: `Apply a review decision to a match.

  pending -> matched   links the payment to the suggested invoice, or to --invoice
  pending -> ignored   the payment settles no invoice
  matched|ignored -> pending   undoes the decision

Confirming marks the invoice paid unless MARK_PAID_ON_CONFIRM=false.`,
	Example: `  # Accept the suggestion
  receivables matches update 01JC8W7K2M3N4P5Q6R7S8T9V0W --status matched --by anna

  # Link a different invoice
  receivables matches update 01JC8W7K2M3N4P5Q6R7S8T9V0W --status matched --invoice <invoice-id>

  # Undo
  receivables matches update 01JC8W7K2M3N4P5Q6R7S8T9V0W --status pending`,
	Args: cobra.ExactArgs(1),
	RunE: runMatchesUpdate,
}

var matchesCandidatesCmd = &cobra.Command{
	Use:   "candidates [match-id]",
	Short: "Rank open invoices against the payment of a match",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatchesCandidates,
}

var matchesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the review queue to a Google Sheet",
	Long: `Replace the rows of the review sheet (GOOGLE_SHEET_REVIEW, default "Abgleich")
in GOOGLE_SHEET_URL with every pending match, its payment and the suggested invoice.`,
	Args: cobra.NoArgs,
	RunE: runMatchesExport,
}

func init() {
	rootCmd.AddCommand(matchesCmd)
	matchesCmd.AddCommand(matchesListCmd, matchesUpdateCmd, matchesCandidatesCmd, matchesExportCmd)

	matchesListCmd.Flags().String("status", "", "Only matches with this status (pending, matched, ignored)")

	matchesUpdateCmd.Flags().String("status", "", "New status (matched, ignored, pending)")
	matchesUpdateCmd.Flags().String("invoice", "", "Invoice to link instead of the suggestion")
	matchesUpdateCmd.Flags().String("notes", "", "Replace the notes of the match")
	matchesUpdateCmd.Flags().String("by", "", "Reviewer name")
	_ = matchesUpdateCmd.MarkFlagRequired("status")

	matchesExportCmd.Flags().String("sheet", "", "Target sheet name (default: GOOGLE_SHEET_REVIEW)")
}

func runMatchesList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("matches")
	outputPath, _ := cmd.Flags().GetString("output")
	status, _ := cmd.Flags().GetString("status")

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	matches, err := a.svc.ListMatches(ctx, models.MatchStatus(status))
	if err != nil {
		return friendlyError(err, log)
	}
	if matches == nil {
		matches = []models.PaymentMatch{}
	}
	return writeJSON(matches, outputPath, log)
}

func runMatchesUpdate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("matches")
	outputPath, _ := cmd.Flags().GetString("output")
	status, _ := cmd.Flags().GetString("status")
	by, _ := cmd.Flags().GetString("by")

	upd := reconciliation.MatchUpdate{
		MatchID:   args[0],
		NewStatus: models.MatchStatus(status),
		MatchedBy: by,
	}
	if cmd.Flags().Changed("invoice") {
		invoiceID, _ := cmd.Flags().GetString("invoice")
		upd.ChosenInvoiceID = &invoiceID
	}
	if cmd.Flags().Changed("notes") {
		notes, _ := cmd.Flags().GetString("notes")
		upd.Notes = &notes
	}

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.svc.UpdateMatch(ctx, upd)
	if err != nil {
		return friendlyError(err, log)
	}
	return writeJSON(m, outputPath, log)
}

func runMatchesCandidates(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("matches")
	outputPath, _ := cmd.Flags().GetString("output")

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	candidates, err := a.svc.ReviewCandidates(ctx, args[0])
	if err != nil {
		return friendlyError(err, log)
	}
	if candidates == nil {
		candidates = []matching.Candidate{}
	}
	return writeJSON(candidates, outputPath, log)
}

func runMatchesExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("matches-export")
	sheet, _ := cmd.Flags().GetString("sheet")

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	if sheet == "" {
		sheet = a.cfg.GoogleSheetReview
	}
	svc, err := a.sheetsService(ctx)
	if err != nil {
		return err
	}

	items, err := a.svc.ReviewQueue(ctx)
	if err != nil {
		return friendlyError(err, log)
	}

	if err := svc.ReplaceRows(ctx, sheet, reviewHeaders, reviewRows(items)); err != nil {
		return friendlyError(fmt.Errorf("failed to write review sheet: %w", err), log)
	}

	log.Info().
		Str("sheet", sheet).
		Int("rows", len(items)).
		Msg("Review queue exported")
	fmt.Printf("Exported %d pending matches to sheet %q\n", len(items), sheet)
	return nil
}

var reviewHeaders = []interface{}{
	"Match-ID", "Zahlungsdatum", "Betrag", "Verwendungszweck", "Auftraggeber",
	"Rechnungsnr", "Kunde", "Rechnungsbetrag", "Fällig", "Score", "Konfidenz",
}

// reviewRows renders one row per pending match; invoice columns stay empty
// when there is no suggestion.
func reviewRows(items []reconciliation.ReviewItem) [][]interface{} {
	rows := make([][]interface{}, 0, len(items))
	for _, item := range items {
		row := []interface{}{item.Match.ID, "", "", "", ""}
		if p := item.Payment; p != nil {
			row[1] = p.PaymentDate.Format("2006-01-02")
			row[2] = p.Amount.StringFixed(2)
			row[3] = p.Reference
			row[4] = p.CounterParty
		}

		if inv := item.Suggested; inv != nil {
			row = append(row,
				inv.InvoiceNumber,
				inv.CustomerName,
				inv.GrossAmount.StringFixed(2),
				inv.DueDate.Format("2006-01-02"))
		} else {
			row = append(row, "", "", "", "")
		}

		if score := item.Match.ConfidenceScore; score != nil {
			row = append(row, *score, string(matching.Confidence(*score)))
		} else {
			row = append(row, "", "")
		}
		rows = append(rows, row)
	}
	return rows
}
