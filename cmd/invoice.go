package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"receivables/internal/config"
	"receivables/internal/logger"
	"receivables/internal/sources"
	"receivables/pkg/models"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Record local invoice actions or preview a PDF extraction",
}

var invoiceMarkPaidCmd = &cobra.Command{
	Use:   "mark-paid [invoice-id]",
	Short: "Mark an invoice as paid",
	Example: `  # Paid today
  receivables invoice mark-paid 3f0c6d0e-8d0e-4c43-9a43-9b1c2f7e1a10

  # Paid on a given day
  receivables invoice mark-paid 3f0c6d0e-8d0e-4c43-9a43-9b1c2f7e1a10 --date 2024-11-20`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoiceMarkPaid,
}

var invoiceRemindCmd = &cobra.Command{
	Use:   "remind [invoice-id]",
	Short: "Record a payment reminder for an unpaid invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceRemind,
}

var invoiceExtractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Show what Document AI extracts from one invoice PDF",
	Long: `Process a PDF invoice with Google Document AI's invoice parser and print the
record the documentai source would ingest for it. Nothing is stored.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  GOOGLE_CLOUD_LOCATION - Processing location (us, eu, etc.)
  DOCUMENT_AI_PROCESSOR_ID - Your Document AI invoice processor ID`,
	Example: `  # Extract invoice data to stdout (JSON format)
  receivables invoice extract RE-2024-0012.pdf

  # Include confidence scores for each extracted field
  receivables invoice extract RE-2024-0012.pdf --confidence -o RE-2024-0012.json`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoiceExtract,
}

// ExtractOutput is the JSON written by invoice extract.
type ExtractOutput struct {
	Invoice    ExtractedInvoice   `json:"invoice"`
	Confidence map[string]float32 `json:"confidence,omitempty"`
	Metadata   ProcessingMetadata `json:"metadata"`
}

// ExtractedInvoice is a raw invoice record as read from a PDF.
type ExtractedInvoice struct {
	NativeID      string           `json:"native_id"`
	InvoiceNumber string           `json:"invoice_number"`
	CustomerID    string           `json:"customer_id,omitempty"`
	CustomerName  string           `json:"customer_name"`
	IssueDate     *time.Time       `json:"issue_date,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	NetAmount     *decimal.Decimal `json:"net_amount,omitempty"`
	TaxAmount     *decimal.Decimal `json:"tax_amount,omitempty"`
	GrossAmount   *decimal.Decimal `json:"gross_amount,omitempty"`
	Currency      string           `json:"currency"`
}

// ProcessingMetadata contains information about the processing operation
type ProcessingMetadata struct {
	FileName           string        `json:"file_name"`
	FileSize           int64         `json:"file_size_bytes"`
	ProcessedAt        time.Time     `json:"processed_at"`
	ProcessingDuration time.Duration `json:"processing_duration"`
	ProcessorUsed      string        `json:"processor_used"`
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceMarkPaidCmd, invoiceRemindCmd, invoiceExtractCmd)

	invoiceMarkPaidCmd.Flags().String("date", "", "Payment date (format: YYYY-MM-DD, default: today)")

	invoiceExtractCmd.Flags().Bool("confidence", false, "Include confidence scores in output")
	invoiceExtractCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runInvoiceMarkPaid(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	outputPath, _ := cmd.Flags().GetString("output")
	dateStr, _ := cmd.Flags().GetString("date")

	var paidAt time.Time
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("invalid date format. Use YYYY-MM-DD: %w", err)
		}
		paidAt = parsed
	}

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	inv, err := a.svc.MarkInvoicePaid(ctx, args[0], paidAt)
	if err != nil {
		return friendlyError(err, log)
	}
	return writeJSON(inv, outputPath, log)
}

func runInvoiceRemind(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	outputPath, _ := cmd.Flags().GetString("output")

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := loadApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	inv, err := a.svc.SendReminder(ctx, args[0])
	if err != nil {
		return friendlyError(err, log)
	}
	return writeJSON(inv, outputPath, log)
}

func runInvoiceExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice-extract")

	outputPath, _ := cmd.Flags().GetString("output")
	includeConfidence, _ := cmd.Flags().GetBool("confidence")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]

	log.Info().
		Str("file", pdfPath).
		Bool("confidence", includeConfidence).
		Int("timeout", timeoutSecs).
		Msg("Starting invoice extraction")

	fileInfo, err := validateInvoicePDF(pdfPath, log)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	docaiCfg := cfg.GetDocumentAIConfig()
	if docaiCfg.ProjectID == "" || docaiCfg.ProcessorID == "" {
		return fmt.Errorf("invalid Document AI configuration. Please check your .env file:\n" +
			"  GOOGLE_CLOUD_PROJECT - your Google Cloud project ID\n" +
			"  GOOGLE_CLOUD_LOCATION - processing location (us, eu, etc.)\n" +
			"  DOCUMENT_AI_PROCESSOR_ID - your Document AI processor ID")
	}
	docaiCfg.Timeout = time.Duration(timeoutSecs) * time.Second

	ctx, cancel := signalContext(docaiCfg.Timeout, log)
	defer cancel()

	client, err := sources.NewDocumentAIClient(ctx, docaiCfg)
	if err != nil {
		return friendlyError(err, log)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close Document AI client")
		}
	}()

	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to read PDF file: %w", err)
	}

	startTime := time.Now()
	connector := sources.NewDocumentAIConnector(client, docaiCfg)
	raw, confidence, err := connector.Extract(ctx, sources.NativeIDFromPath(pdfPath), pdf)
	if err != nil {
		return friendlyError(err, log)
	}
	processingDuration := time.Since(startTime)

	log.Info().
		Str("invoice_number", raw.InvoiceNumber).
		Str("customer", raw.CustomerName).
		Dur("duration", processingDuration).
		Msg("Invoice extraction completed successfully")

	output := ExtractOutput{
		Invoice: convertToExtracted(raw),
		Metadata: ProcessingMetadata{
			FileName:           filepath.Base(fileInfo.Name()),
			FileSize:           fileInfo.Size(),
			ProcessedAt:        time.Now(),
			ProcessingDuration: processingDuration,
			ProcessorUsed:      "Google Document AI Invoice Parser",
		},
	}
	if includeConfidence {
		output.Confidence = confidence
	}

	return writeJSON(output, outputPath, log)
}

// validateInvoicePDF validates the PDF file for invoice processing
func validateInvoicePDF(pdfPath string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Error().
				Str("file", pdfPath).
				Msg("Invoice PDF file not found")
			return nil, fmt.Errorf("invoice PDF file not found: %s", pdfPath)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return nil, fmt.Errorf("error accessing PDF file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", pdfPath)
	}

	if !strings.HasSuffix(strings.ToLower(pdfPath), ".pdf") {
		log.Warn().
			Str("file", pdfPath).
			Msg("File does not have .pdf extension")
	}

	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("PDF file is empty: %s", pdfPath)
	}

	if fileInfo.Size() > sources.MaxDocumentSizeBytes {
		log.Error().
			Str("file", pdfPath).
			Int64("size", fileInfo.Size()).
			Int64("max_size", sources.MaxDocumentSizeBytes).
			Msg("PDF file exceeds maximum size limit")
		return nil, fmt.Errorf("PDF file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), sources.MaxDocumentSizeBytes)
	}

	return fileInfo, nil
}

func convertToExtracted(raw models.RawInvoice) ExtractedInvoice {
	return ExtractedInvoice{
		NativeID:      raw.NativeID,
		InvoiceNumber: raw.InvoiceNumber,
		CustomerID:    raw.CustomerID,
		CustomerName:  raw.CustomerName,
		IssueDate:     raw.IssueDate,
		DueDate:       raw.DueDate,
		NetAmount:     raw.NetAmount,
		TaxAmount:     raw.TaxAmount,
		GrossAmount:   raw.GrossAmount,
		Currency:      raw.Currency,
	}
}
