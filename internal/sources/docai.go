package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"receivables/internal/logger"
	"receivables/pkg/models"
)

const (
	// MaxDocumentSizeBytes is the maximum document size for processing (20MB)
	MaxDocumentSizeBytes = 20 * 1024 * 1024
)

var (
	// ErrInvalidPDF is returned for files without a PDF header.
	ErrInvalidPDF = errors.New("invalid PDF document")

	// ErrDocumentTooLarge is returned for files above MaxDocumentSizeBytes.
	ErrDocumentTooLarge = errors.New("document too large")
)

// DocumentProcessor is the part of the Document AI client the connector
// uses. *documentai.DocumentProcessorClient implements it.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
}

// DocumentAIConfig holds the processor coordinates and inbox settings.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string

	// InboxDir is scanned for *.pdf files on every fetch.
	InboxDir string
	Workers  int

	// Timeout bounds a single ProcessDocument call.
	Timeout time.Duration

	// PaymentTermDays derives a due date from the issue date when the
	// document states none. Zero leaves the due date empty.
	PaymentTermDays int
}

// NewDocumentAIClient creates a Document AI client for cfg.Location.
// Credentials come from GOOGLE_CREDENTIALS or GOOGLE_APPLICATION_CREDENTIALS.
func NewDocumentAIClient(ctx context.Context, cfg DocumentAIConfig) (*documentai.DocumentProcessorClient, error) {
	const op = "NewDocumentAIClient"

	var clientOptions []option.ClientOption
	if cfg.Location != "" && cfg.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create Document AI client for location %s: %w", op, cfg.Location, err)
	}
	return client, nil
}

// DocumentAIConnector turns the PDFs of an inbox directory into invoice
// records. It provides no payments.
type DocumentAIConnector struct {
	client DocumentProcessor
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIConnector creates a connector using client.
func NewDocumentAIConnector(client DocumentProcessor, cfg DocumentAIConfig) *DocumentAIConnector {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	return &DocumentAIConnector{
		client: client,
		config: cfg,
		log:    logger.WithSource("sources", "documentai"),
	}
}

// Name implements Connector.
func (c *DocumentAIConnector) Name() string { return "documentai" }

// FetchPayments implements Connector; invoices on paper carry no payments.
func (c *DocumentAIConnector) FetchPayments(ctx context.Context, invoiceRef string) ([]models.RawPayment, error) {
	return nil, nil
}

// FetchInvoices processes every PDF in the inbox. A document that cannot be
// extracted is returned with its native id only so that validation reports
// it; the source as a whole is unavailable only when the service is.
func (c *DocumentAIConnector) FetchInvoices(ctx context.Context) ([]models.RawInvoice, error) {
	const op = "FetchInvoices"

	files, err := c.inboxFiles()
	if err != nil {
		return nil, unavailable(op, c.Name(), err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	invoices := make([]models.RawInvoice, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)

	for i, path := range files {
		g.Go(func() error {
			nativeID := NativeIDFromPath(path)

			data, err := os.ReadFile(path)
			if err != nil {
				c.log.Warn().Err(err).Str("file", path).Msg("Failed to read inbox file")
				invoices[i] = models.RawInvoice{NativeID: nativeID}
				return nil
			}

			raw, _, err := c.Extract(gctx, nativeID, data)
			if err != nil {
				if serviceDown(err) || gctx.Err() != nil {
					return err
				}
				c.log.Warn().Err(err).Str("file", path).Msg("Document extraction failed")
				raw = models.RawInvoice{NativeID: nativeID}
			}
			invoices[i] = raw
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, unavailable(op, c.Name(), err)
	}

	c.log.Info().
		Str("inbox", c.config.InboxDir).
		Int("documents", len(invoices)).
		Msg("Inbox processed")

	return invoices, nil
}

func (c *DocumentAIConnector) inboxFiles() ([]string, error) {
	entries, err := os.ReadDir(c.config.InboxDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(c.config.InboxDir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// NativeIDFromPath returns the file name without extension.
func NativeIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Extract sends one PDF to Document AI and maps the detected entities onto
// a raw invoice. The returned map holds the confidence per entity type.
func (c *DocumentAIConnector) Extract(ctx context.Context, nativeID string, pdf []byte) (models.RawInvoice, map[string]float32, error) {
	const op = "Extract"

	if len(pdf) > MaxDocumentSizeBytes {
		return models.RawInvoice{}, nil, fmt.Errorf("%s: %w: %d bytes", op, ErrDocumentTooLarge, len(pdf))
	}
	if len(pdf) < 4 || string(pdf[:4]) != "%PDF" {
		return models.RawInvoice{}, nil, fmt.Errorf("%s: %w: missing PDF header", op, ErrInvalidPDF)
	}

	processCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: c.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  pdf,
				MimeType: "application/pdf",
			},
		},
	}

	resp, err := c.client.ProcessDocument(processCtx, req)
	if err != nil {
		return models.RawInvoice{}, nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.GetDocument() == nil {
		return models.RawInvoice{}, nil, fmt.Errorf("%s: no document in response", op)
	}

	raw, confidence := c.extractInvoiceData(resp.GetDocument())
	raw.NativeID = nativeID
	return raw, confidence, nil
}

// processorName constructs the full processor name for the Document AI API.
func (c *DocumentAIConnector) processorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		c.config.ProjectID, c.config.Location, c.config.ProcessorID)
	if c.config.ProcessorVersion != "" {
		name += "/processorVersions/" + c.config.ProcessorVersion
	}
	return name
}

// serviceDown reports errors that will fail every document alike.
func serviceDown(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.ResourceExhausted,
		codes.NotFound, codes.Unavailable:
		return true
	}
	return false
}

// extractInvoiceData converts Document AI entities to a raw invoice.
func (c *DocumentAIConnector) extractInvoiceData(doc *documentaipb.Document) (models.RawInvoice, map[string]float32) {
	var raw models.RawInvoice
	confidence := make(map[string]float32)

	for _, entity := range doc.GetEntities() {
		entityType := entity.GetType()
		value := strings.TrimSpace(entity.GetMentionText())
		confidence[entityType] = entity.GetConfidence()

		switch entityType {
		case "invoice_id", "invoice_number":
			raw.InvoiceNumber = value
		case "receiver_name", "buyer_name", "customer_name":
			raw.CustomerName = value
		case "receiver_id", "customer_id":
			raw.CustomerID = value
		case "invoice_date":
			raw.IssueDate = c.entityDate(entity)
		case "due_date":
			raw.DueDate = c.entityDate(entity)
		case "net_amount", "subtotal_amount":
			raw.NetAmount = c.entityMoney(entity)
		case "total_tax_amount", "vat_amount":
			raw.TaxAmount = c.entityMoney(entity)
		case "total_amount", "gross_amount":
			raw.GrossAmount = c.entityMoney(entity)
		case "currency":
			raw.Currency = value
		}
	}

	if raw.InvoiceNumber == "" {
		if n := invoiceNumberFromText(doc.GetText()); n != "" {
			raw.InvoiceNumber = n
			confidence["invoice_number_fallback"] = 0.6
		}
	}

	if raw.GrossAmount == nil && raw.NetAmount != nil && raw.TaxAmount != nil {
		gross := raw.NetAmount.Add(*raw.TaxAmount)
		raw.GrossAmount = &gross
	}

	if raw.DueDate == nil && raw.IssueDate != nil && c.config.PaymentTermDays > 0 {
		due := raw.IssueDate.AddDate(0, 0, c.config.PaymentTermDays)
		raw.DueDate = &due
	}

	c.log.Debug().
		Str("invoice_number", raw.InvoiceNumber).
		Int("entities", len(doc.GetEntities())).
		Msg("Document AI extraction completed")

	return raw, confidence
}

// entityDate prefers the normalized value and falls back to the mention text.
func (c *DocumentAIConnector) entityDate(entity *documentaipb.Document_Entity) *time.Time {
	if d := entity.GetNormalizedValue().GetDateValue(); d != nil && d.GetYear() > 0 {
		t := time.Date(int(d.GetYear()), time.Month(d.GetMonth()), int(d.GetDay()), 0, 0, 0, 0, time.UTC)
		return &t
	}
	t, err := ParseDate(entity.GetMentionText())
	if err != nil {
		c.log.Debug().Err(err).Str("entity_type", entity.GetType()).Msg("Unparsable date entity")
		return nil
	}
	return &t
}

// entityMoney prefers the normalized value and falls back to the mention text.
func (c *DocumentAIConnector) entityMoney(entity *documentaipb.Document_Entity) *decimal.Decimal {
	if m := entity.GetNormalizedValue().GetMoneyValue(); m != nil {
		d := decimal.New(m.GetUnits(), 0).Add(decimal.New(int64(m.GetNanos()), -9)).Round(2)
		return &d
	}
	d, err := ParseAmount(entity.GetMentionText())
	if err != nil {
		c.log.Debug().Err(err).Str("entity_type", entity.GetType()).Msg("Unparsable amount entity")
		return nil
	}
	return &d
}

var invoiceNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:rechnungsnr|rechnungsnummer|rg\.?\s?nr)[\s\-:\.]*([A-Z0-9][A-Z0-9\-/\.]{3,19})`),
	regexp.MustCompile(`(?i)(?:invoice)[\s\-:\.]*(?:no|nr|number)[\s\-:\.]*([A-Z0-9][A-Z0-9\-/\.]{3,19})`),
	regexp.MustCompile(`(?i)(?:rechnung|beleg)[\s\-:\.]*(\d{6,}|\d{4,}\-\d+)`),
}

// invoiceNumberFromText searches the OCR text for common invoice number labels.
func invoiceNumberFromText(text string) string {
	for _, re := range invoiceNumberPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimRight(m[1], ".-/")
		}
	}
	return ""
}
