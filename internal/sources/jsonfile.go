package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"receivables/internal/logger"
	"receivables/pkg/models"
)

// JSONFileConnector reads an accounting-system export file holding both
// invoices and payments. The file is re-read on every fetch.
type JSONFileConnector struct {
	path string
	log  zerolog.Logger
}

type jsonExport struct {
	Invoices []jsonInvoice `json:"invoices"`
	Payments []jsonPayment `json:"payments"`
}

type jsonInvoice struct {
	ID            string           `json:"id"`
	InvoiceNumber string           `json:"invoiceNumber"`
	CustomerID    string           `json:"customerId"`
	CustomerName  string           `json:"customerName"`
	GrossAmount   *decimal.Decimal `json:"grossAmount"`
	NetAmount     *decimal.Decimal `json:"netAmount"`
	TaxAmount     *decimal.Decimal `json:"taxAmount"`
	Currency      string           `json:"currency"`
	IssueDate     string           `json:"issueDate"`
	DueDate       string           `json:"dueDate"`
	Status        string           `json:"status"`
	PaymentDate   string           `json:"paymentDate"`
}

type jsonPayment struct {
	ID           string           `json:"id"`
	Amount       *decimal.Decimal `json:"amount"`
	Currency     string           `json:"currency"`
	Date         string           `json:"date"`
	Reference    string           `json:"reference"`
	Account      string           `json:"account"`
	CounterParty string           `json:"counterParty"`
}

// NewJSONFileConnector creates a connector reading path.
func NewJSONFileConnector(path string) *JSONFileConnector {
	return &JSONFileConnector{
		path: path,
		log:  logger.WithSource("sources", "jsonfile"),
	}
}

// Name implements Connector.
func (c *JSONFileConnector) Name() string { return "jsonfile" }

func (c *JSONFileConnector) load(ctx context.Context, op string) (*jsonExport, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, c.Name(), err)
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, unavailable(op, c.Name(), err)
	}

	var export jsonExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, unavailable(op, c.Name(), fmt.Errorf("failed to decode %s: %w", c.path, err))
	}
	return &export, nil
}

// FetchInvoices implements Connector.
func (c *JSONFileConnector) FetchInvoices(ctx context.Context) ([]models.RawInvoice, error) {
	const op = "FetchInvoices"

	export, err := c.load(ctx, op)
	if err != nil {
		return nil, err
	}

	invoices := make([]models.RawInvoice, 0, len(export.Invoices))
	for _, in := range export.Invoices {
		raw := models.RawInvoice{
			NativeID:      in.ID,
			InvoiceNumber: in.InvoiceNumber,
			CustomerID:    in.CustomerID,
			CustomerName:  in.CustomerName,
			GrossAmount:   in.GrossAmount,
			NetAmount:     in.NetAmount,
			TaxAmount:     in.TaxAmount,
			Currency:      in.Currency,
			Status:        in.Status,
		}
		raw.IssueDate = c.date(in.ID, "issueDate", in.IssueDate)
		raw.DueDate = c.date(in.ID, "dueDate", in.DueDate)
		raw.PaymentDate = c.date(in.ID, "paymentDate", in.PaymentDate)
		invoices = append(invoices, raw)
	}

	c.log.Info().
		Str("file", c.path).
		Int("invoices", len(invoices)).
		Msg("Invoices read from export file")

	return invoices, nil
}

// FetchPayments implements Connector.
func (c *JSONFileConnector) FetchPayments(ctx context.Context, invoiceRef string) ([]models.RawPayment, error) {
	const op = "FetchPayments"

	export, err := c.load(ctx, op)
	if err != nil {
		return nil, err
	}

	var payments []models.RawPayment
	for _, in := range export.Payments {
		if invoiceRef != "" && !containsFold(in.Reference, invoiceRef) {
			continue
		}
		payments = append(payments, models.RawPayment{
			NativeID:     in.ID,
			Amount:       in.Amount,
			Currency:     in.Currency,
			Date:         c.date(in.ID, "date", in.Date),
			Reference:    in.Reference,
			Account:      in.Account,
			CounterParty: in.CounterParty,
		})
	}

	c.log.Info().
		Str("file", c.path).
		Int("payments", len(payments)).
		Msg("Payments read from export file")

	return payments, nil
}

func (c *JSONFileConnector) date(id, field, value string) *time.Time {
	t, err := optionalDate(value)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("native_id", id).
			Str("field", field).
			Msg("Unparsable date, leaving empty")
		return nil
	}
	return t
}
