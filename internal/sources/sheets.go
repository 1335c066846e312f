package sources

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"receivables/internal/logger"
	"receivables/pkg/models"
)

// paymentNamespace seeds the name-based ids of bank sheet rows, which carry
// no id of their own.
var paymentNamespace = uuid.MustParse("6f1c2a43-8d1e-4f5b-9a47-2c0e5d3b7a11")

// RangeReader reads A1 ranges from a spreadsheet. *sheets.Service implements it.
type RangeReader interface {
	ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error)
}

// SheetsConnector reads invoices from the "Debitoren" sheet and payments
// from the "Bank" sheet of one spreadsheet.
type SheetsConnector struct {
	reader       RangeReader
	invoiceSheet string
	paymentSheet string
	log          zerolog.Logger
}

// NewSheetsConnector creates a connector on top of reader.
func NewSheetsConnector(reader RangeReader, invoiceSheet, paymentSheet string) *SheetsConnector {
	return &SheetsConnector{
		reader:       reader,
		invoiceSheet: invoiceSheet,
		paymentSheet: paymentSheet,
		log:          logger.WithSource("sources", "sheets"),
	}
}

// Name implements Connector.
func (c *SheetsConnector) Name() string { return "sheets" }

// FetchInvoices reads the invoice sheet.
//
// Expected columns: A=ID, B=Rechnungsnr, C=Kundennr, D=Kunde, E=Datum,
// F=Fällig, G=Netto, H=MwSt, I=Brutto, J=Währung, K=Status, L=Zahlungsdatum
func (c *SheetsConnector) FetchInvoices(ctx context.Context) ([]models.RawInvoice, error) {
	const op = "FetchInvoices"

	values, err := c.reader.ReadRange(ctx, c.invoiceSheet+"!A:L")
	if err != nil {
		return nil, unavailable(op, c.Name(), err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	var invoices []models.RawInvoice
	for i, row := range values[1:] {
		rowNum := i + 2 // header and 0-based indexing

		if isBlank(row) {
			continue
		}
		invoices = append(invoices, c.parseInvoiceRow(row, rowNum))
	}

	c.log.Info().
		Int("total_rows", len(values)-1).
		Int("invoices", len(invoices)).
		Str("sheet", c.invoiceSheet).
		Msg("Invoices read from sheet")

	return invoices, nil
}

// parseInvoiceRow leaves unparsable values empty; validation rejects the
// record if one of them was required.
func (c *SheetsConnector) parseInvoiceRow(row []interface{}, rowNum int) models.RawInvoice {
	raw := models.RawInvoice{
		NativeID:      cell(row, 0),
		InvoiceNumber: cell(row, 1),
		CustomerID:    cell(row, 2),
		CustomerName:  cell(row, 3),
		Currency:      cell(row, 9),
		Status:        cell(row, 10),
	}

	warn := func(field, value string, err error) {
		c.log.Warn().
			Err(err).
			Int("row", rowNum).
			Str("field", field).
			Str("value", value).
			Str("sheet", c.invoiceSheet).
			Msg("Unparsable cell, leaving empty")
	}

	var err error
	if raw.IssueDate, err = optionalDate(cell(row, 4)); err != nil {
		warn("issue_date", cell(row, 4), err)
	}
	if raw.DueDate, err = optionalDate(cell(row, 5)); err != nil {
		warn("due_date", cell(row, 5), err)
	}
	if raw.NetAmount, err = optionalAmount(cell(row, 6)); err != nil {
		warn("net_amount", cell(row, 6), err)
	}
	if raw.TaxAmount, err = optionalAmount(cell(row, 7)); err != nil {
		warn("tax_amount", cell(row, 7), err)
	}
	if raw.GrossAmount, err = optionalAmount(cell(row, 8)); err != nil {
		warn("gross_amount", cell(row, 8), err)
	}
	if raw.PaymentDate, err = optionalDate(cell(row, 11)); err != nil {
		warn("payment_date", cell(row, 11), err)
	}

	return raw
}

// FetchPayments reads the bank sheet.
//
// Expected columns: A=Datum, B=Transaktionstyp, C=Beschreibung, D=EREF,
// E=MREF, F=CRED, G=SVWZ, H=Empfänger/Absender, I=BIC, J=IBAN, K=Betrag
func (c *SheetsConnector) FetchPayments(ctx context.Context, invoiceRef string) ([]models.RawPayment, error) {
	const op = "FetchPayments"

	values, err := c.reader.ReadRange(ctx, c.paymentSheet+"!A:K")
	if err != nil {
		return nil, unavailable(op, c.Name(), err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	seen := make(map[string]int)
	var payments []models.RawPayment
	for i, row := range values[1:] {
		rowNum := i + 2

		if isBlank(row) {
			continue
		}
		if len(row) < 11 {
			c.log.Warn().
				Int("row", rowNum).
				Int("columns", len(row)).
				Msg("Skipping bank transaction row with insufficient columns")
			continue
		}

		p := c.parseBankRow(row, rowNum)

		// identical rows are distinct transactions; number them
		n := seen[p.NativeID]
		seen[p.NativeID] = n + 1
		if n > 0 {
			p.NativeID = uuid.NewSHA1(paymentNamespace, []byte(p.NativeID+"#"+strconv.Itoa(n))).String()
		}

		if invoiceRef != "" && !containsFold(p.Reference, invoiceRef) {
			continue
		}
		payments = append(payments, p)
	}

	c.log.Info().
		Int("total_rows", len(values)-1).
		Int("payments", len(payments)).
		Str("sheet", c.paymentSheet).
		Msg("Bank transactions read from sheet")

	return payments, nil
}

func (c *SheetsConnector) parseBankRow(row []interface{}, rowNum int) models.RawPayment {
	p := models.RawPayment{
		Reference:    joinNonEmpty(" ", cell(row, 6), cell(row, 3), cell(row, 2)), // SVWZ, EREF, Beschreibung
		CounterParty: cell(row, 7),
		Account:      cell(row, 9),
		Currency:     "EUR",
	}

	var err error
	if p.Date, err = optionalDate(cell(row, 0)); err != nil {
		c.log.Warn().Err(err).Int("row", rowNum).Msg("Invalid bank transaction date")
	}
	if p.Amount, err = optionalAmount(cell(row, 10)); err != nil {
		c.log.Warn().Err(err).Int("row", rowNum).Msg("Invalid bank transaction amount")
	}

	key := make([]string, 0, len(row))
	for i := range row {
		key = append(key, cell(row, i))
	}
	p.NativeID = uuid.NewSHA1(paymentNamespace, []byte(strings.Join(key, "|"))).String()

	return p
}

func isBlank(row []interface{}) bool {
	for i := range row {
		if cell(row, i) != "" {
			return false
		}
	}
	return true
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

