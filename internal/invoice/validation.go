package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"receivables/pkg/models"
)

// Fields are the validated source-of-truth fields of an invoice.
type Fields struct {
	InvoiceNumber string
	CustomerID    string
	CustomerName  string
	GrossAmount   decimal.Decimal
	NetAmount     decimal.Decimal
	TaxAmount     decimal.Decimal
	Currency      string
	IssueDate     time.Time
	DueDate       time.Time

	// Status is empty unless the source reported paid or cancelled.
	Status      models.InvoiceStatus
	PaymentDate *time.Time
}

// AmountValidation checks that net, tax and gross amounts agree.
type AmountValidation struct {
	// Tolerance is the allowed difference between net+tax and gross.
	Tolerance decimal.Decimal
}

// NewAmountValidation creates an amount validator with a two cent tolerance
// for rounding differences.
func NewAmountValidation() *AmountValidation {
	return &AmountValidation{Tolerance: decimal.New(2, -2)}
}

// ValidateRecord turns a raw record into Fields. Records without a native id,
// invoice number, gross amount or due date are rejected.
func (av *AmountValidation) ValidateRecord(raw models.RawInvoice) (Fields, error) {
	if strings.TrimSpace(raw.NativeID) == "" {
		return Fields{}, NewValidationError("native_id", raw.NativeID, "native id is required")
	}
	if strings.TrimSpace(raw.InvoiceNumber) == "" {
		return Fields{}, NewValidationError("invoice_number", raw.InvoiceNumber, "invoice number is required")
	}
	if raw.GrossAmount == nil {
		return Fields{}, NewValidationError("gross_amount", nil, "gross amount is required")
	}
	if raw.DueDate == nil || raw.DueDate.IsZero() {
		return Fields{}, NewValidationError("due_date", nil, "due date is required")
	}

	f := Fields{
		InvoiceNumber: strings.TrimSpace(raw.InvoiceNumber),
		CustomerID:    strings.TrimSpace(raw.CustomerID),
		CustomerName:  strings.TrimSpace(raw.CustomerName),
		GrossAmount:   raw.GrossAmount.Round(2),
		Currency:      NormalizeCurrency(raw.Currency),
		DueDate:       *raw.DueDate,
		Status:        normalizeStatus(raw.Status),
	}
	if raw.IssueDate != nil {
		f.IssueDate = *raw.IssueDate
	}
	if raw.NetAmount != nil {
		f.NetAmount = raw.NetAmount.Round(2)
	}
	if raw.TaxAmount != nil {
		f.TaxAmount = raw.TaxAmount.Round(2)
	}
	if f.Status == models.StatusPaid && raw.PaymentDate != nil {
		paid := *raw.PaymentDate
		f.PaymentDate = &paid
	}

	if f.GrossAmount.IsNegative() {
		return Fields{}, NewValidationError("gross_amount", f.GrossAmount.String(), "invoice amount cannot be negative")
	}
	if !f.IssueDate.IsZero() && f.DueDate.Before(f.IssueDate) {
		return Fields{}, NewValidationError("due_date", f.DueDate.Format("2006-01-02"), "due date lies before issue date")
	}

	av.calculateMissingAmounts(&f, raw.NetAmount != nil, raw.TaxAmount != nil)
	return f, nil
}

// Discrepancy returns how far net+tax is off the gross amount and whether
// that is within tolerance.
func (av *AmountValidation) Discrepancy(f Fields) (decimal.Decimal, bool) {
	diff := f.NetAmount.Add(f.TaxAmount).Sub(f.GrossAmount).Abs()
	return diff, diff.LessThanOrEqual(av.Tolerance)
}

// calculateMissingAmounts derives net or tax from the other two amounts.
func (av *AmountValidation) calculateMissingAmounts(f *Fields, hasNet, hasTax bool) {
	switch {
	case hasNet && !hasTax:
		f.TaxAmount = f.GrossAmount.Sub(f.NetAmount)
	case !hasNet && hasTax:
		f.NetAmount = f.GrossAmount.Sub(f.TaxAmount)
	case !hasNet && !hasTax:
		f.NetAmount = f.GrossAmount
		f.TaxAmount = decimal.Zero
	}
}

func normalizeStatus(s string) models.InvoiceStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "bezahlt", "beglichen":
		return models.StatusPaid
	case "cancelled", "canceled", "storniert", "void":
		return models.StatusCancelled
	}
	return ""
}

// NormalizeCurrency standardizes currency codes to consistent format
func NormalizeCurrency(currency string) string {
	normalized := strings.ToUpper(strings.TrimSpace(currency))

	switch normalized {
	case "", "€", "EURO", "EUROS", "EUR":
		return "EUR"
	case "$", "DOLLAR", "DOLLARS", "USD", "US$":
		return "USD"
	case "£", "POUND", "POUNDS", "GBP":
		return "GBP"
	case "CHF", "FRANKEN", "SWISS FRANC":
		return "CHF"
	default:
		if len(normalized) == 3 {
			return normalized
		}
		return "EUR"
	}
}
