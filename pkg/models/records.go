package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawInvoice is an invoice as delivered by a source connector. Fields the
// connector could not parse are left nil or zero; validation decides whether
// the record is usable.
type RawInvoice struct {
	NativeID      string
	InvoiceNumber string
	CustomerID    string
	CustomerName  string
	GrossAmount   *decimal.Decimal
	NetAmount     *decimal.Decimal
	TaxAmount     *decimal.Decimal
	Currency      string
	IssueDate     *time.Time
	DueDate       *time.Time

	// Status is optional; only paid and cancelled are honoured.
	Status      string
	PaymentDate *time.Time
}

// RawPayment is a bank payment as delivered by a source connector.
type RawPayment struct {
	NativeID     string
	Amount       *decimal.Decimal
	Currency     string
	Date         *time.Time
	Reference    string
	Account      string
	CounterParty string
}
