package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of a receivable.
type InvoiceStatus string

const (
	StatusOpen      InvoiceStatus = "open"
	StatusOverdue   InvoiceStatus = "overdue"
	StatusPaid      InvoiceStatus = "paid"
	StatusCancelled InvoiceStatus = "cancelled"
)

// IsAuthoritative reports whether the status was set by an explicit action
// and must not be recomputed from the due date.
func (s InvoiceStatus) IsAuthoritative() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Valid reports whether s is one of the known lifecycle states.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusOverdue, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

type Invoice struct {
	// Identity
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	Source         string `gorm:"size:64;not null;uniqueIndex:idx_invoice_natural_key,priority:1" json:"source"`
	SourceNativeID string `gorm:"size:128;not null;uniqueIndex:idx_invoice_natural_key,priority:2" json:"source_native_id"`

	// Source-of-truth fields, overwritten on every sync
	InvoiceNumber string          `gorm:"size:64;index" json:"invoice_number"`
	CustomerID    string          `gorm:"size:64" json:"customer_id,omitempty"`
	CustomerName  string          `gorm:"size:255" json:"customer_name"`
	GrossAmount   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"gross_amount"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"net_amount"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"tax_amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`

	// Lifecycle
	Status      InvoiceStatus `gorm:"size:16;not null;index" json:"status"`
	PaymentDate *time.Time    `json:"payment_date,omitempty"`

	// Local-only fields, never touched by a sync
	ReminderLevel    int        `gorm:"not null;default:0" json:"reminder_level"`
	LastReminderSent *time.Time `json:"last_reminder_sent,omitempty"`
	Notes            string     `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceFieldColumns lists the data columns a re-sync overwrites. Local-only
// columns (reminder_level, last_reminder_sent, notes) are never listed here,
// and status/payment_date are written separately under their own rules.
var SourceFieldColumns = []string{
	"invoice_number", "customer_id", "customer_name",
	"gross_amount", "net_amount", "tax_amount", "currency",
	"issue_date", "due_date",
}
