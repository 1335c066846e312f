package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is an incoming bank payment as reported by a source.
type Payment struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	Source         string `gorm:"size:64;not null;uniqueIndex:idx_payment_natural_key,priority:1" json:"source"`
	SourceNativeID string `gorm:"size:128;not null;uniqueIndex:idx_payment_natural_key,priority:2" json:"source_native_id"`

	Amount       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Currency     string          `gorm:"size:3;not null" json:"currency"`
	PaymentDate  time.Time       `gorm:"not null;index" json:"payment_date"`
	Reference    string          `gorm:"size:512" json:"reference,omitempty"`
	Account      string          `gorm:"size:64" json:"account,omitempty"` // IBAN of the sender
	CounterParty string          `gorm:"size:255" json:"counter_party,omitempty"`

	// Set only through a confirmed PaymentMatch
	MatchedInvoiceID *string `gorm:"size:36;index" json:"matched_invoice_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsIncoming returns true for money received.
func (p *Payment) IsIncoming() bool {
	return p.Amount.IsPositive()
}
