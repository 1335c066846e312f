package models

import "time"

// MatchStatus is the review state of a PaymentMatch.
type MatchStatus string

const (
	MatchPending MatchStatus = "pending"
	MatchMatched MatchStatus = "matched"
	MatchIgnored MatchStatus = "ignored"
)

// Valid reports whether s is one of the known review states.
func (s MatchStatus) Valid() bool {
	return s == MatchPending || s == MatchMatched || s == MatchIgnored
}

// PaymentMatch is the reconciliation record of one payment.
type PaymentMatch struct {
	ID        string `gorm:"primaryKey;size:26" json:"id"`
	PaymentID string `gorm:"size:36;not null;uniqueIndex" json:"payment_id"`

	SuggestedInvoiceID *string `gorm:"size:36;index" json:"suggested_invoice_id,omitempty"`
	ConfidenceScore    *int    `json:"confidence_score,omitempty"`

	Status           MatchStatus `gorm:"size:16;not null;index" json:"status"`
	MatchedInvoiceID *string     `gorm:"size:36;index" json:"matched_invoice_id,omitempty"`
	MatchedBy        string      `gorm:"size:128" json:"matched_by,omitempty"`
	MatchedAt        *time.Time  `json:"matched_at,omitempty"`
	Notes            string      `gorm:"type:text" json:"notes,omitempty"`

	// InvoiceMarkedPaid records that confirming this match flipped the
	// invoice to paid, so a reset can undo it.
	InvoiceMarkedPaid bool `gorm:"not null;default:false" json:"invoice_marked_paid"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
