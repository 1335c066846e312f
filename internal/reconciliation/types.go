package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"receivables/pkg/models"
)

// Outcome summarizes a sync cycle for the operator.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeCompletedWithSkips Outcome = "completed_with_skips"
	OutcomeFailed             Outcome = "failed"
)

// SourceReport is the per-source part of a SyncResult.
type SourceReport struct {
	Source          string `json:"source"`
	InvoicesCreated int    `json:"invoicesCreated"`
	InvoicesUpdated int    `json:"invoicesUpdated"`
	PaymentsCreated int    `json:"paymentsCreated"`
	PaymentsUpdated int    `json:"paymentsUpdated"`

	// Skipped counts malformed records, Failed records the store rejected.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	// Error is set when the source could not be fetched.
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"durationNs"`
}

// Unavailable reports whether the source failed as a whole.
func (r SourceReport) Unavailable() bool {
	return r.Error != ""
}

// SyncResult is returned by a manual or scheduled sync.
type SyncResult struct {
	RunID           string         `json:"runId"`
	Outcome         Outcome        `json:"outcome"`
	InvoicesSynced  int            `json:"invoicesSynced"`
	PaymentsSynced  int            `json:"paymentsSynced"`
	Skipped         int            `json:"skipped"`
	FailedSources   int            `json:"failedSources"`
	StatusesChanged int            `json:"statusesChanged"`
	MatchesCreated  int            `json:"matchesCreated"`
	Sources         []SourceReport `json:"sources"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `json:"finishedAt"`
	Error           string         `json:"error,omitempty"`
}

// StatusSummary aggregates the receivables of a tenant.
type StatusSummary struct {
	Total     int `json:"total"`
	Open      int `json:"open"`
	Overdue   int `json:"overdue"`
	Paid      int `json:"paid"`
	Cancelled int `json:"cancelled"`

	OpenAmount    decimal.Decimal `json:"openAmount"`
	OverdueAmount decimal.Decimal `json:"overdueAmount"`

	Matches  map[models.MatchStatus]int `json:"matches"`
	LastSync *models.SyncRun            `json:"lastSync,omitempty"`
}

// InvoiceStatusView is the per-invoice status lookup.
type InvoiceStatusView struct {
	ID               string               `json:"id"`
	InvoiceNumber    string               `json:"invoiceNumber"`
	CustomerName     string               `json:"customerName"`
	Status           models.InvoiceStatus `json:"status"`
	DueDate          time.Time            `json:"dueDate"`
	DaysOverdue      int                  `json:"daysOverdue"`
	GrossAmount      decimal.Decimal      `json:"grossAmount"`
	Currency         string               `json:"currency"`
	ReminderLevel    int                  `json:"reminderLevel"`
	LastReminderSent *time.Time           `json:"lastReminderSent,omitempty"`
	PaymentDate      *time.Time           `json:"paymentDate,omitempty"`
}

// MatchUpdate is a human review decision on a PaymentMatch.
type MatchUpdate struct {
	MatchID   string             `json:"matchId"`
	NewStatus models.MatchStatus `json:"newStatus"`

	// ChosenInvoiceID overrides the suggestion when confirming.
	ChosenInvoiceID *string `json:"chosenInvoiceId,omitempty"`

	// Notes replaces the notes of the match when set.
	Notes     *string `json:"notes,omitempty"`
	MatchedBy string  `json:"matchedBy,omitempty"`
}

// ReviewItem is one pending match with the records it refers to.
type ReviewItem struct {
	Match     models.PaymentMatch
	Payment   *models.Payment
	Suggested *models.Invoice
}
