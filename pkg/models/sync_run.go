package models

import "time"

// SyncRun is the persisted summary of one sync cycle.
type SyncRun struct {
	ID             string     `gorm:"primaryKey;size:26" json:"id"`
	Tenant         string     `gorm:"size:64;not null;index" json:"tenant"`
	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Outcome        string     `gorm:"size:32" json:"outcome"`
	InvoicesSynced int        `json:"invoices_synced"`
	PaymentsSynced int        `json:"payments_synced"`
	Skipped        int        `json:"skipped"`
	FailedSources  int        `json:"failed_sources"`
	Error          string     `gorm:"type:text" json:"error,omitempty"`
}
