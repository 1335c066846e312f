// Package invoice merges invoice records from external sources into the
// store.
//
// Every record is keyed by its natural key (source, source native id). The
// first sync of a key creates an invoice; later syncs overwrite the
// source-of-truth fields and recompute the derived status while local-only
// fields (reminder level, last reminder, notes) are kept.
//
// Ingestion guarantees:
//   - one row per natural key, however often a record is synced
//   - malformed records are rejected individually with a *RecordError
//   - transient store failures are retried once
package invoice

import (
	"context"

	"receivables/pkg/models"
)

// Repository is the persistence the engine needs. *store.Store implements it.
type Repository interface {
	// FindInvoiceByNaturalKey returns store.ErrNotFound when no invoice exists.
	FindInvoiceByNaturalKey(ctx context.Context, source, nativeID string) (*models.Invoice, error)

	// CreateInvoice returns store.ErrDuplicate when the natural key is taken.
	CreateInvoice(ctx context.Context, inv *models.Invoice) error

	// UpdateInvoiceSourceFields overwrites source-of-truth columns only. An
	// open or overdue inv.Status must not replace a stored paid or cancelled.
	UpdateInvoiceSourceFields(ctx context.Context, inv *models.Invoice) error
}

// Result describes the outcome of one upsert.
type Result struct {
	InvoiceID string
	Created   bool
	Status    models.InvoiceStatus
}
