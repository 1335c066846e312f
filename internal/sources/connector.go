// Package sources fetches raw invoice and payment records from the external
// systems a tenant keeps its receivables in.
package sources

import (
	"context"
	"errors"
	"fmt"

	"receivables/pkg/models"
)

// ErrSourceUnavailable is returned when a source cannot be reached or does
// not answer within its deadline.
var ErrSourceUnavailable = errors.New("source unavailable")

// Connector is one external source of invoices and payments.
type Connector interface {
	// Name identifies the source; it is the first half of every natural key.
	Name() string

	// FetchInvoices returns all invoice records the source currently holds.
	FetchInvoices(ctx context.Context) ([]models.RawInvoice, error)

	// FetchPayments returns payments, optionally narrowed to those
	// referencing invoiceRef. An empty invoiceRef returns all payments.
	FetchPayments(ctx context.Context, invoiceRef string) ([]models.RawPayment, error)
}

// unavailable wraps err so that it matches ErrSourceUnavailable.
func unavailable(op, source string, err error) error {
	return fmt.Errorf("%s: %s: %w: %w", op, source, ErrSourceUnavailable, err)
}
