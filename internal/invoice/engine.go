package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"receivables/internal/logger"
	"receivables/internal/status"
	"receivables/internal/store"
	"receivables/pkg/models"
)

// Engine upserts invoices by natural key.
type Engine struct {
	repo       Repository
	validation *AmountValidation
	locks      *keyedMutex
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to derive statuses.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an upsert engine on top of repo.
func NewEngine(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:       repo,
		validation: NewAmountValidation(),
		locks:      newKeyedMutex(),
		now:        time.Now,
		log:        logger.WithComponent("invoice-upsert"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpsertRecord validates a raw record from source and upserts it.
func (e *Engine) UpsertRecord(ctx context.Context, source string, raw models.RawInvoice) (Result, error) {
	const op = "UpsertRecord"

	fields, err := e.validation.ValidateRecord(raw)
	if err != nil {
		return Result{}, NewRecordError(op, source, raw.NativeID, err)
	}

	if diff, ok := e.validation.Discrepancy(fields); !ok {
		e.log.Warn().
			Str("source", source).
			Str("native_id", raw.NativeID).
			Str("invoice_number", fields.InvoiceNumber).
			Str("gross", fields.GrossAmount.StringFixed(2)).
			Str("net", fields.NetAmount.StringFixed(2)).
			Str("tax", fields.TaxAmount.StringFixed(2)).
			Str("discrepancy", diff.StringFixed(2)).
			Msg("Net plus tax does not add up to gross, keeping source values")
	}

	return e.Upsert(ctx, source, raw.NativeID, fields)
}

// Upsert creates or refreshes the invoice with natural key (source, nativeID).
func (e *Engine) Upsert(ctx context.Context, source, nativeID string, fields Fields) (Result, error) {
	const op = "Upsert"

	if source == "" || nativeID == "" {
		return Result{}, NewRecordError(op, source, nativeID,
			NewValidationError("natural_key", source+"/"+nativeID, "source and native id are required"))
	}

	unlock := e.locks.Lock(source + "\x00" + nativeID)
	defer unlock()

	// A duplicate on create means another writer inserted the key between
	// our lookup and insert; the second pass takes the update path.
	for attempt := 0; attempt < 2; attempt++ {
		var existing *models.Invoice
		err := e.retry(ctx, "find", func() error {
			var err error
			existing, err = e.repo.FindInvoiceByNaturalKey(ctx, source, nativeID)
			return err
		})

		switch {
		case errors.Is(err, store.ErrNotFound):
			inv := e.newInvoice(source, nativeID, fields)
			err = e.retry(ctx, "create", func() error {
				return e.repo.CreateInvoice(ctx, inv)
			})
			if errors.Is(err, store.ErrDuplicate) && attempt == 0 {
				e.log.Debug().
					Str("source", source).
					Str("native_id", nativeID).
					Msg("Invoice created concurrently, retrying as update")
				continue
			}
			if err != nil {
				return Result{}, NewRecordError(op, source, nativeID, fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
			}
			return Result{InvoiceID: inv.ID, Created: true, Status: inv.Status}, nil

		case err != nil:
			return Result{}, NewRecordError(op, source, nativeID, fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
		}

		kept := existing.Status
		e.apply(existing, fields)
		err = e.retry(ctx, "update", func() error {
			return e.repo.UpdateInvoiceSourceFields(ctx, existing)
		})
		if err != nil {
			return Result{}, NewRecordError(op, source, nativeID, fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
		}

		res := Result{InvoiceID: existing.ID, Created: false, Status: existing.Status}
		if !fields.Status.IsAuthoritative() && kept.IsAuthoritative() {
			res.Status = kept
		}
		return res, nil
	}

	return Result{}, NewRecordError(op, source, nativeID, fmt.Errorf("%w: %w", ErrPersistenceFailed, store.ErrDuplicate))
}

func (e *Engine) newInvoice(source, nativeID string, f Fields) *models.Invoice {
	inv := &models.Invoice{
		ID:             uuid.NewString(),
		Source:         source,
		SourceNativeID: nativeID,
		ReminderLevel:  0,
	}
	e.apply(inv, f)
	return inv
}

// apply overwrites the source-of-truth fields and sets the status the row
// should carry: a source-reported paid or cancelled as is, otherwise the
// status derived from the due date alone. The repository never lets a derived
// status replace a stored paid or cancelled.
func (e *Engine) apply(inv *models.Invoice, f Fields) {
	inv.InvoiceNumber = f.InvoiceNumber
	inv.CustomerID = f.CustomerID
	inv.CustomerName = f.CustomerName
	inv.GrossAmount = f.GrossAmount
	inv.NetAmount = f.NetAmount
	inv.TaxAmount = f.TaxAmount
	inv.Currency = f.Currency
	inv.IssueDate = f.IssueDate
	inv.DueDate = f.DueDate

	if f.Status.IsAuthoritative() {
		inv.Status = f.Status
		if f.PaymentDate != nil {
			inv.PaymentDate = f.PaymentDate
		}
		return
	}
	inv.Status = status.Resolve(models.StatusOpen, inv.DueDate, e.now())
}

// retry runs fn and repeats it once when the error is transient.
func (e *Engine) retry(ctx context.Context, what string, fn func() error) error {
	err := fn()
	if err == nil || !store.IsTransient(err) || ctx.Err() != nil {
		return err
	}
	e.log.Warn().
		Err(err).
		Str("step", what).
		Msg("Transient store failure, retrying once")
	return fn()
}
