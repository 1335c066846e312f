package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"receivables/internal/status"
	"receivables/internal/store"
	"receivables/pkg/models"
)

// UpdateMatch applies a review decision. Allowed transitions are
// pending -> matched, pending -> ignored and matched|ignored -> pending
// (reset). All writes of a decision commit together.
func (s *Service) UpdateMatch(ctx context.Context, upd MatchUpdate) (*models.PaymentMatch, error) {
	const op = "UpdateMatch"

	if upd.MatchID == "" {
		return nil, newError(op, ErrInvalidInput, "match id is required")
	}
	if !upd.NewStatus.Valid() {
		return nil, newError(op, ErrInvalidInput, fmt.Sprintf("unknown status %q", upd.NewStatus))
	}

	var updated *models.PaymentMatch
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		m, err := tx.GetMatch(ctx, upd.MatchID)
		if errors.Is(err, store.ErrNotFound) {
			return newError(op, ErrNotFound, "match "+upd.MatchID)
		}
		if err != nil {
			return err
		}

		switch {
		case m.Status == models.MatchPending && upd.NewStatus == models.MatchMatched:
			err = s.confirm(ctx, tx, m, upd)
		case m.Status == models.MatchPending && upd.NewStatus == models.MatchIgnored:
			m.Status = models.MatchIgnored
			m.MatchedBy = upd.MatchedBy
		case m.Status != models.MatchPending && upd.NewStatus == models.MatchPending:
			err = s.reset(ctx, tx, m)
		default:
			return newError(op, ErrInvalidTransition,
				fmt.Sprintf("%s -> %s is not allowed", m.Status, upd.NewStatus))
		}
		if err != nil {
			return err
		}

		if upd.Notes != nil {
			m.Notes = *upd.Notes
		}
		if err := tx.SaveMatch(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		var rerr *Error
		if errors.As(err, &rerr) {
			return nil, err
		}
		return nil, newError(op, err, "failed to store decision")
	}

	s.log.Info().
		Str("match_id", updated.ID).
		Str("status", string(updated.Status)).
		Str("matched_by", updated.MatchedBy).
		Msg("Match updated")

	return updated, nil
}

// confirm links the payment to the chosen invoice, or to the suggestion
// when none was chosen.
func (s *Service) confirm(ctx context.Context, tx *store.Store, m *models.PaymentMatch, upd MatchUpdate) error {
	const op = "UpdateMatch"

	invoiceID := upd.ChosenInvoiceID
	if invoiceID == nil || *invoiceID == "" {
		invoiceID = m.SuggestedInvoiceID
	}
	if invoiceID == nil || *invoiceID == "" {
		return newError(op, ErrInvalidState, "matched requires an invoice; the match has no suggestion")
	}

	inv, err := tx.GetInvoice(ctx, *invoiceID)
	if errors.Is(err, store.ErrNotFound) {
		return newError(op, ErrNotFound, "invoice "+*invoiceID)
	}
	if err != nil {
		return err
	}
	if inv.Status == models.StatusCancelled {
		return newError(op, ErrInvalidState, "invoice "+inv.ID+" is cancelled")
	}

	payment, err := tx.GetPayment(ctx, m.PaymentID)
	if errors.Is(err, store.ErrNotFound) {
		return newError(op, ErrNotFound, "payment "+m.PaymentID)
	}
	if err != nil {
		return err
	}

	id := inv.ID
	if err := tx.SetPaymentInvoice(ctx, payment.ID, &id); err != nil {
		return err
	}

	m.InvoiceMarkedPaid = false
	if s.cfg.MarkPaidOnConfirm && inv.Status != models.StatusPaid {
		paidAt := payment.PaymentDate
		if err := tx.SetInvoicePayment(ctx, inv.ID, models.StatusPaid, &paidAt); err != nil {
			return err
		}
		m.InvoiceMarkedPaid = true
	}

	now := s.now()
	m.Status = models.MatchMatched
	m.MatchedInvoiceID = &id
	m.MatchedBy = upd.MatchedBy
	m.MatchedAt = &now
	return nil
}

// reset undoes a decision, including the paid flag a confirmation set.
func (s *Service) reset(ctx context.Context, tx *store.Store, m *models.PaymentMatch) error {
	if m.Status == models.MatchMatched {
		if err := tx.SetPaymentInvoice(ctx, m.PaymentID, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if m.InvoiceMarkedPaid && m.MatchedInvoiceID != nil {
			inv, err := tx.GetInvoice(ctx, *m.MatchedInvoiceID)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return err
			case inv.Status == models.StatusPaid:
				next := status.Resolve("", inv.DueDate, s.now())
				if err := tx.SetInvoicePayment(ctx, inv.ID, next, nil); err != nil {
					return err
				}
			}
		}
	}

	m.Status = models.MatchPending
	m.MatchedInvoiceID = nil
	m.MatchedBy = ""
	m.MatchedAt = nil
	m.InvoiceMarkedPaid = false
	return nil
}

// MarkInvoicePaid sets an invoice to paid. A zero paidAt means today.
// Marking a paid invoice again is a no-op.
func (s *Service) MarkInvoicePaid(ctx context.Context, id string, paidAt time.Time) (*models.Invoice, error) {
	const op = "MarkInvoicePaid"

	inv, err := s.getInvoice(ctx, op, id)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case models.StatusPaid:
		return inv, nil
	case models.StatusCancelled:
		return nil, newError(op, ErrInvalidState, "invoice "+id+" is cancelled")
	}

	if paidAt.IsZero() {
		paidAt = s.now()
	}
	if err := s.store.SetInvoicePayment(ctx, id, models.StatusPaid, &paidAt); err != nil {
		return nil, newError(op, err, "failed to store payment")
	}

	s.log.Info().
		Str("invoice_id", id).
		Time("paid_at", paidAt).
		Msg("Invoice marked paid")

	return s.getInvoice(ctx, op, id)
}

// SendReminder records a payment reminder for an unpaid invoice.
func (s *Service) SendReminder(ctx context.Context, id string) (*models.Invoice, error) {
	const op = "SendReminder"

	inv, err := s.getInvoice(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.IsAuthoritative() {
		return nil, newError(op, ErrInvalidState, fmt.Sprintf("invoice %s is %s", id, inv.Status))
	}

	if err := s.store.IncrementReminder(ctx, id, s.now()); err != nil {
		return nil, newError(op, err, "failed to store reminder")
	}

	updated, err := s.getInvoice(ctx, op, id)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", id).
		Int("reminder_level", updated.ReminderLevel).
		Msg("Reminder recorded")

	return updated, nil
}

func (s *Service) getInvoice(ctx context.Context, op, id string) (*models.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(op, ErrNotFound, "invoice "+id)
	}
	if err != nil {
		return nil, newError(op, err, "failed to load invoice")
	}
	return inv, nil
}
