package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"receivables/internal/matching"
	"receivables/internal/status"
	"receivables/internal/store"
	"receivables/pkg/models"
)

// Status aggregates invoice counts and open amounts. Open and overdue are
// derived as of now, so the summary is current even between cycles.
func (s *Service) Status(ctx context.Context) (*StatusSummary, error) {
	const op = "Status"

	totals, err := s.store.InvoiceTotals(ctx)
	if err != nil {
		return nil, newError(op, err, "failed to load totals")
	}
	open, err := s.openInvoices(ctx)
	if err != nil {
		return nil, newError(op, err, "failed to load open invoices")
	}
	matches, err := s.store.CountMatches(ctx)
	if err != nil {
		return nil, newError(op, err, "failed to count matches")
	}

	summary := &StatusSummary{
		Paid:          totals.Counts[models.StatusPaid],
		Cancelled:     totals.Counts[models.StatusCancelled],
		OpenAmount:    decimal.Zero,
		OverdueAmount: decimal.Zero,
		Matches:       matches,
	}

	today := s.now()
	for i := range open {
		inv := &open[i]
		if status.Resolve(inv.Status, inv.DueDate, today) == models.StatusOverdue {
			summary.Overdue++
			summary.OverdueAmount = summary.OverdueAmount.Add(inv.GrossAmount)
		} else {
			summary.Open++
			summary.OpenAmount = summary.OpenAmount.Add(inv.GrossAmount)
		}
	}
	summary.Total = summary.Open + summary.Overdue + summary.Paid + summary.Cancelled

	last, err := s.store.LastSyncRun(ctx, s.cfg.Tenant)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, newError(op, err, "failed to load last sync run")
	default:
		summary.LastSync = last
	}

	return summary, nil
}

// InvoiceStatus returns the current status of one invoice.
func (s *Service) InvoiceStatus(ctx context.Context, id string) (*InvoiceStatusView, error) {
	const op = "InvoiceStatus"

	inv, err := s.getInvoice(ctx, op, id)
	if err != nil {
		return nil, err
	}

	today := s.now()
	current := status.Resolve(inv.Status, inv.DueDate, today)
	view := &InvoiceStatusView{
		ID:               inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		CustomerName:     inv.CustomerName,
		Status:           current,
		DueDate:          inv.DueDate,
		GrossAmount:      inv.GrossAmount,
		Currency:         inv.Currency,
		ReminderLevel:    inv.ReminderLevel,
		LastReminderSent: inv.LastReminderSent,
		PaymentDate:      inv.PaymentDate,
	}
	if current == models.StatusOverdue {
		view.DaysOverdue = status.DaysOverdue(inv.DueDate, today)
	}
	return view, nil
}

// ListMatches returns matches, all of them when st is empty.
func (s *Service) ListMatches(ctx context.Context, st models.MatchStatus) ([]models.PaymentMatch, error) {
	const op = "ListMatches"

	if st != "" && !st.Valid() {
		return nil, newError(op, ErrInvalidInput, fmt.Sprintf("unknown status %q", st))
	}
	matches, err := s.store.ListMatches(ctx, st)
	if err != nil {
		return nil, newError(op, err, "failed to list matches")
	}
	return matches, nil
}

// ReviewCandidates ranks every open invoice scoring at least MinScore
// against the payment of a match.
func (s *Service) ReviewCandidates(ctx context.Context, matchID string) ([]matching.Candidate, error) {
	const op = "ReviewCandidates"

	m, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(op, ErrNotFound, "match "+matchID)
	}
	if err != nil {
		return nil, newError(op, err, "failed to load match")
	}

	payment, err := s.store.GetPayment(ctx, m.PaymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(op, ErrNotFound, "payment "+m.PaymentID)
	}
	if err != nil {
		return nil, newError(op, err, "failed to load payment")
	}

	invoices, err := s.openInvoices(ctx)
	if err != nil {
		return nil, newError(op, err, "failed to load open invoices")
	}

	return s.selector.PossibleMatches(payment, invoices, s.cfg.MinScore), nil
}

// ReviewQueue returns every pending match with its payment and suggestion.
func (s *Service) ReviewQueue(ctx context.Context) ([]ReviewItem, error) {
	const op = "ReviewQueue"

	matches, err := s.store.ListMatches(ctx, models.MatchPending)
	if err != nil {
		return nil, newError(op, err, "failed to list matches")
	}

	items := make([]ReviewItem, 0, len(matches))
	for _, m := range matches {
		item := ReviewItem{Match: m}
		if item.Payment, err = s.store.GetPayment(ctx, m.PaymentID); err != nil {
			return nil, newError(op, err, "failed to load payment "+m.PaymentID)
		}
		if m.SuggestedInvoiceID != nil {
			inv, err := s.store.GetInvoice(ctx, *m.SuggestedInvoiceID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, newError(op, err, "failed to load invoice "+*m.SuggestedInvoiceID)
			}
			item.Suggested = inv
		}
		items = append(items, item)
	}
	return items, nil
}
