package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"receivables/pkg/models"
)

var paymentSourceColumns = []string{
	"updated_at", "amount", "currency", "payment_date", "reference", "account", "counter_party",
}

// UpsertPayment inserts a payment or refreshes the source fields of the row
// with the same natural key. The confirmed invoice link is never touched.
// It reports whether a new row was created; p.ID holds the stored id.
func (s *Store) UpsertPayment(ctx context.Context, p *models.Payment) (bool, error) {
	const op = "UpsertPayment"

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.findPaymentByNaturalKey(ctx, p.Source, p.SourceNativeID)
		switch {
		case errors.Is(err, ErrNotFound):
			p.ID = uuid.NewString()
			p.MatchedInvoiceID = nil
			err = translate(s.db.WithContext(ctx).Create(p).Error)
			if errors.Is(err, ErrDuplicate) {
				// another writer created it first; update instead
				continue
			}
			if err != nil {
				return false, fmt.Errorf("%s %s/%s: %w", op, p.Source, p.SourceNativeID, err)
			}
			return true, nil
		case err != nil:
			return false, fmt.Errorf("%s %s/%s: %w", op, p.Source, p.SourceNativeID, err)
		}

		p.ID = existing.ID
		p.MatchedInvoiceID = existing.MatchedInvoiceID
		p.CreatedAt = existing.CreatedAt
		if err := s.db.WithContext(ctx).Model(p).Select(paymentSourceColumns).Updates(p).Error; err != nil {
			return false, fmt.Errorf("%s %s/%s: %w", op, p.Source, p.SourceNativeID, translate(err))
		}
		return false, nil
	}
	return false, fmt.Errorf("%s %s/%s: %w", op, p.Source, p.SourceNativeID, ErrDuplicate)
}

func (s *Store) findPaymentByNaturalKey(ctx context.Context, source, nativeID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).
		Where("source = ? AND source_native_id = ?", source, nativeID).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// GetPayment loads a payment by id.
func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// SetPaymentInvoice links a payment to its confirmed invoice, or unlinks it
// when invoiceID is nil.
func (s *Store) SetPaymentInvoice(ctx context.Context, paymentID string, invoiceID *string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("matched_invoice_id", invoiceID)
	if res.Error != nil {
		return fmt.Errorf("SetPaymentInvoice %s: %w", paymentID, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("SetPaymentInvoice %s: %w", paymentID, ErrNotFound)
	}
	return nil
}

// ListUnmatchedPayments returns payments that have no PaymentMatch record yet,
// oldest first.
func (s *Store) ListUnmatchedPayments(ctx context.Context) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("payments.*").
		Joins("LEFT JOIN payment_matches ON payment_matches.payment_id = payments.id").
		Where("payment_matches.id IS NULL").
		Order("payments.payment_date, payments.id").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("ListUnmatchedPayments: %w", translate(err))
	}
	return payments, nil
}
