package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"receivables/pkg/models"
)

// FindInvoiceByNaturalKey looks an invoice up by (source, source_native_id).
func (s *Store) FindInvoiceByNaturalKey(ctx context.Context, source, nativeID string) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).
		Where("source = ? AND source_native_id = ?", source, nativeID).
		First(&inv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// GetInvoice loads an invoice by id.
func (s *Store) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// CreateInvoice inserts a new invoice, assigning an id when it has none.
func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("CreateInvoice %s/%s: %w", inv.Source, inv.SourceNativeID, translate(err))
	}
	return nil
}

// UpdateInvoiceSourceFields overwrites the source-of-truth columns of an
// existing invoice and leaves local-only columns untouched.
//
// A paid or cancelled inv.Status is a status the source reported and is
// written together with the payment date. An open or overdue status is only
// written while the stored row is neither paid nor cancelled, so a mark-paid
// that lands during a sync is never reverted.
func (s *Store) UpdateInvoiceSourceFields(ctx context.Context, inv *models.Invoice) error {
	const op = "UpdateInvoiceSourceFields"

	inv.UpdatedAt = time.Now().UTC()
	columns := append([]string{"updated_at"}, models.SourceFieldColumns...)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(inv).Select(columns).Updates(inv)
		if res.Error != nil {
			return fmt.Errorf("%s %s: %w", op, inv.ID, translate(res.Error))
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s %s: %w", op, inv.ID, ErrNotFound)
		}

		if inv.Status.IsAuthoritative() {
			err := tx.Model(&models.Invoice{}).
				Where("id = ?", inv.ID).
				Updates(map[string]interface{}{
					"status":       inv.Status,
					"payment_date": inv.PaymentDate,
				}).Error
			if err != nil {
				return fmt.Errorf("%s %s: status: %w", op, inv.ID, translate(err))
			}
			return nil
		}

		if _, err := updateDerivedStatus(tx, inv.ID, inv.Status); err != nil {
			return fmt.Errorf("%s %s: %w", op, inv.ID, err)
		}
		return nil
	})
}

// UpdateInvoiceStatus writes a derived status (open or overdue). Rows that are
// paid or cancelled are left alone and reported as not updated.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id string, status models.InvoiceStatus) (bool, error) {
	if status.IsAuthoritative() {
		return false, fmt.Errorf("UpdateInvoiceStatus %s: %q is not a derived status", id, status)
	}
	updated, err := updateDerivedStatus(s.db.WithContext(ctx), id, status)
	if err != nil {
		return false, fmt.Errorf("UpdateInvoiceStatus %s: %w", id, err)
	}
	return updated, nil
}

func updateDerivedStatus(db *gorm.DB, id string, status models.InvoiceStatus) (bool, error) {
	res := db.Model(&models.Invoice{}).
		Where("id = ? AND status NOT IN ?", id, authoritativeStatuses).
		Update("status", status)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

var authoritativeStatuses = []models.InvoiceStatus{models.StatusPaid, models.StatusCancelled}

// InvoiceFilter narrows ListInvoices. Zero values match everything.
type InvoiceFilter struct {
	Statuses      []models.InvoiceStatus
	ExcludeStatus []models.InvoiceStatus
	Source        string
	Limit         int
}

// ListInvoices returns invoices ordered by id.
func (s *Store) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error) {
	q := s.db.WithContext(ctx).Model(&models.Invoice{})
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if len(filter.ExcludeStatus) > 0 {
		q = q.Where("status NOT IN ?", filter.ExcludeStatus)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var invoices []models.Invoice
	if err := q.Order("id").Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("ListInvoices: %w", translate(err))
	}
	return invoices, nil
}

// StatusTotals aggregates invoice counts and gross amounts per status.
type StatusTotals struct {
	Counts  map[models.InvoiceStatus]int
	Amounts map[models.InvoiceStatus]decimal.Decimal
}

// InvoiceTotals sums invoices per status. Amounts are added up in Go so the
// result is exact on every driver.
func (s *Store) InvoiceTotals(ctx context.Context) (*StatusTotals, error) {
	var rows []struct {
		Status      models.InvoiceStatus
		GrossAmount decimal.Decimal
	}
	err := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Select("status", "gross_amount").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("InvoiceTotals: %w", translate(err))
	}

	totals := &StatusTotals{
		Counts:  make(map[models.InvoiceStatus]int),
		Amounts: make(map[models.InvoiceStatus]decimal.Decimal),
	}
	for _, row := range rows {
		totals.Counts[row.Status]++
		totals.Amounts[row.Status] = totals.Amounts[row.Status].Add(row.GrossAmount)
	}
	return totals, nil
}

// SetInvoicePayment sets status and payment date without touching any
// source field. A nil paidAt clears the payment date.
func (s *Store) SetInvoicePayment(ctx context.Context, id string, status models.InvoiceStatus, paidAt *time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"payment_date": paidAt,
		})
	if res.Error != nil {
		return fmt.Errorf("SetInvoicePayment %s: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("SetInvoicePayment %s: %w", id, ErrNotFound)
	}
	return nil
}

// IncrementReminder raises the reminder level by one and stamps the time.
func (s *Store) IncrementReminder(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reminder_level":     gorm.Expr("reminder_level + ?", 1),
			"last_reminder_sent": at,
		})
	if res.Error != nil {
		return fmt.Errorf("IncrementReminder %s: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("IncrementReminder %s: %w", id, ErrNotFound)
	}
	return nil
}
