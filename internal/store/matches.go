package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"receivables/pkg/models"
)

// CreateMatch inserts a match unless the payment already has one. It reports
// whether a row was written.
func (s *Store) CreateMatch(ctx context.Context, m *models.PaymentMatch) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, fmt.Errorf("CreateMatch payment %s: %w", m.PaymentID, translate(res.Error))
	}
	return res.RowsAffected == 1, nil
}

// GetMatch loads a match by id.
func (s *Store) GetMatch(ctx context.Context, id string) (*models.PaymentMatch, error) {
	var m models.PaymentMatch
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// ListMatches returns matches in creation order, optionally filtered by status.
func (s *Store) ListMatches(ctx context.Context, status models.MatchStatus) ([]models.PaymentMatch, error) {
	q := s.db.WithContext(ctx).Model(&models.PaymentMatch{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var matches []models.PaymentMatch
	if err := q.Order("id").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("ListMatches: %w", translate(err))
	}
	return matches, nil
}

// SaveMatch writes every column of an existing match.
func (s *Store) SaveMatch(ctx context.Context, m *models.PaymentMatch) error {
	res := s.db.WithContext(ctx).Model(m).Select("*").Omit("created_at").Updates(m)
	if res.Error != nil {
		return fmt.Errorf("SaveMatch %s: %w", m.ID, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("SaveMatch %s: %w", m.ID, ErrNotFound)
	}
	return nil
}

// CountMatches returns the number of matches per status.
func (s *Store) CountMatches(ctx context.Context) (map[models.MatchStatus]int, error) {
	var rows []struct {
		Status models.MatchStatus
		Count  int
	}
	err := s.db.WithContext(ctx).
		Model(&models.PaymentMatch{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("CountMatches: %w", translate(err))
	}
	counts := make(map[models.MatchStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
