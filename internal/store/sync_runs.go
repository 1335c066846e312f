package store

import (
	"context"
	"fmt"

	"receivables/pkg/models"
)

// CreateSyncRun records the start of a sync cycle.
func (s *Store) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("CreateSyncRun %s: %w", run.ID, translate(err))
	}
	return nil
}

// FinishSyncRun stores the outcome of a sync cycle.
func (s *Store) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	res := s.db.WithContext(ctx).Model(run).Select("*").Updates(run)
	if res.Error != nil {
		return fmt.Errorf("FinishSyncRun %s: %w", run.ID, translate(res.Error))
	}
	return nil
}

// LastSyncRun returns the most recent run of a tenant.
func (s *Store) LastSyncRun(ctx context.Context, tenant string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Order("started_at DESC, id DESC").
		First(&run).Error
	if err != nil {
		return nil, translate(err)
	}
	return &run, nil
}
