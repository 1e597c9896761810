package repository

import (
	"context"
	"time"

	"dispute-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

func (s *Store) CreateResult(ctx context.Context, result *models.ReconciliationResult) error {
	return s.db.WithContext(ctx).Create(result).Error
}

func (s *Store) GetResult(ctx context.Context, id uuid.UUID) (*models.ReconciliationResult, error) {
	var result models.ReconciliationResult
	err := s.db.WithContext(ctx).First(&result, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &result, nil
}

func (s *Store) ResultsForClient(ctx context.Context, clientID uuid.UUID) ([]models.ReconciliationResult, error) {
	var results []models.ReconciliationResult
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&results).Error
	return results, err
}

func (s *Store) MarkResultReviewed(ctx context.Context, id uuid.UUID, reviewer string, at time.Time, note string) error {
	return s.db.WithContext(ctx).
		Model(&models.ReconciliationResult{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reviewed":    true,
			"reviewed_by": reviewer,
			"reviewed_at": at,
			"audit_note":  note,
		}).Error
}

func (s *Store) CreateViolation(ctx context.Context, v *models.ReinsertionViolation) error {
	return s.db.WithContext(ctx).Create(v).Error
}

// HasViolation guards against duplicate rows when the same result is applied
// more than once.
func (s *Store) HasViolation(ctx context.Context, resultID, itemID uuid.UUID, deletedRound, reappearedRound int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ReinsertionViolation{}).
		Where("reconciliation_result_id = ? AND dispute_item_id = ? AND deleted_round = ? AND reappeared_round = ?",
			resultID, itemID, deletedRound, reappearedRound).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry *models.StatusAuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ViolationsForClient lists durable violation records, newest first.
func (s *Store) ViolationsForClient(ctx context.Context, clientID uuid.UUID) ([]models.ReinsertionViolation, error) {
	var violations []models.ReinsertionViolation
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&violations).Error
	return violations, err
}
