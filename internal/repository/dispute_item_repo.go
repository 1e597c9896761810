package repository

import (
	"context"

	"dispute-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// DisputeItemsForClient returns the full bureau ledger for one client,
// ordered by round then id. All statuses are included: a deleted item must
// still be a match candidate for reinsertion to be detectable.
func (s *Store) DisputeItemsForClient(ctx context.Context, clientID uuid.UUID, bureau models.Bureau) ([]models.DisputeItem, error) {
	var items []models.DisputeItem
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND bureau = ?", clientID, bureau).
		Order("dispute_round ASC, id ASC").
		Find(&items).Error
	return items, err
}

// GetDisputeItem re-reads one row. Inside a transaction the row is locked
// FOR UPDATE so concurrent applies for the same item serialize at the
// database as well as at the per-client mutex.
func (s *Store) GetDisputeItem(ctx context.Context, id uuid.UUID) (*models.DisputeItem, error) {
	var item models.DisputeItem
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) CreateDisputeItem(ctx context.Context, item *models.DisputeItem) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateDisputeItemStatus(ctx context.Context, id uuid.UUID, status models.DisputeStatus) error {
	return s.db.WithContext(ctx).
		Model(&models.DisputeItem{}).
		Where("id = ?", id).
		Update("status", status).Error
}
