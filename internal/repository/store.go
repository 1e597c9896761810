package repository

import (
	"context"
	"errors"

	"dispute-reconciliation-backend/internal/services/reconciliation"

	"gorm.io/gorm"
)

// ErrNotFound normalizes gorm's record-not-found for callers outside the
// persistence layer.
var ErrNotFound = errors.New("repository: not found")

// Store is the gorm-backed persistence layer. One Store wraps one *gorm.DB;
// Transact hands callbacks a Store bound to the transaction handle.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Transact(ctx context.Context, fn func(reconciliation.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
