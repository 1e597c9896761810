package models

import (
	"time"

	"github.com/google/uuid"
)

type StatusAuditLog struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DisputeItemID          *uuid.UUID `gorm:"index"`
	ReconciliationResultID uuid.UUID  `gorm:"index"`
	PreviousStatus         string
	NewStatus              string
	PerformedBy            string
	Note                   string
	CreatedAt              time.Time
}
