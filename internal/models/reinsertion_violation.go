package models

import (
	"time"

	"github.com/google/uuid"
)

// FCRACitation is the statutory provision a reinsertion violates.
const FCRACitation = "15 U.S.C. § 1681i(a)(5)(B)"

// ReinsertionViolation records previously-deleted information reappearing in
// a later round. Detected at reconciliation time, carried inside the result's
// Violations column, and materialized as a row of its own by Apply.
// DeletedRound is always strictly less than ReappearedRound.
type ReinsertionViolation struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID               uuid.UUID `gorm:"index" json:"client_id"`
	Bureau                 Bureau    `json:"bureau"`
	DisputeItemID          uuid.UUID `gorm:"index" json:"dispute_item_id"`
	ReconciliationResultID uuid.UUID `gorm:"index" json:"reconciliation_result_id"`
	CreditorName           string    `json:"creditor_name"`
	DeletedRound           int       `json:"deleted_round"`
	ReappearedRound        int       `json:"reappeared_round"`
	Citation               string    `json:"citation"`
	Willful                bool      `json:"willful"`
	Rationale              string    `json:"rationale"`
	CreatedAt              time.Time `json:"created_at"`
}
