package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Outcome is a bureau-declared result for one item on a response letter.
type Outcome string

const (
	OutcomeDeleted       Outcome = "deleted"
	OutcomeVerified      Outcome = "verified"
	OutcomeUpdated       Outcome = "updated"
	OutcomeInvestigating Outcome = "investigating"
	OutcomeRemains       Outcome = "remains"
)

// ExtractedItem is one machine-extracted line from a bureau response letter.
// It lives only inside a ReconciliationResult, never as its own row.
// Result is kept as the raw gateway string because the gateway may declare
// outcomes outside the recognized set.
type ExtractedItem struct {
	CreditorName  string `json:"creditor_name"`
	AccountNumber string `json:"account_number"`
	Result        string `json:"result"`
	Reason        string `json:"reason"`
	ChangesMade   string `json:"changes_made"`
}

// MatchResult pairs one extracted item with at most one ledger item.
// PriorStatus records the ledger status observed at detection time; Apply
// compares it against a fresh read to catch concurrent modification.
type MatchResult struct {
	Item          ExtractedItem  `json:"item"`
	DisputeItemID *uuid.UUID     `json:"dispute_item_id"`
	Confidence    float64        `json:"confidence"`
	TargetStatus  *DisputeStatus `json:"target_status"`
	PriorStatus   *DisputeStatus `json:"prior_status"`
	Warning       string         `json:"warning,omitempty"`
}

// ReconciliationResult is the durable, append-only record of one
// reconciliation run. Re-running the same letter creates a new row.
type ReconciliationResult struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID   uuid.UUID      `gorm:"index" json:"client_id"`
	Bureau     Bureau         `gorm:"index" json:"bureau"`
	Round      int            `json:"round"`
	RawPayload datatypes.JSON `json:"raw_payload"`
	Matches    datatypes.JSON `json:"matches"`
	Violations datatypes.JSON `json:"violations"`
	ParseError bool           `json:"parse_error"`
	Reviewed   bool           `gorm:"index" json:"reviewed"`
	ReviewedBy string         `json:"reviewed_by"`
	ReviewedAt *time.Time     `json:"reviewed_at"`
	AuditNote  string         `json:"audit_note"`
	CreatedAt  time.Time      `json:"created_at"`
}
