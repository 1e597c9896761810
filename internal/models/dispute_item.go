package models

import (
	"time"

	"github.com/google/uuid"
)

// Bureau is one of the credit-reporting agencies the practice disputes with.
type Bureau string

const (
	BureauEquifax    Bureau = "equifax"
	BureauExperian   Bureau = "experian"
	BureauTransUnion Bureau = "transunion"
)

func (b Bureau) Valid() bool {
	switch b {
	case BureauEquifax, BureauExperian, BureauTransUnion:
		return true
	}
	return false
}

// DisputeStatus is the canonical ledger status of a tracked account.
type DisputeStatus string

const (
	StatusPending       DisputeStatus = "pending"
	StatusInvestigating DisputeStatus = "investigating"
	StatusUpdated       DisputeStatus = "updated"
	StatusVerified      DisputeStatus = "verified"
	// StatusDeleted is a terminal business state, not row deletion.
	StatusDeleted DisputeStatus = "deleted"
)

func (s DisputeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInvestigating, StatusUpdated, StatusVerified, StatusDeleted:
		return true
	}
	return false
}

// DisputeItem is one tracked negative account on a client's ledger for one
// bureau and one dispute round. A new round creates a new row rather than
// mutating the old one, which is what makes reinsertion detectable.
type DisputeItem struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID      uuid.UUID     `gorm:"index" json:"client_id"`
	Bureau        Bureau        `gorm:"index" json:"bureau"`
	CreditorName  string        `gorm:"index" json:"creditor_name"`
	AccountNumber string        `json:"account_number"`
	DisputeRound  int           `json:"dispute_round"`
	Status        DisputeStatus `gorm:"index" json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
