package reconciliation

import (
	"bytes"

	"dispute-reconciliation-backend/internal/models"
	"dispute-reconciliation-backend/internal/services/matching"
)

const reinsertionRationale = "reinsertion of previously deleted information " +
	"without documented cause is itself evidence of inadequate dispute-handling procedure"

// DetectReinsertion decides whether moving a currently-deleted item back to
// verified in the given round reinstates previously deleted information.
// It fires only on deleted -> verified transitions; every other transition is
// exempt by definition.
//
// history is the full set of dispute items for the same client and bureau.
// Among prior-round deletions whose creditor name overlaps the matched
// item's, the most recent one is cited, since that is the deletion the
// current verification most plausibly contradicts; within the same round the
// lowest id wins, so the cited deletion never depends on history ordering.
// A nil or empty creditor name simply fails to overlap; it never panics.
func DetectReinsertion(item *models.DisputeItem, target models.DisputeStatus, round int, history []models.DisputeItem) *models.ReinsertionViolation {
	if item == nil || item.Status != models.StatusDeleted || target != models.StatusVerified {
		return nil
	}

	var prior *models.DisputeItem
	for i := range history {
		h := &history[i]
		if h.Status != models.StatusDeleted || h.DisputeRound >= round {
			continue
		}
		if !matching.NamesOverlap(item.CreditorName, h.CreditorName) {
			continue
		}
		switch {
		case prior == nil, h.DisputeRound > prior.DisputeRound:
			prior = h
		case h.DisputeRound == prior.DisputeRound && bytes.Compare(h.ID[:], prior.ID[:]) < 0:
			prior = h
		}
	}
	if prior == nil {
		return nil
	}

	return &models.ReinsertionViolation{
		ClientID:        item.ClientID,
		Bureau:          item.Bureau,
		DisputeItemID:   prior.ID,
		CreditorName:    prior.CreditorName,
		DeletedRound:    prior.DisputeRound,
		ReappearedRound: round,
		Citation:        models.FCRACitation,
		Willful:         true,
		Rationale:       reinsertionRationale,
	}
}
