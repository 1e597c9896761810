package reconciliation

import (
	"strings"

	"dispute-reconciliation-backend/internal/models"
)

// TargetStatus maps a gateway-declared outcome onto the canonical ledger
// status. The mapping is total over the five recognized outcome values;
// anything else reports no transition (ok=false) so the caller surfaces a
// warning instead of applying it. A bureau's "information remains as
// reported" is treated as a re-verification downstream.
func TargetStatus(result string) (models.DisputeStatus, bool) {
	switch models.Outcome(strings.ToLower(strings.TrimSpace(result))) {
	case models.OutcomeDeleted:
		return models.StatusDeleted, true
	case models.OutcomeVerified:
		return models.StatusVerified, true
	case models.OutcomeUpdated:
		return models.StatusUpdated, true
	case models.OutcomeInvestigating:
		return models.StatusInvestigating, true
	case models.OutcomeRemains:
		return models.StatusVerified, true
	default:
		return "", false
	}
}
