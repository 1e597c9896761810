package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dispute-reconciliation-backend/internal/extraction"
	"dispute-reconciliation-backend/internal/models"
	"dispute-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
)

var (
	// ErrInvalidBureau signals an unrecognized bureau value.
	ErrInvalidBureau = errors.New("reconciliation: invalid bureau")
	// ErrInvalidRound signals a non-positive dispute round.
	ErrInvalidRound = errors.New("reconciliation: round must be positive")
)

// Store is the persistence surface the engine needs. The gorm implementation
// lives in internal/repository; tests substitute an in-memory fake.
type Store interface {
	DisputeItemsForClient(ctx context.Context, clientID uuid.UUID, bureau models.Bureau) ([]models.DisputeItem, error)
	GetDisputeItem(ctx context.Context, id uuid.UUID) (*models.DisputeItem, error)
	UpdateDisputeItemStatus(ctx context.Context, id uuid.UUID, status models.DisputeStatus) error

	CreateResult(ctx context.Context, result *models.ReconciliationResult) error
	GetResult(ctx context.Context, id uuid.UUID) (*models.ReconciliationResult, error)
	ResultsForClient(ctx context.Context, clientID uuid.UUID) ([]models.ReconciliationResult, error)
	MarkResultReviewed(ctx context.Context, id uuid.UUID, reviewer string, at time.Time, note string) error

	CreateViolation(ctx context.Context, v *models.ReinsertionViolation) error
	HasViolation(ctx context.Context, resultID, itemID uuid.UUID, deletedRound, reappearedRound int) (bool, error)

	CreateAuditLog(ctx context.Context, entry *models.StatusAuditLog) error

	// Transact runs fn against a transactional view of the store; any error
	// rolls back everything fn wrote.
	Transact(ctx context.Context, fn func(Store) error) error
}

// Service runs reconciliation and the review/apply workflow.
type Service struct {
	store Store

	// applyLocks serializes Apply per client; concurrent applies for
	// different clients do not block each other. Reconcile is read-only and
	// runs unlocked.
	applyLocks sync.Map // client uuid.UUID -> *sync.Mutex
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Reconcile parses one extraction payload and reconciles it against the
// client's ledger snapshot for the bureau. It never mutates the ledger; the
// durable result it creates is the only output. A malformed payload still
// produces a valid, reviewable result with the parse-error flag set.
func (s *Service) Reconcile(ctx context.Context, raw []byte, clientID uuid.UUID, bureau models.Bureau, round int) (*models.ReconciliationResult, error) {
	if !bureau.Valid() {
		return nil, ErrInvalidBureau
	}
	if round < 1 {
		return nil, ErrInvalidRound
	}

	result := &models.ReconciliationResult{
		ID:        uuid.New(),
		ClientID:  clientID,
		Bureau:    bureau,
		Round:     round,
		CreatedAt: time.Now(),
	}

	payload, err := extraction.ParsePayload(raw)
	if err != nil {
		log.Println("reconciliation: extraction payload unusable:", err)
		result.ParseError = true
		result.Matches = mustJSON([]models.MatchResult{})
		result.Violations = mustJSON([]models.ReinsertionViolation{})
		if json.Valid(raw) {
			result.RawPayload = raw
		}
		if err := s.store.CreateResult(ctx, result); err != nil {
			return nil, fmt.Errorf("reconciliation: persist result: %w", err)
		}
		return result, nil
	}
	result.RawPayload = raw

	candidates, err := s.store.DisputeItemsForClient(ctx, clientID, bureau)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: load ledger: %w", err)
	}

	matches := make([]models.MatchResult, 0, len(payload.Items))
	violations := make([]models.ReinsertionViolation, 0)

	for _, item := range payload.Items {
		mr := models.MatchResult{Item: item}

		matched, confidence := matching.MatchItem(item, candidates)
		if matched == nil {
			mr.Warning = "no matching dispute item on file; may be an untracked account"
			matches = append(matches, mr)
			continue
		}
		mr.DisputeItemID = &matched.ID
		mr.Confidence = confidence
		prior := matched.Status
		mr.PriorStatus = &prior

		target, ok := TargetStatus(item.Result)
		if !ok {
			mr.Warning = fmt.Sprintf("unrecognized outcome %q; no transition staged", item.Result)
			matches = append(matches, mr)
			continue
		}
		mr.TargetStatus = &target

		if v := DetectReinsertion(matched, target, round, candidates); v != nil {
			v.ReconciliationResultID = result.ID
			violations = append(violations, *v)
		}
		matches = append(matches, mr)
	}

	result.Matches = mustJSON(matches)
	result.Violations = mustJSON(violations)

	if err := s.store.CreateResult(ctx, result); err != nil {
		return nil, fmt.Errorf("reconciliation: persist result: %w", err)
	}
	return result, nil
}

// ApplyOutcome reports what one Apply call committed.
type ApplyOutcome struct {
	UpdatesApplied int                           `json:"updates_applied"`
	Conflicts      []uuid.UUID                   `json:"conflicts"`
	Violations     []models.ReinsertionViolation `json:"violations_created"`
	ReviewedBy     string                        `json:"reviewed_by"`
	ReviewedAt     time.Time                     `json:"reviewed_at"`
}

// Apply commits a reviewed reconciliation: every match with a dispute item
// and a target status becomes a ledger status change, every carried
// violation becomes a durable violation row, and the result is stamped
// reviewed. All of it commits or none of it does; on error the result stays
// unreviewed and the call can be retried.
//
// overrides, when non-nil, replaces the stored match list so a reviewer can
// correct a low-confidence or absent match before committing.
//
// Each target item's status is re-read inside the transaction: a row whose
// fresh status already equals the target is a no-op, and a row whose fresh
// status differs from the status seen at detection time is skipped and
// reported as a conflict rather than overwritten.
func (s *Service) Apply(ctx context.Context, resultID uuid.UUID, staff string, overrides []models.MatchResult) (*ApplyOutcome, error) {
	result, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: load result: %w", err)
	}

	mu := s.applyLock(result.ClientID)
	mu.Lock()
	defer mu.Unlock()

	matches := overrides
	if matches == nil {
		if err := json.Unmarshal(result.Matches, &matches); err != nil {
			return nil, fmt.Errorf("reconciliation: decode stored matches: %w", err)
		}
	}
	var violations []models.ReinsertionViolation
	if len(result.Violations) > 0 {
		if err := json.Unmarshal(result.Violations, &violations); err != nil {
			return nil, fmt.Errorf("reconciliation: decode stored violations: %w", err)
		}
	}

	now := time.Now()
	outcome := &ApplyOutcome{
		Conflicts:  []uuid.UUID{},
		Violations: []models.ReinsertionViolation{},
		ReviewedBy: staff,
		ReviewedAt: now,
	}

	err = s.store.Transact(ctx, func(tx Store) error {
		for _, m := range matches {
			if m.DisputeItemID == nil || m.TargetStatus == nil {
				continue
			}
			fresh, err := tx.GetDisputeItem(ctx, *m.DisputeItemID)
			if err != nil {
				return fmt.Errorf("re-read item %s: %w", m.DisputeItemID, err)
			}
			if fresh.Status == *m.TargetStatus {
				continue
			}
			if m.PriorStatus != nil && fresh.Status != *m.PriorStatus {
				outcome.Conflicts = append(outcome.Conflicts, fresh.ID)
				continue
			}
			if err := tx.UpdateDisputeItemStatus(ctx, fresh.ID, *m.TargetStatus); err != nil {
				return fmt.Errorf("update item %s: %w", fresh.ID, err)
			}
			itemID := fresh.ID
			if err := tx.CreateAuditLog(ctx, &models.StatusAuditLog{
				ID:                     uuid.New(),
				DisputeItemID:          &itemID,
				ReconciliationResultID: result.ID,
				PreviousStatus:         string(fresh.Status),
				NewStatus:              string(*m.TargetStatus),
				PerformedBy:            staff,
				Note:                   fmt.Sprintf("status %s -> %s on reconciliation apply", fresh.Status, *m.TargetStatus),
				CreatedAt:              now,
			}); err != nil {
				return fmt.Errorf("audit item %s: %w", fresh.ID, err)
			}
			outcome.UpdatesApplied++
		}

		for _, v := range violations {
			exists, err := tx.HasViolation(ctx, result.ID, v.DisputeItemID, v.DeletedRound, v.ReappearedRound)
			if err != nil {
				return fmt.Errorf("check violation: %w", err)
			}
			if exists {
				continue
			}
			v.ID = uuid.New()
			v.ReconciliationResultID = result.ID
			v.CreatedAt = now
			if err := tx.CreateViolation(ctx, &v); err != nil {
				return fmt.Errorf("create violation: %w", err)
			}
			outcome.Violations = append(outcome.Violations, v)
		}

		note := fmt.Sprintf("applied %d status update(s), %d conflict(s), %d violation(s) recorded",
			outcome.UpdatesApplied, len(outcome.Conflicts), len(outcome.Violations))
		if err := tx.MarkResultReviewed(ctx, result.ID, staff, now, note); err != nil {
			return fmt.Errorf("mark reviewed: %w", err)
		}
		return tx.CreateAuditLog(ctx, &models.StatusAuditLog{
			ID:                     uuid.New(),
			ReconciliationResultID: result.ID,
			PerformedBy:            staff,
			Note:                   note,
			CreatedAt:              now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation: apply: %w", err)
	}
	return outcome, nil
}

// Results lists a client's reconciliation runs for review.
func (s *Service) Results(ctx context.Context, clientID uuid.UUID) ([]models.ReconciliationResult, error) {
	return s.store.ResultsForClient(ctx, clientID)
}

// Result fetches one run with its full match and violation detail.
func (s *Service) Result(ctx context.Context, id uuid.UUID) (*models.ReconciliationResult, error) {
	return s.store.GetResult(ctx, id)
}

func (s *Service) applyLock(clientID uuid.UUID) *sync.Mutex {
	mu, _ := s.applyLocks.LoadOrStore(clientID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
