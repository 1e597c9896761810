package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dispute-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store. Transact runs the callback against a
// deep copy and commits it back only on success, so rollback behavior is
// observable in tests.
type fakeStore struct {
	mu         sync.Mutex
	items      map[uuid.UUID]models.DisputeItem
	results    map[uuid.UUID]models.ReconciliationResult
	violations []models.ReinsertionViolation
	audits     []models.StatusAuditLog

	updates      int
	failOnUpdate int // 1-based update call that fails; 0 never fails
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:   make(map[uuid.UUID]models.DisputeItem),
		results: make(map[uuid.UUID]models.ReconciliationResult),
	}
}

func (f *fakeStore) clone() *fakeStore {
	c := newFakeStore()
	for k, v := range f.items {
		c.items[k] = v
	}
	for k, v := range f.results {
		c.results[k] = v
	}
	c.violations = append([]models.ReinsertionViolation(nil), f.violations...)
	c.audits = append([]models.StatusAuditLog(nil), f.audits...)
	c.updates = f.updates
	c.failOnUpdate = f.failOnUpdate
	return c
}

func (f *fakeStore) DisputeItemsForClient(_ context.Context, clientID uuid.UUID, bureau models.Bureau) ([]models.DisputeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DisputeItem
	for _, item := range f.items {
		if item.ClientID == clientID && item.Bureau == bureau {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) GetDisputeItem(_ context.Context, id uuid.UUID) (*models.DisputeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &item, nil
}

func (f *fakeStore) UpdateDisputeItemStatus(_ context.Context, id uuid.UUID, status models.DisputeStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.failOnUpdate > 0 && f.updates >= f.failOnUpdate {
		return errors.New("simulated persistence failure")
	}
	item, ok := f.items[id]
	if !ok {
		return errors.New("not found")
	}
	item.Status = status
	f.items[id] = item
	return nil
}

func (f *fakeStore) CreateResult(_ context.Context, result *models.ReconciliationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[result.ID] = *result
	return nil
}

func (f *fakeStore) GetResult(_ context.Context, id uuid.UUID) (*models.ReconciliationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &result, nil
}

func (f *fakeStore) ResultsForClient(_ context.Context, clientID uuid.UUID) ([]models.ReconciliationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ReconciliationResult
	for _, r := range f.results {
		if r.ClientID == clientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkResultReviewed(_ context.Context, id uuid.UUID, reviewer string, at time.Time, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[id]
	if !ok {
		return errors.New("not found")
	}
	result.Reviewed = true
	result.ReviewedBy = reviewer
	result.ReviewedAt = &at
	result.AuditNote = note
	f.results[id] = result
	return nil
}

func (f *fakeStore) CreateViolation(_ context.Context, v *models.ReinsertionViolation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, *v)
	return nil
}

func (f *fakeStore) HasViolation(_ context.Context, resultID, itemID uuid.UUID, deletedRound, reappearedRound int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.violations {
		if v.ReconciliationResultID == resultID && v.DisputeItemID == itemID &&
			v.DeletedRound == deletedRound && v.ReappearedRound == reappearedRound {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateAuditLog(_ context.Context, entry *models.StatusAuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, *entry)
	return nil
}

func (f *fakeStore) Transact(ctx context.Context, fn func(Store) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.clone()
	if err := fn(c); err != nil {
		return err
	}
	f.items = c.items
	f.results = c.results
	f.violations = c.violations
	f.audits = c.audits
	f.updates = c.updates
	f.failOnUpdate = c.failOnUpdate
	return nil
}

var (
	testClient = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	testItemID = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
)

func seedDeletedCapitalOne(store *fakeStore) {
	store.items[testItemID] = models.DisputeItem{
		ID:            testItemID,
		ClientID:      testClient,
		Bureau:        models.BureauExperian,
		CreditorName:  "Capital One",
		AccountNumber: "1234",
		DisputeRound:  1,
		Status:        models.StatusDeleted,
	}
}

func verifiedCapitalOnePayload() []byte {
	return []byte(`{
		"response_type": "investigation_results",
		"response_date": "2024-05-01",
		"items": [{
			"creditor_name": "CAPITAL ONE BANK",
			"account_number": "****1234",
			"result": "verified",
			"reason": "account meets FCRA standards",
			"changes_made": null
		}]
	}`)
}

func decodeMatches(t *testing.T, result *models.ReconciliationResult) []models.MatchResult {
	t.Helper()
	var matches []models.MatchResult
	if err := json.Unmarshal(result.Matches, &matches); err != nil {
		t.Fatalf("decode matches: %v", err)
	}
	return matches
}

func decodeViolations(t *testing.T, result *models.ReconciliationResult) []models.ReinsertionViolation {
	t.Helper()
	var violations []models.ReinsertionViolation
	if err := json.Unmarshal(result.Violations, &violations); err != nil {
		t.Fatalf("decode violations: %v", err)
	}
	return violations
}

func TestReconcile_DetectsReinsertion(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	svc := NewService(store)

	result, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	matches := decodeMatches(t, result)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.DisputeItemID == nil || *m.DisputeItemID != testItemID {
		t.Fatal("expected match against the seeded item")
	}
	if m.Confidence < 0.9 {
		t.Errorf("expected confidence >= 0.9, got %v", m.Confidence)
	}
	if m.TargetStatus == nil || *m.TargetStatus != models.StatusVerified {
		t.Error("expected target status verified")
	}
	if m.PriorStatus == nil || *m.PriorStatus != models.StatusDeleted {
		t.Error("expected prior status deleted")
	}

	violations := decodeViolations(t, result)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	v := violations[0]
	if v.DeletedRound != 1 || v.ReappearedRound != 3 {
		t.Errorf("expected rounds 1 -> 3, got %d -> %d", v.DeletedRound, v.ReappearedRound)
	}

	if _, ok := store.results[result.ID]; !ok {
		t.Error("result not persisted")
	}
	if store.items[testItemID].Status != models.StatusDeleted {
		t.Error("reconcile must not mutate the ledger")
	}
}

func TestReconcile_UnmatchedItemKeptWithWarning(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	svc := NewService(store)

	payload := []byte(`{"items":[{"creditor_name":"Unrelated Furnisher","account_number":"9999","result":"verified","reason":"","changes_made":null}]}`)
	result, err := svc.Reconcile(context.Background(), payload, testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	matches := decodeMatches(t, result)
	if len(matches) != 1 {
		t.Fatalf("expected unmatched item to be retained, got %d matches", len(matches))
	}
	if matches[0].DisputeItemID != nil {
		t.Error("expected no dispute item")
	}
	if matches[0].Warning == "" {
		t.Error("expected a warning on the unmatched item")
	}
	if len(decodeViolations(t, result)) != 0 {
		t.Error("no violation expected for an unmatched item")
	}
}

func TestReconcile_UnknownOutcomeIsNoTransition(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	svc := NewService(store)

	payload := []byte(`{"items":[{"creditor_name":"Capital One","account_number":"1234","result":"frivolous_claim_unknown_value","reason":"","changes_made":null}]}`)
	result, err := svc.Reconcile(context.Background(), payload, testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	matches := decodeMatches(t, result)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].TargetStatus != nil {
		t.Error("expected no transition for unrecognized outcome")
	}
	if matches[0].Warning == "" {
		t.Error("expected a warning for unrecognized outcome")
	}
	if len(decodeViolations(t, result)) != 0 {
		t.Error("no violation expected without a staged transition")
	}
}

func TestReconcile_MalformedPayloadYieldsParseErrorResult(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	result, err := svc.Reconcile(context.Background(), []byte("this is not json"), testClient, models.BureauExperian, 1)
	if err != nil {
		t.Fatalf("parse failure must not fail the run: %v", err)
	}
	if !result.ParseError {
		t.Error("expected parse-error flag")
	}
	if len(decodeMatches(t, result)) != 0 {
		t.Error("expected zero matches")
	}
	if _, ok := store.results[result.ID]; !ok {
		t.Error("parse-error result must still be persisted for review")
	}
}

func TestReconcile_Validation(t *testing.T) {
	svc := NewService(newFakeStore())

	if _, err := svc.Reconcile(context.Background(), nil, testClient, models.Bureau("unknown"), 1); !errors.Is(err, ErrInvalidBureau) {
		t.Errorf("expected ErrInvalidBureau, got %v", err)
	}
	if _, err := svc.Reconcile(context.Background(), nil, testClient, models.BureauEquifax, 0); !errors.Is(err, ErrInvalidRound) {
		t.Errorf("expected ErrInvalidRound, got %v", err)
	}
}

func TestReconcile_IdempotentAgainstUnchangedLedger(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	svc := NewService(store)

	first, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("each run must create a new result")
	}

	if !reflect.DeepEqual(decodeMatches(t, first), decodeMatches(t, second)) {
		t.Error("expected identical matches across runs")
	}

	v1 := decodeViolations(t, first)
	v2 := decodeViolations(t, second)
	if len(v1) != 1 || len(v2) != 1 {
		t.Fatalf("expected one violation per run, got %d and %d", len(v1), len(v2))
	}
	if v1[0].DisputeItemID != v2[0].DisputeItemID ||
		v1[0].DeletedRound != v2[0].DeletedRound ||
		v1[0].ReappearedRound != v2[0].ReappearedRound {
		t.Error("expected identical violations modulo generated ids")
	}
}

func TestApply_CommitsUpdatesViolationsAndReview(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	svc := NewService(store)

	result, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	outcome, err := svc.Apply(context.Background(), result.ID, "paralegal@firm.test", nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.UpdatesApplied != 1 {
		t.Errorf("expected 1 update, got %d", outcome.UpdatesApplied)
	}
	if len(outcome.Violations) != 1 {
		t.Errorf("expected 1 violation created, got %d", len(outcome.Violations))
	}
	if store.items[testItemID].Status != models.StatusVerified {
		t.Error("expected ledger status verified after apply")
	}
	if len(store.violations) != 1 {
		t.Fatalf("expected 1 durable violation, got %d", len(store.violations))
	}
	if !store.violations[0].Willful {
		t.Error("expected willful flag on the durable violation record")
	}

	stored := store.results[result.ID]
	if !stored.Reviewed || stored.ReviewedBy != "paralegal@firm.test" || stored.ReviewedAt == nil {
		t.Error("expected the result stamped reviewed")
	}
	if len(store.audits) < 2 {
		t.Errorf("expected per-update and summary audit entries, got %d", len(store.audits))
	}
	for _, a := range store.audits {
		if a.DisputeItemID != nil && a.PreviousStatus != string(models.StatusDeleted) {
			t.Errorf("audit entry should record prior status deleted, got %q", a.PreviousStatus)
		}
	}
}

func TestApply_AtomicOnPersistenceFailure(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	secondID := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	store.items[secondID] = models.DisputeItem{
		ID:            secondID,
		ClientID:      testClient,
		Bureau:        models.BureauExperian,
		CreditorName:  "Chase Bank",
		AccountNumber: "5678",
		DisputeRound:  1,
		Status:        models.StatusPending,
	}
	svc := NewService(store)

	payload := []byte(`{"items":[
		{"creditor_name":"CAPITAL ONE BANK","account_number":"****1234","result":"verified","reason":"","changes_made":null},
		{"creditor_name":"Chase Bank","account_number":"5678","result":"deleted","reason":"","changes_made":null}
	]}`)
	result, err := svc.Reconcile(context.Background(), payload, testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	store.failOnUpdate = 2
	if _, err := svc.Apply(context.Background(), result.ID, "paralegal@firm.test", nil); err == nil {
		t.Fatal("expected apply to fail")
	}

	if store.items[testItemID].Status != models.StatusDeleted {
		t.Error("first update must be rolled back")
	}
	if store.items[secondID].Status != models.StatusPending {
		t.Error("second item must be untouched")
	}
	if len(store.violations) != 0 {
		t.Error("no violation rows may survive a failed apply")
	}
	if store.results[result.ID].Reviewed {
		t.Error("result must stay unreviewed so the apply can be retried")
	}
}

func TestApply_SecondRunReportsNothingNew(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	svc := NewService(store)

	result, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if _, err := svc.Apply(context.Background(), result.ID, "first@firm.test", nil); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	outcome, err := svc.Apply(context.Background(), result.ID, "second@firm.test", nil)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if outcome.UpdatesApplied != 0 {
		t.Errorf("expected zero new updates, got %d", outcome.UpdatesApplied)
	}
	if len(outcome.Violations) != 0 {
		t.Errorf("expected no new violations, got %d", len(outcome.Violations))
	}
	if len(store.violations) != 1 {
		t.Errorf("violations must not be duplicated, got %d", len(store.violations))
	}
}

func TestApply_ConcurrentModificationIsConflictNotOverwrite(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	svc := NewService(store)

	result, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// Another apply changed the row between detection and this apply.
	item := store.items[testItemID]
	item.Status = models.StatusUpdated
	store.items[testItemID] = item

	outcome, err := svc.Apply(context.Background(), result.ID, "paralegal@firm.test", nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.UpdatesApplied != 0 {
		t.Errorf("expected zero updates, got %d", outcome.UpdatesApplied)
	}
	if len(outcome.Conflicts) != 1 || outcome.Conflicts[0] != testItemID {
		t.Errorf("expected the item reported as a conflict, got %v", outcome.Conflicts)
	}
	if store.items[testItemID].Status != models.StatusUpdated {
		t.Error("conflicting row must not be overwritten")
	}
}

func TestApply_StaffOverridesReplaceStoredMatches(t *testing.T) {
	store := newFakeStore()
	seedDeletedCapitalOne(store)
	svc := NewService(store)

	payload := []byte(`{"items":[{"creditor_name":"Unrelated Furnisher","account_number":"9999","result":"updated","reason":"","changes_made":null}]}`)
	result, err := svc.Reconcile(context.Background(), payload, testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// Reviewer links the unmatched item by hand.
	target := models.StatusUpdated
	itemID := testItemID
	overrides := []models.MatchResult{{
		DisputeItemID: &itemID,
		TargetStatus:  &target,
	}}

	outcome, err := svc.Apply(context.Background(), result.ID, "paralegal@firm.test", overrides)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.UpdatesApplied != 1 {
		t.Errorf("expected 1 update from override, got %d", outcome.UpdatesApplied)
	}
	if store.items[testItemID].Status != models.StatusUpdated {
		t.Errorf("expected overridden status applied, got %s", store.items[testItemID].Status)
	}
}

func TestApply_UnknownResult(t *testing.T) {
	svc := NewService(newFakeStore())
	if _, err := svc.Apply(context.Background(), uuid.New(), "paralegal@firm.test", nil); err == nil {
		t.Fatal("expected error for unknown result id")
	}
}

// gatedStore wraps fakeStore so tests can see how many transactions are open
// at once and hold every transaction at a gate until released.
type gatedStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
	open    int32
	maxOpen int32
}

func newGatedStore(base *fakeStore) *gatedStore {
	return &gatedStore{
		fakeStore: base,
		entered:   make(chan struct{}, 4),
		release:   make(chan struct{}),
	}
}

func (g *gatedStore) Transact(ctx context.Context, fn func(Store) error) error {
	open := atomic.AddInt32(&g.open, 1)
	defer atomic.AddInt32(&g.open, -1)
	for {
		max := atomic.LoadInt32(&g.maxOpen)
		if open <= max || atomic.CompareAndSwapInt32(&g.maxOpen, max, open) {
			break
		}
	}
	g.entered <- struct{}{}
	<-g.release
	return g.fakeStore.Transact(ctx, fn)
}

func TestApply_SameClientAppliesSerialize(t *testing.T) {
	base := newFakeStore()
	seedDeletedCapitalOne(base)
	store := newGatedStore(base)
	svc := NewService(store)

	first, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	errs := make(chan error, 2)
	go func() {
		_, err := svc.Apply(context.Background(), first.ID, "a@firm.test", nil)
		errs <- err
	}()
	<-store.entered // first apply is inside its transaction, holding the client lock

	go func() {
		_, err := svc.Apply(context.Background(), second.ID, "b@firm.test", nil)
		errs <- err
	}()
	select {
	case <-store.entered:
		t.Fatal("second same-client apply entered a transaction while the first was still open")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if got := atomic.LoadInt32(&store.maxOpen); got != 1 {
		t.Errorf("same-client applies held %d overlapping transactions, want 1", got)
	}
}

func TestApply_DifferentClientsApplyConcurrently(t *testing.T) {
	base := newFakeStore()
	seedDeletedCapitalOne(base)
	otherClient := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	otherItem := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000003")
	base.items[otherItem] = models.DisputeItem{
		ID:            otherItem,
		ClientID:      otherClient,
		Bureau:        models.BureauExperian,
		CreditorName:  "Chase Bank",
		AccountNumber: "5678",
		DisputeRound:  1,
		Status:        models.StatusPending,
	}
	store := newGatedStore(base)
	svc := NewService(store)

	first, err := svc.Reconcile(context.Background(), verifiedCapitalOnePayload(), testClient, models.BureauExperian, 3)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	payload := []byte(`{"items":[{"creditor_name":"Chase Bank","account_number":"5678","result":"deleted","reason":"","changes_made":null}]}`)
	second, err := svc.Reconcile(context.Background(), payload, otherClient, models.BureauExperian, 2)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	errs := make(chan error, 2)
	go func() {
		_, err := svc.Apply(context.Background(), first.ID, "a@firm.test", nil)
		errs <- err
	}()
	<-store.entered // first client's apply is parked inside its transaction

	go func() {
		_, err := svc.Apply(context.Background(), second.ID, "b@firm.test", nil)
		errs <- err
	}()
	select {
	case <-store.entered: // overlapping transactions for distinct clients
	case <-time.After(time.Second):
		t.Fatal("apply for a different client blocked behind an unrelated client's apply")
	}

	close(store.release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if got := atomic.LoadInt32(&store.maxOpen); got < 2 {
		t.Errorf("expected overlapping transactions for distinct clients, max open was %d", got)
	}
}
