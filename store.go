package herald

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ResolveOutcome is the result of matching a reported device result against
// the plan's outstanding device actions.
type ResolveOutcome string

const (
	// ResolveApplied means the result matched an outstanding action and was
	// recorded.
	ResolveApplied ResolveOutcome = "applied"

	// ResolveAlreadyResolved means the same actionID/idempotencyKey pair was
	// already reported; the prior result is returned and nothing reapplied.
	ResolveAlreadyResolved ResolveOutcome = "already_resolved"

	// ResolveUnknown means no outstanding action matches; the report is
	// rejected as stale or invalid.
	ResolveUnknown ResolveOutcome = "unknown"
)

// ResolveResult is the outcome of a single device action resolution.
type ResolveResult struct {
	Outcome ResolveOutcome

	// Recorded is the result now on record for the action. For replays it is
	// the previously recorded result, not the incoming one.
	Recorded DeviceActionResult

	// Outstanding is the number of device actions still awaiting a result
	// after this resolution.
	Outstanding int
}

// PlanStore owns the lifetime of ActionPlans between planning, confirmation
// and device-result reconciliation. It is the single source of truth for
// which device actions are still outstanding for a plan.
type PlanStore interface {
	Create(ctx context.Context, plan *ActionPlan, status PlanStatus, prompt string) error
	Get(ctx context.Context, planID string) (*ActionPlan, PlanStatus, error)

	// TakePendingConfirmation atomically transitions a pending plan to
	// executed state and returns it. It fails with ErrPlanNotPending if the
	// plan is in any other state.
	TakePendingConfirmation(ctx context.Context, planID string) (*ActionPlan, error)

	MarkOutstandingDeviceActions(ctx context.Context, planID string, actions []DeviceAction) error
	OutstandingDeviceActions(ctx context.Context, planID string) ([]DeviceAction, error)

	// ResolveDeviceAction atomically matches, deduplicates and records a
	// device result. Concurrent resolutions of the same plan are serialized.
	ResolveDeviceAction(ctx context.Context, planID, actionID, idempotencyKey string, result DeviceActionResult) (*ResolveResult, error)

	Expire(ctx context.Context, planID string) error
}

type outstandingAction struct {
	action DeviceAction
	result *DeviceActionResult
}

type planRecord struct {
	mu          sync.Mutex
	plan        *ActionPlan
	status      PlanStatus
	prompt      string
	outstanding map[string]*outstandingAction
	expiresAt   time.Time

	// gone is set under mu when the record is removed from the store, so a
	// caller that fetched the record before removal cannot apply to it.
	gone error
}

func (r *planRecord) unresolvedCount() int {
	n := 0
	for _, entry := range r.outstanding {
		if entry.result == nil {
			n++
		}
	}
	return n
}

// DefaultPlanTTL bounds how long an unconfirmed or unreconciled plan is
// kept before any late confirmation or result is rejected.
const DefaultPlanTTL = 5 * time.Minute

// MemoryPlanStore is an in-memory PlanStore. Operations on different plans
// proceed in parallel; operations on the same plan are serialized by a
// per-record mutex.
type MemoryPlanStore struct {
	mu     sync.RWMutex
	plans  map[string]*planRecord
	closed bool

	ttl  time.Duration
	now  func() time.Time
	done chan struct{}
}

// StoreOption configures a MemoryPlanStore.
type StoreOption func(*MemoryPlanStore)

// WithPlanTTL sets the expiry window for stored plans.
func WithPlanTTL(ttl time.Duration) StoreOption {
	return func(s *MemoryPlanStore) {
		s.ttl = ttl
	}
}

// WithStoreClock overrides the store's time source.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *MemoryPlanStore) {
		s.now = now
	}
}

// NewMemoryPlanStore creates a memory-backed plan store and starts its
// expiry sweeper. Call Close to stop the sweeper.
func NewMemoryPlanStore(options ...StoreOption) *MemoryPlanStore {
	store := &MemoryPlanStore{
		plans: make(map[string]*planRecord),
		ttl:   DefaultPlanTTL,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	for _, opt := range options {
		opt(store)
	}

	go store.sweepLoop()

	return store
}

func (s *MemoryPlanStore) sweepLoop() {
	interval := s.ttl / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryPlanStore) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for planID, rec := range s.plans {
		rec.mu.Lock()
		expired := now.After(rec.expiresAt)
		rec.mu.Unlock()
		if expired {
			s.remove(planID, rec, ErrPlanExpired)
		}
	}
}

// remove takes a record out of the map and marks it dead under its own
// lock. The caller must hold s.mu.
func (s *MemoryPlanStore) remove(planID string, rec *planRecord, cause error) {
	rec.mu.Lock()
	rec.gone = cause
	rec.mu.Unlock()
	delete(s.plans, planID)
}

// Close stops the expiry sweeper and rejects further operations.
func (s *MemoryPlanStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// Create stores a plan under its PlanID.
func (s *MemoryPlanStore) Create(ctx context.Context, plan *ActionPlan, status PlanStatus, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return goerr.Wrap(ErrStoreClosed, "cannot create plan")
	}
	if _, exists := s.plans[plan.PlanID]; exists {
		return goerr.New("plan already exists", goerr.V("plan_id", plan.PlanID))
	}

	s.plans[plan.PlanID] = &planRecord{
		plan:        plan,
		status:      status,
		prompt:      prompt,
		outstanding: make(map[string]*outstandingAction),
		expiresAt:   s.now().Add(s.ttl),
	}
	return nil
}

// record fetches a live record, expiring it in passing if its TTL elapsed.
func (s *MemoryPlanStore) record(planID string) (*planRecord, error) {
	s.mu.RLock()
	rec, ok := s.plans[planID]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return nil, goerr.Wrap(ErrStoreClosed, "cannot access plan")
	}
	if !ok {
		return nil, goerr.Wrap(ErrPlanNotFound, "no such plan", goerr.V("plan_id", planID))
	}

	rec.mu.Lock()
	expiresAt := rec.expiresAt
	rec.mu.Unlock()

	if s.now().After(expiresAt) {
		s.mu.Lock()
		if cur, ok := s.plans[planID]; ok && cur == rec {
			s.remove(planID, rec, ErrPlanExpired)
		}
		s.mu.Unlock()
		return nil, goerr.Wrap(ErrPlanExpired, "plan TTL elapsed", goerr.V("plan_id", planID))
	}

	return rec, nil
}

// Get returns the stored plan and its status.
func (s *MemoryPlanStore) Get(ctx context.Context, planID string) (*ActionPlan, PlanStatus, error) {
	rec, err := s.record(planID)
	if err != nil {
		return nil, "", err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.gone != nil {
		return nil, "", goerr.Wrap(rec.gone, "plan was removed", goerr.V("plan_id", planID))
	}
	return rec.plan, rec.status, nil
}

// TakePendingConfirmation transitions a pending plan to executed state.
func (s *MemoryPlanStore) TakePendingConfirmation(ctx context.Context, planID string) (*ActionPlan, error) {
	rec, err := s.record(planID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.gone != nil {
		return nil, goerr.Wrap(rec.gone, "plan was removed", goerr.V("plan_id", planID))
	}
	if rec.status != StatusPendingConfirmation {
		return nil, goerr.Wrap(ErrPlanNotPending, "plan was already confirmed or executed",
			goerr.V("plan_id", planID), goerr.V("status", rec.status))
	}

	rec.status = StatusExecuted
	rec.prompt = ""
	// Give the confirmed plan a fresh window for device reconciliation.
	rec.expiresAt = s.now().Add(s.ttl)

	return rec.plan, nil
}

// MarkOutstandingDeviceActions registers dispatched device actions as
// awaiting results. Actions are keyed by their idempotency key: a
// re-minted action for a step replaces the unresolved entry it supersedes,
// and a step whose result is already recorded is not reopened.
func (s *MemoryPlanStore) MarkOutstandingDeviceActions(ctx context.Context, planID string, actions []DeviceAction) error {
	rec, err := s.record(planID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.gone != nil {
		return goerr.Wrap(rec.gone, "plan was removed", goerr.V("plan_id", planID))
	}

	for _, action := range actions {
		settled := false
		for id, entry := range rec.outstanding {
			if entry.action.IdempotencyKey != action.IdempotencyKey {
				continue
			}
			if entry.result != nil {
				settled = true
			} else {
				delete(rec.outstanding, id)
			}
			break
		}
		if settled {
			continue
		}
		rec.outstanding[action.ActionID] = &outstandingAction{action: action}
	}
	if rec.unresolvedCount() > 0 {
		rec.status = StatusAwaitingDevice
	}
	return nil
}

// OutstandingDeviceActions returns the device actions still awaiting a
// result.
func (s *MemoryPlanStore) OutstandingDeviceActions(ctx context.Context, planID string) ([]DeviceAction, error) {
	rec, err := s.record(planID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.gone != nil {
		return nil, goerr.Wrap(rec.gone, "plan was removed", goerr.V("plan_id", planID))
	}

	var actions []DeviceAction
	for _, entry := range rec.outstanding {
		if entry.result == nil {
			actions = append(actions, entry.action)
		}
	}
	return actions, nil
}

// ResolveDeviceAction matches a device result against the plan's
// outstanding actions under the plan's lock, making replay detection
// race-free.
func (s *MemoryPlanStore) ResolveDeviceAction(ctx context.Context, planID, actionID, idempotencyKey string, result DeviceActionResult) (*ResolveResult, error) {
	rec, err := s.record(planID)
	if err != nil {
		return nil, err
	}
	return s.resolveOn(rec, planID, actionID, idempotencyKey, result)
}

// resolveOn applies a device result to a fetched record. The record may
// have been swept between the lookup and here, so liveness is re-checked
// under the record's lock before anything is recorded.
func (s *MemoryPlanStore) resolveOn(rec *planRecord, planID, actionID, idempotencyKey string, result DeviceActionResult) (*ResolveResult, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.gone != nil {
		return nil, goerr.Wrap(rec.gone, "plan was removed", goerr.V("plan_id", planID))
	}

	entry, ok := rec.outstanding[actionID]
	if !ok || entry.action.IdempotencyKey != idempotencyKey {
		return &ResolveResult{
			Outcome:     ResolveUnknown,
			Outstanding: rec.unresolvedCount(),
		}, nil
	}

	if entry.result != nil {
		return &ResolveResult{
			Outcome:     ResolveAlreadyResolved,
			Recorded:    *entry.result,
			Outstanding: rec.unresolvedCount(),
		}, nil
	}

	recorded := result
	entry.result = &recorded

	remaining := rec.unresolvedCount()
	if remaining == 0 {
		rec.status = StatusReconciled
	}

	return &ResolveResult{
		Outcome:     ResolveApplied,
		Recorded:    recorded,
		Outstanding: remaining,
	}, nil
}

// Expire removes a plan regardless of its state. Subsequent references to
// the plan are rejected as unknown.
func (s *MemoryPlanStore) Expire(ctx context.Context, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.plans[planID]
	if !ok {
		return goerr.Wrap(ErrPlanNotFound, "no such plan", goerr.V("plan_id", planID))
	}
	s.remove(planID, rec, ErrPlanNotFound)
	return nil
}
