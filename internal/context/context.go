// Package context holds the in-memory runtime state of the xApp:
//   - subscription records tracked against the remote registry
//   - the shutdown flag consulted by the lifecycle paths.
//
// Note: This package is named "context", so we alias the standard library
// "context" package to avoid name collisions.
package context

import (
	stdctx "context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/logger"
)

// SubscriptionState is the lifecycle state of one subscription record.
type SubscriptionState int

const (
	StatePending SubscriptionState = iota
	StateActive
	StateTerminating
	StateClosed
)

func (state SubscriptionState) String() string {
	switch state {
	case StatePending:
		return "Pending"
	case StateActive:
		return "Active"
	case StateTerminating:
		return "Terminating"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("SubscriptionState(%d)", int(state))
	}
}

// MarshalText renders the state by name.
func (state SubscriptionState) MarshalText() ([]byte, error) {
	return []byte(state.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (state *SubscriptionState) UnmarshalText(text []byte) error {
	for _, candidate := range []SubscriptionState{StatePending, StateActive, StateTerminating, StateClosed} {
		if candidate.String() == string(text) {
			*state = candidate
			return nil
		}
	}
	return errors.Errorf("unknown subscription state %q", text)
}

// ErrShutdownRequested is returned when a subscription is started after
// shutdown began.
var ErrShutdownRequested = errors.New("shutdown requested")

// ErrRecordNotFound is returned for an unknown record key.
var ErrRecordNotFound = errors.New("subscription record not found")

// SubscriptionRecord is the tracked view of one subscription. Key is local
// and stable for the record's lifetime; ID is the identifier assigned by the
// registry and stays empty while the record is Pending.
type SubscriptionRecord struct {
	Key          string            `json:"key"`
	ID           string            `json:"subscriptionId"`
	TargetNodeID string            `json:"targetNodeId"`
	State        SubscriptionState `json:"state"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// RuntimeContext provides concurrency-safe accessors to subscription records
// and the shutdown flag.
type RuntimeContext interface {
	// ---- Subscription records ----

	// BeginSubscription records a Pending subscription toward targetNodeID and
	// returns its local key.
	BeginSubscription(ctx stdctx.Context, targetNodeID string) (string, error)

	// ActivateSubscription moves a Pending record to Active with the
	// registry-assigned identifier.
	ActivateSubscription(ctx stdctx.Context, key string, subscriptionID string) error

	// SetSubscriptionState moves a record to the given state. Transitions
	// that go backwards are rejected.
	SetSubscriptionState(ctx stdctx.Context, key string, state SubscriptionState) error

	// DiscardSubscription drops a record from tracking. It returns true if the
	// record existed.
	DiscardSubscription(ctx stdctx.Context, key string) bool

	// GetSubscriptionsSnapshot returns a copy of all tracked records in
	// creation order.
	GetSubscriptionsSnapshot() []SubscriptionRecord

	// GetSubscription returns a copy of one record.
	GetSubscription(key string) (SubscriptionRecord, bool)

	// CountSubscriptions returns the number of tracked records in state.
	CountSubscriptions(state SubscriptionState) int

	// ---- Shutdown flag ----

	// SetShutdownRequested marks whether a graceful shutdown has been requested.
	SetShutdownRequested(ctx stdctx.Context, requested bool)

	// IsShutdownRequested returns true if shutdown has been requested.
	IsShutdownRequested() bool
}

// runtimeContextImpl keeps all state in memory guarded by RWMutexes.
type runtimeContextImpl struct {
	mutexForSubscriptions sync.RWMutex
	subscriptionsByKey    map[string]*subscriptionEntry
	nextRecordNumeric     uint64

	mutexForShutdown  sync.RWMutex
	shutdownRequested bool

	now func() time.Time
}

type subscriptionEntry struct {
	record  SubscriptionRecord
	ordinal uint64
}

// NewRuntimeContext creates a new, empty RuntimeContext.
func NewRuntimeContext() RuntimeContext {
	return &runtimeContextImpl{
		subscriptionsByKey: make(map[string]*subscriptionEntry),
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------
// Subscription records
// -----------------------------------------------------------------------------

// BeginSubscription implements RuntimeContext.BeginSubscription.
func (runtime *runtimeContextImpl) BeginSubscription(
	ctx stdctx.Context,
	targetNodeID string,
) (string, error) {
	if targetNodeID == "" {
		return "", errors.New("targetNodeID must not be empty")
	}
	if runtime.IsShutdownRequested() {
		return "", errors.Wrapf(ErrShutdownRequested, "subscribe node=%s", targetNodeID)
	}

	runtime.mutexForSubscriptions.Lock()
	defer runtime.mutexForSubscriptions.Unlock()

	key, ordinal := runtime.allocateRecordKeyLocked()
	createdAt := runtime.now()
	runtime.subscriptionsByKey[key] = &subscriptionEntry{
		ordinal: ordinal,
		record: SubscriptionRecord{
			Key:          key,
			TargetNodeID: targetNodeID,
			State:        StatePending,
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		},
	}

	logger.ContextLog.Debugf("subscription record created key=%s node=%s state=%s", key, targetNodeID, StatePending)
	return key, nil
}

// ActivateSubscription implements RuntimeContext.ActivateSubscription.
func (runtime *runtimeContextImpl) ActivateSubscription(
	ctx stdctx.Context,
	key string,
	subscriptionID string,
) error {
	if subscriptionID == "" {
		return errors.New("subscriptionID must not be empty")
	}

	runtime.mutexForSubscriptions.Lock()
	defer runtime.mutexForSubscriptions.Unlock()

	entry, exists := runtime.subscriptionsByKey[key]
	if !exists {
		return errors.Wrapf(ErrRecordNotFound, "key %q", key)
	}
	if entry.record.State != StatePending {
		return errors.Errorf("record %s is %s, expecting %s", key, entry.record.State, StatePending)
	}

	entry.record.ID = subscriptionID
	entry.record.State = StateActive
	entry.record.UpdatedAt = runtime.now()

	logger.ContextLog.Infof("subscription active key=%s id=%s node=%s", key, subscriptionID, entry.record.TargetNodeID)
	return nil
}

// SetSubscriptionState implements RuntimeContext.SetSubscriptionState.
func (runtime *runtimeContextImpl) SetSubscriptionState(
	ctx stdctx.Context,
	key string,
	state SubscriptionState,
) error {
	runtime.mutexForSubscriptions.Lock()
	defer runtime.mutexForSubscriptions.Unlock()

	entry, exists := runtime.subscriptionsByKey[key]
	if !exists {
		return errors.Wrapf(ErrRecordNotFound, "key %q", key)
	}
	if state < entry.record.State {
		return errors.Errorf("record %s cannot move from %s to %s", key, entry.record.State, state)
	}

	previous := entry.record.State
	entry.record.State = state
	entry.record.UpdatedAt = runtime.now()

	logger.ContextLog.Debugf("subscription state key=%s id=%s %s -> %s", key, entry.record.ID, previous, state)
	return nil
}

// DiscardSubscription implements RuntimeContext.DiscardSubscription.
func (runtime *runtimeContextImpl) DiscardSubscription(ctx stdctx.Context, key string) bool {
	runtime.mutexForSubscriptions.Lock()
	defer runtime.mutexForSubscriptions.Unlock()

	entry, exists := runtime.subscriptionsByKey[key]
	if !exists {
		return false
	}
	delete(runtime.subscriptionsByKey, key)

	logger.ContextLog.Debugf("subscription record dropped key=%s id=%s state=%s", key, entry.record.ID, entry.record.State)
	return true
}

// GetSubscriptionsSnapshot implements RuntimeContext.GetSubscriptionsSnapshot.
func (runtime *runtimeContextImpl) GetSubscriptionsSnapshot() []SubscriptionRecord {
	runtime.mutexForSubscriptions.RLock()
	entries := make([]*subscriptionEntry, 0, len(runtime.subscriptionsByKey))
	for _, entry := range runtime.subscriptionsByKey {
		copyEntry := *entry
		entries = append(entries, &copyEntry)
	}
	runtime.mutexForSubscriptions.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ordinal < entries[j].ordinal })

	result := make([]SubscriptionRecord, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.record)
	}
	return result
}

// GetSubscription implements RuntimeContext.GetSubscription.
func (runtime *runtimeContextImpl) GetSubscription(key string) (SubscriptionRecord, bool) {
	runtime.mutexForSubscriptions.RLock()
	defer runtime.mutexForSubscriptions.RUnlock()

	entry, exists := runtime.subscriptionsByKey[key]
	if !exists {
		return SubscriptionRecord{}, false
	}
	return entry.record, true
}

// CountSubscriptions implements RuntimeContext.CountSubscriptions.
func (runtime *runtimeContextImpl) CountSubscriptions(state SubscriptionState) int {
	runtime.mutexForSubscriptions.RLock()
	defer runtime.mutexForSubscriptions.RUnlock()

	count := 0
	for _, entry := range runtime.subscriptionsByKey {
		if entry.record.State == state {
			count++
		}
	}
	return count
}

// allocateRecordKeyLocked assumes mutexForSubscriptions is held.
func (runtime *runtimeContextImpl) allocateRecordKeyLocked() (string, uint64) {
	runtime.nextRecordNumeric++
	return fmt.Sprintf("rec-%d", runtime.nextRecordNumeric), runtime.nextRecordNumeric
}

// -----------------------------------------------------------------------------
// Shutdown flag
// -----------------------------------------------------------------------------

// SetShutdownRequested implements RuntimeContext.SetShutdownRequested.
func (runtime *runtimeContextImpl) SetShutdownRequested(
	ctx stdctx.Context,
	requested bool,
) {
	runtime.mutexForShutdown.Lock()
	defer runtime.mutexForShutdown.Unlock()
	runtime.shutdownRequested = requested

	logger.ContextLog.Infof("shutdown requested=%t", requested)
}

// IsShutdownRequested implements RuntimeContext.IsShutdownRequested.
func (runtime *runtimeContextImpl) IsShutdownRequested() bool {
	runtime.mutexForShutdown.RLock()
	defer runtime.mutexForShutdown.RUnlock()
	return runtime.shutdownRequested
}
