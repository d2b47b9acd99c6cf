package context

import (
	stdctx "context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionLifecycle(t *testing.T) {
	ctx := stdctx.Background()
	runtime := NewRuntimeContext()

	key, err := runtime.BeginSubscription(ctx, "gnb-1")
	require.NoError(t, err)

	record, found := runtime.GetSubscription(key)
	require.True(t, found)
	assert.Equal(t, StatePending, record.State)
	assert.Empty(t, record.ID)
	assert.Equal(t, 1, runtime.CountSubscriptions(StatePending))

	require.NoError(t, runtime.ActivateSubscription(ctx, key, "abc-123"))
	record, _ = runtime.GetSubscription(key)
	assert.Equal(t, StateActive, record.State)
	assert.Equal(t, "abc-123", record.ID)

	require.NoError(t, runtime.SetSubscriptionState(ctx, key, StateTerminating))
	require.NoError(t, runtime.SetSubscriptionState(ctx, key, StateClosed))
	assert.Error(t, runtime.SetSubscriptionState(ctx, key, StateActive))

	assert.True(t, runtime.DiscardSubscription(ctx, key))
	assert.False(t, runtime.DiscardSubscription(ctx, key))
	assert.Empty(t, runtime.GetSubscriptionsSnapshot())
}

func TestActivateRequiresPendingRecord(t *testing.T) {
	ctx := stdctx.Background()
	runtime := NewRuntimeContext()

	err := runtime.ActivateSubscription(ctx, "rec-404", "abc")
	assert.True(t, errors.Is(err, ErrRecordNotFound))

	key, err := runtime.BeginSubscription(ctx, "gnb-1")
	require.NoError(t, err)
	assert.Error(t, runtime.ActivateSubscription(ctx, key, ""))
	require.NoError(t, runtime.ActivateSubscription(ctx, key, "abc"))
	assert.Error(t, runtime.ActivateSubscription(ctx, key, "def"))
}

func TestBeginRejectedAfterShutdown(t *testing.T) {
	ctx := stdctx.Background()
	runtime := NewRuntimeContext()

	_, err := runtime.BeginSubscription(ctx, "")
	assert.Error(t, err)

	runtime.SetShutdownRequested(ctx, true)
	assert.True(t, runtime.IsShutdownRequested())

	_, err = runtime.BeginSubscription(ctx, "gnb-1")
	assert.True(t, errors.Is(err, ErrShutdownRequested))
	assert.Empty(t, runtime.GetSubscriptionsSnapshot())
}

func TestSnapshotIsOrderedCopy(t *testing.T) {
	ctx := stdctx.Background()
	runtime := NewRuntimeContext()

	nodes := []string{"gnb-3", "gnb-1", "gnb-2"}
	for _, node := range nodes {
		_, err := runtime.BeginSubscription(ctx, node)
		require.NoError(t, err)
	}

	snapshot := runtime.GetSubscriptionsSnapshot()
	require.Len(t, snapshot, 3)
	for index, record := range snapshot {
		assert.Equal(t, nodes[index], record.TargetNodeID)
	}

	snapshot[0].State = StateClosed
	record, _ := runtime.GetSubscription(snapshot[0].Key)
	assert.Equal(t, StatePending, record.State)
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	ctx := stdctx.Background()
	runtime := NewRuntimeContext()

	var waitGroup sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for i := 0; i < 100; i++ {
				_ = runtime.GetSubscriptionsSnapshot()
				_ = runtime.CountSubscriptions(StateActive)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		key, err := runtime.BeginSubscription(ctx, "gnb-1")
		require.NoError(t, err)
		require.NoError(t, runtime.ActivateSubscription(ctx, key, "id"))
	}
	waitGroup.Wait()

	assert.Equal(t, 100, runtime.CountSubscriptions(StateActive))
}

func TestStateRendersByName(t *testing.T) {
	encoded, err := json.Marshal(SubscriptionRecord{Key: "rec-1", State: StateTerminating})
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"state":"Terminating"`)
	assert.Equal(t, "SubscriptionState(9)", SubscriptionState(9).String())
}

func TestRecordJSONRoundTrip(t *testing.T) {
	for _, state := range []SubscriptionState{StatePending, StateActive, StateTerminating, StateClosed} {
		original := SubscriptionRecord{Key: "rec-1", ID: "abc-123", TargetNodeID: "gnb-1", State: state}
		encoded, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded SubscriptionRecord
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		assert.Equal(t, original.State, decoded.State)
		assert.Equal(t, original.ID, decoded.ID)
	}

	var decoded SubscriptionRecord
	assert.Error(t, json.Unmarshal([]byte(`{"state":"Exploded"}`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`{"state":1}`), &decoded))
}
