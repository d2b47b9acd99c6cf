package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free5gc/hwxapp/internal/indication"
	"github.com/free5gc/hwxapp/pkg/factory"
)

type fakeClock struct {
	current time.Time
}

func (clock *fakeClock) now() time.Time {
	return clock.current
}

func newTestStore(maxItems, ttlSec int) (*memoryStore, *fakeClock) {
	clock := &fakeClock{current: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := newMemoryStore(factory.StorageSection{Driver: "memory", MaxItems: maxItems, TTLSec: ttlSec})
	store.now = clock.now
	return store, clock
}

func summaryFor(nodeID string, sequence int64, receivedAt time.Time) indication.Summary {
	return indication.Summary{NodeID: nodeID, SequenceNumber: &sequence, ReceivedAt: receivedAt}
}

func sequences(summaries []indication.Summary) []int64 {
	result := make([]int64, 0, len(summaries))
	for _, summary := range summaries {
		result = append(result, *summary.SequenceNumber)
	}
	return result
}

func TestNewStoreFromConfig(t *testing.T) {
	store, err := NewStoreFromConfig(factory.StorageSection{Driver: "memory", TTLSec: 30})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, store.TTL())

	_, err = NewStoreFromConfig(factory.StorageSection{Driver: "mongo"})
	assert.Error(t, err)
}

func TestQueryNewestFirstWithFilters(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(0, 0)

	for sequence := int64(1); sequence <= 4; sequence++ {
		node := "gnb-1"
		if sequence%2 == 0 {
			node = "gnb-2"
		}
		require.NoError(t, store.SaveSummary(ctx, summaryFor(node, sequence, clock.current.Add(time.Duration(sequence)*time.Second))))
	}

	all, err := store.QuerySummaries(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3, 2, 1}, sequences(all))

	byNode, err := store.QuerySummaries(ctx, Query{NodeID: "gnb-1"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, sequences(byNode))

	limited, err := store.QuerySummaries(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, sequences(limited))

	since := clock.current.Add(3 * time.Second)
	recent, err := store.QuerySummaries(ctx, Query{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, sequences(recent))
}

func TestMaxItemsDropsOldest(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(3, 0)

	for sequence := int64(1); sequence <= 5; sequence++ {
		require.NoError(t, store.SaveSummary(ctx, summaryFor("gnb-1", sequence, clock.current)))
	}

	all, err := store.QuerySummaries(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3}, sequences(all))
}

func TestTTLExpiryAndVacuum(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(0, 10)

	require.NoError(t, store.SaveSummary(ctx, summaryFor("gnb-1", 1, clock.current)))
	clock.current = clock.current.Add(6 * time.Second)
	require.NoError(t, store.SaveSummary(ctx, summaryFor("gnb-1", 2, clock.current)))

	clock.current = clock.current.Add(6 * time.Second)
	visible, err := store.QuerySummaries(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, sequences(visible))
	assert.Len(t, store.entries, 2)

	require.NoError(t, store.Vacuum(ctx))
	assert.Len(t, store.entries, 1)
}

func TestDeleteByNode(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(0, 0)

	require.NoError(t, store.SaveSummary(ctx, summaryFor("gnb-1", 1, clock.current)))
	require.NoError(t, store.SaveSummary(ctx, summaryFor("gnb-2", 2, clock.current)))
	require.NoError(t, store.SaveSummary(ctx, summaryFor("gnb-1", 3, clock.current)))

	dropped, err := store.DeleteByNode(ctx, "gnb-1")
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	remaining, err := store.QuerySummaries(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, sequences(remaining))

	dropped, err = store.DeleteByNode(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, dropped)
}

func TestConsumeStoresReportSummary(t *testing.T) {
	store, _ := newTestStore(0, 0)
	sequence := int64(9)

	store.Consume(context.Background(), &indication.Report{NodeID: "gnb-7", SequenceNumber: &sequence})

	stored, err := store.QuerySummaries(context.Background(), Query{NodeID: "gnb-7"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(9), *stored[0].SequenceNumber)
}

func TestCancelledContext(t *testing.T) {
	store, clock := newTestStore(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.SaveSummary(ctx, summaryFor("gnb-1", 1, clock.current)), context.Canceled)
}
