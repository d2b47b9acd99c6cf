// Package storage keeps the most recent indication summaries so operators
// can inspect what the E2 nodes reported. The only backend is in memory,
// bounded by maxItems and a TTL.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/indication"
	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/pkg/factory"
)

// Store is the storage interface used by the dispatcher and the status API.
// All operations are safe to be called from concurrent goroutines.
type Store interface {
	indication.Consumer

	// SaveSummary records one indication summary.
	SaveSummary(ctx context.Context, summary indication.Summary) error

	// QuerySummaries returns matching summaries, newest first.
	QuerySummaries(ctx context.Context, query Query) ([]indication.Summary, error)

	// DeleteByNode removes every summary received from nodeID and returns how
	// many were dropped.
	DeleteByNode(ctx context.Context, nodeID string) (int, error)

	// Vacuum removes expired entries. A no-op without a TTL.
	Vacuum(ctx context.Context) error

	// TTL is the configured retention, zero when unbounded.
	TTL() time.Duration
}

// Query defines constraints used when selecting summaries from the store.
type Query struct {
	// NodeID restricts results to one E2 node when non-empty.
	NodeID string

	// Since is an optional lower bound on ReceivedAt.
	Since *time.Time

	// Limit is an optional maximum number of results.
	// If Limit <= 0, no explicit limit is applied.
	Limit int
}

// NewStoreFromConfig creates a Store based on the storage configuration.
func NewStoreFromConfig(storageConfig factory.StorageSection) (Store, error) {
	switch storageConfig.Driver {
	case "memory", "":
		logger.StorageLog.Infof("Using in-memory indication store (maxItems=%d, ttlSec=%d)",
			storageConfig.MaxItems, storageConfig.TTLSec)
		return newMemoryStore(storageConfig), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", storageConfig.Driver)
	}
}

// -----------------------------------------------------------------------------
// In-memory implementation
// -----------------------------------------------------------------------------

type memoryStore struct {
	mutexForEntries sync.RWMutex
	entries         []memoryEntry // oldest first

	maxItems int           // 0 or negative means "no explicit limit"
	ttl      time.Duration // 0 means "no TTL"

	now func() time.Time
}

type memoryEntry struct {
	summary       indication.Summary
	insertionTime time.Time
}

func newMemoryStore(storageConfig factory.StorageSection) *memoryStore {
	var ttlDuration time.Duration
	if storageConfig.TTLSec > 0 {
		ttlDuration = time.Duration(storageConfig.TTLSec) * time.Second
	}

	return &memoryStore{
		entries:  make([]memoryEntry, 0),
		maxItems: storageConfig.MaxItems,
		ttl:      ttlDuration,
		now:      time.Now,
	}
}

// Consume implements indication.Consumer.
func (store *memoryStore) Consume(ctx context.Context, report *indication.Report) {
	if err := store.SaveSummary(ctx, report.Summary()); err != nil {
		logger.StorageLog.Warnf("indication from node=%s not stored: %v", report.NodeID, err)
	}
}

// SaveSummary appends one summary and performs best-effort cleanup based on
// TTL and maxItems.
func (store *memoryStore) SaveSummary(ctx context.Context, summary indication.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := store.now()

	store.mutexForEntries.Lock()
	defer store.mutexForEntries.Unlock()

	if store.ttl > 0 {
		store.removeExpiredLocked(now)
	}

	store.entries = append(store.entries, memoryEntry{
		summary:       summary,
		insertionTime: now,
	})

	if store.maxItems > 0 && len(store.entries) > store.maxItems {
		overflow := len(store.entries) - store.maxItems
		logger.StorageLog.Debugf("indication store reached maxItems=%d, dropping oldest %d entries",
			store.maxItems, overflow)
		// copy so the dropped prefix can be collected
		kept := make([]memoryEntry, store.maxItems)
		copy(kept, store.entries[overflow:])
		store.entries = kept
	}

	return nil
}

// QuerySummaries scans the entries from newest to oldest.
func (store *memoryStore) QuerySummaries(ctx context.Context, query Query) ([]indication.Summary, error) {
	now := store.now()

	store.mutexForEntries.RLock()
	defer store.mutexForEntries.RUnlock()

	results := make([]indication.Summary, 0)
	for index := len(store.entries) - 1; index >= 0; index-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry := store.entries[index]

		// expired entries are skipped here and removed by Vacuum or Save
		if store.ttl > 0 && now.Sub(entry.insertionTime) > store.ttl {
			continue
		}
		if query.NodeID != "" && entry.summary.NodeID != query.NodeID {
			continue
		}
		if query.Since != nil && entry.summary.ReceivedAt.Before(*query.Since) {
			continue
		}

		results = append(results, entry.summary)

		if query.Limit > 0 && len(results) >= query.Limit {
			break
		}
	}

	return results, nil
}

// DeleteByNode implements Store.DeleteByNode.
func (store *memoryStore) DeleteByNode(ctx context.Context, nodeID string) (int, error) {
	if nodeID == "" {
		return 0, nil
	}

	store.mutexForEntries.Lock()
	defer store.mutexForEntries.Unlock()

	filtered := make([]memoryEntry, 0, len(store.entries))
	for _, entry := range store.entries {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if entry.summary.NodeID == nodeID {
			continue
		}
		filtered = append(filtered, entry)
	}

	droppedCount := len(store.entries) - len(filtered)
	if droppedCount > 0 {
		logger.StorageLog.Infof("deleted %d indication summaries for node=%s", droppedCount, nodeID)
	}

	store.entries = filtered
	return droppedCount, nil
}

// Vacuum removes expired entries according to TTL. It is safe to call this
// periodically; if TTL is not configured, it becomes a no-op.
func (store *memoryStore) Vacuum(ctx context.Context) error {
	if store.ttl <= 0 {
		return nil
	}

	now := store.now()

	store.mutexForEntries.Lock()
	defer store.mutexForEntries.Unlock()

	beforeCount := len(store.entries)
	store.removeExpiredLocked(now)
	afterCount := len(store.entries)

	if beforeCount != afterCount {
		logger.StorageLog.Debugf("vacuum removed %d expired indication summaries", beforeCount-afterCount)
	}

	return nil
}

// TTL implements Store.TTL.
func (store *memoryStore) TTL() time.Duration {
	return store.ttl
}

// removeExpiredLocked assumes mutexForEntries is already held.
func (store *memoryStore) removeExpiredLocked(referenceTime time.Time) {
	if store.ttl <= 0 || len(store.entries) == 0 {
		return
	}

	filtered := store.entries[:0]
	for _, entry := range store.entries {
		if referenceTime.Sub(entry.insertionTime) <= store.ttl {
			filtered = append(filtered, entry)
		}
	}
	store.entries = filtered
}
