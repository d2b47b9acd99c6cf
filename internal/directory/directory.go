// Package directory exposes the E2 node ids known to the transport framework
// as a read-through cache.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/internal/transport"
)

// ErrDirectoryUnavailable is returned while the framework has not completed
// node discovery or when the topology query fails.
var ErrDirectoryUnavailable = errors.New("node directory unavailable")

// NodeLister is the topology query of the transport framework.
type NodeLister interface {
	ListNodeIDs(nodeType transport.NodeType) ([]string, error)
}

// Directory lists node ids by type. An empty result means "not yet known".
type Directory interface {
	ListByType(ctx context.Context, nodeType transport.NodeType) ([]string, error)

	// Invalidate drops every cached list.
	Invalidate()
}

type cacheEntry struct {
	nodeIDs   []string
	fetchedAt time.Time
}

type directoryImpl struct {
	lister   NodeLister
	cacheTTL time.Duration // 0 disables caching

	mutexForCache sync.RWMutex
	cacheByType   map[transport.NodeType]cacheEntry

	now func() time.Time
}

// NewDirectory creates a Directory over lister.
func NewDirectory(lister NodeLister, cacheTTL time.Duration) Directory {
	return &directoryImpl{
		lister:      lister,
		cacheTTL:    cacheTTL,
		cacheByType: make(map[transport.NodeType]cacheEntry),
		now:         time.Now,
	}
}

// ListByType implements Directory.ListByType.
func (directory *directoryImpl) ListByType(ctx context.Context, nodeType transport.NodeType) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if nodeIDs, hit := directory.cached(nodeType); hit {
		return nodeIDs, nil
	}

	nodeIDs, listError := directory.lister.ListNodeIDs(nodeType)
	if listError != nil {
		logger.DirectoryLog.Warnf("listing %s nodes failed: %v", nodeType, listError)
		return nil, errors.Wrapf(ErrDirectoryUnavailable, "list %s nodes: %v", nodeType, listError)
	}

	logger.DirectoryLog.Infof("%s list: %v", nodeType, nodeIDs)

	// an empty answer is not cached so that late nodes show up on the next call
	if directory.cacheTTL > 0 && len(nodeIDs) > 0 {
		directory.mutexForCache.Lock()
		directory.cacheByType[nodeType] = cacheEntry{
			nodeIDs:   append([]string(nil), nodeIDs...),
			fetchedAt: directory.now(),
		}
		directory.mutexForCache.Unlock()
	}

	if nodeIDs == nil {
		nodeIDs = []string{}
	}
	return nodeIDs, nil
}

// Invalidate implements Directory.Invalidate.
func (directory *directoryImpl) Invalidate() {
	directory.mutexForCache.Lock()
	defer directory.mutexForCache.Unlock()
	directory.cacheByType = make(map[transport.NodeType]cacheEntry)
}

func (directory *directoryImpl) cached(nodeType transport.NodeType) ([]string, bool) {
	if directory.cacheTTL <= 0 {
		return nil, false
	}

	directory.mutexForCache.RLock()
	defer directory.mutexForCache.RUnlock()

	entry, found := directory.cacheByType[nodeType]
	if !found || directory.now().Sub(entry.fetchedAt) > directory.cacheTTL {
		return nil, false
	}
	return append([]string(nil), entry.nodeIDs...), true
}
