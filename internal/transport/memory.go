package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/pkg/factory"
)

// MemoryStats is a snapshot of buffer accounting.
type MemoryStats struct {
	Delivered      uint64
	Released       uint64
	Outstanding    int
	DoubleReleases uint64
}

// MemoryFramework is the in-process transport driver.
type MemoryFramework struct {
	mutexForHandlers sync.RWMutex
	handlers         map[int]Handler

	mutexForBuffers sync.Mutex
	outstanding     map[BufferHandle]struct{}
	nextBuffer      uint64
	delivered       uint64
	released        uint64
	doubleReleases  uint64

	mutexForNodes sync.RWMutex
	nodesByType   map[NodeType][]string

	discoveryDelay time.Duration
	ready          atomic.Bool
	stopped        atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryFramework creates the driver; discovery starts with Start.
func NewMemoryFramework(transportConfig factory.TransportSection) *MemoryFramework {
	var discoveryDelay time.Duration
	if transportConfig.DiscoveryDelayMs > 0 {
		discoveryDelay = time.Duration(transportConfig.DiscoveryDelayMs) * time.Millisecond
	}

	return &MemoryFramework{
		handlers:    make(map[int]Handler),
		outstanding: make(map[BufferHandle]struct{}),
		nodesByType: map[NodeType][]string{
			NodeTypeGNB: append([]string(nil), transportConfig.Nodes.GNB...),
			NodeTypeENB: append([]string(nil), transportConfig.Nodes.ENB...),
		},
		discoveryDelay: discoveryDelay,
		stopCh:         make(chan struct{}),
	}
}

// Start begins node discovery. It completes after the configured delay.
func (framework *MemoryFramework) Start(ctx context.Context) error {
	if framework.stopped.Load() {
		return ErrStopped
	}

	if framework.discoveryDelay <= 0 {
		framework.completeDiscovery()
		return nil
	}

	go func() {
		timer := time.NewTimer(framework.discoveryDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
			framework.completeDiscovery()
		case <-ctx.Done():
			logger.TransportLog.Warnf("node discovery aborted: %v", ctx.Err())
		case <-framework.stopCh:
		}
	}()
	return nil
}

// Stop rejects further deliveries. Outstanding buffers can still be released.
func (framework *MemoryFramework) Stop() {
	framework.stopOnce.Do(func() {
		framework.stopped.Store(true)
		close(framework.stopCh)

		stats := framework.Stats()
		logger.TransportLog.Infof("in-memory transport stopped (delivered=%d released=%d outstanding=%d)",
			stats.Delivered, stats.Released, stats.Outstanding)
	})
}

// RegisterHandler implements Framework.RegisterHandler.
func (framework *MemoryFramework) RegisterHandler(messageType int, handler Handler) error {
	if handler == nil {
		return errors.Errorf("nil handler for message type %d", messageType)
	}

	framework.mutexForHandlers.Lock()
	defer framework.mutexForHandlers.Unlock()

	if _, exists := framework.handlers[messageType]; exists {
		logger.TransportLog.Warnf("replacing handler for message type %d", messageType)
	}
	framework.handlers[messageType] = handler
	return nil
}

// Ready implements Framework.Ready.
func (framework *MemoryFramework) Ready() bool {
	return framework.ready.Load()
}

// ListNodeIDs implements Framework.ListNodeIDs.
func (framework *MemoryFramework) ListNodeIDs(nodeType NodeType) ([]string, error) {
	if !framework.Ready() {
		return nil, ErrNotReady
	}

	framework.mutexForNodes.RLock()
	defer framework.mutexForNodes.RUnlock()

	return append([]string(nil), framework.nodesByType[nodeType]...), nil
}

// SetNodes replaces the node list of a type, modelling nodes that connect or
// disconnect at runtime.
func (framework *MemoryFramework) SetNodes(nodeType NodeType, nodeIDs []string) {
	framework.mutexForNodes.Lock()
	defer framework.mutexForNodes.Unlock()

	framework.nodesByType[nodeType] = append([]string(nil), nodeIDs...)
	logger.TransportLog.Debugf("node list updated type=%s count=%d", nodeType, len(nodeIDs))
}

// Deliver implements Injector. The payload is copied into a fresh buffer and
// handed to the registered handler on the calling goroutine.
func (framework *MemoryFramework) Deliver(messageType int, source string, payload []byte) error {
	if framework.stopped.Load() {
		return ErrStopped
	}

	framework.mutexForHandlers.RLock()
	handler, found := framework.handlers[messageType]
	framework.mutexForHandlers.RUnlock()
	if !found {
		return errors.Wrapf(ErrNoHandler, "message type %d", messageType)
	}

	buffer := framework.allocateBuffer()
	owned := append([]byte(nil), payload...)

	handler(owned, Meta{MessageType: messageType, Source: source, ReceivedAt: time.Now().UTC()}, buffer)
	return nil
}

// ReleaseBuffer implements Framework.ReleaseBuffer. Releasing an unknown or
// already released buffer is logged and ignored.
func (framework *MemoryFramework) ReleaseBuffer(buffer BufferHandle) {
	framework.mutexForBuffers.Lock()
	defer framework.mutexForBuffers.Unlock()

	if _, exists := framework.outstanding[buffer]; !exists {
		framework.doubleReleases++
		logger.TransportLog.Warnf("release of unknown or already released buffer %d", buffer)
		return
	}
	delete(framework.outstanding, buffer)
	framework.released++
}

// Outstanding is the number of delivered buffers not yet released.
func (framework *MemoryFramework) Outstanding() int {
	framework.mutexForBuffers.Lock()
	defer framework.mutexForBuffers.Unlock()
	return len(framework.outstanding)
}

// Stats returns a snapshot of buffer accounting.
func (framework *MemoryFramework) Stats() MemoryStats {
	framework.mutexForBuffers.Lock()
	defer framework.mutexForBuffers.Unlock()

	return MemoryStats{
		Delivered:      framework.delivered,
		Released:       framework.released,
		Outstanding:    len(framework.outstanding),
		DoubleReleases: framework.doubleReleases,
	}
}

func (framework *MemoryFramework) allocateBuffer() BufferHandle {
	framework.mutexForBuffers.Lock()
	defer framework.mutexForBuffers.Unlock()

	framework.nextBuffer++
	buffer := BufferHandle(framework.nextBuffer)
	framework.outstanding[buffer] = struct{}{}
	framework.delivered++
	return buffer
}

func (framework *MemoryFramework) completeDiscovery() {
	if framework.ready.CompareAndSwap(false, true) {
		logger.TransportLog.Infof("node discovery complete")
	}
}
