// Package transport describes the message transport framework the xApp runs
// on: handlers registered per message type receive raw buffers that must be
// released exactly once, and the framework answers topology queries once its
// node-discovery handshake has completed.
//
// The "memory" driver implements the framework in-process. It serves static
// node lists from configuration and lets callers inject buffers, which makes
// it suitable for functional testing and replay.
package transport

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/pkg/factory"
)

// Message types routed by the framework.
const (
	MessageTypeRICSubscriptionRequest       = 12010
	MessageTypeRICSubscriptionResponse      = 12011
	MessageTypeRICSubscriptionDeleteRequest = 12020
	MessageTypeRICIndication                = 12050
)

var (
	// ErrNotReady is returned by topology queries before node discovery completes.
	ErrNotReady = errors.New("transport: node discovery not complete")

	// ErrNoHandler is returned when a buffer arrives for an unregistered type.
	ErrNoHandler = errors.New("transport: no handler registered")

	// ErrStopped is returned once the framework has been stopped.
	ErrStopped = errors.New("transport: stopped")
)

// NodeType selects a class of E2 nodes.
type NodeType int

const (
	NodeTypeGNB NodeType = iota + 1
	NodeTypeENB
)

func (nodeType NodeType) String() string {
	switch nodeType {
	case NodeTypeGNB:
		return "gNB"
	case NodeTypeENB:
		return "eNB"
	default:
		return "unknown"
	}
}

// ParseNodeType accepts "gnb" or "enb", case-insensitively.
func ParseNodeType(text string) (NodeType, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "gnb":
		return NodeTypeGNB, nil
	case "enb":
		return NodeTypeENB, nil
	default:
		return 0, errors.Errorf("unknown node type %q", text)
	}
}

// BufferHandle identifies one inbound buffer until it is released.
type BufferHandle uint64

// Meta describes where a buffer came from.
type Meta struct {
	MessageType int
	Source      string // E2 node id (MEID)
	ReceivedAt  time.Time
}

// Handler is invoked once per inbound buffer. The handler owns the buffer and
// must release it through the framework on every path.
type Handler func(payload []byte, meta Meta, buffer BufferHandle)

// Framework is the subset of the transport framework the xApp consumes.
type Framework interface {
	// RegisterHandler installs the callback for a message type.
	RegisterHandler(messageType int, handler Handler) error

	// ReleaseBuffer returns a buffer to the framework.
	ReleaseBuffer(buffer BufferHandle)

	// ListNodeIDs returns the known node ids of a type, or ErrNotReady.
	ListNodeIDs(nodeType NodeType) ([]string, error)

	// Ready reports whether node discovery has completed.
	Ready() bool

	Start(ctx context.Context) error
	Stop()
}

// Injector delivers a buffer into the framework as if it had arrived from an
// E2 node.
type Injector interface {
	Deliver(messageType int, source string, payload []byte) error
}

// NewFrameworkFromConfig creates a Framework based on the transport configuration.
func NewFrameworkFromConfig(transportConfig factory.TransportSection) (Framework, error) {
	switch transportConfig.Driver {
	case "memory":
		logger.TransportLog.Infof("Using in-memory transport (gnb=%d, enb=%d, discoveryDelayMs=%d)",
			len(transportConfig.Nodes.GNB), len(transportConfig.Nodes.ENB), transportConfig.DiscoveryDelayMs)
		return NewMemoryFramework(transportConfig), nil
	default:
		return nil, errors.Errorf("unknown transport driver %q", transportConfig.Driver)
	}
}
