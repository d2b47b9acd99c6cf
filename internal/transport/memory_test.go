package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free5gc/hwxapp/pkg/factory"
)

func newTestFramework(delayMs int) *MemoryFramework {
	return NewMemoryFramework(factory.TransportSection{
		Driver:           "memory",
		DiscoveryDelayMs: delayMs,
		Nodes: factory.NodesSection{
			GNB: []string{"gnb-1", "gnb-2"},
			ENB: []string{"enb-1"},
		},
	})
}

func TestListNodeIDsBeforeDiscovery(t *testing.T) {
	framework := newTestFramework(0)

	_, err := framework.ListNodeIDs(NodeTypeGNB)
	require.ErrorIs(t, err, ErrNotReady)
	assert.False(t, framework.Ready())

	require.NoError(t, framework.Start(context.Background()))
	ids, err := framework.ListNodeIDs(NodeTypeGNB)
	require.NoError(t, err)
	assert.Equal(t, []string{"gnb-1", "gnb-2"}, ids)

	ids, err = framework.ListNodeIDs(NodeTypeENB)
	require.NoError(t, err)
	assert.Equal(t, []string{"enb-1"}, ids)
}

func TestDiscoveryDelay(t *testing.T) {
	framework := newTestFramework(20)
	require.NoError(t, framework.Start(context.Background()))
	assert.False(t, framework.Ready())

	assert.Eventually(t, framework.Ready, time.Second, 5*time.Millisecond)
}

func TestDeliverAndRelease(t *testing.T) {
	framework := newTestFramework(0)
	require.NoError(t, framework.Start(context.Background()))

	var received []byte
	var receivedMeta Meta
	require.NoError(t, framework.RegisterHandler(MessageTypeRICIndication, func(payload []byte, meta Meta, buffer BufferHandle) {
		received = payload
		receivedMeta = meta
		assert.Equal(t, 1, framework.Outstanding())
		framework.ReleaseBuffer(buffer)
	}))

	require.NoError(t, framework.Deliver(MessageTypeRICIndication, "gnb-1", []byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x01, 0x02}, received)
	assert.Equal(t, "gnb-1", receivedMeta.Source)
	assert.Equal(t, MessageTypeRICIndication, receivedMeta.MessageType)
	assert.Equal(t, 0, framework.Outstanding())

	stats := framework.Stats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Released)
}

func TestDoubleReleaseIsCounted(t *testing.T) {
	framework := newTestFramework(0)
	require.NoError(t, framework.RegisterHandler(MessageTypeRICIndication, func(_ []byte, _ Meta, buffer BufferHandle) {
		framework.ReleaseBuffer(buffer)
		framework.ReleaseBuffer(buffer)
	}))

	require.NoError(t, framework.Deliver(MessageTypeRICIndication, "gnb-1", nil))
	assert.Equal(t, uint64(1), framework.Stats().DoubleReleases)
	assert.Equal(t, 0, framework.Outstanding())
}

func TestDeliverWithoutHandlerOrAfterStop(t *testing.T) {
	framework := newTestFramework(0)
	require.ErrorIs(t, framework.Deliver(MessageTypeRICIndication, "gnb-1", nil), ErrNoHandler)
	assert.Equal(t, 0, framework.Outstanding())

	framework.Stop()
	framework.Stop()
	require.ErrorIs(t, framework.Deliver(MessageTypeRICIndication, "gnb-1", nil), ErrStopped)
	require.ErrorIs(t, framework.Start(context.Background()), ErrStopped)
}

func TestSetNodes(t *testing.T) {
	framework := newTestFramework(0)
	require.NoError(t, framework.Start(context.Background()))

	framework.SetNodes(NodeTypeGNB, []string{"gnb-3"})
	ids, err := framework.ListNodeIDs(NodeTypeGNB)
	require.NoError(t, err)
	assert.Equal(t, []string{"gnb-3"}, ids)
}

func TestParseNodeType(t *testing.T) {
	nodeType, err := ParseNodeType("GNB")
	require.NoError(t, err)
	assert.Equal(t, NodeTypeGNB, nodeType)

	_, err = ParseNodeType("wifi")
	require.Error(t, err)
}

func TestNewFrameworkFromConfig(t *testing.T) {
	framework, err := NewFrameworkFromConfig(factory.TransportSection{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryFramework{}, framework)

	_, err = NewFrameworkFromConfig(factory.TransportSection{Driver: "rmr"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport driver")
}
