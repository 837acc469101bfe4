package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/wire"
)

func TestBusProtocolIDsPairWithItself(t *testing.T) {
	b := NewBus()
	assert.Equal(t, wire.ProtoBus, b.SelfID())
	assert.Equal(t, wire.ProtoBus, b.PeerID())
}

func TestBusSendMulticastsAndNeverWaitsForAcks(t *testing.T) {
	b := NewBus()
	a1, a2 := id.NewEndpointId(), id.NewEndpointId()
	fa1, fa2 := newFakePipe(), newFakePipe()
	require.NoError(t, b.AddPipe(a1, fa1, 8, 8))
	require.NoError(t, b.AddPipe(a2, fa2, 8, 8))

	reply := b.Send(message.FromBody([]byte("hello")))
	require.Equal(t, ReplySent, reply.Kind)
	assert.Len(t, fa1.sent, 1)
	assert.Len(t, fa2.sent, 1)
}

func TestBusRecvFairQueues(t *testing.T) {
	b := NewBus()
	a1, a2 := id.NewEndpointId(), id.NewEndpointId()
	require.NoError(t, b.AddPipe(a1, newFakePipe(), 8, 8))
	require.NoError(t, b.AddPipe(a2, newFakePipe(), 8, 8))

	seen := map[id.EndpointId]int{}
	for i := 0; i < 4; i++ {
		reply := b.Recv()
		require.Equal(t, ReplyNone, reply.Kind)
		cur := b.recvInflight
		got := b.OnRecvAck(cur, message.FromBody([]byte("m")))
		require.Equal(t, ReplyRecv, got.Kind)
		seen[cur]++
	}
	assert.Equal(t, 2, seen[a1])
	assert.Equal(t, 2, seen[a2])
}
