package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

// fakePipe is a PipeSender test double: Send/Recv succeed unless told not
// to, and Send records what it was handed so tests can assert on it.
type fakePipe struct {
	sendOK bool
	recvOK bool
	sent   []*message.Message
}

func newFakePipe() *fakePipe {
	return &fakePipe{sendOK: true, recvOK: true}
}

func (f *fakePipe) Send(msg *message.Message) bool {
	if !f.sendOK {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakePipe) Recv() bool { return f.recvOK }

func TestPushProtocolIDs(t *testing.T) {
	p := NewPush()
	assert.Equal(t, wire.ProtoPush, p.SelfID())
	assert.Equal(t, wire.ProtoPull, p.PeerID())
}

func TestPushSendLoadBalancesAcrossPipes(t *testing.T) {
	p := NewPush()
	a, b := id.NewEndpointId(), id.NewEndpointId()
	fa, fb := newFakePipe(), newFakePipe()
	require.NoError(t, p.AddPipe(a, fa, 8, 8))
	require.NoError(t, p.AddPipe(b, fb, 8, 8))

	for i := 0; i < 4; i++ {
		reply := p.Send(message.FromBody([]byte("x")))
		assert.Equal(t, ReplyNone, reply.Kind)
		cur, _, _ := p.lb.current()
		ack := p.OnSendAck(cur)
		assert.Equal(t, ReplySent, ack.Kind)
	}
	assert.Equal(t, 2, len(fa.sent))
	assert.Equal(t, 2, len(fb.sent))
}

func TestPushSecondSendWhileInFlightIsWouldBlock(t *testing.T) {
	p := NewPush()
	a := id.NewEndpointId()
	require.NoError(t, p.AddPipe(a, newFakePipe(), 8, 8))

	first := p.Send(message.FromBody([]byte("a")))
	require.Equal(t, ReplyNone, first.Kind)

	second := p.Send(message.FromBody([]byte("b")))
	require.Equal(t, ReplyErr, second.Kind)
	assert.Equal(t, scaperr.WouldBlock, second.Err.Kind)
}

func TestPushSendOnHoldWithNoPipesThenRetriesOnReady(t *testing.T) {
	p := NewPush()
	reply := p.Send(message.FromBody([]byte("a")))
	assert.Equal(t, ReplyNone, reply.Kind)

	a := id.NewEndpointId()
	fp := newFakePipe()
	require.NoError(t, p.AddPipe(a, fp, 8, 8))
	p.OnSendReady(a)
	require.Equal(t, 1, len(fp.sent))

	ack := p.OnSendAck(a)
	assert.Equal(t, ReplySent, ack.Kind)
}

func TestPushRecvNotSupported(t *testing.T) {
	p := NewPush()
	reply := p.Recv()
	require.Equal(t, ReplyErr, reply.Kind)
	assert.Equal(t, scaperr.Other, reply.Err.Kind)
}

func TestPushSendTimeoutReturnsToIdle(t *testing.T) {
	p := NewPush()
	a := id.NewEndpointId()
	require.NoError(t, p.AddPipe(a, newFakePipe(), 8, 8))
	p.Send(message.FromBody([]byte("a")))

	reply := p.OnSendTimeout()
	require.Equal(t, ReplyErr, reply.Kind)
	assert.Equal(t, scaperr.TimedOut, reply.Err.Kind)

	// idle again: a fresh send is accepted, not WouldBlock.
	next := p.Send(message.FromBody([]byte("b")))
	assert.Equal(t, ReplyNone, next.Kind)
}

func TestPullFairQueueAcrossPipes(t *testing.T) {
	p := NewPull()
	a, b := id.NewEndpointId(), id.NewEndpointId()
	require.NoError(t, p.AddPipe(a, newFakePipe(), 8, 8))
	require.NoError(t, p.AddPipe(b, newFakePipe(), 8, 8))

	seen := map[id.EndpointId]int{}
	for i := 0; i < 6; i++ {
		reply := p.Recv()
		require.Equal(t, ReplyNone, reply.Kind)
		cur := p.inflight
		got := p.OnRecvAck(cur, message.FromBody([]byte("m")))
		require.Equal(t, ReplyRecv, got.Kind)
		seen[cur]++
	}
	assert.Equal(t, 3, seen[a])
	assert.Equal(t, 3, seen[b])
}

func TestPullRemovePipeCollapsesInFlightToOnHold(t *testing.T) {
	p := NewPull()
	a := id.NewEndpointId()
	require.NoError(t, p.AddPipe(a, newFakePipe(), 8, 8))
	p.Recv()
	require.Equal(t, pullReceiving, p.state)

	p.RemovePipe(a)
	assert.Equal(t, pullOnHold, p.state)

	// a stale ack for the removed pipe must be ignored.
	reply := p.OnRecvAck(a, message.FromBody([]byte("late")))
	assert.Equal(t, ReplyNone, reply.Kind)
}

func TestPullSendNotSupported(t *testing.T) {
	p := NewPull()
	reply := p.Send(message.FromBody([]byte("x")))
	require.Equal(t, ReplyErr, reply.Kind)
	assert.Equal(t, scaperr.Other, reply.Err.Kind)
}
