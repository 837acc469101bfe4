package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
)

func TestPairRejectsSecondPipe(t *testing.T) {
	p := NewPair()
	a, b := id.NewEndpointId(), id.NewEndpointId()
	require.NoError(t, p.AddPipe(a, newFakePipe(), 8, 8))

	err := p.AddPipe(b, newFakePipe(), 8, 8)
	require.Error(t, err)
	assert.Equal(t, scaperr.InvalidInput, scaperr.KindOf(err))
}

func TestPairSendAndRecvRoundTrip(t *testing.T) {
	p := NewPair()
	a := id.NewEndpointId()
	fp := newFakePipe()
	require.NoError(t, p.AddPipe(a, fp, 8, 8))

	sendReply := p.Send(message.FromBody([]byte("ping")))
	require.Equal(t, ReplyNone, sendReply.Kind)
	require.Len(t, fp.sent, 1)

	ack := p.OnSendAck(a)
	assert.Equal(t, ReplySent, ack.Kind)

	recvReply := p.Recv()
	require.Equal(t, ReplyNone, recvReply.Kind)
	got := p.OnRecvAck(a, message.FromBody([]byte("pong")))
	require.Equal(t, ReplyRecv, got.Kind)
	assert.Equal(t, []byte("pong"), got.Msg.Body)
}

func TestPairRemovingThePeerFreesUpSlotForAnother(t *testing.T) {
	p := NewPair()
	a := id.NewEndpointId()
	require.NoError(t, p.AddPipe(a, newFakePipe(), 8, 8))

	p.RemovePipe(a)

	b := id.NewEndpointId()
	assert.NoError(t, p.AddPipe(b, newFakePipe(), 8, 8))
}
