package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
)

func TestPubSendMulticastsToEveryPipeAndRepliesImmediately(t *testing.T) {
	p := NewPub()
	a, b, c := id.NewEndpointId(), id.NewEndpointId(), id.NewEndpointId()
	fa, fb, fc := newFakePipe(), newFakePipe(), newFakePipe()
	require.NoError(t, p.AddPipe(a, fa, 8, 8))
	require.NoError(t, p.AddPipe(b, fb, 8, 8))
	require.NoError(t, p.AddPipe(c, fc, 8, 8))

	reply := p.Send(message.FromBody([]byte("news/a")))
	require.Equal(t, ReplySent, reply.Kind)

	assert.Len(t, fa.sent, 1)
	assert.Len(t, fb.sent, 1)
	assert.Len(t, fc.sent, 1)
	assert.Same(t, fa.sent[0], fb.sent[0], "pub must share one message pointer across pipes, not clone it")
}

func TestPubRecvNotSupported(t *testing.T) {
	p := NewPub()
	reply := p.Recv()
	require.Equal(t, ReplyErr, reply.Kind)
}

// TestSubscriptionFilterScenario reproduces spec.md section 8 scenario 6:
// subscribed to "news/", a PUB sends "news/a", "weather", "news/b" in that
// order; recv must surface "news/a" then "news/b", dropping "weather".
func TestSubscriptionFilterScenario(t *testing.T) {
	s := NewSub()
	a := id.NewEndpointId()
	require.NoError(t, s.AddPipe(a, newFakePipe(), 8, 8))
	require.NoError(t, s.SetOption("Subscribe", []byte("news/")))

	reply := s.Recv()
	require.Equal(t, ReplyNone, reply.Kind)

	got1 := s.OnRecvAck(a, message.FromBody([]byte("news/a")))
	require.Equal(t, ReplyRecv, got1.Kind)
	assert.Equal(t, []byte("news/a"), got1.Msg.Body)

	reply2 := s.Recv()
	require.Equal(t, ReplyNone, reply2.Kind)

	dropped := s.OnRecvAck(a, message.FromBody([]byte("weather")))
	assert.Equal(t, ReplyNone, dropped.Kind, "non-matching message must be dropped, not delivered")

	got2 := s.OnRecvAck(a, message.FromBody([]byte("news/b")))
	require.Equal(t, ReplyRecv, got2.Kind)
	assert.Equal(t, []byte("news/b"), got2.Msg.Body)
}

func TestSubWithNoSubscriptionsMatchesNothing(t *testing.T) {
	s := NewSub()
	a := id.NewEndpointId()
	require.NoError(t, s.AddPipe(a, newFakePipe(), 8, 8))
	s.Recv()

	reply := s.OnRecvAck(a, message.FromBody([]byte("anything")))
	assert.Equal(t, ReplyNone, reply.Kind)
}

func TestSubUnsubscribeStopsMatching(t *testing.T) {
	s := NewSub()
	a := id.NewEndpointId()
	require.NoError(t, s.AddPipe(a, newFakePipe(), 8, 8))
	require.NoError(t, s.SetOption("Subscribe", []byte("news/")))
	require.NoError(t, s.SetOption("Unsubscribe", []byte("news/")))

	s.Recv()
	reply := s.OnRecvAck(a, message.FromBody([]byte("news/a")))
	assert.Equal(t, ReplyNone, reply.Kind)
}

func TestSubSendNotSupported(t *testing.T) {
	s := NewSub()
	reply := s.Send(message.FromBody([]byte("x")))
	require.Equal(t, ReplyErr, reply.Kind)
}
