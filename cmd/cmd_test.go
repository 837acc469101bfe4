package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
)

func TestConstructorsSetKindAndBufferTheReplyChannel(t *testing.T) {
	c := NewConnect("tcp://127.0.0.1:9000")
	assert.Equal(t, Connect, c.Kind)
	assert.Equal(t, "tcp://127.0.0.1:9000", c.URL)
	// Reply must be buffered so the reactor never blocks delivering it.
	c.Reply <- OK()
	assert.Equal(t, ReplyOK, (<-c.Reply).Kind)

	eid := id.NewEndpointId()
	s := NewShutdown(eid)
	assert.Equal(t, Shutdown, s.Kind)
	assert.Equal(t, eid, s.Endpoint)

	msg := message.FromBody([]byte("payload"))
	send := NewSend(msg)
	assert.Equal(t, Send, send.Kind)
	assert.Same(t, msg, send.Msg)

	opt := NewSetOpt("RetryTime", 5)
	assert.Equal(t, SetOpt, opt.Kind)
	assert.Equal(t, "RetryTime", opt.OptName)
	assert.Equal(t, 5, opt.OptValue)
}

func TestReplyHelpersTagTheCorrectKind(t *testing.T) {
	assert.Equal(t, ReplyOK, OK().Kind)
	assert.Equal(t, ReplyEndpoint, EndpointReply(id.NewEndpointId()).Kind)
	assert.Equal(t, ReplyMsg, MsgReply(message.FromBody(nil)).Kind)
	assert.Equal(t, ReplyOptValue, OptValueReply("x").Kind)
	assert.Equal(t, ReplyErr, ErrReply(assertErr{}).Kind)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
