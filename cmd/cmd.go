// Package cmd defines the command/reply vocabulary a façade uses to talk
// to a Socket's reactor goroutine (spec.md section 4.5's command table).
// It holds socket-level commands only: session-level operations (creating
// and destroying sockets and probes, shutdown) are plain Session methods,
// and there is no event type here. Kept in its own package so that socket,
// which answers Cmds, and session, which builds the Close Cmd it sends to
// each Socket, share one definition.
package cmd

import (
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
)

// Kind discriminates the commands a Socket's reactor accepts, one per row
// of spec.md section 4.5's table, plus Close for whole-socket teardown
// (session-level, not itself a table row, but same channel/reply shape).
type Kind int

const (
	Connect Kind = iota
	Bind
	Shutdown
	Send
	Recv
	SetOpt
	GetOpt
	Close
)

// Cmd is one request enqueued on a Socket's command channel. Reply is
// always non-nil and is written to exactly once by the Socket's reactor
// goroutine, per spec.md section 4.5's "every call leaves the Socket in a
// consistent state" guarantee: at once for most commands, and for a Send or
// Recv the protocol cannot finish immediately, later, when it completes,
// times out, or the socket is closed.
type Cmd struct {
	Kind     Kind
	URL      string
	Endpoint id.EndpointId
	Msg      *message.Message
	OptName  string
	OptValue interface{}
	Reply    chan *Reply
}

// ReplyKind discriminates the shape of a Reply's payload.
type ReplyKind int

const (
	ReplyOK ReplyKind = iota
	ReplyEndpoint
	ReplyMsg
	ReplyOptValue
	ReplyErr
)

// Reply is the single value written back on a Cmd's Reply channel.
type Reply struct {
	Kind     ReplyKind
	Endpoint id.EndpointId
	Msg      *message.Message
	OptValue interface{}
	Err      error
}

func newCmd(kind Kind) *Cmd {
	return &Cmd{Kind: kind, Reply: make(chan *Reply, 1)}
}

// NewConnect builds a Connect command for the given URL.
func NewConnect(url string) *Cmd {
	c := newCmd(Connect)
	c.URL = url
	return c
}

// NewBind builds a Bind command for the given URL.
func NewBind(url string) *Cmd {
	c := newCmd(Bind)
	c.URL = url
	return c
}

// NewShutdown builds a Shutdown command closing one endpoint (and every
// pipe it produced).
func NewShutdown(eid id.EndpointId) *Cmd {
	c := newCmd(Shutdown)
	c.Endpoint = eid
	return c
}

// NewSend builds a Send command carrying msg.
func NewSend(msg *message.Message) *Cmd {
	c := newCmd(Send)
	c.Msg = msg
	return c
}

// NewRecv builds a Recv command.
func NewRecv() *Cmd {
	return newCmd(Recv)
}

// NewSetOpt builds a SetOpt command.
func NewSetOpt(name string, value interface{}) *Cmd {
	c := newCmd(SetOpt)
	c.OptName = name
	c.OptValue = value
	return c
}

// NewGetOpt builds a GetOpt command.
func NewGetOpt(name string) *Cmd {
	c := newCmd(GetOpt)
	c.OptName = name
	return c
}

// NewClose builds a whole-socket teardown command.
func NewClose() *Cmd {
	return newCmd(Close)
}

// OK builds a bare success Reply.
func OK() *Reply { return &Reply{Kind: ReplyOK} }

// EndpointReply builds a success Reply carrying a newly created endpoint id.
func EndpointReply(eid id.EndpointId) *Reply {
	return &Reply{Kind: ReplyEndpoint, Endpoint: eid}
}

// MsgReply builds a success Reply carrying a received message.
func MsgReply(msg *message.Message) *Reply {
	return &Reply{Kind: ReplyMsg, Msg: msg}
}

// OptValueReply builds a success Reply carrying a GetOpt result.
func OptValueReply(value interface{}) *Reply {
	return &Reply{Kind: ReplyOptValue, OptValue: value}
}

// ErrReply builds a failure Reply.
func ErrReply(err error) *Reply {
	return &Reply{Kind: ReplyErr, Err: err}
}
