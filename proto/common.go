// Package proto implements the per-pattern protocol state machines of
// spec.md section 4.4 (PUSH, PULL, PAIR, PUB, SUB) and SPEC_FULL.md section
// 4.0 (BUS, REQ, REP, SURVEYOR, RESPONDENT). Every protocol is a pure state
// machine driven by the uniform contract in Protocol: it never touches a
// transport.Stream directly, only the PipeSender capability a Pipe exposes,
// so transitions are testable without I/O (spec.md section 9, "a sum type
// with a pure transition function").
package proto

import (
	"encoding/binary"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/priolist"
	"github.com/wayslog/scaproust/scaperr"
)

// PipeSender is the capability a Protocol needs against one live pipe. The
// pipe package's *Pipe satisfies it; tests use a fake.
type PipeSender interface {
	Send(msg *message.Message) bool
	Recv() bool
}

// ReplyKind distinguishes the three shapes a Socket operation resolves to,
// plus ReplyNone meaning "nothing to deliver yet" (the operation is still
// pending, or the event that triggered this call was stale).
type ReplyKind int

const (
	ReplyNone ReplyKind = iota
	ReplySent
	ReplyRecv
	ReplyErr
)

// Reply is what a Protocol method hands back to the Socket for it to
// forward (or not, for ReplyNone) to the waiting façade call.
type Reply struct {
	Kind ReplyKind
	Msg  *message.Message
	Err  *scaperr.Error
}

// Sent builds a ReplySent.
func Sent() Reply { return Reply{Kind: ReplySent} }

// Recv builds a ReplyRecv carrying msg.
func Recv(msg *message.Message) Reply { return Reply{Kind: ReplyRecv, Msg: msg} }

// Err builds a ReplyErr of the given kind.
func Err(kind scaperr.Kind, msg string) Reply {
	return Reply{Kind: ReplyErr, Err: scaperr.New(kind, msg)}
}

// None is the "nothing to report" reply: either the operation is still
// pending, or this call was a stale/irrelevant event.
func None() Reply { return Reply{Kind: ReplyNone} }

// Protocol is the uniform contract every pattern implements, per spec.md
// section 4.4's input/output table. All methods are called only from the
// reactor goroutine.
type Protocol interface {
	// Name is the lowercase pattern name, e.g. "push".
	Name() string
	// SelfID is this protocol's wire id (spec.md section 6).
	SelfID() uint16
	// PeerID is the wire id this protocol pairs with.
	PeerID() uint16

	// AddPipe admits a newly active pipe at the given send/recv priority.
	// Returns an *scaperr.Error (kind InvalidInput) if the protocol
	// rejects a second pipe (PAIR).
	AddPipe(eid id.EndpointId, ps PipeSender, sendPriority, recvPriority uint8) error
	// RemovePipe drops a pipe, collapsing any in-flight operation against
	// it to OnHold per spec.md section 4.4's common rules.
	RemovePipe(eid id.EndpointId)

	// Send starts a send operation. The immediate reply is ReplyNone
	// unless the protocol can reject outright (WouldBlock if one is
	// already pending, Other if sends aren't supported, InvalidInput from
	// REP and RESPONDENT when no request or survey has been received to
	// reply to) or finishes at once (ReplySent from the multicasting PUB,
	// BUS and SURVEYOR).
	Send(msg *message.Message) Reply
	// Recv starts a recv operation. Same immediate-reply shape as Send.
	Recv() Reply

	// OnSendAck is delivered when pipe eid raises SentMsg.
	OnSendAck(eid id.EndpointId) Reply
	// OnSendReady is delivered when pipe eid becomes eligible to send
	// again (CanSend hint, or newly added/reactivated).
	OnSendReady(eid id.EndpointId)
	// OnRecvAck is delivered when pipe eid raises RecvMsg(msg).
	OnRecvAck(eid id.EndpointId, msg *message.Message) Reply
	// OnRecvReady is delivered when pipe eid becomes eligible to recv.
	OnRecvReady(eid id.EndpointId)

	// OnSendTimeout is delivered when the Socket's send deadline elapses.
	OnSendTimeout() Reply
	// OnRecvTimeout is delivered when the Socket's recv deadline elapses.
	OnRecvTimeout() Reply

	// SetOption sets a protocol-specific option (e.g. Subscribe,
	// RetryTime, SurveyTime). Unknown options are InvalidInput.
	SetOption(name string, value interface{}) error
	// GetOption reads back a protocol-specific option.
	GetOption(name string) (interface{}, error)
}

// pipeTable couples a priolist.List used as a fair-queue (recv) or
// load-balancer (send) with the live PipeSender each entry maps to. Shared
// by every protocol below instead of duplicating the pairing in each file.
type pipeTable struct {
	pipes map[id.EndpointId]PipeSender
	order *priolist.List[id.EndpointId]
}

func newPipeTable() pipeTable {
	return pipeTable{pipes: map[id.EndpointId]PipeSender{}, order: priolist.New[id.EndpointId]()}
}

func (t *pipeTable) add(eid id.EndpointId, ps PipeSender, priority uint8) {
	t.pipes[eid] = ps
	t.order.Insert(eid, priority)
	t.order.Activate(eid)
}

func (t *pipeTable) remove(eid id.EndpointId) {
	delete(t.pipes, eid)
	t.order.Remove(eid)
}

func (t *pipeTable) activate(eid id.EndpointId) { t.order.Activate(eid) }
func (t *pipeTable) advance()                   { t.order.Advance() }

func (t *pipeTable) current() (id.EndpointId, PipeSender, bool) {
	eid, ok := t.order.Get()
	if !ok {
		return 0, nil, false
	}
	return eid, t.pipes[eid], true
}

func (t *pipeTable) get(eid id.EndpointId) (PipeSender, bool) {
	ps, ok := t.pipes[eid]
	return ps, ok
}

func (t *pipeTable) each(fn func(eid id.EndpointId, ps PipeSender)) {
	for eid, ps := range t.pipes {
		fn(eid, ps)
	}
}

func (t *pipeTable) len() int { return len(t.pipes) }

// correlationIDLen is the size in bytes of the request/survey id prefix
// REQ/REP and SURVEYOR/RESPONDENT stitch onto the front of a message body
// (SPEC_FULL.md section 4.0), following nanomsg's convention of a 4-byte
// big-endian id with its top bit set.
const correlationIDLen = 4

// encodeCorrelationID renders n as a 4-byte big-endian id with the top bit
// forced set, and prepends it to body (the body slice is not mutated).
func encodeCorrelationID(n uint32, body []byte) []byte {
	out := make([]byte, correlationIDLen+len(body))
	binary.BigEndian.PutUint32(out[:correlationIDLen], n|0x80000000)
	copy(out[correlationIDLen:], body)
	return out
}

// splitCorrelationID peels the leading 4-byte id off body. ok is false if
// body is too short to carry one.
func splitCorrelationID(body []byte) (corrID []byte, rest []byte, ok bool) {
	if len(body) < correlationIDLen {
		return nil, nil, false
	}
	return body[:correlationIDLen], body[correlationIDLen:], true
}

// errUnknownOption is the InvalidInput error every protocol's
// SetOption/GetOption returns for a name it doesn't recognize.
func errUnknownOption(protocol, name string) error {
	return scaperr.New(scaperr.InvalidInput, protocol+": unknown option "+name)
}
