package proto

import (
	"bytes"
	"time"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type reqSendState int

const (
	reqSendIdle reqSendState = iota
	reqSending
	reqSendOnHold
)

type reqRecvState int

const (
	reqRecvIdle reqRecvState = iota
	reqReceiving
	reqRecvOnHold
)

// Req is the requesting half of REQ/REP (SPEC_FULL.md section 4.0). Each
// Send stamps a fresh 4-byte correlation id onto the message and
// load-balances it to one pipe, the way Push does; Recv then fair-queues
// across every pipe looking for a reply carrying the same id, discarding
// anything else (the same filter-and-advance shape Sub uses for
// subscriptions). RetryTime governs re-sending the outstanding request to
// a different pipe if no matching reply shows up in time; that timer is
// driven externally (see RetryDue), since Req has no clock of its own.
type Req struct {
	lb pipeTable
	fq pipeTable

	nextID   uint32
	hasOutstanding bool
	outstandingID  []byte
	body           []byte

	sendState reqSendState
	sendInflight id.EndpointId
	pendingSend  *message.Message

	recvState reqRecvState
	recvInflight id.EndpointId

	retryTime time.Duration
}

// NewReq returns an idle Req protocol with no pipes.
func NewReq() *Req {
	return &Req{lb: newPipeTable(), fq: newPipeTable()}
}

func (r *Req) Name() string   { return "req" }
func (r *Req) SelfID() uint16 { return wire.ProtoReq }
func (r *Req) PeerID() uint16 { return wire.ProtoRep }

func (r *Req) AddPipe(eid id.EndpointId, ps PipeSender, sendPriority, recvPriority uint8) error {
	r.lb.add(eid, ps, sendPriority)
	r.fq.add(eid, ps, recvPriority)
	return nil
}

func (r *Req) RemovePipe(eid id.EndpointId) {
	r.lb.remove(eid)
	r.fq.remove(eid)
	if r.sendState == reqSending && r.sendInflight == eid {
		r.sendState = reqSendOnHold
	}
	if r.recvState == reqReceiving && r.recvInflight == eid {
		r.recvState = reqRecvOnHold
	}
}

func (r *Req) Send(msg *message.Message) Reply {
	if r.sendState != reqSendIdle {
		return Err(scaperr.WouldBlock, "req: a send is already pending")
	}
	r.nextID++
	r.body = append([]byte(nil), msg.Body...)
	r.outstandingID = nil
	r.hasOutstanding = true
	framed := message.FromBody(encodeCorrelationID(r.nextID, r.body))
	r.outstandingID = framed.Body[:correlationIDLen]
	r.dispatch(framed)
	return None()
}

func (r *Req) dispatch(framed *message.Message) {
	r.pendingSend = framed
	eid, ps, ok := r.lb.current()
	if !ok || ps == nil || !ps.Send(framed) {
		r.sendState = reqSendOnHold
		return
	}
	r.sendState = reqSending
	r.sendInflight = eid
}

// RetryDue is invoked by the Socket when the RetryTime timer fires with no
// reply yet received; it re-sends the outstanding request to the next
// load-balanced pipe, which is a different pipe from the one the request
// last went out on whenever another pipe is active. A no-op if there is no
// outstanding request.
func (r *Req) RetryDue() {
	if !r.hasOutstanding || r.outstandingID == nil {
		return
	}
	if cur, _, ok := r.lb.current(); ok && cur == r.sendInflight {
		r.lb.advance()
	}
	framed := message.FromBody(append(append([]byte(nil), r.outstandingID...), r.body...))
	r.dispatch(framed)
}

func (r *Req) Recv() Reply {
	if !r.hasOutstanding {
		return Err(scaperr.InvalidInput, "req: recv without an outstanding request")
	}
	if r.recvState != reqRecvIdle {
		return Err(scaperr.WouldBlock, "req: a recv is already pending")
	}
	r.tryRecv()
	return None()
}

func (r *Req) tryRecv() {
	eid, ps, ok := r.fq.current()
	if !ok || ps == nil || !ps.Recv() {
		r.recvState = reqRecvOnHold
		return
	}
	r.recvState = reqReceiving
	r.recvInflight = eid
}

func (r *Req) OnSendAck(eid id.EndpointId) Reply {
	if r.sendState != reqSending || r.sendInflight != eid {
		return None()
	}
	r.lb.advance()
	r.sendState = reqSendIdle
	r.pendingSend = nil
	return Sent()
}

func (r *Req) OnSendReady(eid id.EndpointId) {
	r.lb.activate(eid)
	if r.sendState == reqSendOnHold && r.pendingSend != nil {
		r.dispatch(r.pendingSend)
	}
}

func (r *Req) OnRecvAck(eid id.EndpointId, msg *message.Message) Reply {
	if r.recvState != reqReceiving || r.recvInflight != eid {
		return None()
	}
	r.fq.advance()
	corrID, rest, ok := splitCorrelationID(msg.Body)
	if !ok || !bytes.Equal(corrID, r.outstandingID) {
		r.tryRecv()
		return None()
	}
	r.recvState = reqRecvIdle
	r.hasOutstanding = false
	r.outstandingID = nil
	return Recv(message.FromBody(rest))
}

func (r *Req) OnRecvReady(eid id.EndpointId) {
	r.fq.activate(eid)
	if r.recvState == reqRecvOnHold {
		r.tryRecv()
	}
}

func (r *Req) OnSendTimeout() Reply {
	if r.sendState == reqSendIdle {
		return None()
	}
	r.sendState = reqSendIdle
	r.pendingSend = nil
	return Err(scaperr.TimedOut, "req: send timed out")
}

func (r *Req) OnRecvTimeout() Reply {
	if r.recvState == reqRecvIdle {
		return None()
	}
	r.recvState = reqRecvIdle
	r.hasOutstanding = false
	r.outstandingID = nil
	return Err(scaperr.TimedOut, "req: recv timed out")
}

func (r *Req) SetOption(name string, value interface{}) error {
	switch name {
	case "RetryTime":
		d, ok := value.(time.Duration)
		if !ok {
			return scaperr.New(scaperr.InvalidInput, "req: RetryTime requires a time.Duration")
		}
		r.retryTime = d
		return nil
	default:
		return errUnknownOption(r.Name(), name)
	}
}

func (r *Req) GetOption(name string) (interface{}, error) {
	switch name {
	case "RetryTime":
		return r.retryTime, nil
	default:
		return nil, errUnknownOption(r.Name(), name)
	}
}
