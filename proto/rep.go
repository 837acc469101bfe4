package proto

import (
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type repRecvState int

const (
	repRecvIdle repRecvState = iota
	repReceiving
	repRecvOnHold
)

type repSendState int

const (
	repSendIdle repSendState = iota
	repSending
	repSendOnHold
)

// Rep is the replying half of REQ/REP. It fair-queues incoming requests
// like Pull, remembers the correlation id and originating pipe of the last
// one it delivered, and routes the next Send back to that same pipe with
// the id reattached — never load-balanced, since a reply only ever makes
// sense to the peer that asked.
type Rep struct {
	fq pipeTable

	recvState    repRecvState
	recvInflight id.EndpointId

	hasRequest  bool
	requestID   []byte
	replyPipe   id.EndpointId
	replyTarget PipeSender

	sendState   repSendState
	pendingSend *message.Message
}

// NewRep returns an idle Rep protocol with no pipes.
func NewRep() *Rep {
	return &Rep{fq: newPipeTable()}
}

func (r *Rep) Name() string   { return "rep" }
func (r *Rep) SelfID() uint16 { return wire.ProtoRep }
func (r *Rep) PeerID() uint16 { return wire.ProtoReq }

func (r *Rep) AddPipe(eid id.EndpointId, ps PipeSender, _, recvPriority uint8) error {
	r.fq.add(eid, ps, recvPriority)
	return nil
}

func (r *Rep) RemovePipe(eid id.EndpointId) {
	r.fq.remove(eid)
	if r.recvState == repReceiving && r.recvInflight == eid {
		r.recvState = repRecvOnHold
	}
	if r.hasRequest && r.replyPipe == eid {
		r.hasRequest = false
		r.requestID = nil
		r.replyTarget = nil
	}
}

func (r *Rep) Send(msg *message.Message) Reply {
	if !r.hasRequest {
		return Err(scaperr.InvalidInput, "rep: reply without a preceding recv")
	}
	if r.sendState != repSendIdle {
		return Err(scaperr.WouldBlock, "rep: a send is already pending")
	}
	framed := message.FromBody(append(append([]byte(nil), r.requestID...), msg.Body...))
	r.pendingSend = framed
	r.sendState = repSending
	if r.replyTarget == nil || !r.replyTarget.Send(framed) {
		r.sendState = repSendOnHold
	}
	return None()
}

func (r *Rep) Recv() Reply {
	if r.recvState != repRecvIdle {
		return Err(scaperr.WouldBlock, "rep: a recv is already pending")
	}
	r.tryRecv()
	return None()
}

func (r *Rep) tryRecv() {
	eid, ps, ok := r.fq.current()
	if !ok || ps == nil || !ps.Recv() {
		r.recvState = repRecvOnHold
		return
	}
	r.recvState = repReceiving
	r.recvInflight = eid
}

func (r *Rep) OnSendAck(eid id.EndpointId) Reply {
	if r.sendState != repSending || r.replyPipe != eid {
		return None()
	}
	r.sendState = repSendIdle
	r.pendingSend = nil
	r.hasRequest = false
	return Sent()
}

func (r *Rep) OnSendReady(eid id.EndpointId) {
	if r.sendState == repSendOnHold && r.replyPipe == eid && r.pendingSend != nil {
		if r.replyTarget != nil && r.replyTarget.Send(r.pendingSend) {
			r.sendState = repSending
		}
	}
}

func (r *Rep) OnRecvAck(eid id.EndpointId, msg *message.Message) Reply {
	if r.recvState != repReceiving || r.recvInflight != eid {
		return None()
	}
	r.fq.advance()
	corrID, rest, ok := splitCorrelationID(msg.Body)
	if !ok {
		r.tryRecv()
		return None()
	}
	r.recvState = repRecvIdle
	r.hasRequest = true
	r.requestID = corrID
	r.replyPipe = eid
	r.replyTarget, _ = r.fq.get(eid)
	return Recv(message.FromBody(rest))
}

func (r *Rep) OnRecvReady(eid id.EndpointId) {
	r.fq.activate(eid)
	if r.recvState == repRecvOnHold {
		r.tryRecv()
	}
}

func (r *Rep) OnSendTimeout() Reply {
	if r.sendState == repSendIdle {
		return None()
	}
	r.sendState = repSendIdle
	r.pendingSend = nil
	r.hasRequest = false
	return Err(scaperr.TimedOut, "rep: send timed out")
}

func (r *Rep) OnRecvTimeout() Reply {
	if r.recvState == repRecvIdle {
		return None()
	}
	r.recvState = repRecvIdle
	return Err(scaperr.TimedOut, "rep: recv timed out")
}

func (r *Rep) SetOption(name string, _ interface{}) error {
	return errUnknownOption(r.Name(), name)
}

func (r *Rep) GetOption(name string) (interface{}, error) {
	return nil, errUnknownOption(r.Name(), name)
}
