package proto

import (
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type pushState int

const (
	pushIdle pushState = iota
	pushSending
	pushOnHold
)

// Push is the send-only, load-balancing half of the PUSH/PULL pattern
// (spec.md section 4.4). At most one send is ever in flight; a pipe is
// picked from the load-balancer each time one is needed.
type Push struct {
	lb    pipeTable
	state pushState

	inflight id.EndpointId
	pending  *message.Message
}

// NewPush returns an idle Push protocol with no pipes.
func NewPush() *Push {
	return &Push{lb: newPipeTable()}
}

func (p *Push) Name() string   { return "push" }
func (p *Push) SelfID() uint16 { return wire.ProtoPush }
func (p *Push) PeerID() uint16 { return wire.ProtoPull }

func (p *Push) AddPipe(eid id.EndpointId, ps PipeSender, sendPriority, _ uint8) error {
	p.lb.add(eid, ps, sendPriority)
	return nil
}

func (p *Push) RemovePipe(eid id.EndpointId) {
	p.lb.remove(eid)
	if p.state == pushSending && p.inflight == eid {
		p.state = pushOnHold
	}
}

func (p *Push) Send(msg *message.Message) Reply {
	if p.state != pushIdle {
		return Err(scaperr.WouldBlock, "push: a send is already pending")
	}
	p.trySend(msg)
	return None()
}

// trySend attempts to hand msg to the current load-balanced pipe. If none
// is available or the pipe refuses (already busy), the message is held
// pending and retried on the next OnSendReady.
func (p *Push) trySend(msg *message.Message) {
	p.pending = msg
	eid, ps, ok := p.lb.current()
	if !ok || ps == nil || !ps.Send(msg) {
		p.state = pushOnHold
		return
	}
	p.state = pushSending
	p.inflight = eid
}

func (p *Push) Recv() Reply {
	return Err(scaperr.Other, "push: recv not supported")
}

func (p *Push) OnSendAck(eid id.EndpointId) Reply {
	if p.state != pushSending || p.inflight != eid {
		return None()
	}
	p.lb.advance()
	p.state = pushIdle
	p.pending = nil
	return Sent()
}

func (p *Push) OnSendReady(eid id.EndpointId) {
	p.lb.activate(eid)
	if p.state == pushOnHold && p.pending != nil {
		p.trySend(p.pending)
	}
}

func (p *Push) OnRecvAck(id.EndpointId, *message.Message) Reply { return None() }
func (p *Push) OnRecvReady(id.EndpointId)                       {}

func (p *Push) OnSendTimeout() Reply {
	if p.state == pushIdle {
		return None()
	}
	p.state = pushIdle
	p.pending = nil
	return Err(scaperr.TimedOut, "push: send timed out")
}

func (p *Push) OnRecvTimeout() Reply { return None() }

func (p *Push) SetOption(name string, _ interface{}) error {
	return errUnknownOption(p.Name(), name)
}

func (p *Push) GetOption(name string) (interface{}, error) {
	return nil, errUnknownOption(p.Name(), name)
}
