package proto

import (
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type pullState int

const (
	pullIdle pullState = iota
	pullReceiving
	pullOnHold
)

// Pull is the recv-only, fair-queuing half of the PUSH/PULL pattern,
// symmetric to Push with the roles of send and recv reversed.
type Pull struct {
	fq    pipeTable
	state pullState

	inflight id.EndpointId
}

// NewPull returns an idle Pull protocol with no pipes.
func NewPull() *Pull {
	return &Pull{fq: newPipeTable()}
}

func (p *Pull) Name() string   { return "pull" }
func (p *Pull) SelfID() uint16 { return wire.ProtoPull }
func (p *Pull) PeerID() uint16 { return wire.ProtoPush }

func (p *Pull) AddPipe(eid id.EndpointId, ps PipeSender, _, recvPriority uint8) error {
	p.fq.add(eid, ps, recvPriority)
	return nil
}

func (p *Pull) RemovePipe(eid id.EndpointId) {
	p.fq.remove(eid)
	if p.state == pullReceiving && p.inflight == eid {
		p.state = pullOnHold
	}
}

func (p *Pull) Send(*message.Message) Reply {
	return Err(scaperr.Other, "pull: send not supported")
}

func (p *Pull) Recv() Reply {
	if p.state != pullIdle {
		return Err(scaperr.WouldBlock, "pull: a recv is already pending")
	}
	p.tryRecv()
	return None()
}

func (p *Pull) tryRecv() {
	eid, ps, ok := p.fq.current()
	if !ok || ps == nil || !ps.Recv() {
		p.state = pullOnHold
		return
	}
	p.state = pullReceiving
	p.inflight = eid
}

func (p *Pull) OnSendAck(id.EndpointId) Reply { return None() }
func (p *Pull) OnSendReady(id.EndpointId)     {}

func (p *Pull) OnRecvAck(eid id.EndpointId, msg *message.Message) Reply {
	if p.state != pullReceiving || p.inflight != eid {
		return None()
	}
	p.fq.advance()
	p.state = pullIdle
	return Recv(msg)
}

func (p *Pull) OnRecvReady(eid id.EndpointId) {
	p.fq.activate(eid)
	if p.state == pullOnHold {
		p.tryRecv()
	}
}

func (p *Pull) OnSendTimeout() Reply { return None() }

func (p *Pull) OnRecvTimeout() Reply {
	if p.state == pullIdle {
		return None()
	}
	p.state = pullIdle
	return Err(scaperr.TimedOut, "pull: recv timed out")
}

func (p *Pull) SetOption(name string, _ interface{}) error {
	return errUnknownOption(p.Name(), name)
}

func (p *Pull) GetOption(name string) (interface{}, error) {
	return nil, errUnknownOption(p.Name(), name)
}
