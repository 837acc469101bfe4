package proto

import (
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

// Pub multicasts every sent message to all active pipes, sharing the same
// *message.Message pointer rather than cloning it per recipient (spec.md
// section 9, "shared message ownership"). Unlike PUSH, Pub does not track
// per-pipe acks: the reply is Sent as soon as dispatch to every currently
// active pipe has been attempted.
type Pub struct {
	pipes pipeTable
}

// NewPub returns a Pub protocol with no pipes.
func NewPub() *Pub {
	return &Pub{pipes: newPipeTable()}
}

func (p *Pub) Name() string   { return "pub" }
func (p *Pub) SelfID() uint16 { return wire.ProtoPub }
func (p *Pub) PeerID() uint16 { return wire.ProtoSub }

func (p *Pub) AddPipe(eid id.EndpointId, ps PipeSender, sendPriority, _ uint8) error {
	p.pipes.add(eid, ps, sendPriority)
	return nil
}

func (p *Pub) RemovePipe(eid id.EndpointId) {
	p.pipes.remove(eid)
}

func (p *Pub) Send(msg *message.Message) Reply {
	p.pipes.each(func(_ id.EndpointId, ps PipeSender) {
		ps.Send(msg)
	})
	return Sent()
}

func (p *Pub) Recv() Reply {
	return Err(scaperr.Other, "pub: recv not supported")
}

// OnSendAck is a no-op: Pub already replied Sent at dispatch time and does
// not wait for per-pipe completion.
func (p *Pub) OnSendAck(id.EndpointId) Reply { return None() }

func (p *Pub) OnSendReady(id.EndpointId) {}

func (p *Pub) OnRecvAck(id.EndpointId, *message.Message) Reply { return None() }
func (p *Pub) OnRecvReady(id.EndpointId)                       {}

func (p *Pub) OnSendTimeout() Reply { return None() }
func (p *Pub) OnRecvTimeout() Reply { return None() }

func (p *Pub) SetOption(name string, _ interface{}) error {
	return errUnknownOption(p.Name(), name)
}

func (p *Pub) GetOption(name string) (interface{}, error) {
	return nil, errUnknownOption(p.Name(), name)
}
