package proto

import (
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type busRecvState int

const (
	busRecvIdle busRecvState = iota
	busReceiving
	busRecvOnHold
)

// Bus combines Pub's multicast send with Pull's fair-queued recv
// (SPEC_FULL.md section 4.0); it pairs with itself, since every peer on a
// bus is symmetric.
type Bus struct {
	send pipeTable
	recv pipeTable

	recvState    busRecvState
	recvInflight id.EndpointId
}

// NewBus returns an idle Bus protocol with no pipes.
func NewBus() *Bus {
	return &Bus{send: newPipeTable(), recv: newPipeTable()}
}

func (b *Bus) Name() string   { return "bus" }
func (b *Bus) SelfID() uint16 { return wire.ProtoBus }
func (b *Bus) PeerID() uint16 { return wire.ProtoBus }

func (b *Bus) AddPipe(eid id.EndpointId, ps PipeSender, sendPriority, recvPriority uint8) error {
	b.send.add(eid, ps, sendPriority)
	b.recv.add(eid, ps, recvPriority)
	return nil
}

func (b *Bus) RemovePipe(eid id.EndpointId) {
	b.send.remove(eid)
	b.recv.remove(eid)
	if b.recvState == busReceiving && b.recvInflight == eid {
		b.recvState = busRecvOnHold
	}
}

func (b *Bus) Send(msg *message.Message) Reply {
	b.send.each(func(_ id.EndpointId, ps PipeSender) {
		ps.Send(msg)
	})
	return Sent()
}

func (b *Bus) Recv() Reply {
	if b.recvState != busRecvIdle {
		return Err(scaperr.WouldBlock, "bus: a recv is already pending")
	}
	b.tryRecv()
	return None()
}

func (b *Bus) tryRecv() {
	eid, ps, ok := b.recv.current()
	if !ok || ps == nil || !ps.Recv() {
		b.recvState = busRecvOnHold
		return
	}
	b.recvState = busReceiving
	b.recvInflight = eid
}

func (b *Bus) OnSendAck(id.EndpointId) Reply { return None() }
func (b *Bus) OnSendReady(id.EndpointId)     {}

func (b *Bus) OnRecvAck(eid id.EndpointId, msg *message.Message) Reply {
	if b.recvState != busReceiving || b.recvInflight != eid {
		return None()
	}
	b.recv.advance()
	b.recvState = busRecvIdle
	return Recv(msg)
}

func (b *Bus) OnRecvReady(eid id.EndpointId) {
	b.recv.activate(eid)
	if b.recvState == busRecvOnHold {
		b.tryRecv()
	}
}

func (b *Bus) OnSendTimeout() Reply { return None() }

func (b *Bus) OnRecvTimeout() Reply {
	if b.recvState == busRecvIdle {
		return None()
	}
	b.recvState = busRecvIdle
	return Err(scaperr.TimedOut, "bus: recv timed out")
}

func (b *Bus) SetOption(name string, _ interface{}) error {
	return errUnknownOption(b.Name(), name)
}

func (b *Bus) GetOption(name string) (interface{}, error) {
	return nil, errUnknownOption(b.Name(), name)
}
