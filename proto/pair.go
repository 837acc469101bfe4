package proto

import (
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type pairOpState int

const (
	pairOpIdle pairOpState = iota
	pairOpPending
)

// Pair supports exactly one peer pipe at a time; a second concurrent pipe
// is rejected at AddPipe time (spec.md section 4.4). Send and recv are
// trivial single-pipe operations: there is no load-balancing or
// fair-queuing to do once there is only ever one candidate.
type Pair struct {
	eid     id.EndpointId
	pipe    PipeSender
	hasPipe bool

	sendState   pairOpState
	recvState   pairOpState
	pendingSend *message.Message
}

// NewPair returns an idle Pair protocol with no pipe.
func NewPair() *Pair {
	return &Pair{}
}

func (p *Pair) Name() string   { return "pair" }
func (p *Pair) SelfID() uint16 { return wire.ProtoPair }
func (p *Pair) PeerID() uint16 { return wire.ProtoPair }

func (p *Pair) AddPipe(eid id.EndpointId, ps PipeSender, _, _ uint8) error {
	if p.hasPipe {
		return scaperr.New(scaperr.InvalidInput, "pair: a peer pipe is already connected")
	}
	p.eid = eid
	p.pipe = ps
	p.hasPipe = true
	return nil
}

func (p *Pair) RemovePipe(eid id.EndpointId) {
	if !p.hasPipe || p.eid != eid {
		return
	}
	p.hasPipe = false
	p.pipe = nil
}

func (p *Pair) Send(msg *message.Message) Reply {
	if p.sendState == pairOpPending {
		return Err(scaperr.WouldBlock, "pair: a send is already pending")
	}
	p.pendingSend = msg
	p.sendState = pairOpPending
	if p.hasPipe {
		p.pipe.Send(msg)
	}
	return None()
}

func (p *Pair) Recv() Reply {
	if p.recvState == pairOpPending {
		return Err(scaperr.WouldBlock, "pair: a recv is already pending")
	}
	if p.hasPipe {
		p.pipe.Recv()
	}
	p.recvState = pairOpPending
	return None()
}

func (p *Pair) OnSendAck(eid id.EndpointId) Reply {
	if p.sendState != pairOpPending || !p.hasPipe || p.eid != eid {
		return None()
	}
	p.sendState = pairOpIdle
	p.pendingSend = nil
	return Sent()
}

func (p *Pair) OnSendReady(eid id.EndpointId) {
	if p.sendState != pairOpPending || !p.hasPipe || p.eid != eid || p.pendingSend == nil {
		return
	}
	p.pipe.Send(p.pendingSend)
}

func (p *Pair) OnRecvAck(eid id.EndpointId, msg *message.Message) Reply {
	if p.recvState != pairOpPending || !p.hasPipe || p.eid != eid {
		return None()
	}
	p.recvState = pairOpIdle
	return Recv(msg)
}

func (p *Pair) OnRecvReady(eid id.EndpointId) {
	if p.recvState != pairOpPending || !p.hasPipe || p.eid != eid {
		return
	}
	p.pipe.Recv()
}

func (p *Pair) OnSendTimeout() Reply {
	if p.sendState == pairOpIdle {
		return None()
	}
	p.sendState = pairOpIdle
	return Err(scaperr.TimedOut, "pair: send timed out")
}

func (p *Pair) OnRecvTimeout() Reply {
	if p.recvState == pairOpIdle {
		return None()
	}
	p.recvState = pairOpIdle
	return Err(scaperr.TimedOut, "pair: recv timed out")
}

func (p *Pair) SetOption(name string, _ interface{}) error {
	return errUnknownOption(p.Name(), name)
}

func (p *Pair) GetOption(name string) (interface{}, error) {
	return nil, errUnknownOption(p.Name(), name)
}
