package proto

import (
	"bytes"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type subState int

const (
	subIdle subState = iota
	subReceiving
	subOnHold
)

// Sub is recv-only, fair-queued like Pull, but additionally filters every
// received message against a set of subscribed byte prefixes (spec.md
// section 4.4): a message matching no subscription is silently dropped and
// the fair-queue moves on to the next candidate without resolving the
// pending Recv.
type Sub struct {
	fq    pipeTable
	state subState

	inflight      id.EndpointId
	subscriptions [][]byte
}

// NewSub returns an idle Sub protocol with no pipes and no subscriptions
// (matching nothing until Subscribe is called).
func NewSub() *Sub {
	return &Sub{fq: newPipeTable()}
}

func (s *Sub) Name() string   { return "sub" }
func (s *Sub) SelfID() uint16 { return wire.ProtoSub }
func (s *Sub) PeerID() uint16 { return wire.ProtoPub }

func (s *Sub) AddPipe(eid id.EndpointId, ps PipeSender, _, recvPriority uint8) error {
	s.fq.add(eid, ps, recvPriority)
	return nil
}

func (s *Sub) RemovePipe(eid id.EndpointId) {
	s.fq.remove(eid)
	if s.state == subReceiving && s.inflight == eid {
		s.state = subOnHold
	}
}

func (s *Sub) Send(*message.Message) Reply {
	return Err(scaperr.Other, "sub: send not supported")
}

func (s *Sub) Recv() Reply {
	if s.state != subIdle {
		return Err(scaperr.WouldBlock, "sub: a recv is already pending")
	}
	s.tryRecv()
	return None()
}

func (s *Sub) tryRecv() {
	eid, ps, ok := s.fq.current()
	if !ok || ps == nil || !ps.Recv() {
		s.state = subOnHold
		return
	}
	s.state = subReceiving
	s.inflight = eid
}

func (s *Sub) OnSendAck(id.EndpointId) Reply { return None() }
func (s *Sub) OnSendReady(id.EndpointId)     {}

// OnRecvAck implements the subscription filter: a non-matching message is
// dropped and the fair-queue is advanced immediately, re-issuing a recv
// against the next candidate pipe without surfacing anything to the caller.
func (s *Sub) OnRecvAck(eid id.EndpointId, msg *message.Message) Reply {
	if s.state != subReceiving || s.inflight != eid {
		return None()
	}
	s.fq.advance()
	if !s.matches(msg) {
		s.tryRecv()
		return None()
	}
	s.state = subIdle
	return Recv(msg)
}

func (s *Sub) matches(msg *message.Message) bool {
	if len(s.subscriptions) == 0 {
		return false
	}
	for _, prefix := range s.subscriptions {
		if bytes.HasPrefix(msg.Body, prefix) {
			return true
		}
	}
	return false
}

func (s *Sub) OnRecvReady(eid id.EndpointId) {
	s.fq.activate(eid)
	if s.state == subOnHold {
		s.tryRecv()
	}
}

func (s *Sub) OnSendTimeout() Reply { return None() }

func (s *Sub) OnRecvTimeout() Reply {
	if s.state == subIdle {
		return None()
	}
	s.state = subIdle
	return Err(scaperr.TimedOut, "sub: recv timed out")
}

func (s *Sub) SetOption(name string, value interface{}) error {
	switch name {
	case "Subscribe":
		prefix, ok := value.([]byte)
		if !ok {
			return scaperr.New(scaperr.InvalidInput, "sub: Subscribe requires a []byte prefix")
		}
		s.subscribe(prefix)
		return nil
	case "Unsubscribe":
		prefix, ok := value.([]byte)
		if !ok {
			return scaperr.New(scaperr.InvalidInput, "sub: Unsubscribe requires a []byte prefix")
		}
		s.unsubscribe(prefix)
		return nil
	default:
		return errUnknownOption(s.Name(), name)
	}
}

func (s *Sub) subscribe(prefix []byte) {
	for _, existing := range s.subscriptions {
		if bytes.Equal(existing, prefix) {
			return
		}
	}
	s.subscriptions = append(s.subscriptions, append([]byte(nil), prefix...))
}

func (s *Sub) unsubscribe(prefix []byte) {
	for i, existing := range s.subscriptions {
		if bytes.Equal(existing, prefix) {
			s.subscriptions = append(s.subscriptions[:i], s.subscriptions[i+1:]...)
			return
		}
	}
}

func (s *Sub) GetOption(name string) (interface{}, error) {
	switch name {
	case "Subscriptions":
		out := make([][]byte, len(s.subscriptions))
		copy(out, s.subscriptions)
		return out, nil
	default:
		return nil, errUnknownOption(s.Name(), name)
	}
}
