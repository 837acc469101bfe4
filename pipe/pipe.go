// Package pipe implements the per-connection state machine of spec.md
// section 4.2: Initial -> HandshakeTx -> HandshakeRx -> Active -> Dead,
// surfacing Opened/Closed/SentMsg/RecvMsg events to its owner (a protocol,
// via the Socket/Session plumbing) in the grammar
// `Opened (SentMsg | RecvMsg)* Closed` (spec.md section 8), with Opened and
// Closed each raised at most once.
//
// All state transitions happen on the reactor goroutine (see
// SPEC_FULL.md section 5): the blocking handshake/send/recv calls below run
// on short-lived per-operation goroutines that only ever touch the
// transport.Stream and the close-once guard, never Pipe.State, and report
// completion by sending an Event on the channel supplied to Open. The reactor goroutine is the sole
// consumer of that channel and the sole mutator of Pipe.State.
package pipe

import (
	"sync"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/logging"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/transport"
)

// State is one of the five pipe lifecycle states of spec.md section 4.2.
type State int

const (
	Initial State = iota
	HandshakeTx
	HandshakeRx
	Active
	Dead
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case HandshakeTx:
		return "HandshakeTx"
	case HandshakeRx:
		return "HandshakeRx"
	case Active:
		return "Active"
	case Dead:
		return "Dead"
	default:
		return "unknown"
	}
}

// EventKind distinguishes the events a Pipe raises to its owner.
type EventKind int

const (
	Opened EventKind = iota
	Closed
	SentMsg
	RecvMsg
)

// Event is one occurrence raised by a Pipe, tagged with the EndpointId so
// the reactor can route it to the right Socket/Protocol.
type Event struct {
	Endpoint id.EndpointId
	Kind     EventKind
	Msg      *message.Message
	Err      error
}

// Pipe owns exactly one transport.Stream and drives it through the
// handshake and then framed message I/O, per spec.md section 3.
type Pipe struct {
	ID           id.EndpointId
	Stream       transport.Stream
	SendPriority uint8
	RecvPriority uint8
	RecvMaxSize  int64
	SelfProto    uint16
	PeerProto    uint16

	State State

	sendInFlight bool
	recvInFlight bool

	closeOnce sync.Once

	events chan<- Event
	log    logging.T
}

// New constructs a Pipe in the Initial state. The caller must call Open
// before any Send/Recv.
func New(eid id.EndpointId, stream transport.Stream, selfProto, peerProto uint16, sendPriority, recvPriority uint8, recvMaxSize int64) *Pipe {
	return &Pipe{
		ID:           eid,
		Stream:       stream,
		SendPriority: sendPriority,
		RecvPriority: recvPriority,
		RecvMaxSize:  recvMaxSize,
		SelfProto:    selfProto,
		PeerProto:    peerProto,
		State:        Initial,
		log:          logging.Get(),
	}
}

// Open begins the handshake. events is the channel the reactor drains;
// every Event this Pipe ever raises is sent there. Must be called exactly
// once, from the reactor goroutine.
func (p *Pipe) Open(events chan<- Event) {
	p.events = events
	if p.Stream == nil {
		p.State = Dead
		p.emit(Event{Endpoint: p.ID, Kind: Closed})
		return
	}
	if err := p.Stream.SetNoDelay(true); err != nil {
		p.log.Debugf("pipe %d: SetNoDelay failed (ignored): %v", p.ID, err)
	}
	p.State = HandshakeTx
	go p.runHandshake()
}

func (p *Pipe) runHandshake() {
	if err := p.Stream.SendHandshake(p.SelfProto); err != nil {
		p.closeAndEmit(err)
		return
	}
	if err := p.Stream.RecvHandshake(p.PeerProto); err != nil {
		p.closeAndEmit(err)
		return
	}
	p.emit(Event{Endpoint: p.ID, Kind: Opened})
}

// ApplyOpened transitions Active on a successful handshake. Called by the
// reactor when it dequeues an Opened event.
func (p *Pipe) ApplyOpened() {
	if p.State == HandshakeTx {
		p.State = Active
	}
}

// ApplyClosed transitions Dead. Called by the reactor when it dequeues a
// Closed event, from any prior state.
func (p *Pipe) ApplyClosed() {
	p.State = Dead
	p.sendInFlight = false
	p.recvInFlight = false
}

// Send kicks off writing one framed message. The caller (a protocol, via
// the reactor) must not call Send again until a SentMsg or Closed event for
// this pipe has been observed. Returns false without doing anything if the
// pipe is not Active or a send is already in flight.
func (p *Pipe) Send(msg *message.Message) bool {
	if p.State != Active || p.sendInFlight {
		return false
	}
	p.sendInFlight = true
	go p.runSend(msg)
	return true
}

func (p *Pipe) runSend(msg *message.Message) {
	if err := p.Stream.Send(msg); err != nil {
		p.closeAndEmit(err)
		return
	}
	p.emit(Event{Endpoint: p.ID, Kind: SentMsg})
}

// ApplySent clears the in-flight send marker. Called by the reactor when it
// dequeues a SentMsg event.
func (p *Pipe) ApplySent() {
	p.sendInFlight = false
}

// Recv kicks off reading one framed message. Same in-flight discipline as
// Send.
func (p *Pipe) Recv() bool {
	if p.State != Active || p.recvInFlight {
		return false
	}
	p.recvInFlight = true
	go p.runRecv()
	return true
}

func (p *Pipe) runRecv() {
	msg, err := p.Stream.Recv(p.RecvMaxSize)
	if err != nil {
		p.closeAndEmit(err)
		return
	}
	p.emit(Event{Endpoint: p.ID, Kind: RecvMsg, Msg: msg})
}

func (p *Pipe) closeAndEmit(err error) {
	p.closeOnce.Do(func() {
		if p.Stream != nil {
			_ = p.Stream.Close()
		}
		p.emit(Event{Endpoint: p.ID, Kind: Closed, Err: err})
	})
}

// ApplyRecv clears the in-flight recv marker. Called by the reactor when it
// dequeues a RecvMsg event.
func (p *Pipe) ApplyRecv() {
	p.recvInFlight = false
}

// Close tears down the underlying stream. Safe to call from the reactor
// goroutine in any state; idempotent.
func (p *Pipe) Close() {
	if p.State == Dead {
		return
	}
	if p.Stream != nil {
		_ = p.Stream.Close()
	}
	p.State = Dead
}

func (p *Pipe) emit(evt Event) {
	if p.events == nil {
		return
	}
	p.events <- evt
}
