package proto

import (
	"bytes"
	"time"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type surveyorRecvState int

const (
	surveyorRecvIdle surveyorRecvState = iota
	surveyorReceiving
	surveyorRecvOnHold
)

// Surveyor multicasts each send (the "survey") like Pub, stamping a fresh
// correlation id, and opens a deadline window (SurveyTime) during which
// Recv may be called repeatedly to collect RESPONDENT replies carrying
// that id — any other traffic is dropped the way Sub drops non-matching
// messages. Once the Socket signals the deadline via OnRecvTimeout, further
// Recv calls fail immediately until the next survey.
type Surveyor struct {
	pipes pipeTable

	nextID    uint32
	surveyID  []byte
	open      bool

	recvState    surveyorRecvState
	recvInflight id.EndpointId

	surveyTime time.Duration
}

// NewSurveyor returns an idle Surveyor protocol with no pipes.
func NewSurveyor() *Surveyor {
	return &Surveyor{pipes: newPipeTable()}
}

func (s *Surveyor) Name() string   { return "surveyor" }
func (s *Surveyor) SelfID() uint16 { return wire.ProtoSurveyor }
func (s *Surveyor) PeerID() uint16 { return wire.ProtoRespondent }

func (s *Surveyor) AddPipe(eid id.EndpointId, ps PipeSender, sendPriority, recvPriority uint8) error {
	s.pipes.add(eid, ps, sendPriority)
	_ = recvPriority
	return nil
}

func (s *Surveyor) RemovePipe(eid id.EndpointId) {
	s.pipes.remove(eid)
	if s.recvState == surveyorReceiving && s.recvInflight == eid {
		s.recvState = surveyorRecvOnHold
	}
}

func (s *Surveyor) Send(msg *message.Message) Reply {
	s.nextID++
	framed := encodeCorrelationID(s.nextID, msg.Body)
	s.surveyID = framed[:correlationIDLen]
	s.open = true
	s.recvState = surveyorRecvIdle
	out := message.FromBody(framed)
	s.pipes.each(func(_ id.EndpointId, ps PipeSender) {
		ps.Send(out)
	})
	return Sent()
}

func (s *Surveyor) Recv() Reply {
	if !s.open {
		return Err(scaperr.TimedOut, "surveyor: no survey in progress")
	}
	if s.recvState != surveyorRecvIdle {
		return Err(scaperr.WouldBlock, "surveyor: a recv is already pending")
	}
	s.recvNext()
	return None()
}

func (s *Surveyor) OnSendAck(id.EndpointId) Reply { return None() }
func (s *Surveyor) OnSendReady(id.EndpointId)     {}

func (s *Surveyor) OnRecvAck(eid id.EndpointId, msg *message.Message) Reply {
	if s.recvState != surveyorReceiving || s.recvInflight != eid {
		return None()
	}
	s.pipes.advance()
	corrID, rest, ok := splitCorrelationID(msg.Body)
	if !ok || !bytes.Equal(corrID, s.surveyID) {
		s.recvNext()
		return None()
	}
	s.recvState = surveyorRecvIdle
	return Recv(message.FromBody(rest))
}

func (s *Surveyor) recvNext() {
	eid, ps, ok := s.pipes.current()
	if !ok || ps == nil || !ps.Recv() {
		s.recvState = surveyorRecvOnHold
		return
	}
	s.recvState = surveyorReceiving
	s.recvInflight = eid
}

func (s *Surveyor) OnRecvReady(eid id.EndpointId) {
	s.pipes.activate(eid)
	if s.open && s.recvState == surveyorRecvOnHold {
		s.recvNext()
	}
}

func (s *Surveyor) OnSendTimeout() Reply { return None() }

// OnRecvTimeout is delivered when the SurveyTime deadline elapses; it
// closes the survey window so subsequent Recv calls fail immediately
// instead of blocking on a recv that will never be satisfied.
func (s *Surveyor) OnRecvTimeout() Reply {
	wasReceiving := s.recvState != surveyorRecvIdle
	s.open = false
	s.recvState = surveyorRecvIdle
	if !wasReceiving {
		return None()
	}
	return Err(scaperr.TimedOut, "surveyor: survey deadline elapsed")
}

func (s *Surveyor) SetOption(name string, value interface{}) error {
	switch name {
	case "SurveyTime":
		d, ok := value.(time.Duration)
		if !ok {
			return scaperr.New(scaperr.InvalidInput, "surveyor: SurveyTime requires a time.Duration")
		}
		s.surveyTime = d
		return nil
	default:
		return errUnknownOption(s.Name(), name)
	}
}

func (s *Surveyor) GetOption(name string) (interface{}, error) {
	switch name {
	case "SurveyTime":
		return s.surveyTime, nil
	default:
		return nil, errUnknownOption(s.Name(), name)
	}
}
