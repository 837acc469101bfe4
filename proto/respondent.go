package proto

import (
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/wire"
)

type respondentRecvState int

const (
	respondentRecvIdle respondentRecvState = iota
	respondentReceiving
	respondentRecvOnHold
)

type respondentSendState int

const (
	respondentSendIdle respondentSendState = iota
	respondentSending
	respondentSendOnHold
)

// Respondent is the answering half of SURVEYOR/RESPONDENT, symmetric to Rep:
// it fair-queues one survey at a time, remembers the survey's correlation
// id and the pipe it arrived on, and routes the next Send back to that
// pipe alone with the id reattached.
type Respondent struct {
	fq pipeTable

	recvState    respondentRecvState
	recvInflight id.EndpointId

	hasSurvey   bool
	surveyID    []byte
	replyPipe   id.EndpointId
	replyTarget PipeSender

	sendState   respondentSendState
	pendingSend *message.Message
}

// NewRespondent returns an idle Respondent protocol with no pipes.
func NewRespondent() *Respondent {
	return &Respondent{fq: newPipeTable()}
}

func (r *Respondent) Name() string   { return "respondent" }
func (r *Respondent) SelfID() uint16 { return wire.ProtoRespondent }
func (r *Respondent) PeerID() uint16 { return wire.ProtoSurveyor }

func (r *Respondent) AddPipe(eid id.EndpointId, ps PipeSender, _, recvPriority uint8) error {
	r.fq.add(eid, ps, recvPriority)
	return nil
}

func (r *Respondent) RemovePipe(eid id.EndpointId) {
	r.fq.remove(eid)
	if r.recvState == respondentReceiving && r.recvInflight == eid {
		r.recvState = respondentRecvOnHold
	}
	if r.hasSurvey && r.replyPipe == eid {
		r.hasSurvey = false
		r.surveyID = nil
		r.replyTarget = nil
	}
}

func (r *Respondent) Send(msg *message.Message) Reply {
	if !r.hasSurvey {
		return Err(scaperr.InvalidInput, "respondent: reply without a preceding recv")
	}
	if r.sendState != respondentSendIdle {
		return Err(scaperr.WouldBlock, "respondent: a send is already pending")
	}
	framed := message.FromBody(append(append([]byte(nil), r.surveyID...), msg.Body...))
	r.pendingSend = framed
	r.sendState = respondentSending
	if r.replyTarget == nil || !r.replyTarget.Send(framed) {
		r.sendState = respondentSendOnHold
	}
	return None()
}

func (r *Respondent) Recv() Reply {
	if r.recvState != respondentRecvIdle {
		return Err(scaperr.WouldBlock, "respondent: a recv is already pending")
	}
	r.tryRecv()
	return None()
}

func (r *Respondent) tryRecv() {
	eid, ps, ok := r.fq.current()
	if !ok || ps == nil || !ps.Recv() {
		r.recvState = respondentRecvOnHold
		return
	}
	r.recvState = respondentReceiving
	r.recvInflight = eid
}

func (r *Respondent) OnSendAck(eid id.EndpointId) Reply {
	if r.sendState != respondentSending || r.replyPipe != eid {
		return None()
	}
	r.sendState = respondentSendIdle
	r.pendingSend = nil
	r.hasSurvey = false
	return Sent()
}

func (r *Respondent) OnSendReady(eid id.EndpointId) {
	if r.sendState == respondentSendOnHold && r.replyPipe == eid && r.pendingSend != nil {
		if r.replyTarget != nil && r.replyTarget.Send(r.pendingSend) {
			r.sendState = respondentSending
		}
	}
}

func (r *Respondent) OnRecvAck(eid id.EndpointId, msg *message.Message) Reply {
	if r.recvState != respondentReceiving || r.recvInflight != eid {
		return None()
	}
	r.fq.advance()
	corrID, rest, ok := splitCorrelationID(msg.Body)
	if !ok {
		r.tryRecv()
		return None()
	}
	r.recvState = respondentRecvIdle
	r.hasSurvey = true
	r.surveyID = corrID
	r.replyPipe = eid
	r.replyTarget, _ = r.fq.get(eid)
	return Recv(message.FromBody(rest))
}

func (r *Respondent) OnRecvReady(eid id.EndpointId) {
	r.fq.activate(eid)
	if r.recvState == respondentRecvOnHold {
		r.tryRecv()
	}
}

func (r *Respondent) OnSendTimeout() Reply {
	if r.sendState == respondentSendIdle {
		return None()
	}
	r.sendState = respondentSendIdle
	r.pendingSend = nil
	r.hasSurvey = false
	return Err(scaperr.TimedOut, "respondent: send timed out")
}

func (r *Respondent) OnRecvTimeout() Reply {
	if r.recvState == respondentRecvIdle {
		return None()
	}
	r.recvState = respondentRecvIdle
	return Err(scaperr.TimedOut, "respondent: recv timed out")
}

func (r *Respondent) SetOption(name string, _ interface{}) error {
	return errUnknownOption(r.Name(), name)
}

func (r *Respondent) GetOption(name string) (interface{}, error) {
	return nil, errUnknownOption(r.Name(), name)
}
