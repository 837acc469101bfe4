// Package socket implements spec.md section 4.5: one Protocol, its
// Endpoints, the two pending-reply slots, and the configured timeouts,
// all owned and mutated exclusively by the goroutine running Run — the
// per-socket analogue of the single reactor thread SPEC_FULL.md section 5
// describes, following the teacher's pattern of one command-processing
// goroutine per owned resource (see DESIGN.md's `pipe`/`endpoint` entries
// for the same shape one level down).
package socket

import (
	"time"

	"github.com/wayslog/scaproust/cmd"
	"github.com/wayslog/scaproust/config"
	"github.com/wayslog/scaproust/endpoint"
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/logging"
	"github.com/wayslog/scaproust/pipe"
	"github.com/wayslog/scaproust/proto"
	"github.com/wayslog/scaproust/scaperr"
)

// retrier is implemented by *proto.Req: RetryTime governs re-sending the
// outstanding request to a different pipe (spec.md section 4.6's
// Resend(socket) timeout kind).
type retrier interface {
	RetryDue()
}

// Readiness is the coarse send/recv readiness hint a Socket publishes for
// a Probe to report (the reactor dispatch hook of SPEC_FULL.md's Non-goals).
// It reflects only whether the socket currently has at least one pipe to
// operate on, not the finer per-op CanSend/CanRecv readiness the Pipe
// state machine tracks internally — servicing an actual Probe.Poll() on
// top of this is left to the façade layer.
type Readiness uint8

const (
	CanSend Readiness = 1 << iota
	CanRecv
)

type endpointEntry struct {
	ep    *endpoint.Endpoint
	kind  endpoint.Kind
	pipes map[id.EndpointId]*pipe.Pipe
}

// Socket is one user-visible messaging endpoint: a Protocol state machine
// plus every Connector/Acceptor Endpoint and Pipe it currently owns.
type Socket struct {
	ID    id.SocketId
	proto proto.Protocol
	cfg   config.Config
	log   logging.T

	endpoints map[id.EndpointId]*endpointEntry
	pipes     map[id.EndpointId]id.EndpointId // pipe id -> owning endpoint id

	cmds       chan *cmd.Cmd
	pipeEvents chan pipe.Event
	epEvents   chan endpoint.Event

	pendingSend *cmd.Cmd
	pendingRecv *cmd.Cmd

	sendTimer   *time.Timer
	recvTimer   *time.Timer
	surveyTimer *time.Timer
	retryTimer  *time.Timer

	readiness chan Readiness

	done chan struct{}
}

// New builds a Socket around a freshly constructed protocol of the given
// pattern name (the strings proto.New accepts: "push", "pull", "pair",
// "pub", "sub", "bus", "req", "rep", "surveyor", "respondent").
func New(sid id.SocketId, patternName string, cfg config.Config) (*Socket, error) {
	p, err := proto.New(patternName)
	if err != nil {
		return nil, scaperr.Wrap(scaperr.InvalidInput, "socket: unknown protocol", err)
	}
	return &Socket{
		ID:         sid,
		proto:      p,
		cfg:        cfg,
		log:        logging.Get(),
		endpoints:  make(map[id.EndpointId]*endpointEntry),
		pipes:      make(map[id.EndpointId]id.EndpointId),
		cmds:       make(chan *cmd.Cmd, 16),
		pipeEvents: make(chan pipe.Event, 64),
		epEvents:   make(chan endpoint.Event, 16),
		readiness:  make(chan Readiness, 1),
		done:       make(chan struct{}),
	}, nil
}

// Cmds is the channel a façade or the owning Session sends commands on.
func (s *Socket) Cmds() chan<- *cmd.Cmd { return s.cmds }

// Done is closed once Run returns (a Close command has been fully
// processed: every endpoint and pipe torn down).
func (s *Socket) Done() <-chan struct{} { return s.done }

// Readiness is the channel a Probe drains for this socket's latest
// readiness hint. Updates coalesce — only the most recent value matters,
// so a slow or absent reader never blocks the reactor.
func (s *Socket) Readiness() <-chan Readiness { return s.readiness }

func (s *Socket) publishReadiness() {
	var r Readiness
	if len(s.pipes) > 0 {
		r = CanSend | CanRecv
	}
	select {
	case <-s.readiness:
	default:
	}
	select {
	case s.readiness <- r:
	default:
	}
}

// Run is the socket's reactor loop. Call it in its own goroutine; it
// returns once a Close command has drained every endpoint and pipe.
func (s *Socket) Run() {
	defer close(s.done)
	for {
		select {
		case c := <-s.cmds:
			if !s.handleCmd(c) {
				return
			}
		case evt := <-s.pipeEvents:
			s.handlePipeEvent(evt)
		case evt := <-s.epEvents:
			s.handleEndpointEvent(evt)
		case <-s.timerC(s.sendTimer):
			s.handleSendTimeout()
		case <-s.timerC(s.recvTimer):
			s.handleRecvTimeout()
		case <-s.timerC(s.surveyTimer):
			s.handleSurveyTimeout()
		case <-s.timerC(s.retryTimer):
			s.handleResend()
		}
	}
}

// timerC returns t.C, or nil (a permanently blocking channel) if t is nil
// — the idiomatic way to make an inactive timer simply not participate in
// the select.
func (s *Socket) timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (s *Socket) handleCmd(c *cmd.Cmd) bool {
	switch c.Kind {
	case cmd.Connect:
		s.handleConnect(c)
	case cmd.Bind:
		s.handleBind(c)
	case cmd.Shutdown:
		s.handleShutdown(c)
	case cmd.Send:
		s.handleSend(c)
	case cmd.Recv:
		s.handleRecv(c)
	case cmd.SetOpt:
		s.handleSetOpt(c)
	case cmd.GetOpt:
		s.handleGetOpt(c)
	case cmd.Close:
		s.handleClose(c)
		return false
	}
	return true
}

func (s *Socket) newEndpoint(kind endpoint.Kind, url string) (*endpoint.Endpoint, error) {
	eid := id.NewEndpointId()
	ep, err := endpoint.New(eid, kind, url, s.cfg.EndpointDesc, s.cfg.Backoff, s.proto.SelfID(), s.proto.PeerID())
	if err != nil {
		return nil, err
	}
	s.endpoints[eid] = &endpointEntry{ep: ep, kind: kind, pipes: make(map[id.EndpointId]*pipe.Pipe)}
	ep.Open(s.epEvents)
	return ep, nil
}

func (s *Socket) handleConnect(c *cmd.Cmd) {
	ep, err := s.newEndpoint(endpoint.Connector, c.URL)
	if err != nil {
		c.Reply <- cmd.ErrReply(err)
		return
	}
	c.Reply <- cmd.EndpointReply(ep.ID)
}

func (s *Socket) handleBind(c *cmd.Cmd) {
	ep, err := s.newEndpoint(endpoint.Acceptor, c.URL)
	if err != nil {
		c.Reply <- cmd.ErrReply(err)
		return
	}
	c.Reply <- cmd.EndpointReply(ep.ID)
}

func (s *Socket) handleShutdown(c *cmd.Cmd) {
	entry, ok := s.endpoints[c.Endpoint]
	if !ok {
		c.Reply <- cmd.ErrReply(scaperr.New(scaperr.InvalidInput, "socket: unknown endpoint"))
		return
	}
	s.closeEndpoint(c.Endpoint, entry)
	c.Reply <- cmd.OK()
}

func (s *Socket) closeEndpoint(eid id.EndpointId, entry *endpointEntry) {
	entry.ep.Close()
	for pid, p := range entry.pipes {
		p.Close()
		s.proto.RemovePipe(pid)
		delete(s.pipes, pid)
	}
	delete(s.endpoints, eid)
	s.publishReadiness()
}

func (s *Socket) handleClose(c *cmd.Cmd) {
	for eid, entry := range s.endpoints {
		s.closeEndpoint(eid, entry)
	}
	stopTimer(s.sendTimer)
	stopTimer(s.recvTimer)
	stopTimer(s.surveyTimer)
	stopTimer(s.retryTimer)
	if s.pendingSend != nil {
		s.pendingSend.Reply <- cmd.ErrReply(scaperr.New(scaperr.Other, "socket: closed"))
		s.pendingSend = nil
	}
	if s.pendingRecv != nil {
		s.pendingRecv.Reply <- cmd.ErrReply(scaperr.New(scaperr.Other, "socket: closed"))
		s.pendingRecv = nil
	}
	c.Reply <- cmd.OK()
}

func (s *Socket) handleSend(c *cmd.Cmd) {
	reply := s.proto.Send(c.Msg)
	switch reply.Kind {
	case proto.ReplySent:
		c.Reply <- cmd.OK()
		// A surveyor's Send always replies Sent immediately (the survey is
		// multicast, there's no per-pipe ack to wait for), so the deadline
		// window has to be armed here rather than under ReplyNone below —
		// otherwise it would only start at the first Recv instead of at
		// Send, per the survey's "send opens a deadline window" contract.
		if s.proto.Name() == "surveyor" {
			stopTimer(s.surveyTimer)
			s.surveyTimer = time.NewTimer(s.cfg.SurveyTime)
		}
	case proto.ReplyErr:
		c.Reply <- cmd.ErrReply(reply.Err)
	case proto.ReplyNone:
		s.pendingSend = c
		s.sendTimer = time.NewTimer(s.cfg.SendTimeout)
	}
}

func (s *Socket) handleRecv(c *cmd.Cmd) {
	reply := s.proto.Recv()
	switch reply.Kind {
	case proto.ReplyRecv:
		c.Reply <- cmd.MsgReply(reply.Msg)
	case proto.ReplyErr:
		c.Reply <- cmd.ErrReply(reply.Err)
	case proto.ReplyNone:
		s.pendingRecv = c
		// A surveyor's recv is already bounded by the surveyTimer armed in
		// handleSend at the start of the survey; arming a second,
		// independent RecvTimeout-length timer here would both re-extend
		// the deadline on every recv call and race the one that actually
		// owns the "survey expired" semantics (proto.OnRecvTimeout).
		if s.proto.Name() != "surveyor" {
			s.recvTimer = time.NewTimer(s.cfg.RecvTimeout)
		}
		if s.proto.Name() == "req" {
			s.retryTimer = time.NewTimer(s.cfg.RetryTime)
		}
	}
}

func (s *Socket) handleSetOpt(c *cmd.Cmd) {
	if err := s.proto.SetOption(c.OptName, c.OptValue); err != nil {
		c.Reply <- cmd.ErrReply(err)
		return
	}
	// The Socket owns the retry and survey timers, so an accepted
	// RetryTime/SurveyTime option also sets the duration they are armed with.
	if d, ok := c.OptValue.(time.Duration); ok && d > 0 {
		switch c.OptName {
		case "RetryTime":
			s.cfg.RetryTime = d
		case "SurveyTime":
			s.cfg.SurveyTime = d
		}
	}
	c.Reply <- cmd.OK()
}

func (s *Socket) handleGetOpt(c *cmd.Cmd) {
	v, err := s.proto.GetOption(c.OptName)
	if err != nil {
		c.Reply <- cmd.ErrReply(err)
		return
	}
	c.Reply <- cmd.OptValueReply(v)
}

func (s *Socket) handleSendTimeout() {
	s.sendTimer = nil
	reply := s.proto.OnSendTimeout()
	s.resolvePendingSend(reply)
}

func (s *Socket) handleRecvTimeout() {
	s.recvTimer = nil
	reply := s.proto.OnRecvTimeout()
	s.resolvePendingRecv(reply)
}

func (s *Socket) handleSurveyTimeout() {
	s.surveyTimer = nil
	reply := s.proto.OnRecvTimeout()
	s.resolvePendingRecv(reply)
}

func (s *Socket) handleResend() {
	s.retryTimer = nil
	if r, ok := s.proto.(retrier); ok {
		r.RetryDue()
		s.retryTimer = time.NewTimer(s.cfg.RetryTime)
	}
}

func (s *Socket) resolvePendingSend(reply proto.Reply) {
	if s.pendingSend == nil {
		return
	}
	switch reply.Kind {
	case proto.ReplySent:
		s.pendingSend.Reply <- cmd.OK()
	case proto.ReplyErr:
		s.pendingSend.Reply <- cmd.ErrReply(reply.Err)
	default:
		return
	}
	s.pendingSend = nil
	stopTimer(s.sendTimer)
	s.sendTimer = nil
}

func (s *Socket) resolvePendingRecv(reply proto.Reply) {
	if s.pendingRecv == nil {
		return
	}
	switch reply.Kind {
	case proto.ReplyRecv:
		s.pendingRecv.Reply <- cmd.MsgReply(reply.Msg)
	case proto.ReplyErr:
		s.pendingRecv.Reply <- cmd.ErrReply(reply.Err)
	default:
		return
	}
	s.pendingRecv = nil
	stopTimer(s.recvTimer)
	s.recvTimer = nil
	// surveyTimer is deliberately left running: a survey's deadline window
	// spans multiple recv calls (each collecting one more RESPONDENT
	// reply), so only handleSurveyTimeout firing — or the next Send
	// starting a fresh survey — ends it, not an individual recv resolving.
	stopTimer(s.retryTimer)
	s.retryTimer = nil
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (s *Socket) handlePipeEvent(evt pipe.Event) {
	eid, owned := s.pipes[evt.Endpoint]
	entry, ok := s.endpoints[eid]
	if !owned || !ok {
		return
	}
	p := s.findPipe(entry, evt.Endpoint)
	if p == nil {
		return
	}

	switch evt.Kind {
	case pipe.Opened:
		p.ApplyOpened()
		if err := s.proto.AddPipe(p.ID, p, p.SendPriority, p.RecvPriority); err != nil {
			s.log.Debugf("socket %d: pipe %d rejected: %v", s.ID, p.ID, err)
			p.Close()
			delete(entry.pipes, p.ID)
			delete(s.pipes, p.ID)
			return
		}
		s.proto.OnSendReady(p.ID)
		s.proto.OnRecvReady(p.ID)
		s.publishReadiness()

	case pipe.SentMsg:
		p.ApplySent()
		s.resolvePendingSend(s.proto.OnSendAck(p.ID))
		s.proto.OnSendReady(p.ID)

	case pipe.RecvMsg:
		p.ApplyRecv()
		s.resolvePendingRecv(s.proto.OnRecvAck(p.ID, evt.Msg))
		s.proto.OnRecvReady(p.ID)

	case pipe.Closed:
		p.ApplyClosed()
		s.proto.RemovePipe(p.ID)
		delete(entry.pipes, p.ID)
		delete(s.pipes, p.ID)
		s.publishReadiness()
		if entry.kind == endpoint.Connector {
			entry.ep.Reconnect()
		}
	}
}

func (s *Socket) findPipe(entry *endpointEntry, pid id.EndpointId) *pipe.Pipe {
	return entry.pipes[pid]
}

func (s *Socket) handleEndpointEvent(evt endpoint.Event) {
	entry, ok := s.endpoints[evt.ID]
	if !ok {
		return
	}
	switch evt.Kind {
	case endpoint.PipeAdded:
		p := evt.Pipe
		entry.pipes[p.ID] = p
		s.pipes[p.ID] = evt.ID
		p.Open(s.pipeEvents)
	case endpoint.DialFailed:
		s.log.Debugf("socket %d: endpoint %d: %v", s.ID, evt.ID, evt.Err)
	}
}
