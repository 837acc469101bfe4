package session

import (
	"sync"

	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/socket"
)

// Readiness mirrors socket.Readiness: the send/recv readiness hint a Probe
// reports for the socket it watches (spec.md section 3's "Probe" and the
// reactor dispatch hook of SPEC_FULL.md's Non-goals). Re-exported here so a
// façade can observe a Probe's readiness without importing socket itself.
type Readiness = socket.Readiness

const (
	CanSend = socket.CanSend
	CanRecv = socket.CanRecv
)

// Probe holds a SocketId and the latest readiness mask published by that
// socket's reactor. Actually servicing a blocking Probe.Poll() call over
// multiple probes is left to the façade layer (SPEC_FULL.md's explicit
// Non-goal); Probe itself only keeps the mask current.
type Probe struct {
	ID     id.ProbeId
	Socket id.SocketId

	mu        sync.Mutex
	readiness Readiness

	stop     chan struct{}
	stopOnce sync.Once
}

// Readiness returns the most recently published send/recv readiness hint
// for the probed socket.
func (p *Probe) Readiness() Readiness {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readiness
}

func (p *Probe) setReadiness(r Readiness) {
	p.mu.Lock()
	p.readiness = r
	p.mu.Unlock()
}

// watch drains sock's readiness channel until the probed socket goes away
// or the probe is destroyed. One goroutine per Probe, the same shape as
// pipe/endpoint's own per-resource watcher goroutines.
func (p *Probe) watch(sock *socket.Socket) {
	for {
		select {
		case r := <-sock.Readiness():
			p.setReadiness(r)
		case <-sock.Done():
			return
		case <-p.stop:
			return
		}
	}
}

func (p *Probe) close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// CreateProbe attaches a Probe to an existing socket, or returns the one
// already attached to it (spec.md section 3's "bidirectional index
// SocketId ↔ ProbeId for probes" — at most one Probe per socket).
func (sess *Session) CreateProbe(sid id.SocketId) (*Probe, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, scaperr.New(scaperr.InvalidInput, "session: already shut down")
	}
	sock, ok := sess.sockets[sid]
	if !ok {
		return nil, scaperr.New(scaperr.InvalidInput, "session: unknown socket")
	}
	if pid, ok := sess.socketProbes[sid]; ok {
		return sess.probes[pid], nil
	}
	p := &Probe{ID: id.NewProbeId(), Socket: sid, stop: make(chan struct{})}
	sess.probes[p.ID] = p
	sess.socketProbes[sid] = p.ID
	go p.watch(sock)
	return p, nil
}

// DestroyProbe detaches and stops a Probe.
func (sess *Session) DestroyProbe(pid id.ProbeId) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	p, ok := sess.probes[pid]
	if !ok {
		return scaperr.New(scaperr.InvalidInput, "session: unknown probe")
	}
	delete(sess.probes, pid)
	delete(sess.socketProbes, p.Socket)
	p.close()
	return nil
}
