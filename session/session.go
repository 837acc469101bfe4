// Package session implements spec.md section 4.6's session-level registry:
// creating and destroying Sockets and, on Shutdown, draining every Socket's
// endpoints and pipes before returning. spec.md describes one literal
// single-threaded reactor multiplexing Notify/Ready/Timeout across every
// socket and pipe in the process; this module instead gives each Socket
// its own single-threaded reactor goroutine (socket.Socket.Run) and keeps
// the one global invariant that actually matters — no Socket's state is
// ever touched by more than one goroutine — without hand-rolling a single
// global select across a dynamic channel set, which Go's select doesn't
// support without reflection. Session is the thin layer above that
// coordinates socket lifecycles and fans shutdown out across them, the way
// the teacher's agent/ subsystems are each driven by their own
// command-processing goroutine under one coordinating top-level component.
package session

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wayslog/scaproust/cmd"
	"github.com/wayslog/scaproust/config"
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/socket"
)

// Session owns every Socket created through it for the lifetime of a
// process (or test).
type Session struct {
	mu           sync.Mutex
	cfg          config.Config
	sockets      map[id.SocketId]*socket.Socket
	probes       map[id.ProbeId]*Probe
	socketProbes map[id.SocketId]id.ProbeId
	closed       bool
}

// New builds a Session using cfg as the default configuration for every
// Socket it creates.
func New(cfg config.Config) *Session {
	return &Session{
		cfg:          cfg,
		sockets:      make(map[id.SocketId]*socket.Socket),
		probes:       make(map[id.ProbeId]*Probe),
		socketProbes: make(map[id.SocketId]id.ProbeId),
	}
}

// NewSocket creates a Socket of the given protocol pattern, starts its
// reactor goroutine, and registers it with the session.
func (sess *Session) NewSocket(patternName string) (*socket.Socket, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, scaperr.New(scaperr.InvalidInput, "session: already shut down")
	}
	sid := id.NewSocketId()
	sock, err := socket.New(sid, patternName, sess.cfg)
	if err != nil {
		return nil, err
	}
	sess.sockets[sid] = sock
	go sock.Run()
	return sock, nil
}

// CloseSocket tears down one socket (every endpoint and pipe it owns) and
// removes it from the session, along with any Probe attached to it.
func (sess *Session) CloseSocket(sid id.SocketId) error {
	sess.mu.Lock()
	sock, ok := sess.sockets[sid]
	if ok {
		delete(sess.sockets, sid)
	}
	sess.detachProbeLocked(sid)
	sess.mu.Unlock()
	if !ok {
		return scaperr.New(scaperr.InvalidInput, "session: unknown socket")
	}
	return closeAndWait(sock)
}

// detachProbeLocked removes and stops the Probe attached to sid, if any.
// Callers must hold sess.mu.
func (sess *Session) detachProbeLocked(sid id.SocketId) {
	pid, ok := sess.socketProbes[sid]
	if !ok {
		return
	}
	delete(sess.socketProbes, sid)
	if p, ok := sess.probes[pid]; ok {
		delete(sess.probes, pid)
		p.close()
	}
}

func closeAndWait(sock *socket.Socket) error {
	c := cmd.NewClose()
	sock.Cmds() <- c
	reply := <-c.Reply
	<-sock.Done()
	if reply.Kind == cmd.ReplyErr {
		return reply.Err
	}
	return nil
}

// Shutdown closes every socket the session owns, in parallel, and waits
// for all of them to fully drain (spec.md section 4.6: "Shutdown drains
// all sockets ... and then breaks the loop").
func (sess *Session) Shutdown() error {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil
	}
	sess.closed = true
	socks := make([]*socket.Socket, 0, len(sess.sockets))
	for _, sock := range sess.sockets {
		socks = append(socks, sock)
	}
	sess.sockets = make(map[id.SocketId]*socket.Socket)
	for _, p := range sess.probes {
		p.close()
	}
	sess.probes = make(map[id.ProbeId]*Probe)
	sess.socketProbes = make(map[id.SocketId]id.ProbeId)
	sess.mu.Unlock()

	var g errgroup.Group
	for _, sock := range socks {
		sock := sock
		g.Go(func() error {
			return closeAndWait(sock)
		})
	}
	return g.Wait()
}
