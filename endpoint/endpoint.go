// Package endpoint implements the user-declared connection points of
// spec.md section 4.3: a Connector dials out and reconnects on failure, an
// Acceptor binds and accepts repeatedly, and both rebind/reconnect with
// exponential backoff (teacher: agent/backoffconfig) and hand every newly
// established connection to the reactor as a fresh pipe.Pipe.
package endpoint

import (
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wayslog/scaproust/config"
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/logging"
	"github.com/wayslog/scaproust/pipe"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/transport"
)

// Kind distinguishes a Connector from an Acceptor.
type Kind int

const (
	Connector Kind = iota
	Acceptor
)

// EventKind distinguishes the events an Endpoint raises to its owner (the
// Socket, via the reactor).
type EventKind int

const (
	// PipeAdded carries a freshly constructed, not-yet-opened Pipe for a
	// newly established connection.
	PipeAdded EventKind = iota
	// DialFailed reports a failed dial (Connector) or a failed bind or
	// accept (Acceptor). After a failed dial or bind the Endpoint sleeps
	// one backoff step and retries; after a failed accept it rebinds at
	// once. A Connector whose transport cannot build a dialer at all
	// reports DialFailed once and stops.
	DialFailed
)

// Event is one occurrence raised by an Endpoint.
type Event struct {
	ID   id.EndpointId
	Kind EventKind
	Pipe *pipe.Pipe
	Err  error
}

// Endpoint is a user-declared connect or bind URL, producing Pipes over
// its lifetime. All public methods except Open/Close are safe to call
// only from the reactor goroutine; Open spawns the background goroutine
// that does the actual dialing/accepting and reports back over events.
type Endpoint struct {
	ID        id.EndpointId
	Kind      Kind
	URL       string
	scheme    string
	authority string
	desc      config.EndpointDesc
	backoff   config.Backoff
	selfProto uint16
	peerProto uint16

	factory transport.Factory

	events chan<- Event
	log    logging.T

	stop     chan struct{}
	stopOnce sync.Once
	retry    chan struct{}

	bo *backoff.ExponentialBackOff

	mu       sync.Mutex
	listener transport.Listener
}

// Parse splits a "scheme://authority" URL per spec.md section 6's URL
// grammar. Returns InvalidInput for anything that doesn't parse or is
// missing either part.
func Parse(raw string) (scheme, authority string, err error) {
	u, parseErr := url.Parse(raw)
	if parseErr != nil || u.Scheme == "" || u.Host == "" {
		return "", "", scaperr.New(scaperr.InvalidInput, "endpoint: malformed URL "+raw)
	}
	return u.Scheme, u.Host, nil
}

// New builds an Endpoint of the given kind for rawURL. Returns
// InvalidInput if the URL is malformed or its scheme has no registered
// transport.Factory (e.g. ipc/inproc, per spec.md section 9).
func New(eid id.EndpointId, kind Kind, rawURL string, desc config.EndpointDesc, bo config.Backoff, selfProto, peerProto uint16) (*Endpoint, error) {
	scheme, authority, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	factory, ok := transport.Lookup(scheme)
	if !ok {
		return nil, scaperr.Wrap(scaperr.InvalidInput, "endpoint: no transport for "+rawURL, &transport.ErrUnsupportedScheme{Scheme: scheme})
	}
	return &Endpoint{
		ID:        eid,
		Kind:      kind,
		URL:       rawURL,
		scheme:    scheme,
		authority: authority,
		desc:      desc,
		backoff:   bo,
		selfProto: selfProto,
		peerProto: peerProto,
		factory:   factory,
		log:       logging.Get(),
		stop:      make(chan struct{}),
		retry:     make(chan struct{}, 1),
		bo:        newBackoff(bo),
	}, nil
}

func newBackoff(cfg config.Backoff) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.Initial > 0 {
		b.InitialInterval = cfg.Initial
	}
	if cfg.Max > 0 {
		b.MaxInterval = cfg.Max
	}
	b.Multiplier = 2.0
	// spec.md section 4.3 calls for a plain doubling backoff with no
	// jitter ("initial 100 ms, doubled per consecutive failure, capped at
	// 10 s"); the teacher's own agent/backoffconfig applies a 0.2
	// jitter factor, but that's a tuning choice for a different failure
	// domain (AWS API retries) and would make reconnect timing
	// non-deterministic against the spec's stated progression.
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // never give up; Socket.Shutdown stops us instead.
	b.Reset()
	return b
}

// Open starts the background dial/accept loop. events is the channel the
// reactor drains.
func (e *Endpoint) Open(events chan<- Event) {
	e.events = events
	if e.Kind == Connector {
		go e.runConnector()
	} else {
		go e.runAcceptor()
	}
}

// Reconnect signals a Connector endpoint whose pipe has died to dial
// again. A no-op for an Acceptor (which keeps accepting unconditionally)
// or if a reconnect attempt is already pending.
func (e *Endpoint) Reconnect() {
	if e.Kind != Connector {
		return
	}
	select {
	case e.retry <- struct{}{}:
	default:
	}
}

// Close stops the background loop and releases any bound listener.
// Idempotent. For an Acceptor parked in a blocking Accept, closing the
// listener is what actually unblocks runAcceptor — closing e.stop alone
// is not observed until the next loop iteration.
func (e *Endpoint) Close() {
	e.stopOnce.Do(func() {
		close(e.stop)
		e.mu.Lock()
		ln := e.listener
		e.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
	})
}

func (e *Endpoint) setListener(ln transport.Listener) {
	e.mu.Lock()
	e.listener = ln
	e.mu.Unlock()
}

func (e *Endpoint) emit(evt Event) {
	evt.ID = e.ID
	if e.events == nil {
		return
	}
	e.events <- evt
}

func (e *Endpoint) newPipe(stream transport.Stream) *pipe.Pipe {
	return pipe.New(id.NewEndpointId(), stream, e.selfProto, e.peerProto, e.desc.SendPriority, e.desc.RecvPriority, e.desc.RecvMaxSize)
}

func (e *Endpoint) backoffSleep() bool {
	d := e.bo.NextBackOff()
	if d == backoff.Stop {
		d = e.bo.MaxInterval
	}
	select {
	case <-time.After(d):
		return true
	case <-e.stop:
		return false
	}
}

func (e *Endpoint) runConnector() {
	dialer, err := e.factory.NewDialer(e.authority)
	if err != nil {
		e.emit(Event{Kind: DialFailed, Err: err})
		return
	}
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		stream, err := dialer.Dial()
		if err != nil {
			e.log.Debugf("endpoint %d: dial %s failed: %v", e.ID, e.URL, err)
			e.emit(Event{Kind: DialFailed, Err: err})
			if !e.backoffSleep() {
				return
			}
			continue
		}
		e.bo.Reset()
		e.emit(Event{Kind: PipeAdded, Pipe: e.newPipe(stream)})

		select {
		case <-e.retry:
		case <-e.stop:
			return
		}
	}
}

func (e *Endpoint) runAcceptor() {
	var listener transport.Listener
	defer func() {
		e.setListener(nil)
		if listener != nil {
			_ = listener.Close()
		}
	}()

	for {
		select {
		case <-e.stop:
			return
		default:
		}

		if listener == nil {
			ln, err := e.factory.NewListener(e.authority)
			if err != nil {
				e.log.Debugf("endpoint %d: bind %s failed: %v", e.ID, e.URL, err)
				e.emit(Event{Kind: DialFailed, Err: err})
				if !e.backoffSleep() {
					return
				}
				continue
			}
			listener = ln
			e.setListener(ln)
			e.bo.Reset()
		}

		stream, err := listener.Accept()
		if err != nil {
			select {
			case <-e.stop:
				// Close() closed the listener to unblock Accept; this is a
				// shutdown, not a transport failure, don't rebind.
				return
			default:
			}
			e.log.Debugf("endpoint %d: accept on %s failed: %v", e.ID, e.URL, err)
			e.emit(Event{Kind: DialFailed, Err: err})
			_ = listener.Close()
			listener = nil
			e.setListener(nil)
			continue
		}
		e.emit(Event{Kind: PipeAdded, Pipe: e.newPipe(stream)})
	}
}
