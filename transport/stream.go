// Package transport defines the StepStream contract of spec.md section 6:
// the minimal byte-transport capability a Pipe needs, independent of
// whatever concrete network technology backs it (TCP today; ipc/inproc are
// reserved but unimplemented per spec.md section 9).
package transport

import (
	"fmt"

	"github.com/wayslog/scaproust/message"
)

// Stream is one established, bidirectional byte connection to a peer. Every
// method performs at most one I/O operation's worth of work; callers
// (the pipe package) are responsible for not starting a second Send/Recv
// before the previous one returns. Operations are expected to block the
// calling goroutine — in this Go rendering, "non-blocking" I/O is achieved
// by running these calls on a dedicated goroutine per operation rather
// than on the reactor goroutine; see SPEC_FULL.md section 5.
type Stream interface {
	// SendHandshake writes the fixed 8-byte handshake announcing selfID.
	SendHandshake(selfID uint16) error
	// RecvHandshake reads and validates the peer's handshake, returning
	// an error if the magic prefix is wrong or the peer's announced id
	// does not equal expectPeerID.
	RecvHandshake(expectPeerID uint16) error
	// Send writes one framed message.
	Send(msg *message.Message) error
	// Recv reads one framed message, rejecting frames whose declared
	// length exceeds maxSize.
	Recv(maxSize int64) (*message.Message, error)
	// Close tears down the underlying connection. Idempotent.
	Close() error
	// RemoteAddr reports the peer address for logging.
	RemoteAddr() string
	// SetNoDelay toggles TCP_NODELAY where the underlying transport
	// supports it; a no-op otherwise.
	SetNoDelay(bool) error
}

// Dialer opens an outbound Stream to a single address. Used by Connector
// endpoints.
type Dialer interface {
	Dial() (Stream, error)
}

// Listener accepts inbound Streams on a bound address. Used by Acceptor
// endpoints.
type Listener interface {
	Accept() (Stream, error)
	Close() error
	Addr() string
}

// Factory opens a Dialer or Listener for one URL scheme.
type Factory interface {
	Scheme() string
	NewDialer(authority string) (Dialer, error)
	NewListener(authority string) (Listener, error)
}

var registry = map[string]Factory{}

// Register adds a Factory under its scheme. Called from each transport
// subpackage's init().
func Register(f Factory) {
	registry[f.Scheme()] = f
}

// Lookup returns the Factory registered for scheme, if any.
func Lookup(scheme string) (Factory, bool) {
	f, ok := registry[scheme]
	return f, ok
}

// ErrUnsupportedScheme is the cause endpoint construction wraps in an
// InvalidInput scaperr.Error for a URL whose scheme has no registered
// Factory (e.g. ipc/inproc, reserved but unimplemented per spec.md
// section 9).
type ErrUnsupportedScheme struct {
	Scheme string
}

func (e *ErrUnsupportedScheme) Error() string {
	return fmt.Sprintf("transport: unsupported scheme %q", e.Scheme)
}
