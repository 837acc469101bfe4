// Package id allocates the opaque, monotonically increasing identifiers
// shared by every kind of handle the reactor hands out: endpoints, sockets,
// and probes. All three kinds are drawn from one process-wide counter, so
// values are never reused within a process lifetime even if a caller mixes
// id kinds by mistake.
package id

import "sync/atomic"

// Sequence is a single shared, monotonically increasing counter. The zero
// value is ready to use.
type Sequence struct {
	next uint64
}

// Next returns the next value in the sequence, starting at 1. Zero is never
// returned, so it can be used by callers as a "no id" sentinel.
func (s *Sequence) Next() uint64 {
	return atomic.AddUint64(&s.next, 1)
}

// Shared is the process-wide default sequence used by the typed
// constructors below. Tests that need deterministic ids should construct
// their own Sequence instead of relying on this one.
var Shared Sequence

// EndpointId identifies an Endpoint (acceptor or connector) for the lifetime
// of the process.
type EndpointId uint64

// NewEndpointId draws the next id from the shared sequence.
func NewEndpointId() EndpointId { return EndpointId(Shared.Next()) }

// SocketId identifies a Socket.
type SocketId uint64

// NewSocketId draws the next id from the shared sequence.
func NewSocketId() SocketId { return SocketId(Shared.Next()) }

// ProbeId identifies a Probe.
type ProbeId uint64

// NewProbeId draws the next id from the shared sequence.
func NewProbeId() ProbeId { return ProbeId(Shared.Next()) }
