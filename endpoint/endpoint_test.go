package endpoint

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayslog/scaproust/config"
	"github.com/wayslog/scaproust/id"
	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/scaperr"
	"github.com/wayslog/scaproust/transport"
	"github.com/wayslog/scaproust/wire"
)

// fakeStream is a no-op transport.Stream; these tests exercise endpoint's
// dial/accept/backoff bookkeeping, not actual byte I/O (covered by
// pipe_test.go and wire_test.go).
type fakeStream struct{}

func (fakeStream) SendHandshake(uint16) error                     { return nil }
func (fakeStream) RecvHandshake(uint16) error                     { return nil }
func (fakeStream) Send(*message.Message) error                    { return nil }
func (fakeStream) Recv(int64) (*message.Message, error)           { return nil, errors.New("no data") }
func (fakeStream) Close() error                                   { return nil }
func (fakeStream) RemoteAddr() string                             { return "fake" }
func (fakeStream) SetNoDelay(bool) error                          { return nil }

// fakeDialer fails its first `failures` calls to Dial, then succeeds.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	attempts int
}

func (d *fakeDialer) Dial() (transport.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	return fakeStream{}, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// fakeListener is what the factory below hands out once its first
// `listenFailN` calls to NewListener have failed; once "bound" it blocks in
// Accept until told to produce a connection or to fail.
type fakeListener struct {
	accept chan error
	closed bool
}

func (l *fakeListener) Accept() (transport.Stream, error) {
	err, ok := <-l.accept
	if !ok {
		return nil, errors.New("listener closed")
	}
	if err != nil {
		return nil, err
	}
	return fakeStream{}, nil
}

func (l *fakeListener) Close() error {
	l.closed = true
	return nil
}

func (l *fakeListener) Addr() string { return "fake" }

type fakeFactory struct {
	mu            sync.Mutex
	dialer        *fakeDialer
	listenFailN   int
	listenAttempt int
	listener      *fakeListener
}

func (f *fakeFactory) Scheme() string { return "endpointtest" }

func (f *fakeFactory) NewDialer(authority string) (transport.Dialer, error) {
	return f.dialer, nil
}

func (f *fakeFactory) NewListener(authority string) (transport.Listener, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenAttempt++
	if f.listenFailN > 0 {
		f.listenFailN--
		return nil, errors.New("address in use")
	}
	return f.listener, nil
}

func init() {
	transport.Register(&fakeFactory{dialer: &fakeDialer{}, listener: &fakeListener{accept: make(chan error, 4)}})
}

func fastBackoff() config.Backoff {
	return config.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for endpoint event")
		return Event{}
	}
}

func TestParseRejectsMalformedURL(t *testing.T) {
	_, _, err := Parse("not-a-url")
	require.Error(t, err)
	assert.Equal(t, scaperr.InvalidInput, scaperr.KindOf(err))

	scheme, authority, err := Parse("tcp://127.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, "tcp", scheme)
	assert.Equal(t, "127.0.0.1:9000", authority)
}

func TestNewRejectsUnregisteredScheme(t *testing.T) {
	_, err := New(id.NewEndpointId(), Connector, "ipc:///tmp/x", config.EndpointDesc{}, config.Backoff{}, wire.ProtoPush, wire.ProtoPull)
	require.Error(t, err)
	var unsupported *transport.ErrUnsupportedScheme
	assert.ErrorAs(t, err, &unsupported)
}

func TestConnectorRetriesThenSucceeds(t *testing.T) {
	factory, _ := transport.Lookup("endpointtest")
	ff := factory.(*fakeFactory)
	ff.mu.Lock()
	ff.dialer = &fakeDialer{failures: 2}
	dialer := ff.dialer
	ff.mu.Unlock()

	ep, err := New(id.NewEndpointId(), Connector, "endpointtest://host", config.EndpointDesc{SendPriority: 8, RecvPriority: 8, RecvMaxSize: 1024}, fastBackoff(), wire.ProtoPush, wire.ProtoPull)
	require.NoError(t, err)
	events := make(chan Event, 8)
	ep.Open(events)
	defer ep.Close()

	first := recvEvent(t, events)
	assert.Equal(t, DialFailed, first.Kind)
	second := recvEvent(t, events)
	assert.Equal(t, DialFailed, second.Kind)
	third := recvEvent(t, events)
	require.Equal(t, PipeAdded, third.Kind)
	require.NotNil(t, third.Pipe)
	assert.Equal(t, uint16(wire.ProtoPush), third.Pipe.SelfProto)
	assert.GreaterOrEqual(t, dialer.attemptCount(), 3)
}

func TestConnectorReconnectsAfterPipeDies(t *testing.T) {
	factory, _ := transport.Lookup("endpointtest")
	ff := factory.(*fakeFactory)
	ff.mu.Lock()
	ff.dialer = &fakeDialer{}
	ff.mu.Unlock()

	ep, err := New(id.NewEndpointId(), Connector, "endpointtest://host", config.EndpointDesc{SendPriority: 8, RecvPriority: 8, RecvMaxSize: 1024}, fastBackoff(), wire.ProtoPush, wire.ProtoPull)
	require.NoError(t, err)
	events := make(chan Event, 8)
	ep.Open(events)
	defer ep.Close()

	first := recvEvent(t, events)
	require.Equal(t, PipeAdded, first.Kind)

	select {
	case <-events:
		t.Fatal("connector must not redial until Reconnect is signalled")
	case <-time.After(20 * time.Millisecond):
	}

	ep.Reconnect()
	second := recvEvent(t, events)
	assert.Equal(t, PipeAdded, second.Kind)
}

func TestAcceptorRebindsOnBindFailureThenAcceptsRepeatedly(t *testing.T) {
	listener := &fakeListener{accept: make(chan error, 4)}
	factory, _ := transport.Lookup("endpointtest")
	ff := factory.(*fakeFactory)
	ff.mu.Lock()
	ff.listenFailN = 1
	ff.listener = listener
	ff.mu.Unlock()

	ep, err := New(id.NewEndpointId(), Acceptor, "endpointtest://host", config.EndpointDesc{SendPriority: 8, RecvPriority: 8, RecvMaxSize: 1024}, fastBackoff(), wire.ProtoPush, wire.ProtoPull)
	require.NoError(t, err)
	events := make(chan Event, 8)
	ep.Open(events)
	defer ep.Close()

	bindFail := recvEvent(t, events)
	assert.Equal(t, DialFailed, bindFail.Kind)

	listener.accept <- nil
	first := recvEvent(t, events)
	require.Equal(t, PipeAdded, first.Kind)

	listener.accept <- nil
	second := recvEvent(t, events)
	require.Equal(t, PipeAdded, second.Kind)
}

func TestReconnectIsANoOpForAcceptors(t *testing.T) {
	listener := &fakeListener{accept: make(chan error, 4)}
	factory, _ := transport.Lookup("endpointtest")
	ff := factory.(*fakeFactory)
	ff.mu.Lock()
	ff.listenFailN = 0
	ff.listener = listener
	ff.mu.Unlock()

	ep, err := New(id.NewEndpointId(), Acceptor, "endpointtest://host", config.EndpointDesc{SendPriority: 8, RecvPriority: 8, RecvMaxSize: 1024}, fastBackoff(), wire.ProtoPush, wire.ProtoPull)
	require.NoError(t, err)
	events := make(chan Event, 8)
	ep.Open(events)
	defer ep.Close()

	ep.Reconnect() // must not panic or block
}

func TestCloseIsIdempotentAndStopsTheLoop(t *testing.T) {
	factory, _ := transport.Lookup("endpointtest")
	ff := factory.(*fakeFactory)
	ff.mu.Lock()
	ff.dialer = &fakeDialer{failures: 100}
	ff.mu.Unlock()

	ep, err := New(id.NewEndpointId(), Connector, "endpointtest://host", config.EndpointDesc{}, fastBackoff(), wire.ProtoPush, wire.ProtoPull)
	require.NoError(t, err)
	events := make(chan Event, 8)
	ep.Open(events)

	<-events // at least one DialFailed
	ep.Close()
	ep.Close() // must not panic
}
