// Package tcp implements the transport.Stream contract over net.TCPConn,
// the only transport spec.md section 1 requires initially. The package's
// init registers it under the "tcp" URL scheme; no other package in this
// module imports it, so the scheme is registered only in programs that do.
package tcp

import (
	"fmt"
	"net"

	"github.com/wayslog/scaproust/message"
	"github.com/wayslog/scaproust/transport"
	"github.com/wayslog/scaproust/wire"
)

func init() {
	transport.Register(factory{})
}

type factory struct{}

func (factory) Scheme() string { return "tcp" }

func (factory) NewDialer(authority string) (transport.Dialer, error) {
	if authority == "" {
		return nil, fmt.Errorf("tcp: empty authority")
	}
	return &dialer{addr: authority}, nil
}

func (factory) NewListener(authority string) (transport.Listener, error) {
	ln, err := net.Listen("tcp", authority)
	if err != nil {
		return nil, err
	}
	return &listener{ln: ln}, nil
}

type dialer struct {
	addr string
}

func (d *dialer) Dial() (transport.Stream, error) {
	conn, err := net.Dial("tcp", d.addr)
	if err != nil {
		return nil, err
	}
	return &stream{conn: conn.(*net.TCPConn)}, nil
}

type listener struct {
	ln net.Listener
}

func (l *listener) Accept() (transport.Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return &stream{conn: conn.(*net.TCPConn)}, nil
}

func (l *listener) Close() error { return l.ln.Close() }
func (l *listener) Addr() string { return l.ln.Addr().String() }

// stream implements transport.Stream over a *net.TCPConn.
type stream struct {
	conn *net.TCPConn
}

func (s *stream) SetNoDelay(noDelay bool) error {
	return s.conn.SetNoDelay(noDelay)
}

func (s *stream) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *stream) Close() error {
	return s.conn.Close()
}

func (s *stream) SendHandshake(selfID uint16) error {
	buf := wire.EncodeHandshake(selfID)
	_, err := s.conn.Write(buf[:])
	return err
}

func (s *stream) RecvHandshake(expectPeerID uint16) error {
	buf := make([]byte, wire.HandshakeLen)
	if _, err := readFull(s.conn, buf); err != nil {
		return err
	}
	_, err := wire.DecodeHandshake(buf, expectPeerID)
	return err
}

func (s *stream) Send(msg *message.Message) error {
	header, body := msg.Header, msg.Body
	payload := make([]byte, 0, len(header)+len(body))
	payload = append(payload, header...)
	payload = append(payload, body...)

	hdr := wire.EncodeFrameHeader(len(payload))
	if _, err := s.conn.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := s.conn.Write(payload)
	return err
}

func (s *stream) Recv(maxSize int64) (*message.Message, error) {
	hdr := make([]byte, wire.FrameLenSize)
	if _, err := readFull(s.conn, hdr); err != nil {
		return nil, err
	}
	length := wire.DecodeFrameHeader(hdr)
	if maxSize > 0 && int64(length) > maxSize {
		return nil, fmt.Errorf("tcp: frame of %d bytes exceeds recv_max_size %d", length, maxSize)
	}
	body := make([]byte, length)
	if length > 0 {
		if _, err := readFull(s.conn, body); err != nil {
			return nil, err
		}
	}
	return message.FromBody(body), nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
