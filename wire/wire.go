// Package wire implements the on-the-wire encoding used by every pipe: the
// fixed 8-byte handshake exchanged before any framed message, and the
// length-prefixed message frame itself. See spec.md section 6.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Protocol ids carried in the handshake, per spec.md section 6.
const (
	ProtoPair       uint16 = 16
	ProtoPub        uint16 = 32
	ProtoSub        uint16 = 33
	ProtoReq        uint16 = 48
	ProtoRep        uint16 = 49
	ProtoPush       uint16 = 80
	ProtoPull       uint16 = 81
	ProtoSurveyor   uint16 = 98
	ProtoRespondent uint16 = 99
	ProtoBus        uint16 = 112
)

// protoNames is used only for diagnostics (log lines, error messages).
var protoNames = map[uint16]string{
	ProtoPair:       "pair",
	ProtoPub:        "pub",
	ProtoSub:        "sub",
	ProtoReq:        "req",
	ProtoRep:        "rep",
	ProtoPush:       "push",
	ProtoPull:       "pull",
	ProtoSurveyor:   "surveyor",
	ProtoRespondent: "respondent",
	ProtoBus:        "bus",
}

// Name returns the protocol's nanomsg name, or "unknown" if id is not one
// of the ten protocols spec.md section 6 defines.
func Name(id uint16) string {
	if n, ok := protoNames[id]; ok {
		return n
	}
	return "unknown"
}

// HandshakeLen is the fixed size of the handshake exchanged in both
// directions before a pipe may carry framed messages.
const HandshakeLen = 8

// EncodeHandshake builds the 8-byte handshake announcing protoID, per
// spec.md section 6: 0x00 'S' 'P' 0x00 PH PL 0x00 0x00.
func EncodeHandshake(protoID uint16) [HandshakeLen]byte {
	var buf [HandshakeLen]byte
	buf[0] = 0x00
	buf[1] = 'S'
	buf[2] = 'P'
	buf[3] = 0x00
	binary.BigEndian.PutUint16(buf[4:6], protoID)
	buf[6] = 0x00
	buf[7] = 0x00
	return buf
}

// DecodeHandshake validates buf against the fixed magic prefix and the
// expected peer protocol id, returning the announced protocol id on
// success.
func DecodeHandshake(buf []byte, expectPeerID uint16) (uint16, error) {
	if len(buf) != HandshakeLen {
		return 0, fmt.Errorf("wire: handshake must be %d bytes, got %d", HandshakeLen, len(buf))
	}
	if buf[0] != 0x00 || buf[1] != 'S' || buf[2] != 'P' || buf[3] != 0x00 || buf[6] != 0x00 || buf[7] != 0x00 {
		return 0, fmt.Errorf("wire: bad handshake magic %x", buf)
	}
	announced := binary.BigEndian.Uint16(buf[4:6])
	if announced != expectPeerID {
		return 0, fmt.Errorf("wire: peer protocol id %d (%s) does not match expected %d (%s)",
			announced, Name(announced), expectPeerID, Name(expectPeerID))
	}
	return announced, nil
}

// FrameLenSize is the size of a frame's length prefix.
const FrameLenSize = 8

// EncodeFrameHeader returns the 8-byte big-endian length prefix for a
// payload of the given size.
func EncodeFrameHeader(payloadLen int) [FrameLenSize]byte {
	var buf [FrameLenSize]byte
	binary.BigEndian.PutUint64(buf[:], uint64(payloadLen))
	return buf
}

// DecodeFrameHeader reads the 8-byte big-endian payload length.
func DecodeFrameHeader(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf[:FrameLenSize])
}

// Pairing returns the protocol id that `self` pairs with, per spec.md
// section 6's pairing rule (a.peer() == b && b.peer() == a); ok is false
// if self is not one of the ten known protocol ids.
func Pairing(self uint16) (peer uint16, ok bool) {
	switch self {
	case ProtoPair:
		return ProtoPair, true
	case ProtoPub:
		return ProtoSub, true
	case ProtoSub:
		return ProtoPub, true
	case ProtoReq:
		return ProtoRep, true
	case ProtoRep:
		return ProtoReq, true
	case ProtoPush:
		return ProtoPull, true
	case ProtoPull:
		return ProtoPush, true
	case ProtoSurveyor:
		return ProtoRespondent, true
	case ProtoRespondent:
		return ProtoSurveyor, true
	case ProtoBus:
		return ProtoBus, true
	default:
		return 0, false
	}
}
