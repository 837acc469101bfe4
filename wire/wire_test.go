package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeHandshakeMatchesSpecBytes(t *testing.T) {
	buf := EncodeHandshake(ProtoPush)
	assert.Equal(t, [8]byte{0x00, 'S', 'P', 0x00, 0x00, 0x50, 0x00, 0x00}, buf)
}

func TestHandshakeSuccess(t *testing.T) {
	buf := EncodeHandshake(ProtoPush)
	got, err := DecodeHandshake(buf[:], ProtoPush)
	assert.NoError(t, err)
	assert.Equal(t, ProtoPush, got)
}

func TestHandshakeMismatchedPeerIsRejected(t *testing.T) {
	buf := EncodeHandshake(ProtoPush)
	_, err := DecodeHandshake(buf[:], ProtoPull)
	assert.Error(t, err)
}

func TestHandshakeBadMagicIsRejected(t *testing.T) {
	buf := EncodeHandshake(ProtoPush)
	buf[1] = 'X'
	_, err := DecodeHandshake(buf[:], ProtoPush)
	assert.Error(t, err)
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 1024, 65536, 1048576} {
		hdr := EncodeFrameHeader(n)
		assert.Equal(t, uint64(n), DecodeFrameHeader(hdr[:]))
	}
}

func TestPairingRules(t *testing.T) {
	cases := []struct{ self, peer uint16 }{
		{ProtoPush, ProtoPull},
		{ProtoPull, ProtoPush},
		{ProtoReq, ProtoRep},
		{ProtoRep, ProtoReq},
		{ProtoSurveyor, ProtoRespondent},
		{ProtoRespondent, ProtoSurveyor},
		{ProtoPair, ProtoPair},
		{ProtoBus, ProtoBus},
		{ProtoPub, ProtoSub},
		{ProtoSub, ProtoPub},
	}
	for _, c := range cases {
		peer, ok := Pairing(c.self)
		assert.True(t, ok)
		assert.Equal(t, c.peer, peer)
	}
}
