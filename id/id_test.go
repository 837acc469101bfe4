package id

import "testing"

func TestSequenceMonotonic(t *testing.T) {
	var s Sequence
	prev := s.Next()
	for i := 0; i < 1000; i++ {
		v := s.Next()
		if v <= prev {
			t.Fatalf("sequence not monotonic: %d then %d", prev, v)
		}
		prev = v
	}
}

func TestSequenceNeverZero(t *testing.T) {
	var s Sequence
	if v := s.Next(); v == 0 {
		t.Fatalf("first value must not be zero")
	}
}

func TestTypedIdsDrawFromSharedSequence(t *testing.T) {
	a := NewEndpointId()
	b := NewSocketId()
	c := NewProbeId()

	seen := map[uint64]bool{uint64(a): true}
	for _, v := range []uint64{uint64(b), uint64(c)} {
		if seen[v] {
			t.Fatalf("id collision across kinds: %d", v)
		}
		seen[v] = true
	}
}
