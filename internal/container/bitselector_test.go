package container

import "testing"

func TestBitSelector_NextReadsBitsMSBFirstBigEndian(t *testing.T) {
	// 0xA0000000 = 1010 0000 ... -> first four bits are 1,0,1,0.
	data := []byte{0xA0, 0x00, 0x00, 0x00}
	s := newBitSelector(data)

	want := []int{1, 0, 1, 0}
	for i, w := range want {
		if got := s.next(); got != w {
			t.Errorf("bit %d = %d, want %d", i, got, w)
		}
	}
	// Remaining 28 bits of the same word must all be zero.
	for i := 4; i < 32; i++ {
		if got := s.next(); got != 0 {
			t.Errorf("bit %d = %d, want 0", i, got)
		}
	}
}

func TestBitSelector_AdvancesToNextWordAfter32Bits(t *testing.T) {
	data := []byte{
		0x00, 0x00, 0x00, 0x00, // word 0: all zero bits
		0xFF, 0xFF, 0xFF, 0xFF, // word 1: all one bits
	}
	s := newBitSelector(data)

	for i := 0; i < 32; i++ {
		if got := s.next(); got != 0 {
			t.Fatalf("word 0 bit %d = %d, want 0", i, got)
		}
	}
	for i := 0; i < 32; i++ {
		if got := s.next(); got != 1 {
			t.Fatalf("word 1 bit %d = %d, want 1", i, got)
		}
	}
}

func TestBitSelector_AllOnesWord(t *testing.T) {
	s := newBitSelector([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	for i := 0; i < 32; i++ {
		if got := s.next(); got != 1 {
			t.Errorf("bit %d = %d, want 1", i, got)
		}
	}
}
