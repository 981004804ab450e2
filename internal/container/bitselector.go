package container

import "encoding/binary"

// bitSelector walks a selector byte stream as big-endian 32-bit words, MSB
// first. It only ever chooses between two source halves; it never decodes
// multi-bit values.
type bitSelector struct {
	data    []byte
	wordPos int
	bitPos  uint8 // 0 == MSB (bit 31) of the current word
}

func newBitSelector(data []byte) *bitSelector {
	return &bitSelector{data: data}
}

// next returns the next selector bit, advancing the cursor. Selector data is
// assumed large enough for the caller's needs; the DPFS walk halts on output
// length, not selector exhaustion, so running past the provided bytes never
// happens in a well-formed container.
func (s *bitSelector) next() int {
	word := binary.BigEndian.Uint32(s.data[s.wordPos*4 : s.wordPos*4+4])
	bit := (word >> (31 - s.bitPos)) & 1
	s.bitPos++
	if s.bitPos == 32 {
		s.bitPos = 0
		s.wordPos++
	}
	return int(bit)
}
