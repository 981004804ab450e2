package container

import "fmt"

// dpfsHalves splits a DPFS level's raw bytes into its two equal-size
// halves, stored back-to-back.
func dpfsHalves(part []byte, off, size uint64) ([]byte, []byte, error) {
	if uint64(len(part)) < off+2*size {
		return nil, nil, fmt.Errorf("container: DPFS level out of bounds (off=%d size=%d len=%d)", off, size, len(part))
	}
	return part[off : off+size], part[off+size : off+2*size], nil
}

// applyDPFSLevel reconstructs the active bytes of one DPFS level given the
// previous level's active bytes as the bit selector.
func applyDPFSLevel(selector []byte, halves [2][]byte, blockSize uint64) []byte {
	total := uint64(len(halves[0]))
	out := make([]byte, 0, total)
	sel := newBitSelector(selector)

	var cursor [2]uint64
	var remaining = total
	for remaining > 0 {
		bit := sel.next()
		tran := blockSize
		if remaining < tran {
			tran = remaining
		}
		src := halves[bit]
		out = append(out, src[cursor[bit]:cursor[bit]+tran]...)
		cursor[bit] += tran
		remaining -= tran
	}
	return out
}

// UnwrapDPFS reconstructs the currently-active view of a three-level
// double-buffered region using the bit-selector cascade:
// L1Selector picks one of L1's two halves directly; that choice becomes the
// bit selector for L2, whose result becomes the bit selector for L3.
func UnwrapDPFS(raw []byte, desc DPFSDescriptor, l1Selector uint8) ([]byte, error) {
	if l1Selector > 1 {
		return nil, fmt.Errorf("container: invalid DPFS L1 selector %d", l1Selector)
	}

	l1a, l1b, err := dpfsHalves(raw, desc.L1.Off, desc.L1.Size)
	if err != nil {
		return nil, err
	}
	l2a, l2b, err := dpfsHalves(raw, desc.L2.Off, desc.L2.Size)
	if err != nil {
		return nil, err
	}
	l3a, l3b, err := dpfsHalves(raw, desc.L3.Off, desc.L3.Size)
	if err != nil {
		return nil, err
	}

	l1Active := l1a
	if l1Selector == 1 {
		l1Active = l1b
	}
	l2Active := applyDPFSLevel(l1Active, [2][]byte{l2a, l2b}, desc.L2.BlockSize)
	l3Active := applyDPFSLevel(l2Active, [2][]byte{l3a, l3b}, desc.L3.BlockSize)
	return l3Active, nil
}
