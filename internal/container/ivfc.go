package container

import (
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
)

const poisonByte = 0xDD

// ivfcLevel slices a level's raw bytes out of the DPFS-active view.
func ivfcLevel(active []byte, off, size uint64) ([]byte, error) {
	if uint64(len(active)) < off+size {
		return nil, fmt.Errorf("container: IVFC level out of bounds (off=%d size=%d len=%d)", off, size, len(active))
	}
	return active[off : off+size], nil
}

// applyIVFCLevel poisons unhashed blocks of one IVFC level using the
// previous level's output as a stream of 32-byte hashes.
func applyIVFCLevel(p threedscrypto.Primitives, hashes []byte, data []byte, blockSize uint64, d *diag.Collector) []byte {
	out := make([]byte, 0, len(data))
	remaining := uint64(len(data))
	dataPos := uint64(0)
	hashPos := 0

	for hashPos+32 <= len(hashes) && remaining > 0 {
		var want [32]byte
		copy(want[:], hashes[hashPos:hashPos+32])

		tran := blockSize
		if remaining < tran {
			tran = remaining
		}
		chunk := data[dataPos : dataPos+tran]

		padded := make([]byte, blockSize)
		copy(padded, chunk)
		got := p.SHA256(padded)

		if got == want {
			out = append(out, chunk...)
		} else {
			if d != nil {
				d.Warnf("IVFC block hash mismatch at offset %d, poisoning %d bytes", dataPos, blockSize)
			}
			poison := make([]byte, blockSize)
			for i := range poison {
				poison[i] = poisonByte
			}
			out = append(out, poison...)
		}

		hashPos += 32
		dataPos += blockSize
		remaining -= tran
	}
	return out
}

// UnwrapIVFC validates the DPFS-active view as a four-level Merkle block
// tree anchored in the partition master hash, poisoning any block whose
// hash does not match. externalL4, when non-nil, replaces the
// level-4 bytes that would otherwise come from active (the DISA DATA
// partition and ExtData subfile case).
func UnwrapIVFC(p threedscrypto.Primitives, active []byte, desc IVFCDescriptor, masterHash []byte, externalL4 []byte, d *diag.Collector) ([]byte, error) {
	l1, err := ivfcLevel(active, desc.L1.Off, desc.L1.Size)
	if err != nil {
		return nil, err
	}
	l2, err := ivfcLevel(active, desc.L2.Off, desc.L2.Size)
	if err != nil {
		return nil, err
	}
	l3, err := ivfcLevel(active, desc.L3.Off, desc.L3.Size)
	if err != nil {
		return nil, err
	}

	l4 := externalL4
	if l4 == nil {
		l4, err = ivfcLevel(active, desc.L4.Off, desc.L4.Size)
		if err != nil {
			return nil, err
		}
	}

	l1p := applyIVFCLevel(p, masterHash, l1, desc.L1.BlockSize, d)
	l2p := applyIVFCLevel(p, l1p, l2, desc.L2.BlockSize, d)
	l3p := applyIVFCLevel(p, l2p, l3, desc.L3.BlockSize, d)
	l4p := applyIVFCLevel(p, l3p, l4, desc.L4.BlockSize, d)
	return l4p, nil
}
