package container

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/s0up4200/go-3dssave/internal/diag"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
)

func sha256Block(blockSize uint64, chunk []byte) [32]byte {
	padded := make([]byte, blockSize)
	copy(padded, chunk)
	return sha256.Sum256(padded)
}

func TestApplyIVFCLevel_PassesMatchingBlockThrough(t *testing.T) {
	blockSize := uint64(8)
	block := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	hash := sha256Block(blockSize, block)

	out := applyIVFCLevel(threedscrypto.Stdlib{}, hash[:], block, blockSize, nil)
	if !bytes.Equal(out, block) {
		t.Errorf("matching block was altered: got %x, want %x", out, block)
	}
}

func TestApplyIVFCLevel_PoisonsMismatchedBlock(t *testing.T) {
	blockSize := uint64(8)
	block := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wrongHash := sha256Block(blockSize, []byte{9, 9, 9, 9, 9, 9, 9, 9})

	d := &diag.Collector{}
	out := applyIVFCLevel(threedscrypto.Stdlib{}, wrongHash[:], block, blockSize, d)
	want := bytes.Repeat([]byte{poisonByte}, len(block))
	if !bytes.Equal(out, want) {
		t.Errorf("mismatched block was not poisoned: got %x, want %x", out, want)
	}
	if len(d.Warnings()) == 0 {
		t.Error("expected a warning to be recorded for the hash mismatch")
	}
}

func TestApplyIVFCLevel_PartialLastBlockIsZeroPadded(t *testing.T) {
	blockSize := uint64(8)
	block := []byte{1, 2, 3} // shorter than blockSize
	hash := sha256Block(blockSize, block)

	out := applyIVFCLevel(threedscrypto.Stdlib{}, hash[:], block, blockSize, nil)
	if !bytes.Equal(out, block) {
		t.Errorf("partial block was altered: got %x, want %x", out, block)
	}
}

// TestUnwrapIVFC_FourLevelChain builds a minimal valid four-level Merkle
// chain — L1-L3 each hold exactly one 32-byte hash entry naming the next
// level down, L4 holds the real (non-hash) payload — and checks the
// payload survives verification intact when every hash matches.
func TestUnwrapIVFC_FourLevelChain(t *testing.T) {
	p := threedscrypto.Stdlib{}
	const hashSize = 32

	l4Data := []byte("deadbeef")
	hashL4 := sha256.Sum256(l4Data)
	l3Data := hashL4[:]
	hashL3 := sha256.Sum256(l3Data)
	l2Data := hashL3[:]
	hashL2 := sha256.Sum256(l2Data)
	l1Data := hashL2[:]
	masterHash := sha256.Sum256(l1Data)

	active := append(append(append([]byte{}, l1Data...), l2Data...), l3Data...)
	desc := IVFCDescriptor{
		MasterHashSize: hashSize,
		L1:             IVFCLevel{Off: 0, Size: hashSize, BlockSize: hashSize},
		L2:             IVFCLevel{Off: hashSize, Size: hashSize, BlockSize: hashSize},
		L3:             IVFCLevel{Off: 2 * hashSize, Size: hashSize, BlockSize: hashSize},
		L4:             IVFCLevel{Size: uint64(len(l4Data)), BlockSize: uint64(len(l4Data))},
	}

	got, err := UnwrapIVFC(p, active, desc, masterHash[:], l4Data, nil)
	if err != nil {
		t.Fatalf("UnwrapIVFC: %v", err)
	}
	if !bytes.Equal(got, l4Data) {
		t.Errorf("UnwrapIVFC with a fully valid chain altered L4 data: got %q, want %q", got, l4Data)
	}
}

// TestUnwrapIVFC_PoisonsOnTamperedMasterHash checks that corrupting the
// master hash (e.g. a bit-flipped partition descriptor) poisons the whole
// chain down to L4 rather than silently accepting the data.
func TestUnwrapIVFC_PoisonsOnTamperedMasterHash(t *testing.T) {
	p := threedscrypto.Stdlib{}
	const hashSize = 32

	l4Data := []byte("deadbeef")
	hashL4 := sha256.Sum256(l4Data)
	l3Data := hashL4[:]
	hashL3 := sha256.Sum256(l3Data)
	l2Data := hashL3[:]
	hashL2 := sha256.Sum256(l2Data)
	l1Data := hashL2[:]
	masterHash := sha256.Sum256(l1Data)
	masterHash[0] ^= 0xFF // tamper

	active := append(append(append([]byte{}, l1Data...), l2Data...), l3Data...)
	desc := IVFCDescriptor{
		MasterHashSize: hashSize,
		L1:             IVFCLevel{Off: 0, Size: hashSize, BlockSize: hashSize},
		L2:             IVFCLevel{Off: hashSize, Size: hashSize, BlockSize: hashSize},
		L3:             IVFCLevel{Off: 2 * hashSize, Size: hashSize, BlockSize: hashSize},
		L4:             IVFCLevel{Size: uint64(len(l4Data)), BlockSize: uint64(len(l4Data))},
	}

	d := &diag.Collector{}
	got, err := UnwrapIVFC(p, active, desc, masterHash[:], l4Data, d)
	if err != nil {
		t.Fatalf("UnwrapIVFC: %v", err)
	}
	want := bytes.Repeat([]byte{poisonByte}, len(l4Data))
	if !bytes.Equal(got, want) {
		t.Errorf("UnwrapIVFC with a tampered master hash should poison L4: got %q, want %q", got, want)
	}
	if len(d.Warnings()) != 4 {
		t.Errorf("expected one warning per poisoned level (4), got %d", len(d.Warnings()))
	}
}
