// Package container implements the layered DISA/DIFF container unwrapper:
// the DIFI partition descriptor, the DPFS double-buffer engine, the IVFC
// Merkle-tree engine, and the DIFF/DISA wrappers that tie them together
// with partition tables and outer CMAC authentication.
package container

import (
	"encoding/binary"
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

const (
	magicDIFI = 0x49464944
	verDIFI   = 0x00010000
	magicIVFC = 0x43465649
	verIVFC   = 0x00020000
	magicDPFS = 0x53465044
	verDPFS   = 0x00010000

	ivfcUnknownExpected = 0x78
)

// IVFCLevel describes one level of the four-level Merkle block tree, in the
// DPFS-active view's coordinate space.
type IVFCLevel struct {
	Off       uint64
	Size      uint64
	BlockSize uint64 // already expanded from log2
}

// IVFCDescriptor is the parsed IVFC descriptor sub-slice of a DIFI entry.
type IVFCDescriptor struct {
	MasterHashSize uint64
	L1, L2, L3, L4 IVFCLevel
}

// DPFSLevel describes one level of the three-level double-buffer region.
type DPFSLevel struct {
	Off       uint64
	Size      uint64 // size of ONE half; two halves sit back-to-back
	BlockSize uint64
}

// DPFSDescriptor is the parsed DPFS descriptor sub-slice of a DIFI entry.
type DPFSDescriptor struct {
	L1, L2, L3 DPFSLevel
}

// PartitionDescriptor is a fully parsed DIFI entry.
type PartitionDescriptor struct {
	IsData         bool
	DPFSL1Selector uint8
	ExternalIVFCL4 bool
	IVFCL4OffExt   uint64
	IVFC           IVFCDescriptor
	DPFS           DPFSDescriptor
	Hash           []byte // expected master hash, length == IVFC.MasterHashSize
}

// ParseDIFI parses a DIFI partition descriptor from raw.
func ParseDIFI(raw []byte, d *diag.Collector) (PartitionDescriptor, error) {
	var pd PartitionDescriptor

	if len(raw) < 0x44 {
		return pd, fmt.Errorf("container: DIFI descriptor too short (%d bytes)", len(raw))
	}

	magic := binary.LittleEndian.Uint32(raw[0x00:])
	ver := binary.LittleEndian.Uint32(raw[0x04:])
	ivfcOff := binary.LittleEndian.Uint64(raw[0x08:])
	ivfcSize := binary.LittleEndian.Uint64(raw[0x10:])
	dpfsOff := binary.LittleEndian.Uint64(raw[0x18:])
	dpfsSize := binary.LittleEndian.Uint64(raw[0x20:])
	hashOff := binary.LittleEndian.Uint64(raw[0x28:])
	hashSize := binary.LittleEndian.Uint64(raw[0x30:])
	isData := raw[0x38]
	dpfsL1Selector := raw[0x39]
	ivfcL4OffExt := binary.LittleEndian.Uint64(raw[0x3C:])

	if magic != magicDIFI {
		return pd, fmt.Errorf("container: wrong DIFI magic 0x%08X", magic)
	}
	if ver != verDIFI {
		return pd, fmt.Errorf("container: wrong DIFI version 0x%08X", ver)
	}
	switch isData {
	case 0:
		pd.IsData = false
	case 1:
		pd.IsData = true
	default:
		return pd, fmt.Errorf("container: wrong isData value %d", isData)
	}
	if dpfsL1Selector > 1 {
		return pd, fmt.Errorf("container: wrong DPFSL1Selector value %d", dpfsL1Selector)
	}
	pd.DPFSL1Selector = dpfsL1Selector
	pd.IVFCL4OffExt = ivfcL4OffExt

	if uint64(len(raw)) < ivfcOff+ivfcSize {
		return pd, fmt.Errorf("container: IVFC descriptor out of bounds")
	}
	ivfc, err := parseIVFCDescriptor(raw[ivfcOff:ivfcOff+ivfcSize], hashSize, d)
	if err != nil {
		return pd, err
	}
	pd.IVFC = ivfc
	pd.ExternalIVFCL4 = pd.IsData

	if uint64(len(raw)) < dpfsOff+dpfsSize {
		return pd, fmt.Errorf("container: DPFS descriptor out of bounds")
	}
	dpfs, err := parseDPFSDescriptor(raw[dpfsOff : dpfsOff+dpfsSize])
	if err != nil {
		return pd, err
	}
	pd.DPFS = dpfs

	if uint64(len(raw)) < hashOff+hashSize {
		return pd, fmt.Errorf("container: master hash out of bounds")
	}
	pd.Hash = append([]byte(nil), raw[hashOff:hashOff+hashSize]...)

	return pd, nil
}

func parseIVFCDescriptor(raw []byte, expectedHashSize uint64, d *diag.Collector) (IVFCDescriptor, error) {
	var desc IVFCDescriptor
	if len(raw) < 0x78 {
		return desc, fmt.Errorf("container: IVFC descriptor too short (%d bytes)", len(raw))
	}

	magic := binary.LittleEndian.Uint32(raw[0x00:])
	ver := binary.LittleEndian.Uint32(raw[0x04:])
	masterHashSize := binary.LittleEndian.Uint64(raw[0x08:])

	l1Off := binary.LittleEndian.Uint64(raw[0x10:])
	l1Size := binary.LittleEndian.Uint64(raw[0x18:])
	l1Block := binary.LittleEndian.Uint32(raw[0x20:])

	l2Off := binary.LittleEndian.Uint64(raw[0x28:])
	l2Size := binary.LittleEndian.Uint64(raw[0x30:])
	l2Block := binary.LittleEndian.Uint32(raw[0x38:])

	l3Off := binary.LittleEndian.Uint64(raw[0x40:])
	l3Size := binary.LittleEndian.Uint64(raw[0x48:])
	l3Block := binary.LittleEndian.Uint32(raw[0x50:])

	// The struct has 4 bytes of padding after each log2-blockSize field,
	// L4's included.
	l4Off := binary.LittleEndian.Uint64(raw[0x58:])
	l4Size := binary.LittleEndian.Uint64(raw[0x60:])
	l4Block := binary.LittleEndian.Uint32(raw[0x68:])
	unknown := binary.LittleEndian.Uint64(raw[0x70:])

	if magic != magicIVFC {
		return desc, fmt.Errorf("container: wrong IVFC magic 0x%08X", magic)
	}
	if ver != verIVFC {
		return desc, fmt.Errorf("container: wrong IVFC version 0x%08X", ver)
	}
	if masterHashSize != expectedHashSize {
		return desc, fmt.Errorf("container: master hash size mismatch (%d != %d)", masterHashSize, expectedHashSize)
	}
	if unknown != ivfcUnknownExpected && d != nil {
		d.Warnf("IVFC unknown field = 0x%X", unknown)
	}

	desc.MasterHashSize = masterHashSize
	desc.L1 = IVFCLevel{Off: l1Off, Size: l1Size, BlockSize: 1 << l1Block}
	desc.L2 = IVFCLevel{Off: l2Off, Size: l2Size, BlockSize: 1 << l2Block}
	desc.L3 = IVFCLevel{Off: l3Off, Size: l3Size, BlockSize: 1 << l3Block}
	desc.L4 = IVFCLevel{Off: l4Off, Size: l4Size, BlockSize: 1 << l4Block}
	return desc, nil
}

func parseDPFSDescriptor(raw []byte) (DPFSDescriptor, error) {
	var desc DPFSDescriptor
	if len(raw) < 0x50 {
		return desc, fmt.Errorf("container: DPFS descriptor too short (%d bytes)", len(raw))
	}

	magic := binary.LittleEndian.Uint32(raw[0x00:])
	ver := binary.LittleEndian.Uint32(raw[0x04:])

	l1Off := binary.LittleEndian.Uint64(raw[0x08:])
	l1Size := binary.LittleEndian.Uint64(raw[0x10:])
	l1Block := binary.LittleEndian.Uint32(raw[0x18:])

	l2Off := binary.LittleEndian.Uint64(raw[0x20:])
	l2Size := binary.LittleEndian.Uint64(raw[0x28:])
	l2Block := binary.LittleEndian.Uint32(raw[0x30:])

	l3Off := binary.LittleEndian.Uint64(raw[0x38:])
	l3Size := binary.LittleEndian.Uint64(raw[0x40:])
	l3Block := binary.LittleEndian.Uint32(raw[0x48:])

	if magic != magicDPFS {
		return desc, fmt.Errorf("container: wrong DPFS magic 0x%08X", magic)
	}
	if ver != verDPFS {
		return desc, fmt.Errorf("container: wrong DPFS version 0x%08X", ver)
	}

	desc.L1 = DPFSLevel{Off: l1Off, Size: l1Size, BlockSize: 1 << l1Block}
	desc.L2 = DPFSLevel{Off: l2Off, Size: l2Size, BlockSize: 1 << l2Block}
	desc.L3 = DPFSLevel{Off: l3Off, Size: l3Size, BlockSize: 1 << l3Block}
	return desc, nil
}
