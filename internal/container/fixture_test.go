package container

import "math/bits"

// buildSerializedPartition assembles a complete, on-disk-faithful DIFI
// partition table plus its raw (DPFS-wrapped) partition bytes: a full
// Merkle+double-buffer chain serialized through the real parseIVFCDescriptor
// / parseDPFSDescriptor / ParseDIFI byte layouts, not hand-built Go structs.
// Grounded on the same fixture shape as buildDIFI and dpfsWrap, extended to
// round-trip through OpenDIFF/OpenDISA.
func buildSerializedPartition(isData bool) (partTable []byte, partRaw []byte, l4Data []byte) {
	l4Data = []byte("cafebabe")
	chain, masterHash := buildIVFCChain(l4Data)

	var dpfsPayload []byte
	var ivfcL4Off, ivfcL4OffExt uint64
	if isData {
		dpfsPayload = chain
	} else {
		dpfsPayload = append(append([]byte{}, chain...), l4Data...)
		ivfcL4Off = uint64(len(chain))
	}

	raw, dpfsDesc := dpfsWrap(dpfsPayload)
	if isData {
		ivfcL4OffExt = uint64(len(raw))
		raw = append(raw, l4Data...)
	}

	ivfc := make([]byte, 0x78)
	le32(ivfc, 0x00, magicIVFC)
	le32(ivfc, 0x04, verIVFC)
	le64(ivfc, 0x08, 32) // masterHashSize
	le64(ivfc, 0x10, 0)  // L1 off
	le64(ivfc, 0x18, 32) // L1 size
	le32(ivfc, 0x20, 5)  // L1 block = 1<<5 = 32
	le64(ivfc, 0x28, 32) // L2 off
	le64(ivfc, 0x30, 32) // L2 size
	le32(ivfc, 0x38, 5)
	le64(ivfc, 0x40, 64) // L3 off
	le64(ivfc, 0x48, 32) // L3 size
	le32(ivfc, 0x50, 5)
	le64(ivfc, 0x58, ivfcL4Off)
	le64(ivfc, 0x60, uint64(len(l4Data)))
	le32(ivfc, 0x68, uint32(bits.TrailingZeros64(uint64(len(l4Data)))))
	le64(ivfc, 0x70, ivfcUnknownExpected)

	dpfs := make([]byte, 0x50)
	le32(dpfs, 0x00, magicDPFS)
	le32(dpfs, 0x04, verDPFS)
	le64(dpfs, 0x08, dpfsDesc.L1.Off)
	le64(dpfs, 0x10, dpfsDesc.L1.Size)
	le32(dpfs, 0x18, uint32(bits.TrailingZeros64(dpfsDesc.L1.BlockSize)))
	le64(dpfs, 0x20, dpfsDesc.L2.Off)
	le64(dpfs, 0x28, dpfsDesc.L2.Size)
	le32(dpfs, 0x30, uint32(bits.TrailingZeros64(dpfsDesc.L2.BlockSize)))
	le64(dpfs, 0x38, dpfsDesc.L3.Off)
	le64(dpfs, 0x40, dpfsDesc.L3.Size)
	le32(dpfs, 0x48, uint32(bits.TrailingZeros64(nextPow2(dpfsDesc.L3.Size))))

	header := make([]byte, 0x44)
	ivfcOff := uint64(len(header))
	dpfsOff := ivfcOff + uint64(len(ivfc))
	hashOff := dpfsOff + uint64(len(dpfs))
	le32(header, 0x00, magicDIFI)
	le32(header, 0x04, verDIFI)
	le64(header, 0x08, ivfcOff)
	le64(header, 0x10, uint64(len(ivfc)))
	le64(header, 0x18, dpfsOff)
	le64(header, 0x20, uint64(len(dpfs)))
	le64(header, 0x28, hashOff)
	le64(header, 0x30, 32)
	if isData {
		header[0x38] = 1
	}
	header[0x39] = 0
	le64(header, 0x3C, ivfcL4OffExt)

	partTable = append(append(append([]byte{}, header...), ivfc...), dpfs...)
	partTable = append(partTable, masterHash[:]...)

	return partTable, raw, l4Data
}

// nextPow2 rounds n up to the next power of two (or 1 if n == 0), used only
// to pick a valid log2-encodable DPFS block size that still covers n bytes
// in a single chunk.
func nextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}
