package container

import (
	"bytes"
	"testing"

	"github.com/s0up4200/go-3dssave/internal/diag"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
)

// buildDIFFFile assembles a complete DIFF container file: the 0x100-byte
// preheader and 0x100-byte header, followed by a partition table and raw partition,
// fully serialized so OpenDIFF parses it the same way it would a real file.
func buildDIFFFile(isData bool, uniqueID uint64) ([]byte, []byte) {
	partTable, partRaw, l4Data := buildSerializedPartition(isData)

	priPartTableOff := uint64(headerOff + headerSize)
	partOff := priPartTableOff + uint64(len(partTable))

	tableHash := threedscrypto.Stdlib{}.SHA256(partTable)

	header := make([]byte, headerSize)
	le32(header, 0x00, magicDIFF)
	le32(header, 0x04, verDIFF)
	le64(header, 0x08, 0) // secPartTableOff (unused, activeTable=0)
	le64(header, 0x10, priPartTableOff)
	le64(header, 0x18, uint64(len(partTable)))
	le64(header, 0x20, partOff)
	le64(header, 0x28, uint64(len(partRaw)))
	le32(header, 0x30, 0) // activeTable = primary
	copy(header[0x34:0x54], tableHash[:])
	le64(header, 0x54, uniqueID)

	file := make([]byte, headerOff)
	file = append(file, header...)
	file = append(file, partTable...)
	file = append(file, partRaw...)

	return file, l4Data
}

func TestOpenDIFF_EndToEndSkippingCMAC(t *testing.T) {
	file, l4Data := buildDIFFFile(false, 0xDEADBEEFCAFED00D)

	d := &diag.Collector{}
	ctx := VerifyContext{Primitives: threedscrypto.Stdlib{}, Diag: d}

	res, err := OpenDIFF(file, ctx, nil)
	if err != nil {
		t.Fatalf("OpenDIFF: %v", err)
	}
	if !bytes.Equal(res.Image, l4Data) {
		t.Errorf("Image = %q, want %q", res.Image, l4Data)
	}
	if res.ExternalIVFCL4 {
		t.Error("ExternalIVFCL4 should be false for a non-DATA partition")
	}
	if res.UniqueID != 0xDEADBEEFCAFED00D {
		t.Errorf("UniqueID = 0x%X, want 0xDEADBEEFCAFED00D", res.UniqueID)
	}
}

func TestOpenDIFF_ExternalL4EndToEnd(t *testing.T) {
	file, l4Data := buildDIFFFile(true, 1)

	ctx := VerifyContext{Primitives: threedscrypto.Stdlib{}}
	res, err := OpenDIFF(file, ctx, nil)
	if err != nil {
		t.Fatalf("OpenDIFF: %v", err)
	}
	if !bytes.Equal(res.Image, l4Data) {
		t.Errorf("Image = %q, want %q", res.Image, l4Data)
	}
	if !res.ExternalIVFCL4 {
		t.Error("ExternalIVFCL4 should be true for a DATA partition")
	}
}

func TestOpenDIFF_WarnsOnUniqueIDMismatch(t *testing.T) {
	file, _ := buildDIFFFile(false, 42)

	d := &diag.Collector{}
	ctx := VerifyContext{Primitives: threedscrypto.Stdlib{}, Diag: d}
	expected := uint64(99)
	if _, err := OpenDIFF(file, ctx, &expected); err != nil {
		t.Fatalf("OpenDIFF: %v", err)
	}
	if len(d.Warnings()) == 0 {
		t.Error("expected a warning for the unique ID mismatch")
	}
}

func TestOpenDIFF_RejectsCorruptedPartitionTableHash(t *testing.T) {
	file, _ := buildDIFFFile(false, 1)
	// Flip a byte inside the partition table without updating tableHash.
	file[headerOff+headerSize] ^= 0xFF

	ctx := VerifyContext{Primitives: threedscrypto.Stdlib{}}
	if _, err := OpenDIFF(file, ctx, nil); err == nil {
		t.Error("expected a partition table hash mismatch error")
	}
}

func TestOpenDIFF_RejectsTruncatedFile(t *testing.T) {
	ctx := VerifyContext{Primitives: threedscrypto.Stdlib{}}
	if _, err := OpenDIFF(make([]byte, headerOff), ctx, nil); err == nil {
		t.Error("expected an error for a file shorter than the header region")
	}
}
