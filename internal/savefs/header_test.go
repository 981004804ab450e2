package savefs

import (
	"encoding/binary"
	"testing"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

func le32h(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
func le64h(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }

func buildInnerHeader(magic, ver uint32, fsOff, imgSize uint64, blockSize uint32) []byte {
	b := make([]byte, innerHeaderSize)
	le32h(b, 0x00, magic)
	le32h(b, 0x04, ver)
	le64h(b, 0x08, fsOff)
	le64h(b, 0x10, imgSize)
	le32h(b, 0x18, blockSize)
	return b
}

func TestParseSAVEHeader_DecodesFields(t *testing.T) {
	raw := buildInnerHeader(magicSAVE, verSAVE, 0x100, 0x2000, 512)
	h, err := ParseSAVEHeader(raw, nil)
	if err != nil {
		t.Fatalf("ParseSAVEHeader: %v", err)
	}
	if h.FilesystemHeaderOff != 0x100 || h.ImageSize != 0x2000 || h.ImageBlockSize != 512 {
		t.Errorf("got %+v", h)
	}
}

func TestParseSAVEHeader_RejectsWrongMagicAndVersion(t *testing.T) {
	raw := buildInnerHeader(magicVSXE, verSAVE, 0, 0, 0)
	if _, err := ParseSAVEHeader(raw, nil); err == nil {
		t.Error("expected an error for a VSXE magic passed to ParseSAVEHeader")
	}
	raw = buildInnerHeader(magicSAVE, 0xDEADBEEF, 0, 0, 0)
	if _, err := ParseSAVEHeader(raw, nil); err == nil {
		t.Error("expected an error for a mismatched version")
	}
}

func TestParseBDRIHeader_DecodesFields(t *testing.T) {
	raw := buildInnerHeader(magicBDRI, verBDRI, 0x40, 0x400, 128)
	h, err := ParseBDRIHeader(raw, nil)
	if err != nil {
		t.Fatalf("ParseBDRIHeader: %v", err)
	}
	if h.FilesystemHeaderOff != 0x40 {
		t.Errorf("FilesystemHeaderOff = 0x%X, want 0x40", h.FilesystemHeaderOff)
	}
}

func TestParseInnerHeader_WarnsOnNonZeroUnknownField(t *testing.T) {
	raw := buildInnerHeader(magicSAVE, verSAVE, 0, 0, 0)
	le32h(raw, 0x1C, 0xFF)
	d := &diag.Collector{}
	if _, err := ParseSAVEHeader(raw, d); err != nil {
		t.Fatalf("ParseSAVEHeader: %v", err)
	}
	if len(d.Warnings()) == 0 {
		t.Error("expected a warning for the non-zero unknown field")
	}
}

func TestParseInnerHeader_RejectsTruncatedInput(t *testing.T) {
	if _, err := ParseSAVEHeader(make([]byte, 4), nil); err == nil {
		t.Error("expected an error for a truncated header")
	}
}

func TestParseVSXEHeader_DecodesRecentActionAndPath(t *testing.T) {
	raw := make([]byte, vsxeHeaderSize)
	copy(raw, buildInnerHeader(magicVSXE, verVSXE, 0x20, 0x1000, 256))
	le64h(raw, 0x20, 0xAABBCCDD)
	le32h(raw, 0x28, 7)
	le32h(raw, 0x2C, 0)
	le32h(raw, 0x30, 42)
	le32h(raw, 0x34, 0)
	copy(raw[0x38:], []byte("/title/00040000/path.bin"))

	h, info, err := ParseVSXEHeader(raw, nil)
	if err != nil {
		t.Fatalf("ParseVSXEHeader: %v", err)
	}
	if h.FilesystemHeaderOff != 0x20 {
		t.Errorf("FilesystemHeaderOff = 0x%X, want 0x20", h.FilesystemHeaderOff)
	}
	if info.Unk1 != 0xAABBCCDD || info.RecentAction != 7 || info.RecentID != 42 {
		t.Errorf("info = %+v", info)
	}
	if info.RecentPath != "/title/00040000/path.bin" {
		t.Errorf("RecentPath = %q", info.RecentPath)
	}
}

func TestParseVSXEHeader_RejectsShortBody(t *testing.T) {
	raw := buildInnerHeader(magicVSXE, verVSXE, 0, 0, 0) // only innerHeaderSize long
	if _, _, err := ParseVSXEHeader(raw, nil); err == nil {
		t.Error("expected an error when the VSXE body is shorter than vsxeHeaderSize")
	}
}

func TestTrimBytes_StopsAtFirstNUL(t *testing.T) {
	b := append([]byte("hello"), make([]byte, 5)...)
	if got := trimBytes(b); got != "hello" {
		t.Errorf("trimBytes = %q, want %q", got, "hello")
	}
	if got := trimBytes([]byte("nopad")); got != "nopad" {
		t.Errorf("trimBytes with no NUL = %q, want %q", got, "nopad")
	}
}

func buildFilesystemHeader(hasData bool) []byte {
	b := make([]byte, filesystemHeaderSize)
	le32h(b, 0x04, 512) // BlockSize
	le64h(b, 0x08, 0x10)
	le32h(b, 0x10, 4) // DirHashTableSize
	le64h(b, 0x18, 0x20)
	le32h(b, 0x20, 4) // FileHashTableSize
	le64h(b, 0x28, 0x30)
	le32h(b, 0x30, 100) // FATSize
	le64h(b, 0x38, 0x40)
	le32h(b, 0x40, 100) // DataRegionSize
	if !hasData {
		le32h(b, 0x48, 1) // DirTableBlockIndex
		le32h(b, 0x4C, 2) // DirTableBlockCount
		le32h(b, 0x50, 10)
		le32h(b, 0x58, 3)
		le32h(b, 0x5C, 4)
		le32h(b, 0x60, 20)
	} else {
		le64h(b, 0x48, 0x1000) // DirTableOff
		le32h(b, 0x50, 10)
		le64h(b, 0x58, 0x2000) // FileTableOff
		le32h(b, 0x60, 20)
	}
	return b
}

func TestParseFilesystemHeader_BlockAddressedVariant(t *testing.T) {
	raw := buildFilesystemHeader(false)
	h, err := ParseFilesystemHeader(raw, false, nil)
	if err != nil {
		t.Fatalf("ParseFilesystemHeader: %v", err)
	}
	if h.HasData {
		t.Error("HasData should be false")
	}
	if h.DirTableBlockIndex != 1 || h.DirTableBlockCount != 2 || h.DirMaxCount != 10 {
		t.Errorf("dir fields = %+v", h)
	}
	if h.FileTableBlockIndex != 3 || h.FileTableBlockCount != 4 || h.FileMaxCount != 20 {
		t.Errorf("file fields = %+v", h)
	}
}

func TestParseFilesystemHeader_ExternalOffsetVariant(t *testing.T) {
	raw := buildFilesystemHeader(true)
	h, err := ParseFilesystemHeader(raw, true, nil)
	if err != nil {
		t.Fatalf("ParseFilesystemHeader: %v", err)
	}
	if !h.HasData {
		t.Error("HasData should be true")
	}
	if h.DirTableOff != 0x1000 || h.DirMaxCount != 10 {
		t.Errorf("dir fields = %+v", h)
	}
	if h.FileTableOff != 0x2000 || h.FileMaxCount != 20 {
		t.Errorf("file fields = %+v", h)
	}
}

func TestParseFilesystemHeader_WarnsOnFATAndDataRegionSizeMismatch(t *testing.T) {
	raw := buildFilesystemHeader(false)
	le32h(raw, 0x40, 50) // DataRegionSize now disagrees with FATSize (100)
	d := &diag.Collector{}
	if _, err := ParseFilesystemHeader(raw, false, d); err != nil {
		t.Fatalf("ParseFilesystemHeader: %v", err)
	}
	if len(d.Warnings()) == 0 {
		t.Error("expected a warning for the FAT/data-region size mismatch")
	}
}

func TestParseFilesystemHeader_RejectsTruncatedInput(t *testing.T) {
	if _, err := ParseFilesystemHeader(make([]byte, 8), false, nil); err == nil {
		t.Error("expected an error for a truncated filesystem header")
	}
}
