package savefs

import (
	"testing"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

// buildMinimalImage assembles the smallest valid external-offset
// (hasData=true) inner image: a FilesystemHeader, a one-block FAT (two
// entries, counting the free-chain head), and a
// single dummy-chain-head directory/file record each (count=1, so no
// further records are required).
func buildMinimalImage() []byte {
	const (
		fatOff  = 0x68
		dirOff  = 0x78
		fileOff = 0xA0
		imgLen  = 0xD0
	)

	image := make([]byte, imgLen)

	h := image[0:filesystemHeaderSize]
	le32h(h, 0x04, 4)       // BlockSize
	le64h(h, 0x08, imgLen)  // DirHashTableOff (size 0, offset unused)
	le32h(h, 0x10, 0)       // DirHashTableSize
	le64h(h, 0x18, imgLen)  // FileHashTableOff
	le32h(h, 0x20, 0)       // FileHashTableSize
	le64h(h, 0x28, fatOff)  // FATOff
	le32h(h, 0x30, 1)       // FATSize
	le64h(h, 0x38, 0)       // DataRegionOff (unused, hasData)
	le32h(h, 0x40, 1)       // DataRegionSize (matches FATSize)
	le64h(h, 0x48, dirOff)  // DirTableOff
	le32h(h, 0x50, 1)       // DirMaxCount
	le64h(h, 0x58, fileOff) // FileTableOff
	le32h(h, 0x60, 1)       // FileMaxCount

	// FAT: index 0 is the free-chain head, index 1 an unused block.
	// Both entries are all-zero, which parseFATEntry reads as U=0,V=0,
	// no flags set.

	// Directory table: one dummy-chain head record, count=1.
	dir := image[dirOff : dirOff+dirEntrySize]
	le32h(dir, 0x00, 1) // dummyCount
	le32h(dir, 0x04, 0) // dummyMaxCount
	le32h(dir, 0x24, 0) // dummyNextIndex

	// File table: one dummy-chain head record, count=1.
	file := image[fileOff : fileOff+fileEntrySize]
	le32h(file, 0x00, 1) // dummyCount
	le32h(file, 0x04, 0) // dummyMaxCount
	le32h(file, 0x2C, 0) // dummyNextIndex

	return image
}

func TestOpenFilesystem_ParsesMinimalExternalOffsetImage(t *testing.T) {
	image := buildMinimalImage()
	d := &diag.Collector{}

	fs, err := OpenFilesystem(image, 0, true, []byte("DATA"), d)
	if err != nil {
		t.Fatalf("OpenFilesystem: %v", err)
	}
	if !fs.Header.HasData {
		t.Error("Header.HasData should be true")
	}
	if len(fs.DirList) != 1 || len(fs.FileList) != 1 {
		t.Fatalf("DirList/FileList lengths = %d/%d, want 1/1", len(fs.DirList), len(fs.FileList))
	}
	if !fs.DirList[0].IsDummy() || !fs.FileList[0].IsDummy() {
		t.Error("the sole record in each table should be the dummy-chain head")
	}
	if fs.FAT == nil {
		t.Fatal("FAT should be populated")
	}
}

func TestOpenCore_LeavesTablesUnparsed(t *testing.T) {
	image := buildMinimalImage()
	d := &diag.Collector{}

	core, err := OpenCore(image, 0, true, []byte("DATA"), d)
	if err != nil {
		t.Fatalf("OpenCore: %v", err)
	}
	if core.FAT == nil {
		t.Fatal("FAT should be populated")
	}
	if string(core.DataRegion) != "DATA" {
		t.Errorf("DataRegion = %q, want the supplied external region", core.DataRegion)
	}
	if len(d.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", d.Warnings())
	}
}

func TestOpenFilesystem_RejectsMissingExternalDataRegion(t *testing.T) {
	image := buildMinimalImage()
	if _, err := OpenFilesystem(image, 0, true, nil, nil); err == nil {
		t.Error("expected an error when hasData is true but no external data region is supplied")
	}
}

func TestOpenFilesystem_RejectsTruncatedHeader(t *testing.T) {
	if _, err := OpenFilesystem(make([]byte, 4), 0, true, []byte{}, nil); err == nil {
		t.Error("expected an error for an image shorter than the filesystem header")
	}
}
