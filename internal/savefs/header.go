// Package savefs parses the inner 3DS save filesystem that lives inside an
// unwrapped DISA/DIFF partition image: the SAVE/VSXE/BDRI variant header,
// the FilesystemHeader, the FAT allocation table, the directory/file tables
// and their hash indices, and the tree-walking extractor.
package savefs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

const (
	magicSAVE = 0x45564153
	verSAVE   = 0x00040000
	magicVSXE = 0x45585356
	verVSXE   = 0x00030000
	magicBDRI = 0x49524442
	verBDRI   = 0x00030000

	innerHeaderSize = 0x20
	vsxeHeaderSize  = 0x138
)

// InnerHeader is the common prefix shared by SAVE, VSXE, and BDRI images:
// it points at the FilesystemHeader and records the image's nominal size.
type InnerHeader struct {
	FilesystemHeaderOff uint64
	ImageSize           uint64
	ImageBlockSize      uint32
}

func parseInnerHeader(raw []byte, wantMagic, wantVer uint32, label string, d *diag.Collector) (InnerHeader, error) {
	var h InnerHeader
	if len(raw) < innerHeaderSize {
		return h, fmt.Errorf("savefs: %s header too short (%d bytes)", label, len(raw))
	}
	magic := binary.LittleEndian.Uint32(raw[0x00:])
	ver := binary.LittleEndian.Uint32(raw[0x04:])
	if magic != wantMagic {
		return h, fmt.Errorf("savefs: wrong %s magic 0x%08X", label, magic)
	}
	if ver != wantVer {
		return h, fmt.Errorf("savefs: wrong %s version 0x%08X", label, ver)
	}
	h.FilesystemHeaderOff = binary.LittleEndian.Uint64(raw[0x08:])
	h.ImageSize = binary.LittleEndian.Uint64(raw[0x10:])
	h.ImageBlockSize = binary.LittleEndian.Uint32(raw[0x18:])
	x00 := binary.LittleEndian.Uint32(raw[0x1C:])
	if x00 != 0 && d != nil {
		d.Warnf("unknown 0 = 0x%X in %s header", x00, label)
	}
	return h, nil
}

// ParseSAVEHeader parses the header of a DISA SAVE partition's unwrapped
// image.
func ParseSAVEHeader(raw []byte, d *diag.Collector) (InnerHeader, error) {
	return parseInnerHeader(raw, magicSAVE, verSAVE, "SAVE", d)
}

// ParseBDRIHeader parses the header of a BDRI ticket/title database image,
// which shares the SAVE/VSXE layout's first 0x20 bytes.
func ParseBDRIHeader(raw []byte, d *diag.Collector) (InnerHeader, error) {
	return parseInnerHeader(raw, magicBDRI, verBDRI, "BDRI", d)
}

// VSXEInfo holds the ExtData-root-specific fields that follow the common
// inner header in a VSXE image; their semantics are not established, so
// they are preserved verbatim rather than interpreted.
type VSXEInfo struct {
	Unk1         uint64
	RecentAction uint32
	Unk2         uint32
	RecentID     uint32
	Unk3         uint32
	RecentPath   string
}

// ParseVSXEHeader parses a VSXE (ExtData root) image header: the common
// inner header plus a recent-action log and a 256-byte recent path.
func ParseVSXEHeader(raw []byte, d *diag.Collector) (InnerHeader, VSXEInfo, error) {
	var info VSXEInfo
	h, err := parseInnerHeader(raw, magicVSXE, verVSXE, "VSXE", d)
	if err != nil {
		return h, info, err
	}
	if len(raw) < vsxeHeaderSize {
		return h, info, fmt.Errorf("savefs: VSXE header too short (%d bytes)", len(raw))
	}
	info.Unk1 = binary.LittleEndian.Uint64(raw[0x20:])
	info.RecentAction = binary.LittleEndian.Uint32(raw[0x28:])
	info.Unk2 = binary.LittleEndian.Uint32(raw[0x2C:])
	info.RecentID = binary.LittleEndian.Uint32(raw[0x30:])
	info.Unk3 = binary.LittleEndian.Uint32(raw[0x34:])
	info.RecentPath = trimBytes(raw[0x38 : 0x38+256])
	return h, info, nil
}

// trimBytes decodes a fixed-width NUL-padded field up to its first NUL.
func trimBytes(b []byte) string {
	if i := bytes.IndexByte(b, 0); i != -1 {
		return string(b[:i])
	}
	return string(b)
}

const filesystemHeaderSize = 0x68

// FilesystemHeader describes the layout of the FAT, the directory/file
// tables, and the data region inside one inner image.
//
// When HasData is false (no separate DATA partition), the directory/file
// tables live inside the data region and are block-addressed; when true,
// they live at absolute offsets inside the unwrapped image and the data
// region is supplied externally by the DATA partition.
type FilesystemHeader struct {
	BlockSize uint32

	DirHashTableOff   uint64
	DirHashTableSize  uint32
	FileHashTableOff  uint64
	FileHashTableSize uint32

	FATOff  uint64
	FATSize uint32

	DataRegionOff  uint64
	DataRegionSize uint32

	HasData bool

	// Populated when HasData is false.
	DirTableBlockIndex  uint32
	DirTableBlockCount  uint32
	FileTableBlockIndex uint32
	FileTableBlockCount uint32

	// Populated when HasData is true.
	DirTableOff  uint64
	FileTableOff uint64

	DirMaxCount  uint32
	FileMaxCount uint32
}

// ParseFilesystemHeader reads the fixed 0x68-byte FilesystemHeader.
// hasData must reflect whether the container carries a separate DATA
// partition (DISA partition B present), since that selects which tail
// schema the last 0x20 bytes use.
func ParseFilesystemHeader(raw []byte, hasData bool, d *diag.Collector) (FilesystemHeader, error) {
	var h FilesystemHeader
	if len(raw) < filesystemHeaderSize {
		return h, fmt.Errorf("savefs: filesystem header too short (%d bytes)", len(raw))
	}

	x00 := binary.LittleEndian.Uint32(raw[0x00:])
	if x00 != 0 && d != nil {
		d.Warnf("unknown 0 = 0x%X in filesystem header", x00)
	}
	h.BlockSize = binary.LittleEndian.Uint32(raw[0x04:])
	h.DirHashTableOff = binary.LittleEndian.Uint64(raw[0x08:])
	h.DirHashTableSize = binary.LittleEndian.Uint32(raw[0x10:])
	h.FileHashTableOff = binary.LittleEndian.Uint64(raw[0x18:])
	h.FileHashTableSize = binary.LittleEndian.Uint32(raw[0x20:])
	h.FATOff = binary.LittleEndian.Uint64(raw[0x28:])
	h.FATSize = binary.LittleEndian.Uint32(raw[0x30:])
	h.DataRegionOff = binary.LittleEndian.Uint64(raw[0x38:])
	h.DataRegionSize = binary.LittleEndian.Uint32(raw[0x40:])

	if h.FATSize != h.DataRegionSize && d != nil {
		d.Warnf("fatSize (%d) != dataRegionSize (%d)", h.FATSize, h.DataRegionSize)
	}

	h.HasData = hasData
	tail := raw[0x48:0x68]
	if !hasData {
		h.DirTableBlockIndex = binary.LittleEndian.Uint32(tail[0x00:])
		h.DirTableBlockCount = binary.LittleEndian.Uint32(tail[0x04:])
		h.DirMaxCount = binary.LittleEndian.Uint32(tail[0x08:])
		h.FileTableBlockIndex = binary.LittleEndian.Uint32(tail[0x10:])
		h.FileTableBlockCount = binary.LittleEndian.Uint32(tail[0x14:])
		h.FileMaxCount = binary.LittleEndian.Uint32(tail[0x18:])
	} else {
		h.DirTableOff = binary.LittleEndian.Uint64(tail[0x00:])
		h.DirMaxCount = binary.LittleEndian.Uint32(tail[0x08:])
		h.FileTableOff = binary.LittleEndian.Uint64(tail[0x10:])
		h.FileMaxCount = binary.LittleEndian.Uint32(tail[0x18:])
	}

	return h, nil
}
