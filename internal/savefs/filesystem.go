package savefs

import (
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

// Core is the schema-independent part of a parsed inner filesystem: the
// FilesystemHeader, the resolved data region, and the FAT. The Title-DB
// extractor builds its own Tdb-schema tables on top of a Core; the
// name-schema path wraps it in a Filesystem.
type Core struct {
	Header     FilesystemHeader
	DataRegion []byte
	FAT        *FAT
}

// OpenCore parses the FilesystemHeader, data region, and FAT rooted at an
// inner image's fsHeaderOff: image is the full unwrapped SAVE/VSXE/BDRI
// image; externalDataRegion is non-nil when the data region comes from a
// separate DATA partition (DISA partition B) rather than being embedded.
func OpenCore(image []byte, fsHeaderOff uint64, hasData bool, externalDataRegion []byte, d *diag.Collector) (*Core, error) {
	if uint64(len(image)) < fsHeaderOff+filesystemHeaderSize {
		return nil, fmt.Errorf("savefs: filesystem header out of bounds")
	}
	h, err := ParseFilesystemHeader(image[fsHeaderOff:fsHeaderOff+filesystemHeaderSize], hasData, d)
	if err != nil {
		return nil, err
	}

	var dataRegion []byte
	if hasData {
		if externalDataRegion == nil {
			return nil, fmt.Errorf("savefs: DATA partition expected but not supplied")
		}
		dataRegion = externalDataRegion
	} else {
		end := h.DataRegionOff + uint64(h.DataRegionSize)*uint64(h.BlockSize)
		if end > uint64(len(image)) {
			return nil, fmt.Errorf("savefs: data region out of bounds")
		}
		dataRegion = image[h.DataRegionOff:end]
	}

	fat, err := ParseFAT(image, h, d)
	if err != nil {
		return nil, err
	}
	return &Core{Header: h, DataRegion: dataRegion, FAT: fat}, nil
}

// Filesystem is a fully-parsed name-schema inner filesystem: the SAVE
// (or VSXE) image's FAT, directory/file tables, and hash indices, ready
// for hash-table verification and tree extraction.
type Filesystem struct {
	Header     FilesystemHeader
	DataRegion []byte
	FAT        *FAT
	DirList    []*DirEntry
	FileList   []*FileEntry
}

// OpenFilesystem parses everything rooted at an inner image's
// FilesystemHeader and decodes the name-schema directory/file tables,
// verifying both hash indices along the way.
func OpenFilesystem(image []byte, fsHeaderOff uint64, hasData bool, externalDataRegion []byte, d *diag.Collector) (*Filesystem, error) {
	core, err := OpenCore(image, fsHeaderOff, hasData, externalDataRegion, d)
	if err != nil {
		return nil, err
	}
	h := core.Header
	dataRegion := core.DataRegion
	fat := core.FAT

	dirList, err := BuildDirList(h, image, dataRegion, fat, d)
	if err != nil {
		return nil, err
	}
	fileList, err := BuildFileList(h, image, dataRegion, fat, d)
	if err != nil {
		return nil, err
	}

	dirHash, err := ParseHashTable(image, h.DirHashTableOff, h.DirHashTableSize)
	if err != nil {
		return nil, err
	}
	fileHash, err := ParseHashTable(image, h.FileHashTableOff, h.FileHashTableSize)
	if err != nil {
		return nil, err
	}
	VerifyHashTable(dirHash, dirList, d)
	VerifyHashTable(fileHash, fileList, d)

	return &Filesystem{
		Header:     h,
		DataRegion: dataRegion,
		FAT:        fat,
		DirList:    dirList,
		FileList:   fileList,
	}, nil
}

// ExtractAll walks fs's tree, dumping each file via the SAVE dumper, and
// marks the free chain and leak check.
func (fs *Filesystem) ExtractAll(outputRoot string) error {
	fs.FAT.VisitFreeBlock()
	dumper := NewSaveDumper(fs.FAT, fs.DataRegion, fs.Header.BlockSize)
	err := ExtractAll[*DirEntry, *FileEntry](fs.DirList, fs.FileList, outputRoot, dumper)
	fs.FAT.AllVisited()
	return err
}
