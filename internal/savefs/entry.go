package savefs

import (
	"encoding/binary"
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

// Entry is the common surface over the four record schemas (name-based
// directory/file, Title DB directory/file) so the extractor and hash-table
// verifier can walk any of them without a type switch.
type Entry interface {
	Hash() uint32
	Name() string
	ParentIndex() uint32
	NextIndex() uint32
	NextCollision() uint32
	IsDummy() bool
	setDummy(count, maxCount, nextDummyIndex uint32)
	dummyFields() (count, maxCount, nextDummyIndex uint32)
}

const dirNameHashSeed = 0x091A2B3C

// nameHash implements the name-schema hash function: start from
// parentIndex XOR the seed, then for each of four 4-byte groups of name,
// rotate right 1 across 32 bits before XOR-ing in the little-endian group.
func nameHash(parentIndex uint32, name [16]byte) uint32 {
	hash := parentIndex ^ dirNameHashSeed
	for i := 0; i < 4; i++ {
		hash = (hash >> 1) | (hash << 31)
		hash ^= uint32(name[i*4])
		hash ^= uint32(name[i*4+1]) << 8
		hash ^= uint32(name[i*4+2]) << 16
		hash ^= uint32(name[i*4+3]) << 24
	}
	return hash
}

// titleHash implements the Title-DB-schema hash function.
func titleHash(parentIndex uint32, titleID uint64) uint32 {
	hash := parentIndex ^ dirNameHashSeed
	hash = (hash >> 1) | (hash << 31)
	hash ^= uint32(titleID & 0xFFFFFFFF)
	hash = (hash >> 1) | (hash << 31)
	hash ^= uint32(titleID >> 32)
	return hash
}

func trimName(name [16]byte) string {
	return trimBytes(name[:])
}

// --- DirEntry (name schema, 0x28 bytes) ---

const dirEntrySize = 0x28

// DirEntry is a name-schema directory table record.
type DirEntry struct {
	parentIndex    uint32
	name           [16]byte
	nextIndex      uint32
	FirstDirIndex  uint32
	FirstFileIndex uint32
	Unknown        uint32
	nextCollision  uint32

	isDummy        bool
	dummyCount     uint32
	dummyMaxCount  uint32
	dummyNextIndex uint32
}

// ParseDirEntry decodes one 0x28-byte name-schema directory record.
func ParseDirEntry(raw []byte, d *diag.Collector) (*DirEntry, error) {
	if len(raw) < dirEntrySize {
		return nil, fmt.Errorf("savefs: directory entry too short (%d bytes)", len(raw))
	}
	e := &DirEntry{
		parentIndex:    binary.LittleEndian.Uint32(raw[0x00:]),
		nextIndex:      binary.LittleEndian.Uint32(raw[0x14:]),
		FirstDirIndex:  binary.LittleEndian.Uint32(raw[0x18:]),
		FirstFileIndex: binary.LittleEndian.Uint32(raw[0x1C:]),
		Unknown:        binary.LittleEndian.Uint32(raw[0x20:]),
		nextCollision:  binary.LittleEndian.Uint32(raw[0x24:]),
	}
	copy(e.name[:], raw[0x04:0x14])
	if e.Unknown != 0 && d != nil {
		d.Warnf("unknown = %d in directory entry", e.Unknown)
	}

	e.dummyCount = binary.LittleEndian.Uint32(raw[0x00:])
	e.dummyMaxCount = binary.LittleEndian.Uint32(raw[0x04:])
	e.dummyNextIndex = binary.LittleEndian.Uint32(raw[0x24:])
	return e, nil
}

func (e *DirEntry) Hash() uint32          { return nameHash(e.parentIndex, e.name) }
func (e *DirEntry) Name() string          { return trimName(e.name) }
func (e *DirEntry) ParentIndex() uint32   { return e.parentIndex }
func (e *DirEntry) NextIndex() uint32     { return e.nextIndex }
func (e *DirEntry) NextCollision() uint32 { return e.nextCollision }
func (e *DirEntry) FirstDir() uint32      { return e.FirstDirIndex }
func (e *DirEntry) FirstFile() uint32     { return e.FirstFileIndex }
func (e *DirEntry) IsDummy() bool         { return e.isDummy }
func (e *DirEntry) setDummy(count, maxCount, nextDummyIndex uint32) {
	e.isDummy = true
	e.dummyCount = count
	e.dummyMaxCount = maxCount
	e.dummyNextIndex = nextDummyIndex
}
func (e *DirEntry) dummyFields() (uint32, uint32, uint32) {
	return e.dummyCount, e.dummyMaxCount, e.dummyNextIndex
}

// --- FileEntry (name schema, 0x30 bytes) ---

const fileEntrySize = 0x30

// FileEntry is a name-schema file table record. For SAVE partitions, Size
// and BlockIndex locate the file's content via the FAT; for ExtData
// subfiles the same 8-byte Size field is reinterpreted as UniqueID, the
// inner DIFF unique-ID tag this record must match.
type FileEntry struct {
	parentIndex   uint32
	name          [16]byte
	nextIndex     uint32
	BlockIndex    uint32
	Size          uint64
	UniqueID      uint64
	U2            uint32
	nextCollision uint32

	isDummy        bool
	dummyCount     uint32
	dummyMaxCount  uint32
	dummyNextIndex uint32
}

// ParseFileEntry decodes one 0x30-byte name-schema file record.
func ParseFileEntry(raw []byte) (*FileEntry, error) {
	if len(raw) < fileEntrySize {
		return nil, fmt.Errorf("savefs: file entry too short (%d bytes)", len(raw))
	}
	e := &FileEntry{
		parentIndex:   binary.LittleEndian.Uint32(raw[0x00:]),
		nextIndex:     binary.LittleEndian.Uint32(raw[0x14:]),
		BlockIndex:    binary.LittleEndian.Uint32(raw[0x1C:]),
		Size:          binary.LittleEndian.Uint64(raw[0x20:]),
		U2:            binary.LittleEndian.Uint32(raw[0x28:]),
		nextCollision: binary.LittleEndian.Uint32(raw[0x2C:]),
	}
	copy(e.name[:], raw[0x04:0x14])
	e.UniqueID = e.Size // the same 8 bytes, reinterpreted for ExtData

	e.dummyCount = binary.LittleEndian.Uint32(raw[0x00:])
	e.dummyMaxCount = binary.LittleEndian.Uint32(raw[0x04:])
	e.dummyNextIndex = binary.LittleEndian.Uint32(raw[0x2C:])
	return e, nil
}

func (e *FileEntry) Hash() uint32          { return nameHash(e.parentIndex, e.name) }
func (e *FileEntry) Name() string          { return trimName(e.name) }
func (e *FileEntry) ParentIndex() uint32   { return e.parentIndex }
func (e *FileEntry) NextIndex() uint32     { return e.nextIndex }
func (e *FileEntry) NextCollision() uint32 { return e.nextCollision }
func (e *FileEntry) IsDummy() bool         { return e.isDummy }
func (e *FileEntry) setDummy(count, maxCount, nextDummyIndex uint32) {
	e.isDummy = true
	e.dummyCount = count
	e.dummyMaxCount = maxCount
	e.dummyNextIndex = nextDummyIndex
}
func (e *FileEntry) dummyFields() (uint32, uint32, uint32) {
	return e.dummyCount, e.dummyMaxCount, e.dummyNextIndex
}

// --- TdbDirEntry (Title DB schema, 0x20 bytes) ---

const tdbDirEntrySize = 0x20

// TdbDirEntry is a Title-DB-schema directory table record; Title DB
// directories carry no textual name.
type TdbDirEntry struct {
	parentIndex    uint32
	nextIndex      uint32
	FirstDirIndex  uint32
	FirstFileIndex uint32
	Unk1           uint32
	Unk2           uint32
	Unk3           uint32
	nextCollision  uint32

	isDummy        bool
	dummyCount     uint32
	dummyMaxCount  uint32
	dummyNextIndex uint32
}

// ParseTdbDirEntry decodes one 0x20-byte Title-DB directory record.
func ParseTdbDirEntry(raw []byte) (*TdbDirEntry, error) {
	if len(raw) < tdbDirEntrySize {
		return nil, fmt.Errorf("savefs: title DB directory entry too short (%d bytes)", len(raw))
	}
	e := &TdbDirEntry{
		parentIndex:    binary.LittleEndian.Uint32(raw[0x00:]),
		nextIndex:      binary.LittleEndian.Uint32(raw[0x04:]),
		FirstDirIndex:  binary.LittleEndian.Uint32(raw[0x08:]),
		FirstFileIndex: binary.LittleEndian.Uint32(raw[0x0C:]),
		Unk1:           binary.LittleEndian.Uint32(raw[0x10:]),
		Unk2:           binary.LittleEndian.Uint32(raw[0x14:]),
		Unk3:           binary.LittleEndian.Uint32(raw[0x18:]),
		nextCollision:  binary.LittleEndian.Uint32(raw[0x1C:]),
	}
	e.dummyCount = binary.LittleEndian.Uint32(raw[0x00:])
	e.dummyMaxCount = binary.LittleEndian.Uint32(raw[0x04:])
	e.dummyNextIndex = binary.LittleEndian.Uint32(raw[0x1C:])
	return e, nil
}

func (e *TdbDirEntry) Hash() uint32          { return titleHash(e.parentIndex, 0) }
func (e *TdbDirEntry) Name() string          { return "" }
func (e *TdbDirEntry) ParentIndex() uint32   { return e.parentIndex }
func (e *TdbDirEntry) NextIndex() uint32     { return e.nextIndex }
func (e *TdbDirEntry) NextCollision() uint32 { return e.nextCollision }
func (e *TdbDirEntry) FirstDir() uint32      { return e.FirstDirIndex }
func (e *TdbDirEntry) FirstFile() uint32     { return e.FirstFileIndex }
func (e *TdbDirEntry) IsDummy() bool         { return e.isDummy }
func (e *TdbDirEntry) setDummy(count, maxCount, nextDummyIndex uint32) {
	e.isDummy = true
	e.dummyCount = count
	e.dummyMaxCount = maxCount
	e.dummyNextIndex = nextDummyIndex
}
func (e *TdbDirEntry) dummyFields() (uint32, uint32, uint32) {
	return e.dummyCount, e.dummyMaxCount, e.dummyNextIndex
}

// --- TdbFileEntry (Title DB schema, 0x2C bytes) ---

const tdbFileEntrySize = 0x2C

// TdbFileEntry is a Title-DB-schema file table record, keyed by TitleID
// rather than a textual name.
type TdbFileEntry struct {
	parentIndex   uint32
	TitleID       uint64
	nextIndex     uint32
	Unk1          uint32
	BlockIndex    uint32
	Size          uint64
	Unk2          uint32
	Unk3          uint32
	nextCollision uint32

	isDummy        bool
	dummyCount     uint32
	dummyMaxCount  uint32
	dummyNextIndex uint32
}

// ParseTdbFileEntry decodes one 0x2C-byte Title-DB file record.
func ParseTdbFileEntry(raw []byte) (*TdbFileEntry, error) {
	if len(raw) < tdbFileEntrySize {
		return nil, fmt.Errorf("savefs: title DB file entry too short (%d bytes)", len(raw))
	}
	e := &TdbFileEntry{
		parentIndex:   binary.LittleEndian.Uint32(raw[0x00:]),
		TitleID:       binary.LittleEndian.Uint64(raw[0x04:]),
		nextIndex:     binary.LittleEndian.Uint32(raw[0x0C:]),
		Unk1:          binary.LittleEndian.Uint32(raw[0x10:]),
		BlockIndex:    binary.LittleEndian.Uint32(raw[0x14:]),
		Size:          binary.LittleEndian.Uint64(raw[0x18:]),
		Unk2:          binary.LittleEndian.Uint32(raw[0x20:]),
		Unk3:          binary.LittleEndian.Uint32(raw[0x24:]),
		nextCollision: binary.LittleEndian.Uint32(raw[0x28:]),
	}
	e.dummyCount = binary.LittleEndian.Uint32(raw[0x00:])
	e.dummyMaxCount = binary.LittleEndian.Uint32(raw[0x04:])
	e.dummyNextIndex = binary.LittleEndian.Uint32(raw[0x28:])
	return e, nil
}

func (e *TdbFileEntry) Hash() uint32          { return titleHash(e.parentIndex, e.TitleID) }
func (e *TdbFileEntry) Name() string          { return fmt.Sprintf("%016X", e.TitleID) }
func (e *TdbFileEntry) ParentIndex() uint32   { return e.parentIndex }
func (e *TdbFileEntry) NextIndex() uint32     { return e.nextIndex }
func (e *TdbFileEntry) NextCollision() uint32 { return e.nextCollision }
func (e *TdbFileEntry) IsDummy() bool         { return e.isDummy }
func (e *TdbFileEntry) setDummy(count, maxCount, nextDummyIndex uint32) {
	e.isDummy = true
	e.dummyCount = count
	e.dummyMaxCount = maxCount
	e.dummyNextIndex = nextDummyIndex
}
func (e *TdbFileEntry) dummyFields() (uint32, uint32, uint32) {
	return e.dummyCount, e.dummyMaxCount, e.dummyNextIndex
}

// ScanDummyEntry walks record 0's nextDummyIndex chain, marking every
// record it visits as a dummy free slot and warning if a chained record's
// (count, maxCount) disagrees with the head's.
func ScanDummyEntry[E Entry](list []E, d *diag.Collector) {
	if len(list) == 0 {
		return
	}
	headCount, headMax, next := list[0].dummyFields()
	list[0].setDummy(headCount, headMax, next)
	for next != 0 {
		if int(next) >= len(list) {
			if d != nil {
				d.Warnf("dummy chain index %d out of range", next)
			}
			return
		}
		count, maxCount, nextIdx := list[next].dummyFields()
		if (count != headCount || maxCount != headMax) && d != nil {
			d.Warnf("dummy entries have different content at index %d", next)
		}
		list[next].setDummy(count, maxCount, nextIdx)
		next = nextIdx
	}
}
