package savefs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/s0up4200/go-3dssave/internal/diag"
)

// getAllocatedList assembles count blocks of blockSize bytes starting at
// the FAT chain rooted at index, as used when a directory/file table lives
// inside the data region rather than at an absolute offset.
func getAllocatedList(dataRegion []byte, blockSize uint32, fat *FAT, index uint32, count uint32) []byte {
	result := make([]byte, 0, uint64(count)*uint64(blockSize))
	left := count
	fat.Walk(int(index), func(block0 int) {
		if left == 0 {
			fat.warnf("excessive block")
			return
		}
		start := uint64(block0) * uint64(blockSize)
		end := start + uint64(blockSize)
		if end > uint64(len(dataRegion)) {
			fat.warnf("allocated block %d out of data region bounds", block0)
			return
		}
		result = append(result, dataRegion[start:end]...)
		left--
	})
	if left != 0 {
		fat.warnf("not enough block")
	}
	return result
}

// tableBytes resolves a table's source bytes, either directly from image at
// an absolute offset or assembled from the data region via the FAT.
func tableBytes(h FilesystemHeader, image, dataRegion []byte, fat *FAT, absOff uint64, blockIndex, blockCount uint32) []byte {
	if !h.HasData {
		return getAllocatedList(dataRegion, h.BlockSize, fat, blockIndex, blockCount)
	}
	return image[absOff:]
}

// BuildDirList decodes the full name-schema directory table, following the
// dummy-chain head at record 0 to mark free slots.
func BuildDirList(h FilesystemHeader, image, dataRegion []byte, fat *FAT, d *diag.Collector) ([]*DirEntry, error) {
	data := tableBytes(h, image, dataRegion, fat, h.DirTableOff, h.DirTableBlockIndex, h.DirTableBlockCount)
	head, err := ParseDirEntry(data[0:dirEntrySize], d)
	if err != nil {
		return nil, fmt.Errorf("savefs: directory table: %w", err)
	}
	count, _, _ := head.dummyFields()
	list := make([]*DirEntry, 0, count)
	list = append(list, head)
	for i := uint32(1); i < count; i++ {
		off := uint64(i) * dirEntrySize
		if off+dirEntrySize > uint64(len(data)) {
			return nil, fmt.Errorf("savefs: directory table truncated at record %d", i)
		}
		e, err := ParseDirEntry(data[off:off+dirEntrySize], d)
		if err != nil {
			return nil, fmt.Errorf("savefs: directory table: %w", err)
		}
		list = append(list, e)
	}
	ScanDummyEntry(list, d)
	return list, nil
}

// BuildFileList decodes the full name-schema file table, analogous to
// BuildDirList.
func BuildFileList(h FilesystemHeader, image, dataRegion []byte, fat *FAT, d *diag.Collector) ([]*FileEntry, error) {
	data := tableBytes(h, image, dataRegion, fat, h.FileTableOff, h.FileTableBlockIndex, h.FileTableBlockCount)
	head, err := ParseFileEntry(data[0:fileEntrySize])
	if err != nil {
		return nil, fmt.Errorf("savefs: file table: %w", err)
	}
	count, _, _ := head.dummyFields()
	list := make([]*FileEntry, 0, count)
	list = append(list, head)
	for i := uint32(1); i < count; i++ {
		off := uint64(i) * fileEntrySize
		if off+fileEntrySize > uint64(len(data)) {
			return nil, fmt.Errorf("savefs: file table truncated at record %d", i)
		}
		e, err := ParseFileEntry(data[off : off+fileEntrySize])
		if err != nil {
			return nil, fmt.Errorf("savefs: file table: %w", err)
		}
		list = append(list, e)
	}
	ScanDummyEntry(list, d)
	return list, nil
}

// BuildTdbDirList decodes the Title-DB directory table; Title DB tables
// are always embedded in the data region.
func BuildTdbDirList(h FilesystemHeader, dataRegion []byte, fat *FAT, d *diag.Collector) ([]*TdbDirEntry, error) {
	data := getAllocatedList(dataRegion, h.BlockSize, fat, h.DirTableBlockIndex, h.DirTableBlockCount)
	head, err := ParseTdbDirEntry(data[0:tdbDirEntrySize])
	if err != nil {
		return nil, fmt.Errorf("savefs: title DB directory table: %w", err)
	}
	count, _, _ := head.dummyFields()
	list := make([]*TdbDirEntry, 0, count)
	list = append(list, head)
	for i := uint32(1); i < count; i++ {
		off := uint64(i) * tdbDirEntrySize
		if off+tdbDirEntrySize > uint64(len(data)) {
			return nil, fmt.Errorf("savefs: title DB directory table truncated at record %d", i)
		}
		e, err := ParseTdbDirEntry(data[off : off+tdbDirEntrySize])
		if err != nil {
			return nil, fmt.Errorf("savefs: title DB directory table: %w", err)
		}
		list = append(list, e)
	}
	ScanDummyEntry(list, d)
	return list, nil
}

// BuildTdbFileList decodes the Title-DB file table, analogous to
// BuildTdbDirList.
func BuildTdbFileList(h FilesystemHeader, dataRegion []byte, fat *FAT, d *diag.Collector) ([]*TdbFileEntry, error) {
	data := getAllocatedList(dataRegion, h.BlockSize, fat, h.FileTableBlockIndex, h.FileTableBlockCount)
	head, err := ParseTdbFileEntry(data[0:tdbFileEntrySize])
	if err != nil {
		return nil, fmt.Errorf("savefs: title DB file table: %w", err)
	}
	count, _, _ := head.dummyFields()
	list := make([]*TdbFileEntry, 0, count)
	list = append(list, head)
	for i := uint32(1); i < count; i++ {
		off := uint64(i) * tdbFileEntrySize
		if off+tdbFileEntrySize > uint64(len(data)) {
			return nil, fmt.Errorf("savefs: title DB file table truncated at record %d", i)
		}
		e, err := ParseTdbFileEntry(data[off : off+tdbFileEntrySize])
		if err != nil {
			return nil, fmt.Errorf("savefs: title DB file table: %w", err)
		}
		list = append(list, e)
	}
	ScanDummyEntry(list, d)
	return list, nil
}

// DirNode is the subset of Entry the tree walker needs from a directory
// record: its children, its name, and its next sibling.
type DirNode interface {
	Name() string
	NextIndex() uint32
	FirstDir() uint32
	FirstFile() uint32
}

// FileDumper writes one file record's content to w (nil when the caller
// only wants verification, not extraction) and is told its 0-based index
// in the file table, since ExtData dumpers need it to resolve a sibling
// subfile path.
type FileDumper[F any] func(entry F, w io.Writer, index int)

// ExtractAll performs the depth-first tree walk starting at directory
// index 1 (index 0 is the dummy-chain head, never a real root): recurse
// into children, then files, then sibling directories.
// When outputRoot is empty, no files or directories are created on disk,
// but fileDumper still runs so callers can drive verification-only passes.
func ExtractAll[D DirNode, F interface {
	Name() string
	NextIndex() uint32
}](
	dirList []D, fileList []F, outputRoot string, fileDumper FileDumper[F],
) error {
	var extractDir func(i uint32, parent string) error
	var extractFile func(i uint32, parent string) error

	extractDir = func(i uint32, parent string) error {
		dir := dirList[i]
		target := filepath.Join(parent, dir.Name())
		if outputRoot != "" {
			if err := os.MkdirAll(filepath.Join(outputRoot, target), 0o755); err != nil {
				return fmt.Errorf("savefs: mkdir %s: %w", target, err)
			}
		}
		if dir.FirstDir() != 0 {
			if err := extractDir(dir.FirstDir(), target); err != nil {
				return err
			}
		}
		if dir.FirstFile() != 0 {
			if err := extractFile(dir.FirstFile(), target); err != nil {
				return err
			}
		}
		if dir.NextIndex() != 0 {
			if err := extractDir(dir.NextIndex(), parent); err != nil {
				return err
			}
		}
		return nil
	}

	extractFile = func(i uint32, parent string) error {
		entry := fileList[i]
		fullName := filepath.Join(parent, entry.Name())

		var w io.Writer
		var f *os.File
		if outputRoot != "" {
			var err error
			f, err = os.Create(filepath.Join(outputRoot, fullName))
			if err != nil {
				return fmt.Errorf("savefs: create %s: %w", fullName, err)
			}
			w = f
		}

		fileDumper(entry, w, int(i))

		if f != nil {
			if err := f.Close(); err != nil {
				return fmt.Errorf("savefs: close %s: %w", fullName, err)
			}
		}

		if entry.NextIndex() != 0 {
			return extractFile(entry.NextIndex(), parent)
		}
		return nil
	}

	return extractDir(1, "")
}

// NewSaveDumper builds the SAVE dumper: it reassembles a
// FileEntry's content via FAT.Walk over dataRegion, copying
// min(remaining, blockSize) bytes per visited block.
func NewSaveDumper(fat *FAT, dataRegion []byte, blockSize uint32) FileDumper[*FileEntry] {
	return func(entry *FileEntry, w io.Writer, _ int) {
		if entry.Size == 0 {
			// A zero-sized file owns no FAT chain to walk.
			return
		}
		remaining := entry.Size
		fat.Walk(int(entry.BlockIndex), func(block0 int) {
			if remaining == 0 {
				fat.warnf("excessive block")
				return
			}
			tran := uint64(blockSize)
			if remaining < tran {
				tran = remaining
			}
			pos := uint64(block0) * uint64(blockSize)
			if w != nil {
				if _, err := w.Write(dataRegion[pos : pos+tran]); err != nil {
					fat.warnf("write failed: %v", err)
				}
			}
			remaining -= tran
		})
		if remaining != 0 {
			fat.warnf("not enough block")
		}
	}
}

// NewTdbSaveDumper is NewSaveDumper's Title-DB-schema counterpart, used by
// the BDRI ticket/title database extractor.
func NewTdbSaveDumper(fat *FAT, dataRegion []byte, blockSize uint32) FileDumper[*TdbFileEntry] {
	return func(entry *TdbFileEntry, w io.Writer, _ int) {
		if entry.Size == 0 {
			// A zero-sized file owns no FAT chain to walk.
			return
		}
		remaining := entry.Size
		fat.Walk(int(entry.BlockIndex), func(block0 int) {
			if remaining == 0 {
				fat.warnf("excessive block")
				return
			}
			tran := uint64(blockSize)
			if remaining < tran {
				tran = remaining
			}
			pos := uint64(block0) * uint64(blockSize)
			if w != nil {
				if _, err := w.Write(dataRegion[pos : pos+tran]); err != nil {
					fat.warnf("write failed: %v", err)
				}
			}
			remaining -= tran
		})
		if remaining != 0 {
			fat.warnf("not enough block")
		}
	}
}
