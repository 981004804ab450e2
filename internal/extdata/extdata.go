// Package extdata resolves and extracts a 3DS ExtData archive: a VSXE
// index DIFF whose file entries each name a sibling DIFF subfile rather
// than a FAT-addressed block range.
package extdata

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/s0up4200/go-3dssave/internal/container"
	"github.com/s0up4200/go-3dssave/internal/diag"
	"github.com/s0up4200/go-3dssave/internal/savefs"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
)

// subfileCapacity is the fixed fan-out of an ExtData subdirectory: 126
// entries per idHigh bucket.
const subfileCapacity = 126

// SubfileID names one ExtData subfile by its two-level directory split.
type SubfileID struct {
	High uint32
	Low  uint32
}

// SubfileIDFromIndex converts a file table index (0-based) into the
// ExtData subfile ID it names: fileId = index + 1, split as
// (fileId / 126, fileId % 126).
func SubfileIDFromIndex(index int) SubfileID {
	fileID := uint32(index + 1)
	return SubfileID{High: fileID / subfileCapacity, Low: fileID % subfileCapacity}
}

// SubID packs a SubfileID into the 64-bit sub ID used by the ExtData CMAC
// digest-block recipe: (idHigh << 32) | idLow.
func (s SubfileID) SubID() uint64 {
	return uint64(s.High)<<32 | uint64(s.Low)
}

// SubfilePath builds the on-disk path of one ExtData subfile:
// extdataRoot/%08x/%08x/%08x/%08x, where the first two components are the
// save ID's high/low halves and the last two are the subfile ID's.
func SubfilePath(extdataRoot string, saveID uint64, sub SubfileID) string {
	high := uint32(saveID >> 32)
	low := uint32(saveID & 0xFFFFFFFF)
	return filepath.Join(extdataRoot,
		fmt.Sprintf("%08x", high),
		fmt.Sprintf("%08x", low),
		fmt.Sprintf("%08x", sub.High),
		fmt.Sprintf("%08x", sub.Low),
	)
}

// SDPath builds the logical SD card path used as the AES-CTR decryption
// fingerprint input for an ExtData subfile:
// "/extdata/%08x/%08x/%08x/%08x".
func SDPath(saveID uint64, sub SubfileID) string {
	high := uint32(saveID >> 32)
	low := uint32(saveID & 0xFFFFFFFF)
	return fmt.Sprintf("/extdata/%08x/%08x/%08x/%08x", high, low, sub.High, sub.Low)
}

// TitleDBSDPath builds the logical SD card path for a Title DB file:
// "/dbs/title.db" or "/dbs/import.db".
func TitleDBSDPath(saveID uint32) (string, error) {
	name, err := TitleDBFileName(saveID)
	if err != nil {
		return "", err
	}
	return "/dbs/" + name, nil
}

// TitleDBFileName maps a Title DB save ID to its canonical filename.
func TitleDBFileName(saveID uint32) (string, error) {
	switch saveID {
	case 2:
		return "title.db", nil
	case 3:
		return "import.db", nil
	default:
		return "", fmt.Errorf("extdata: unknown title DB save ID %d", saveID)
	}
}

// Index is the parsed VSXE root of an ExtData archive.
type Index struct {
	Header     savefs.InnerHeader
	VSXE       savefs.VSXEInfo
	FSHeader   savefs.FilesystemHeader
	DataRegion []byte
	FAT        *savefs.FAT
	DirList    []*savefs.DirEntry
	FileList   []*savefs.FileEntry
}

// OpenIndex unwraps the ExtData root's VSXE DIFF (subfile 0/1) and parses
// its inner filesystem.
func OpenIndex(p threedscrypto.Primitives, extdataRoot string, saveID uint64, d *diag.Collector) (*Index, error) {
	rootPath := SubfilePath(extdataRoot, saveID, SubfileID{High: 0, Low: 1})
	raw, err := os.ReadFile(rootPath)
	if err != nil {
		return nil, fmt.Errorf("extdata: read index %s: %w", rootPath, err)
	}

	ctx := container.VerifyContext{
		Primitives: p,
		SaveKind:   threedscrypto.SaveKindExtData,
		SaveID:     saveID,
		SubID:      1,
		HasSubID:   true,
		Diag:       d,
	}
	res, err := container.OpenDIFF(raw, ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("extdata: open index: %w", err)
	}

	innerHeader, vsxe, err := savefs.ParseVSXEHeader(res.Image, d)
	if err != nil {
		return nil, fmt.Errorf("extdata: %w", err)
	}
	if d != nil {
		d.Infof("unk1 = %d", vsxe.Unk1)
		d.Infof("recent action = %d", vsxe.RecentAction)
		d.Infof("unk2 = %d", vsxe.Unk2)
		d.Infof("recent ID = %d", vsxe.RecentID)
		d.Infof("unk3 = %d", vsxe.Unk3)
		d.Infof("recentPath = %s", vsxe.RecentPath)
	}

	fs, err := savefs.OpenFilesystem(res.Image, innerHeader.FilesystemHeaderOff, false, nil, d)
	if err != nil {
		return nil, fmt.Errorf("extdata: %w", err)
	}
	fs.FAT.VisitFreeBlock()

	return &Index{
		Header:     innerHeader,
		VSXE:       vsxe,
		FSHeader:   fs.Header,
		DataRegion: fs.DataRegion,
		FAT:        fs.FAT,
		DirList:    fs.DirList,
		FileList:   fs.FileList,
	}, nil
}

// ExtractDirectory treats extdataRoot as an ExtData root directory: it opens
// the VSXE index for saveID and extracts every subfile it names into
// outputDir (empty for verify-only). This is diff-extract's directory-input
// mode.
func ExtractDirectory(p threedscrypto.Primitives, extdataRoot string, saveID uint64, outputDir string, d *diag.Collector) (dirCount, fileCount int, err error) {
	idx, err := OpenIndex(p, extdataRoot, saveID, d)
	if err != nil {
		return 0, 0, err
	}
	if err := idx.ExtractAll(p, extdataRoot, saveID, outputDir, d); err != nil {
		return 0, 0, err
	}
	return len(idx.DirList), len(idx.FileList), nil
}

// ExtractAll walks the index tree, opening each file's sibling DIFF
// subfile and writing its unwrapped content, cross-checking the file
// entry's UniqueID against the inner DIFF's uniqueId tag.
func (idx *Index) ExtractAll(p threedscrypto.Primitives, extdataRoot string, saveID uint64, outputRoot string, d *diag.Collector) error {
	dumper := func(entry *savefs.FileEntry, w io.Writer, index int) {
		sub := SubfileIDFromIndex(index)
		path := SubfilePath(extdataRoot, saveID, sub)

		raw, err := os.ReadFile(path)
		if err != nil {
			d.Warnf("read subfile %s: %v", path, err)
			return
		}
		expected := entry.UniqueID
		ctx := container.VerifyContext{
			Primitives: p,
			SaveKind:   threedscrypto.SaveKindExtData,
			SaveID:     saveID,
			SubID:      sub.SubID(),
			HasSubID:   true,
			Diag:       d,
		}
		res, err := container.OpenDIFF(raw, ctx, &expected)
		if err != nil {
			d.Warnf("open subfile %s: %v", path, err)
			return
		}
		if w != nil {
			if _, err := w.Write(res.Image); err != nil {
				d.Warnf("write subfile %s: %v", path, err)
			}
		}
	}

	err := savefs.ExtractAll[*savefs.DirEntry, *savefs.FileEntry](idx.DirList, idx.FileList, outputRoot, dumper)
	idx.FAT.AllVisited()
	return err
}
