// Package threedssave is the public facade over the container-unwrap and
// inner-filesystem engines: it exposes one Options/Result call per
// container kind (DISA, DIFF, BDRI ticket, ExtData), mirroring the
// Options/Settings/ProgressEvent shape of go-bdinfo's pkg/bdinfo.
package threedssave

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/s0up4200/go-3dssave/internal/container"
	"github.com/s0up4200/go-3dssave/internal/diag"
	"github.com/s0up4200/go-3dssave/internal/extdata"
	"github.com/s0up4200/go-3dssave/internal/fsopts"
	"github.com/s0up4200/go-3dssave/internal/keyengine"
	"github.com/s0up4200/go-3dssave/internal/savefs"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
)

// Stage represents a coarse progress stage for the Extract* calls.
type Stage string

const (
	StageOpening    Stage = "opening"
	StageUnwrapping Stage = "unwrapping"
	StageParsingFS  Stage = "parsing_filesystem"
	StageExtracting Stage = "extracting"
	StageDone       Stage = "done"
)

// ProgressEvent is emitted when an Extract* call transitions between
// major phases.
type ProgressEvent struct {
	Stage      Stage
	Path       string
	DirCount   int
	FileCount  int
	Elapsed    time.Duration
	OccurredAt time.Time
}

func emit(cb func(ProgressEvent), event ProgressEvent) {
	if cb != nil {
		cb(event)
	}
}

// Result carries the verification notices and a run identifier common to
// every Extract* call.
type Result struct {
	RunID       uuid.UUID
	Diagnostics []string
}

func newResult(d *diag.Collector) Result {
	entries := d.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return Result{RunID: uuid.New(), Diagnostics: lines}
}

func buildVerifyContext(p threedscrypto.Primitives, v fsopts.VerifyOptions, d *diag.Collector) (container.VerifyContext, error) {
	kind, err := fsopts.ParseSaveKind(v.SaveKind)
	if err != nil {
		return container.VerifyContext{}, err
	}

	ctx := container.VerifyContext{
		Primitives: p,
		SaveKind:   kind,
		SaveID:     v.SaveID,
		SubID:      v.SubID,
		HasSubID:   v.HasSubID,
		Diag:       d,
	}

	secrets, err := v.BuildSecrets()
	if err == nil {
		engine := keyengine.New(secrets)
		if key, ok := engine.KeySdNandCmac(); ok {
			ctx.CmacKey = &key
		}
	}
	return ctx, nil
}

// DISAOptions configures one ExtractDISA call.
type DISAOptions struct {
	InputPath  string
	OutputPath string // empty runs verification-only, writing nothing
	Verify     fsopts.VerifyOptions
	// Decrypt applies whole-container SD AES-CTR decryption before
	// container parsing. Only SD saves support decryption; requires
	// Verify.SaveID plus the 0x34X/movable/const secrets.
	Decrypt    bool
	OnProgress func(ProgressEvent)
}

// DISAResult is ExtractDISA's structured output.
type DISAResult struct {
	Result
	HasDataPartition bool
	DirCount         int
	FileCount        int
}

// ExtractDISA opens, authenticates, and extracts a DISA container's SAVE
// (and optional DATA) partition.
func ExtractDISA(ctx context.Context, opts DISAOptions) (DISAResult, error) {
	if opts.InputPath == "" {
		return DISAResult{}, errors.New("threedssave: input path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return DISAResult{}, err
	}

	start := time.Now()
	d := &diag.Collector{}
	p := threedscrypto.Stdlib{}

	emit(opts.OnProgress, ProgressEvent{Stage: StageOpening, Path: opts.InputPath, OccurredAt: time.Now()})
	raw, err := os.ReadFile(opts.InputPath)
	if err != nil {
		return DISAResult{}, fmt.Errorf("threedssave: %w", err)
	}

	if opts.Decrypt {
		raw, err = applyDecrypt(p, opts.Verify, raw)
		if err != nil {
			return DISAResult{}, fmt.Errorf("threedssave: %w", err)
		}
	}

	vctx, err := buildVerifyContext(p, opts.Verify, d)
	if err != nil {
		return DISAResult{}, fmt.Errorf("threedssave: %w", err)
	}

	emit(opts.OnProgress, ProgressEvent{Stage: StageUnwrapping, Path: opts.InputPath, OccurredAt: time.Now()})
	disaRes, err := container.OpenDISA(raw, vctx)
	if err != nil {
		return DISAResult{}, fmt.Errorf("threedssave: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return DISAResult{}, err
	}

	emit(opts.OnProgress, ProgressEvent{Stage: StageParsingFS, Path: opts.InputPath, OccurredAt: time.Now()})
	innerHeader, err := savefs.ParseSAVEHeader(disaRes.SaveImage, d)
	if err != nil {
		return DISAResult{}, fmt.Errorf("threedssave: %w", err)
	}

	var dataRegion []byte
	if disaRes.HasData {
		dataRegion = disaRes.DataImage
	}
	fs, err := savefs.OpenFilesystem(disaRes.SaveImage, innerHeader.FilesystemHeaderOff, disaRes.HasData, dataRegion, d)
	if err != nil {
		return DISAResult{}, fmt.Errorf("threedssave: %w", err)
	}

	emit(opts.OnProgress, ProgressEvent{
		Stage: StageExtracting, Path: opts.InputPath,
		DirCount: len(fs.DirList), FileCount: len(fs.FileList), OccurredAt: time.Now(),
	})
	if err := fs.ExtractAll(opts.OutputPath); err != nil {
		return DISAResult{}, fmt.Errorf("threedssave: %w", err)
	}

	emit(opts.OnProgress, ProgressEvent{
		Stage: StageDone, Path: opts.InputPath, Elapsed: time.Since(start), OccurredAt: time.Now(),
	})

	return DISAResult{
		Result:           newResult(d),
		HasDataPartition: disaRes.HasData,
		DirCount:         len(fs.DirList),
		FileCount:        len(fs.FileList),
	}, nil
}

// DIFFOptions configures one ExtractDIFF call.
type DIFFOptions struct {
	InputPath        string
	OutputPath       string // empty writes nothing; only meaningful for non-directory DIFFs
	ExpectedUniqueID *uint64
	Verify           fsopts.VerifyOptions
	// Decrypt applies whole-container SD AES-CTR decryption before
	// container parsing. Requires Verify.SaveID and a kind of "extdata"
	// or "titledb", plus the 0x34X/movable/const secrets.
	Decrypt    bool
	OnProgress func(ProgressEvent)
}

// sdDecryptPath resolves the logical SD card path used as the AES-CTR
// fingerprint input for -decrypt, per kind.
func sdDecryptPath(kind threedscrypto.SaveKind, v fsopts.VerifyOptions) (string, error) {
	switch kind {
	case threedscrypto.SaveKindSD:
		high := uint32(v.SaveID >> 32)
		low := uint32(v.SaveID & 0xFFFFFFFF)
		return fmt.Sprintf("/title/%08x/%08x/data/00000001.sav", high, low), nil
	case threedscrypto.SaveKindExtData:
		sub := extdata.SubfileID{High: uint32(v.SubID >> 32), Low: uint32(v.SubID)}
		return extdata.SDPath(v.SaveID, sub), nil
	case threedscrypto.SaveKindTitleDB:
		return extdata.TitleDBSDPath(uint32(v.SaveID))
	default:
		return "", errors.New("threedssave: only SD saves support decryption")
	}
}

func applyDecrypt(p threedscrypto.Primitives, v fsopts.VerifyOptions, raw []byte) ([]byte, error) {
	if !v.HasSaveID {
		return nil, errors.New("threedssave: -decrypt requires a save ID")
	}
	kind, err := fsopts.ParseSaveKind(v.SaveKind)
	if err != nil {
		return nil, err
	}
	path, err := sdDecryptPath(kind, v)
	if err != nil {
		return nil, err
	}
	secrets, err := v.BuildSecrets()
	if err != nil {
		return nil, err
	}
	key, ok := keyengine.New(secrets).KeySdDecrypt()
	if !ok {
		return nil, errors.New("threedssave: -decrypt requires key-0x34x, key-movable, and key-const")
	}
	counter := threedscrypto.SDCounter(p, path)
	return p.AESCTRDecrypt(key, counter, raw)
}

// DIFFResult is ExtractDIFF's structured output.
type DIFFResult struct {
	Result
	UniqueID       uint64
	ExternalIVFCL4 bool
}

// ExtractDIFF opens, authenticates, and unwraps a single-partition DIFF
// container — an ExtData subfile or a Title DB file.
func ExtractDIFF(ctx context.Context, opts DIFFOptions) (DIFFResult, error) {
	if opts.InputPath == "" {
		return DIFFResult{}, errors.New("threedssave: input path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return DIFFResult{}, err
	}

	d := &diag.Collector{}
	p := threedscrypto.Stdlib{}

	emit(opts.OnProgress, ProgressEvent{Stage: StageOpening, Path: opts.InputPath, OccurredAt: time.Now()})
	raw, err := os.ReadFile(opts.InputPath)
	if err != nil {
		return DIFFResult{}, fmt.Errorf("threedssave: %w", err)
	}

	if opts.Decrypt {
		raw, err = applyDecrypt(p, opts.Verify, raw)
		if err != nil {
			return DIFFResult{}, fmt.Errorf("threedssave: %w", err)
		}
	}

	vctx, err := buildVerifyContext(p, opts.Verify, d)
	if err != nil {
		return DIFFResult{}, fmt.Errorf("threedssave: %w", err)
	}

	emit(opts.OnProgress, ProgressEvent{Stage: StageUnwrapping, Path: opts.InputPath, OccurredAt: time.Now()})
	res, err := container.OpenDIFF(raw, vctx, opts.ExpectedUniqueID)
	if err != nil {
		return DIFFResult{}, fmt.Errorf("threedssave: %w", err)
	}

	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, res.Image, 0o644); err != nil {
			return DIFFResult{}, fmt.Errorf("threedssave: %w", err)
		}
	}

	emit(opts.OnProgress, ProgressEvent{Stage: StageDone, Path: opts.InputPath, OccurredAt: time.Now()})

	return DIFFResult{
		Result:         newResult(d),
		UniqueID:       res.UniqueID,
		ExternalIVFCL4: res.ExternalIVFCL4,
	}, nil
}

// ExtDataOptions configures one ExtractExtData call.
type ExtDataOptions struct {
	ExtDataRoot string
	SaveID      uint64
	OutputPath  string // empty runs verification-only
	OnProgress  func(ProgressEvent)
}

// ExtDataResult is ExtractExtData's structured output.
type ExtDataResult struct {
	Result
	DirCount  int
	FileCount int
}

// ExtractExtData opens an ExtData archive's VSXE index and extracts every
// subfile it names.
func ExtractExtData(ctx context.Context, opts ExtDataOptions) (ExtDataResult, error) {
	if opts.ExtDataRoot == "" {
		return ExtDataResult{}, errors.New("threedssave: extdata root is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return ExtDataResult{}, err
	}

	d := &diag.Collector{}
	p := threedscrypto.Stdlib{}

	emit(opts.OnProgress, ProgressEvent{Stage: StageOpening, Path: opts.ExtDataRoot, OccurredAt: time.Now()})
	idx, err := extdata.OpenIndex(p, opts.ExtDataRoot, opts.SaveID, d)
	if err != nil {
		return ExtDataResult{}, fmt.Errorf("threedssave: %w", err)
	}

	emit(opts.OnProgress, ProgressEvent{
		Stage: StageExtracting, Path: opts.ExtDataRoot,
		DirCount: len(idx.DirList), FileCount: len(idx.FileList), OccurredAt: time.Now(),
	})
	if err := idx.ExtractAll(p, opts.ExtDataRoot, opts.SaveID, opts.OutputPath, d); err != nil {
		return ExtDataResult{}, fmt.Errorf("threedssave: %w", err)
	}

	emit(opts.OnProgress, ProgressEvent{Stage: StageDone, Path: opts.ExtDataRoot, OccurredAt: time.Now()})

	return ExtDataResult{
		Result:    newResult(d),
		DirCount:  len(idx.DirList),
		FileCount: len(idx.FileList),
	}, nil
}

// TicketOptions configures one ExtractTicket call.
type TicketOptions struct {
	InputPath  string
	OutputPath string // empty runs verification-only
	OnProgress func(ProgressEvent)
}

// TicketResult is ExtractTicket's structured output.
type TicketResult struct {
	Result
	DirCount  int
	FileCount int
}

const tickPreheaderSize = 0x10
const magicTICK = 0x4B434954

// ExtractTicket opens a BDRI ticket/title database image behind its
// 0x10-byte TICK preheader and extracts its Title-DB tree.
func ExtractTicket(ctx context.Context, opts TicketOptions) (TicketResult, error) {
	if opts.InputPath == "" {
		return TicketResult{}, errors.New("threedssave: input path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return TicketResult{}, err
	}

	d := &diag.Collector{}

	emit(opts.OnProgress, ProgressEvent{Stage: StageOpening, Path: opts.InputPath, OccurredAt: time.Now()})
	raw, err := os.ReadFile(opts.InputPath)
	if err != nil {
		return TicketResult{}, fmt.Errorf("threedssave: %w", err)
	}
	if len(raw) < tickPreheaderSize {
		return TicketResult{}, fmt.Errorf("threedssave: TICK file too short (%d bytes)", len(raw))
	}
	tick := binary.LittleEndian.Uint32(raw[0:4])
	if tick != magicTICK {
		return TicketResult{}, fmt.Errorf("threedssave: not a TICK format (magic 0x%08X)", tick)
	}
	d.Infof("pre header 0x%08X 0x%08X 0x%08X", binary.LittleEndian.Uint32(raw[4:8]), binary.LittleEndian.Uint32(raw[8:12]), binary.LittleEndian.Uint32(raw[12:16]))

	dbri := raw[tickPreheaderSize:]
	innerHeader, err := savefs.ParseBDRIHeader(dbri, d)
	if err != nil {
		return TicketResult{}, fmt.Errorf("threedssave: %w", err)
	}

	core, err := savefs.OpenCore(dbri, innerHeader.FilesystemHeaderOff, false, nil, d)
	if err != nil {
		return TicketResult{}, fmt.Errorf("threedssave: %w", err)
	}

	dirList, err := savefs.BuildTdbDirList(core.Header, core.DataRegion, core.FAT, d)
	if err != nil {
		return TicketResult{}, fmt.Errorf("threedssave: %w", err)
	}
	fileList, err := savefs.BuildTdbFileList(core.Header, core.DataRegion, core.FAT, d)
	if err != nil {
		return TicketResult{}, fmt.Errorf("threedssave: %w", err)
	}

	dirHash, err := savefs.ParseHashTable(dbri, core.Header.DirHashTableOff, core.Header.DirHashTableSize)
	if err != nil {
		return TicketResult{}, fmt.Errorf("threedssave: %w", err)
	}
	fileHash, err := savefs.ParseHashTable(dbri, core.Header.FileHashTableOff, core.Header.FileHashTableSize)
	if err != nil {
		return TicketResult{}, fmt.Errorf("threedssave: %w", err)
	}
	savefs.VerifyHashTable(dirHash, dirList, d)
	savefs.VerifyHashTable(fileHash, fileList, d)

	core.FAT.VisitFreeBlock()

	emit(opts.OnProgress, ProgressEvent{
		Stage: StageExtracting, Path: opts.InputPath,
		DirCount: len(dirList), FileCount: len(fileList), OccurredAt: time.Now(),
	})
	dumper := savefs.NewTdbSaveDumper(core.FAT, core.DataRegion, core.Header.BlockSize)
	if err := savefs.ExtractAll[*savefs.TdbDirEntry, *savefs.TdbFileEntry](dirList, fileList, opts.OutputPath, dumper); err != nil {
		return TicketResult{}, fmt.Errorf("threedssave: %w", err)
	}
	core.FAT.AllVisited()

	emit(opts.OnProgress, ProgressEvent{Stage: StageDone, Path: opts.InputPath, OccurredAt: time.Now()})

	return TicketResult{
		Result:    newResult(d),
		DirCount:  len(dirList),
		FileCount: len(fileList),
	}, nil
}
