package container

import (
	"encoding/binary"
	"fmt"

	"github.com/s0up4200/go-3dssave/internal/diag"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
)

const (
	magicDIFF  = 0x46464944
	verDIFF    = 0x00030000
	headerOff  = 0x100
	headerSize = 0x100
)

// VerifyContext carries the injected crypto capability and the optional
// verification parameters a caller may supply. A nil CmacKey or a
// SaveKindUnknown SaveKind means "skip the CMAC check with an Info notice":
// never silent success, never a hard failure.
type VerifyContext struct {
	Primitives threedscrypto.Primitives
	CmacKey    *[16]byte
	SaveKind   threedscrypto.SaveKind
	SaveID     uint64
	SubID      uint64
	HasSubID   bool
	Diag       *diag.Collector
}

// DIFFResult is the outcome of unwrapping one DIFF container.
type DIFFResult struct {
	Image          []byte
	UniqueID       uint64
	ExternalIVFCL4 bool
}

type diffHeader struct {
	secPartTableOff uint64
	priPartTableOff uint64
	partTableSize   uint64
	partOff         uint64
	partSize        uint64
	activeTable     uint32
	tableHash       [32]byte
	uniqueID        uint64
}

func parseDIFFHeader(header []byte) (diffHeader, error) {
	var h diffHeader
	if len(header) < headerSize {
		return h, fmt.Errorf("container: DIFF header too short (%d bytes)", len(header))
	}
	magic := binary.LittleEndian.Uint32(header[0x00:])
	ver := binary.LittleEndian.Uint32(header[0x04:])
	if magic != magicDIFF {
		return h, fmt.Errorf("container: not a DIFF format (magic 0x%08X)", magic)
	}
	if ver != verDIFF {
		return h, fmt.Errorf("container: wrong DIFF version 0x%08X", ver)
	}

	h.secPartTableOff = binary.LittleEndian.Uint64(header[0x08:])
	h.priPartTableOff = binary.LittleEndian.Uint64(header[0x10:])
	h.partTableSize = binary.LittleEndian.Uint64(header[0x18:])
	h.partOff = binary.LittleEndian.Uint64(header[0x20:])
	h.partSize = binary.LittleEndian.Uint64(header[0x28:])
	h.activeTable = binary.LittleEndian.Uint32(header[0x30:])
	copy(h.tableHash[:], header[0x34:0x54])
	h.uniqueID = binary.LittleEndian.Uint64(header[0x54:])
	return h, nil
}

// OpenDIFF validates, authenticates, and unwraps a single-partition DIFF
// container.
func OpenDIFF(data []byte, ctx VerifyContext, expectedUniqueID *uint64) (DIFFResult, error) {
	var res DIFFResult
	if len(data) < headerOff+headerSize {
		return res, fmt.Errorf("container: DIFF file too short (%d bytes)", len(data))
	}

	cmacBytes := data[0:0x10]
	header := data[headerOff : headerOff+headerSize]

	h, err := parseDIFFHeader(header)
	if err != nil {
		return res, err
	}
	res.UniqueID = h.uniqueID

	if err := verifyOuterCMAC(ctx, header, cmacBytes); err != nil {
		return res, err
	}

	var partTableOff uint64
	switch h.activeTable {
	case 0:
		partTableOff = h.priPartTableOff
	case 1:
		partTableOff = h.secPartTableOff
	default:
		return res, fmt.Errorf("container: wrong active table ID %d", h.activeTable)
	}
	if uint64(len(data)) < partTableOff+h.partTableSize {
		return res, fmt.Errorf("container: partition table out of bounds")
	}
	partTable := data[partTableOff : partTableOff+h.partTableSize]
	gotHash := ctx.Primitives.SHA256(partTable)
	if gotHash != h.tableHash {
		return res, fmt.Errorf("container: partition table hash mismatch")
	}

	desc, err := ParseDIFI(partTable, ctx.Diag)
	if err != nil {
		return res, err
	}

	if uint64(len(data)) < h.partOff+h.partSize {
		return res, fmt.Errorf("container: partition out of bounds")
	}
	part := data[h.partOff : h.partOff+h.partSize]

	image, externalL4, err := UnwrapPartition(ctx.Primitives, desc, part, ctx.Diag)
	if err != nil {
		return res, err
	}
	res.Image = image
	res.ExternalIVFCL4 = externalL4

	if expectedUniqueID != nil && *expectedUniqueID != h.uniqueID && ctx.Diag != nil {
		ctx.Diag.Warnf("unique ID mismatch (expected 0x%016X, got 0x%016X)", *expectedUniqueID, h.uniqueID)
	}

	return res, nil
}

// verifyOuterCMAC checks the outer AES-CMAC authenticator when the caller
// supplied enough context to compute it, degrading to an Info notice
// otherwise.
func verifyOuterCMAC(ctx VerifyContext, header []byte, cmacBytes []byte) error {
	if ctx.CmacKey == nil {
		if ctx.Diag != nil {
			ctx.Diag.Infof("no CMAC key provided, skipping CMAC verification")
		}
		return nil
	}
	if ctx.SaveKind == threedscrypto.SaveKindUnknown {
		if ctx.Diag != nil {
			ctx.Diag.Infof("no save type specified, skipping CMAC verification")
		}
		return nil
	}

	ok, err := threedscrypto.VerifyCMAC(ctx.Primitives, *ctx.CmacKey, ctx.SaveKind, ctx.SaveID, ctx.SubID, ctx.HasSubID, header, [16]byte(cmacBytes[:16]))
	if err != nil {
		if ctx.Diag != nil {
			ctx.Diag.Infof("%v, skipping CMAC verification", err)
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("container: CMAC mismatch")
	}
	if ctx.Diag != nil {
		ctx.Diag.Infof("CMAC verified")
	}
	return nil
}
