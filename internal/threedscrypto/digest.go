package threedscrypto

import (
	"encoding/binary"
	"fmt"
)

// SaveKind distinguishes the outer-CMAC digest-block recipe and, for DISA,
// which physical medium the save lives on. SaveKind "card" is accepted as a
// save type that always skips CMAC verification (no digest-block recipe is
// known for it), rather than rejected as an invalid flag value.
type SaveKind int

const (
	SaveKindUnknown SaveKind = iota
	SaveKindNAND
	SaveKindSD
	SaveKindCard
	SaveKindExtData
	SaveKindTitleDB
)

func (k SaveKind) String() string {
	switch k {
	case SaveKindNAND:
		return "nand"
	case SaveKindSD:
		return "sd"
	case SaveKindCard:
		return "card"
	case SaveKindExtData:
		return "extdata"
	case SaveKindTitleDB:
		return "titledb"
	default:
		return "unknown"
	}
}

// DigestBlock builds the block that gets SHA-256'd and then AES-CMAC'd to
// produce the outer authenticator compared against a container's first 16
// bytes. header must be the raw 0x100-byte DISA/DIFF header. subID is only
// meaningful for SaveKindExtData.
func DigestBlock(p Primitives, kind SaveKind, saveID uint64, subID uint64, hasSubID bool, header []byte) ([]byte, error) {
	switch kind {
	case SaveKindNAND:
		block := make([]byte, 0, 8+8+len(header))
		block = append(block, "CTR-SYS0"...)
		block = binary.LittleEndian.AppendUint64(block, saveID)
		block = append(block, header...)
		return block, nil

	case SaveKindSD:
		sav0 := make([]byte, 0, 8+len(header))
		sav0 = append(sav0, "CTR-SAV0"...)
		sav0 = append(sav0, header...)
		sum := p.SHA256(sav0)
		block := make([]byte, 0, 8+8+32)
		block = append(block, "CTR-SIGN"...)
		block = binary.LittleEndian.AppendUint64(block, saveID)
		block = append(block, sum[:]...)
		return block, nil

	case SaveKindExtData:
		quotaFlag := uint32(0)
		sub := uint64(0)
		if hasSubID {
			quotaFlag = 1
			sub = subID
		}
		block := make([]byte, 0, 8+8+4+8+len(header))
		block = append(block, "CTR-EXT0"...)
		block = binary.LittleEndian.AppendUint64(block, saveID)
		block = binary.LittleEndian.AppendUint32(block, quotaFlag)
		block = binary.LittleEndian.AppendUint64(block, sub)
		block = append(block, header...)
		return block, nil

	case SaveKindTitleDB:
		block := make([]byte, 0, 8+4+len(header))
		block = append(block, "CTR-9DB0"...)
		block = binary.LittleEndian.AppendUint32(block, uint32(saveID))
		block = append(block, header...)
		return block, nil

	default:
		return nil, fmt.Errorf("threedscrypto: no digest-block recipe for save kind %s", kind)
	}
}

// VerifyCMAC computes the digest block for kind, hashes it, and compares the
// resulting CMAC against expected (the container's first 16 bytes).
func VerifyCMAC(p Primitives, key [16]byte, kind SaveKind, saveID, subID uint64, hasSubID bool, header []byte, expected [16]byte) (bool, error) {
	block, err := DigestBlock(p, kind, saveID, subID, hasSubID, header)
	if err != nil {
		return false, err
	}
	digest := p.SHA256(block)
	tag, err := p.AESCMAC(key, digest[:])
	if err != nil {
		return false, err
	}
	return tag == expected, nil
}
