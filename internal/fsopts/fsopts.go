// Package fsopts holds the library-facing verification options shared by
// the public facade and the CLI commands: which save kind and ID to use
// for outer-CMAC verification, and which key secrets are available to
// derive it.
package fsopts

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/s0up4200/go-3dssave/internal/keyengine"
	"github.com/s0up4200/go-3dssave/internal/threedscrypto"
)

// VerifyOptions are the caller-supplied parameters controlling outer-CMAC
// verification and ExtData/TitleDB digest-block selection. Every field is
// optional; an absent field degrades the corresponding check to an Info
// notice rather than a failure.
type VerifyOptions struct {
	SaveKind  string // "nand", "sd", "card", "extdata", "titledb", or "" for unknown
	SaveID    uint64
	HasSaveID bool
	SubID     uint64
	HasSubID  bool

	// Secrets, hex-encoded 128-bit values as produced by the platform's key
	// derivation; this module never derives them itself. Empty means "not
	// available".
	Key0x30XHex   string
	Key0x34XHex   string
	KeyMovableHex string
	KeyConstHex   string
}

// ParseSaveKind maps a CLI-facing save-type string to the internal enum.
func ParseSaveKind(s string) (threedscrypto.SaveKind, error) {
	switch s {
	case "":
		return threedscrypto.SaveKindUnknown, nil
	case "nand":
		return threedscrypto.SaveKindNAND, nil
	case "sd":
		return threedscrypto.SaveKindSD, nil
	case "card":
		return threedscrypto.SaveKindCard, nil
	case "extdata":
		return threedscrypto.SaveKindExtData, nil
	case "titledb":
		return threedscrypto.SaveKindTitleDB, nil
	default:
		return threedscrypto.SaveKindUnknown, fmt.Errorf("fsopts: unknown save kind %q", s)
	}
}

func parseHexSecret(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("fsopts: invalid key hex: %w", err)
	}
	if len(raw) != 16 {
		return nil, fmt.Errorf("fsopts: key must be 16 bytes, got %d", len(raw))
	}
	return new(big.Int).SetBytes(raw), nil
}

// BuildSecrets decodes the hex-encoded key material into the key engine's
// Secrets, used to derive the CMAC and SD-decrypt keys via the key-scramble
// algorithm. Any field left as "" in VerifyOptions yields a nil
// secret, which keyengine.Engine treats as "skip verification".
func (o VerifyOptions) BuildSecrets() (keyengine.Secrets, error) {
	var s keyengine.Secrets
	var err error
	if s.Key0x30X, err = parseHexSecret(o.Key0x30XHex); err != nil {
		return s, err
	}
	if s.Key0x34X, err = parseHexSecret(o.Key0x34XHex); err != nil {
		return s, err
	}
	if s.KeyMovable, err = parseHexSecret(o.KeyMovableHex); err != nil {
		return s, err
	}
	if s.KeyConst, err = parseHexSecret(o.KeyConstHex); err != nil {
		return s, err
	}
	return s, nil
}
