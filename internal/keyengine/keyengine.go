// Package keyengine reproduces the fixed scramble of three 128-bit secrets
// that derives the SD CMAC and SD decryption keys. The secrets themselves
// come from the caller; this package implements only the scramble algebra.
package keyengine

import "math/big"

var (
	two128  = new(big.Int).Lsh(big.NewInt(1), 128)
	mask128 = new(big.Int).Sub(two128, big.NewInt(1))
)

// rol128 rotates a 128-bit value left by r bits.
func rol128(val *big.Int, r int) *big.Int {
	r = r % 128
	v := new(big.Int).And(val, mask128)
	left := new(big.Int).Lsh(v, uint(r))
	left.And(left, mask128)
	right := new(big.Int).Rsh(v, uint(128-r))
	return new(big.Int).Or(left, right)
}

// ScrambleKey computes rol128((rol128(x,2) XOR y) + c mod 2^128, 87),
// rendered as 16 big-endian bytes.
func ScrambleKey(x, y, c *big.Int) [16]byte {
	step1 := rol128(x, 2)
	step2 := new(big.Int).Xor(step1, new(big.Int).And(y, mask128))
	step3 := new(big.Int).Add(step2, new(big.Int).And(c, mask128))
	step3.And(step3, mask128)
	result := rol128(step3, 87)

	var out [16]byte
	result.FillBytes(out[:])
	return out
}

// Secrets holds the three 128-bit values the 3DS keyslot engine would
// otherwise derive from console-unique data. Any field left nil means "not
// available"; callers degrade to "skip verification" rather than failing.
type Secrets struct {
	Key0x30X   *big.Int // keyslot 0x30 X-value, used for the SD NAND/CMAC key
	Key0x34X   *big.Int // keyslot 0x34 X-value, used for the SD decrypt key
	KeyMovable *big.Int // Y-value derived from movable.sed
	KeyConst   *big.Int // the fixed scramble constant c
}

// Engine derives the two keys this tool needs from a Secrets bundle.
type Engine struct {
	secrets Secrets
}

func New(secrets Secrets) *Engine {
	return &Engine{secrets: secrets}
}

// KeySdNandCmac returns the key used for DISA/DIFF outer CMAC verification,
// or (zero, false) if the required secrets are not available.
func (e *Engine) KeySdNandCmac() ([16]byte, bool) {
	if e.secrets.Key0x30X == nil || e.secrets.KeyMovable == nil || e.secrets.KeyConst == nil {
		return [16]byte{}, false
	}
	return ScrambleKey(e.secrets.Key0x30X, e.secrets.KeyMovable, e.secrets.KeyConst), true
}

// KeySdDecrypt returns the key used for whole-container SD AES-CTR
// decryption, or (zero, false) if the required secrets are not available.
func (e *Engine) KeySdDecrypt() ([16]byte, bool) {
	if e.secrets.Key0x34X == nil || e.secrets.KeyMovable == nil || e.secrets.KeyConst == nil {
		return [16]byte{}, false
	}
	return ScrambleKey(e.secrets.Key0x34X, e.secrets.KeyMovable, e.secrets.KeyConst), true
}
