// Package threedscrypto supplies the cryptographic primitives that the
// container and key-engine layers treat as injected capabilities:
// SHA-256, AES-CMAC, and AES-CTR. Their contracts are fixed by the format;
// this package's only job is to satisfy them, not to innovate on them.
//
// SHA-256 and AES-CTR come straight from the standard library. AES-CMAC
// (NIST SP 800-38B) has no standalone package in this pack's third-party
// surface, so it is built directly on crypto/aes/crypto/cipher — see
// DESIGN.md for why that is the stdlib exception rather than an omission.
package threedscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
)

// Primitives is the capability surface the container layer depends on. A
// caller can substitute a stub implementation (e.g. one returning
// precomputed digests) for unit testing without touching the core logic.
type Primitives interface {
	SHA256(data []byte) [32]byte
	AESCMAC(key [16]byte, msg []byte) ([16]byte, error)
	AESCTRDecrypt(key [16]byte, counter [16]byte, data []byte) ([]byte, error)
}

// Stdlib is the production Primitives implementation.
type Stdlib struct{}

func (Stdlib) SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func (Stdlib) AESCMAC(key [16]byte, msg []byte) ([16]byte, error) {
	return aesCMAC(key, msg)
}

func (Stdlib) AESCTRDecrypt(key [16]byte, counter [16]byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("threedscrypto: aes cipher: %w", err)
	}
	out := make([]byte, len(data))
	stream := cipher.NewCTR(block, counter[:])
	stream.XORKeyStream(out, data)
	return out, nil
}

const cmacRb = 0x87

func aesCMAC(key [16]byte, msg []byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, fmt.Errorf("threedscrypto: aes cipher: %w", err)
	}

	var zero, l [16]byte
	block.Encrypt(l[:], zero[:])

	k1 := shiftLeft1(l)
	if l[0]&0x80 != 0 {
		k1[15] ^= cmacRb
	}
	k2 := shiftLeft1(k1)
	if k1[0]&0x80 != 0 {
		k2[15] ^= cmacRb
	}

	n := len(msg)
	var lastBlock [16]byte
	var fullBlocks int
	var complete bool

	if n == 0 {
		fullBlocks = 0
		complete = false
	} else if n%16 == 0 {
		fullBlocks = n/16 - 1
		complete = true
	} else {
		fullBlocks = n / 16
		complete = false
	}

	copy(lastBlock[:], msg[fullBlocks*16:])
	if complete {
		xorInto(&lastBlock, k1)
	} else {
		if n > 0 {
			lastBlock[n-fullBlocks*16] = 0x80
		} else {
			lastBlock[0] = 0x80
		}
		xorInto(&lastBlock, k2)
	}

	var x [16]byte
	for i := 0; i < fullBlocks; i++ {
		var y [16]byte
		copy(y[:], msg[i*16:(i+1)*16])
		xorInto(&y, x)
		block.Encrypt(x[:], y[:])
	}

	var y [16]byte
	xorInto(&y, x)
	xorInto(&y, lastBlock)
	var tag [16]byte
	block.Encrypt(tag[:], y[:])
	return tag, nil
}

func shiftLeft1(in [16]byte) [16]byte {
	var out [16]byte
	var carry byte
	for i := 15; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = (in[i] >> 7) & 1
	}
	return out
}

func xorInto(dst *[16]byte, src [16]byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
