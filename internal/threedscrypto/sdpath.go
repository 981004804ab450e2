package threedscrypto

import "unicode/utf16"

// SDCounter derives the initial AES-CTR counter for whole-container SD
// decryption from the container's canonical SD path: UTF-16LE
// encode path+NUL, SHA-256 it, split into two 16-byte halves, XOR them
// together, and read the 16-byte result as a big-endian 128-bit counter.
func SDCounter(p Primitives, path string) [16]byte {
	units := utf16.Encode([]rune(path + "\x00"))
	buf := make([]byte, 0, len(units)*2)
	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}
	sum := p.SHA256(buf)

	var counter [16]byte
	for i := 0; i < 16; i++ {
		counter[i] = sum[i] ^ sum[i+16]
	}
	return counter
}
