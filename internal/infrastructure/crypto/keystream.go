// Package crypto adapts the AES, SHA-1, SHA3-256 and HMAC-SHA256 primitives
// to the stateful forms the circuit layer needs.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// BlockSize is the AES block and counter size.
const BlockSize = aes.BlockSize

// Keystream is a byte-granular AES counter-mode generator. The counter and the
// position inside the current keystream block survive between calls, so a
// stream can be encrypted in arbitrarily sized pieces.
type Keystream struct {
	block  cipher.Block
	ctr    [BlockSize]byte
	buf    [BlockSize]byte
	offset int
}

// NewKeystream schedules key (16 or 32 bytes) and starts the counter at iv.
func NewKeystream(key, iv []byte) (*Keystream, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("keystream: invalid key length %d", len(key))
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("keystream: invalid iv length %d", len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	ks := &Keystream{block: block, offset: BlockSize}
	copy(ks.ctr[:], iv)
	return ks, nil
}

// XORKeyStream XORs src with the keystream into dst. dst and src may overlap
// entirely.
func (ks *Keystream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("keystream: output smaller than input")
	}
	for i := range src {
		if ks.offset == BlockSize {
			ks.refill()
		}
		dst[i] = src[i] ^ ks.buf[ks.offset]
		ks.offset++
	}
}

// Crypt encrypts or decrypts buf in place.
func (ks *Keystream) Crypt(buf []byte) { ks.XORKeyStream(buf, buf) }

// Skip advances the keystream by n bytes through the regular crypt path.
func (ks *Keystream) Skip(n int) {
	var scratch [256]byte
	for n > 0 {
		step := min(n, len(scratch))
		ks.Crypt(scratch[:step])
		n -= step
	}
}

func (ks *Keystream) refill() {
	ks.block.Encrypt(ks.buf[:], ks.ctr[:])
	for i := BlockSize - 1; i >= 0; i-- {
		ks.ctr[i]++
		if ks.ctr[i] != 0 {
			break
		}
	}
	ks.offset = 0
}

// CryptOnce runs a fresh keystream over buf in place and discards it.
func CryptOnce(key, iv, buf []byte) error {
	ks, err := NewKeystream(key, iv)
	if err != nil {
		return err
	}
	ks.Crypt(buf)
	return nil
}
