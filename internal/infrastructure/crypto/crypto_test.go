package crypto_test

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	mrand "math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"ikedadada/go-tor4iot/internal/infrastructure/crypto"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestKeystream_InvalidParams(t *testing.T) {
	_, err := crypto.NewKeystream(make([]byte, 24), make([]byte, 16))
	require.Error(t, err)
	_, err = crypto.NewKeystream(make([]byte, 16), make([]byte, 8))
	require.Error(t, err)
}

func TestKeystream_MatchesCTR(t *testing.T) {
	tests := []struct {
		name   string
		keyLen int
		iv     []byte
	}{
		{"aes128 zero iv", 16, make([]byte, 16)},
		{"aes256 zero iv", 32, make([]byte, 16)},
		{"counter rollover", 16, bytes.Repeat([]byte{0xFF}, 16)},
		{"low byte carry", 16, append(make([]byte, 14), 0x00, 0xFE)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := randBytes(t, tt.keyLen)
			plain := randBytes(t, 1000)

			block, err := aes.NewCipher(key)
			require.NoError(t, err)
			want := make([]byte, len(plain))
			cipher.NewCTR(block, tt.iv).XORKeyStream(want, plain)

			ks, err := crypto.NewKeystream(key, tt.iv)
			require.NoError(t, err)
			got := make([]byte, len(plain))
			ks.XORKeyStream(got, plain)
			require.Equal(t, want, got)
		})
	}
}

func TestKeystream_ChunkedRoundTrip(t *testing.T) {
	rng := mrand.New(mrand.NewSource(1))
	for n := 1; n <= 509; n += 37 {
		key := randBytes(t, 16)
		iv := randBytes(t, 16)
		plain := randBytes(t, n)

		enc, err := crypto.NewKeystream(key, iv)
		require.NoError(t, err)
		dec, err := crypto.NewKeystream(key, iv)
		require.NoError(t, err)

		buf := append([]byte(nil), plain...)
		for off := 0; off < n; {
			step := 1 + rng.Intn(n-off)
			enc.Crypt(buf[off : off+step])
			off += step
		}
		require.NotEqual(t, plain, buf)
		for off := 0; off < n; {
			step := 1 + rng.Intn(n-off)
			dec.Crypt(buf[off : off+step])
			off += step
		}
		require.Equal(t, plain, buf, "length %d", n)
	}
}

func TestKeystream_SkipEquivalence(t *testing.T) {
	key := randBytes(t, 16)
	iv := make([]byte, 16)
	for _, skip := range []int{0, 1, 15, 16, 17, 509, 1018, 1000} {
		full, _ := crypto.NewKeystream(key, iv)
		prefix := make([]byte, skip+300)
		full.Crypt(prefix)

		resumed, _ := crypto.NewKeystream(key, iv)
		resumed.Skip(skip)
		tail := make([]byte, 300)
		resumed.Crypt(tail)

		require.Equal(t, prefix[skip:], tail, "skip %d", skip)
	}
}

func TestCryptOnce(t *testing.T) {
	key := randBytes(t, 16)
	iv := randBytes(t, 16)
	plain := randBytes(t, 421)
	buf := append([]byte(nil), plain...)
	require.NoError(t, crypto.CryptOnce(key, iv, buf))
	require.NotEqual(t, plain, buf)
	require.NoError(t, crypto.CryptOnce(key, iv, buf))
	require.Equal(t, plain, buf)
}

func TestDigest_IntermediateIsNonDestructive(t *testing.T) {
	tests := []struct {
		kind crypto.DigestKind
		ref  func() interface {
			Write([]byte) (int, error)
			Sum([]byte) []byte
		}
	}{
		{crypto.DigestSHA1, func() interface {
			Write([]byte) (int, error)
			Sum([]byte) []byte
		} {
			return sha1.New()
		}},
		{crypto.DigestSHA3, func() interface {
			Write([]byte) (int, error)
			Sum([]byte) []byte
		} {
			return sha3.New256()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			d, err := crypto.NewDigest(tt.kind)
			require.NoError(t, err)
			require.NoError(t, d.Update([]byte("seed")))

			first, err := d.IntermediateDigest([]byte("cell-1"), 4)
			require.NoError(t, err)
			second, err := d.IntermediateDigest([]byte("cell-2"), 4)
			require.NoError(t, err)
			require.NotEqual(t, first, second)

			ref := tt.ref()
			ref.Write([]byte("seedcell-1"))
			require.Equal(t, ref.Sum(nil)[:4], first)
			ref.Write([]byte("cell-2"))
			require.Equal(t, ref.Sum(nil)[:4], second)
		})
	}
}

func TestDigest_Undefined(t *testing.T) {
	var d crypto.Digest
	require.ErrorIs(t, d.Update([]byte("x")), crypto.ErrUndefinedDigest)
	_, err := d.IntermediateDigest([]byte("x"), 4)
	require.ErrorIs(t, err, crypto.ErrUndefinedDigest)
	_, err = crypto.NewDigest(crypto.DigestUndefined)
	require.ErrorIs(t, err, crypto.ErrUndefinedDigest)
}

func TestDigest_OutLenTooLong(t *testing.T) {
	d, err := crypto.NewDigest(crypto.DigestSHA1)
	require.NoError(t, err)
	_, err = d.IntermediateDigest(nil, 21)
	require.Error(t, err)
}

func TestHMACSHA256_Verify(t *testing.T) {
	key := randBytes(t, 16)
	msg := randBytes(t, 405)
	tag := crypto.HMACSHA256(key, msg)
	require.Len(t, tag, crypto.MACSize)
	require.True(t, crypto.VerifyHMACSHA256(key, msg, tag))

	for bit := 0; bit < 8*len(tag); bit += 29 {
		bad := append([]byte(nil), tag...)
		bad[bit/8] ^= 1 << (bit % 8)
		require.False(t, crypto.VerifyHMACSHA256(key, msg, bad), "bit %d", bit)
	}
}
