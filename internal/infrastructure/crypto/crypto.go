package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// MACSize is the length of an HMAC-SHA256 tag.
const MACSize = sha256.Size

// HMACSHA256 computes the HMAC-SHA256 of msg under key.
func HMACSHA256(key, msg []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(msg)
	return m.Sum(nil)
}

// VerifyHMACSHA256 reports whether tag authenticates msg under key. The
// comparison runs in constant time.
func VerifyHMACSHA256(key, msg, tag []byte) bool {
	return hmac.Equal(HMACSHA256(key, msg), tag)
}
