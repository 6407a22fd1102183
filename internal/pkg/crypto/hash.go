package crypto

import (
	"crypto/md5"
	"encoding/hex"
)

// HashString returns the full 128-bit MD5 content hash of s, hex-encoded.
// Source hashing here is a cache key, not a security boundary, so MD5's
// collision weakness against an adversarial author is out of scope.
func HashString(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashBytes is HashString for raw bytes.
func HashBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
