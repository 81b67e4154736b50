package crypto

import (
	"github.com/minio/sha256-simd"

	"github.com/coldvault/coldvault/rid"
)

// HashID computes the content address of plaintext: a drop-in for
// crypto/sha256 with AVX2/SHA-NI acceleration, used by the pack
// accessor's optional post-decrypt integrity check.
func HashID(plaintext []byte) rid.ID {
	return rid.ID(sha256.Sum256(plaintext))
}

// VerifyID reports whether plaintext's SHA-256 equals id.
func VerifyID(id rid.ID, plaintext []byte) bool {
	return HashID(plaintext) == id
}
