package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// EncryptGCM and DecryptGCM are AES-256-GCM helpers used only by the
// shareable-link encoder, an out-of-core collaborator not exercised by
// the repository read path. They are provided here because the link
// encoder needs exactly one authenticated-encryption primitive and GCM is
// the standard choice for a single-shot, nonce-per-message use case —
// unlike the envelope format above, nothing about this path is bit-exact
// with an existing on-disk format, so the standard library's GCM is used
// directly rather than composed from smaller primitives.
func EncryptGCM(key [32]byte, nonce []byte, plaintext, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: GCM nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce))
	}
	return gcm.Seal(nil, nonce, plaintext, additionalData), nil
}

func DecryptGCM(key [32]byte, nonce []byte, ciphertext, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: GCM nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce))
	}
	return gcm.Open(nil, nonce, ciphertext, additionalData)
}
