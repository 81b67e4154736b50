// Package crypto implements the repository's authenticated-encryption
// envelope: scrypt key derivation, AES-256-CTR, and the Poly1305-AES MAC
// used to authenticate every encrypted object. AES-CTR mode is taken
// directly from the standard library rather than reimplemented — Go's
// crypto/cipher.NewCTR already treats the IV as the initial counter block
// and increments it as a big-endian 128-bit integer, which is exactly what
// the envelope format requires, so wrapping it ourselves would only
// reintroduce a primitive the standard library already gets right.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/poly1305"
)

// ivSize is the length of the AES-CTR initial counter block, reused as the
// Poly1305-AES nonce.
const ivSize = 16

// tagSize is the length of a Poly1305 authentication tag.
const tagSize = 16

// minEnvelopeSize is the smallest a well-formed envelope can be: an IV and
// a tag with zero ciphertext bytes between them.
const minEnvelopeSize = ivSize + tagSize

// errShortEnvelope and errAuthFailed are returned by Open; callers in this
// module map them onto vaulterrors.AuthenticationError rather than
// exposing them directly, per the spec's policy against distinguishing
// integrity failures from decode failures.
var (
	errShortEnvelope = fmt.Errorf("crypto: envelope shorter than %d bytes", minEnvelopeSize)
	errAuthFailed    = fmt.Errorf("crypto: MAC verification failed")
)

// IsAuthError reports whether err is one of this package's envelope
// authentication failures (short envelope or bad tag).
func IsAuthError(err error) bool {
	return err == errShortEnvelope || err == errAuthFailed
}

// poly1305AES computes the Poly1305-AES tag of message under (macK, macR)
// with the given 16-byte nonce, per the repository's variant: s is derived
// by AES-ECB-encrypting the nonce under macK (a single-block AES encrypt,
// which is exactly what ECB mode is for one block), and the clamped
// polynomial evaluation over macR is delegated to
// golang.org/x/crypto/poly1305, which performs the identical clamp on the
// low half of its key argument — the nonce-derived s is substituted into
// the high half in place of the static key the package was designed for.
func poly1305AES(macK, macR [MACHalfSize]byte, nonce [ivSize]byte, message []byte) [tagSize]byte {
	block, err := aes.NewCipher(macK[:])
	if err != nil {
		// macK is always exactly 16 bytes; aes.NewCipher only fails on key
		// length, which cannot happen here.
		panic(err)
	}
	var s [16]byte
	block.Encrypt(s[:], nonce[:])

	var key [32]byte
	copy(key[0:16], macR[:])
	copy(key[16:32], s[:])

	var tag [16]byte
	poly1305.Sum(&tag, message, &key)
	return tag
}

// Open verifies and decrypts an envelope of the form
// IV(16) || ciphertext(N) || tag(16) under mk. MAC verification runs over
// ciphertext only (never the IV) using constant-time comparison, and
// happens before any decryption is attempted.
func Open(mk *MasterKey, envelope []byte) ([]byte, error) {
	if len(envelope) < minEnvelopeSize {
		return nil, errShortEnvelope
	}
	var iv [ivSize]byte
	copy(iv[:], envelope[:ivSize])
	ciphertext := envelope[ivSize : len(envelope)-tagSize]
	gotTag := envelope[len(envelope)-tagSize:]

	wantTag := poly1305AES(mk.MACK, mk.MACR, iv, ciphertext)
	if subtle.ConstantTimeCompare(wantTag[:], gotTag) != 1 {
		return nil, errAuthFailed
	}

	block, err := aes.NewCipher(mk.Enc[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	stream := cipher.NewCTR(block, iv[:])
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// Seal encrypts plaintext and produces a fresh envelope under mk with the
// given 16-byte IV (the caller's nonce; this package never generates one
// since the engine is read-only — fixture builders and tests supply it
// explicitly).
func Seal(mk *MasterKey, iv [16]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(mk.Enc[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	stream := cipher.NewCTR(block, iv[:])
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	tag := poly1305AES(mk.MACK, mk.MACR, iv, ciphertext)

	out := make([]byte, 0, ivSize+len(ciphertext)+tagSize)
	out = append(out, iv[:]...)
	out = append(out, ciphertext...)
	out = append(out, tag[:]...)
	return out, nil
}
