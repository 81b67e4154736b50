package crypto

import (
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// KeySize is the length of the AES-256 data-encryption key.
const KeySize = 32

// MACHalfSize is the length of each half (K, R) of the Poly1305-AES MAC key.
const MACHalfSize = 16

// MasterKey is the repository-wide key triple used for every envelope
// after the repository is unlocked: the data-encryption key and the two
// halves of the Poly1305-AES MAC key.
type MasterKey struct {
	Enc  [KeySize]byte
	MACK [MACHalfSize]byte
	MACR [MACHalfSize]byte
}

// DeriveUserKey runs scrypt(password, salt, N, r, p) and splits the 64-byte
// output into (encryption key 32 | MAC-K 16 | MAC-R 16).
func DeriveUserKey(password string, salt []byte, N, r, p int) (*MasterKey, error) {
	out, err := scrypt.Key([]byte(password), salt, N, r, p, KeySize+2*MACHalfSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: scrypt: %w", err)
	}
	mk := &MasterKey{}
	copy(mk.Enc[:], out[0:32])
	copy(mk.MACK[:], out[32:48])
	copy(mk.MACR[:], out[48:64])
	return mk, nil
}
