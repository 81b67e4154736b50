package crypto_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	vcrypto "github.com/coldvault/coldvault/crypto"
)

func testMasterKey() *vcrypto.MasterKey {
	mk := &vcrypto.MasterKey{}
	for i := range mk.Enc {
		mk.Enc[i] = byte(i + 1)
	}
	for i := range mk.MACK {
		mk.MACK[i] = byte(i + 100)
	}
	for i := range mk.MACR {
		mk.MACR[i] = byte(i + 200)
	}
	return mk
}

func testIV() [16]byte {
	var iv [16]byte
	for i := range iv {
		iv[i] = byte(i)
	}
	return iv
}

func TestEnvelopeRoundTrip(t *testing.T) {
	mk := testMasterKey()
	iv := testIV()
	plaintext := []byte("hello world, this is repository plaintext")

	envelope, err := vcrypto.Seal(mk, iv, plaintext)
	require.NoError(t, err)
	require.True(t, len(envelope) >= 32)

	got, err := vcrypto.Open(mk, envelope)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestEnvelopeEmptyPlaintext(t *testing.T) {
	mk := testMasterKey()
	iv := testIV()

	envelope, err := vcrypto.Seal(mk, iv, nil)
	require.NoError(t, err)
	require.Len(t, envelope, 32) // IV(16) + ciphertext(0) + tag(16)

	got, err := vcrypto.Open(mk, envelope)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestEnvelopeShortFails(t *testing.T) {
	mk := testMasterKey()
	_, err := vcrypto.Open(mk, make([]byte, 31))
	require.Error(t, err)
}

func TestEnvelopeBitFlipCiphertextFails(t *testing.T) {
	mk := testMasterKey()
	iv := testIV()
	envelope, err := vcrypto.Seal(mk, iv, []byte("some plaintext bytes"))
	require.NoError(t, err)

	flipped := bytes.Clone(envelope)
	flipped[20] ^= 0x01 // inside the ciphertext region

	_, err = vcrypto.Open(mk, flipped)
	require.Error(t, err)
}

func TestEnvelopeBitFlipTagFails(t *testing.T) {
	mk := testMasterKey()
	iv := testIV()
	envelope, err := vcrypto.Seal(mk, iv, []byte("some plaintext bytes"))
	require.NoError(t, err)

	flipped := bytes.Clone(envelope)
	flipped[len(flipped)-1] ^= 0x01 // inside the tag

	_, err = vcrypto.Open(mk, flipped)
	require.Error(t, err)
}

func TestEnvelopeBitFlipIVNeverSilentlyAccepts(t *testing.T) {
	mk := testMasterKey()
	iv := testIV()
	plaintext := []byte("some plaintext bytes")
	envelope, err := vcrypto.Seal(mk, iv, plaintext)
	require.NoError(t, err)

	flipped := bytes.Clone(envelope)
	flipped[0] ^= 0x01 // inside the IV

	got, err := vcrypto.Open(mk, flipped)
	if err == nil {
		// If the MAC is insensitive to this particular bit (it isn't, since
		// s is derived from the IV, but the property under test is that a
		// silent accept of a corrupted IV never yields the original
		// plaintext), the decoded plaintext must differ.
		require.NotEqual(t, plaintext, got)
	}
}

func TestDeriveUserKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0xAA}, 32)
	mk1, err := vcrypto.DeriveUserKey("correct horse", salt, 16384, 8, 1)
	require.NoError(t, err)
	mk2, err := vcrypto.DeriveUserKey("correct horse", salt, 16384, 8, 1)
	require.NoError(t, err)
	require.Equal(t, mk1, mk2)

	mk3, err := vcrypto.DeriveUserKey("battery staple", salt, 16384, 8, 1)
	require.NoError(t, err)
	require.NotEqual(t, mk1, mk3)
}
