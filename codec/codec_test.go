package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldvault/coldvault/codec"
)

func TestDecodeUnpackedVersion1IsRawJSON(t *testing.T) {
	body := []byte(`{"a":1}`)
	out, err := codec.DecodeUnpacked(1, body)
	require.NoError(t, err)
	require.Equal(t, body, out)
}

func TestDecodeUnpackedVersion2LegacyJSONObject(t *testing.T) {
	body := []byte(`{"a":1}`)
	out, err := codec.DecodeUnpacked(2, body)
	require.NoError(t, err)
	require.Equal(t, body, out)
}

func TestDecodeUnpackedVersion2LegacyJSONArray(t *testing.T) {
	body := []byte(`[1,2,3]`)
	out, err := codec.DecodeUnpacked(2, body)
	require.NoError(t, err)
	require.Equal(t, body, out)
}

func TestDecodeUnpackedVersion2Compressed(t *testing.T) {
	original := []byte(`{"hello":"world","n":12345}`)
	compressed, err := codec.Compress(original)
	require.NoError(t, err)

	plaintext := append([]byte{0x02}, compressed...)
	out, err := codec.DecodeUnpacked(2, plaintext)
	require.NoError(t, err)
	require.Equal(t, original, out)
}

func TestDecodeUnpackedVersion2UnknownByteFails(t *testing.T) {
	_, err := codec.DecodeUnpacked(2, []byte{0x99, 0x00})
	require.Error(t, err)
}

func TestDecodeUnpackedUnsupportedVersion(t *testing.T) {
	_, err := codec.DecodeUnpacked(3, []byte(`{}`))
	require.Error(t, err)
}

func TestDecodeBlobUncompressed(t *testing.T) {
	plaintext := []byte("raw blob bytes")
	out, err := codec.DecodeBlob(plaintext, nil)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestDecodeBlobCompressed(t *testing.T) {
	original := make([]byte, 512)
	for i := range original {
		original[i] = byte(i % 251)
	}
	compressed, err := codec.Compress(original)
	require.NoError(t, err)

	length := int64(len(original))
	out, err := codec.DecodeBlob(compressed, &length)
	require.NoError(t, err)
	require.Equal(t, original, out)
}

func TestDecodeBlobCompressedLengthMismatch(t *testing.T) {
	original := []byte("some data to compress for the mismatch test")
	compressed, err := codec.Compress(original)
	require.NoError(t, err)

	wrong := int64(len(original) + 10)
	_, err = codec.DecodeBlob(compressed, &wrong)
	require.Error(t, err)
}
