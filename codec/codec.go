// Package codec resolves the format-version-dependent encoding of
// plaintext produced by package crypto: raw JSON, legacy raw JSON, or
// zstd-compressed JSON for unpacked objects (config, indexes, snapshots),
// plus a separate decode path for packed blobs (data and trees) whose compression
// signal travels out-of-band in the index entry rather than a leading byte.
package codec

import (
	"fmt"

	"github.com/mostynb/zstdpool-freelist"

	"github.com/coldvault/coldvault/vaulterrors"
)

const (
	legacyJSONObjectByte = '{'
	legacyJSONArrayByte  = '['
	zstdMarkerByte       = 0x02
)

var decoderPool = zstdpool.NewDecoderPool()

var encoderPool = zstdpool.NewEncoderPool()

// DecodeUnpacked resolves one of config/index/snapshot plaintext per
// the repository's format version:
//   - version 1: plaintext is always raw JSON, returned unchanged.
//   - version 2: the leading byte selects the encoding — '{' or '[' means
//     legacy raw JSON (files written before an upgrade to version 2),
//     0x02 means the remainder is zstd-compressed JSON, anything else is
//     FormatError.
func DecodeUnpacked(version int, plaintext []byte) ([]byte, error) {
	if version == 1 {
		return plaintext, nil
	}
	if version != 2 {
		return nil, fmt.Errorf("codec: unsupported format version %d", version)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("codec: empty plaintext")
	}
	switch plaintext[0] {
	case legacyJSONObjectByte, legacyJSONArrayByte:
		return plaintext, nil
	case zstdMarkerByte:
		return decompress(plaintext[1:], -1)
	default:
		return nil, fmt.Errorf("codec: unsupported encoding byte 0x%02x: %w", plaintext[0], vaulterrors.ErrFormat)
	}
}

// DecodeBlob resolves a packed blob's plaintext. If uncompressedLength is
// non-nil and non-zero (the index entry carried an uncompressed_length),
// the bytes are zstd-decompressed to exactly that length; otherwise they
// are returned as-is.
func DecodeBlob(plaintext []byte, uncompressedLength *int64) ([]byte, error) {
	if uncompressedLength == nil || *uncompressedLength == 0 {
		return plaintext, nil
	}
	return decompress(plaintext, *uncompressedLength)
}

// decompress zstd-decodes data using the shared decoder pool. If
// expectedLength is >= 0 the result is checked against it.
func decompress(data []byte, expectedLength int64) ([]byte, error) {
	dec, err := decoderPool.Get(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: acquire zstd decoder: %w", err)
	}
	defer decoderPool.Put(dec)

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: %w: %v", vaulterrors.ErrDecompression, err)
	}
	if expectedLength >= 0 && int64(len(out)) != expectedLength {
		return nil, fmt.Errorf("codec: decompressed length %d, expected %d: %w", len(out), expectedLength, vaulterrors.ErrDecompression)
	}
	return out, nil
}

// Compress zstd-encodes data using the shared encoder pool. It exists for
// fixture builders and tests that need to construct compressed blobs and
// unpacked objects; the read path never calls it.
func Compress(data []byte) ([]byte, error) {
	enc, err := encoderPool.Get(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: acquire zstd encoder: %w", err)
	}
	defer encoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}
