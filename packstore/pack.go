package packstore

import (
	"encoding/binary"
	"fmt"

	"github.com/coldvault/coldvault/rid"
	"github.com/coldvault/coldvault/vaulterrors"
)

// Pack entry shapes, per the bit-exact format in the repository's data
// model: a plain entry has no uncompressed-length field, a compressed one
// does. The type byte tells a reader which shape follows it.
const (
	entryTypeDataPlain       = 0
	entryTypeTreePlain       = 1
	entryTypeDataCompressed  = 2
	entryTypeTreeCompressed  = 3
	plainEntrySize           = 1 + 4 + 32
	compressedEntrySize      = 1 + 4 + 4 + 32
	headerLengthTrailerBytes = 4
)

// HeaderEntry is one decoded record from a pack's trailing header.
type HeaderEntry struct {
	Type               BlobKind
	Length             uint32
	UncompressedLength *uint32
	ID                 rid.ID
}

// BlobKind is the entry's content kind, independent of whether it was
// stored compressed.
type BlobKind int

const (
	KindData BlobKind = iota
	KindTree
)

// ParseHeader decodes a pack's decrypted header into its sequence of
// fixed-size entries. The header itself carries no entry count; a reader
// consumes records until the buffer is exhausted, since every record's
// length is determined by its own leading type byte.
func ParseHeader(header []byte) ([]HeaderEntry, error) {
	var entries []HeaderEntry
	for len(header) > 0 {
		entryType := header[0]
		switch entryType {
		case entryTypeDataPlain, entryTypeTreePlain:
			if len(header) < plainEntrySize {
				return nil, fmt.Errorf("packstore: truncated plain header entry: %w", vaulterrors.ErrFormat)
			}
			length := binary.LittleEndian.Uint32(header[1:5])
			var id rid.ID
			copy(id[:], header[5:37])
			entries = append(entries, HeaderEntry{
				Type:   kindOf(entryType),
				Length: length,
				ID:     id,
			})
			header = header[plainEntrySize:]
		case entryTypeDataCompressed, entryTypeTreeCompressed:
			if len(header) < compressedEntrySize {
				return nil, fmt.Errorf("packstore: truncated compressed header entry: %w", vaulterrors.ErrFormat)
			}
			length := binary.LittleEndian.Uint32(header[1:5])
			uncompressed := binary.LittleEndian.Uint32(header[5:9])
			var id rid.ID
			copy(id[:], header[9:41])
			entries = append(entries, HeaderEntry{
				Type:               kindOf(entryType),
				Length:             length,
				UncompressedLength: &uncompressed,
				ID:                 id,
			})
			header = header[compressedEntrySize:]
		default:
			return nil, fmt.Errorf("packstore: unknown header entry type %d: %w", entryType, vaulterrors.ErrFormat)
		}
	}
	return entries, nil
}

func kindOf(entryType byte) BlobKind {
	if entryType == entryTypeTreePlain || entryType == entryTypeTreeCompressed {
		return KindTree
	}
	return KindData
}

// headerLengthFromTrailer decodes the 4-byte little-endian header-length
// trailer read from the last headerLengthTrailerBytes bytes of a pack
// object. It does not include its own length in the returned value.
func headerLengthFromTrailer(trailer []byte) (uint32, error) {
	if len(trailer) != headerLengthTrailerBytes {
		return 0, fmt.Errorf("packstore: trailer must be %d bytes, got %d", headerLengthTrailerBytes, len(trailer))
	}
	return binary.LittleEndian.Uint32(trailer), nil
}
