package rid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldvault/coldvault/rid"
)

func TestParseRoundTrip(t *testing.T) {
	const hex = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"
	id, err := rid.Parse(hex)
	require.NoError(t, err)
	require.Equal(t, hex, id.String())
}

func TestParseWrongLength(t *testing.T) {
	_, err := rid.Parse("abcd")
	require.Error(t, err)
}

func TestShardPrefix(t *testing.T) {
	id := rid.MustParse("aabb030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	require.Equal(t, "aa", id.ShardPrefix())
}

func TestIsZero(t *testing.T) {
	require.True(t, rid.Zero.IsZero())
	id := rid.MustParse("0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	require.False(t, id.IsZero())
}
