package keystore_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldvault/coldvault/internal/fixture"
	"github.com/coldvault/coldvault/keystore"
	"github.com/coldvault/coldvault/objectstore/memstore"
	"github.com/coldvault/coldvault/vaulterrors"
)

func TestUnlockSuccess(t *testing.T) {
	b := fixture.NewBuilder(2)
	salt := bytes.Repeat([]byte{0xAA}, 32)
	b.AddKeyFile("k1", "correct horse", 16384, 8, 1, salt)

	mk, err := keystore.Unlock(context.Background(), b.Store, "correct horse")
	require.NoError(t, err)
	require.Equal(t, b.MasterKey, mk)
}

func TestUnlockWrongPassword(t *testing.T) {
	b := fixture.NewBuilder(2)
	salt := bytes.Repeat([]byte{0xAA}, 32)
	b.AddKeyFile("k1", "correct horse", 16384, 8, 1, salt)

	_, err := keystore.Unlock(context.Background(), b.Store, "battery staple")
	require.Error(t, err)
	var bpe *vaulterrors.BadPasswordError
	require.True(t, errors.As(err, &bpe))
}

func TestUnlockNoKeys(t *testing.T) {
	store := memstore.New()
	_, err := keystore.Unlock(context.Background(), store, "anything")
	require.ErrorIs(t, err, vaulterrors.ErrNoKeys)
}

func TestUnlockTriesAllKeys(t *testing.T) {
	b := fixture.NewBuilder(2)
	salt := bytes.Repeat([]byte{0xBB}, 32)
	// a key file for a different password, plus the real one; unlock must
	// still succeed by trying every key file.
	b.AddKeyFile("k-decoy", "not it", 16384, 8, 1, salt)
	b.AddKeyFile("k-real", "correct horse", 16384, 8, 1, salt)

	mk, err := keystore.Unlock(context.Background(), b.Store, "correct horse")
	require.NoError(t, err)
	require.Equal(t, b.MasterKey, mk)
}
