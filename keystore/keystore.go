// Package keystore implements the repository's open protocol: discover
// key files, find the one whose data field authenticates under the
// password-derived key, and yield the repository master key.
package keystore

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	vcrypto "github.com/coldvault/coldvault/crypto"
	"github.com/coldvault/coldvault/objectstore"
	"github.com/coldvault/coldvault/vaulterrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// keysPrefix is the object-store prefix under which key files are listed.
const keysPrefix = "keys/"

// keyFileJSON mirrors the wire encoding of a key-file object. Field names
// are case-sensitive on the wire ("N", not "n").
type keyFileJSON struct {
	Created  string `json:"created"`
	Username string `json:"username"`
	Hostname string `json:"hostname"`
	KDF      string `json:"kdf"`
	N        int    `json:"N"`
	R        int    `json:"r"`
	P        int    `json:"p"`
	Salt     string `json:"salt"`
	Data     string `json:"data"`
}

// masterKeyJSON mirrors the plaintext yielded by decrypting a key file's
// data field.
type masterKeyJSON struct {
	MAC struct {
		K string `json:"k"`
		R string `json:"r"`
	} `json:"mac"`
	Encrypt string `json:"encrypt"`
}

// Unlock implements the open protocol: list keys/, try each key file's
// data field against the password-derived key, and return the first
// master key that authenticates. Key-file trial order is the order the
// store lists keys/ in; it is intentionally left unordered.
func Unlock(ctx context.Context, store objectstore.Store, password string) (*vcrypto.MasterKey, error) {
	var keys []string
	for key, err := range store.List(ctx, keysPrefix) {
		if err != nil {
			return nil, &vaulterrors.TransportError{Key: keysPrefix, Err: err}
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, vaulterrors.ErrNoKeys
	}

	var (
		mu       sync.Mutex
		unlocked *vcrypto.MasterKey
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			mk, err := tryKey(gctx, store, key, password)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil
			}
			if unlocked == nil {
				unlocked = mk
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if unlocked == nil {
		return nil, &vaulterrors.BadPasswordError{Last: lastErr}
	}
	return unlocked, nil
}

// tryKey attempts to unlock a single key file, returning the master key on
// success or the authentication/format error encountered.
func tryKey(ctx context.Context, store objectstore.Store, key, password string) (*vcrypto.MasterKey, error) {
	body, err := store.Get(ctx, key)
	if err != nil {
		return nil, &vaulterrors.TransportError{Key: key, Err: err}
	}

	var kf keyFileJSON
	if err := json.Unmarshal(body, &kf); err != nil {
		return nil, fmt.Errorf("keystore: %s: %w", key, vaulterrors.ErrFormat)
	}
	if kf.KDF != "scrypt" {
		return nil, fmt.Errorf("keystore: %s: unsupported kdf %q", key, kf.KDF)
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("keystore: %s: bad salt: %w", key, vaulterrors.ErrFormat)
	}
	data, err := base64.StdEncoding.DecodeString(kf.Data)
	if err != nil {
		return nil, fmt.Errorf("keystore: %s: bad data: %w", key, vaulterrors.ErrFormat)
	}

	userKey, err := vcrypto.DeriveUserKey(password, salt, kf.N, kf.R, kf.P)
	if err != nil {
		return nil, fmt.Errorf("keystore: %s: %w", key, err)
	}

	plaintext, err := vcrypto.Open(userKey, data)
	if err != nil {
		return nil, &vaulterrors.AuthenticationError{On: vaulterrors.WhatKeyFile, Cause: err}
	}

	var mkJSON masterKeyJSON
	if err := json.Unmarshal(plaintext, &mkJSON); err != nil {
		return nil, fmt.Errorf("keystore: %s: %w", key, vaulterrors.ErrFormat)
	}

	mk := &vcrypto.MasterKey{}
	if err := decodeFixed(mk.Enc[:], mkJSON.Encrypt); err != nil {
		return nil, fmt.Errorf("keystore: %s: encrypt field: %w", key, vaulterrors.ErrFormat)
	}
	if err := decodeFixed(mk.MACK[:], mkJSON.MAC.K); err != nil {
		return nil, fmt.Errorf("keystore: %s: mac.k field: %w", key, vaulterrors.ErrFormat)
	}
	if err := decodeFixed(mk.MACR[:], mkJSON.MAC.R); err != nil {
		return nil, fmt.Errorf("keystore: %s: mac.r field: %w", key, vaulterrors.ErrFormat)
	}
	return mk, nil
}

// decodeFixed base64-decodes s into dst, requiring an exact length match.
func decodeFixed(dst []byte, s string) error {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(decoded) != len(dst) {
		return fmt.Errorf("wrong length %d, want %d", len(decoded), len(dst))
	}
	copy(dst, decoded)
	return nil
}
