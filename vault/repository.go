package vault

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/coldvault/coldvault/blobindex"
	vcodec "github.com/coldvault/coldvault/codec"
	vcrypto "github.com/coldvault/coldvault/crypto"
	"github.com/coldvault/coldvault/keystore"
	"github.com/coldvault/coldvault/objectstore"
	"github.com/coldvault/coldvault/packstore"
	"github.com/coldvault/coldvault/vaulterrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const configKey = "config"

// Option configures a Repository at Open time.
type Option func(*options)

type options struct {
	verifyBlobs bool
	cacheSize   int
}

// WithBlobVerification enables the optional post-decrypt SHA-256 check
// that a materialized blob's plaintext hashes to its claimed ID. Disabled
// by default, per the spec's "this spec marks it OPTIONAL" open-question
// decision.
func WithBlobVerification(enabled bool) Option {
	return func(o *options) { o.verifyBlobs = enabled }
}

// WithBlobCacheSize enables an LRU cache of completed blob plaintexts on
// top of the in-flight dedupe group. Disabled (0) by default.
func WithBlobCacheSize(size int) Option {
	return func(o *options) { o.cacheSize = size }
}

// Repository is the caller-facing handle on an opened backup repository.
// It owns the master key, config, blob index, and pack accessor; a caller
// that wants multiple concurrent repositories simply opens multiple
// Repository values.
type Repository struct {
	store objectstore.Store

	stateLk sync.RWMutex
	opened  bool

	masterKey *vcrypto.MasterKey
	config    Config

	index *blobindex.Index
	packs *packstore.Accessor
}

// Open performs the facade's open sequence: GET config, unlock the key
// store with password, decrypt and decode config, validate its version.
// The blob index is not built here; it builds lazily on the first
// LoadSnapshotTree/Browse/ReadFile call (ListSnapshots does not use it).
func Open(ctx context.Context, store objectstore.Store, password string, opts ...Option) (*Repository, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	configBody, err := store.Get(ctx, configKey)
	if err != nil {
		return nil, &vaulterrors.TransportError{Key: configKey, Err: err}
	}

	masterKey, err := keystore.Unlock(ctx, store, password)
	if err != nil {
		return nil, err
	}

	plaintext, err := vcrypto.Open(masterKey, configBody)
	if err != nil {
		return nil, &vaulterrors.AuthenticationError{On: vaulterrors.WhatConfig, Cause: err}
	}

	// The config's own declared version isn't known until it is decoded,
	// so bootstrap with the version-2 self-describing decode path: its
	// leading-byte sniff already treats a raw '{'-prefixed body (what a
	// version-1 repository would have produced) as legacy JSON, so this
	// single path correctly decodes either version's config object.
	decoded, err := vcodec.DecodeUnpacked(2, plaintext)
	if err != nil {
		return nil, fmt.Errorf("vault: decoding config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(decoded, &cfg); err != nil {
		return nil, fmt.Errorf("vault: %w", vaulterrors.ErrFormat)
	}
	if cfg.Version != 1 && cfg.Version != 2 {
		return nil, fmt.Errorf("vault: config version %d: %w", cfg.Version, vaulterrors.ErrUnsupportedVersion)
	}

	var packOpts []packstore.Option
	if o.verifyBlobs {
		packOpts = append(packOpts, packstore.WithVerification(true))
	}
	if o.cacheSize > 0 {
		packOpts = append(packOpts, packstore.WithCacheSize(o.cacheSize))
	}

	repo := &Repository{
		store:     store,
		opened:    true,
		masterKey: masterKey,
		config:    cfg,
		index:     blobindex.New(store, cfg.Version, masterKey),
		packs:     packstore.New(store, masterKey, packOpts...),
	}
	return repo, nil
}

// Config returns the repository's decrypted configuration.
func (r *Repository) Config() Config {
	r.stateLk.RLock()
	defer r.stateLk.RUnlock()
	return r.config
}

// Close marks the repository closed and best-effort zeroes the master key
// material. Go has no finalizer suitable for secure erase; this is the
// best a caller gets without a lower-level memory API.
func (r *Repository) Close() error {
	r.stateLk.Lock()
	defer r.stateLk.Unlock()
	if !r.opened {
		return nil
	}
	r.opened = false
	if r.masterKey != nil {
		for i := range r.masterKey.Enc {
			r.masterKey.Enc[i] = 0
		}
		for i := range r.masterKey.MACK {
			r.masterKey.MACK[i] = 0
		}
		for i := range r.masterKey.MACR {
			r.masterKey.MACR[i] = 0
		}
	}
	return nil
}

func (r *Repository) ensureOpen() error {
	r.stateLk.RLock()
	defer r.stateLk.RUnlock()
	if !r.opened {
		return fmt.Errorf("vault: repository is closed")
	}
	return nil
}
