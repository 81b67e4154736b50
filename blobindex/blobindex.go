// Package blobindex builds and serves the in-memory mapping from blob ID
// to pack location. The index is built lazily under a one-shot guard: the
// first caller to need a lookup pays for loading every index/ object, and
// concurrent first-time lookups block on the same build rather than
// racing to load it twice.
package blobindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	vcodec "github.com/coldvault/coldvault/codec"
	vcrypto "github.com/coldvault/coldvault/crypto"
	"github.com/coldvault/coldvault/objectstore"
	"github.com/coldvault/coldvault/rid"
	"github.com/coldvault/coldvault/vaulterrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const indexPrefix = "index/"

// BlobType distinguishes the two kinds of content-addressed blob.
type BlobType int

const (
	TypeData BlobType = iota
	TypeTree
)

func (t BlobType) String() string {
	if t == TypeTree {
		return "tree"
	}
	return "data"
}

// Location is a blob's position inside its pack: everything the pack
// accessor needs to materialize the plaintext.
type Location struct {
	PackID             rid.ID
	Offset             int64
	Length             int64
	UncompressedLength *int64
	Type               BlobType
}

// Index is the built, queryable blob-ID-to-location map.
type Index struct {
	store     objectstore.Store
	version   int
	masterKey *vcrypto.MasterKey

	buildOnce sync.Once
	buildErr  error
	entries   *xsync.MapOf[string, Location]
}

// New returns an Index that will lazily build itself from store on first
// Find call. version and masterKey are needed to decrypt and decode
// index/ objects.
func New(store objectstore.Store, version int, masterKey *vcrypto.MasterKey) *Index {
	return &Index{
		store:     store,
		version:   version,
		masterKey: masterKey,
		entries:   xsync.NewMapOf[string, Location](),
	}
}

// Ensure builds the index if it has not been built yet. Safe to call from
// multiple goroutines concurrently; exactly one build runs.
func (idx *Index) Ensure(ctx context.Context) error {
	idx.buildOnce.Do(func() {
		idx.buildErr = idx.build(ctx)
	})
	return idx.buildErr
}

// Find resolves a blob ID to its pack location, calling Ensure first.
func (idx *Index) Find(ctx context.Context, id rid.ID, expectedType BlobType) (Location, error) {
	if err := idx.Ensure(ctx); err != nil {
		return Location{}, err
	}
	loc, ok := idx.entries.Load(id.String())
	if !ok {
		return Location{}, fmt.Errorf("%s: %w", id, vaulterrors.ErrBlobNotFound)
	}
	if loc.Type != expectedType {
		return Location{}, fmt.Errorf("%s: %w", id, vaulterrors.ErrBlobTypeMismatch)
	}
	return loc, nil
}

// indexDoc mirrors an index/ object's decrypted JSON body.
type indexDoc struct {
	Supersedes []string `json:"supersedes"`
	Packs      []struct {
		ID    string `json:"id"`
		Blobs []struct {
			ID                 string `json:"id"`
			Type               string `json:"type"`
			Offset             int64  `json:"offset"`
			Length             int64  `json:"length"`
			UncompressedLength *int64 `json:"uncompressed_length"`
		} `json:"blobs"`
	} `json:"packs"`
}

// build performs the two-pass protocol: load every index/ object once,
// collect the union of everything any index supersedes, then insert only
// the entries of indexes that are not themselves superseded. Per-index
// decode failures are logged and skipped; the build succeeds as long as
// at least one index loaded.
func (idx *Index) build(ctx context.Context) error {
	var keys []string
	for key, err := range idx.store.List(ctx, indexPrefix) {
		if err != nil {
			return &vaulterrors.TransportError{Key: indexPrefix, Err: err}
		}
		keys = append(keys, key)
	}

	type loaded struct {
		id  string
		doc indexDoc
	}

	var (
		mu      sync.Mutex
		docs    []loaded
		okCount int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			doc, id, err := idx.loadOne(gctx, key)
			if err != nil {
				slog.Warn("blobindex: skipping unreadable index", "key", key, "error", err)
				return nil
			}
			mu.Lock()
			docs = append(docs, loaded{id: id, doc: doc})
			okCount++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if okCount == 0 {
		return fmt.Errorf("blobindex: no index objects could be loaded")
	}

	superseded := make(map[string]bool)
	for _, l := range docs {
		for _, s := range l.doc.Supersedes {
			superseded[s] = true
		}
	}

	for _, l := range docs {
		if superseded[l.id] {
			continue
		}
		for _, pack := range l.doc.Packs {
			packID, err := rid.Parse(pack.ID)
			if err != nil {
				slog.Warn("blobindex: skipping pack with malformed id", "index", l.id, "pack", pack.ID)
				continue
			}
			for _, b := range pack.Blobs {
				blobID, err := rid.Parse(b.ID)
				if err != nil {
					slog.Warn("blobindex: skipping blob with malformed id", "index", l.id)
					continue
				}
				var bt BlobType
				switch b.Type {
				case "data":
					bt = TypeData
				case "tree":
					bt = TypeTree
				default:
					slog.Warn("blobindex: skipping blob with unknown type", "id", b.ID, "type", b.Type)
					continue
				}
				loc := Location{
					PackID:             packID,
					Offset:             b.Offset,
					Length:             b.Length,
					UncompressedLength: b.UncompressedLength,
					Type:               bt,
				}
				if existing, ok := idx.entries.Load(blobID.String()); ok {
					if existing.UncompressedLength != nil && loc.UncompressedLength != nil &&
						*existing.UncompressedLength != *loc.UncompressedLength {
						slog.Warn("blobindex: conflicting uncompressed_length for blob, keeping first", "id", b.ID)
					}
					continue
				}
				idx.entries.Store(blobID.String(), loc)
			}
		}
	}
	return nil
}

func (idx *Index) loadOne(ctx context.Context, key string) (indexDoc, string, error) {
	body, err := idx.store.Get(ctx, key)
	if err != nil {
		return indexDoc{}, "", &vaulterrors.TransportError{Key: key, Err: err}
	}
	plaintext, err := vcrypto.Open(idx.masterKey, body)
	if err != nil {
		return indexDoc{}, "", &vaulterrors.AuthenticationError{On: vaulterrors.WhatIndex, Cause: err}
	}
	decoded, err := vcodec.DecodeUnpacked(idx.version, plaintext)
	if err != nil {
		return indexDoc{}, "", err
	}
	var doc indexDoc
	if err := json.Unmarshal(decoded, &doc); err != nil {
		return indexDoc{}, "", fmt.Errorf("%s: %w", key, vaulterrors.ErrFormat)
	}
	id := key[len(indexPrefix):]
	return doc, id, nil
}
