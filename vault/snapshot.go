package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/coldvault/coldvault/blobindex"
	vcodec "github.com/coldvault/coldvault/codec"
	vcrypto "github.com/coldvault/coldvault/crypto"
	"github.com/coldvault/coldvault/rid"
	"github.com/coldvault/coldvault/vaulterrors"
)

const snapshotsPrefix = "snapshots/"

// SnapshotEntry pairs a decoded snapshot with its object-key ID.
type SnapshotEntry struct {
	ID       rid.ID
	Snapshot Snapshot
}

// ListSnapshots enumerates every decodable snapshot, newest-first by
// timestamp, ties broken by snapshot-ID lexicographic order. Per-snapshot
// decode failures are logged and skipped; they do not abort the listing.
func (r *Repository) ListSnapshots(ctx context.Context) ([]SnapshotEntry, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	var keys []string
	for key, err := range r.store.List(ctx, snapshotsPrefix) {
		if err != nil {
			return nil, &vaulterrors.TransportError{Key: snapshotsPrefix, Err: err}
		}
		keys = append(keys, key)
	}

	var (
		mu      sync.Mutex
		entries []SnapshotEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			entry, err := r.loadSnapshot(gctx, key)
			if err != nil {
				slog.Warn("vault: skipping unreadable snapshot", "key", key, "error", err)
				return nil
			}
			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].Snapshot.Time, entries[j].Snapshot.Time
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
	return entries, nil
}

func (r *Repository) loadSnapshot(ctx context.Context, key string) (SnapshotEntry, error) {
	body, err := r.store.Get(ctx, key)
	if err != nil {
		return SnapshotEntry{}, &vaulterrors.TransportError{Key: key, Err: err}
	}
	plaintext, err := vcrypto.Open(r.masterKey, body)
	if err != nil {
		return SnapshotEntry{}, &vaulterrors.AuthenticationError{On: vaulterrors.WhatSnapshot, Cause: err}
	}
	decoded, err := vcodec.DecodeUnpacked(r.config.Version, plaintext)
	if err != nil {
		return SnapshotEntry{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(decoded, &snap); err != nil {
		return SnapshotEntry{}, fmt.Errorf("%s: %w", key, vaulterrors.ErrFormat)
	}

	idHex := key[len(snapshotsPrefix):]
	id, err := rid.Parse(idHex)
	if err != nil {
		return SnapshotEntry{}, fmt.Errorf("%s: bad snapshot id: %w", key, vaulterrors.ErrFormat)
	}
	snap.ID = id

	treeID, err := rid.Parse(snap.TreeHex)
	if err != nil {
		return SnapshotEntry{}, fmt.Errorf("%s: bad tree id: %w", key, vaulterrors.ErrFormat)
	}
	snap.Tree = treeID

	if snap.ParentHex != "" {
		parentID, err := rid.Parse(snap.ParentHex)
		if err != nil {
			return SnapshotEntry{}, fmt.Errorf("%s: bad parent id: %w", key, vaulterrors.ErrFormat)
		}
		snap.Parent = &parentID
	}

	return SnapshotEntry{ID: id, Snapshot: snap}, nil
}

// LoadSnapshotTree loads and decodes a snapshot's root tree.
func (r *Repository) LoadSnapshotTree(ctx context.Context, snap Snapshot) (*Tree, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	return r.loadTree(ctx, snap.Tree)
}

func (r *Repository) loadTree(ctx context.Context, id rid.ID) (*Tree, error) {
	loc, err := r.index.Find(ctx, id, blobindex.TypeTree)
	if err != nil {
		return nil, err
	}
	plaintext, err := r.packs.Get(ctx, id, loc)
	if err != nil {
		return nil, err
	}
	var tree Tree
	if err := json.Unmarshal(plaintext, &tree); err != nil {
		return nil, fmt.Errorf("%s: %w", id, vaulterrors.ErrFormat)
	}
	return &tree, nil
}
