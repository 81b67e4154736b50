package blobindex_test

import (
	"context"
	"iter"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldvault/coldvault/blobindex"
	"github.com/coldvault/coldvault/internal/fixture"
	"github.com/coldvault/coldvault/objectstore"
)

// listCountingStore counts List calls on the index/ prefix, so a test can
// observe how many times the index was built.
type listCountingStore struct {
	objectstore.Store
	indexLists atomic.Int64
}

func (s *listCountingStore) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	if prefix == "index/" {
		s.indexLists.Add(1)
	}
	return s.Store.List(ctx, prefix)
}

func TestFindResolvesBlob(t *testing.T) {
	b := fixture.NewBuilder(2)
	_, packed := b.AddPack([]fixture.BlobSpec{
		{Type: blobindex.TypeData, Plaintext: []byte("hello world")},
	})
	b.AddIndex("idx1", nil, packed)

	idx := blobindex.New(b.Store, b.Version, b.MasterKey)
	loc, err := idx.Find(context.Background(), packed[0].ID, blobindex.TypeData)
	require.NoError(t, err)
	require.Equal(t, packed[0].Loc, loc)
}

func TestFindBlobNotFound(t *testing.T) {
	b := fixture.NewBuilder(2)
	_, packed := b.AddPack([]fixture.BlobSpec{
		{Type: blobindex.TypeData, Plaintext: []byte("hello world")},
	})
	b.AddIndex("idx1", nil, packed)

	idx := blobindex.New(b.Store, b.Version, b.MasterKey)
	missing := packed[0].ID
	missing[0] ^= 0xFF

	_, err := idx.Find(context.Background(), missing, blobindex.TypeData)
	require.Error(t, err)
}

func TestFindBlobTypeMismatch(t *testing.T) {
	b := fixture.NewBuilder(2)
	_, packed := b.AddPack([]fixture.BlobSpec{
		{Type: blobindex.TypeData, Plaintext: []byte("hello world")},
	})
	b.AddIndex("idx1", nil, packed)

	idx := blobindex.New(b.Store, b.Version, b.MasterKey)
	_, err := idx.Find(context.Background(), packed[0].ID, blobindex.TypeTree)
	require.Error(t, err)
}

func TestSupersededIndexIsInvisible(t *testing.T) {
	b := fixture.NewBuilder(2)
	_, packedB := b.AddPack([]fixture.BlobSpec{
		{Type: blobindex.TypeData, Plaintext: []byte("only in B")},
	})
	b.AddIndex("B", nil, packedB)

	_, packedA := b.AddPack([]fixture.BlobSpec{
		{Type: blobindex.TypeData, Plaintext: []byte("only in A")},
	})
	b.AddIndex("A", []string{"B"}, packedA)

	idx := blobindex.New(b.Store, b.Version, b.MasterKey)

	_, err := idx.Find(context.Background(), packedB[0].ID, blobindex.TypeData)
	require.Error(t, err, "blob only present in a superseded index must not resolve")

	loc, err := idx.Find(context.Background(), packedA[0].ID, blobindex.TypeData)
	require.NoError(t, err)
	require.Equal(t, packedA[0].Loc, loc)
}

func TestBuildRunsExactlyOnceUnderConcurrentLookups(t *testing.T) {
	b := fixture.NewBuilder(2)
	_, packed := b.AddPack([]fixture.BlobSpec{
		{Type: blobindex.TypeData, Plaintext: []byte("concurrent")},
	})
	b.AddIndex("idx1", nil, packed)

	cs := &listCountingStore{Store: b.Store}
	idx := blobindex.New(cs, b.Version, b.MasterKey)

	const n = 16
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := idx.Find(context.Background(), packed[0].ID, blobindex.TypeData)
			results <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-results)
	}
	require.Equal(t, int64(1), cs.indexLists.Load())
}
