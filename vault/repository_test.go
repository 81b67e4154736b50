package vault_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldvault/coldvault/blobindex"
	"github.com/coldvault/coldvault/internal/fixture"
	"github.com/coldvault/coldvault/vault"
	"github.com/coldvault/coldvault/vaulterrors"
)

const testPassword = "correct horse"

// Snapshot object keys are 64-hex-character IDs: ListSnapshots parses each
// key's basename as the snapshot's ID.
var (
	snapJan = strings.Repeat("01", 32)
	snapMar = strings.Repeat("02", 32)
	snapDec = strings.Repeat("03", 32)
	snapOne = strings.Repeat("0a", 32)
)

func salt32() []byte {
	return bytes.Repeat([]byte{0xAA}, 32)
}

// buildRepo assembles a fixture with one key file and the given config,
// returning the builder so the caller can add snapshots/packs/indexes.
func buildRepo(version int) *fixture.Builder {
	b := fixture.NewBuilder(version)
	b.AddKeyFile("k1", testPassword, 16384, 8, 1, salt32())
	b.SetConfig("repo-id", "0x3DA3358B4DCE2")
	return b
}

func TestOpenSucceedsWithCorrectPassword(t *testing.T) {
	b := buildRepo(2)

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	defer repo.Close()

	require.Equal(t, 2, repo.Config().Version)
}

func TestOpenFailsWithWrongPassword(t *testing.T) {
	b := buildRepo(2)

	_, err := vault.Open(context.Background(), b.Store, "battery staple")
	require.Error(t, err)
	require.ErrorIs(t, err, vaulterrors.ErrBadPassword)
}

func TestOpenFailsWithUnsupportedVersion(t *testing.T) {
	b := fixture.NewBuilder(3)
	b.AddKeyFile("k1", testPassword, 16384, 8, 1, salt32())
	b.SetConfig("repo-id", "0x3DA3358B4DCE2")

	_, err := vault.Open(context.Background(), b.Store, testPassword)
	require.ErrorIs(t, err, vaulterrors.ErrUnsupportedVersion)
}

func TestListSnapshotsOrdersNewestFirst(t *testing.T) {
	b := buildRepo(2)
	_, packed := b.AddPack([]fixture.BlobSpec{{Type: blobindex.TypeTree, Plaintext: []byte(`{"nodes":[]}`)}})
	b.AddIndex("idx1", nil, packed)
	root := packed[0].ID

	b.AddSnapshot(snapJan, "2024-01-01T00:00:00Z", root, []string{"/data"})
	b.AddSnapshot(snapMar, "2024-03-15T12:00:00Z", root, []string{"/data"})
	b.AddSnapshot(snapDec, "2023-12-31T23:59:59Z", root, []string{"/data"})

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	defer repo.Close()

	entries, err := repo.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []string{snapMar, snapJan, snapDec}, []string{
		entries[0].ID.String(), entries[1].ID.String(), entries[2].ID.String(),
	})
}

// buildFileTreeFixture assembles the nested /home/alice/notes.txt fixture
// from the spec's path-walk scenario and returns the snapshot to browse.
func buildFileTreeFixture(t *testing.T, b *fixture.Builder) vault.Snapshot {
	t.Helper()

	content := []byte("hello world")
	_, contentPacked := b.AddPack([]fixture.BlobSpec{{Type: blobindex.TypeData, Plaintext: content}})

	aliceTreeJSON := []byte(`{"nodes":[{"name":"notes.txt","type":"file","size":11,"content":["` +
		contentPacked[0].ID.String() + `"]}]}`)
	_, aliceTreePacked := b.AddPack([]fixture.BlobSpec{{Type: blobindex.TypeTree, Plaintext: aliceTreeJSON}})

	homeTreeJSON := []byte(`{"nodes":[{"name":"alice","type":"dir","subtree":"` +
		aliceTreePacked[0].ID.String() + `"}]}`)
	_, homeTreePacked := b.AddPack([]fixture.BlobSpec{{Type: blobindex.TypeTree, Plaintext: homeTreeJSON}})

	rootTreeJSON := []byte(`{"nodes":[{"name":"home","type":"dir","subtree":"` +
		homeTreePacked[0].ID.String() + `"}]}`)
	_, rootTreePacked := b.AddPack([]fixture.BlobSpec{{Type: blobindex.TypeTree, Plaintext: rootTreeJSON}})

	b.AddIndex("idx1", nil, append(append(append(
		append([]fixture.PackedBlob{}, contentPacked...), aliceTreePacked...), homeTreePacked...), rootTreePacked...))

	b.AddSnapshot(snapOne, "2024-06-01T00:00:00Z", rootTreePacked[0].ID, []string{"/home"})

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	entries, err := repo.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0].Snapshot
}

func TestBrowseAndReadFileAtNestedPath(t *testing.T) {
	b := buildRepo(2)
	snap := buildFileTreeFixture(t, b)

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	defer repo.Close()

	result, err := repo.Browse(context.Background(), snap, "/home/alice/notes.txt")
	require.NoError(t, err)
	require.NotNil(t, result.Node)
	require.Equal(t, vault.NodeFile, result.Node.Type)
	require.Equal(t, int64(11), *result.Node.Size)

	rc, err := repo.ReadFile(context.Background(), result.Node)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestBrowseEmptyPathReturnsRoot(t *testing.T) {
	b := buildRepo(2)
	snap := buildFileTreeFixture(t, b)

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	defer repo.Close()

	result, err := repo.Browse(context.Background(), snap, "")
	require.NoError(t, err)
	require.Nil(t, result.Node)
	require.Len(t, result.Tree.Nodes, 1)
	require.Equal(t, "home", result.Tree.Nodes[0].Name)
}

func TestBrowsePathNotFound(t *testing.T) {
	b := buildRepo(2)
	snap := buildFileTreeFixture(t, b)

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.Browse(context.Background(), snap, "/home/bob")
	require.ErrorIs(t, err, vaulterrors.ErrPathNotFound)
}

func TestBrowseNotADirectory(t *testing.T) {
	b := buildRepo(2)
	snap := buildFileTreeFixture(t, b)

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.Browse(context.Background(), snap, "/home/alice/notes.txt/extra")
	require.ErrorIs(t, err, vaulterrors.ErrNotADirectory)
}

func TestReadFileEmptyContentReturnsZeroBytes(t *testing.T) {
	b := buildRepo(2)
	rootTreeJSON := []byte(`{"nodes":[{"name":"empty.txt","type":"file","size":0,"content":[]}]}`)
	_, rootTreePacked := b.AddPack([]fixture.BlobSpec{{Type: blobindex.TypeTree, Plaintext: rootTreeJSON}})
	b.AddIndex("idx1", nil, rootTreePacked)
	b.AddSnapshot(snapOne, "2024-06-01T00:00:00Z", rootTreePacked[0].ID, nil)

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	defer repo.Close()

	entries, err := repo.ListSnapshots(context.Background())
	require.NoError(t, err)
	result, err := repo.Browse(context.Background(), entries[0].Snapshot, "/empty.txt")
	require.NoError(t, err)

	rc, err := repo.ReadFile(context.Background(), result.Node)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadFileRejectsNonFileNode(t *testing.T) {
	b := buildRepo(2)
	snap := buildFileTreeFixture(t, b)

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	defer repo.Close()

	result, err := repo.Browse(context.Background(), snap, "/home/alice")
	require.NoError(t, err)

	_, err = repo.ReadFile(context.Background(), result.Node)
	require.ErrorIs(t, err, vaulterrors.ErrNotAFile)
}

func TestOperationsFailOnClosedRepository(t *testing.T) {
	b := buildRepo(2)

	repo, err := vault.Open(context.Background(), b.Store, testPassword)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = repo.ListSnapshots(context.Background())
	require.Error(t, err)
}

func TestOpenFailsWithNoKeys(t *testing.T) {
	b := fixture.NewBuilder(2)
	b.SetConfig("repo-id", "0x3DA3358B4DCE2")

	_, err := vault.Open(context.Background(), b.Store, testPassword)
	require.ErrorIs(t, err, vaulterrors.ErrNoKeys)
}
