// Package fixture builds small encrypted repositories in memory for use
// by this module's tests. It is test tooling: it encodes the wire formats
// described in the repository's data model directly (rather than reusing
// any production encoder, since the engine is read-only and ships none).
package fixture

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/coldvault/coldvault/blobindex"
	vcodec "github.com/coldvault/coldvault/codec"
	vcrypto "github.com/coldvault/coldvault/crypto"
	"github.com/coldvault/coldvault/objectstore/memstore"
	"github.com/coldvault/coldvault/rid"
)

// Builder assembles a fixture repository into an in-memory store.
type Builder struct {
	Store     *memstore.Store
	MasterKey *vcrypto.MasterKey
	Version   int

	ivCounter uint64
}

// NewBuilder returns a Builder with a fixed, non-secret master key
// (suitable only for tests) and the given config format version.
func NewBuilder(version int) *Builder {
	mk := &vcrypto.MasterKey{}
	for i := range mk.Enc {
		mk.Enc[i] = byte(i*7 + 1)
	}
	for i := range mk.MACK {
		mk.MACK[i] = byte(i*5 + 2)
	}
	for i := range mk.MACR {
		mk.MACR[i] = byte(i*3 + 3)
	}
	return &Builder{
		Store:     memstore.New(),
		MasterKey: mk,
		Version:   version,
	}
}

// nextIV returns a fresh, distinct 16-byte IV for each envelope sealed by
// this builder.
func (b *Builder) nextIV() [16]byte {
	b.ivCounter++
	var iv [16]byte
	binary.BigEndian.PutUint64(iv[8:], b.ivCounter)
	return iv
}

func (b *Builder) seal(plaintext []byte) []byte {
	envelope, err := vcrypto.Seal(b.MasterKey, b.nextIV(), plaintext)
	if err != nil {
		panic(err)
	}
	return envelope
}

// AddKeyFile writes a keys/ object that unlocks b.MasterKey under
// password, returning the key-file's object key.
func (b *Builder) AddKeyFile(id, password string, N, r, p int, salt []byte) string {
	userKey, err := vcrypto.DeriveUserKey(password, salt, N, r, p)
	if err != nil {
		panic(err)
	}

	mkJSON := fmt.Sprintf(
		`{"mac":{"k":"%s","r":"%s"},"encrypt":"%s"}`,
		base64.StdEncoding.EncodeToString(b.MasterKey.MACK[:]),
		base64.StdEncoding.EncodeToString(b.MasterKey.MACR[:]),
		base64.StdEncoding.EncodeToString(b.MasterKey.Enc[:]),
	)
	dataEnvelope, err := vcrypto.Seal(userKey, b.nextIV(), []byte(mkJSON))
	if err != nil {
		panic(err)
	}

	keyFile := map[string]interface{}{
		"created":  "2024-01-01T00:00:00Z",
		"username": "tester",
		"hostname": "fixture",
		"kdf":      "scrypt",
		"N":        N,
		"r":        r,
		"p":        p,
		"salt":     base64.StdEncoding.EncodeToString(salt),
		"data":     base64.StdEncoding.EncodeToString(dataEnvelope),
	}
	body, err := json.Marshal(keyFile)
	if err != nil {
		panic(err)
	}
	key := "keys/" + id
	b.Store.Put(key, body)
	return key
}

// SetConfig writes the repository's config object.
func (b *Builder) SetConfig(id, chunkerPolynomial string) {
	cfg := map[string]interface{}{
		"version":            b.Version,
		"id":                 id,
		"chunker_polynomial": chunkerPolynomial,
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		panic(err)
	}
	b.Store.Put("config", b.seal(body))
}

// BlobSpec describes one blob to place into a pack.
type BlobSpec struct {
	Type      blobindex.BlobType
	Plaintext []byte
	Compress  bool
}

// PackedBlob is the result of packing one BlobSpec: its content address
// and where it landed.
type PackedBlob struct {
	ID  rid.ID
	Loc blobindex.Location
}

// AddPack encrypts and concatenates blobs into one pack object, encrypts
// and appends the trailing header, and writes the object to the store.
// It returns the pack ID and each blob's resolved location.
func (b *Builder) AddPack(blobs []BlobSpec) (rid.ID, []PackedBlob) {
	packID := rid.ID(vcrypto.HashID(b.seal([]byte(fmt.Sprintf("pack-nonce-%d", b.ivCounter)))))

	var body []byte
	var headerEntries []byte
	results := make([]PackedBlob, 0, len(blobs))

	for _, spec := range blobs {
		id := vcrypto.HashID(spec.Plaintext)

		var stored []byte
		var uncompressedLen *int64
		var typeByte byte
		if spec.Compress {
			compressed, err := vcodec.Compress(spec.Plaintext)
			if err != nil {
				panic(err)
			}
			stored = compressed
			n := int64(len(spec.Plaintext))
			uncompressedLen = &n
			if spec.Type == blobindex.TypeTree {
				typeByte = 3
			} else {
				typeByte = 2
			}
		} else {
			stored = spec.Plaintext
			if spec.Type == blobindex.TypeTree {
				typeByte = 1
			} else {
				typeByte = 0
			}
		}

		envelope := b.seal(stored)
		offset := int64(len(body))
		length := int64(len(envelope))
		body = append(body, envelope...)

		headerEntries = append(headerEntries, typeByte)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(length))
		headerEntries = append(headerEntries, lenBuf[:]...)
		if spec.Compress {
			var uLenBuf [4]byte
			binary.LittleEndian.PutUint32(uLenBuf[:], uint32(*uncompressedLen))
			headerEntries = append(headerEntries, uLenBuf[:]...)
		}
		headerEntries = append(headerEntries, id[:]...)

		results = append(results, PackedBlob{
			ID: id,
			Loc: blobindex.Location{
				PackID:             packID,
				Offset:             offset,
				Length:             length,
				UncompressedLength: uncompressedLen,
				Type:               spec.Type,
			},
		})
	}

	headerEnvelope := b.seal(headerEntries)
	body = append(body, headerEnvelope...)

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], uint32(len(headerEnvelope)))
	body = append(body, trailer[:]...)

	key := fmt.Sprintf("data/%s/%s", packID.ShardPrefix(), packID.String())
	b.Store.Put(key, body)

	return packID, results
}

// AddIndex writes an index/ object referencing the given packed blobs,
// optionally superseding earlier index IDs. The object is stored under
// "index/" + id.
func (b *Builder) AddIndex(id string, supersedes []string, blobs []PackedBlob) {
	type blobJSON struct {
		ID                 string `json:"id"`
		Type               string `json:"type"`
		Offset             int64  `json:"offset"`
		Length             int64  `json:"length"`
		UncompressedLength *int64 `json:"uncompressed_length,omitempty"`
	}
	type packJSON struct {
		ID    string     `json:"id"`
		Blobs []blobJSON `json:"blobs"`
	}

	byPack := make(map[rid.ID][]blobJSON)
	var order []rid.ID
	for _, pb := range blobs {
		if _, ok := byPack[pb.Loc.PackID]; !ok {
			order = append(order, pb.Loc.PackID)
		}
		typeName := "data"
		if pb.Loc.Type == blobindex.TypeTree {
			typeName = "tree"
		}
		byPack[pb.Loc.PackID] = append(byPack[pb.Loc.PackID], blobJSON{
			ID:                 pb.ID.String(),
			Type:               typeName,
			Offset:             pb.Loc.Offset,
			Length:             pb.Loc.Length,
			UncompressedLength: pb.Loc.UncompressedLength,
		})
	}

	doc := struct {
		Supersedes []string   `json:"supersedes,omitempty"`
		Packs      []packJSON `json:"packs"`
	}{Supersedes: supersedes}
	for _, packID := range order {
		doc.Packs = append(doc.Packs, packJSON{ID: packID.String(), Blobs: byPack[packID]})
	}

	body, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	b.Store.Put("index/"+id, b.seal(body))
}

// AddSnapshot writes a snapshots/ object.
func (b *Builder) AddSnapshot(id string, timeRFC3339 string, tree rid.ID, paths []string) {
	snap := map[string]interface{}{
		"time":  timeRFC3339,
		"tree":  tree.String(),
		"paths": paths,
	}
	body, err := json.Marshal(snap)
	if err != nil {
		panic(err)
	}
	b.Store.Put("snapshots/"+id, b.seal(body))
}
