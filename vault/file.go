package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/coldvault/coldvault/blobindex"
	"github.com/coldvault/coldvault/rid"
	"github.com/coldvault/coldvault/vaulterrors"
)

// prefetchWindow bounds how far ahead of the consumer the reader may fetch
// content blobs, per the spec's "MAY be prefetched up to a small window
// (e.g., 4) ahead of consumption" — delivery order is always strictly
// sequential regardless of fetch completion order.
const prefetchWindow = 4

// fetchedChunk is one content blob's fetch outcome, tagged with its
// position so the reorder stage can deliver chunks in content order
// regardless of which fetch finished first.
type fetchedChunk struct {
	index int
	data  []byte
	err   error
}

// ReadFile returns the byte stream for a file node: its content blobs
// concatenated in order. If node.Size is set and the delivered byte count
// disagrees, the reader's final Read returns vaulterrors.ErrSizeMismatch
// after all bytes have been delivered (the mismatch is a trailer on an
// otherwise-complete read, not a truncation).
func (r *Repository) ReadFile(ctx context.Context, node *Node) (io.ReadCloser, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	if node.Type != NodeFile {
		return nil, fmt.Errorf("%s: %w", node.Name, vaulterrors.ErrNotAFile)
	}

	ids, err := node.Content()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if node.Size != nil && *node.Size != 0 {
			pr, pw := io.Pipe()
			pw.CloseWithError(fmt.Errorf("vault: got 0 bytes, want %d: %w", *node.Size, vaulterrors.ErrSizeMismatch))
			return pr, nil
		}
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	fctx, cancel := context.WithCancel(ctx)
	pipeReader, pipeWriter := io.Pipe()

	jobs := make(chan int)
	results := make(chan fetchedChunk, prefetchWindow)

	concurrency := prefetchWindow
	if concurrency > len(ids) {
		concurrency = len(ids)
	}

	var workers sync.WaitGroup
	workers.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer workers.Done()
			for idx := range jobs {
				data, err := r.fetchContentBlob(fctx, ids[idx])
				select {
				case results <- fetchedChunk{index: idx, data: data, err: err}:
				case <-fctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range ids {
			select {
			case jobs <- i:
			case <-fctx.Done():
				return
			}
		}
	}()
	go func() {
		workers.Wait()
		close(results)
	}()

	go reorderAndWrite(fctx, pipeWriter, results, len(ids), node.Size)

	return &fileReader{pipeReader: pipeReader, cancel: cancel}, nil
}

func (r *Repository) fetchContentBlob(ctx context.Context, id rid.ID) ([]byte, error) {
	loc, err := r.index.Find(ctx, id, blobindex.TypeData)
	if err != nil {
		return nil, err
	}
	return r.packs.Get(ctx, id, loc)
}

func reorderAndWrite(ctx context.Context, w *io.PipeWriter, results <-chan fetchedChunk, total int, expectedSize *int64) {
	buffer := make(map[int][]byte)
	next := 0
	var written int64

	for received := 0; received < total; {
		select {
		case chunk, ok := <-results:
			if !ok {
				w.CloseWithError(fmt.Errorf("vault: content channel closed early"))
				return
			}
			if chunk.err != nil {
				w.CloseWithError(chunk.err)
				return
			}
			buffer[chunk.index] = chunk.data
			received++
		case <-ctx.Done():
			w.CloseWithError(ctx.Err())
			return
		}

		for {
			data, ok := buffer[next]
			if !ok {
				break
			}
			if _, err := w.Write(data); err != nil {
				w.CloseWithError(err)
				return
			}
			written += int64(len(data))
			delete(buffer, next)
			next++
		}
	}

	if expectedSize != nil && written != *expectedSize {
		w.CloseWithError(fmt.Errorf("vault: got %d bytes, want %d: %w", written, *expectedSize, vaulterrors.ErrSizeMismatch))
		return
	}
	w.Close()
}

// fileReader adapts the reorder pipe to io.ReadCloser, cancelling the
// fetch workers on Close so an abandoned read doesn't keep fetching.
type fileReader struct {
	pipeReader *io.PipeReader
	cancel     context.CancelFunc
}

func (f *fileReader) Read(p []byte) (int, error) {
	return f.pipeReader.Read(p)
}

func (f *fileReader) Close() error {
	f.cancel()
	return f.pipeReader.Close()
}
