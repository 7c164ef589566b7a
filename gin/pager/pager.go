// Package pager is the page accessor (spec.md §4.1): it obtains a
// shared-locked, read-pinned view of a page by block number from the index's
// main fork and returns the raw bytes plus the atomically-observed page LSN.
// It is adapted from the teacher's buffer pool (buffer/bufferpool_manager.go,
// buffer/page_guard.go, buffer/frame.go) and single-file disk manager
// (storage/disk/disk_manager.go), narrowed to the read-only, shared-lock-only
// subset the verifier needs: there is no dirty tracking, no eviction, and no
// write path, because the verifier "must not modify the index" (spec.md §1).
package pager

import (
	"context"
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/gincheck/gincheck/gin"
)

// Pager reads fixed-size pages from a single backing file, standing in for
// the host's buffer manager + relation main fork. A real host implementation
// would instead satisfy this same shape against shared buffers; this module
// ships a standalone one so it can build and check fixtures without a host.
type Pager struct {
	mu   sync.Mutex
	file *os.File
	// SequentialHint mirrors the bulk-read access-pattern hint spec.md §4.1
	// describes; this standalone pager has no prefetch cache to tune, but
	// keeps the field so callers matching the real collaborator interface
	// compile unchanged.
	SequentialHint bool
}

// Open wraps an already-open file handle positioned at the index's main
// fork. The caller retains ownership of the file (mirrors the teacher's
// disk.NewManager(file *os.File) constructor shape).
func Open(file *os.File) *Pager {
	return &Pager{file: file}
}

// PageGuard is a released-once, scoped handle on one page's bytes. Its
// Release is idempotent and safe on every exit path, including panics via
// defer, mirroring ReadPageGuard.Drop in the teacher's buffer package.
type PageGuard struct {
	Data []byte
	LSN  uint64

	released bool
}

// Release unpins the page. Calling it more than once, or on a nil guard, is
// a no-op — callers are expected to `defer guard.Release()` immediately after
// every ReadShared call without tracking whether an earlier return path
// already released it.
func (g *PageGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
}

// PageCount reports how many fixed-size pages currently exist in the file,
// used to bounds-check a block number before attempting to read it.
func (p *Pager) PageCount() (gin.BlockNumber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := p.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat index file")
	}
	return gin.BlockNumber(info.Size() / gin.PageSize), nil
}

// ReadShared reads one page from the main fork under a conceptual shared
// lock (this standalone pager has no writer to contend with, so the lock is
// a no-op placeholder for the host collaborator's lock_shared(handle)) and
// returns its bytes and LSN. Every exit path from the caller must release
// the returned guard; ReadShared itself never holds the page past return.
func (p *Pager) ReadShared(ctx context.Context, indexName string, block gin.BlockNumber) (*PageGuard, error) {
	if err := ctx.Err(); err != nil {
		return nil, &gin.CheckError{
			Kind:      gin.KindCancelled,
			IndexName: indexName,
			Block:     gin.InvalidBlockNumber,
			Message:   "verification cancelled",
			Err:       err,
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	count, err := p.pageCountLocked()
	if err != nil {
		return nil, &gin.CheckError{Kind: gin.KindIO, IndexName: indexName, Block: block, Message: err.Error(), Err: err}
	}
	if block >= count {
		return nil, &gin.CheckError{
			Kind:      gin.KindIO,
			IndexName: indexName,
			Block:     block,
			Message:   errors.Errorf("block %d is past end of fork (%d pages)", block, count).Error(),
		}
	}

	buf := make([]byte, gin.PageSize)
	n, err := p.file.ReadAt(buf, int64(block)*gin.PageSize)
	if err != nil || n != gin.PageSize {
		return nil, &gin.CheckError{
			Kind:      gin.KindIO,
			IndexName: indexName,
			Block:     block,
			Message:   errors.Wrapf(err, "reading block %d (%d bytes read)", block, n).Error(),
		}
	}

	lsn := binary.BigEndian.Uint64(buf[0:8])
	return &PageGuard{Data: buf, LSN: lsn}, nil
}

func (p *Pager) pageCountLocked() (gin.BlockNumber, error) {
	info, err := p.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat index file")
	}
	return gin.BlockNumber(info.Size() / gin.PageSize), nil
}
