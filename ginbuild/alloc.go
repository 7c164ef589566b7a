package ginbuild

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/gincheck/gincheck/gin"
)

// allocator hands out block numbers and assembles page bytes. Blocks 0 and 1
// are reserved up front: block 0 for the (unused) meta page, block 1 for the
// entry-tree root, which is always relabeled into place once bulk-loading
// finds out what the final root page actually is.
//
// Build runs one posting-tree build per large group concurrently (see the
// errgroup loop in Build, build.go), so every method here takes mu:
// allocator is the only state those goroutines share.
type allocator struct {
	mu         sync.Mutex
	finalPages map[gin.BlockNumber][]byte
	stagedItem map[gin.BlockNumber][][]byte
	stagedFlag map[gin.BlockNumber]gin.PageFlags
	next       gin.BlockNumber
	max        gin.BlockNumber
}

func newAllocator() *allocator {
	return &allocator{
		finalPages: map[gin.BlockNumber][]byte{},
		stagedItem: map[gin.BlockNumber][][]byte{},
		stagedFlag: map[gin.BlockNumber]gin.PageFlags{},
		next:       2,
		max:        gin.RootBlockNumber,
	}
}

// alloc reserves the next free block number without writing anything to it.
func (a *allocator) alloc() gin.BlockNumber {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.next
	a.next++
	if b > a.max {
		a.max = b
	}
	return b
}

// set writes a fully-assembled page directly, bypassing the stage/commit
// two-phase build (used for the meta page and the empty-index root).
func (a *allocator) set(block gin.BlockNumber, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalPages[block] = data
	if block > a.max {
		a.max = block
	}
}

// stage records a block's item payload before its flags and right-link are
// known; linkChain fills those in once a whole level's block order exists.
func (a *allocator) stage(block gin.BlockNumber, items [][]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stagedItem[block] = items
}

// setStagedFlags ORs extra flags (e.g. FlagCompressed) onto a staged block,
// ahead of the base flags linkChain applies when it commits the level.
func (a *allocator) setStagedFlags(block gin.BlockNumber, flags gin.PageFlags) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stagedFlag[block] |= flags
}

func (a *allocator) stagedFlags(block gin.BlockNumber) gin.PageFlags {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stagedFlag[block]
}

// commit assembles a staged block's final page bytes now that its flags and
// right-link are decided.
func (a *allocator) commit(block gin.BlockNumber, flags gin.PageFlags, rightLink gin.BlockNumber) error {
	a.mu.Lock()
	items := a.stagedItem[block]
	a.mu.Unlock()

	data, err := assemblePage(flags, rightLink, 0, items)
	if err != nil {
		return errors.Wrapf(err, "assembling block %d", block)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalPages[block] = data
	delete(a.stagedItem, block)
	delete(a.stagedFlag, block)
	return nil
}

// relabel copies the committed page at from into to, used once at the end of
// entry-tree bulk-loading to move the final collapsed root into the fixed
// root block number. The original block is left in place as an unreachable
// duplicate; nothing in a freshly-built fixture ever addresses it.
func (a *allocator) relabel(from, to gin.BlockNumber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalPages[to] = a.finalPages[from]
	if to > a.max {
		a.max = to
	}
}

func (a *allocator) finish() *Fixture {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &Fixture{pages: a.finalPages, max: a.max}
}

// assemblePage lays out one page exactly the way gin/page.Decode expects to
// read it back: a 10-byte header (LSN + item count), a 4-byte directory slot
// per item, item bytes packed immediately after the directory, and a
// 16-byte trailer carrying flags at [4:6] and the right-sibling link at
// [8:12].
func assemblePage(flags gin.PageFlags, rightLink gin.BlockNumber, lsn uint64, items [][]byte) ([]byte, error) {
	buf := make([]byte, gin.PageSize)
	binary.BigEndian.PutUint64(buf[0:8], lsn)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(items)))

	dirBase := headerSize
	cursor := dirBase + len(items)*slotSize
	limit := gin.PageSize - trailerSize

	for i, it := range items {
		if cursor+len(it) > limit {
			return nil, errors.Errorf("page overflow: item %d does not fit (%d items total)", i, len(items))
		}
		binary.BigEndian.PutUint16(buf[dirBase+i*slotSize:dirBase+i*slotSize+2], uint16(cursor))
		binary.BigEndian.PutUint16(buf[dirBase+i*slotSize+2:dirBase+i*slotSize+4], uint16(len(it)))
		copy(buf[cursor:cursor+len(it)], it)
		cursor += len(it)
	}

	trailer := buf[gin.PageSize-trailerSize:]
	binary.BigEndian.PutUint16(trailer[4:6], uint16(flags))
	binary.BigEndian.PutUint32(trailer[8:12], uint32(rightLink))
	return buf, nil
}
