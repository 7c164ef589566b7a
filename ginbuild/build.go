// Package ginbuild is the in-repo replacement for the out-of-scope
// "test-harness population SQL" (spec.md §1): it bulk-builds a
// self-consistent, on-disk GIN index fixture — entry tree, posting trees,
// inline vs. spilled payloads, compressed vs. uncompressed posting leaves —
// so the gin and ginbuild tests and cmd/gincheck can drive gin.CheckIndex
// against a real file instead of hand-built byte arrays. It is a builder, not a
// mutator: nothing here is reachable from the checker itself.
package ginbuild

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"golang.org/x/sync/errgroup"

	"github.com/gincheck/gincheck/gin"
	"github.com/gincheck/gincheck/gin/state"
	"github.com/gincheck/gincheck/gin/tuple"
)

// maxConcurrentPostingTrees bounds how many posting trees Build assembles at
// once. Large fixtures (spec.md §8's 100k-row scenarios) can produce dozens
// of independent overflowed groups; building them one at a time leaves most
// cores idle for no reason, since each posting tree only touches the shared
// allocator (itself mutex-guarded) and otherwise depends on nothing else.
const maxConcurrentPostingTrees = 8

const (
	trailerSize = 16
	headerSize  = 10
	slotSize    = 4
)

// Options controls the shape of the fixture a Builder produces.
type Options struct {
	// InlineThreshold is the largest posting list size stored inline on the
	// entry tuple; groups larger than this spill to a posting tree.
	InlineThreshold int
	// EntryPageCapacity bounds tuples per entry page (leaf or internal).
	EntryPageCapacity int
	// PostingLeafCapacity bounds item pointers per posting-leaf page.
	PostingLeafCapacity int
	// PostingInternalCapacity bounds posting items per internal data page.
	PostingInternalCapacity int
	// Compressed selects the varbyte-delta encoding for posting leaves
	// instead of the uncompressed fixed-width array.
	Compressed bool
}

// DefaultOptions mirrors the teacher's maxSize=256 convention
// (index/page.go), scaled down across the several page kinds this format
// needs so that entry and posting-tree fixtures actually span more than one
// page at the row counts spec.md §8's scenarios call for.
func DefaultOptions() Options {
	return Options{
		InlineThreshold:         8,
		EntryPageCapacity:       32,
		PostingLeafCapacity:     128,
		PostingInternalCapacity: 128,
		Compressed:              false,
	}
}

// Builder accumulates (attribute, key, category, heap pointer) entries and
// bulk-loads them into a self-consistent GIN index once Build is called.
type Builder struct {
	cmp     state.Comparator
	opts    Options
	entries []rawEntry
}

type rawEntry struct {
	attrNum  int
	key      any
	category gin.Category
	heap     gin.ItemPointer
}

// New creates a Builder that will order keys using cmp.
func New(cmp state.Comparator, opts Options) *Builder {
	return &Builder{cmp: cmp, opts: opts}
}

// Add records one (key -> heap pointer) posting for attribute attrNum.
func (b *Builder) Add(attrNum int, key any, category gin.Category, heap gin.ItemPointer) {
	b.entries = append(b.entries, rawEntry{attrNum: attrNum, key: key, category: category, heap: heap})
}

// group is one distinct (attrNum, key, category) key and its sorted,
// deduplicated posting list.
type group struct {
	attrNum  int
	key      any
	category gin.Category
	heap     []gin.ItemPointer
}

// Fixture is a fully-assembled, in-memory page image ready to be written to
// a file and opened through gin.OpenFile.
type Fixture struct {
	pages map[gin.BlockNumber][]byte
	max   gin.BlockNumber
}

// WriteTemp writes the fixture to a new temporary file and returns it open
// for reading, mirroring the teacher's CreateDbFile test helper
// (index/b_plus_tree_test.go, buffer/bufferpool_manager_test.go).
func (fx *Fixture) WriteTemp(pattern string) (*os.File, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, errors.Wrap(err, "creating fixture file")
	}
	for b := gin.BlockNumber(0); b <= fx.max; b++ {
		data, ok := fx.pages[b]
		if !ok {
			data = make([]byte, gin.PageSize)
		}
		if _, err := f.WriteAt(data, int64(b)*gin.PageSize); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, errors.Wrapf(err, "writing block %d", b)
		}
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	return f, nil
}

// Build groups the accumulated entries, decides inline-vs-posting-tree
// payloads, and bulk-loads the entry tree bottom-up.
func (b *Builder) Build() (*Fixture, error) {
	groups, err := b.groupEntries()
	if err != nil {
		return nil, err
	}

	alloc := newAllocator()
	alloc.set(gin.MetaBlockNumber, make([]byte, gin.PageSize))

	type leafGroup struct {
		attrNum  int
		key      any
		category gin.Category
		payload  tuple.EntryPayload
	}

	loaded := make([]leafGroup, len(groups))
	var eg errgroup.Group
	eg.SetLimit(maxConcurrentPostingTrees)
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			var payload tuple.EntryPayload
			if len(g.heap) <= b.opts.InlineThreshold {
				payload = tuple.InlinePosting{Items: g.heap}
			} else {
				root, err := buildPostingTree(alloc, g.heap, b.opts)
				if err != nil {
					return err
				}
				payload = tuple.PostingTreeRef{Root: root}
			}
			loaded[i] = leafGroup{attrNum: g.attrNum, key: g.key, category: g.category, payload: payload}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(loaded) == 0 {
		// Empty index: a single, empty leaf root (spec.md §8 boundary case).
		rootBytes, err := assemblePage(gin.FlagLeaf|gin.FlagRightMost, gin.InvalidBlockNumber, 0, nil)
		if err != nil {
			return nil, err
		}
		alloc.set(gin.RootBlockNumber, rootBytes)
		return alloc.finish(), nil
	}

	// Build leaf level.
	type highKey struct {
		attrNum  int
		key      any
		category gin.Category
	}
	var levelBlocks []gin.BlockNumber
	var levelHighKeys []highKey

	for start := 0; start < len(loaded); start += b.opts.EntryPageCapacity {
		end := start + b.opts.EntryPageCapacity
		if end > len(loaded) {
			end = len(loaded)
		}
		chunk := loaded[start:end]

		items := make([][]byte, 0, len(chunk))
		for _, g := range chunk {
			t := tuple.EntryTuple{AttrNum: g.attrNum, Key: g.key, Category: g.category, Payload: g.payload}
			enc, err := tuple.EncodeEntryTuple(t)
			if err != nil {
				return nil, err
			}
			items = append(items, enc)
		}
		block := alloc.alloc()
		levelBlocks = append(levelBlocks, block)
		last := chunk[len(chunk)-1]
		levelHighKeys = append(levelHighKeys, highKey{attrNum: last.attrNum, key: last.key, category: last.category})
		alloc.stage(block, items)
	}
	if err := linkChain(alloc, levelBlocks, gin.FlagLeaf); err != nil {
		return nil, err
	}

	// Build internal levels until one page remains; that page becomes the
	// root, relabeled to gin.RootBlockNumber.
	for len(levelBlocks) > 1 {
		var newBlocks []gin.BlockNumber
		var newHighKeys []highKey
		for start := 0; start < len(levelBlocks); start += b.opts.EntryPageCapacity {
			end := start + b.opts.EntryPageCapacity
			if end > len(levelBlocks) {
				end = len(levelBlocks)
			}
			items := make([][]byte, 0, end-start)
			for i := start; i < end; i++ {
				hk := levelHighKeys[i]
				t := tuple.EntryTuple{AttrNum: hk.attrNum, Key: hk.key, Category: hk.category, Payload: tuple.InlinePosting{}}
				t = tuple.WithDownlink(t, levelBlocks[i])
				enc, err := tuple.EncodeEntryTuple(t)
				if err != nil {
					return nil, err
				}
				items = append(items, enc)
			}
			block := alloc.alloc()
			newBlocks = append(newBlocks, block)
			newHighKeys = append(newHighKeys, levelHighKeys[end-1])
			alloc.stage(block, items)
		}
		if err := linkChain(alloc, newBlocks, gin.PageFlags(0)); err != nil {
			return nil, err
		}
		levelBlocks, levelHighKeys = newBlocks, newHighKeys
	}

	rootBlock := levelBlocks[0]
	alloc.relabel(rootBlock, gin.RootBlockNumber)

	return alloc.finish(), nil
}

func (b *Builder) groupEntries() ([]group, error) {
	byKey := map[string]*group{}
	var order []string
	for _, e := range b.entries {
		k := fmt.Sprintf("%d|%T|%v|%d", e.attrNum, e.key, e.key, e.category)
		g, ok := byKey[k]
		if !ok {
			g = &group{attrNum: e.attrNum, key: e.key, category: e.category}
			byKey[k] = g
			order = append(order, k)
		}
		g.heap = append(g.heap, e.heap)
	}

	groups := make([]group, 0, len(order))
	for _, k := range order {
		g := byKey[k]
		sort.Slice(g.heap, func(i, j int) bool { return g.heap[i].Compare(g.heap[j]) < 0 })
		g.heap = dedupSorted(g.heap)
		groups = append(groups, *g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return b.cmp.Compare(groups[i].attrNum, groups[i].key, groups[j].key, groups[i].category, groups[j].category) < 0
	})
	return groups, nil
}

func dedupSorted(ips []gin.ItemPointer) []gin.ItemPointer {
	if len(ips) == 0 {
		return ips
	}
	out := ips[:1]
	for _, ip := range ips[1:] {
		if ip.Compare(out[len(out)-1]) != 0 {
			out = append(out, ip)
		}
	}
	return out
}

// buildPostingTree bulk-loads a posting tree over a sorted, deduplicated
// heap-pointer list and returns its root block. The globally-rightmost
// subtree at each level is keyed with the zero item-pointer sentinel
// spec.md §4.4 step 4 describes, which the walker treats as unparticipating
// in parent-child key comparison.
func buildPostingTree(alloc *allocator, heap []gin.ItemPointer, opts Options) (gin.BlockNumber, error) {
	var leafBlocks []gin.BlockNumber
	var leafHighKeys []gin.ItemPointer

	for start := 0; start < len(heap); start += opts.PostingLeafCapacity {
		end := start + opts.PostingLeafCapacity
		if end > len(heap) {
			end = len(heap)
		}
		chunk := heap[start:end]

		var payload []byte
		flags := gin.FlagData | gin.FlagLeaf
		if opts.Compressed {
			flags |= gin.FlagCompressed
			declared := make([]byte, 2)
			binary.BigEndian.PutUint16(declared, uint16(len(chunk)))
			payload = append(declared, tuple.EncodeVarbyteDeltas(chunk)...)
		} else {
			enc, err := msgpack.Marshal(chunk)
			if err != nil {
				return 0, errors.Wrap(err, "encoding posting leaf")
			}
			payload = enc
		}

		block := alloc.alloc()
		leafBlocks = append(leafBlocks, block)
		if end == len(heap) {
			leafHighKeys = append(leafHighKeys, gin.ItemPointer{})
		} else {
			leafHighKeys = append(leafHighKeys, chunk[len(chunk)-1])
		}
		alloc.stage(block, [][]byte{payload})
		markFlags(alloc, block, flags)
	}
	// buildPostingTree is only ever called for a group whose heap already
	// exceeds InlineThreshold, so leafBlocks is always non-empty here.
	if err := linkChain(alloc, leafBlocks, gin.FlagData|gin.FlagLeaf); err != nil {
		return 0, err
	}

	levelBlocks, levelHighKeys := leafBlocks, leafHighKeys
	for len(levelBlocks) > 1 {
		var newBlocks []gin.BlockNumber
		var newHighKeys []gin.ItemPointer
		for start := 0; start < len(levelBlocks); start += opts.PostingInternalCapacity {
			end := start + opts.PostingInternalCapacity
			if end > len(levelBlocks) {
				end = len(levelBlocks)
			}
			items := make([][]byte, 0, end-start)
			for i := start; i < end; i++ {
				pi := tuple.PostingItem{Key: levelHighKeys[i], Child: levelBlocks[i]}
				items = append(items, tuple.EncodePostingItem(pi))
			}
			block := alloc.alloc()
			newBlocks = append(newBlocks, block)
			newHighKeys = append(newHighKeys, levelHighKeys[end-1])
			alloc.stage(block, items)
		}
		if err := linkChain(alloc, newBlocks, gin.FlagData); err != nil {
			return 0, err
		}
		levelBlocks, levelHighKeys = newBlocks, newHighKeys
	}
	return levelBlocks[0], nil
}

// linkChain assembles every staged block in blocks into a real page image,
// wiring RightLink to the next block in the chain and setting FlagRightMost
// on the last one.
func linkChain(alloc *allocator, blocks []gin.BlockNumber, baseFlags gin.PageFlags) error {
	for i, block := range blocks {
		flags := baseFlags | alloc.stagedFlags(block)
		rightLink := gin.InvalidBlockNumber
		if i+1 < len(blocks) {
			rightLink = blocks[i+1]
		} else {
			flags |= gin.FlagRightMost
		}
		if err := alloc.commit(block, flags, rightLink); err != nil {
			return err
		}
	}
	return nil
}

func markFlags(alloc *allocator, block gin.BlockNumber, flags gin.PageFlags) {
	alloc.setStagedFlags(block, flags)
}
