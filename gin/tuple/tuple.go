// Package tuple decodes the two on-disk record shapes the walkers operate
// on: entry tuples (key + inline posting list or posting-tree pointer) and
// posting-tree items (item-pointer key + child block, or packed leaf item
// pointers). Grounded on verify_gin.c's ginReadTupleWithoutState for the
// posting-list decode, and on the teacher's util/convert.go msgpack
// round-trip for the uncompressed fixed-width encoding.
package tuple

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/gincheck/gincheck/gin"
)

// EntryPayload is the tagged variant design note 9 requires: the walker
// dispatches on this type, never by re-inspecting a flag bit at each use
// site.
type EntryPayload interface{ isEntryPayload() }

// InlinePosting is a sorted, distinct sequence of item-pointers small enough
// to store directly in the entry tuple.
type InlinePosting struct{ Items []gin.ItemPointer }

func (InlinePosting) isEntryPayload() {}

// PostingTreeRef points at the root of an auxiliary posting tree holding a
// key's full posting list, used when it would be too large to inline.
type PostingTreeRef struct{ Root gin.BlockNumber }

func (PostingTreeRef) isEntryPayload() {}

// EntryTuple is one decoded entry-tree tuple. Downlink is only meaningful
// when the owning page is an internal entry page; on-disk, the real GIN
// format overlays the downlink onto the tuple's item-pointer slot rather
// than carrying a separate field. This module keeps the field distinct for
// clarity since it never needs byte-for-byte compatibility with a real GIN
// file, but the accessor methods below preserve the "lives in the
// item-pointer slot" framing from spec.md §3.
type EntryTuple struct {
	AttrNum  int
	Key      any
	Category gin.Category
	Payload  EntryPayload

	// DeclaredLen is the tuple's self-reported byte length, stored
	// independently of the page directory's item length so I7 (spec.md §3)
	// has two independently-recorded values to compare.
	DeclaredLen int

	downlink gin.BlockNumber
}

// Downlink returns the child block this tuple addresses. Valid only when
// read from an internal entry page.
func (t EntryTuple) Downlink() gin.BlockNumber { return t.downlink }

const entryTupleMinSize = 2 + 1 + 1 + 2 + 4 + 2 // attr + category + payloadKind + declaredLen + downlink + keyLen

// payload kind discriminants stored on disk.
const (
	payloadInline     = 0
	payloadPostingRef = 1
)

// ReadEntryTuple decodes one entry tuple from raw item bytes.
func ReadEntryTuple(raw []byte) (EntryTuple, error) {
	var t EntryTuple
	if len(raw) < entryTupleMinSize {
		return t, errors.Errorf("entry tuple truncated: %d bytes", len(raw))
	}

	attrNum := int(binary.BigEndian.Uint16(raw[0:2]))
	category := gin.Category(raw[2])
	payloadKind := raw[3]
	declaredLen := int(binary.BigEndian.Uint16(raw[4:6]))
	downlink := gin.BlockNumber(binary.BigEndian.Uint32(raw[6:10]))
	keyLen := int(binary.BigEndian.Uint16(raw[10:12]))

	cursor := 12
	if cursor+keyLen > len(raw) {
		return t, errors.Errorf("entry tuple key overruns tuple bounds")
	}
	var key any
	if err := msgpack.Unmarshal(raw[cursor:cursor+keyLen], &key); err != nil {
		return t, errors.Wrap(err, "decoding entry tuple key")
	}
	cursor += keyLen

	t = EntryTuple{AttrNum: attrNum, Key: key, Category: category, DeclaredLen: declaredLen, downlink: downlink}

	switch payloadKind {
	case payloadInline:
		if cursor+2 > len(raw) {
			return t, errors.Errorf("inline posting count overruns tuple bounds")
		}
		count := int(binary.BigEndian.Uint16(raw[cursor : cursor+2]))
		cursor += 2
		items := make([]gin.ItemPointer, 0, count)
		for i := 0; i < count; i++ {
			if cursor+6 > len(raw) {
				return t, errors.Errorf("inline posting item %d overruns tuple bounds", i)
			}
			items = append(items, decodeItemPointer(raw[cursor:cursor+6]))
			cursor += 6
		}
		t.Payload = InlinePosting{Items: items}
	case payloadPostingRef:
		if cursor+4 > len(raw) {
			return t, errors.Errorf("posting-tree ref overruns tuple bounds")
		}
		root := gin.BlockNumber(binary.BigEndian.Uint32(raw[cursor : cursor+4]))
		t.Payload = PostingTreeRef{Root: root}
	default:
		return t, errors.Errorf("unknown entry tuple payload discriminator %d", payloadKind)
	}

	return t, nil
}

// PostingItem is one internal-data-page record: a key, acting as the high
// key for its child subtree, paired with the child block it addresses.
type PostingItem struct {
	Key   gin.ItemPointer
	Child gin.BlockNumber
}

// ReadPostingItem decodes one posting item from raw item bytes.
func ReadPostingItem(raw []byte) (PostingItem, error) {
	if len(raw) < 10 {
		return PostingItem{}, errors.Errorf("posting item truncated: %d bytes", len(raw))
	}
	return PostingItem{
		Key:   decodeItemPointer(raw[0:6]),
		Child: gin.BlockNumber(binary.BigEndian.Uint32(raw[6:10])),
	}, nil
}

// CountMismatchError reports that a compressed posting list's header-declared
// item count disagrees with what the varbyte stream actually decoded to.
// Kept as a distinct type so callers can classify it as a decoding-mismatch
// error rather than generic structural corruption (spec.md §7).
type CountMismatchError struct {
	Declared, Decoded int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("number of items mismatch in posting leaf, %d in header, %d decoded", e.Declared, e.Decoded)
}

// ReadPostingLeaf decodes a posting-leaf page's payload, which this module
// stores as the page's single item (index 0). It handles both encodings:
// the uncompressed fixed-width array (msgpack of []gin.ItemPointer) and the
// compressed varbyte-delta stream. For the compressed form, the
// header-declared count must equal the decoded count exactly, or a
// *CountMismatchError is raised (spec.md §4.3).
func ReadPostingLeaf(raw []byte, compressed bool) ([]gin.ItemPointer, error) {
	if !compressed {
		var items []gin.ItemPointer
		if len(raw) == 0 {
			return items, nil
		}
		if err := msgpack.Unmarshal(raw, &items); err != nil {
			return nil, errors.Wrap(err, "decoding uncompressed posting leaf")
		}
		return items, nil
	}

	if len(raw) < 2 {
		return nil, errors.Errorf("compressed posting leaf truncated: %d bytes", len(raw))
	}
	declared := int(binary.BigEndian.Uint16(raw[0:2]))
	decoded, err := decodeVarbyteDeltas(raw[2:])
	if err != nil {
		return nil, err
	}
	if declared != len(decoded) {
		return nil, &CountMismatchError{Declared: declared, Decoded: len(decoded)}
	}
	return decoded, nil
}

func decodeItemPointer(b []byte) gin.ItemPointer {
	return gin.ItemPointer{
		Block:  gin.BlockNumber(binary.BigEndian.Uint32(b[0:4])),
		Offset: binary.BigEndian.Uint16(b[4:6]),
	}
}

func encodeItemPointer(ip gin.ItemPointer) [6]byte {
	var b [6]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(ip.Block))
	binary.BigEndian.PutUint16(b[4:6], ip.Offset)
	return b
}

// combined folds an item pointer into one monotonic uint64 so the varbyte
// codec can delta-encode across the (block, offset) pair as a single value,
// the same trick the original GIN posting-list compressor uses internally.
func combined(ip gin.ItemPointer) uint64 {
	return uint64(ip.Block)<<16 | uint64(ip.Offset)
}

func uncombine(v uint64) gin.ItemPointer {
	return gin.ItemPointer{Block: gin.BlockNumber(v >> 16), Offset: uint16(v & 0xFFFF)}
}

// EncodeVarbyteDeltas is exported for ginbuild's fixture writer: it produces
// the delta stream that ReadPostingLeaf's compressed path consumes after its
// 2-byte item-count prefix. The prefix itself is not written here; callers
// prepend it.
func EncodeVarbyteDeltas(items []gin.ItemPointer) []byte {
	out := make([]byte, 0, len(items)*2)
	var prev uint64
	buf := make([]byte, binary.MaxVarintLen64)
	for i, ip := range items {
		v := combined(ip)
		delta := v
		if i > 0 {
			delta = v - prev
		}
		n := binary.PutUvarint(buf, delta)
		out = append(out, buf[:n]...)
		prev = v
	}
	return out
}

func decodeVarbyteDeltas(b []byte) ([]gin.ItemPointer, error) {
	var out []gin.ItemPointer
	var acc uint64
	for len(b) > 0 {
		delta, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, errors.Errorf("malformed varbyte delta stream")
		}
		b = b[n:]
		if len(out) == 0 {
			acc = delta
		} else {
			acc += delta
		}
		out = append(out, uncombine(acc))
	}
	return out, nil
}

// EncodeEntryTuple serializes t, stamping DeclaredLen with the tuple's real
// encoded length so I7 holds by construction. Use
// EncodeEntryTupleCorruptLen to build an I7-violating fixture.
func EncodeEntryTuple(t EntryTuple) ([]byte, error) {
	return EncodeEntryTupleCorruptLen(t, -1)
}

// EncodeEntryTupleCorruptLen serializes t the same way EncodeEntryTuple
// does, but stamps DeclaredLen with overrideLen instead of the tuple's real
// length when overrideLen >= 0 — used by tests to build an I7-violating tuple.
func EncodeEntryTupleCorruptLen(t EntryTuple, overrideLen int) ([]byte, error) {
	keyBytes, err := msgpack.Marshal(t.Key)
	if err != nil {
		return nil, errors.Wrap(err, "encoding entry tuple key")
	}

	out := make([]byte, 12, 12+len(keyBytes)+16)
	binary.BigEndian.PutUint16(out[0:2], uint16(t.AttrNum))
	out[2] = byte(t.Category)
	binary.BigEndian.PutUint32(out[6:10], uint32(t.downlink))
	binary.BigEndian.PutUint16(out[10:12], uint16(len(keyBytes)))
	out = append(out, keyBytes...)

	switch p := t.Payload.(type) {
	case InlinePosting:
		out[3] = payloadInline
		countBytes := make([]byte, 2)
		binary.BigEndian.PutUint16(countBytes, uint16(len(p.Items)))
		out = append(out, countBytes...)
		for _, ip := range p.Items {
			b := encodeItemPointer(ip)
			out = append(out, b[:]...)
		}
	case PostingTreeRef:
		out[3] = payloadPostingRef
		rootBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(rootBytes, uint32(p.Root))
		out = append(out, rootBytes...)
	default:
		return nil, errors.Errorf("unknown entry payload type %T", t.Payload)
	}

	declared := len(out)
	if overrideLen >= 0 {
		declared = overrideLen
	}
	binary.BigEndian.PutUint16(out[4:6], uint16(declared))
	return out, nil
}

// WithDownlink returns a copy of t carrying the given downlink block,
// used by ginbuild when assembling internal entry pages.
func WithDownlink(t EntryTuple, block gin.BlockNumber) EntryTuple {
	t.downlink = block
	return t
}

// EncodePostingItem is exported for ginbuild's fixture writer.
func EncodePostingItem(p PostingItem) []byte {
	out := make([]byte, 10)
	b := encodeItemPointer(p.Key)
	copy(out[0:6], b[:])
	binary.BigEndian.PutUint32(out[6:10], uint32(p.Child))
	return out
}
