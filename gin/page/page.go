// Package page decodes the raw bytes a pager hands back into a typed,
// buffer-free view of one index page: its trailer flags, right-sibling link,
// and item directory. It also runs the page-level sanity checks spec.md §4.2
// requires before anything else touches the page. Nothing in this package
// holds a page buffer across calls — every function takes raw bytes and
// returns plain values.
package page

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/gincheck/gincheck/gin"
)

// trailerSize is the fixed footer every page carries: checksum, flags,
// padding, right-sibling link, padding. Grounded on the flag-byte + count +
// directory layout in _examples/other_examples/Revolution1-sidb__page.go,
// widened with a right-link field the way a real slotted B-tree page needs.
const trailerSize = 16
const headerSize = 10 // LSN (8) + item count (2)
const slotSize = 4     // directory entry: offset(2) + length(2)

// Page is a decoded, read-only view over one page's bytes. Item() copies out
// a single item's bytes; the backing raw slice is never exposed past Decode.
type Page struct {
	raw       []byte
	lsn       uint64
	flags     gin.PageFlags
	rightLink gin.BlockNumber
	itemCount int
}

// Decode parses a page's trailer and item directory. It performs the
// "generic page check" (size + directory bounds) but not the deleted/density
// checks — those are Sanity's job, run separately so Decode stays pure.
func Decode(raw []byte) (*Page, error) {
	if len(raw) != gin.PageSize {
		return nil, errors.Errorf("page has wrong size %d, expected %d", len(raw), gin.PageSize)
	}

	lsn := binary.BigEndian.Uint64(raw[0:8])
	itemCount := int(binary.BigEndian.Uint16(raw[8:10]))

	trailer := raw[len(raw)-trailerSize:]
	flags := gin.PageFlags(binary.BigEndian.Uint16(trailer[4:6]))
	rightLink := gin.BlockNumber(binary.BigEndian.Uint32(trailer[8:12]))

	dirEnd := headerSize + itemCount*slotSize
	if dirEnd > len(raw)-trailerSize {
		return nil, errors.Errorf("item directory with %d entries overruns page bounds", itemCount)
	}

	p := &Page{raw: raw, lsn: lsn, flags: flags, rightLink: rightLink, itemCount: itemCount}
	for i := 0; i < itemCount; i++ {
		off, length := p.slot(i)
		if int(off)+int(length) > len(raw)-trailerSize || int(off) < dirEnd {
			return nil, errors.Errorf("item %d has out-of-bounds slot (offset %d, length %d)", i, off, length)
		}
	}
	return p, nil
}

func (p *Page) slot(i int) (offset, length uint16) {
	base := headerSize + i*slotSize
	offset = binary.BigEndian.Uint16(p.raw[base : base+2])
	length = binary.BigEndian.Uint16(p.raw[base+2 : base+4])
	return
}

// LSN is the page's log-sequence number as observed at read time.
func (p *Page) LSN() uint64 { return p.lsn }

// ItemCount is the page's live-tuple count (I8 checks this directly).
func (p *Page) ItemCount() int { return p.itemCount }

// Item returns a copy of item i's raw bytes.
func (p *Page) Item(i int) []byte {
	off, length := p.slot(i)
	out := make([]byte, length)
	copy(out, p.raw[off:int(off)+int(length)])
	return out
}

// ItemLength returns the on-disk length item i declares in the directory,
// for I7's comparison against the tuple's self-declared size.
func (p *Page) ItemLength(i int) int {
	_, length := p.slot(i)
	return int(length)
}

func (p *Page) IsLeaf() bool    { return p.flags.Has(gin.FlagLeaf) }
func (p *Page) Compressed() bool { return p.flags.Has(gin.FlagCompressed) }
func (p *Page) IsDeleted() bool { return p.flags.Has(gin.FlagDeleted) }
func (p *Page) IsData() bool    { return p.flags.Has(gin.FlagData) }
func (p *Page) RightMost() bool { return p.flags.Has(gin.FlagRightMost) }
func (p *Page) RightLink() gin.BlockNumber {
	return p.rightLink
}

// Kind classifies the page for dispatch. A page with the deleted flag set is
// reported as KindDeletedLeaf regardless of its item count and its leaf and
// data flags, since deletion always collapses a page to a leaf (I6); Sanity
// is what rejects a deleted page that is not an empty leaf.
func (p *Page) Kind() gin.PageKind {
	switch {
	case p.IsDeleted():
		return gin.KindDeletedLeaf
	case p.IsData() && p.IsLeaf():
		return gin.KindDataLeaf
	case p.IsData() && !p.IsLeaf():
		return gin.KindDataInternal
	case !p.IsData() && p.IsLeaf():
		return gin.KindEntryLeaf
	default:
		return gin.KindEntryInternal
	}
}

// Sanity enforces I6 and I8. maxTuplesPerPage <= 0 means
// gin.DefaultMaxTuplesPerPage.
func Sanity(indexName string, block gin.BlockNumber, p *Page, maxTuplesPerPage int) error {
	if maxTuplesPerPage <= 0 {
		maxTuplesPerPage = gin.DefaultMaxTuplesPerPage
	}

	if p.IsDeleted() {
		if !p.IsLeaf() {
			return corruption(indexName, block, "deleted internal page")
		}
		if p.ItemCount() != 0 {
			return corruption(indexName, block, "deleted page with %d tuples", p.ItemCount())
		}
		return nil
	}

	if p.ItemCount() > maxTuplesPerPage {
		return corruption(indexName, block, "page exceeds configured tuple density (%d > %d)", p.ItemCount(), maxTuplesPerPage)
	}
	return nil
}

func corruption(indexName string, block gin.BlockNumber, format string, args ...any) *gin.CheckError {
	e := &gin.CheckError{
		Kind:      gin.KindStructuralCorruption,
		IndexName: indexName,
		Block:     block,
	}
	e.Message = errors.Errorf(format, args...).Error()
	return e
}
