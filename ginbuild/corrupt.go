package ginbuild

import "encoding/binary"

// The corruption helpers below poke a fixture's raw page bytes directly,
// the same way spec.md §8 scenarios 5 and 6 describe injecting a fault: "on
// any leaf page, swap two adjacent entry tuples" and "flip a leaf page's
// flag to look internal". They operate after WriteTemp/OpenAsIndex would
// normally run, so callers read the file back out, mutate one page, and
// write it back before checking.

// SwapDirectorySlots exchanges the item-directory entries at index i and j
// on a decoded page's raw bytes, leaving the underlying item bytes
// untouched. This reorders what a scan of the page observes without
// touching any tuple's own encoded content, producing an I4 ordering
// violation.
func SwapDirectorySlots(raw []byte, i, j int) {
	a := headerSize + i*slotSize
	b := headerSize + j*slotSize
	var tmp [slotSize]byte
	copy(tmp[:], raw[a:a+slotSize])
	copy(raw[a:a+slotSize], raw[b:b+slotSize])
	copy(raw[b:b+slotSize], tmp[:])
}

// ClearLeafFlag flips a page's leaf bit off, making a page that is actually
// a leaf report itself as internal — used to manufacture an I2 (kind
// homogeneity) or I3 (empty internal page) violation.
func ClearLeafFlag(raw []byte, flagLeaf uint16) {
	trailer := raw[len(raw)-trailerSize:]
	flags := binary.BigEndian.Uint16(trailer[4:6])
	flags &^= flagLeaf
	binary.BigEndian.PutUint16(trailer[4:6], flags)
}

// OverrideItemCount rewrites a page's header item count, independent of its
// actual directory contents, to test how the checker's directory-bounds
// validation reacts to a header that disagrees with reality.
func OverrideItemCount(raw []byte, count uint16) {
	binary.BigEndian.PutUint16(raw[8:10], count)
}
