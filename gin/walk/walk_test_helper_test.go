package walk

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gincheck/gincheck/gin"
	"github.com/gincheck/gincheck/gin/pager"
	"github.com/gincheck/gincheck/gin/state"
)

const (
	testHeaderSize  = 10
	testSlotSize    = 4
	testTrailerSize = 16
)

// rawPage assembles one page's bytes the same way ginbuild's builder does,
// duplicated here so this package's tests don't need to import ginbuild
// (which imports gin, which imports this package — an import cycle).
func rawPage(t *testing.T, flags gin.PageFlags, rightLink gin.BlockNumber, items [][]byte) []byte {
	t.Helper()
	buf := make([]byte, gin.PageSize)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(items)))

	cursor := testHeaderSize + len(items)*testSlotSize
	for i, it := range items {
		require.LessOrEqual(t, cursor+len(it), gin.PageSize-testTrailerSize)
		binary.BigEndian.PutUint16(buf[testHeaderSize+i*testSlotSize:testHeaderSize+i*testSlotSize+2], uint16(cursor))
		binary.BigEndian.PutUint16(buf[testHeaderSize+i*testSlotSize+2:testHeaderSize+i*testSlotSize+4], uint16(len(it)))
		copy(buf[cursor:cursor+len(it)], it)
		cursor += len(it)
	}
	trailer := buf[gin.PageSize-testTrailerSize:]
	binary.BigEndian.PutUint16(trailer[4:6], uint16(flags))
	binary.BigEndian.PutUint32(trailer[8:12], uint32(rightLink))
	return buf
}

// newTestEnv writes pages (indexed by block number, 0 reserved for meta) to
// a temp file and returns an Env ready to drive at a chosen block.
func newTestEnv(t *testing.T, pages map[gin.BlockNumber][]byte) *Env {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.dat")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	max := gin.BlockNumber(0)
	for b := range pages {
		if b > max {
			max = b
		}
	}
	for b := gin.BlockNumber(0); b <= max; b++ {
		data, ok := pages[b]
		if !ok {
			data = make([]byte, gin.PageSize)
		}
		_, err := f.WriteAt(data, int64(b)*gin.PageSize)
		require.NoError(t, err)
	}

	return &Env{
		IndexName: "t",
		Pager:     pager.Open(f),
		Cmp:       state.ScalarComparator{},
	}
}
