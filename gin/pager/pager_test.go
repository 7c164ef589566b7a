package pager

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gincheck/gincheck/gin"
)

func createFile(t *testing.T, pages int) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.dat")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	buf := make([]byte, gin.PageSize*pages)
	for i := 0; i < pages; i++ {
		binary.BigEndian.PutUint64(buf[i*gin.PageSize:], uint64(1000+i))
	}
	_, err = f.Write(buf)
	require.NoError(t, err)
	return f
}

func TestPageCount(t *testing.T) {
	f := createFile(t, 3)
	t.Cleanup(func() { f.Close() })

	p := Open(f)
	count, err := p.PageCount()
	require.NoError(t, err)
	assert.Equal(t, gin.BlockNumber(3), count)
}

func TestReadSharedReturnsPageAndLSN(t *testing.T) {
	f := createFile(t, 2)
	t.Cleanup(func() { f.Close() })

	p := Open(f)
	guard, err := p.ReadShared(context.Background(), "my_idx", 1)
	require.NoError(t, err)
	defer guard.Release()

	assert.Equal(t, uint64(1001), guard.LSN)
	assert.Len(t, guard.Data, gin.PageSize)
}

func TestReadSharedRejectsBlockPastEnd(t *testing.T) {
	f := createFile(t, 1)
	t.Cleanup(func() { f.Close() })

	p := Open(f)
	_, err := p.ReadShared(context.Background(), "my_idx", 5)
	require.Error(t, err)

	var ce *gin.CheckError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, gin.KindIO, ce.Kind)
}

func TestReadSharedRejectsCancelledContext(t *testing.T) {
	f := createFile(t, 1)
	t.Cleanup(func() { f.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Open(f)
	_, err := p.ReadShared(ctx, "my_idx", 0)
	assert.Error(t, err)
}

func TestPageGuardReleaseIsIdempotent(t *testing.T) {
	g := &PageGuard{Data: make([]byte, gin.PageSize)}
	g.Release()
	g.Release()

	var nilGuard *PageGuard
	assert.NotPanics(t, func() { nilGuard.Release() })
}
