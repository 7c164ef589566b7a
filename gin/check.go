package gin

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/gincheck/gincheck/gin/pager"
	"github.com/gincheck/gincheck/gin/state"
	"github.com/gincheck/gincheck/gin/walk"
)

// IndexHandle is the collaborator interface a host supplies (spec.md §6):
// the identity/eligibility facts about the relation, a page accessor already
// scoped to its main fork, and the comparator for its indexed datatype.
type IndexHandle interface {
	Name() string
	IsGin() bool
	IsValid() bool
	IsOtherSessionTemp() bool
	HasPendingList() bool
	Pager() *pager.Pager
	Comparator() state.Comparator
}

// CheckOptions carries the one piece of per-index configuration the core
// needs beyond the handle itself: the page density ceiling I8 checks
// against. Zero means gin.DefaultMaxTuplesPerPage.
type CheckOptions struct {
	MaxTuplesPerPage int
}

// CheckIndex walks every reachable page of h and returns the first
// structural invariant violation it finds, or nil if the index is sound.
// It never modifies the index. This is the one callable operation spec.md
// §6 describes.
func CheckIndex(ctx context.Context, h IndexHandle, opts CheckOptions) error {
	if err := checkable(h); err != nil {
		return err
	}

	env := &walk.Env{
		IndexName:        h.Name(),
		Pager:            h.Pager(),
		Cmp:              h.Comparator(),
		MaxTuplesPerPage: opts.MaxTuplesPerPage,
	}
	return walk.WalkEntryTree(ctx, env)
}

// checkable mirrors verify_gin.c's gin_index_checkable: three preconditions
// on the relation, plus the pending-list precondition spec.md §9 requires
// this module to enforce rather than silently mis-verify.
func checkable(h IndexHandle) error {
	if !h.IsGin() {
		return unsupported(h.Name(), "only GIN indexes are supported as targets for this verification")
	}
	if h.IsOtherSessionTemp() {
		return unsupported(h.Name(), "cannot access temporary relations of other sessions")
	}
	if !h.IsValid() {
		return unsupported(h.Name(), "index is not valid")
	}
	if h.HasPendingList() {
		return unsupported(h.Name(), "index has a non-empty pending list; flush fast-update inserts before verifying")
	}
	return nil
}

// fileHandle is the standalone IndexHandle this module ships so it can be
// built and checked without a host database server, grounded on the
// teacher's disk.NewManager(file *os.File) constructor shape.
type fileHandle struct {
	name            string
	file            *os.File
	pgr             *pager.Pager
	cmp             state.Comparator
	otherSessionTmp bool
	pendingList     bool
	valid           bool
}

func (f *fileHandle) Name() string              { return f.name }
func (f *fileHandle) IsGin() bool               { return true }
func (f *fileHandle) IsValid() bool             { return f.valid }
func (f *fileHandle) IsOtherSessionTemp() bool  { return f.otherSessionTmp }
func (f *fileHandle) HasPendingList() bool      { return f.pendingList }
func (f *fileHandle) Pager() *pager.Pager       { return f.pgr }
func (f *fileHandle) Comparator() state.Comparator { return f.cmp }

// OpenFile opens a single-file GIN index (as ginbuild produces) for
// checking. The caller is responsible for closing the returned handle's
// file once done, via Close.
func OpenFile(path, name string, cmp state.Comparator) (*FileIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening index file")
	}
	return &FileIndex{
		fileHandle: fileHandle{
			name:  name,
			file:  f,
			pgr:   pager.Open(f),
			cmp:   cmp,
			valid: true,
		},
	}, nil
}

// FileIndex is the concrete IndexHandle OpenFile returns.
type FileIndex struct {
	fileHandle
}

// Close releases the underlying file.
func (fi *FileIndex) Close() error { return fi.file.Close() }

// SetOtherSessionTemp marks the handle as belonging to a temporary relation
// of another session, for exercising the unsupported-target path in tests.
func (fi *FileIndex) SetOtherSessionTemp(v bool) { fi.otherSessionTmp = v }

// SetPendingList marks the handle as having a non-empty pending list, for
// exercising the unsupported-target path in tests.
func (fi *FileIndex) SetPendingList(v bool) { fi.pendingList = v }

// SetInvalid marks the handle as an invalid index, for exercising the
// unsupported-target path in tests.
func (fi *FileIndex) SetInvalid(v bool) { fi.valid = !v }
