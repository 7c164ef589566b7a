package ginbuild

import (
	"os"

	"github.com/gincheck/gincheck/gin"
	"github.com/gincheck/gincheck/gin/state"
)

// OpenAsIndex writes fx to a temp file and opens it as a gin.FileIndex,
// returning a cleanup func that closes the handle and removes the file.
// This is the one-call path most tests want; WriteTemp stays available for
// callers that need the raw *os.File (e.g. to corrupt bytes before opening).
func (fx *Fixture) OpenAsIndex(name string, cmp state.Comparator) (*gin.FileIndex, func(), error) {
	f, err := fx.WriteTemp("ginfixture-*.dat")
	if err != nil {
		return nil, nil, err
	}
	path := f.Name()
	f.Close()

	idx, err := gin.OpenFile(path, name, cmp)
	if err != nil {
		os.Remove(path)
		return nil, nil, err
	}
	cleanup := func() {
		idx.Close()
		os.Remove(path)
	}
	return idx, cleanup, nil
}
