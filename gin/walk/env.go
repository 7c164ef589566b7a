// Package walk implements the two coupled depth-first traversals spec.md §4.4
// and §4.5 describe: the entry-tree walker and, at each leaf, the
// posting-tree walker it dispatches to. Both are expressed as explicit LIFO
// stacks rather than language recursion (design note 9), so a page is
// released before its children are visited and a concurrent-split sibling
// can be queued at the same depth without unwinding the call stack.
package walk

import (
	"github.com/gincheck/gincheck/gin/pager"
	"github.com/gincheck/gincheck/gin/state"
)

// Env bundles everything a walk step needs: where to read pages from, how to
// compare keys, and the index's configured density ceiling. It plays the
// role of the "opaque per-index metadata" spec.md §6 describes as gin_state.
type Env struct {
	IndexName        string
	Pager            *pager.Pager
	Cmp              state.Comparator
	MaxTuplesPerPage int
}
