package walk

import (
	"context"

	"github.com/gincheck/gincheck/gin"
	"github.com/gincheck/gincheck/gin/page"
	"github.com/gincheck/gincheck/gin/tuple"
)

// postingFrame is one stack entry of the posting-tree walk (spec.md §4.4).
type postingFrame struct {
	depth       int
	parentBlock gin.BlockNumber
	block       gin.BlockNumber
}

// WalkPostingTree performs a self-contained depth-first traversal over a
// posting tree rooted at root, enforcing the data-page invariants (I1, I3,
// I4, I9). It is invoked once per leaf entry tuple whose payload overflowed
// to an auxiliary tree (§4.6), and recursively has no notion of the entry
// tree it was reached from.
func WalkPostingTree(ctx context.Context, env *Env, root gin.BlockNumber) error {
	leafDepth := -1
	stack := []postingFrame{{depth: 0, parentBlock: gin.InvalidBlockNumber, block: root}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return cancelled(env.IndexName)
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		next, err := visitPostingPage(ctx, env, &leafDepth, f)
		if err != nil {
			return err
		}
		stack = append(stack, next...)
	}
	return nil
}

func visitPostingPage(ctx context.Context, env *Env, leafDepth *int, f postingFrame) ([]postingFrame, error) {
	guard, err := env.Pager.ReadShared(ctx, env.IndexName, f.block)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	pg, err := page.Decode(guard.Data)
	if err != nil {
		return nil, classifyDecodeErr(env.IndexName, f.block, err)
	}
	if !pg.IsData() {
		return nil, corruption(env.IndexName, f.block, "expected a data page in posting tree, found %s", pg.Kind())
	}
	if err := page.Sanity(env.IndexName, f.block, pg, env.MaxTuplesPerPage); err != nil {
		return nil, err
	}

	// I1: uniform leaf depth within this posting tree.
	if pg.IsLeaf() {
		if *leafDepth == -1 {
			*leafDepth = f.depth
		} else if *leafDepth != f.depth {
			return nil, corruption(env.IndexName, f.block, "posting tree traversal encountered leaf page unexpectedly")
		}
		return nil, validatePostingLeafPage(env, f.block, pg)
	}

	// I3: internal pages must have at least one downlink.
	if pg.ItemCount() == 0 {
		return nil, corruption(env.IndexName, f.block, "internal posting page has no downlinks")
	}

	var next []postingFrame
	for i := 0; i < pg.ItemCount(); i++ {
		item, err := tuple.ReadPostingItem(pg.Item(i))
		if err != nil {
			return nil, classifyDecodeErr(env.IndexName, f.block, err)
		}
		// The right-most subtree's item carries a zero-valued sentinel key
		// standing in for an open upper bound (spec.md §4.4 step 4); it is
		// still a real downlink and must be visited like any other child.
		next = append(next, postingFrame{depth: f.depth + 1, parentBlock: f.block, block: item.Child})
	}
	return next, nil
}

func validatePostingLeafPage(env *Env, block gin.BlockNumber, pg *page.Page) error {
	if pg.ItemCount() == 0 {
		return nil
	}

	items, err := tuple.ReadPostingLeaf(pg.Item(0), pg.Compressed())
	if err != nil {
		return classifyDecodeErr(env.IndexName, block, err)
	}

	// I4: strictly ascending item pointers.
	for i := 1; i < len(items); i++ {
		if items[i-1].Compare(items[i]) >= 0 {
			return corruption(env.IndexName, block, "posting leaf item pointers out of order at index %d", i)
		}
	}
	// I9: the last item pointer must be a valid, non-zero heap pointer.
	if last := items[len(items)-1]; !last.Valid() {
		return corruption(env.IndexName, block, "posting leaf contains invalid heap pointer")
	}
	return nil
}
