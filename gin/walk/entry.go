package walk

import (
	"context"

	"github.com/gincheck/gincheck/gin"
	"github.com/gincheck/gincheck/gin/page"
	"github.com/gincheck/gincheck/gin/tuple"
	"github.com/gincheck/gincheck/ginlog"
)

// entryFrame is one stack entry of the entry-tree walk (spec.md §4.5). A
// nil parentTuple marks the root frame. parentTuple is always a detached
// copy — the frame never holds a lock or buffer belonging to the parent page
// while its child is being visited (design note 9, spec.md §5).
type entryFrame struct {
	depth       int
	parentBlock gin.BlockNumber
	parentTuple *tuple.EntryTuple
	parentLSN   uint64
	block       gin.BlockNumber
}

// WalkEntryTree is the outer depth-first traversal from the fixed entry-tree
// root. It enforces entry-page invariants, reconciles parent/child keys
// across concurrent splits, and dispatches to the posting-tree walker or
// posting-list validator at each leaf entry.
func WalkEntryTree(ctx context.Context, env *Env) error {
	leafDepth := -1
	childKind := map[gin.BlockNumber]gin.PageKind{}

	stack := []entryFrame{{
		depth:       0,
		parentBlock: gin.InvalidBlockNumber,
		parentTuple: nil,
		block:       gin.RootBlockNumber,
	}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return cancelled(env.IndexName)
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		next, err := visitEntryPage(ctx, env, &leafDepth, childKind, f)
		if err != nil {
			return err
		}
		stack = append(stack, next...)
	}
	return nil
}

func visitEntryPage(ctx context.Context, env *Env, leafDepth *int, childKind map[gin.BlockNumber]gin.PageKind, f entryFrame) ([]entryFrame, error) {
	guard, err := env.Pager.ReadShared(ctx, env.IndexName, f.block)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	pg, err := page.Decode(guard.Data)
	if err != nil {
		return nil, classifyDecodeErr(env.IndexName, f.block, err)
	}
	if pg.IsData() {
		return nil, corruption(env.IndexName, f.block, "expected an entry page, found a data page")
	}
	if err := page.Sanity(env.IndexName, f.block, pg, env.MaxTuplesPerPage); err != nil {
		return nil, err
	}

	// I2: an internal entry page's children are either all internal or all
	// leaves. Recorded per parent since siblings are visited far apart in
	// this depth-first order (a whole subtree is drained before the next
	// sibling is popped).
	if f.parentBlock != gin.InvalidBlockNumber {
		if want, seen := childKind[f.parentBlock]; seen {
			if (want == gin.KindEntryLeaf) != pg.IsLeaf() {
				return nil, corruption(env.IndexName, f.parentBlock, "internal entry page mixes leaf and internal children")
			}
		} else {
			childKind[f.parentBlock] = pg.Kind()
		}
	}

	var extra []entryFrame

	// (b) Concurrent-split adjustment: the child may have split between the
	// time the parent was read and this page was fetched. If so, the new
	// right sibling still needs visiting through the same downlink.
	if f.parentTuple != nil && !pg.RightMost() && pg.ItemCount() > 0 {
		pageMax, err := tuple.ReadEntryTuple(pg.Item(pg.ItemCount() - 1))
		if err != nil {
			return nil, classifyDecodeErr(env.IndexName, f.block, err)
		}
		parentAttr := env.Cmp.AttrOf(*f.parentTuple)
		pageMaxKey, pageMaxCat := env.Cmp.KeyOf(pageMax)
		parentKey, parentCat := env.Cmp.KeyOf(*f.parentTuple)
		if env.Cmp.Compare(parentAttr, pageMaxKey, parentKey, pageMaxCat, parentCat) <= 0 {
			ginlog.L().Warn("split detected between parent read and child fetch, queueing right sibling",
			)
			extra = append(extra, entryFrame{
				depth:       f.depth,
				parentBlock: f.parentBlock,
				parentTuple: f.parentTuple,
				parentLSN:   f.parentLSN,
				block:       pg.RightLink(),
			})
		}
	}

	// (c) Depth consistency (I1).
	if pg.IsLeaf() {
		if *leafDepth == -1 {
			*leafDepth = f.depth
		} else if *leafDepth != f.depth {
			return nil, corruption(env.IndexName, f.block, "entry tree traversal encountered leaf page unexpectedly")
		}
	} else if pg.ItemCount() == 0 {
		// I3: internal pages must have at least one downlink.
		return nil, corruption(env.IndexName, f.block, "internal entry page has no downlinks")
	}

	// (d) Intra-page scan.
	var prev *tuple.EntryTuple
	for i := 0; i < pg.ItemCount(); i++ {
		item := pg.Item(i)
		cur, err := tuple.ReadEntryTuple(item)
		if err != nil {
			return nil, classifyDecodeErr(env.IndexName, f.block, err)
		}

		// I7: the item-id's declared length must equal the size stamped
		// into the tuple itself.
		if declared := pg.ItemLength(i); declared != cur.DeclaredLen {
			return nil, corruptionAt(env.IndexName, f.block, i, "inconsistent tuple sizes: directory declares %d, tuple declares %d", declared, cur.DeclaredLen)
		}

		curAttr := env.Cmp.AttrOf(cur)
		curKey, curCat := env.Cmp.KeyOf(cur)

		// I4: strictly increasing (key, category), compared under the current
		// tuple's attribute. Attribute numbers themselves are not compared, so
		// the order across tuples of different attributes is not checked.
		if prev != nil {
			prevKey, prevCat := env.Cmp.KeyOf(*prev)
			if env.Cmp.Compare(curAttr, prevKey, curKey, prevCat, curCat) >= 0 {
				return nil, corruptionAt(env.IndexName, f.block, i, "wrong tuple order")
			}
		}

		// I5: parent-cover check, only meaningful on the page's last tuple.
		// A downlink's key is its child's high key, so the child's last
		// tuple must sort at or under it; equality is the common case.
		if f.parentTuple != nil && i == pg.ItemCount()-1 {
			parentKey, parentCat := env.Cmp.KeyOf(*f.parentTuple)
			if env.Cmp.Compare(curAttr, curKey, parentKey, curCat, parentCat) > 0 {
				refound, err := refindParent(ctx, env, f.parentBlock, f.block)
				if err != nil {
					return nil, err
				}
				if refound == nil {
					ginlog.L().Warn("unable to find parent tuple for child due to concurrent split; treating as benign")
				} else {
					refoundKey, refoundCat := env.Cmp.KeyOf(*refound)
					if env.Cmp.Compare(curAttr, curKey, refoundKey, curCat, refoundCat) > 0 {
						return nil, corruptionAt(env.IndexName, f.block, i, "inconsistent records: child's last key does not sort under refreshed parent downlink")
					}
				}
			}
		}

		// Recursion / leaf handling.
		if !pg.IsLeaf() {
			curCopy := cur
			extra = append(extra, entryFrame{
				depth:       f.depth + 1,
				parentBlock: f.block,
				parentTuple: &curCopy,
				parentLSN:   pg.LSN(),
				block:       cur.Downlink(),
			})
		} else if err := validateLeafTuple(ctx, env, f.block, i, cur); err != nil {
			return nil, err
		}

		curCopy := cur
		prev = &curCopy
	}

	return extra, nil
}

// validateLeafTuple is the leaf-entry payload validator (spec.md §4.6).
func validateLeafTuple(ctx context.Context, env *Env, block gin.BlockNumber, offset int, t tuple.EntryTuple) error {
	switch p := t.Payload.(type) {
	case tuple.PostingTreeRef:
		return WalkPostingTree(ctx, env, p.Root)
	case tuple.InlinePosting:
		for i := 1; i < len(p.Items); i++ {
			if p.Items[i-1].Compare(p.Items[i]) >= 0 {
				return corruptionAt(env.IndexName, block, offset, "inline posting list out of order at index %d", i)
			}
		}
		if len(p.Items) > 0 {
			if last := p.Items[len(p.Items)-1]; !last.Valid() {
				return corruptionAt(env.IndexName, block, offset, "posting list contains invalid heap pointer")
			}
		}
		return nil
	default:
		return corruptionAt(env.IndexName, block, offset, "unknown entry tuple payload type %T", t.Payload)
	}
}

// refindParent is §4.7: try to re-find the downlink pointing at childBlock
// in parentBlock. Returns (nil, nil) if the parent has since collapsed to a
// leaf or the downlink genuinely isn't there anymore (both benign,
// concurrent-mutation outcomes); returns a detached copy of the tuple when
// found.
func refindParent(ctx context.Context, env *Env, parentBlock, childBlock gin.BlockNumber) (*tuple.EntryTuple, error) {
	guard, err := env.Pager.ReadShared(ctx, env.IndexName, parentBlock)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	pg, err := page.Decode(guard.Data)
	if err != nil {
		return nil, classifyDecodeErr(env.IndexName, parentBlock, err)
	}
	if pg.IsLeaf() {
		return nil, nil
	}

	for i := 0; i < pg.ItemCount(); i++ {
		t, err := tuple.ReadEntryTuple(pg.Item(i))
		if err != nil {
			return nil, classifyDecodeErr(env.IndexName, parentBlock, err)
		}
		if t.Downlink() == childBlock {
			tc := t
			return &tc, nil
		}
	}
	return nil, nil
}
