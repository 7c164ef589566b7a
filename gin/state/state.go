// Package state models the opaque per-index capability set the core
// consumes instead of hardcoding key comparison (design note 9, spec.md §6):
// attr_of, key_of, and a category-aware compare. Real hosts supply their own
// per-opclass comparator; this package also ships one concrete
// implementation for fixtures and tests.
package state

import (
	"bytes"
	"fmt"

	"github.com/gincheck/gincheck/gin"
	"github.com/gincheck/gincheck/gin/tuple"
)

// Comparator is the collaborator interface gin.CheckIndex threads through
// every walker. AttrOf and KeyOf extract the fields an entry tuple is
// ordered on; the walker calls them instead of reaching into an EntryTuple's
// fields directly, so a host with a different wire layout only has to supply
// a different Comparator, not touch gin/walk. Compare must return a total
// order and must treat Category as part of the sort key, not a side channel:
// categories sort after every Normal key, and are themselves ordered
// NullKey < NullItem < EmptyItem.
type Comparator interface {
	// AttrOf returns the attribute number an entry tuple is ordered under.
	AttrOf(t tuple.EntryTuple) int
	// KeyOf returns the key and category an entry tuple is ordered under.
	KeyOf(t tuple.EntryTuple) (any, gin.Category)
	// Compare orders two keys under the given attribute number. It must
	// agree with how the index itself was built, since the walker treats
	// any disagreement as structural corruption.
	Compare(attr int, a, b any, catA, catB gin.Category) int
}

// ScalarComparator compares keys of a single Go scalar type (int64 or
// string) the way the end-to-end fixtures in ginbuild need: plain value
// order for gin.CategoryNormal keys, category order otherwise.
type ScalarComparator struct{}

// AttrOf implements Comparator.
func (ScalarComparator) AttrOf(t tuple.EntryTuple) int { return t.AttrNum }

// KeyOf implements Comparator.
func (ScalarComparator) KeyOf(t tuple.EntryTuple) (any, gin.Category) { return t.Key, t.Category }

// Compare implements Comparator.
func (ScalarComparator) Compare(_ int, a, b any, catA, catB gin.Category) int {
	if catA != gin.CategoryNormal || catB != gin.CategoryNormal {
		if catA != catB {
			if catA < catB {
				return -1
			}
			return 1
		}
		return 0
	}
	return compareScalar(a, b)
}

func compareScalar(a, b any) int {
	switch av := a.(type) {
	case int64:
		bv := mustInt64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case int:
		return compareScalar(int64(av), b)
	case string:
		return bytes.Compare([]byte(av), []byte(mustString(b)))
	default:
		panic(fmt.Sprintf("state.ScalarComparator: unsupported key type %T", a))
	}
}

func mustInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		// msgpack round-trips small ints through float64 on decode in some
		// configurations; normalize defensively.
		return int64(n)
	default:
		panic(fmt.Sprintf("state.ScalarComparator: expected int-like key, got %T", v))
	}
}

func mustString(v any) string {
	s, ok := v.(string)
	if !ok {
		panic(fmt.Sprintf("state.ScalarComparator: expected string key, got %T", v))
	}
	return s
}
