package gin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemPointerCompare(t *testing.T) {
	t.Run("orders by block first", func(t *testing.T) {
		a := ItemPointer{Block: 1, Offset: 5}
		b := ItemPointer{Block: 2, Offset: 1}
		assert.Equal(t, -1, a.Compare(b))
		assert.Equal(t, 1, b.Compare(a))
	})

	t.Run("orders by offset within a block", func(t *testing.T) {
		a := ItemPointer{Block: 1, Offset: 1}
		b := ItemPointer{Block: 1, Offset: 2}
		assert.Equal(t, -1, a.Compare(b))
		assert.Equal(t, 1, b.Compare(a))
	})

	t.Run("equal pointers compare zero", func(t *testing.T) {
		a := ItemPointer{Block: 3, Offset: 4}
		assert.Equal(t, 0, a.Compare(a))
	})
}

func TestItemPointerValid(t *testing.T) {
	assert.True(t, ItemPointer{Block: 1, Offset: 1}.Valid())
	assert.False(t, ItemPointer{Block: 1, Offset: 0}.Valid())
}

func TestPageFlagsHas(t *testing.T) {
	f := FlagLeaf | FlagData
	assert.True(t, f.Has(FlagLeaf))
	assert.True(t, f.Has(FlagData))
	assert.False(t, f.Has(FlagDeleted))
	assert.False(t, f.Has(FlagRightMost))
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "normal", CategoryNormal.String())
	assert.Equal(t, "null-key", CategoryNullKey.String())
	assert.Equal(t, "null-item", CategoryNullItem.String())
	assert.Equal(t, "empty-item", CategoryEmptyItem.String())
}

func TestPageKindString(t *testing.T) {
	assert.Equal(t, "entry-leaf", KindEntryLeaf.String())
	assert.Equal(t, "data-internal", KindDataInternal.String())
	assert.Equal(t, "deleted-leaf", KindDeletedLeaf.String())
}
