package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gincheck/gincheck/gin"
)

func TestScalarComparatorOrdersInt64(t *testing.T) {
	c := ScalarComparator{}
	assert.Equal(t, -1, c.Compare(1, int64(1), int64(2), gin.CategoryNormal, gin.CategoryNormal))
	assert.Equal(t, 1, c.Compare(1, int64(5), int64(2), gin.CategoryNormal, gin.CategoryNormal))
	assert.Equal(t, 0, c.Compare(1, int64(2), int64(2), gin.CategoryNormal, gin.CategoryNormal))
}

func TestScalarComparatorOrdersStrings(t *testing.T) {
	c := ScalarComparator{}
	assert.Equal(t, -1, c.Compare(1, "apple", "banana", gin.CategoryNormal, gin.CategoryNormal))
	assert.Equal(t, 1, c.Compare(1, "banana", "apple", gin.CategoryNormal, gin.CategoryNormal))
}

func TestScalarComparatorNormalizesMsgpackNumericVariance(t *testing.T) {
	c := ScalarComparator{}
	// msgpack decodes small integers into differing concrete Go types across
	// configurations; the comparator must treat them as the same key.
	assert.Equal(t, 0, c.Compare(1, int64(7), int(7), gin.CategoryNormal, gin.CategoryNormal))
	assert.Equal(t, 0, c.Compare(1, int64(7), float64(7), gin.CategoryNormal, gin.CategoryNormal))
}

func TestScalarComparatorCategoriesSortAfterNormal(t *testing.T) {
	c := ScalarComparator{}
	assert.Equal(t, -1, c.Compare(1, int64(100), int64(0), gin.CategoryNormal, gin.CategoryNullKey))
	assert.Equal(t, 1, c.Compare(1, int64(0), int64(100), gin.CategoryNullKey, gin.CategoryNormal))
}

func TestScalarComparatorOrdersCategoriesAmongThemselves(t *testing.T) {
	c := ScalarComparator{}
	assert.Equal(t, -1, c.Compare(1, nil, nil, gin.CategoryNullKey, gin.CategoryNullItem))
	assert.Equal(t, -1, c.Compare(1, nil, nil, gin.CategoryNullItem, gin.CategoryEmptyItem))
	assert.Equal(t, 0, c.Compare(1, nil, nil, gin.CategoryNullKey, gin.CategoryNullKey))
}

func TestScalarComparatorPanicsOnUnsupportedType(t *testing.T) {
	c := ScalarComparator{}
	assert.Panics(t, func() {
		c.Compare(1, 3.14, 3.14, gin.CategoryNormal, gin.CategoryNormal)
	})
}
