package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack"

	"github.com/gincheck/gincheck/gin"
)

func TestEntryTupleRoundTripInline(t *testing.T) {
	orig := EntryTuple{
		AttrNum:  1,
		Key:      "banana",
		Category: gin.CategoryNormal,
		Payload: InlinePosting{Items: []gin.ItemPointer{
			{Block: 4, Offset: 1},
			{Block: 4, Offset: 2},
			{Block: 9, Offset: 1},
		}},
	}

	raw, err := EncodeEntryTuple(orig)
	require.NoError(t, err)

	got, err := ReadEntryTuple(raw)
	require.NoError(t, err)

	assert.Equal(t, orig.AttrNum, got.AttrNum)
	assert.Equal(t, orig.Key, got.Key)
	assert.Equal(t, orig.Category, got.Category)
	assert.Equal(t, orig.Payload, got.Payload)
	assert.Equal(t, len(raw), got.DeclaredLen)
}

func TestEntryTupleRoundTripPostingRef(t *testing.T) {
	orig := EntryTuple{
		AttrNum:  2,
		Key:      int64(42),
		Category: gin.CategoryNormal,
		Payload:  PostingTreeRef{Root: 77},
	}

	raw, err := EncodeEntryTuple(orig)
	require.NoError(t, err)

	got, err := ReadEntryTuple(raw)
	require.NoError(t, err)
	assert.Equal(t, PostingTreeRef{Root: 77}, got.Payload)
}

func TestEntryTupleDownlinkRoundTrips(t *testing.T) {
	orig := WithDownlink(EntryTuple{
		AttrNum:  1,
		Key:      "x",
		Category: gin.CategoryNormal,
		Payload:  InlinePosting{},
	}, 55)

	raw, err := EncodeEntryTuple(orig)
	require.NoError(t, err)

	got, err := ReadEntryTuple(raw)
	require.NoError(t, err)
	assert.Equal(t, gin.BlockNumber(55), got.Downlink())
}

func TestEncodeEntryTupleCorruptLenStampsOverride(t *testing.T) {
	orig := EntryTuple{AttrNum: 1, Key: "x", Category: gin.CategoryNormal, Payload: InlinePosting{}}

	raw, err := EncodeEntryTupleCorruptLen(orig, 9999)
	require.NoError(t, err)

	got, err := ReadEntryTuple(raw)
	require.NoError(t, err)
	assert.Equal(t, 9999, got.DeclaredLen)
	assert.NotEqual(t, len(raw), got.DeclaredLen)
}

func TestReadEntryTupleRejectsTruncatedBytes(t *testing.T) {
	_, err := ReadEntryTuple([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestReadEntryTupleRejectsUnknownPayloadKind(t *testing.T) {
	orig := EntryTuple{AttrNum: 1, Key: "x", Category: gin.CategoryNormal, Payload: InlinePosting{}}
	raw, err := EncodeEntryTuple(orig)
	require.NoError(t, err)

	raw[3] = 0xFF // corrupt the payload discriminator
	_, err = ReadEntryTuple(raw)
	assert.Error(t, err)
}

func TestPostingItemRoundTrip(t *testing.T) {
	orig := PostingItem{Key: gin.ItemPointer{Block: 3, Offset: 2}, Child: 88}
	raw := EncodePostingItem(orig)

	got, err := ReadPostingItem(raw)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestReadPostingItemRejectsTruncatedBytes(t *testing.T) {
	_, err := ReadPostingItem([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestReadPostingLeafUncompressedRoundTrip(t *testing.T) {
	items := []gin.ItemPointer{{Block: 1, Offset: 1}, {Block: 1, Offset: 2}, {Block: 5, Offset: 1}}
	raw, err := msgpack.Marshal(items)
	require.NoError(t, err)

	got, err := ReadPostingLeaf(raw, false)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestReadPostingLeafCompressedRoundTrip(t *testing.T) {
	items := []gin.ItemPointer{{Block: 1, Offset: 1}, {Block: 1, Offset: 9}, {Block: 20, Offset: 3}}
	encoded := EncodeVarbyteDeltas(items)

	raw := make([]byte, 2+len(encoded))
	raw[0] = 0
	raw[1] = byte(len(items))
	copy(raw[2:], encoded)

	got, err := ReadPostingLeaf(raw, true)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestReadPostingLeafCompressedDetectsCountMismatch(t *testing.T) {
	items := []gin.ItemPointer{{Block: 1, Offset: 1}, {Block: 1, Offset: 9}}
	encoded := EncodeVarbyteDeltas(items)

	raw := make([]byte, 2+len(encoded))
	raw[1] = byte(len(items) + 1) // lie about the count
	copy(raw[2:], encoded)

	_, err := ReadPostingLeaf(raw, true)
	require.Error(t, err)
	var mismatch *CountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, len(items)+1, mismatch.Declared)
	assert.Equal(t, len(items), mismatch.Decoded)
}

func TestReadPostingLeafUncompressedEmpty(t *testing.T) {
	got, err := ReadPostingLeaf(nil, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}
