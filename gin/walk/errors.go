package walk

import (
	"github.com/pkg/errors"

	"github.com/gincheck/gincheck/gin"
	"github.com/gincheck/gincheck/gin/tuple"
)

func corruption(indexName string, block gin.BlockNumber, format string, args ...any) *gin.CheckError {
	return &gin.CheckError{
		Kind:      gin.KindStructuralCorruption,
		IndexName: indexName,
		Block:     block,
		Message:   errors.Errorf(format, args...).Error(),
	}
}

func corruptionAt(indexName string, block gin.BlockNumber, offset int, format string, args ...any) *gin.CheckError {
	e := corruption(indexName, block, format, args...)
	e.Offset = offset
	e.HasOffset = true
	return e
}

func cancelled(indexName string) *gin.CheckError {
	return &gin.CheckError{
		Kind:      gin.KindCancelled,
		IndexName: indexName,
		Block:     gin.InvalidBlockNumber,
		Message:   "verification cancelled",
	}
}

// classifyDecodeErr turns a decode failure into the right CheckError kind: a
// *tuple.CountMismatchError is a decoding-mismatch (spec.md §7); anything
// else observed while decoding a page's own bytes is structural corruption.
func classifyDecodeErr(indexName string, block gin.BlockNumber, err error) *gin.CheckError {
	var mismatch *tuple.CountMismatchError
	if errors.As(err, &mismatch) {
		return &gin.CheckError{
			Kind:      gin.KindDecodingMismatch,
			IndexName: indexName,
			Block:     block,
			Message:   mismatch.Error(),
		}
	}
	return corruption(indexName, block, "%s", err.Error())
}
