package gin

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind is the stable, machine-readable classification of a CheckError
// (spec §7). Callers should switch on Kind, not on the message text.
type ErrorKind int

const (
	KindUnsupportedTarget ErrorKind = iota
	KindIO
	KindStructuralCorruption
	KindDecodingMismatch
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedTarget:
		return "unsupported-target"
	case KindIO:
		return "io-error"
	case KindStructuralCorruption:
		return "structural-corruption"
	case KindDecodingMismatch:
		return "decoding-mismatch"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown-error-kind"
	}
}

// CheckError is the one error type CheckIndex ever returns. It always names
// the index and, where the violation is page-scoped, the offending block and
// offset. Modeled after the teacher's util.PetroError{Message,Err}, widened
// with the fields spec §7 requires every corruption report to carry.
type CheckError struct {
	Kind      ErrorKind
	IndexName string
	Block     BlockNumber
	Offset    int
	HasOffset bool
	Message   string
	Err       error
}

func (e *CheckError) Error() string {
	loc := ""
	if e.HasOffset {
		loc = fmt.Sprintf(" (block %d, offset %d)", e.Block, e.Offset)
	} else if e.Block != InvalidBlockNumber {
		loc = fmt.Sprintf(" (block %d)", e.Block)
	}
	return fmt.Sprintf("index %q: %s%s", e.IndexName, e.Message, loc)
}

func (e *CheckError) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, indexName string, block BlockNumber, format string, args ...any) *CheckError {
	return &CheckError{
		Kind:      kind,
		IndexName: indexName,
		Block:     block,
		Message:   fmt.Sprintf(format, args...),
	}
}

func newErrAt(kind ErrorKind, indexName string, block BlockNumber, offset int, format string, args ...any) *CheckError {
	e := newErr(kind, indexName, block, format, args...)
	e.Offset = offset
	e.HasOffset = true
	return e
}

func wrapErr(kind ErrorKind, indexName string, block BlockNumber, cause error, format string, args ...any) *CheckError {
	e := newErr(kind, indexName, block, format, args...)
	e.Err = errors.WithStack(cause)
	return e
}

// unsupported builds a KindUnsupportedTarget error; used for the three
// gin_index_checkable-style preconditions plus the pending-list precondition.
func unsupported(indexName, detail string) *CheckError {
	return &CheckError{
		Kind:      KindUnsupportedTarget,
		IndexName: indexName,
		Block:     InvalidBlockNumber,
		Message:   detail,
	}
}
