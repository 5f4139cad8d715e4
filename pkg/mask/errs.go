package mask

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax indicates a segment that is neither a core number nor a range.
	ErrSyntax = errors.New("mask: invalid core number or range")

	// ErrRange indicates a core number at or above the host core count.
	ErrRange = errors.New("mask: core out of range")

	// ErrNoCores indicates a parse request against a host with no cores.
	ErrNoCores = errors.New("mask: core count must be > 0")
)

// ParseError reports the comma-delimited segment that failed to parse.
// Value is only meaningful when Err is ErrRange.
type ParseError struct {
	Segment string
	Value   int
	Err     error
}

func (e *ParseError) Error() string {
	if errors.Is(e.Err, ErrRange) {
		return fmt.Sprintf("failed to parse core specification: %d is out of range in core specification %q", e.Value, e.Segment)
	}
	return fmt.Sprintf("failed to parse core specification: %q is not a valid core number or range", e.Segment)
}

func (e *ParseError) Unwrap() error { return e.Err }
