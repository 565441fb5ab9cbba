package gtid

import (
	"errors"
	"fmt"
)

// ErrGtidSet is the parent of every error returned by this package.
var ErrGtidSet = errors.New("gtid set")

var (
	ErrMalformedInterval   = fmt.Errorf("%w: malformed interval", ErrGtidSet)
	ErrOverlappingInterval = fmt.Errorf("%w: overlapping interval", ErrGtidSet)
	ErrInvalidGTID         = fmt.Errorf("%w: invalid gtid", ErrGtidSet)
	ErrSIDMismatch         = fmt.Errorf("%w: source id mismatch", ErrGtidSet)
	ErrTruncatedSet        = fmt.Errorf("%w: truncated binary set", ErrGtidSet)
)
