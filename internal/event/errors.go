package event

import (
	"errors"
	"fmt"
)

var (
	ErrShortEvent       = errors.New("event shorter than its header")
	ErrChecksumMismatch = errors.New("event checksum mismatch")
	ErrNotMaterialized  = errors.New("rows event not materialized")
	ErrUnknownTable     = errors.New("rows event for a table id without table map")
)

// ProtocolError reports a byte stream that does not follow the binlog format.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("binlog protocol error in %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProtocolError{Op: op, Err: err}
}
