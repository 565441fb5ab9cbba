package schema

import (
	"errors"
	"fmt"
)

var ErrStaleMetadata = errors.New("cached table metadata no longer matches the binlog")

type UnsupportedColumnTypeError struct {
	Code byte
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("unsupported column type %s", ColumnType(e.Code))
}

// MetadataUnavailableError is returned in strict mode when the lookup knows
// nothing about a table that appears in the stream.
type MetadataUnavailableError struct {
	Schema string
	Table  string
}

func (e *MetadataUnavailableError) Error() string {
	return fmt.Sprintf("no column metadata available for %s.%s", e.Schema, e.Table)
}
