package schema

import (
	"context"
	"fmt"
	"slices"
)

type ColumnDescriptor struct {
	Name string
	// Type is the real type, after unfolding STRING metadata into ENUM/SET.
	Type       ColumnType
	Unsigned   bool
	Nullable   bool
	PrimaryKey bool

	MaxLength  int // VARCHAR/CHAR byte length
	LengthSize int // BLOB/JSON/GEOMETRY length prefix, ENUM/SET pack length
	Precision  int
	Scale      int
	FSP        int
	Bits       int

	EnumValues []string
	SetValues  []string

	Charset   string
	Collation string
	Comment   string
	SQLType   string

	Placeholder bool
}

// Binary reports whether string data should be kept as bytes.
func (c *ColumnDescriptor) Binary() bool {
	return c.Charset == "binary" || (c.Charset == "" && c.Collation == "binary")
}

type Table struct {
	ID         uint64
	Schema     string
	Name       string
	Columns    []*ColumnDescriptor
	PrimaryKey []string

	// Unavailable marks a table the lookup knew nothing about; its rows
	// decode to empty images.
	Unavailable bool

	wireTypes []byte
}

func (t *Table) QualifiedName() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

func (t *Table) Column(name string) (*ColumnDescriptor, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func (t *Table) clone(id uint64) *Table {
	c := *t
	c.ID = id
	c.Columns = slices.Clone(t.Columns)
	c.PrimaryKey = slices.Clone(t.PrimaryKey)
	return &c
}

// ColumnInfo is what a Lookup knows about one column, in ordinal order.
type ColumnInfo struct {
	Name         string
	Collation    string
	Charset      string
	Comment      string
	ColumnType   string // full type text, "int(10) unsigned", "enum('a','b')"
	IsPrimaryKey bool
}

// Lookup fetches column definitions. Zero columns means the table is unknown.
type Lookup interface {
	Columns(ctx context.Context, schema, table string) ([]ColumnInfo, error)
}

type LookupFunc func(ctx context.Context, schema, table string) ([]ColumnInfo, error)

func (f LookupFunc) Columns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	return f(ctx, schema, table)
}
