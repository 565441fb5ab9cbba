package schema

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/SisyphusSQ/binrepl/internal/log"
)

type ConflictPolicy int

const (
	// ConflictFail returns ErrStaleMetadata.
	ConflictFail ConflictPolicy = iota
	// ConflictReuseStale keeps decoding with the cached metadata.
	ConflictReuseStale
)

func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fail":
		return ConflictFail, nil
	case "reuse":
		return ConflictReuseStale, nil
	}
	return ConflictFail, fmt.Errorf("unknown schema conflict policy %q", s)
}

type Options struct {
	// FreezeSchema looks every table up once per process. Later table maps
	// for the same table reuse that metadata while the wire types match.
	FreezeSchema bool
	OnConflict   ConflictPolicy
	// Strict fails registration of tables the lookup does not know.
	Strict bool
}

// TableSpec is the decoded content of a table map event.
type TableSpec struct {
	ID         uint64
	Schema     string
	Table      string
	Types      []byte
	Meta       []byte
	NullBitmap []byte
	Optional   []byte
}

// Registry maps table ids to column metadata for the current binlog file.
type Registry struct {
	mu     sync.RWMutex
	opts   Options
	tables map[uint64]*Table
	frozen map[string]*Table
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:   opts,
		tables: make(map[uint64]*Table),
		frozen: make(map[string]*Table),
	}
}

// Register resolves a table map into a Table and caches it under its id.
func (r *Registry) Register(ctx context.Context, spec TableSpec, lookup Lookup) (*Table, error) {
	cols, err := decodeColumnMeta(spec.Types, spec.Meta, spec.NullBitmap)
	if err != nil {
		return nil, fmt.Errorf("table map %s.%s: %w", spec.Schema, spec.Table, err)
	}

	name := spec.Schema + "." + spec.Table
	if r.opts.FreezeSchema {
		r.mu.RLock()
		cached, ok := r.frozen[name]
		r.mu.RUnlock()
		if ok {
			return r.reuse(spec, cached)
		}
	}

	infos, err := lookup.Columns(ctx, spec.Schema, spec.Table)
	if err != nil {
		return nil, fmt.Errorf("lookup columns of %s: %w", name, err)
	}

	t := &Table{
		ID:        spec.ID,
		Schema:    spec.Schema,
		Name:      spec.Table,
		Columns:   cols,
		wireTypes: bytes.Clone(spec.Types),
	}
	correlate(t, infos)

	if len(spec.Optional) > 0 {
		om, err := decodeOptionalMeta(spec.Optional, cols)
		if err != nil {
			log.Logger.Warn("ignore optional metadata of %s: %v", name, err)
		} else {
			om.fill(cols, len(infos))
			if len(infos) == 0 && len(om.names) >= len(cols) {
				t.Unavailable = false
			}
			if len(t.PrimaryKey) == 0 {
				for _, idx := range om.primaryKey {
					if idx < len(cols) {
						cols[idx].PrimaryKey = true
						t.PrimaryKey = append(t.PrimaryKey, cols[idx].Name)
					}
				}
			}
		}
	}

	if t.Unavailable && r.opts.Strict {
		return nil, &MetadataUnavailableError{Schema: spec.Schema, Table: spec.Table}
	}

	r.mu.Lock()
	r.tables[spec.ID] = t
	if r.opts.FreezeSchema {
		r.frozen[name] = t
	}
	r.mu.Unlock()
	return t, nil
}

func (r *Registry) reuse(spec TableSpec, cached *Table) (*Table, error) {
	if !bytes.Equal(cached.wireTypes, spec.Types) {
		if r.opts.OnConflict != ConflictReuseStale {
			return nil, fmt.Errorf("%s: %w", cached.QualifiedName(), ErrStaleMetadata)
		}
		log.Logger.Warn("column types of %s changed in the binlog, keep decoding with frozen metadata", cached.QualifiedName())
	}

	t := cached.clone(spec.ID)
	r.mu.Lock()
	r.tables[spec.ID] = t
	r.mu.Unlock()
	return t, nil
}

// correlate pairs wire columns with lookup columns by position. Wire columns
// past the end of the lookup become placeholders.
func correlate(t *Table, infos []ColumnInfo) {
	if len(infos) == 0 {
		t.Unavailable = true
	}
	if len(infos) > len(t.Columns) {
		log.Logger.Warn("%s has %d columns but the binlog carries %d, extra columns ignored",
			t.QualifiedName(), len(infos), len(t.Columns))
	}

	for i, col := range t.Columns {
		if i >= len(infos) {
			col.Name = placeholderName(i)
			col.SQLType = "blob"
			col.Placeholder = true
			continue
		}

		info := infos[i]
		col.Name = info.Name
		col.Charset = info.Charset
		col.Collation = info.Collation
		col.Comment = info.Comment
		col.SQLType = info.ColumnType
		col.Unsigned = isUnsignedType(info.ColumnType)
		col.PrimaryKey = info.IsPrimaryKey
		if col.PrimaryKey {
			t.PrimaryKey = append(t.PrimaryKey, col.Name)
		}

		switch col.Type {
		case TypeEnum:
			col.EnumValues = parseValueList(info.ColumnType)
		case TypeSet:
			col.SetValues = parseValueList(info.ColumnType)
		}
	}
}

func (r *Registry) Get(id uint64) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// InvalidateAll drops every id mapping. Frozen metadata survives.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	r.tables = make(map[uint64]*Table)
	r.mu.Unlock()
}
