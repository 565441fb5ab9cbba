package schema

import (
	"fmt"

	"github.com/SisyphusSQ/binrepl/internal/codec"
)

// decodeColumnMeta walks the per-column metadata block of a table map event.
func decodeColumnMeta(types, meta, nullBitmap []byte) ([]*ColumnDescriptor, error) {
	c := codec.NewCursor(meta)
	cols := make([]*ColumnDescriptor, 0, len(types))

	for i, code := range types {
		col := &ColumnDescriptor{Type: ColumnType(code)}
		if len(nullBitmap) > i/8 {
			col.Nullable = nullBitmap[i/8]&(1<<(uint(i)%8)) != 0
		}

		var err error
		switch col.Type {
		case TypeFloat, TypeDouble, TypeBlob, TypeGeometry, TypeJSON:
			var n uint8
			n, err = c.Uint8()
			col.LengthSize = int(n)
		case TypeVarchar, TypeVarString:
			var n uint16
			n, err = c.Uint16()
			col.MaxLength = int(n)
		case TypeBit:
			var b []byte
			if b, err = c.Read(2); err == nil {
				col.Bits = int(b[1])*8 + int(b[0])
			}
		case TypeNewDecimal:
			var b []byte
			if b, err = c.Read(2); err == nil {
				col.Precision, col.Scale = int(b[0]), int(b[1])
				err = codec.CheckDecimal(col.Precision, col.Scale)
			}
		case TypeString, TypeEnum, TypeSet:
			var b []byte
			if b, err = c.Read(2); err == nil {
				unfoldStringMeta(col, b[0], b[1])
			}
		case TypeTime2, TypeDatetime2, TypeTimestamp2:
			var n uint8
			n, err = c.Uint8()
			col.FSP = int(n)
		case TypeTiny, TypeShort, TypeInt24, TypeLong, TypeLongLong, TypeYear,
			TypeDate, TypeTime, TypeDatetime, TypeTimestamp:
		default:
			return nil, &UnsupportedColumnTypeError{Code: code}
		}
		if err != nil {
			return nil, fmt.Errorf("metadata of column %d (%s): %w", i, col.Type, err)
		}
		cols = append(cols, col)
	}

	if c.Remaining() != 0 {
		return nil, fmt.Errorf("%d unread bytes in column metadata", c.Remaining())
	}
	return cols, nil
}

// unfoldStringMeta recovers the real type and length packed into the two
// metadata bytes of STRING columns. CHAR lengths above 255 keep their high
// bits in the otherwise constant 0x30 bits of the type byte.
func unfoldStringMeta(col *ColumnDescriptor, b0, b1 byte) {
	realType := b0
	maxLen := int(b1)
	if b0&0x30 != 0x30 {
		maxLen = int((uint16(b0&0x30)^0x30)<<4) | int(b1)
		realType = b0 | 0x30
	}

	switch ColumnType(realType) {
	case TypeEnum, TypeSet:
		col.Type = ColumnType(realType)
		col.LengthSize = int(b1)
	default:
		col.Type = TypeString
		col.MaxLength = maxLen
	}
}

// optional metadata field types, MySQL 8.0 binlog_row_metadata
const (
	metaSignedness           = 1
	metaDefaultCharset       = 2
	metaColumnCharset        = 3
	metaColumnName           = 4
	metaSetStrValue          = 5
	metaEnumStrValue         = 6
	metaGeometryType         = 7
	metaSimplePrimaryKey     = 8
	metaPrimaryKeyWithPrefix = 9
)

type optionalMeta struct {
	unsigned   []bool // per numeric column, in column order
	names      []string
	enumValues [][]string
	setValues  [][]string
	primaryKey []int
}

func decodeOptionalMeta(b []byte, cols []*ColumnDescriptor) (*optionalMeta, error) {
	om := &optionalMeta{}
	c := codec.NewCursor(b)

	for c.Remaining() > 0 {
		typ, err := c.Uint8()
		if err != nil {
			return nil, err
		}
		val, _, err := c.LengthCodedString()
		if err != nil {
			return nil, fmt.Errorf("optional metadata field %d: %w", typ, err)
		}
		vc := codec.NewCursor(val)

		switch typ {
		case metaSignedness:
			for i := range numericColumns(cols) {
				om.unsigned = append(om.unsigned, len(val) > i/8 && val[i/8]&(0x80>>(uint(i)%8)) != 0)
			}
		case metaColumnName:
			for vc.Remaining() > 0 {
				name, _, err := vc.LengthCodedString()
				if err != nil {
					return nil, fmt.Errorf("column names: %w", err)
				}
				om.names = append(om.names, string(name))
			}
		case metaEnumStrValue, metaSetStrValue:
			var lists [][]string
			for vc.Remaining() > 0 {
				n, _, err := vc.LengthCodedInt()
				if err != nil {
					return nil, err
				}
				list := make([]string, 0, n)
				for j := uint64(0); j < n; j++ {
					v, _, err := vc.LengthCodedString()
					if err != nil {
						return nil, fmt.Errorf("enum/set values: %w", err)
					}
					list = append(list, string(v))
				}
				lists = append(lists, list)
			}
			if typ == metaEnumStrValue {
				om.enumValues = lists
			} else {
				om.setValues = lists
			}
		case metaSimplePrimaryKey, metaPrimaryKeyWithPrefix:
			for vc.Remaining() > 0 {
				idx, _, err := vc.LengthCodedInt()
				if err != nil {
					return nil, err
				}
				om.primaryKey = append(om.primaryKey, int(idx))
				if typ == metaPrimaryKeyWithPrefix {
					if _, _, err = vc.LengthCodedInt(); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return om, nil
}

func numericColumns(cols []*ColumnDescriptor) []*ColumnDescriptor {
	out := make([]*ColumnDescriptor, 0, len(cols))
	for _, c := range cols {
		if c.Type.Numeric() {
			out = append(out, c)
		}
	}
	return out
}

// fill copies what the lookup could not provide from the optional metadata.
func (om *optionalMeta) fill(cols []*ColumnDescriptor, known int) {
	numIdx, enumIdx, setIdx := 0, 0, 0
	for i, col := range cols {
		isKnown := i < known
		if !isKnown && i < len(om.names) {
			col.Name = om.names[i]
			col.Placeholder = false
		}

		switch {
		case col.Type.Numeric():
			if !isKnown && numIdx < len(om.unsigned) {
				col.Unsigned = om.unsigned[numIdx]
			}
			numIdx++
		case col.Type == TypeEnum:
			if len(col.EnumValues) == 0 && enumIdx < len(om.enumValues) {
				col.EnumValues = om.enumValues[enumIdx]
			}
			enumIdx++
		case col.Type == TypeSet:
			if len(col.SetValues) == 0 && setIdx < len(om.setValues) {
				col.SetValues = om.setValues[setIdx]
			}
			setIdx++
		}
	}
}
