package event

import (
	"bytes"
	"fmt"
	"math/bits"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/SisyphusSQ/binrepl/internal/codec"
	"github.com/SisyphusSQ/binrepl/internal/schema"
)

// Row is one row image in table column order.
type Row = orderedmap.OrderedMap[string, Value]

// RowPair is one changed row. Before is nil for inserts, After for deletes.
type RowPair struct {
	Before *Row
	After  *Row
}

// RowsEvent is a write, update or delete rows event. Row images are decoded
// by Materialize, once.
type RowsEvent struct {
	Header
	Version     int
	TableID     uint64
	RowsFlags   uint16
	ExtraData   []byte
	ColumnCount uint64
	// Present flags the columns carried by each image, PresentAfter the
	// columns of the after image of updates.
	Present      []byte
	PresentAfter []byte
	// Table is nil when no table map for TableID was registered.
	Table *schema.Table

	raw  []byte
	loc  *time.Location
	rows []RowPair
	err  error
	done bool
}

func (e *RowsEvent) Kind() RowsKind {
	return e.Type.RowsKind()
}

// Rows returns the decoded images.
func (e *RowsEvent) Rows() ([]RowPair, error) {
	if !e.done {
		return nil, ErrNotMaterialized
	}
	return e.rows, e.err
}

// Materialize decodes the row images. Later calls return the first result.
func (e *RowsEvent) Materialize() error {
	if e.done {
		return e.err
	}
	e.done = true
	e.rows, e.err = e.decodeImages()
	if e.err != nil {
		e.rows = nil
		e.err = protocolErr(e.Type.String(), e.err)
	}
	return e.err
}

func (e *RowsEvent) decodeImages() ([]RowPair, error) {
	if e.Table == nil {
		return nil, fmt.Errorf("table id %d: %w", e.TableID, ErrUnknownTable)
	}
	if uint64(len(e.Table.Columns)) != e.ColumnCount {
		return nil, fmt.Errorf("table %s has %d columns, rows event carries %d",
			e.Table.QualifiedName(), len(e.Table.Columns), e.ColumnCount)
	}

	kind := e.Kind()
	c := codec.NewCursor(e.raw)
	var rows []RowPair
	for c.Remaining() > 0 {
		var (
			pair RowPair
			err  error
		)
		switch kind {
		case RowsWrite:
			pair.After, err = e.decodeImage(c, e.Present)
		case RowsDelete:
			pair.Before, err = e.decodeImage(c, e.Present)
		case RowsUpdate:
			if pair.Before, err = e.decodeImage(c, e.Present); err == nil {
				pair.After, err = e.decodeImage(c, e.PresentAfter)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("row %d of %s: %w", len(rows), e.Table.QualifiedName(), err)
		}
		rows = append(rows, pair)
	}
	return rows, nil
}

func (e *RowsEvent) decodeImage(c *codec.Cursor, present []byte) (*Row, error) {
	nulls, err := c.Read(bitmapSize(popcount(present)))
	if err != nil {
		return nil, fmt.Errorf("null bitmap: %w", err)
	}

	row := orderedmap.New[string, Value]()
	var n int
	for i, col := range e.Table.Columns {
		if !bitSet(present, i) {
			continue
		}
		v := Null
		if !bitSet(nulls, n) {
			if v, err = decodeValue(c, col, e.loc); err != nil {
				return nil, fmt.Errorf("column %d (%s %s): %w", i, col.Name, col.Type, err)
			}
		}
		n++
		if !e.Table.Unavailable {
			row.Set(col.Name, v)
		}
	}
	return row, nil
}

func (d *Decoder) decodeRows(h Header, c *codec.Cursor) (Event, error) {
	e := &RowsEvent{Header: h, Version: 1, loc: d.Location}
	if e.loc == nil {
		e.loc = time.UTC
	}

	var err error
	if e.TableID, err = c.Uint48(); err != nil {
		return nil, err
	}
	if e.RowsFlags, err = c.Uint16(); err != nil {
		return nil, err
	}

	switch h.Type {
	case TypeWriteRowsV2, TypeUpdateRowsV2, TypeDeleteRowsV2:
		e.Version = 2
		n, err := c.Uint16()
		if err != nil {
			return nil, err
		}
		if n < 2 {
			return nil, fmt.Errorf("extra data length %d", n)
		}
		extra, err := c.Read(int(n) - 2)
		if err != nil {
			return nil, err
		}
		e.ExtraData = bytes.Clone(extra)
	}

	var null bool
	if e.ColumnCount, null, err = c.LengthCodedInt(); err != nil {
		return nil, err
	} else if null {
		return nil, fmt.Errorf("null column count")
	}

	size := bitmapSize(int(e.ColumnCount))
	b, err := c.Read(size)
	if err != nil {
		return nil, err
	}
	e.Present = bytes.Clone(b)
	if h.Type.RowsKind() == RowsUpdate {
		if b, err = c.Read(size); err != nil {
			return nil, err
		}
		e.PresentAfter = bytes.Clone(b)
	}

	e.raw = bytes.Clone(c.Rest())
	if d.Registry != nil {
		e.Table, _ = d.Registry.Get(e.TableID)
	}
	return e, nil
}

func bitSet(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<(uint(i)%8)) != 0
}

func popcount(bitmap []byte) int {
	var n int
	for _, b := range bitmap {
		n += bits.OnesCount8(b)
	}
	return n
}

// decodeValue reads one non-null column value.
func decodeValue(c *codec.Cursor, col *schema.ColumnDescriptor, loc *time.Location) (Value, error) {
	switch col.Type {
	case schema.TypeTiny:
		return decodeInt(c, 1, col.Unsigned)
	case schema.TypeShort:
		return decodeInt(c, 2, col.Unsigned)
	case schema.TypeInt24:
		return decodeInt(c, 3, col.Unsigned)
	case schema.TypeLong:
		return decodeInt(c, 4, col.Unsigned)
	case schema.TypeLongLong:
		return decodeInt(c, 8, col.Unsigned)

	case schema.TypeFloat:
		f, err := c.Float32()
		return FloatValue(f), err
	case schema.TypeDouble:
		f, err := c.Float64()
		return DoubleValue(f), err

	case schema.TypeYear:
		v, err := c.Uint8()
		if err != nil || v == 0 {
			return YearValue(0), err
		}
		return YearValue(1900 + int64(v)), nil

	case schema.TypeNewDecimal:
		size, err := codec.DecimalSize(col.Precision, col.Scale)
		if err != nil {
			return Null, err
		}
		b, err := c.Read(size)
		if err != nil {
			return Null, err
		}
		d, _, err := codec.DecodeDecimal(b, col.Precision, col.Scale)
		return DecimalValue(d, col.Scale), err

	case schema.TypeVarchar, schema.TypeVarString, schema.TypeString:
		n := 1
		if col.MaxLength > 255 {
			n = 2
		}
		b, err := c.LengthPrefixed(n)
		if err != nil {
			return Null, err
		}
		return decodeText(col, b), nil

	case schema.TypeEnum:
		idx, err := c.Uint(col.LengthSize)
		if err != nil {
			return Null, err
		}
		var name string
		if idx > 0 && int(idx) <= len(col.EnumValues) {
			name = col.EnumValues[idx-1]
		}
		return EnumValue(idx, name), nil

	case schema.TypeSet:
		mask, err := c.Uint(col.LengthSize)
		if err != nil {
			return Null, err
		}
		members := []string{}
		for i, name := range col.SetValues {
			if mask&(1<<uint(i)) != 0 {
				members = append(members, name)
			}
		}
		return SetValue(mask, members), nil

	case schema.TypeBlob, schema.TypeGeometry:
		b, err := c.LengthPrefixed(col.LengthSize)
		if err != nil {
			return Null, err
		}
		if col.Type == schema.TypeBlob && isTextBlob(col) {
			return decodeText(col, b), nil
		}
		return BytesValue(bytes.Clone(b)), nil

	case schema.TypeJSON:
		b, err := c.LengthPrefixed(col.LengthSize)
		if err != nil {
			return Null, err
		}
		if len(b) == 0 {
			return JSONValue(nil), nil
		}
		v, err := codec.DecodeJSON(b)
		return JSONValue(v), err

	case schema.TypeBit:
		b, err := c.Read((col.Bits + 7) / 8)
		if err != nil {
			return Null, err
		}
		return BitsValue(codec.BEUint(b), col.Bits), nil

	case schema.TypeDate, schema.TypeNewDate:
		return decodeDate(c)
	case schema.TypeTime:
		return decodeTime(c)
	case schema.TypeDatetime:
		return decodeDatetime(c)
	case schema.TypeTimestamp:
		return decodeTimestamp(c, loc)
	case schema.TypeTimestamp2:
		return decodeTimestamp2(c, col.FSP, loc)
	case schema.TypeDatetime2:
		return decodeDatetime2(c, col.FSP)
	case schema.TypeTime2:
		return decodeTime2(c, col.FSP)
	}
	return Null, &schema.UnsupportedColumnTypeError{Code: byte(col.Type)}
}

func decodeInt(c *codec.Cursor, n int, unsigned bool) (Value, error) {
	if unsigned {
		v, err := c.Uint(n)
		return UintValue(v), err
	}
	v, err := c.Int(n)
	return IntValue(v), err
}

func errBadFSP(fsp int) error {
	return fmt.Errorf("fractional seconds precision %d out of range", fsp)
}
