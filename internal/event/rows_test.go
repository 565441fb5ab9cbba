package event

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/SisyphusSQ/binrepl/internal/codec"
	"github.com/SisyphusSQ/binrepl/internal/schema"
)

func tableMapBody(id uint64, db, table string, types, meta []byte) []byte {
	b := binary.LittleEndian.AppendUint64(nil, id)[:6]
	b = append(b, 1, 0)
	b = append(b, byte(len(db)))
	b = append(b, db...)
	b = append(b, 0, byte(len(table)))
	b = append(b, table...)
	b = append(b, 0)
	b = codec.PutLengthCodedInt(b, uint64(len(types)))
	b = append(b, types...)
	b = codec.PutLengthCodedInt(b, uint64(len(meta)))
	b = append(b, meta...)
	return append(b, make([]byte, bitmapSize(len(types)))...)
}

// rowsBody builds a v2 rows event body with every column present.
func rowsBody(id uint64, columns int, update bool, rows ...[]byte) []byte {
	b := binary.LittleEndian.AppendUint64(nil, id)[:6]
	b = append(b, 1, 0)
	b = append(b, 2, 0)
	b = codec.PutLengthCodedInt(b, uint64(columns))
	present := make([]byte, bitmapSize(columns))
	for i := 0; i < columns; i++ {
		present[i/8] |= 1 << (uint(i) % 8)
	}
	b = append(b, present...)
	if update {
		b = append(b, present...)
	}
	for _, r := range rows {
		b = append(b, r...)
	}
	return b
}

type rowsFixture struct {
	registry *schema.Registry
	decoder  *Decoder
}

func newRowsFixture(t *testing.T, db, table string, types, meta []byte, infos []schema.ColumnInfo) *rowsFixture {
	t.Helper()
	f := &rowsFixture{registry: schema.NewRegistry(schema.Options{})}
	f.decoder = &Decoder{Registry: f.registry}

	ev, err := f.decoder.Decode(rawEvent(TypeTableMap, tableMapBody(42, db, table, types, meta), false))
	require.NoError(t, err)
	tm := ev.(*TableMapEvent)
	require.Equal(t, uint64(42), tm.TableID)
	require.Equal(t, db, tm.Schema)
	require.Equal(t, table, tm.Table)

	lookup := schema.LookupFunc(func(_ context.Context, _, _ string) ([]schema.ColumnInfo, error) {
		return infos, nil
	})
	_, err = f.registry.Register(context.Background(), tm.Spec(), lookup)
	require.NoError(t, err)
	return f
}

func (f *rowsFixture) rows(t *testing.T, typ Type, body []byte) []RowPair {
	t.Helper()
	ev, err := f.decoder.Decode(rawEvent(typ, body, false))
	require.NoError(t, err)
	re := ev.(*RowsEvent)

	_, err = re.Rows()
	require.ErrorIs(t, err, ErrNotMaterialized)
	require.NoError(t, re.Materialize())
	rows, err := re.Rows()
	require.NoError(t, err)
	return rows
}

func TestWriteRowsBigintVarchar(t *testing.T) {
	f := newRowsFixture(t, "shop", "notes",
		[]byte{byte(schema.TypeLongLong), byte(schema.TypeVarchar)},
		[]byte{200, 0},
		[]schema.ColumnInfo{
			{Name: "id", ColumnType: "bigint(20) unsigned", IsPrimaryKey: true},
			{Name: "data", ColumnType: "varchar(50)", Charset: "utf8mb4", Collation: "utf8mb4_general_ci"},
		})

	row := []byte{0x00}
	row = binary.LittleEndian.AppendUint64(row, 1)
	row = append(row, 11)
	row = append(row, "Hello World"...)

	rows := f.rows(t, TypeWriteRowsV2, rowsBody(42, 2, false, row))
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Before)

	after := rows[0].After
	require.NotNil(t, after)
	assert.Equal(t, 2, after.Len())
	id, _ := after.Get("id")
	assert.Equal(t, KindUint, id.Kind)
	assert.Equal(t, uint64(1), id.Uint())
	data, _ := after.Get("data")
	assert.Equal(t, KindString, data.Kind)
	assert.Equal(t, "Hello World", data.String())

	var keys []string
	for p := after.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"id", "data"}, keys)
}

func TestWriteRowsPlaceholderTail(t *testing.T) {
	f := newRowsFixture(t, "shop", "users",
		[]byte{byte(schema.TypeLong), byte(schema.TypeVarchar), byte(schema.TypeLong)},
		[]byte{50, 0},
		[]schema.ColumnInfo{{Name: "id", ColumnType: "int(11)", IsPrimaryKey: true}})

	row := []byte{0x00}
	row = binary.LittleEndian.AppendUint32(row, 7)
	row = append(row, 2, 'h', 'i')
	row = binary.LittleEndian.AppendUint32(row, 99)

	rows := f.rows(t, TypeWriteRowsV2, rowsBody(42, 3, false, row))
	require.Len(t, rows, 1)

	after := rows[0].After
	require.NotNil(t, after)
	assert.Equal(t, 3, after.Len())
	id, _ := after.Get("id")
	assert.Equal(t, int64(7), id.Int())
	dropped, ok := after.Get("__dropped_col_1__")
	require.True(t, ok)
	assert.Equal(t, "hi", dropped.String())
	dropped, ok = after.Get("__dropped_col_2__")
	require.True(t, ok)
	assert.Equal(t, int64(99), dropped.Int())
}

func TestWriteRowsDecimal(t *testing.T) {
	f := newRowsFixture(t, "shop", "prices",
		[]byte{byte(schema.TypeNewDecimal)},
		[]byte{10, 2},
		[]schema.ColumnInfo{{Name: "amount", ColumnType: "decimal(10,2)"}})

	row := []byte{0x00, 0x7f, 0xff, 0xfb, 0x2d, 0xc7}
	rows := f.rows(t, TypeWriteRowsV2, rowsBody(42, 1, false, row))
	require.Len(t, rows, 1)

	v, _ := rows[0].After.Get("amount")
	require.Equal(t, KindDecimal, v.Kind)
	assert.True(t, decimal.RequireFromString("-1234.56").Equal(v.Decimal()))
	assert.Equal(t, "-1234.56", v.String())
}

func TestWriteRowsDatetime2(t *testing.T) {
	f := newRowsFixture(t, "shop", "events",
		[]byte{byte(schema.TypeDatetime2)},
		[]byte{3},
		[]schema.ColumnInfo{{Name: "at", ColumnType: "datetime(3)"}})

	row := []byte{0x00, 0x99, 0xb2, 0x44, 0x31, 0x05, 0x1a, 0x7c}
	rows := f.rows(t, TypeWriteRowsV2, rowsBody(42, 1, false, row))
	require.Len(t, rows, 1)

	v, _ := rows[0].After.Get("at")
	require.Equal(t, KindDatetime, v.Kind)
	assert.Equal(t, "2024-01-02 03:04:05.678", v.String())
	tm, ok := v.Datetime().ToTime(time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC), tm)
}

func TestUpdateAndDeleteRows(t *testing.T) {
	f := newRowsFixture(t, "shop", "users",
		[]byte{byte(schema.TypeLong), byte(schema.TypeVarchar)},
		[]byte{0x2c, 0x01},
		[]schema.ColumnInfo{
			{Name: "id", ColumnType: "int(11)", IsPrimaryKey: true},
			{Name: "name", ColumnType: "varchar(100)", Charset: "latin1"},
		})

	image := func(id int32, name string) []byte {
		b := binary.LittleEndian.AppendUint32([]byte{0x00}, uint32(id))
		b = binary.LittleEndian.AppendUint16(b, uint16(len(name)))
		return append(b, name...)
	}
	// name is NULL in the after image
	nullName := binary.LittleEndian.AppendUint32([]byte{0x02}, 7)

	rows := f.rows(t, TypeUpdateRowsV2, rowsBody(42, 2, true, image(-7, "caf\xe9"), nullName))
	require.Len(t, rows, 1)
	before, after := rows[0].Before, rows[0].After
	id, _ := before.Get("id")
	assert.Equal(t, int64(-7), id.Int())
	name, _ := before.Get("name")
	assert.Equal(t, "café", name.String())
	name, _ = after.Get("name")
	assert.True(t, name.IsNull())

	rows = f.rows(t, TypeDeleteRowsV2, rowsBody(42, 2, false, image(1, "a"), image(2, "b")))
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1].After)
	name, _ = rows[1].Before.Get("name")
	assert.Equal(t, "b", name.String())
}

func TestRowsV1PartialImage(t *testing.T) {
	f := newRowsFixture(t, "shop", "users",
		[]byte{byte(schema.TypeTiny), byte(schema.TypeTiny), byte(schema.TypeTiny)},
		nil,
		[]schema.ColumnInfo{{Name: "a"}, {Name: "b"}, {Name: "c"}})

	body := binary.LittleEndian.AppendUint64(nil, 42)[:6]
	body = append(body, 0, 0, 3, 0x05)
	body = append(body, 0x00, 1, 3)

	rows := f.rows(t, TypeWriteRowsV1, body)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].After.Len())
	_, ok := rows[0].After.Get("b")
	assert.False(t, ok)
	c, _ := rows[0].After.Get("c")
	assert.Equal(t, int64(3), c.Int())
}

func TestRowsUnknownTable(t *testing.T) {
	d := &Decoder{Registry: schema.NewRegistry(schema.Options{})}
	ev, err := d.Decode(rawEvent(TypeWriteRowsV2, rowsBody(7, 1, false, []byte{0, 1}), false))
	require.NoError(t, err)

	re := ev.(*RowsEvent)
	assert.Nil(t, re.Table)
	assert.Equal(t, RowsWrite, re.Kind())
	err = re.Materialize()
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.Equal(t, err, re.Materialize())
}

func TestRowsUnavailableTable(t *testing.T) {
	f := newRowsFixture(t, "shop", "gone",
		[]byte{byte(schema.TypeLong)}, nil, nil)

	rows := f.rows(t, TypeWriteRowsV2, rowsBody(42, 1, false, []byte{0, 1, 0, 0, 0}))
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].After.Len())
}

func TestRowsTruncatedImage(t *testing.T) {
	f := newRowsFixture(t, "shop", "t",
		[]byte{byte(schema.TypeLong)}, nil,
		[]schema.ColumnInfo{{Name: "id", ColumnType: "int"}})

	ev, err := f.decoder.Decode(rawEvent(TypeWriteRowsV2, rowsBody(42, 1, false, []byte{0, 1, 0}), false))
	require.NoError(t, err)
	err = ev.(*RowsEvent).Materialize()
	assert.ErrorIs(t, err, codec.ErrTruncatedInput)
	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestDecodeValue(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	tcs := []struct {
		name string
		col  schema.ColumnDescriptor
		data []byte
		want string
		kind Kind
	}{
		{"tiny signed", schema.ColumnDescriptor{Type: schema.TypeTiny}, []byte{0xff}, "-1", KindInt},
		{"tiny unsigned", schema.ColumnDescriptor{Type: schema.TypeTiny, Unsigned: true}, []byte{0xff}, "255", KindUint},
		{"int24", schema.ColumnDescriptor{Type: schema.TypeInt24}, []byte{0xfe, 0xff, 0xff}, "-2", KindInt},
		{"bigint unsigned", schema.ColumnDescriptor{Type: schema.TypeLongLong, Unsigned: true},
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, "18446744073709551615", KindUint},
		{"float", schema.ColumnDescriptor{Type: schema.TypeFloat}, []byte{0x00, 0x00, 0xc0, 0x3f}, "1.5", KindFloat},
		{"double", schema.ColumnDescriptor{Type: schema.TypeDouble},
			binary.LittleEndian.AppendUint64(nil, 0x400921f9f01b866e), "3.14159", KindDouble},
		{"year", schema.ColumnDescriptor{Type: schema.TypeYear}, []byte{124}, "2024", KindYear},
		{"year zero", schema.ColumnDescriptor{Type: schema.TypeYear}, []byte{0}, "0", KindYear},
		{"enum", schema.ColumnDescriptor{Type: schema.TypeEnum, LengthSize: 1, EnumValues: []string{"a", "b"}},
			[]byte{2}, "b", KindEnum},
		{"enum empty", schema.ColumnDescriptor{Type: schema.TypeEnum, LengthSize: 1, EnumValues: []string{"a"}},
			[]byte{0}, "", KindEnum},
		{"set", schema.ColumnDescriptor{Type: schema.TypeSet, LengthSize: 1, SetValues: []string{"r", "w", "x"}},
			[]byte{0x05}, "r,x", KindSet},
		{"bit", schema.ColumnDescriptor{Type: schema.TypeBit, Bits: 10}, []byte{0x02, 0x05}, "1000000101", KindBits},
		{"blob", schema.ColumnDescriptor{Type: schema.TypeBlob, LengthSize: 2}, []byte{3, 0, 1, 2, 3}, "\x01\x02\x03", KindBytes},
		{"text", schema.ColumnDescriptor{Type: schema.TypeBlob, LengthSize: 1, Charset: "utf8mb4"}, []byte{2, 'h', 'i'}, "hi", KindString},
		{"gbk text", schema.ColumnDescriptor{Type: schema.TypeVarchar, MaxLength: 20, Charset: "gbk"},
			[]byte{4, 0xc4, 0xe3, 0xba, 0xc3}, "你好", KindString},
		{"binary char", schema.ColumnDescriptor{Type: schema.TypeString, MaxLength: 4, Charset: "binary"},
			[]byte{2, 0, 1}, "\x00\x01", KindBytes},
		{"date", schema.ColumnDescriptor{Type: schema.TypeDate}, []byte{0x22, 0xd0, 0x0f}, "2024-01-02", KindDate},
		{"time", schema.ColumnDescriptor{Type: schema.TypeTime}, []byte{0x6b, 0xeb, 0xfe}, "-07:08:05", KindTime},
		{"datetime", schema.ColumnDescriptor{Type: schema.TypeDatetime},
			binary.LittleEndian.AppendUint64(nil, 20240102030405), "2024-01-02 03:04:05", KindDatetime},
		{"timestamp", schema.ColumnDescriptor{Type: schema.TypeTimestamp}, []byte{0, 0, 0, 0}, "0000-00-00 00:00:00", KindTimestamp},
		{"timestamp2", schema.ColumnDescriptor{Type: schema.TypeTimestamp2, FSP: 2},
			[]byte{0x65, 0x93, 0x6f, 0x15, 0x32}, "2024-01-02 10:04:05.50", KindTimestamp},
		{"time2", schema.ColumnDescriptor{Type: schema.TypeTime2}, []byte{0x7f, 0xef, 0x7d}, "-01:02:03", KindTime},
		{"time2 negative fraction", schema.ColumnDescriptor{Type: schema.TypeTime2, FSP: 2},
			[]byte{0x7f, 0xff, 0xfe, 0xce}, "-00:00:01.50", KindTime},
		{"json", schema.ColumnDescriptor{Type: schema.TypeJSON, LengthSize: 4},
			[]byte{13, 0, 0, 0, 0, 1, 0, 12, 0, 11, 0, 1, 0, 5, 2, 0, 97}, `{"a":2}`, KindJSON},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			col := tc.col
			c := codec.NewCursor(tc.data)
			v, err := decodeValue(c, &col, shanghai)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, v.Kind)
			assert.Equal(t, tc.want, v.String())
			assert.Equal(t, 0, c.Remaining())
		})
	}
}

func TestDecodeValueUnsupported(t *testing.T) {
	_, err := decodeValue(codec.NewCursor([]byte{1}), &schema.ColumnDescriptor{Type: schema.TypeDecimal}, time.UTC)
	var ue *schema.UnsupportedColumnTypeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, byte(schema.TypeDecimal), ue.Code)
}

func TestDecodeValueBadDecimal(t *testing.T) {
	c := codec.NewCursor(make([]byte, 16))
	_, err := decodeValue(c, &schema.ColumnDescriptor{Type: schema.TypeNewDecimal, Precision: 2, Scale: 5}, time.UTC)
	assert.ErrorIs(t, err, codec.ErrInvalidDecimal)
	assert.Equal(t, 16, c.Remaining())
}

func TestValueMarshalJSON(t *testing.T) {
	row := []byte{0, 0x7f, 0xff, 0xfb, 0x2d, 0xc7}
	v, err := decodeValue(codec.NewCursor(row[1:]), &schema.ColumnDescriptor{Type: schema.TypeNewDecimal, Precision: 10, Scale: 2}, time.UTC)
	require.NoError(t, err)

	b, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "-1234.56", gjson.ParseBytes(b).Raw)

	b, err = JSONValue(map[string]any{"k": []any{1, "x"}}).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "x", gjson.GetBytes(b, "k.1").String())

	b, err = Null.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}
