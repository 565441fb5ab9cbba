// Package eventtest builds binlog events for tests.
package eventtest

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/SisyphusSQ/binrepl/internal/codec"
	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/schema"
)

// Timestamp is the header timestamp of every built event.
const Timestamp = 1700000000

// Encode returns a complete event starting at pos. A zero pos yields an
// event without a log position, as the server sends for artificial events.
func Encode(typ event.Type, body []byte, pos uint32, flags uint16, checksum bool) []byte {
	if typ == event.TypeFormatDescription && !checksum {
		// the algorithm byte is followed by a checksum field even when off
		body = append(body[:len(body):len(body)], 0, 0, 0, 0)
	}
	size := uint32(event.HeaderSize + len(body))
	if checksum {
		size += event.ChecksumSize
	}
	var nextPos uint32
	if pos != 0 {
		nextPos = pos + size
	}
	b := binary.LittleEndian.AppendUint32(nil, Timestamp)
	b = append(b, byte(typ))
	b = binary.LittleEndian.AppendUint32(b, 1)
	b = binary.LittleEndian.AppendUint32(b, size)
	b = binary.LittleEndian.AppendUint32(b, nextPos)
	b = binary.LittleEndian.AppendUint16(b, flags)
	b = append(b, body...)
	if checksum {
		b = event.AppendChecksum(b)
	}
	return b
}

// Stream lays out events back to back from Pos.
type Stream struct {
	Pos      uint32
	Checksum bool
}

func (s *Stream) Event(typ event.Type, body []byte) []byte {
	data := Encode(typ, body, s.Pos, 0, s.Checksum)
	s.Pos += uint32(len(data))
	return data
}

func (s *Stream) Artificial(typ event.Type, body []byte) []byte {
	return Encode(typ, body, 0, event.FlagArtificial, s.Checksum)
}

func RotateBody(pos uint64, file string) []byte {
	return append(binary.LittleEndian.AppendUint64(nil, pos), file...)
}

// FDEBody is a v4 format description of an 8.0 server.
func FDEBody(alg byte) []byte {
	b := binary.LittleEndian.AppendUint16(nil, 4)
	v := make([]byte, 50)
	copy(v, "8.0.36")
	b = append(b, v...)
	b = binary.LittleEndian.AppendUint32(b, 0)
	return append(b, event.HeaderSize, 56, 13, 0, 8, 0, alg)
}

func QueryBody(db, query string) []byte {
	b := binary.LittleEndian.AppendUint32(nil, 1)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, byte(len(db)), 0, 0, 0, 0)
	b = append(b, db...)
	b = append(b, 0)
	return append(b, query...)
}

func XidBody(xid uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, xid)
}

func GtidBody(sid uuid.UUID, gno uint64) []byte {
	b := append([]byte{1}, sid[:]...)
	return binary.LittleEndian.AppendUint64(b, gno)
}

// TableMapBody describes (id INT, name VARCHAR(50) NULL).
func TableMapBody(id uint64, db, table string) []byte {
	b := binary.LittleEndian.AppendUint64(nil, id)[:6]
	b = append(b, 1, 0, byte(len(db)))
	b = append(b, db...)
	b = append(b, 0, byte(len(table)))
	b = append(b, table...)
	b = append(b, 0)
	b = codec.PutLengthCodedInt(b, 2)
	b = append(b, byte(schema.TypeLong), byte(schema.TypeVarchar))
	b = codec.PutLengthCodedInt(b, 2)
	b = append(b, 200, 0)
	return append(b, 0x02)
}

// TableMapBodyWithNames is TableMapBody with column names and primary key
// in the optional metadata, as logged with binlog_row_metadata=FULL.
func TableMapBodyWithNames(id uint64, db, table string) []byte {
	var names []byte
	for _, n := range []string{"id", "name"} {
		names = codec.PutLengthCodedInt(names, uint64(len(n)))
		names = append(names, n...)
	}
	b := append(TableMapBody(id, db, table), 4)
	b = codec.PutLengthCodedInt(b, uint64(len(names)))
	b = append(b, names...)
	// simple primary key on the first column
	return append(b, 8, 1, 0)
}

// User is one row of the table described by TableMapBody.
type User struct {
	ID   int32
	Name string
	// NullName writes NULL instead of Name
	NullName bool
}

// RowsBody is a v2 rows event body. Updates take before and after images
// in turn.
func RowsBody(id uint64, update bool, rows ...User) []byte {
	b := binary.LittleEndian.AppendUint64(nil, id)[:6]
	b = append(b, 1, 0, 2, 0, 2, 0x03)
	if update {
		b = append(b, 0x03)
	}
	for _, u := range rows {
		if u.NullName {
			b = append(b, 0x02)
			b = binary.LittleEndian.AppendUint32(b, uint32(u.ID))
			continue
		}
		b = append(b, 0x00)
		b = binary.LittleEndian.AppendUint32(b, uint32(u.ID))
		b = append(b, byte(len(u.Name)))
		b = append(b, u.Name...)
	}
	return b
}

func WriteRowsBody(id uint64, rowID int32, name string) []byte {
	return RowsBody(id, false, User{ID: rowID, Name: name})
}

// UsersColumns is what information_schema reports for TableMapBody tables.
func UsersColumns() []schema.ColumnInfo {
	return []schema.ColumnInfo{
		{Name: "id", ColumnType: "int(11)", IsPrimaryKey: true},
		{Name: "name", ColumnType: "varchar(50)", Charset: "utf8mb4", Collation: "utf8mb4_general_ci"},
	}
}

// Rows decodes a rows event of typ against a users table with id 8 in db.
func Rows(db, table string, typ event.Type, update bool, rows ...User) (*event.RowsEvent, error) {
	reg := schema.NewRegistry(schema.Options{})
	d := &event.Decoder{Registry: reg}

	ev, err := d.Decode(Encode(event.TypeTableMap, TableMapBody(8, db, table), 4, 0, false))
	if err != nil {
		return nil, err
	}
	lookup := schema.LookupFunc(func(context.Context, string, string) ([]schema.ColumnInfo, error) {
		return UsersColumns(), nil
	})
	if _, err = reg.Register(context.Background(), ev.(*event.TableMapEvent).Spec(), lookup); err != nil {
		return nil, err
	}

	ev, err = d.Decode(Encode(typ, RowsBody(8, update, rows...), 100, 0, false))
	if err != nil {
		return nil, err
	}
	re := ev.(*event.RowsEvent)
	return re, re.Materialize()
}
