package event

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SisyphusSQ/binrepl/internal/codec"
	"github.com/SisyphusSQ/binrepl/internal/gtid"
)

func rawEvent(typ Type, body []byte, checksum bool) []byte {
	size := HeaderSize + len(body)
	if checksum {
		size += ChecksumSize
	}
	data := encodeHeader(Header{
		Timestamp: 1700000000,
		Type:      typ,
		ServerID:  1,
		EventSize: uint32(size),
		NextPos:   1000 + uint32(size),
	})
	data = append(data, body...)
	if checksum {
		data = AppendChecksum(data)
	}
	return data
}

func queryBody(schema, query string) []byte {
	b := make([]byte, 0, 64)
	b = binary.LittleEndian.AppendUint32(b, 7) // proxy id
	b = binary.LittleEndian.AppendUint32(b, 2) // exec time
	b = append(b, byte(len(schema)))           // schema length
	b = binary.LittleEndian.AppendUint16(b, 0) // error code
	b = binary.LittleEndian.AppendUint16(b, 3) // status vars length
	b = append(b, 0x00, 0x01, 0x02)
	b = append(b, schema...)
	b = append(b, 0)
	return append(b, query...)
}

func TestDecodeHeader(t *testing.T) {
	data := rawEvent(TypeXid, make([]byte, 8), false)
	h, err := DecodeHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(1700000000), h.Timestamp)
	assert.Equal(t, TypeXid, h.Type)
	assert.Equal(t, uint32(1), h.ServerID)
	assert.Equal(t, uint32(27), h.EventSize)
	assert.Equal(t, uint32(1027), h.NextPos)
	assert.Equal(t, uint32(1000), h.StartPos())
	assert.False(t, h.Artificial())

	_, err = DecodeHeader(data[:10])
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, ErrShortEvent)
}

func TestDecodeRotate(t *testing.T) {
	body := binary.LittleEndian.AppendUint64(nil, 4)
	body = append(body, "mysql-bin.000002"...)

	d := &Decoder{}
	ev, err := d.Decode(rawEvent(TypeRotate, body, false))
	require.NoError(t, err)
	rotate, ok := ev.(*RotateEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(4), rotate.Position)
	assert.Equal(t, "mysql-bin.000002", rotate.NextFile)
}

func TestDecodeQuery(t *testing.T) {
	d := &Decoder{Checksum: true, VerifyChecksum: true}
	ev, err := d.Decode(rawEvent(TypeQuery, queryBody("shop", "BEGIN"), true))
	require.NoError(t, err)

	q, ok := ev.(*QueryEvent)
	require.True(t, ok)
	assert.Equal(t, uint32(7), q.ProxyID)
	assert.Equal(t, uint32(2), q.ExecutionTime)
	assert.Equal(t, []byte{0, 1, 2}, q.StatusVars)
	assert.Equal(t, "shop", q.Schema)
	assert.Equal(t, "BEGIN", q.Query)
}

func TestDecodeExecuteLoadQuery(t *testing.T) {
	qb := queryBody("shop", "LOAD DATA INFILE 'x' INTO TABLE t")
	body := append([]byte(nil), qb[:13]...)
	body = binary.LittleEndian.AppendUint32(body, 9)
	body = binary.LittleEndian.AppendUint32(body, 10)
	body = binary.LittleEndian.AppendUint32(body, 20)
	body = append(body, 1)
	body = append(body, qb[13:]...)

	ev, err := (&Decoder{}).Decode(rawEvent(TypeExecuteLoadQuery, body, false))
	require.NoError(t, err)
	el, ok := ev.(*ExecuteLoadQueryEvent)
	require.True(t, ok)
	assert.Equal(t, uint32(9), el.FileID)
	assert.Equal(t, uint32(10), el.BlockStart)
	assert.Equal(t, uint32(20), el.BlockEnd)
	assert.Equal(t, "shop", el.Schema)
	assert.Equal(t, "LOAD DATA INFILE 'x' INTO TABLE t", el.Query)
	assert.Equal(t, TypeExecuteLoadQuery, el.EventHeader().Type)
}

func TestDecodeXidAndTrailingBytes(t *testing.T) {
	d := &Decoder{}
	ev, err := d.Decode(rawEvent(TypeXid, binary.LittleEndian.AppendUint64(nil, 99), false))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), ev.(*XidEvent).XID)

	_, err = d.Decode(rawEvent(TypeXid, make([]byte, 9), false))
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "XIDEvent", pe.Op)

	_, err = d.Decode(rawEvent(TypeXid, make([]byte, 4), false))
	assert.ErrorIs(t, err, codec.ErrTruncatedInput)
}

func TestDecodeSizeMismatch(t *testing.T) {
	data := rawEvent(TypeXid, make([]byte, 8), false)
	_, err := (&Decoder{}).Decode(append(data, 0))
	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestDecodeGtid(t *testing.T) {
	sid := uuid.MustParse("3e11fa47-71ca-11e1-9e33-c80aa9429562")
	body := []byte{1}
	body = append(body, sid[:]...)
	body = binary.LittleEndian.AppendUint64(body, 23)
	body = append(body, logicalTimestampTypeCode)
	body = binary.LittleEndian.AppendUint64(body, 5)
	body = binary.LittleEndian.AppendUint64(body, 6)
	// commit timestamps
	body = append(body, make([]byte, 14)...)

	ev, err := (&Decoder{}).Decode(rawEvent(TypeGtid, body, false))
	require.NoError(t, err)
	g := ev.(*GtidEvent)
	assert.True(t, g.CommitFlag)
	assert.False(t, g.Anonymous)
	assert.Equal(t, "3e11fa47-71ca-11e1-9e33-c80aa9429562:23", g.GTID())
	assert.Equal(t, int64(5), g.LastCommitted)
	assert.Equal(t, int64(6), g.SequenceNumber)
}

func TestDecodePreviousGTIDs(t *testing.T) {
	set, err := gtid.ParseSet("3e11fa47-71ca-11e1-9e33-c80aa9429562:1-5")
	require.NoError(t, err)

	ev, err := (&Decoder{}).Decode(rawEvent(TypePreviousGtids, set.Encode(), false))
	require.NoError(t, err)
	assert.True(t, set.Equal(ev.(*PreviousGTIDsEvent).Set))
}

func TestDecodeSmallEvents(t *testing.T) {
	d := &Decoder{}

	ev, err := d.Decode(rawEvent(TypeHeartbeat, []byte("mysql-bin.000003"), false))
	require.NoError(t, err)
	assert.Equal(t, "mysql-bin.000003", ev.(*HeartbeatEvent).LogName)

	body := append([]byte{byte(IntvarInsertID)}, binary.LittleEndian.AppendUint64(nil, 1001)...)
	ev, err = d.Decode(rawEvent(TypeIntvar, body, false))
	require.NoError(t, err)
	iv := ev.(*IntvarEvent)
	assert.Equal(t, IntvarInsertID, iv.Kind)
	assert.Equal(t, uint64(1001), iv.Value)

	body = append(binary.LittleEndian.AppendUint32(nil, 3), "a,b\n"...)
	ev, err = d.Decode(rawEvent(TypeBeginLoadQuery, body, false))
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b\n"), ev.(*BeginLoadQueryEvent).Block)

	ev, err = d.Decode(rawEvent(TypeRowsQuery, append([]byte{8}, "UPDATE t"...), false))
	require.NoError(t, err)
	assert.Equal(t, "UPDATE t", ev.(*RowsQueryEvent).Query)

	ev, err = d.Decode(rawEvent(TypeStop, nil, false))
	require.NoError(t, err)
	assert.IsType(t, &StopEvent{}, ev)

	ev, err = d.Decode(rawEvent(TypeIncident, []byte{1, 0, 0}, false))
	require.NoError(t, err)
	un := ev.(*UnimplementedEvent)
	assert.Equal(t, TypeIncident, un.Code)
	assert.Equal(t, []byte{1, 0, 0}, un.Body)
}

func fdeBody(version string, alg byte) []byte {
	b := binary.LittleEndian.AppendUint16(nil, 4)
	v := make([]byte, serverVersionLen)
	copy(v, version)
	b = append(b, v...)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, HeaderSize)
	b = append(b, 56, 13, 0, 8, 0)
	return append(b, alg)
}

func TestFormatDescriptionNegotiatesChecksum(t *testing.T) {
	d := &Decoder{VerifyChecksum: true}
	ev, err := d.Decode(rawEvent(TypeFormatDescription, fdeBody("8.0.36-log", ChecksumAlgCRC32), true))
	require.NoError(t, err)

	fde := ev.(*FormatDescriptionEvent)
	assert.Equal(t, uint16(4), fde.BinlogVersion)
	assert.Equal(t, "8.0.36-log", fde.ServerVersion)
	assert.Equal(t, uint8(HeaderSize), fde.HeaderLength)
	assert.Equal(t, []byte{56, 13, 0, 8, 0}, fde.PostHeaderLengths)
	assert.Equal(t, byte(ChecksumAlgCRC32), fde.ChecksumAlgorithm)
	assert.True(t, d.Checksum)

	// later events must now carry a trailer
	_, err = d.Decode(rawEvent(TypeXid, make([]byte, 8), true))
	require.NoError(t, err)

	_, err = d.Decode(rawEvent(TypeFormatDescription, fdeBody("8.0.36", ChecksumAlgOff), true))
	require.NoError(t, err)
	assert.False(t, d.Checksum)
}

func TestFormatDescriptionOldServer(t *testing.T) {
	d := &Decoder{}
	body := fdeBody("5.5.62", 0)
	body = body[:len(body)-1]
	ev, err := d.Decode(rawEvent(TypeFormatDescription, body, false))
	require.NoError(t, err)
	assert.Equal(t, byte(ChecksumAlgUndefined), ev.(*FormatDescriptionEvent).ChecksumAlgorithm)
	assert.False(t, d.Checksum)
}

func TestSupportsChecksum(t *testing.T) {
	for version, want := range map[string]bool{
		"5.5.62":          false,
		"5.6.0":           false,
		"5.6.1":           true,
		"5.7.44-log":      true,
		"8.0.36":          true,
		"10.6.16-MariaDB": true,
		"not-a-version":   false,
	} {
		assert.Equal(t, want, supportsChecksum(version), version)
	}
}

func TestChecksumMismatch(t *testing.T) {
	data := rawEvent(TypeXid, make([]byte, 8), true)
	data[HeaderSize] ^= 0xff

	_, err := (&Decoder{Checksum: true, VerifyChecksum: true}).Decode(data)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	// without verification only the trailer is stripped
	_, err = (&Decoder{Checksum: true}).Decode(data)
	assert.NoError(t, err)
}

func TestTransactionPayload(t *testing.T) {
	inner := append(rawEvent(TypeQuery, queryBody("shop", "BEGIN"), false),
		rawEvent(TypeXid, binary.LittleEndian.AppendUint64(nil, 5), false)...)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(inner, nil)
	require.NoError(t, enc.Close())

	field := func(b []byte, typ, v uint64) []byte {
		val := codec.PutLengthCodedInt(nil, v)
		b = codec.PutLengthCodedInt(b, typ)
		b = codec.PutLengthCodedInt(b, uint64(len(val)))
		return append(b, val...)
	}
	var body []byte
	body = field(body, payloadSizeField, uint64(len(compressed)))
	body = field(body, payloadCompressionType, CompressionZstd)
	body = field(body, payloadUncompressed, uint64(len(inner)))
	body = append(body, payloadHeaderEnd)
	body = append(body, compressed...)

	ev, err := (&Decoder{Checksum: true}).Decode(rawEvent(TypeTransactionPayload, body, true))
	require.NoError(t, err)
	tp := ev.(*TransactionPayloadEvent)
	assert.Equal(t, uint64(CompressionZstd), tp.CompressionType)
	assert.Equal(t, inner, tp.Payload)

	events, err := tp.InnerEvents()
	require.NoError(t, err)
	require.Len(t, events, 2)

	d := &Decoder{}
	first, err := d.Decode(events[0])
	require.NoError(t, err)
	assert.Equal(t, "BEGIN", first.(*QueryEvent).Query)
	second, err := d.Decode(events[1])
	require.NoError(t, err)
	assert.Equal(t, uint64(5), second.(*XidEvent).XID)

	tp.Payload = tp.Payload[:len(tp.Payload)-3]
	_, err = tp.InnerEvents()
	var pe *ProtocolError
	assert.True(t, errors.As(err, &pe))
}

func TestTransactionPayloadOversized(t *testing.T) {
	field := func(b []byte, typ, v uint64) []byte {
		val := codec.PutLengthCodedInt(nil, v)
		b = codec.PutLengthCodedInt(b, typ)
		b = codec.PutLengthCodedInt(b, uint64(len(val)))
		return append(b, val...)
	}
	var body []byte
	body = field(body, payloadCompressionType, CompressionZstd)
	body = field(body, payloadUncompressed, 1<<62)
	body = append(body, payloadHeaderEnd)
	body = append(body, 0x28, 0xb5, 0x2f, 0xfd)

	_, err := (&Decoder{}).Decode(rawEvent(TypeTransactionPayload, body, false))
	assert.ErrorIs(t, err, errPayloadTooLarge)
	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestTransactionPayloadUncompressed(t *testing.T) {
	inner := rawEvent(TypeXid, binary.LittleEndian.AppendUint64(nil, 8), false)
	none := codec.PutLengthCodedInt(nil, CompressionNone)
	body := []byte{payloadCompressionType, byte(len(none))}
	body = append(body, none...)
	body = append(body, payloadHeaderEnd)
	body = append(body, inner...)

	ev, err := (&Decoder{}).Decode(rawEvent(TypeTransactionPayload, body, false))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(inner, ev.(*TransactionPayloadEvent).Payload))
}
