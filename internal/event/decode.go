package event

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/SisyphusSQ/binrepl/internal/codec"
	"github.com/SisyphusSQ/binrepl/internal/gtid"
)

const (
	serverVersionLen = 50
	queryPostHeader  = 13
)

func (d *Decoder) decodeFormatDescription(h Header, body []byte) (Event, error) {
	const fixed = 2 + serverVersionLen + 4 + 1

	if len(body) < fixed {
		return nil, protocolErr(h.Type.String(), fmt.Errorf("%d bytes: %w", len(body), codec.ErrTruncatedInput))
	}

	c := codec.NewCursor(body)
	ev := &FormatDescriptionEvent{Header: h, ChecksumAlgorithm: ChecksumAlgUndefined}
	ev.BinlogVersion, _ = c.Uint16()
	version, _ := c.Read(serverVersionLen)
	ev.ServerVersion = string(bytes.TrimRight(version, "\x00"))
	ev.CreateTimestamp, _ = c.Uint32()
	ev.HeaderLength, _ = c.Uint8()

	rest := c.Rest()
	if supportsChecksum(ev.ServerVersion) {
		if len(rest) < 1+ChecksumSize {
			return nil, protocolErr(h.Type.String(), fmt.Errorf("no room for checksum algorithm: %w", codec.ErrTruncatedInput))
		}
		ev.ChecksumAlgorithm = rest[len(rest)-1-ChecksumSize]
		rest = rest[:len(rest)-1-ChecksumSize]

		if ev.ChecksumAlgorithm == ChecksumAlgCRC32 && d.VerifyChecksum {
			full := make([]byte, 0, HeaderSize+len(body))
			full = append(full, encodeHeader(h)...)
			full = append(full, body...)
			if err := verifyChecksum(full); err != nil {
				return nil, protocolErr(h.Type.String(), err)
			}
		}
	}
	ev.PostHeaderLengths = bytes.Clone(rest)

	switch ev.ChecksumAlgorithm {
	case ChecksumAlgOff:
		d.Checksum = false
	case ChecksumAlgCRC32:
		d.Checksum = true
	}
	return ev, nil
}

// supportsChecksum reports whether a server of this version writes the
// checksum algorithm into the format description event, 5.6.1 and later.
func supportsChecksum(version string) bool {
	v := version
	if i := strings.IndexAny(v, "-_ "); i >= 0 {
		v = v[:i]
	}
	parts := strings.SplitN(v, ".", 3)
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return false
		}
		nums[i] = n
	}

	switch {
	case nums[0] != 5:
		return nums[0] > 5
	case nums[1] != 6:
		return nums[1] > 6
	}
	return nums[2] >= 1
}

func decodeRotate(h Header, c *codec.Cursor) (Event, error) {
	pos, err := c.Uint64()
	if err != nil {
		return nil, err
	}
	return &RotateEvent{Header: h, Position: pos, NextFile: string(c.Rest())}, nil
}

// queryHeader is the post-header shared by query and execute-load-query events.
type queryHeader struct {
	proxyID     uint32
	execTime    uint32
	schemaLen   uint8
	errorCode   uint16
	statusVarsN uint16
}

func readQueryHeader(c *codec.Cursor) (qh queryHeader, err error) {
	b, err := c.Read(queryPostHeader)
	if err != nil {
		return qh, err
	}
	qh.proxyID = uint32(codec.LEUint(b[0:4]))
	qh.execTime = uint32(codec.LEUint(b[4:8]))
	qh.schemaLen = b[8]
	qh.errorCode = uint16(codec.LEUint(b[9:11]))
	qh.statusVarsN = uint16(codec.LEUint(b[11:13]))
	return qh, nil
}

func readQueryTail(h Header, qh queryHeader, c *codec.Cursor) (QueryEvent, error) {
	ev := QueryEvent{
		Header:        h,
		ProxyID:       qh.proxyID,
		ExecutionTime: qh.execTime,
		ErrorCode:     qh.errorCode,
	}

	status, err := c.Read(int(qh.statusVarsN))
	if err != nil {
		return ev, fmt.Errorf("status vars: %w", err)
	}
	ev.StatusVars = bytes.Clone(status)

	if ev.Schema, err = c.String(int(qh.schemaLen)); err != nil {
		return ev, fmt.Errorf("schema: %w", err)
	}
	if err = c.Skip(1); err != nil {
		return ev, fmt.Errorf("schema terminator: %w", err)
	}
	ev.Query = string(c.Rest())
	return ev, nil
}

func decodeQuery(h Header, c *codec.Cursor) (Event, error) {
	qh, err := readQueryHeader(c)
	if err != nil {
		return nil, err
	}
	ev, err := readQueryTail(h, qh, c)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func decodeExecuteLoadQuery(h Header, c *codec.Cursor) (Event, error) {
	qh, err := readQueryHeader(c)
	if err != nil {
		return nil, err
	}

	b, err := c.Read(13)
	if err != nil {
		return nil, err
	}
	ev := &ExecuteLoadQueryEvent{
		FileID:      uint32(codec.LEUint(b[0:4])),
		BlockStart:  uint32(codec.LEUint(b[4:8])),
		BlockEnd:    uint32(codec.LEUint(b[8:12])),
		DupHandling: b[12],
	}
	if ev.QueryEvent, err = readQueryTail(h, qh, c); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeXid(h Header, c *codec.Cursor) (Event, error) {
	xid, err := c.Uint64()
	if err != nil {
		return nil, err
	}
	return &XidEvent{Header: h, XID: xid}, nil
}

const logicalTimestampTypeCode = 2

func decodeGtid(h Header, c *codec.Cursor) (Event, error) {
	b, err := c.Read(1 + 16 + 8)
	if err != nil {
		return nil, err
	}

	ev := &GtidEvent{
		Header:     h,
		Anonymous:  h.Type == TypeAnonymousGtid,
		CommitFlag: b[0] != 0,
		GNO:        codec.LEUint(b[17:25]),
	}
	copy(ev.SID[:], b[1:17])

	if c.Remaining() >= 17 {
		lt, _ := c.Read(17)
		if lt[0] == logicalTimestampTypeCode {
			ev.LastCommitted = int64(codec.LEUint(lt[1:9]))
			ev.SequenceNumber = int64(codec.LEUint(lt[9:17]))
		}
	}
	// commit timestamps, transaction length and server versions are not kept
	c.Rest()
	return ev, nil
}

func decodePreviousGTIDs(h Header, c *codec.Cursor) (Event, error) {
	set, err := gtid.DecodeSet(c.Rest())
	if err != nil {
		return nil, err
	}
	return &PreviousGTIDsEvent{Header: h, Set: set}, nil
}

func decodeIntvar(h Header, c *codec.Cursor) (Event, error) {
	b, err := c.Read(9)
	if err != nil {
		return nil, err
	}
	return &IntvarEvent{Header: h, Kind: IntvarType(b[0]), Value: codec.LEUint(b[1:9])}, nil
}

func decodeBeginLoadQuery(h Header, c *codec.Cursor) (Event, error) {
	id, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	return &BeginLoadQueryEvent{Header: h, FileID: id, Block: bytes.Clone(c.Rest())}, nil
}

func decodeRowsQuery(h Header, c *codec.Cursor) (Event, error) {
	// the length byte is truncated to 255, the text runs to the end
	if err := c.Skip(1); err != nil {
		return nil, err
	}
	return &RowsQueryEvent{Header: h, Query: string(c.Rest())}, nil
}

func decodeTableMap(h Header, c *codec.Cursor) (Event, error) {
	ev := &TableMapEvent{Header: h}

	var err error
	if ev.TableID, err = c.Uint48(); err != nil {
		return nil, err
	}
	if ev.TableFlags, err = c.Uint16(); err != nil {
		return nil, err
	}
	if ev.Schema, err = readNameWithTerminator(c); err != nil {
		return nil, fmt.Errorf("schema name: %w", err)
	}
	if ev.Table, err = readNameWithTerminator(c); err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}

	if ev.ColumnCount, _, err = c.LengthCodedInt(); err != nil {
		return nil, fmt.Errorf("column count: %w", err)
	}
	if ev.ColumnCount > uint64(c.Remaining()) {
		return nil, fmt.Errorf("column count %d: %w", ev.ColumnCount, codec.ErrTruncatedInput)
	}
	types, _ := c.Read(int(ev.ColumnCount))
	ev.ColumnTypes = bytes.Clone(types)

	meta, _, err := c.LengthCodedString()
	if err != nil {
		return nil, fmt.Errorf("column metadata: %w", err)
	}
	ev.ColumnMeta = bytes.Clone(meta)

	nulls, err := c.Read(bitmapSize(int(ev.ColumnCount)))
	if err != nil {
		return nil, fmt.Errorf("null bitmap: %w", err)
	}
	ev.NullBitmap = bytes.Clone(nulls)
	if c.Remaining() > 0 {
		ev.OptionalMeta = bytes.Clone(c.Rest())
	}
	return ev, nil
}

func readNameWithTerminator(c *codec.Cursor) (string, error) {
	b, err := c.LengthPrefixed(1)
	if err != nil {
		return "", err
	}
	if err = c.Skip(1); err != nil {
		return "", err
	}
	return string(b), nil
}

func bitmapSize(n int) int {
	return (n + 7) / 8
}

// encodeHeader is the inverse of DecodeHeader.
func encodeHeader(h Header) []byte {
	b := make([]byte, 0, HeaderSize)
	b = appendUint32(b, h.Timestamp)
	b = append(b, byte(h.Type))
	b = appendUint32(b, h.ServerID)
	b = appendUint32(b, h.EventSize)
	b = appendUint32(b, h.NextPos)
	return append(b, byte(h.Flags), byte(h.Flags>>8))
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
