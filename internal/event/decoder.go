package event

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/SisyphusSQ/binrepl/internal/codec"
	"github.com/SisyphusSQ/binrepl/internal/schema"
)

// Decoder turns raw events into Event values. It is not safe for concurrent use.
type Decoder struct {
	// Checksum reports whether events end with a CRC32 trailer. A format
	// description event with a known algorithm updates it.
	Checksum       bool
	VerifyChecksum bool
	// Registry resolves the table of rows events, may be nil.
	Registry *schema.Registry
	// Location renders TIMESTAMP columns. UTC when nil.
	Location *time.Location
}

func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, protocolErr("header", fmt.Errorf("%d bytes: %w", len(data), ErrShortEvent))
	}
	return Header{
		Timestamp: binary.LittleEndian.Uint32(data[0:]),
		Type:      Type(data[4]),
		ServerID:  binary.LittleEndian.Uint32(data[5:]),
		EventSize: binary.LittleEndian.Uint32(data[9:]),
		NextPos:   binary.LittleEndian.Uint32(data[13:]),
		Flags:     binary.LittleEndian.Uint16(data[17:]),
	}, nil
}

// Decode decodes one complete event, header included.
func (d *Decoder) Decode(data []byte) (Event, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if int(h.EventSize) != len(data) {
		return nil, protocolErr(h.Type.String(),
			fmt.Errorf("header declares %d bytes, got %d", h.EventSize, len(data)))
	}

	body := data[HeaderSize:]
	if h.Type == TypeFormatDescription {
		return d.decodeFormatDescription(h, body)
	}

	if d.Checksum {
		if len(body) < ChecksumSize {
			return nil, protocolErr(h.Type.String(), fmt.Errorf("no room for checksum: %w", ErrShortEvent))
		}
		if d.VerifyChecksum {
			if err = verifyChecksum(data); err != nil {
				return nil, protocolErr(h.Type.String(), err)
			}
		}
		body = body[:len(body)-ChecksumSize]
	}

	ev, err := d.decodeBody(h, body)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, protocolErr(h.Type.String(), err)
	}
	return ev, nil
}

func (d *Decoder) decodeBody(h Header, body []byte) (Event, error) {
	c := codec.NewCursor(body)

	var (
		ev  Event
		err error
	)
	switch h.Type {
	case TypeRotate:
		ev, err = decodeRotate(h, c)
	case TypeQuery:
		ev, err = decodeQuery(h, c)
	case TypeExecuteLoadQuery:
		ev, err = decodeExecuteLoadQuery(h, c)
	case TypeXid:
		ev, err = decodeXid(h, c)
	case TypeGtid, TypeAnonymousGtid:
		ev, err = decodeGtid(h, c)
	case TypePreviousGtids:
		ev, err = decodePreviousGTIDs(h, c)
	case TypeHeartbeat:
		ev = &HeartbeatEvent{Header: h, LogName: string(c.Rest())}
	case TypeIntvar:
		ev, err = decodeIntvar(h, c)
	case TypeBeginLoadQuery:
		ev, err = decodeBeginLoadQuery(h, c)
	case TypeTableMap:
		ev, err = decodeTableMap(h, c)
	case TypeWriteRowsV1, TypeUpdateRowsV1, TypeDeleteRowsV1,
		TypeWriteRowsV2, TypeUpdateRowsV2, TypeDeleteRowsV2:
		ev, err = d.decodeRows(h, c)
	case TypeRowsQuery:
		ev, err = decodeRowsQuery(h, c)
	case TypeTransactionPayload:
		ev, err = decodeTransactionPayload(h, c)
	case TypeStop:
		ev = &StopEvent{Header: h}
	default:
		ev = &UnimplementedEvent{Header: h, Code: h.Type, Body: bytes.Clone(c.Rest())}
	}
	if err != nil {
		return nil, err
	}

	if c.Remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after body", c.Remaining())
	}
	return ev, nil
}

func verifyChecksum(data []byte) error {
	n := len(data) - ChecksumSize
	want := binary.LittleEndian.Uint32(data[n:])
	if got := crc32.ChecksumIEEE(data[:n]); got != want {
		return fmt.Errorf("%w: computed %08x, trailer %08x", ErrChecksumMismatch, got, want)
	}
	return nil
}

// AppendChecksum appends the CRC32 trailer of an event.
func AppendChecksum(data []byte) []byte {
	return binary.LittleEndian.AppendUint32(data, crc32.ChecksumIEEE(data))
}
