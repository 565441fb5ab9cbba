package event

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/SisyphusSQ/binrepl/internal/codec"
)

// transaction payload header fields
const (
	payloadHeaderEnd       = 0
	payloadSizeField       = 1
	payloadCompressionType = 2
	payloadUncompressed    = 3
)

const (
	// max_allowed_packet upper bound, no transaction payload is larger
	maxPayloadSize = 1 << 30
	// inflated buffers grow past this instead of trusting the header
	maxPayloadPrealloc = 16 << 20
)

var errPayloadTooLarge = errors.New("transaction payload too large")

var zstdDecoder, _ = zstd.NewReader(nil,
	zstd.WithDecoderConcurrency(1),
	zstd.WithDecoderMaxMemory(maxPayloadSize))

func decodeTransactionPayload(h Header, c *codec.Cursor) (Event, error) {
	ev := &TransactionPayloadEvent{Header: h, CompressionType: CompressionNone}

	for {
		typ, _, err := c.LengthCodedInt()
		if err != nil {
			return nil, fmt.Errorf("payload field type: %w", err)
		}
		if typ == payloadHeaderEnd {
			break
		}

		val, _, err := c.LengthCodedString()
		if err != nil {
			return nil, fmt.Errorf("payload field %d: %w", typ, err)
		}
		v, _, err := codec.NewCursor(val).LengthCodedInt()
		if err != nil {
			return nil, fmt.Errorf("payload field %d value: %w", typ, err)
		}

		switch typ {
		case payloadSizeField:
			ev.PayloadSize = v
		case payloadCompressionType:
			ev.CompressionType = v
		case payloadUncompressed:
			ev.UncompressedSize = v
		}
	}

	if ev.UncompressedSize > maxPayloadSize {
		return nil, fmt.Errorf("uncompressed size %d: %w", ev.UncompressedSize, errPayloadTooLarge)
	}

	raw := c.Rest()
	switch ev.CompressionType {
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(raw, make([]byte, 0, min(ev.UncompressedSize, maxPayloadPrealloc)))
		if err != nil {
			return nil, fmt.Errorf("zstd payload: %w", err)
		}
		ev.Payload = out
	case CompressionNone:
		ev.Payload = append([]byte(nil), raw...)
	default:
		return nil, fmt.Errorf("unknown payload compression type %d", ev.CompressionType)
	}

	if ev.UncompressedSize != 0 && uint64(len(ev.Payload)) != ev.UncompressedSize {
		return nil, fmt.Errorf("payload inflated to %d bytes, header says %d", len(ev.Payload), ev.UncompressedSize)
	}
	return ev, nil
}

// InnerEvents splits the payload into complete raw events. Inner events
// carry no checksum.
func (e *TransactionPayloadEvent) InnerEvents() ([][]byte, error) {
	var (
		out [][]byte
		b   = e.Payload
	)
	for len(b) > 0 {
		if len(b) < HeaderSize {
			return nil, protocolErr(e.Type.String(), fmt.Errorf("%d bytes left: %w", len(b), ErrShortEvent))
		}
		size := int(binary.LittleEndian.Uint32(b[9:]))
		if size < HeaderSize || size > len(b) {
			return nil, protocolErr(e.Type.String(), fmt.Errorf("inner event of %d bytes, %d left", size, len(b)))
		}
		out = append(out, b[:size])
		b = b[size:]
	}
	return out, nil
}
