// Package codec reads the little-endian and big-endian primitives the
// replication protocol is built from.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrTruncatedInput  = errors.New("truncated input")
	ErrMalformedVarint = errors.New("malformed varint")
	ErrInvalidDecimal  = errors.New("invalid decimal precision or scale")
)

// Cursor is a forward-only reader over a byte slice. Bytes handed back with
// Unread are returned again before the remaining input.
type Cursor struct {
	buf     []byte
	pos     int
	pending []byte
}

func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Pos is the number of bytes consumed from the underlying slice.
func (c *Cursor) Pos() int {
	return c.pos - len(c.pending)
}

func (c *Cursor) Remaining() int {
	return len(c.pending) + len(c.buf) - c.pos
}

// Read returns exactly n bytes. The returned slice aliases the input unless
// pending bytes are involved.
func (c *Cursor) Read(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("read %d bytes at offset %d, %d left: %w", n, c.Pos(), c.Remaining(), ErrTruncatedInput)
	}

	if len(c.pending) == 0 {
		b := c.buf[c.pos : c.pos+n]
		c.pos += n
		return b, nil
	}

	out := make([]byte, 0, n)
	take := min(n, len(c.pending))
	out = append(out, c.pending[:take]...)
	c.pending = c.pending[take:]
	if rest := n - take; rest > 0 {
		out = append(out, c.buf[c.pos:c.pos+rest]...)
		c.pos += rest
	}
	return out, nil
}

// Unread logically prepends b to the remaining input.
func (c *Cursor) Unread(b []byte) {
	if len(b) == 0 {
		return
	}
	p := make([]byte, 0, len(b)+len(c.pending))
	p = append(p, b...)
	c.pending = append(p, c.pending...)
}

func (c *Cursor) Skip(n int) error {
	_, err := c.Read(n)
	return err
}

// Rest consumes and returns everything left.
func (c *Cursor) Rest() []byte {
	b, _ := c.Read(c.Remaining())
	return b
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint reads an n byte little-endian unsigned integer, 1 <= n <= 8.
func (c *Cursor) Uint(n int) (uint64, error) {
	b, err := c.Read(n)
	if err != nil {
		return 0, err
	}
	return LEUint(b), nil
}

// UintBE reads an n byte big-endian unsigned integer, 1 <= n <= 8.
func (c *Cursor) UintBE(n int) (uint64, error) {
	b, err := c.Read(n)
	if err != nil {
		return 0, err
	}
	return BEUint(b), nil
}

func (c *Cursor) Uint16() (uint16, error) {
	v, err := c.Uint(2)
	return uint16(v), err
}

func (c *Cursor) Uint24() (uint32, error) {
	v, err := c.Uint(3)
	return uint32(v), err
}

func (c *Cursor) Uint32() (uint32, error) {
	v, err := c.Uint(4)
	return uint32(v), err
}

func (c *Cursor) Uint48() (uint64, error) {
	return c.Uint(6)
}

func (c *Cursor) Uint64() (uint64, error) {
	return c.Uint(8)
}

// Int reads an n byte little-endian two's complement integer.
func (c *Cursor) Int(n int) (int64, error) {
	v, err := c.Uint(n)
	if err != nil {
		return 0, err
	}
	return SignExtend(v, n), nil
}

// IntBE reads an n byte big-endian two's complement integer.
func (c *Cursor) IntBE(n int) (int64, error) {
	v, err := c.UintBE(n)
	if err != nil {
		return 0, err
	}
	return SignExtend(v, n), nil
}

func (c *Cursor) Float32() (float32, error) {
	v, err := c.Uint(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

func (c *Cursor) Float64() (float64, error) {
	v, err := c.Uint(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Varint reads 7 data bits per byte, least significant group first; a set
// high bit means another byte follows. Used for binary JSON lengths.
func (c *Cursor) Varint() (uint64, error) {
	var v uint64
	for i := 0; i < 5; i++ {
		b, err := c.Uint8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrMalformedVarint
}

// LengthCodedInt reads a length-encoded integer. 0xFB reports isNull with no
// value bytes.
func (c *Cursor) LengthCodedInt() (v uint64, isNull bool, err error) {
	first, err := c.Uint8()
	if err != nil {
		return 0, false, err
	}

	switch {
	case first < 0xfb:
		return uint64(first), false, nil
	case first == 0xfb:
		return 0, true, nil
	case first == 0xfc:
		v, err = c.Uint(2)
	case first == 0xfd:
		v, err = c.Uint(3)
	case first == 0xfe:
		v, err = c.Uint(8)
	default:
		return 0, false, fmt.Errorf("invalid length-encoded integer prefix 0xff at offset %d", c.Pos()-1)
	}
	return v, false, err
}

func (c *Cursor) LengthCodedString() ([]byte, bool, error) {
	n, isNull, err := c.LengthCodedInt()
	if err != nil || isNull {
		return nil, isNull, err
	}
	if n > uint64(c.Remaining()) {
		return nil, false, fmt.Errorf("length-encoded string of %d bytes: %w", n, ErrTruncatedInput)
	}
	b, err := c.Read(int(n))
	return b, false, err
}

// LengthPrefixed reads an n byte little-endian length followed by that many bytes.
func (c *Cursor) LengthPrefixed(n int) ([]byte, error) {
	l, err := c.Uint(n)
	if err != nil {
		return nil, err
	}
	if l > uint64(c.Remaining()) {
		return nil, fmt.Errorf("length prefix %d at offset %d: %w", l, c.Pos(), ErrTruncatedInput)
	}
	return c.Read(int(l))
}

func (c *Cursor) String(n int) (string, error) {
	b, err := c.Read(n)
	return string(b), err
}

// NullTerminated reads up to and consumes a 0x00 byte.
func (c *Cursor) NullTerminated() ([]byte, error) {
	var out []byte
	for {
		b, err := c.Uint8()
		if err != nil {
			return nil, err
		}
		if b == 0 {
			return out, nil
		}
		out = append(out, b)
	}
}

func LEUint(b []byte) uint64 {
	switch len(b) {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func BEUint(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// SignExtend interprets the low n bytes of v as two's complement.
func SignExtend(v uint64, n int) int64 {
	if n >= 8 {
		return int64(v)
	}
	shift := uint(64 - 8*n)
	return int64(v<<shift) >> shift
}

// PutLengthCodedInt appends v in length-encoded form.
func PutLengthCodedInt(b []byte, v uint64) []byte {
	switch {
	case v < 0xfb:
		return append(b, byte(v))
	case v <= 0xffff:
		return append(b, 0xfc, byte(v), byte(v>>8))
	case v <= 0xffffff:
		return append(b, 0xfd, byte(v), byte(v>>8), byte(v>>16))
	}
	b = append(b, 0xfe)
	return binary.LittleEndian.AppendUint64(b, v)
}
