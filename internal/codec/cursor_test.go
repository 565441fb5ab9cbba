package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorReadAndUnread(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4, 5})

	b, err := c.Read(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
	assert.Equal(t, 3, c.Remaining())

	c.Unread([]byte{9, 8})
	assert.Equal(t, 5, c.Remaining())

	b, err = c.Read(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 3}, b)

	_, err = c.Read(3)
	assert.ErrorIs(t, err, ErrTruncatedInput)
	assert.Equal(t, 2, c.Remaining(), "a failed read consumes nothing")
	assert.Equal(t, []byte{4, 5}, c.Rest())
}

func TestCursorIntegers(t *testing.T) {
	c := NewCursor([]byte{
		0xff, 0xff, 0xff,       // int24 -1
		0x01, 0x02, 0x03,       // uint24
		0x00, 0x00, 0x01, 0x00, // BE uint32
		0xfe, 0xff,             // int16 -2
	})

	i, err := c.Int(3)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i)

	u, err := c.Uint24()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x030201), u)

	be, err := c.UintBE(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), be)

	s, err := c.Int(2)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), s)
	assert.Zero(t, c.Remaining())
}

func TestLengthCodedInt(t *testing.T) {
	tcs := []struct {
		name   string
		in     []byte
		want   uint64
		isNull bool
	}{
		{name: "literal", in: []byte{0xfa}, want: 250},
		{name: "null", in: []byte{0xfb}, isNull: true},
		{name: "two bytes", in: []byte{0xfc, 0x34, 0x12}, want: 0x1234},
		{name: "three bytes", in: []byte{0xfd, 0x56, 0x34, 0x12}, want: 0x123456},
		{name: "eight bytes", in: []byte{0xfe, 1, 0, 0, 0, 0, 0, 0, 1}, want: 1<<56 | 1},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCursor(tc.in)
			v, isNull, err := c.LengthCodedInt()
			require.NoError(t, err)
			assert.Equal(t, tc.isNull, isNull)
			assert.Equal(t, tc.want, v)
			assert.Zero(t, c.Remaining())

			if !tc.isNull {
				assert.Equal(t, tc.in, PutLengthCodedInt(nil, tc.want))
			}
		})
	}

	_, _, err := NewCursor([]byte{0xfc, 0x01}).LengthCodedInt()
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestVarint(t *testing.T) {
	v, err := NewCursor([]byte{0x82, 0x01}).Varint()
	require.NoError(t, err)
	assert.Equal(t, uint64(130), v)

	_, err = NewCursor([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}).Varint()
	assert.ErrorIs(t, err, ErrMalformedVarint)
}

func TestLengthPrefixedAndNullTerminated(t *testing.T) {
	c := NewCursor([]byte{3, 'a', 'b', 'c', 'x', 'y', 0, 'z'})

	b, err := c.LengthPrefixed(1)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	b, err = c.NullTerminated()
	require.NoError(t, err)
	assert.Equal(t, "xy", string(b))
	assert.Equal(t, 1, c.Remaining())

	_, err = NewCursor([]byte{9, 'a'}).LengthPrefixed(1)
	assert.ErrorIs(t, err, ErrTruncatedInput)
}
