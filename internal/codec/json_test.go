package codec

import (
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	tcs := []struct {
		data     []byte
		expected string
	}{{
		data:     []byte{},
		expected: `null`,
	}, {
		data:     []byte{0, 1, 0, 14, 0, 11, 0, 1, 0, 12, 12, 0, 97, 1, 98},
		expected: `{"a":"b"}`,
	}, {
		data:     []byte{0, 1, 0, 12, 0, 11, 0, 1, 0, 5, 2, 0, 97},
		expected: `{"a":2}`,
	}, {
		data:     []byte{0, 1, 0, 29, 0, 11, 0, 4, 0, 0, 15, 0, 97, 115, 100, 102, 1, 0, 14, 0, 11, 0, 3, 0, 5, 123, 0, 102, 111, 111},
		expected: `{"asdf":{"foo":123}}`,
	}, {
		data:     []byte{2, 2, 0, 10, 0, 5, 1, 0, 5, 2, 0},
		expected: `[1,2]`,
	}, {
		data:     []byte{0, 4, 0, 60, 0, 32, 0, 1, 0, 33, 0, 1, 0, 34, 0, 2, 0, 36, 0, 2, 0, 12, 38, 0, 12, 40, 0, 12, 42, 0, 2, 46, 0, 97, 99, 97, 98, 98, 99, 1, 98, 1, 100, 3, 97, 98, 99, 2, 0, 14, 0, 12, 10, 0, 12, 12, 0, 1, 120, 1, 121},
		expected: `{"a":"b","c":"d","ab":"abc","bc":["x","y"]}`,
	}, {
		data:     []byte{2, 3, 0, 37, 0, 12, 13, 0, 2, 18, 0, 12, 33, 0, 4, 104, 101, 114, 101, 2, 0, 15, 0, 12, 10, 0, 12, 12, 0, 1, 73, 2, 97, 109, 3, 33, 33, 33},
		expected: `["here",["I","am"],"!!!"]`,
	}, {
		data:     []byte{12, 13, 115, 99, 97, 108, 97, 114, 32, 115, 116, 114, 105, 110, 103},
		expected: `"scalar string"`,
	}, {
		data:     []byte{4, 1},
		expected: `true`,
	}, {
		data:     []byte{4, 2},
		expected: `false`,
	}, {
		data:     []byte{4, 0},
		expected: `null`,
	}, {
		data:     []byte{5, 255, 255},
		expected: `-1`,
	}, {
		data:     []byte{7, 255, 127, 255, 255},
		expected: `-32769`,
	}, {
		data:     []byte{10, 255, 255, 255, 255, 255, 255, 255, 255},
		expected: `18446744073709551615`,
	}, {
		data:     []byte{11, 110, 134, 27, 240, 249, 33, 9, 64},
		expected: `3.14159`,
	}, {
		data:     []byte{0, 0, 0, 4, 0},
		expected: `{}`,
	}, {
		data:     []byte{2, 0, 0, 4, 0},
		expected: `[]`,
	}, {
		data:     []byte{15, 12, 8, 0, 0, 0, 25, 118, 31, 149, 25},
		expected: `"2015-01-15 23:24:25.000000"`,
	}, {
		data:     []byte{15, 11, 8, 192, 212, 1, 25, 118, 1, 0, 0},
		expected: `"23:24:25.120000"`,
	}, {
		data:     []byte{15, 10, 8, 0, 0, 0, 0, 0, 30, 149, 25},
		expected: `"2015-01-15"`,
	}}
	for _, tc := range tcs {
		t.Run(tc.expected, func(t *testing.T) {
			val, err := DecodeJSON(tc.data)
			require.NoError(t, err)

			out, err := json.Marshal(val)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(out))
		})
	}
}

func TestDecodeJSONOpaqueDecimal(t *testing.T) {
	val, err := DecodeJSON([]byte{15, 246, 8, 13, 4, 135, 91, 205, 21, 4, 210})
	require.NoError(t, err)

	d, ok := val.(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("123456789.1234")))
}

func TestDecodeJSONTruncated(t *testing.T) {
	_, err := DecodeJSON([]byte{0, 1, 0, 40, 0, 11, 0})
	assert.ErrorIs(t, err, ErrTruncatedInput)

	_, err = DecodeJSON([]byte{12, 5, 'a'})
	assert.ErrorIs(t, err, ErrTruncatedInput)
}
