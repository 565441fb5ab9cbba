package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-mysql-org/go-mysql/mysql"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// binary JSON value types
const (
	jsonSmallObject = 0x00
	jsonLargeObject = 0x01
	jsonSmallArray  = 0x02
	jsonLargeArray  = 0x03
	jsonLiteral     = 0x04
	jsonInt16       = 0x05
	jsonUint16      = 0x06
	jsonInt32       = 0x07
	jsonUint32      = 0x08
	jsonInt64       = 0x09
	jsonUint64      = 0x0a
	jsonDouble      = 0x0b
	jsonString      = 0x0c
	jsonOpaque      = 0x0f
)

const (
	jsonLiteralNull  = 0x00
	jsonLiteralTrue  = 0x01
	jsonLiteralFalse = 0x02
)

// JSONObject keeps object members in document order.
type JSONObject = orderedmap.OrderedMap[string, any]

// DecodeJSON decodes the binary JSON column format into Go values: objects
// become *JSONObject, arrays []any, integers int64/uint64, doubles float64.
// Opaque temporal values become their MySQL text form and opaque DECIMAL a
// decimal.Decimal. An empty document is JSON null.
func DecodeJSON(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return decodeJSONValue(b[0], b[1:])
}

func decodeJSONValue(typ byte, data []byte) (any, error) {
	switch typ {
	case jsonSmallObject:
		return decodeJSONContainer(data, false, true)
	case jsonLargeObject:
		return decodeJSONContainer(data, true, true)
	case jsonSmallArray:
		return decodeJSONContainer(data, false, false)
	case jsonLargeArray:
		return decodeJSONContainer(data, true, false)
	case jsonLiteral:
		if len(data) < 1 {
			return nil, fmt.Errorf("json literal: %w", ErrTruncatedInput)
		}
		return decodeJSONLiteral(data[0])
	case jsonInt16, jsonUint16, jsonInt32, jsonUint32, jsonInt64, jsonUint64:
		return decodeJSONInt(typ, data)
	case jsonDouble:
		if len(data) < 8 {
			return nil, fmt.Errorf("json double: %w", ErrTruncatedInput)
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case jsonString:
		c := NewCursor(data)
		n, err := c.Varint()
		if err != nil {
			return nil, fmt.Errorf("json string length: %w", err)
		}
		s, err := c.String(int(n))
		if err != nil {
			return nil, fmt.Errorf("json string: %w", err)
		}
		return s, nil
	case jsonOpaque:
		return decodeJSONOpaque(data)
	}
	return nil, fmt.Errorf("unknown json value type %d", typ)
}

func decodeJSONLiteral(b byte) (any, error) {
	switch b {
	case jsonLiteralNull:
		return nil, nil
	case jsonLiteralTrue:
		return true, nil
	case jsonLiteralFalse:
		return false, nil
	}
	return nil, fmt.Errorf("unknown json literal %d", b)
}

func decodeJSONInt(typ byte, data []byte) (any, error) {
	width := map[byte]int{
		jsonInt16: 2, jsonUint16: 2,
		jsonInt32: 4, jsonUint32: 4,
		jsonInt64: 8, jsonUint64: 8,
	}[typ]
	if len(data) < width {
		return nil, fmt.Errorf("json integer type %d: %w", typ, ErrTruncatedInput)
	}

	v := LEUint(data[:width])
	switch typ {
	case jsonInt16, jsonInt32, jsonInt64:
		return SignExtend(v, width), nil
	}
	return v, nil
}

// inlined reports whether a value of typ is stored directly in its value entry.
func inlined(typ byte, large bool) bool {
	switch typ {
	case jsonLiteral, jsonInt16, jsonUint16:
		return true
	case jsonInt32, jsonUint32:
		return large
	}
	return false
}

func decodeJSONContainer(data []byte, large, isObject bool) (any, error) {
	width := 2
	if large {
		width = 4
	}
	if len(data) < 2*width {
		return nil, fmt.Errorf("json container header: %w", ErrTruncatedInput)
	}

	count := int(LEUint(data[:width]))
	size := int(LEUint(data[width : 2*width]))
	if size > len(data) {
		return nil, fmt.Errorf("json container of %d bytes, have %d: %w", size, len(data), ErrTruncatedInput)
	}
	data = data[:size]

	keyEntrySize := width + 2
	valueEntrySize := 1 + width
	valuesAt := 2 * width
	if isObject {
		valuesAt += count * keyEntrySize
	}
	if valuesAt+count*valueEntrySize > size {
		return nil, fmt.Errorf("json container entries: %w", ErrTruncatedInput)
	}

	var (
		obj *JSONObject
		arr []any
	)
	if isObject {
		obj = orderedmap.New[string, any]()
	} else {
		arr = make([]any, 0, count)
	}

	for i := 0; i < count; i++ {
		ve := valuesAt + i*valueEntrySize
		typ := data[ve]
		field := data[ve+1 : ve+1+width]

		var (
			val any
			err error
		)
		if inlined(typ, large) {
			if typ == jsonLiteral {
				val, err = decodeJSONLiteral(field[0])
			} else {
				val, err = decodeJSONInt(typ, field)
			}
		} else {
			off := int(LEUint(field))
			if off >= size {
				return nil, fmt.Errorf("json value offset %d beyond %d: %w", off, size, ErrTruncatedInput)
			}
			val, err = decodeJSONValue(typ, data[off:])
		}
		if err != nil {
			return nil, err
		}

		if !isObject {
			arr = append(arr, val)
			continue
		}

		ke := 2*width + i*keyEntrySize
		keyOff := int(LEUint(data[ke : ke+width]))
		keyLen := int(LEUint(data[ke+width : ke+width+2]))
		if keyOff+keyLen > size {
			return nil, fmt.Errorf("json key at %d: %w", keyOff, ErrTruncatedInput)
		}
		obj.Set(string(data[keyOff:keyOff+keyLen]), val)
	}

	if isObject {
		return obj, nil
	}
	return arr, nil
}

func decodeJSONOpaque(data []byte) (any, error) {
	c := NewCursor(data)
	typ, err := c.Uint8()
	if err != nil {
		return nil, fmt.Errorf("json opaque type: %w", err)
	}
	n, err := c.Varint()
	if err != nil {
		return nil, fmt.Errorf("json opaque length: %w", err)
	}
	payload, err := c.Read(int(n))
	if err != nil {
		return nil, fmt.Errorf("json opaque payload: %w", err)
	}

	switch typ {
	case mysql.MYSQL_TYPE_NEWDECIMAL:
		if len(payload) < 2 {
			return nil, fmt.Errorf("json opaque decimal: %w", ErrTruncatedInput)
		}
		d, _, err := DecodeDecimal(payload[2:], int(payload[0]), int(payload[1]))
		return d, err
	case mysql.MYSQL_TYPE_DATE, mysql.MYSQL_TYPE_DATETIME, mysql.MYSQL_TYPE_TIMESTAMP, mysql.MYSQL_TYPE_TIME:
		if len(payload) < 8 {
			return nil, fmt.Errorf("json opaque temporal: %w", ErrTruncatedInput)
		}
		return formatPackedTemporal(typ, int64(binary.LittleEndian.Uint64(payload))), nil
	}
	return payload, nil
}

// formatPackedTemporal renders the in-memory packed temporal format used
// inside binary JSON documents.
func formatPackedTemporal(typ byte, packed int64) string {
	sign := ""
	if packed < 0 {
		sign = "-"
		packed = -packed
	}
	frac := packed & 0xffffff
	v := packed >> 24

	if typ == mysql.MYSQL_TYPE_TIME {
		hour := (v >> 12) & 0x3ff
		minute := (v >> 6) & 0x3f
		second := v & 0x3f
		return fmt.Sprintf("%s%02d:%02d:%02d.%06d", sign, hour, minute, second, frac)
	}

	ym := (v >> 22) & 0x1ffff
	year, month := ym/13, ym%13
	day := (v >> 17) & 0x1f
	if typ == mysql.MYSQL_TYPE_DATE {
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	}

	hour := (v >> 12) & 0x1f
	minute := (v >> 6) & 0x3f
	second := v & 0x3f
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%06d", year, month, day, hour, minute, second, frac)
}
