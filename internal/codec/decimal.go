package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	digitsPerGroup = 9

	MaxDecimalPrecision = 65
)

// bytes used by a leftover group of n decimal digits
var dig2bytes = [10]int{0, 1, 1, 2, 2, 3, 3, 4, 4, 4}

// CheckDecimal rejects a precision and scale no server emits.
func CheckDecimal(precision, scale int) error {
	if precision <= 0 || precision > MaxDecimalPrecision || scale < 0 || scale > precision {
		return fmt.Errorf("decimal(%d,%d): %w", precision, scale, ErrInvalidDecimal)
	}
	return nil
}

// DecimalSize is the packed width of a DECIMAL(precision, scale) value.
func DecimalSize(precision, scale int) (int, error) {
	if err := CheckDecimal(precision, scale); err != nil {
		return 0, err
	}
	intg := precision - scale
	return (intg/digitsPerGroup)*4 + dig2bytes[intg%digitsPerGroup] +
		(scale/digitsPerGroup)*4 + dig2bytes[scale%digitsPerGroup], nil
}

// DecodeDecimal decodes the packed binary DECIMAL format and returns the
// value and the number of bytes it occupied.
func DecodeDecimal(b []byte, precision, scale int) (decimal.Decimal, int, error) {
	size, err := DecimalSize(precision, scale)
	if err != nil {
		return decimal.Zero, 0, err
	}

	intg := precision - scale
	intg0, intg0x := intg/digitsPerGroup, intg%digitsPerGroup
	frac0, frac0x := scale/digitsPerGroup, scale%digitsPerGroup

	if len(b) < size {
		return decimal.Zero, 0, fmt.Errorf("decimal(%d,%d) needs %d bytes, got %d: %w",
			precision, scale, size, len(b), ErrTruncatedInput)
	}

	buf := make([]byte, size)
	copy(buf, b[:size])

	negative := buf[0]&0x80 == 0
	buf[0] ^= 0x80
	if negative {
		for i := range buf {
			buf[i] ^= 0xff
		}
	}

	var sb strings.Builder
	if negative {
		sb.WriteByte('-')
	}
	sb.WriteByte('0')

	pos := 0
	if intg0x > 0 {
		n := dig2bytes[intg0x]
		sb.WriteString(strconv.FormatUint(BEUint(buf[pos:pos+n]), 10))
		pos += n
	}
	for i := 0; i < intg0; i++ {
		fmt.Fprintf(&sb, "%09d", BEUint(buf[pos:pos+4]))
		pos += 4
	}

	if scale > 0 {
		sb.WriteByte('.')
		for i := 0; i < frac0; i++ {
			fmt.Fprintf(&sb, "%09d", BEUint(buf[pos:pos+4]))
			pos += 4
		}
		if frac0x > 0 {
			n := dig2bytes[frac0x]
			fmt.Fprintf(&sb, "%0*d", frac0x, BEUint(buf[pos:pos+n]))
			pos += n
		}
	}

	d, err := decimal.NewFromString(sb.String())
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("decode decimal(%d,%d): %w", precision, scale, err)
	}
	return d, pos, nil
}
