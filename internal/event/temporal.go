package event

import (
	"time"

	"github.com/SisyphusSQ/binrepl/internal/codec"
)

const (
	datetimeIntOffset = 0x8000000000
	timeIntOffset     = 0x800000
	timeOffset        = 0x800000000000
)

// readFrac reads the fractional second suffix of the v2 temporal types and
// returns it in microseconds. Values stay signed for TIME2 borrowing.
func readFrac(c *codec.Cursor, fsp int) (int64, error) {
	switch fsp {
	case 0:
		return 0, nil
	case 1, 2:
		v, err := c.UintBE(1)
		return int64(v) * 10000, err
	case 3, 4:
		v, err := c.UintBE(2)
		return int64(v) * 100, err
	case 5, 6:
		v, err := c.UintBE(3)
		return int64(v), err
	}
	return 0, errBadFSP(fsp)
}

func decodeDate(c *codec.Cursor) (Value, error) {
	v, err := c.Uint24()
	if err != nil {
		return Null, err
	}
	return DateValue(Datetime{
		Year:  uint16(v >> 9),
		Month: uint8((v >> 5) & 15),
		Day:   uint8(v & 31),
	}), nil
}

// decodeTime reads the legacy 3-byte HHMMSS encoding.
func decodeTime(c *codec.Cursor) (Value, error) {
	v, err := c.Int(3)
	if err != nil {
		return Null, err
	}
	sign := time.Duration(1)
	if v < 0 {
		sign, v = -1, -v
	}
	d := time.Duration(v/10000)*time.Hour + time.Duration(v%10000/100)*time.Minute + time.Duration(v%100)*time.Second
	return TimeValue(sign*d, 0), nil
}

// decodeDatetime reads the legacy 8-byte date*1000000+time encoding.
func decodeDatetime(c *codec.Cursor) (Value, error) {
	v, err := c.Uint64()
	if err != nil {
		return Null, err
	}
	date, tod := v/1000000, v%1000000
	return DatetimeValue(Datetime{
		Year:   uint16(date / 10000),
		Month:  uint8(date % 10000 / 100),
		Day:    uint8(date % 100),
		Hour:   uint8(tod / 10000),
		Minute: uint8(tod % 10000 / 100),
		Second: uint8(tod % 100),
	}, 0), nil
}

func decodeTimestamp(c *codec.Cursor, loc *time.Location) (Value, error) {
	v, err := c.Uint32()
	if err != nil {
		return Null, err
	}
	return timestampValue(int64(v), 0, 0, loc), nil
}

func decodeTimestamp2(c *codec.Cursor, fsp int, loc *time.Location) (Value, error) {
	sec, err := c.UintBE(4)
	if err != nil {
		return Null, err
	}
	frac, err := readFrac(c, fsp)
	if err != nil {
		return Null, err
	}
	return timestampValue(int64(sec), frac, fsp, loc), nil
}

func timestampValue(sec, us int64, fsp int, loc *time.Location) Value {
	if sec == 0 && us == 0 {
		return TimestampValue(time.Time{}, fsp)
	}
	return TimestampValue(time.Unix(sec, us*1000).In(loc), fsp)
}

// decodeDatetime2 reads the 5-byte packed layout:
// 1 bit sign, 17 bits year*13+month, 5 bits day, 5 bits hour,
// 6 bits minute, 6 bits second.
func decodeDatetime2(c *codec.Cursor, fsp int) (Value, error) {
	raw, err := c.UintBE(5)
	if err != nil {
		return Null, err
	}
	frac, err := readFrac(c, fsp)
	if err != nil {
		return Null, err
	}

	v := int64(raw) - datetimeIntOffset
	if v < 0 {
		v = -v
	}
	ymd := v >> 17
	ym := ymd >> 5
	hms := v & (1<<17 - 1)
	return DatetimeValue(Datetime{
		Year:        uint16(ym / 13),
		Month:       uint8(ym % 13),
		Day:         uint8(ymd & 31),
		Hour:        uint8(hms >> 12),
		Minute:      uint8((hms >> 6) & 63),
		Second:      uint8(hms & 63),
		Microsecond: uint32(frac),
	}, fsp), nil
}

// decodeTime2 follows the server's packed TIME layout: 1 bit sign,
// 1 bit unused, 10 bits hour, 6 bits minute, 6 bits second, with the
// fraction borrowed into the integer part for negative values.
func decodeTime2(c *codec.Cursor, fsp int) (Value, error) {
	var packed int64
	switch fsp {
	case 0, 1, 2, 3, 4:
		raw, err := c.UintBE(3)
		if err != nil {
			return Null, err
		}
		intPart := int64(raw) - timeIntOffset

		var frac int64
		switch fsp {
		case 1, 2:
			f, err := c.UintBE(1)
			if err != nil {
				return Null, err
			}
			frac = int64(f)
			if intPart < 0 && frac != 0 {
				intPart++
				frac -= 0x100
			}
			frac *= 10000
		case 3, 4:
			f, err := c.UintBE(2)
			if err != nil {
				return Null, err
			}
			frac = int64(f)
			if intPart < 0 && frac != 0 {
				intPart++
				frac -= 0x10000
			}
			frac *= 100
		}
		packed = intPart<<24 + frac
	case 5, 6:
		raw, err := c.UintBE(6)
		if err != nil {
			return Null, err
		}
		packed = int64(raw) - timeOffset
	default:
		return Null, errBadFSP(fsp)
	}

	sign := time.Duration(1)
	if packed < 0 {
		sign, packed = -1, -packed
	}
	hms := packed >> 24
	us := packed % (1 << 24)
	d := time.Duration((hms>>12)%(1<<10))*time.Hour +
		time.Duration((hms>>6)%(1<<6))*time.Minute +
		time.Duration(hms%(1<<6))*time.Second +
		time.Duration(us)*time.Microsecond
	return TimeValue(sign*d, fsp), nil
}
