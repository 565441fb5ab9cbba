package event

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindUint
	KindFloat
	KindDouble
	KindDecimal
	KindString
	KindBytes
	KindBits
	KindEnum
	KindSet
	KindYear
	KindDate
	KindDatetime
	KindTimestamp
	KindTime
	KindJSON
)

var kindNames = [...]string{
	"null", "int", "uint", "float", "double", "decimal", "string", "bytes",
	"bits", "enum", "set", "year", "date", "datetime", "timestamp", "time", "json",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Datetime holds DATE and DATETIME values, zero dates included.
type Datetime struct {
	Year        uint16
	Month       uint8
	Day         uint8
	Hour        uint8
	Minute      uint8
	Second      uint8
	Microsecond uint32
}

func (d Datetime) DateString() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Format renders "YYYY-MM-DD hh:mm:ss" with fsp fractional digits.
func (d Datetime) Format(fsp int) string {
	return fmt.Sprintf("%s %02d:%02d:%02d%s", d.DateString(), d.Hour, d.Minute, d.Second, formatFrac(d.Microsecond, fsp))
}

// ToTime converts to time.Time. Zero dates and dates with zero parts fail.
func (d Datetime) ToTime(loc *time.Location) (time.Time, bool) {
	if d.Month == 0 || d.Day == 0 {
		return time.Time{}, false
	}
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), int(d.Hour), int(d.Minute), int(d.Second),
		int(d.Microsecond)*1000, loc), true
}

func formatFrac(us uint32, fsp int) string {
	if fsp <= 0 {
		return ""
	}
	if fsp > 6 {
		fsp = 6
	}
	s := fmt.Sprintf("%06d", us)
	return "." + s[:fsp]
}

// Value is one decoded column value. Kind selects the populated payload.
type Value struct {
	Kind Kind

	i   int64
	u   uint64
	f   float64
	s   string
	b   []byte
	d   decimal.Decimal
	t   time.Time
	dt  Datetime
	dur time.Duration
	set []string
	js  any
	// scale of DECIMAL or fractional precision of temporal kinds
	prec int
}

var Null = Value{Kind: KindNull}

func IntValue(v int64) Value {
	return Value{Kind: KindInt, i: v}
}

func UintValue(v uint64) Value {
	return Value{Kind: KindUint, u: v}
}

func FloatValue(v float32) Value {
	return Value{Kind: KindFloat, f: float64(v)}
}

func DoubleValue(v float64) Value {
	return Value{Kind: KindDouble, f: v}
}

func DecimalValue(d decimal.Decimal, scale int) Value {
	return Value{Kind: KindDecimal, d: d, prec: scale}
}

func StringValue(s string) Value {
	return Value{Kind: KindString, s: s}
}

func BytesValue(b []byte) Value {
	return Value{Kind: KindBytes, b: b}
}

// BitsValue keeps the column width so leading zero bits survive rendering.
func BitsValue(v uint64, width int) Value {
	return Value{Kind: KindBits, u: v, prec: width}
}

func EnumValue(index uint64, name string) Value {
	return Value{Kind: KindEnum, u: index, s: name}
}

func SetValue(mask uint64, members []string) Value {
	return Value{Kind: KindSet, u: mask, set: members}
}

func YearValue(y int64) Value {
	return Value{Kind: KindYear, i: y}
}

func DateValue(d Datetime) Value {
	return Value{Kind: KindDate, dt: d}
}

func DatetimeValue(d Datetime, fsp int) Value {
	return Value{Kind: KindDatetime, dt: d, prec: fsp}
}

// TimestampValue wraps an instant. The zero time.Time is the zero timestamp.
func TimestampValue(t time.Time, fsp int) Value {
	return Value{Kind: KindTimestamp, t: t, prec: fsp}
}

func TimeValue(d time.Duration, fsp int) Value {
	return Value{Kind: KindTime, dur: d, prec: fsp}
}

func JSONValue(v any) Value {
	return Value{Kind: KindJSON, js: v}
}

func (v Value) IsNull() bool { return v.Kind == KindNull }
func (v Value) Int() int64 { return v.i }
func (v Value) Uint() uint64 { return v.u }
func (v Value) Float() float64 { return v.f }
func (v Value) Decimal() decimal.Decimal { return v.d }
func (v Value) Bytes() []byte { return v.b }
func (v Value) Members() []string { return v.set }
func (v Value) Datetime() Datetime { return v.dt }
func (v Value) Time() time.Time { return v.t }
func (v Value) Duration() time.Duration { return v.dur }
func (v Value) JSON() any { return v.js }
func (v Value) Precision() int { return v.prec }

// String renders the value the way the mysql client prints it.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt, KindYear:
		return strconv.FormatInt(v.i, 10)
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindDecimal:
		return v.d.StringFixed(int32(v.prec))
	case KindString, KindEnum:
		return v.s
	case KindBytes:
		return string(v.b)
	case KindBits:
		return formatBits(v.u, v.prec)
	case KindSet:
		return strings.Join(v.set, ",")
	case KindDate:
		return v.dt.DateString()
	case KindDatetime:
		return v.dt.Format(v.prec)
	case KindTimestamp:
		if v.t.IsZero() {
			return "0000-00-00 00:00:00" + formatFrac(0, v.prec)
		}
		return v.t.Format("2006-01-02 15:04:05") + formatFrac(uint32(v.t.Nanosecond()/1000), v.prec)
	case KindTime:
		return formatDuration(v.dur, v.prec)
	case KindJSON:
		b, err := json.Marshal(v.js)
		if err != nil {
			return fmt.Sprintf("%v", v.js)
		}
		return string(b)
	}
	return ""
}

// Interface returns a plain Go value suitable for SQL literals.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInt, KindYear:
		return v.i
	case KindUint, KindBits:
		return v.u
	case KindFloat:
		return float32(v.f)
	case KindDouble:
		return v.f
	case KindBytes:
		return v.b
	}
	return v.String()
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindJSON:
		return json.Marshal(v.js)
	case KindDecimal:
		return []byte(v.String()), nil
	}
	return json.Marshal(v.Interface())
}

func formatBits(v uint64, width int) string {
	if width <= 0 {
		width = 1
	}
	s := strconv.FormatUint(v, 2)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

func formatDuration(d time.Duration, fsp int) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	us := int64(d / time.Microsecond)
	secs := us / 1e6
	return fmt.Sprintf("%s%02d:%02d:%02d%s", sign, secs/3600, (secs/60)%60, secs%60, formatFrac(uint32(us%1e6), fsp))
}
