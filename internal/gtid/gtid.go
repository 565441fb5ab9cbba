// Package gtid implements the MySQL global transaction id interval algebra
// together with its text and binary encodings.
package gtid

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Interval is the half-open range [Start, End) of transaction numbers.
type Interval struct {
	Start uint64
	End   uint64
}

func (i Interval) Len() uint64 {
	return i.End - i.Start
}

// String renders the closed text form, "5" or "1-3".
func (i Interval) String() string {
	if i.End-1 == i.Start {
		return strconv.FormatUint(i.Start, 10)
	}
	return fmt.Sprintf("%d-%d", i.Start, i.End-1)
}

// GTID is the set of transactions executed by one source, kept as sorted,
// non-overlapping, non-touching intervals.
type GTID struct {
	SID       uuid.UUID
	Intervals []Interval
}

func New(sid uuid.UUID, intervals ...Interval) (*GTID, error) {
	g := &GTID{SID: sid}
	for _, iv := range intervals {
		if err := g.Add(iv.Start, iv.End); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Add inserts [start, end). Touching intervals merge, an overlap is an error.
func (g *GTID) Add(start, end uint64) error {
	if start > end {
		return fmt.Errorf("%w: [%d, %d)", ErrMalformedInterval, start, end)
	}
	if start == end {
		return nil
	}

	idx := sort.Search(len(g.Intervals), func(i int) bool {
		return g.Intervals[i].Start >= start
	})
	if idx > 0 && g.Intervals[idx-1].End > start {
		return fmt.Errorf("%w: [%d, %d) and %s:%s", ErrOverlappingInterval, start, end, g.SID, g.Intervals[idx-1])
	}
	if idx < len(g.Intervals) && g.Intervals[idx].Start < end {
		return fmt.Errorf("%w: [%d, %d) and %s:%s", ErrOverlappingInterval, start, end, g.SID, g.Intervals[idx])
	}

	merged := Interval{Start: start, End: end}
	if idx > 0 && g.Intervals[idx-1].End == start {
		merged.Start = g.Intervals[idx-1].Start
		g.Intervals = slices.Delete(g.Intervals, idx-1, idx)
		idx--
	}
	if idx < len(g.Intervals) && g.Intervals[idx].Start == end {
		merged.End = g.Intervals[idx].End
		g.Intervals = slices.Delete(g.Intervals, idx, idx+1)
	}
	g.Intervals = slices.Insert(g.Intervals, idx, merged)
	return nil
}

// AddTransaction adds a single transaction number.
func (g *GTID) AddTransaction(gno uint64) error {
	return g.Add(gno, gno+1)
}

// Subtract removes [start, end), truncating or splitting intervals.
func (g *GTID) Subtract(start, end uint64) error {
	if start > end {
		return fmt.Errorf("%w: [%d, %d)", ErrMalformedInterval, start, end)
	}
	g.remove(Interval{Start: start, End: end})
	return nil
}

func (g *GTID) remove(rm Interval) {
	if rm.Start >= rm.End {
		return
	}

	out := make([]Interval, 0, len(g.Intervals)+1)
	for _, iv := range g.Intervals {
		if iv.End <= rm.Start || iv.Start >= rm.End {
			out = append(out, iv)
			continue
		}
		if iv.Start < rm.Start {
			out = append(out, Interval{Start: iv.Start, End: rm.Start})
		}
		if iv.End > rm.End {
			out = append(out, Interval{Start: rm.End, End: iv.End})
		}
	}
	g.Intervals = out
}

func (g *GTID) Contains(gno uint64) bool {
	return g.ContainsInterval(gno, gno+1)
}

// ContainsInterval reports whether a single interval covers [start, end).
func (g *GTID) ContainsInterval(start, end uint64) bool {
	if start >= end {
		return true
	}
	idx := sort.Search(len(g.Intervals), func(i int) bool {
		return g.Intervals[i].End > start
	})
	return idx < len(g.Intervals) && g.Intervals[idx].Start <= start && g.Intervals[idx].End >= end
}

// Merge adds every interval of o. Unlike Add, overlaps are absorbed.
func (g *GTID) Merge(o *GTID) error {
	if g.SID != o.SID {
		return fmt.Errorf("%w: %s and %s", ErrSIDMismatch, g.SID, o.SID)
	}
	for _, iv := range o.Intervals {
		g.union(iv)
	}
	return nil
}

func (g *GTID) union(iv Interval) {
	if iv.Start >= iv.End {
		return
	}

	out := make([]Interval, 0, len(g.Intervals)+1)
	merged, inserted := iv, false
	for _, cur := range g.Intervals {
		switch {
		case cur.End < merged.Start:
			out = append(out, cur)
		case cur.Start > merged.End:
			if !inserted {
				out = append(out, merged)
				inserted = true
			}
			out = append(out, cur)
		default:
			merged.Start = min(merged.Start, cur.Start)
			merged.End = max(merged.End, cur.End)
		}
	}
	if !inserted {
		out = append(out, merged)
	}
	g.Intervals = out
}

func (g *GTID) IsEmpty() bool {
	return len(g.Intervals) == 0
}

func (g *GTID) Clone() *GTID {
	return &GTID{SID: g.SID, Intervals: slices.Clone(g.Intervals)}
}

func (g *GTID) String() string {
	var sb strings.Builder
	sb.WriteString(g.SID.String())
	for _, iv := range g.Intervals {
		sb.WriteByte(':')
		sb.WriteString(iv.String())
	}
	return sb.String()
}

// ParseGTID parses "uuid:1-3:8-10". Ranges are closed in text.
func ParseGTID(s string) (*GTID, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q has no interval", ErrInvalidGTID, s)
	}

	sid, err := uuid.Parse(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGTID, s, err)
	}

	g := &GTID{SID: sid}
	for _, part := range parts[1:] {
		iv, err := parseInterval(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if err = g.Add(iv.Start, iv.End); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func parseInterval(s string) (Interval, error) {
	first, last, isRange := strings.Cut(s, "-")

	start, err := strconv.ParseUint(first, 10, 64)
	if err != nil || start == 0 {
		return Interval{}, fmt.Errorf("%w: interval %q", ErrInvalidGTID, s)
	}
	if !isRange {
		return Interval{Start: start, End: start + 1}, nil
	}

	stop, err := strconv.ParseUint(last, 10, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: interval %q", ErrInvalidGTID, s)
	}
	if stop < start {
		return Interval{}, fmt.Errorf("%w: %q", ErrMalformedInterval, s)
	}
	return Interval{Start: start, End: stop + 1}, nil
}

// Encode appends the binary form: sid, interval count, then start and
// exclusive end per interval.
func (g *GTID) Encode(b []byte) []byte {
	b = append(b, g.SID[:]...)
	b = binary.LittleEndian.AppendUint64(b, uint64(len(g.Intervals)))
	for _, iv := range g.Intervals {
		b = binary.LittleEndian.AppendUint64(b, iv.Start)
		b = binary.LittleEndian.AppendUint64(b, iv.End)
	}
	return b
}

// DecodeGTID reads one binary GTID and returns the bytes consumed.
func DecodeGTID(b []byte) (*GTID, int, error) {
	if len(b) < 24 {
		return nil, 0, fmt.Errorf("%w: gtid header needs 24 bytes, got %d", ErrTruncatedSet, len(b))
	}

	g := &GTID{}
	copy(g.SID[:], b[:16])
	n := binary.LittleEndian.Uint64(b[16:24])
	pos := 24
	if n > uint64(len(b)-pos)/16 {
		return nil, 0, fmt.Errorf("%w: %d intervals for %s", ErrTruncatedSet, n, g.SID)
	}

	for i := uint64(0); i < n; i++ {
		start := binary.LittleEndian.Uint64(b[pos:])
		end := binary.LittleEndian.Uint64(b[pos+8:])
		pos += 16
		if err := g.Add(start, end); err != nil {
			return nil, 0, err
		}
	}
	return g, pos, nil
}
