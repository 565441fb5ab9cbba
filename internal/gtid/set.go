package gtid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Set is a GTID set across any number of sources.
type Set struct {
	sets map[uuid.UUID]*GTID
}

func NewSet() *Set {
	return &Set{sets: make(map[uuid.UUID]*GTID)}
}

// ParseSet parses the comma separated text form. The empty string is the
// empty set.
func ParseSet(s string) (*Set, error) {
	set := NewSet()
	s = strings.TrimSpace(s)
	if s == "" {
		return set, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		g, err := ParseGTID(part)
		if err != nil {
			return nil, err
		}
		if err = set.Add(g); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Add inserts g. For a known source every interval goes through GTID.Add,
// so overlaps are rejected.
func (s *Set) Add(g *GTID) error {
	cur, ok := s.sets[g.SID]
	if !ok {
		s.sets[g.SID] = g.Clone()
		return nil
	}
	for _, iv := range g.Intervals {
		if err := cur.Add(iv.Start, iv.End); err != nil {
			return err
		}
	}
	return nil
}

// AddTransaction records one committed transaction. Already known
// transactions are ignored.
func (s *Set) AddTransaction(sid uuid.UUID, gno uint64) error {
	if gno == 0 {
		return fmt.Errorf("%w: transaction number 0 for %s", ErrInvalidGTID, sid)
	}
	if s.ContainsTransaction(sid, gno) {
		return nil
	}
	g, ok := s.sets[sid]
	if !ok {
		g = &GTID{SID: sid}
		s.sets[sid] = g
	}
	return g.AddTransaction(gno)
}

// Merge unions o into s.
func (s *Set) Merge(o *Set) {
	for sid, g := range o.sets {
		cur, ok := s.sets[sid]
		if !ok {
			s.sets[sid] = g.Clone()
			continue
		}
		for _, iv := range g.Intervals {
			cur.union(iv)
		}
	}
}

// Subtract removes every transaction in o from s.
func (s *Set) Subtract(o *Set) {
	for sid, g := range o.sets {
		cur, ok := s.sets[sid]
		if !ok {
			continue
		}
		for _, iv := range g.Intervals {
			cur.remove(iv)
		}
		if cur.IsEmpty() {
			delete(s.sets, sid)
		}
	}
}

// Contains reports whether every interval of g is covered.
func (s *Set) Contains(g *GTID) bool {
	if g.IsEmpty() {
		return true
	}
	cur, ok := s.sets[g.SID]
	if !ok {
		return false
	}
	for _, iv := range g.Intervals {
		if !cur.ContainsInterval(iv.Start, iv.End) {
			return false
		}
	}
	return true
}

func (s *Set) ContainsSet(o *Set) bool {
	for _, g := range o.sets {
		if !s.Contains(g) {
			return false
		}
	}
	return true
}

func (s *Set) ContainsTransaction(sid uuid.UUID, gno uint64) bool {
	g, ok := s.sets[sid]
	return ok && g.Contains(gno)
}

func (s *Set) Get(sid uuid.UUID) (*GTID, bool) {
	g, ok := s.sets[sid]
	return g, ok
}

func (s *Set) Len() int {
	return len(s.sets)
}

func (s *Set) IsEmpty() bool {
	for _, g := range s.sets {
		if !g.IsEmpty() {
			return false
		}
	}
	return true
}

func (s *Set) Equal(o *Set) bool {
	return s.ContainsSet(o) && o.ContainsSet(s)
}

func (s *Set) Clone() *Set {
	c := NewSet()
	for sid, g := range s.sets {
		c.sets[sid] = g.Clone()
	}
	return c
}

func (s *Set) sortedSIDs() []uuid.UUID {
	sids := make([]uuid.UUID, 0, len(s.sets))
	for sid, g := range s.sets {
		if !g.IsEmpty() {
			sids = append(sids, sid)
		}
	}
	slices.SortFunc(sids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return sids
}

// String renders sources in ascending id order, comma separated.
func (s *Set) String() string {
	sids := s.sortedSIDs()
	parts := make([]string, 0, len(sids))
	for _, sid := range sids {
		parts = append(parts, s.sets[sid].String())
	}
	return strings.Join(parts, ",")
}

// Encode returns the binary form sent with COM_BINLOG_DUMP_GTID.
func (s *Set) Encode() []byte {
	sids := s.sortedSIDs()
	b := binary.LittleEndian.AppendUint64(nil, uint64(len(sids)))
	for _, sid := range sids {
		b = s.sets[sid].Encode(b)
	}
	return b
}

// DecodeSet parses the binary form, as carried by COM_BINLOG_DUMP_GTID and
// the previous-gtids event.
func DecodeSet(b []byte) (*Set, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: set header needs 8 bytes, got %d", ErrTruncatedSet, len(b))
	}
	n := binary.LittleEndian.Uint64(b)
	pos := 8

	set := NewSet()
	for i := uint64(0); i < n; i++ {
		g, used, err := DecodeGTID(b[pos:])
		if err != nil {
			return nil, err
		}
		pos += used
		if err = set.Add(g); err != nil {
			return nil, err
		}
	}
	if pos != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrGtidSet, len(b)-pos)
	}
	return set, nil
}
