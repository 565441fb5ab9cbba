package replication

import (
	"context"
	"errors"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/event/eventtest"
	"github.com/SisyphusSQ/binrepl/internal/schema"
)

var okPacket = []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}

type fakeSession struct {
	executed []string
	written  [][]byte
	packets  [][]byte
	// err is returned once packets run out, an EOF packet otherwise
	err    error
	closed bool
}

func (s *fakeSession) Execute(query string) error {
	s.executed = append(s.executed, query)
	return nil
}

func (s *fakeSession) WritePacket(data []byte) error {
	s.written = append(s.written, data)
	return nil
}

func (s *fakeSession) ReadPacket() ([]byte, error) {
	if len(s.packets) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return []byte{0xfe, 0, 0, 0x02, 0}, nil
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeConnector struct {
	sessions []*fakeSession
	err      error
	calls    int
}

func (f *fakeConnector) Connect(context.Context) (Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sessions) == 0 {
		return nil, errors.New("no more sessions")
	}
	s := f.sessions[0]
	f.sessions = f.sessions[1:]
	return s, nil
}

type fakeAux struct {
	checksum bool
	status   mysql.Position
	cols     map[string][]schema.ColumnInfo
	lookups  []string
}

func (a *fakeAux) ChecksumEnabled(context.Context) (bool, error) {
	return a.checksum, nil
}

func (a *fakeAux) MasterStatus(context.Context) (mysql.Position, error) {
	return a.status, nil
}

func (a *fakeAux) Columns(_ context.Context, db, table string) ([]schema.ColumnInfo, error) {
	a.lookups = append(a.lookups, db+"."+table)
	return a.cols[db+"."+table], nil
}

func usersAux() *fakeAux {
	return &fakeAux{cols: map[string][]schema.ColumnInfo{
		"shop.users": eventtest.UsersColumns(),
	}}
}

// binlogStream builds dump packets with consistent positions.
type binlogStream struct {
	pos      uint32
	checksum bool
}

// event returns the packet of a real event and moves the position past it.
func (s *binlogStream) event(typ event.Type, body []byte) []byte {
	data := eventtest.Encode(typ, body, s.pos, 0, s.checksum)
	s.pos += uint32(len(data))
	return append([]byte{0x00}, data...)
}

// artificial returns the packet of a synthesized event, log position 0.
func (s *binlogStream) artificial(typ event.Type, body []byte) []byte {
	return append([]byte{0x00}, eventtest.Encode(typ, body, 0, event.FlagArtificial, s.checksum)...)
}

var (
	rotateBody    = eventtest.RotateBody
	fdeBody       = eventtest.FDEBody
	queryBody     = eventtest.QueryBody
	xidBody       = eventtest.XidBody
	gtidBody      = eventtest.GtidBody
	tableMapBody  = eventtest.TableMapBody
	writeRowsBody = eventtest.WriteRowsBody
)
