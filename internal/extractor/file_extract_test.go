package extractor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/event/eventtest"
	"github.com/SisyphusSQ/binrepl/internal/models"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

type binlogFile struct {
	s    eventtest.Stream
	data []byte
}

func newBinlogFile() *binlogFile {
	f := &binlogFile{s: eventtest.Stream{Pos: vars.BinlogStartPos, Checksum: true}, data: []byte(vars.BinlogMagic)}
	f.add(event.TypeFormatDescription, eventtest.FDEBody(event.ChecksumAlgCRC32))
	return f
}

func (f *binlogFile) add(typ event.Type, body []byte) uint32 {
	start := f.s.Pos
	f.data = append(f.data, f.s.Event(typ, body)...)
	return start
}

// trx logs one insert transaction and returns its start.
func (f *binlogFile) trx(tableID uint64, typ event.Type, update bool, rows ...eventtest.User) uint32 {
	start := f.add(event.TypeQuery, eventtest.QueryBody("shop", "BEGIN"))
	f.add(event.TypeTableMap, eventtest.TableMapBodyWithNames(tableID, "shop", "users"))
	f.add(typ, eventtest.RowsBody(tableID, update, rows...))
	f.add(event.TypeXid, eventtest.XidBody(uint64(start)))
	return start
}

func (f *binlogFile) write(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, f.data, 0o644))
	return path
}

type extractResult struct {
	events []*models.MyBinEvent
	stats  []*models.BinEventStats
	pos    mysql.Position
}

func runFileExtract(t *testing.T, c *config.Config) (extractResult, error) {
	t.Helper()
	require.NoError(t, c.ParseConfig())

	eventChan := make(chan *models.MyBinEvent, 32)
	statsChan := make(chan *models.BinEventStats, 32)
	var wg sync.WaitGroup
	fe, err := NewFileExtract(&wg, context.Background(), c, nil, eventChan, statsChan)
	require.NoError(t, err)

	err = fe.Start()
	fe.Stop()
	wg.Wait()

	var res extractResult
	for ev := range eventChan {
		res.events = append(res.events, ev)
	}
	for st := range statsChan {
		res.stats = append(res.stats, st)
	}
	res.pos = fe.Position()
	return res, err
}

func fileConfig(path string) *config.Config {
	c := config.New()
	c.Mode = "file"
	c.LocalBinFile = path
	return c
}

func TestFileExtractFollowsRotate(t *testing.T) {
	dir := t.TempDir()
	first := newBinlogFile()
	first.trx(8, event.TypeWriteRowsV2, false, eventtest.User{ID: 1, Name: "a"}, eventtest.User{ID: 2, Name: "b"})
	first.add(event.TypeRotate, eventtest.RotateBody(4, "mysql-bin.000002"))
	path := first.write(t, dir, "mysql-bin.000001")

	second := newBinlogFile()
	second.trx(9, event.TypeUpdateRowsV2, true, eventtest.User{ID: 1, Name: "a"}, eventtest.User{ID: 1, Name: "c"})
	second.write(t, dir, "mysql-bin.000002")

	res, err := runFileExtract(t, fileConfig(path))
	require.NoError(t, err)

	require.Len(t, res.events, 2)
	assert.Equal(t, "insert", res.events[0].SQLType)
	assert.Equal(t, "mysql-bin.000001", res.events[0].MyPos.Name)
	assert.Equal(t, uint64(1), res.events[0].TrxIndex)
	rows, err := res.events[0].Rows.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	name, _ := rows[1].After.Get("name")
	assert.Equal(t, "b", name.String())
	assert.Equal(t, []string{"id"}, res.events[0].Rows.Table.PrimaryKey)

	assert.Equal(t, "update", res.events[1].SQLType)
	assert.Equal(t, "mysql-bin.000002", res.events[1].MyPos.Name)
	assert.Equal(t, uint64(2), res.events[1].TrxIndex)
	rows, err = res.events[1].Rows.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, _ = rows[0].After.Get("name")
	assert.Equal(t, "c", name.String())

	var kinds []string
	for _, st := range res.stats {
		kinds = append(kinds, st.QueryType)
	}
	assert.Equal(t, []string{"query", "insert", "query", "query", "update", "query"}, kinds)
	assert.Equal(t, mysql.Position{Name: "mysql-bin.000002", Pos: second.s.Pos}, res.pos)
}

func TestFileExtractWithoutRotate(t *testing.T) {
	dir := t.TempDir()
	first := newBinlogFile()
	first.trx(8, event.TypeWriteRowsV2, false, eventtest.User{ID: 1, Name: "a"})
	path := first.write(t, dir, "mysql-bin.000004")

	second := newBinlogFile()
	second.trx(8, event.TypeDeleteRowsV2, false, eventtest.User{ID: 1, Name: "a"})
	second.write(t, dir, "mysql-bin.000005")

	res, err := runFileExtract(t, fileConfig(path))
	require.NoError(t, err)

	require.Len(t, res.events, 2)
	assert.Equal(t, "mysql-bin.000004", res.events[0].MyPos.Name)
	assert.Equal(t, "delete", res.events[1].SQLType)
	assert.Equal(t, "mysql-bin.000005", res.events[1].MyPos.Name)
	assert.Equal(t, mysql.Position{Name: "mysql-bin.000005", Pos: second.s.Pos}, res.pos)
}

func TestFileExtractStartsMidFile(t *testing.T) {
	dir := t.TempDir()
	f := newBinlogFile()
	f.trx(8, event.TypeWriteRowsV2, false, eventtest.User{ID: 1, Name: "a"})
	start := f.trx(8, event.TypeDeleteRowsV2, false, eventtest.User{ID: 1, NullName: true})
	path := f.write(t, dir, "mysql-bin.000007")

	c := fileConfig(path)
	c.StartPos = uint(start)
	res, err := runFileExtract(t, c)
	require.NoError(t, err)

	require.Len(t, res.events, 1)
	assert.Equal(t, "delete", res.events[0].SQLType)
	rows, err := res.events[0].Rows.Rows()
	require.NoError(t, err)
	name, _ := rows[0].Before.Get("name")
	assert.True(t, name.IsNull())
	assert.Equal(t, mysql.Position{Name: "mysql-bin.000007", Pos: f.s.Pos}, res.pos)
}

func TestFileExtractStopPosition(t *testing.T) {
	dir := t.TempDir()
	first := newBinlogFile()
	first.trx(8, event.TypeWriteRowsV2, false, eventtest.User{ID: 1, Name: "a"})
	first.add(event.TypeRotate, eventtest.RotateBody(4, "mysql-bin.000002"))
	path := first.write(t, dir, "mysql-bin.000001")

	second := newBinlogFile()
	second.trx(8, event.TypeWriteRowsV2, false, eventtest.User{ID: 2, Name: "b"})
	second.write(t, dir, "mysql-bin.000002")

	c := fileConfig(path)
	c.StopFile = "mysql-bin.000002"
	c.StopPos = 4
	res, err := runFileExtract(t, c)
	require.NoError(t, err)
	require.Len(t, res.events, 1)
	assert.Equal(t, "mysql-bin.000001", res.events[0].MyPos.Name)
}

func TestFileExtractTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	f := newBinlogFile()
	f.trx(8, event.TypeWriteRowsV2, false, eventtest.User{ID: 1, Name: "a"})
	end := f.s.Pos
	partial := f.s.Event(event.TypeQuery, eventtest.QueryBody("shop", "BEGIN"))
	f.data = append(f.data, partial[:len(partial)-3]...)
	path := f.write(t, dir, "mysql-bin.000001")

	res, err := runFileExtract(t, fileConfig(path))
	require.NoError(t, err)
	assert.Len(t, res.events, 1)
	assert.Equal(t, end, res.pos.Pos)
}

func TestFileExtractNotBinlog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mysql-bin.000001")
	require.NoError(t, os.WriteFile(path, []byte("not a binlog at all"), 0o644))

	_, err := runFileExtract(t, fileConfig(path))
	assert.ErrorIs(t, err, errNotBinlog)
}

func TestFileSessionRotateChecksum(t *testing.T) {
	s := &fileSession{}
	require.NoError(t, s.Execute(vars.SetMasterChecksum))
	ev, err := (&event.Decoder{Checksum: true, VerifyChecksum: true}).Decode(s.rotateEvent("mysql-bin.000003", 120))
	require.NoError(t, err)
	rotate := ev.(*event.RotateEvent)
	assert.Equal(t, "mysql-bin.000003", rotate.NextFile)
	assert.Equal(t, uint64(120), rotate.Position)
	assert.True(t, rotate.Artificial())

	require.NoError(t, s.Execute("SET @master_binlog_checksum = 'NONE'"))
	_, err = (&event.Decoder{}).Decode(s.rotateEvent("mysql-bin.000003", 4))
	require.NoError(t, err)
}
