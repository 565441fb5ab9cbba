package extractor

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/models"
	"github.com/SisyphusSQ/binrepl/internal/replication"
	"github.com/SisyphusSQ/binrepl/internal/schema"
	"github.com/SisyphusSQ/binrepl/internal/utils"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

var (
	okPacket  = []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
	eofPacket = []byte{0xfe, 0x00, 0x00, 0x02, 0x00}

	errNotBinlog = errors.New("not a binlog file")
)

// fileSession answers a binlog dump from the files of a directory the way
// a source server does: an artificial rotate, the format description, then
// the events of each file, following rotate events to the next one.
type fileSession struct {
	dir string
	// checksum is what the client asked for, it applies to synthesized events
	checksum bool

	packets [][]byte
	file    *os.File
	r       *bufio.Reader
	name    string
	// fileChecksum is read from the format description of the open file
	fileChecksum bool
	next         string
	done         bool
}

func (s *fileSession) Execute(query string) error {
	switch {
	case query == vars.SetMasterChecksum:
		s.checksum = true
	case strings.HasPrefix(query, "SET @master_binlog_checksum"):
		s.checksum = false
	}
	return nil
}

func (s *fileSession) WritePacket(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty command")
	}

	switch data[0] {
	case mysql.COM_REGISTER_SLAVE:
		s.packets = append(s.packets, okPacket)
		return nil
	case mysql.COM_BINLOG_DUMP:
		if len(data) < 11 {
			return fmt.Errorf("short binlog dump command: %d bytes", len(data))
		}
		pos := binary.LittleEndian.Uint32(data[1:])
		return s.dump(string(data[11:]), pos)
	case mysql.COM_BINLOG_DUMP_GTID:
		return errors.New("gtid based dump is not supported on local binlog files")
	}
	return fmt.Errorf("unsupported command 0x%02x", data[0])
}

func (s *fileSession) dump(name string, pos uint32) error {
	fde, err := s.open(name)
	if err != nil {
		return err
	}
	log.Logger.Info("start to parse %s %d", filepath.Join(s.dir, name), pos)
	s.packets = append(s.packets, packet(s.rotateEvent(name, pos)))

	if pos <= vars.BinlogStartPos {
		s.packets = append(s.packets, packet(fde))
		return nil
	}

	// the format description still describes the events, but it is not
	// part of the requested range
	binary.LittleEndian.PutUint32(fde[13:], 0)
	if s.fileChecksum {
		fde = event.AppendChecksum(fde[:len(fde)-event.ChecksumSize])
	}
	s.packets = append(s.packets, packet(fde))

	if _, err = s.file.Seek(int64(pos), io.SeekStart); err != nil {
		return err
	}
	s.r.Reset(s.file)
	return nil
}

// open opens name, checks the magic and returns its format description.
func (s *fileSession) open(name string) ([]byte, error) {
	if s.file != nil {
		_ = s.file.Close()
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s.file, s.r, s.name, s.next = f, bufio.NewReader(f), name, ""

	magic := make([]byte, len(vars.BinlogMagic))
	if _, err = io.ReadFull(s.r, magic); err != nil || string(magic) != vars.BinlogMagic {
		return nil, fmt.Errorf("%s: %w", path, errNotBinlog)
	}

	fde, err := s.readEvent()
	if err != nil {
		return nil, fmt.Errorf("read format description of %s: %w", path, err)
	}
	ev, err := (&event.Decoder{}).Decode(fde)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	fd, ok := ev.(*event.FormatDescriptionEvent)
	if !ok {
		return nil, fmt.Errorf("%s: first event is %s: %w", path, ev.EventHeader().Type, errNotBinlog)
	}
	s.fileChecksum = fd.ChecksumAlgorithm == event.ChecksumAlgCRC32
	return fde, nil
}

func (s *fileSession) readEvent() ([]byte, error) {
	header := make([]byte, event.HeaderSize)
	if _, err := io.ReadFull(s.r, header); err != nil {
		return nil, err
	}
	h, err := event.DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	if h.EventSize < event.HeaderSize {
		return nil, fmt.Errorf("event size %d at %s: %w", h.EventSize, s.name, event.ErrShortEvent)
	}

	data := make([]byte, h.EventSize)
	copy(data, header)
	if _, err = io.ReadFull(s.r, data[event.HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}

func (s *fileSession) ReadPacket() ([]byte, error) {
	for {
		if len(s.packets) > 0 {
			p := s.packets[0]
			s.packets = s.packets[1:]
			return p, nil
		}
		if s.done || s.r == nil {
			return eofPacket, nil
		}

		data, err := s.readEvent()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			prev, next, rotated := s.name, s.next, true
			if next == "" {
				// a crashed server leaves its last file without a rotate event
				next, rotated = s.nextByIndex(), false
				if !utils.IsFile(filepath.Join(s.dir, next)) {
					s.done = true
					continue
				}
			}
			if !utils.IsFile(filepath.Join(s.dir, next)) {
				log.Logger.Warn("%s not exists nor a file", filepath.Join(s.dir, next))
				s.done = true
				continue
			}
			fde, err := s.open(next)
			if err != nil {
				return nil, err
			}
			if !rotated {
				log.Logger.Warn("%s ends without rotate event, continue with %s", prev, next)
				s.packets = append(s.packets, packet(s.rotateEvent(next, vars.BinlogStartPos)))
			}
			log.Logger.Info("start to parse %s", filepath.Join(s.dir, s.name))
			s.packets = append(s.packets, packet(fde))
			continue
		case errors.Is(err, io.ErrUnexpectedEOF):
			log.Logger.Warn("binlog %s ends with a truncated event", s.name)
			s.done = true
			continue
		default:
			return nil, err
		}

		if event.Type(data[4]) == event.TypeRotate && binary.LittleEndian.Uint32(data[13:]) != 0 {
			body := data[event.HeaderSize:]
			if s.fileChecksum {
				body = body[:len(body)-event.ChecksumSize]
			}
			if len(body) > 8 {
				s.next = string(body[8:])
			}
		}
		return packet(data), nil
	}
}

// nextByIndex names the file following the current one, "" when the name has
// no index suffix.
func (s *fileSession) nextByIndex() string {
	base, idx, err := utils.GetLogNameAndIndex(s.name)
	if err != nil {
		return ""
	}
	return utils.GetNextBinlog(base, &idx)
}

func (s *fileSession) rotateEvent(name string, pos uint32) []byte {
	size := event.HeaderSize + 8 + len(name)
	if s.checksum {
		size += event.ChecksumSize
	}
	b := make([]byte, 0, size)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, byte(event.TypeRotate))
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = binary.LittleEndian.AppendUint32(b, uint32(size))
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = binary.LittleEndian.AppendUint16(b, event.FlagArtificial)
	b = binary.LittleEndian.AppendUint64(b, uint64(pos))
	b = append(b, name...)
	if s.checksum {
		b = event.AppendChecksum(b)
	}
	return b
}

func (s *fileSession) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.r = nil, nil
	return err
}

func packet(data []byte) []byte {
	return append([]byte{0x00}, data...)
}

type fileConnector struct {
	dir string
}

func (c *fileConnector) Connect(ctx context.Context) (replication.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &fileSession{dir: c.dir}, nil
}

// fileAux reads the checksum setting from the first file and takes column
// names from the source when one is configured.
type fileAux struct {
	dir   string
	first string
	meta  *models.MetaConn
}

func (a *fileAux) Columns(ctx context.Context, db, table string) ([]schema.ColumnInfo, error) {
	if a.meta == nil {
		// names come from the optional metadata of the table map, if logged
		return nil, nil
	}
	return a.meta.Columns(ctx, db, table)
}

func (a *fileAux) ChecksumEnabled(context.Context) (bool, error) {
	s := &fileSession{dir: a.dir}
	defer s.Close()
	if _, err := s.open(a.first); err != nil {
		return false, err
	}
	return s.fileChecksum, nil
}

func (a *fileAux) MasterStatus(context.Context) (mysql.Position, error) {
	return mysql.Position{Name: a.first, Pos: vars.BinlogStartPos}, nil
}
