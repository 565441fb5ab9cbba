package replication

import (
	"encoding/binary"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/gtid"
)

const (
	comRegisterSlave  = 0x15
	comBinlogDump     = 0x12
	comBinlogDumpGTID = 0x1e

	// binlog dump flag, the server ends the stream with an EOF packet
	// instead of waiting for new events
	dumpNonBlock = 0x01
)

// Report is what the client announces about itself when registering.
type Report struct {
	Host     string
	User     string
	Password string
	Port     uint16
}

func registerSlaveCommand(serverID uint32, r Report) []byte {
	data := make([]byte, 0, 1+4+3+len(r.Host)+len(r.User)+len(r.Password)+2+4+4)
	data = append(data, comRegisterSlave)
	data = binary.LittleEndian.AppendUint32(data, serverID)
	data = appendShortString(data, r.Host)
	data = appendShortString(data, r.User)
	data = appendShortString(data, r.Password)
	data = binary.LittleEndian.AppendUint16(data, r.Port)
	// replication rank, not used
	data = binary.LittleEndian.AppendUint32(data, 0)
	// master id, 0 lets the server fill it
	return binary.LittleEndian.AppendUint32(data, 0)
}

func binlogDumpCommand(serverID uint32, pos mysql.Position, flags uint16) []byte {
	data := make([]byte, 0, 1+4+2+4+len(pos.Name))
	data = append(data, comBinlogDump)
	data = binary.LittleEndian.AppendUint32(data, pos.Pos)
	data = binary.LittleEndian.AppendUint16(data, flags)
	data = binary.LittleEndian.AppendUint32(data, serverID)
	return append(data, pos.Name...)
}

func binlogDumpGTIDCommand(serverID uint32, pos mysql.Position, set *gtid.Set, flags uint16) []byte {
	enc := set.Encode()
	data := make([]byte, 0, 1+2+4+4+len(pos.Name)+8+4+len(enc))
	data = append(data, comBinlogDumpGTID)
	data = binary.LittleEndian.AppendUint16(data, flags)
	data = binary.LittleEndian.AppendUint32(data, serverID)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(pos.Name)))
	data = append(data, pos.Name...)
	data = binary.LittleEndian.AppendUint64(data, uint64(pos.Pos))
	data = binary.LittleEndian.AppendUint32(data, uint32(len(enc)))
	return append(data, enc...)
}

func appendShortString(b []byte, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	b = append(b, byte(len(s)))
	return append(b, s...)
}
