package vars

import (
	"fmt"
	"time"
)

var (
	AppName    = "binrepl"
	AppVersion = "v0.1.0"
	GoVersion  = "unknown"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
	GitRemote  = "unknown"
)

const (
	ValidOptMsg  = "valid options are: "
	JoinSepComma = ","

	EventTimeout   = 5 * time.Second
	ReconnectDelay = 3 * time.Second
	FlushInterval  = 5 * time.Second
	EventChanSize  = 1000
	TimeLayout     = "2006-01-02 15:04:05"

	BinlogMagic    = "\xfebin"
	BinlogStartPos = 4
)

// auxiliary session statements
const (
	ShowChecksum      = "SHOW GLOBAL VARIABLES LIKE 'binlog_checksum'"
	ShowMasterStatus  = "SHOW MASTER STATUS"
	ShowBinaryStatus  = "SHOW BINARY LOG STATUS"
	SetMasterChecksum = "SET @master_binlog_checksum = @@global.binlog_checksum"
	SetHeartbeat      = "SET @master_heartbeat_period = %d"
	ShowKeys          = "SHOW INDEX FROM `%s`.`%s`"
	SelectColumns     = "SELECT COLUMN_NAME, COLLATION_NAME, CHARACTER_SET_NAME, COLUMN_COMMENT, COLUMN_TYPE, COLUMN_KEY " +
		"FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION"
)

// results of checking an event against the start/stop window
const (
	ReContinue = iota
	ReBreak
	ReProcess
)

const (
	TrxProcess = iota - 1
	TrxBegin
	TrxCommit
	TrxRollback
)

var (
	GOptsValidMode     = []string{"repl", "file"}
	GOptsValidResume   = []string{"file", "gtid"}
	GOptsValidOutput   = []string{"json", "2sql", "rollback", "stats"}
	GOptsValidChecksum = []string{"auto", "on", "off"}
	GOptsValidConflict = []string{"fail", "reuse"}
	GOptsValidLogLevel = []string{"debug", "info", "warn", "error"}

	GOptsValidFilterSQL = []string{"insert", "update", "delete", "query"}

	GOptsValueRange = map[string][]int{
		"PrintInterval":    {1, 600, 30},
		"BigTrxRowLimit":   {1, 30000, 500},
		"LongTrxSeconds":   {0, 3600, 300},
		"Threads":          {1, 16, 2},
		"HeartbeatSeconds": {0, 4294967, 0},
		"MaxReconnects":    {0, 10000, 0},
	}

	StatsHeaderColumn = []string{"binlog", "start_time", "stop_time", "start_pos", "stop_pos",
		"inserts", "updates", "deletes", "database", "table"}
	TrxHeaderColumn = []string{"binlog", "start_time", "stop_time", "start_pos", "stop_pos",
		"rows", "duration", "tables"}
)

func GetStatsHeader(cols []any) string {
	return fmt.Sprintf("%-17s %-19s %-19s %-10s %-10s %-8s %-8s %-8s %-15s %-20s\n", cols...)
}

func GetTrxHeader(cols []any) string {
	return fmt.Sprintf("%-17s %-19s %-19s %-10s %-10s %-8s %-10s %s\n", cols...)
}

func GetMinValueOfRange(opt string) int {
	return GOptsValueRange[opt][0]
}

func GetMaxValueOfRange(opt string) int {
	return GOptsValueRange[opt][1]
}

func GetDefaultValueOfRange(opt string) int {
	return GOptsValueRange[opt][2]
}

func GetDefaultAndRangeValueMsg(opt string) string {
	return fmt.Sprintf("Valid values range from %d to %d, default %d",
		GetMinValueOfRange(opt),
		GetMaxValueOfRange(opt),
		GetDefaultValueOfRange(opt),
	)
}

func CheckValueInRange(opt string, val int, prefix string) error {
	if val < GetMinValueOfRange(opt) || val > GetMaxValueOfRange(opt) {
		return fmt.Errorf("%s: %d is specified, but %s", prefix, val, GetDefaultAndRangeValueMsg(opt))
	}
	return nil
}
