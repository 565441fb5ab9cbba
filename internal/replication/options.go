package replication

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/gtid"
	"github.com/SisyphusSQ/binrepl/internal/schema"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

type Mode int

const (
	// ModePosition resumes from a binlog file and offset.
	ModePosition Mode = iota
	// ModeGTID resumes after the transactions of a GTID set.
	ModeGTID
)

func (m Mode) String() string {
	if m == ModeGTID {
		return "gtid"
	}
	return "file"
}

type ChecksumMode int

const (
	ChecksumAuto ChecksumMode = iota
	ChecksumOn
	ChecksumOff
)

func ParseChecksumMode(s string) (ChecksumMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ChecksumAuto, nil
	case "on":
		return ChecksumOn, nil
	case "off":
		return ChecksumOff, nil
	}
	return ChecksumAuto, fmt.Errorf("%w: checksum %q", vars.InvalidOption, s)
}

type Options struct {
	// ServerID must be unique among the replicas of the source.
	ServerID uint32
	Report   Report

	Mode Mode
	// StartPos is used in ModePosition. An empty name starts at the
	// source's current position.
	StartPos mysql.Position
	// GTIDSet holds the transactions already seen in ModeGTID.
	GTIDSet *gtid.Set
	// StopAtEnd ends the stream with io.EOF at the end of the last binlog
	// instead of waiting for new events.
	StopAtEnd bool

	Filter         Filter
	Checksum       ChecksumMode
	VerifyChecksum bool
	// HeartbeatPeriod asks the source for heartbeats while idle, 0 disables.
	HeartbeatPeriod time.Duration

	// StrictMetadata fails on tables the schema lookup does not know
	// instead of yielding empty row images.
	StrictMetadata bool
	Schema         schema.Options

	// MaxReconnects bounds consecutive reconnects, 0 is unlimited.
	MaxReconnects  int
	ReconnectDelay time.Duration
	// Location renders TIMESTAMP columns, UTC when nil.
	Location *time.Location
}

func (o *Options) validate() error {
	if o.ServerID == 0 {
		return fmt.Errorf("%w: server id must not be 0", vars.InvalidOption)
	}
	if o.MaxReconnects < 0 {
		return fmt.Errorf("%w: max reconnects %d", vars.InvalidOption, o.MaxReconnects)
	}
	if o.Mode != ModePosition && o.Mode != ModeGTID {
		return fmt.Errorf("%w: resume mode %d", vars.InvalidOption, o.Mode)
	}
	return nil
}
