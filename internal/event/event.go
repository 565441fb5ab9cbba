// Package event decodes binlog v4 events into a closed set of Go types.
package event

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/SisyphusSQ/binrepl/internal/gtid"
	"github.com/SisyphusSQ/binrepl/internal/schema"
)

const (
	HeaderSize   = 19
	ChecksumSize = 4

	// FlagArtificial marks events the server synthesizes for the dump
	// session, such as the initial rotate.
	FlagArtificial = 0x20
)

// checksum algorithms announced by the format description event
const (
	ChecksumAlgOff       = 0
	ChecksumAlgCRC32     = 1
	ChecksumAlgUndefined = 255
)

type Header struct {
	Timestamp uint32
	Type      Type
	ServerID  uint32
	EventSize uint32
	// NextPos is the offset of the following event in the binlog file.
	NextPos uint32
	Flags   uint16
}

func (h *Header) EventHeader() *Header {
	return h
}

func (h *Header) isEvent() {}

func (h *Header) Artificial() bool {
	return h.Flags&FlagArtificial != 0
}

// StartPos is the offset of this event, when the server reports one.
func (h *Header) StartPos() uint32 {
	if h.NextPos < h.EventSize {
		return 0
	}
	return h.NextPos - h.EventSize
}

// Event is implemented only by the types of this package.
type Event interface {
	EventHeader() *Header
	isEvent()
}

type RotateEvent struct {
	Header
	Position uint64
	NextFile string
}

type FormatDescriptionEvent struct {
	Header
	BinlogVersion     uint16
	ServerVersion     string
	CreateTimestamp   uint32
	HeaderLength      uint8
	PostHeaderLengths []byte
	ChecksumAlgorithm byte
}

type QueryEvent struct {
	Header
	ProxyID       uint32
	ExecutionTime uint32
	ErrorCode     uint16
	StatusVars    []byte
	Schema        string
	Query         string
}

type XidEvent struct {
	Header
	XID uint64
}

type GtidEvent struct {
	Header
	Anonymous      bool
	CommitFlag     bool
	SID            uuid.UUID
	GNO            uint64
	LastCommitted  int64
	SequenceNumber int64
}

// GTID returns the "uuid:gno" text form.
func (e *GtidEvent) GTID() string {
	return fmt.Sprintf("%s:%d", e.SID, e.GNO)
}

type PreviousGTIDsEvent struct {
	Header
	Set *gtid.Set
}

type HeartbeatEvent struct {
	Header
	LogName string
}

type IntvarType uint8

const (
	IntvarInvalid      IntvarType = 0
	IntvarLastInsertID IntvarType = 1
	IntvarInsertID     IntvarType = 2
)

type IntvarEvent struct {
	Header
	Kind  IntvarType
	Value uint64
}

type BeginLoadQueryEvent struct {
	Header
	FileID uint32
	Block  []byte
}

type ExecuteLoadQueryEvent struct {
	QueryEvent
	FileID      uint32
	BlockStart  uint32
	BlockEnd    uint32
	DupHandling byte
}

type TableMapEvent struct {
	Header
	TableID      uint64
	TableFlags   uint16
	Schema       string
	Table        string
	ColumnCount  uint64
	ColumnTypes  []byte
	ColumnMeta   []byte
	NullBitmap   []byte
	OptionalMeta []byte
}

func (e *TableMapEvent) Spec() schema.TableSpec {
	return schema.TableSpec{
		ID:         e.TableID,
		Schema:     e.Schema,
		Table:      e.Table,
		Types:      e.ColumnTypes,
		Meta:       e.ColumnMeta,
		NullBitmap: e.NullBitmap,
		Optional:   e.OptionalMeta,
	}
}

type RowsQueryEvent struct {
	Header
	Query string
}

// compression types of the transaction payload event
const (
	CompressionZstd = 0
	CompressionNone = 255
)

type TransactionPayloadEvent struct {
	Header
	CompressionType  uint64
	PayloadSize      uint64
	UncompressedSize uint64
	// Payload is the uncompressed sequence of inner events.
	Payload []byte
}

type StopEvent struct {
	Header
}

// UnimplementedEvent carries the raw body of event types without a decoder.
type UnimplementedEvent struct {
	Header
	Code Type
	Body []byte
}
