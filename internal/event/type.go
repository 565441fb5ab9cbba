package event

import "fmt"

// Type is the binlog event type code.
type Type byte

const (
	TypeUnknown            Type = 0
	TypeStartV3            Type = 1
	TypeQuery              Type = 2
	TypeStop               Type = 3
	TypeRotate             Type = 4
	TypeIntvar             Type = 5
	TypeLoad               Type = 6
	TypeSlave              Type = 7
	TypeCreateFile         Type = 8
	TypeAppendBlock        Type = 9
	TypeExecLoad           Type = 10
	TypeDeleteFile         Type = 11
	TypeNewLoad            Type = 12
	TypeRand               Type = 13
	TypeUserVar            Type = 14
	TypeFormatDescription  Type = 15
	TypeXid                Type = 16
	TypeBeginLoadQuery     Type = 17
	TypeExecuteLoadQuery   Type = 18
	TypeTableMap           Type = 19
	TypeWriteRowsV0        Type = 20
	TypeUpdateRowsV0       Type = 21
	TypeDeleteRowsV0       Type = 22
	TypeWriteRowsV1        Type = 23
	TypeUpdateRowsV1       Type = 24
	TypeDeleteRowsV1       Type = 25
	TypeIncident           Type = 26
	TypeHeartbeat          Type = 27
	TypeIgnorable          Type = 28
	TypeRowsQuery          Type = 29
	TypeWriteRowsV2        Type = 30
	TypeUpdateRowsV2       Type = 31
	TypeDeleteRowsV2       Type = 32
	TypeGtid               Type = 33
	TypeAnonymousGtid      Type = 34
	TypePreviousGtids      Type = 35
	TypeTransactionContext Type = 36
	TypeViewChange         Type = 37
	TypeXAPrepare          Type = 38
	TypePartialUpdateRows  Type = 39
	TypeTransactionPayload Type = 40
	TypeHeartbeatV2        Type = 41
)

var typeNames = map[Type]string{
	TypeUnknown:            "UnknownEvent",
	TypeStartV3:            "StartEventV3",
	TypeQuery:              "QueryEvent",
	TypeStop:               "StopEvent",
	TypeRotate:             "RotateEvent",
	TypeIntvar:             "IntVarEvent",
	TypeLoad:               "LoadEvent",
	TypeSlave:              "SlaveEvent",
	TypeCreateFile:         "CreateFileEvent",
	TypeAppendBlock:        "AppendBlockEvent",
	TypeExecLoad:           "ExecLoadEvent",
	TypeDeleteFile:         "DeleteFileEvent",
	TypeNewLoad:            "NewLoadEvent",
	TypeRand:               "RandEvent",
	TypeUserVar:            "UserVarEvent",
	TypeFormatDescription:  "FormatDescriptionEvent",
	TypeXid:                "XIDEvent",
	TypeBeginLoadQuery:     "BeginLoadQueryEvent",
	TypeExecuteLoadQuery:   "ExecuteLoadQueryEvent",
	TypeTableMap:           "TableMapEvent",
	TypeWriteRowsV0:        "WriteRowsEventV0",
	TypeUpdateRowsV0:       "UpdateRowsEventV0",
	TypeDeleteRowsV0:       "DeleteRowsEventV0",
	TypeWriteRowsV1:        "WriteRowsEventV1",
	TypeUpdateRowsV1:       "UpdateRowsEventV1",
	TypeDeleteRowsV1:       "DeleteRowsEventV1",
	TypeIncident:           "IncidentEvent",
	TypeHeartbeat:          "HeartbeatEvent",
	TypeIgnorable:          "IgnorableEvent",
	TypeRowsQuery:          "RowsQueryEvent",
	TypeWriteRowsV2:        "WriteRowsEventV2",
	TypeUpdateRowsV2:       "UpdateRowsEventV2",
	TypeDeleteRowsV2:       "DeleteRowsEventV2",
	TypeGtid:               "GTIDEvent",
	TypeAnonymousGtid:      "AnonymousGTIDEvent",
	TypePreviousGtids:      "PreviousGTIDsEvent",
	TypeTransactionContext: "TransactionContextEvent",
	TypeViewChange:         "ViewChangeEvent",
	TypeXAPrepare:          "XAPrepareLogEvent",
	TypePartialUpdateRows:  "PartialUpdateRowsEvent",
	TypeTransactionPayload: "TransactionPayloadEvent",
	TypeHeartbeatV2:        "HeartbeatEventV2",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

// RowsKind groups the v1 and v2 rows events.
type RowsKind int

const (
	RowsNone RowsKind = iota
	RowsWrite
	RowsUpdate
	RowsDelete
)

func (k RowsKind) String() string {
	switch k {
	case RowsWrite:
		return "insert"
	case RowsUpdate:
		return "update"
	case RowsDelete:
		return "delete"
	}
	return "none"
}

func (t Type) RowsKind() RowsKind {
	switch t {
	case TypeWriteRowsV1, TypeWriteRowsV2:
		return RowsWrite
	case TypeUpdateRowsV1, TypeUpdateRowsV2:
		return RowsUpdate
	case TypeDeleteRowsV1, TypeDeleteRowsV2:
		return RowsDelete
	}
	return RowsNone
}
