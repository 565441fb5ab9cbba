package models

import "github.com/SisyphusSQ/binrepl/internal/event"

type ExtraInfo struct {
	Schema    string
	Table     string
	Binlog    string
	StartPos  uint32
	EndPos    uint32
	Datetime  string
	TrxIndex  uint64
	TrxStatus int
}

type ResultSQL struct {
	SQLs    []string
	Jsons   []string
	SQLInfo ExtraInfo
}

type JsonEvent struct {
	EventType  string     `json:"eventType"`
	SchemaName string     `json:"schemaName"`
	TableName  string     `json:"tableName"`
	Timestamp  uint32     `json:"timestamp"`
	Position   string     `json:"position"`
	TrxIndex   uint64     `json:"trxIndex"`
	RowBefore  *event.Row `json:"rowBefore,omitempty"`
	RowAfter   *event.Row `json:"rowAfter,omitempty"`
}
