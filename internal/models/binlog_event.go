package models

import (
	"context"
	"strings"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

type BinEventStats struct {
	Timestamp uint32
	Binlog    string
	StartPos  uint32
	StopPos   uint32
	Database  string
	Table     string
	QueryType string // query, insert, update, delete
	RowCnt    uint32
	QuerySQL  string // for type = query
}

type StatsPrint struct {
	StartTime int64
	StopTime  int64
	StartPos  uint32
	StopPos   uint32
	Database  string
	Table     string
	Inserts   int
	Updates   int
	Deletes   int
}

type TrxInfo struct {
	StartTime  int64
	StopTime   int64
	Binlog     string
	StartPos   uint32
	StopPos    uint32
	RowCnt     int                       // total row count for all statement
	Duration   int                       // how long the trx lasts
	Statements map[string]map[string]int // rowCnt for each type statement: insert, update, delete. {db1.tb1:{insert:0, update:2, delete:10}}
}

// MyBinEvent is one decoded rows event on its way to the transformers.
type MyBinEvent struct {
	MyPos     mysql.Position // m is the end position
	StartPos  uint32         // m is the start position of its table map
	EventIdx  uint64
	Rows      *event.RowsEvent
	SQLType   string // insert, update, delete
	Timestamp uint32
	TrxIndex  uint64
	TrxStatus int // 0:begin, 1: commit, 2: rollback, -1: in_progress
}

// CheckBinEvent places an event ending at pos against the start/stop window.
func CheckBinEvent(c *config.Config, pos mysql.Position, h *event.Header) int {
	// ----------- check whether to start -----------
	if c.IfSetStartFilePos && pos.Compare(c.StartFilePos) < 0 {
		return vars.ReContinue
	}
	if c.IfSetStartDateTime && h.Timestamp < c.StartDatetime {
		return vars.ReContinue
	}

	// ----------- check whether to stop -----------
	if c.IfSetStopFilePos && pos.Compare(c.StopFilePos) >= 0 {
		log.Logger.Info("stop to get event. StopFilePos set. currentBinlog %s StopFilePos %s", pos, c.StopFilePos)
		return vars.ReBreak
	}
	if c.IfSetStopDateTime && h.Timestamp >= c.StopDatetime {
		log.Logger.Info("stop to get event. StopDateTime set. current event Timestamp %d Stop DateTime Timestamp %d",
			h.Timestamp, c.StopDatetime)
		return vars.ReBreak
	}
	return vars.ReProcess
}

// Dispatcher numbers transactions and rows events and fans them out to the
// transformers and the stats loader.
type Dispatcher struct {
	config *config.Config

	trxIdx    uint64
	evIdx     uint64
	trxStatus int
	tbMapPos  uint32

	// eventChan is nil when only statistics are wanted
	eventChan chan<- *MyBinEvent
	statsChan chan<- *BinEventStats
}

func NewDispatcher(c *config.Config, eventChan chan<- *MyBinEvent, statsChan chan<- *BinEventStats) *Dispatcher {
	return &Dispatcher{
		config:    c,
		eventChan: eventChan,
		statsChan: statsChan,
	}
}

// Dispatch handles one event, pos being the stream position after it.
func (d *Dispatcher) Dispatch(ctx context.Context, pos mysql.Position, ev event.Event) (int, error) {
	h := ev.EventHeader()
	if state := CheckBinEvent(d.config, pos, h); state != vars.ReProcess {
		return state, nil
	}

	start := h.StartPos()

	var st *BinEventStats
	switch e := ev.(type) {
	case *event.TableMapEvent:
		// rows events are located by their table map
		d.tbMapPos = start
		return vars.ReContinue, nil

	case *event.QueryEvent:
		switch strings.ToLower(strings.TrimSpace(e.Query)) {
		case "begin":
			d.trxStatus = vars.TrxBegin
			d.trxIdx++
		case "commit":
			d.trxStatus = vars.TrxCommit
		case "rollback":
			d.trxStatus = vars.TrxRollback
		default:
			d.trxStatus = vars.TrxProcess
		}
		st = &BinEventStats{Database: e.Schema, QueryType: "query", QuerySQL: e.Query, StartPos: start}

	case *event.XidEvent:
		d.trxStatus = vars.TrxCommit
		st = &BinEventStats{QueryType: "query", QuerySQL: "commit", StartPos: start}

	case *event.RowsEvent:
		rows, err := e.Rows()
		if err != nil || e.Table == nil {
			// filtered before materializing
			return vars.ReContinue, nil
		}
		d.trxStatus = vars.TrxProcess
		kind := e.Kind().String()

		if d.eventChan != nil {
			d.evIdx++
			me := &MyBinEvent{
				MyPos:     pos,
				StartPos:  d.tbMapPos,
				EventIdx:  d.evIdx,
				Rows:      e,
				SQLType:   kind,
				Timestamp: h.Timestamp,
				TrxIndex:  d.trxIdx,
				TrxStatus: d.trxStatus,
			}
			select {
			case d.eventChan <- me:
			case <-ctx.Done():
				return vars.ReBreak, ctx.Err()
			}
		}
		st = &BinEventStats{
			Database:  e.Table.Schema,
			Table:     e.Table.Name,
			QueryType: kind,
			RowCnt:    uint32(len(rows)),
			StartPos:  d.tbMapPos,
		}

	default:
		return vars.ReContinue, nil
	}

	// output analysis result whatever the output is
	st.Timestamp = h.Timestamp
	st.Binlog = pos.Name
	st.StopPos = pos.Pos
	select {
	case d.statsChan <- st:
	case <-ctx.Done():
		return vars.ReBreak, ctx.Err()
	}
	return vars.ReProcess, nil
}

// Events returns how many rows events were handed to the transformers.
func (d *Dispatcher) Events() uint64 {
	return d.evIdx
}
