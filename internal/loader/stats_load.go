package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/models"
	"github.com/SisyphusSQ/binrepl/internal/utils"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

const (
	statsFileName = "binlog_status.txt"
	trxFileName   = "biglong_trx.txt"
)

type StatsLoad struct {
	sync.Mutex
	wg  *sync.WaitGroup
	ctx context.Context

	lastBinlog string
	loc        *time.Location

	bigTrxRows  int
	longTrxSecs int
	interval    *time.Ticker

	trxFile     *os.File
	statsFile   *os.File
	trxWriter   *bufio.Writer
	statsWriter *bufio.Writer

	trx       *models.TrxInfo
	stats     map[string]*models.StatsPrint
	statsChan <-chan *models.BinEventStats
}

func NewStatsLoad(wg *sync.WaitGroup, ctx context.Context, c *config.Config,
	statsChan chan *models.BinEventStats) (*StatsLoad, error) {
	var err error
	s := &StatsLoad{
		wg:  wg,
		ctx: ctx,
		loc: c.GTimeLocation,

		interval:    time.NewTicker(time.Duration(c.PrintInterval) * time.Second),
		bigTrxRows:  c.BigTrxRowLimit,
		longTrxSecs: c.LongTrxSeconds,

		trx:       new(models.TrxInfo),
		stats:     make(map[string]*models.StatsPrint),
		statsChan: statsChan,
	}

	// -------------- new file --------------
	sf := filepath.Join(c.OutputDir, statsFileName)
	if s.statsFile, err = os.OpenFile(sf, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644); err != nil {
		log.Logger.Error("failed to open %s, err: %v", statsFileName, err)
		s.interval.Stop()
		return nil, err
	}
	s.statsWriter = bufio.NewWriter(s.statsFile)
	_, _ = s.statsWriter.WriteString(vars.GetStatsHeader(utils.ConvertToSliceAny(vars.StatsHeaderColumn)))

	bf := filepath.Join(c.OutputDir, trxFileName)
	if s.trxFile, err = os.OpenFile(bf, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644); err != nil {
		log.Logger.Error("failed to open %s, err: %v", trxFileName, err)
		s.interval.Stop()
		_ = s.statsFile.Close()
		return nil, err
	}
	s.trxWriter = bufio.NewWriter(s.trxFile)
	_, _ = s.trxWriter.WriteString(vars.GetTrxHeader(utils.ConvertToSliceAny(vars.TrxHeaderColumn)))

	return s, nil
}

func (s *StatsLoad) Start() error {
	s.wg.Add(1)
	log.Logger.Info("start thread to analyze statistics from binlog")
	ticker := time.NewTicker(vars.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
			s.flush()
		case <-s.interval.C:
			s.writeStats()
		case st, ok := <-s.statsChan:
			if !ok {
				return nil
			}

			s.handleStats(st)
		}
	}
}

func (s *StatsLoad) flush() {
	s.Lock()
	defer s.Unlock()
	_ = s.trxWriter.Flush()
	_ = s.statsWriter.Flush()
}

func (s *StatsLoad) handleStats(st *models.BinEventStats) {
	if s.lastBinlog != "" && s.lastBinlog != st.Binlog {
		s.writeStats()
	}
	s.lastBinlog = st.Binlog

	if st.QueryType == "query" {
		sql := strings.ToLower(strings.TrimSpace(st.QuerySQL))

		if sql == "begin" {
			s.trx = &models.TrxInfo{
				StartTime:  int64(st.Timestamp),
				Binlog:     st.Binlog,
				StartPos:   st.StartPos,
				Statements: make(map[string]map[string]int),
			}
		} else if utils.EqualsAny(sql, "commit", "rollback") {
			// the rows event may be skipped by --databases --tables
			if s.trx.RowCnt > 0 {
				s.trx.StopPos = st.StopPos
				s.trx.StopTime = int64(st.Timestamp)
				s.trx.Duration = int(s.trx.StopTime - s.trx.StartTime)

				if s.trx.RowCnt >= s.bigTrxRows || s.trx.Duration >= s.longTrxSecs {
					s.writeTrx()
				}
			}
			// don't forget to renew trxInfo
			s.trx = new(models.TrxInfo)
		}
		return
	}

	// if app starts in the middle of trx
	if s.trx.Binlog == "" {
		s.trx.Binlog = st.Binlog
		s.trx.StartPos = st.StartPos
		s.trx.Statements = make(map[string]map[string]int)
	}
	if s.trx.StartTime == 0 {
		s.trx.StartTime = int64(st.Timestamp)
	}
	s.trx.RowCnt += int(st.RowCnt)

	absTable := utils.GetAbsTableName(st.Database, st.Table)
	if _, ok := s.trx.Statements[absTable]; !ok {
		s.trx.Statements[absTable] = map[string]int{"insert": 0, "update": 0, "delete": 0}
	}
	s.trx.Statements[absTable][st.QueryType] += int(st.RowCnt)

	s.collectStats(absTable, st)
}

func (s *StatsLoad) collectStats(t string, st *models.BinEventStats) {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.stats[t]; !ok {
		s.stats[t] = &models.StatsPrint{
			StartTime: int64(st.Timestamp),
			StartPos:  st.StartPos,
			Database:  st.Database,
			Table:     st.Table,
		}
	}

	switch st.QueryType {
	case "insert":
		s.stats[t].Inserts += int(st.RowCnt)
	case "update":
		s.stats[t].Updates += int(st.RowCnt)
	case "delete":
		s.stats[t].Deletes += int(st.RowCnt)
	}
	s.stats[t].StopTime = int64(st.Timestamp)
	s.stats[t].StopPos = st.StopPos
}

func (s *StatsLoad) writeStats() {
	s.Lock()
	defer s.Unlock()

	tables := make([]string, 0, len(s.stats))
	for t := range s.stats {
		tables = append(tables, t)
	}
	slices.Sort(tables)

	for _, t := range tables {
		st := s.stats[t]
		//[binlog, start_time, stop_time, start_pos, stop_pos, inserts, updates, deletes, database, table]
		_, _ = s.statsWriter.WriteString(fmt.Sprintf("%-17s %-19s %-19s %-10d %-10d %-8d %-8d %-8d %-15s %-20s\n",
			s.lastBinlog, utils.UnixToLayout(st.StartTime, s.loc), utils.UnixToLayout(st.StopTime, s.loc),
			st.StartPos, st.StopPos, st.Inserts, st.Updates, st.Deletes, st.Database, st.Table))
	}
	s.stats = make(map[string]*models.StatsPrint)
}

func (s *StatsLoad) writeTrx() {
	s.Lock()
	defer s.Unlock()

	tables := make([]string, 0, len(s.trx.Statements))
	for t := range s.trx.Statements {
		tables = append(tables, t)
	}
	slices.Sort(tables)

	ss := make([]string, 0, len(tables))
	for _, absTable := range tables {
		info := s.trx.Statements[absTable]
		ss = append(ss, fmt.Sprintf("%s(inserts=%d, updates=%d, deletes=%d)", absTable, info["insert"], info["update"], info["delete"]))
	}

	//{"binlog", "start_time", "stop_time", "start_pos", "stop_pos", "rows", "duration", "tables"}
	_, _ = s.trxWriter.WriteString(fmt.Sprintf("%-17s %-19s %-19s %-10d %-10d %-8d %-10d %s\n", s.trx.Binlog,
		utils.UnixToLayout(s.trx.StartTime, s.loc), utils.UnixToLayout(s.trx.StopTime, s.loc),
		s.trx.StartPos, s.trx.StopPos, s.trx.RowCnt, s.trx.Duration,
		fmt.Sprintf("[%s]", strings.Join(ss, " "))),
	)
}

func (s *StatsLoad) LastBinlog() string {
	return s.lastBinlog
}

func (s *StatsLoad) Stop() {
	s.interval.Stop()
	s.writeStats()

	// ---------- close file ----------
	s.flush()
	_ = s.trxFile.Close()
	_ = s.statsFile.Close()

	s.wg.Done()
	log.Logger.Info("exit thread to analyze statistics from binlog")
}
