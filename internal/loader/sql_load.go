package loader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/core"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/models"
	"github.com/SisyphusSQ/binrepl/internal/utils"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

var (
	_ core.Loader = (*SQLLoader)(nil)
	_ core.Loader = (*StatsLoad)(nil)
)

const (
	rbFilePrefix = "rollback"
	fdFilePrefix = "forward"
	jsFilePrefix = "json"
)

// FilePrefix names the output files of an --output value.
func FilePrefix(output string) string {
	switch output {
	case "rollback":
		return rbFilePrefix
	case "json":
		return jsFilePrefix
	}
	return fdFilePrefix
}

type SQLLoader struct {
	wg  *sync.WaitGroup
	ctx context.Context

	typeName   string
	lastBinlog string

	baseDir string
	file    *os.File
	writer  *bufio.Writer
	screen  io.Writer

	isPrintScreen bool
	isPrintExtra  bool

	isFilePerTable bool
	fileMap        map[string]*os.File
	writerMap      map[string]*bufio.Writer

	sqlChan <-chan *models.ResultSQL
}

func NewSQLLoader(wg *sync.WaitGroup, ctx context.Context, c *config.Config,
	sqlChan chan *models.ResultSQL) *SQLLoader {
	s := &SQLLoader{
		wg:       wg,
		ctx:      ctx,
		typeName: FilePrefix(c.Output),

		baseDir:        c.OutputDir,
		screen:         os.Stdout,
		isPrintScreen:  c.OutputToScreen,
		isPrintExtra:   c.PrintExtraInfo,
		isFilePerTable: c.FilePerTable,

		sqlChan: sqlChan,
	}

	if s.isFilePerTable {
		s.fileMap = make(map[string]*os.File)
		s.writerMap = make(map[string]*bufio.Writer)
	}

	return s
}

func (s *SQLLoader) Start() error {
	var err error
	s.wg.Add(1)
	log.Logger.Info("start thread to write redo/%s sql into file", s.typeName)
	ticker := time.NewTicker(vars.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
			s.flush()
		case sql, ok := <-s.sqlChan:
			if !ok {
				return nil
			}

			if s.isPrintScreen {
				_, err = io.WriteString(s.screen, s.lines(sql))
			} else if s.isFilePerTable {
				err = s.handleSQLPerTable(sql)
			} else {
				err = s.handleSQL(sql)
			}

			if err != nil {
				log.Logger.Error("handle sql error, err: %v", err)
				return err
			}
		}
	}
}

func (s *SQLLoader) flush() {
	if s.writer != nil {
		_ = s.writer.Flush()
	}
	for _, w := range s.writerMap {
		_ = w.Flush()
	}
}

func (s *SQLLoader) handleSQL(sql *models.ResultSQL) error {
	var err error

	if s.lastBinlog == "" {
		s.lastBinlog = sql.SQLInfo.Binlog
	} else if s.lastBinlog != sql.SQLInfo.Binlog {
		log.Logger.Info("finish processing %s %d", s.lastBinlog, sql.SQLInfo.EndPos)
		s.lastBinlog = sql.SQLInfo.Binlog

		// flush and new one
		_ = s.writer.Flush()
		_ = s.file.Close()

		s.file = nil
	}

	if s.file == nil {
		fileName, err := s.getAbsFilename(sql.SQLInfo)
		if err != nil {
			return err
		}
		if s.file, err = os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644); err != nil {
			log.Logger.Error("open file error, err: %v", err)
			return err
		}

		s.writer = bufio.NewWriter(s.file)
	}

	_, err = s.writer.WriteString(s.lines(sql))
	return err
}

func (s *SQLLoader) handleSQLPerTable(sql *models.ResultSQL) error {
	if s.lastBinlog != sql.SQLInfo.Binlog {
		if s.lastBinlog != "" {
			log.Logger.Info("finish processing %s %d", s.lastBinlog, sql.SQLInfo.EndPos)
		}
		s.lastBinlog = sql.SQLInfo.Binlog
	}

	fileName, err := s.getAbsFilename(sql.SQLInfo)
	if err != nil {
		return err
	}
	w, ok := s.writerMap[fileName]
	if !ok {
		f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			log.Logger.Error("open file error, err: %v", err)
			return err
		}
		w = bufio.NewWriter(f)
		s.fileMap[fileName] = f
		s.writerMap[fileName] = w
	}

	_, err = w.WriteString(s.lines(sql))
	return err
}

// lines renders one result, statements of a result stay together.
func (s *SQLLoader) lines(sql *models.ResultSQL) string {
	if s.typeName == jsFilePrefix {
		return strings.Join(sql.Jsons, "\n") + "\n"
	}

	var lines string
	extra := sql.SQLInfo
	if s.isPrintExtra {
		lines = fmt.Sprintf("-- datetime=%s database=%s table=%s binlog=%s startpos=%d stoppos=%d\n",
			extra.Datetime, extra.Schema, extra.Table, extra.Binlog, extra.StartPos, extra.EndPos)
	}
	return lines + strings.Join(sql.SQLs, ";\n") + ";\n"
}

func (s *SQLLoader) getAbsFilename(i models.ExtraInfo) (string, error) {
	_, idx, err := utils.GetLogNameAndIndex(s.lastBinlog)
	if err != nil {
		return "", err
	}

	if s.isFilePerTable {
		return filepath.Join(s.baseDir, fmt.Sprintf("%s.%s.%s.%d.sql", i.Schema, i.Table, s.typeName, idx)), nil
	}
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.%d.sql", s.typeName, idx)), nil
}

func (s *SQLLoader) LastBinlog() string {
	return s.lastBinlog
}

func (s *SQLLoader) Stop() {
	log.Logger.Info("finish writing redo/%s sql into file", s.typeName)
	s.flush()
	if s.file != nil {
		_ = s.file.Close()
	}
	for _, f := range s.fileMap {
		_ = f.Close()
	}

	s.wg.Done()
	log.Logger.Info("exit thread to write redo/%s sql into file", s.typeName)
}
