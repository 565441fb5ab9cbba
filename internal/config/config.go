package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/gtid"
	"github.com/SisyphusSQ/binrepl/internal/replication"
	"github.com/SisyphusSQ/binrepl/internal/schema"
	"github.com/SisyphusSQ/binrepl/internal/utils"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

type Config struct {
	Mode   string `toml:"mode"`
	Output string `toml:"output"`

	Host       string `toml:"host"`
	Port       uint   `toml:"port"`
	User       string `toml:"user"`
	Passwd     string `toml:"password"`
	ServerId   uint   `toml:"server-id"`
	ReportHost string `toml:"report-host"`
	ReportPort uint   `toml:"report-port"`

	// comma separated lists, as given on the command line
	Databases       string             `toml:"databases"`
	Tables          string             `toml:"tables"`
	IgnoreDatabases string             `toml:"ignore-databases"`
	IgnoreTables    string             `toml:"ignore-tables"`
	SQLTypes        string             `toml:"sql"`
	Filter          replication.Filter `toml:"-"`

	ResumeMode string `toml:"resume"`
	GTIDSet    string `toml:"gtid-set"`

	StartFile         string         `toml:"start-file"`
	StartPos          uint           `toml:"start-pos"`
	StartFilePos      mysql.Position `toml:"-"`
	IfSetStartFilePos bool           `toml:"-"`

	StopFile         string         `toml:"stop-file"`
	StopPos          uint           `toml:"stop-pos"`
	StopFilePos      mysql.Position `toml:"-"`
	IfSetStopFilePos bool           `toml:"-"`

	StartTime          string         `toml:"start-datetime"`
	StopTime           string         `toml:"stop-datetime"`
	StartDatetime      uint32         `toml:"-"`
	StopDatetime       uint32         `toml:"-"`
	IfSetStartDateTime bool           `toml:"-"`
	IfSetStopDateTime  bool           `toml:"-"`
	BinlogTimeLocation string         `toml:"tl"`
	GTimeLocation      *time.Location `toml:"-"`

	LocalBinFile string `toml:"local-binlog-file"`
	BinlogDir    string `toml:"-"`

	Checksum         string        `toml:"checksum"`
	VerifyChecksum   bool          `toml:"verify-checksum"`
	HeartbeatSeconds int           `toml:"heartbeat-seconds"`
	StrictMetadata   bool          `toml:"strict-metadata"`
	FreezeSchema     bool          `toml:"freeze-schema"`
	OnConflict       string        `toml:"schema-conflict"`
	MaxReconnects    int           `toml:"max-reconnects"`
	ReconnectDelay   time.Duration `toml:"reconnect-delay"`
	ReadTimeout      time.Duration `toml:"read-timeout"`
	StopNever        bool          `toml:"stop-never"`

	OutputToScreen            bool   `toml:"output-to-screen"`
	PrintExtraInfo            bool   `toml:"add-extra-info"`
	FullColumns               bool   `toml:"full-columns"`
	DoNotAddPrefixDB          bool   `toml:"do-not-add-prefix-db"`
	SQLTblPrefixDB            bool   `toml:"-"`
	FilePerTable              bool   `toml:"file-per-table"`
	UseUniqueKeyFirst         bool   `toml:"unique-key-first"`
	IgnorePrimaryKeyForInsert bool   `toml:"ignore-primary-key-for-insert"`
	OutputDir                 string `toml:"output-dir"`

	PrintInterval  int `toml:"print-interval"`
	BigTrxRowLimit int `toml:"big-trx-row-limit"`
	LongTrxSeconds int `toml:"long-trx-seconds"`
	Threads        int `toml:"threads"`

	LogLevel    string `toml:"log-level"`
	LogJSON     bool   `toml:"log-json"`
	MetricsAddr string `toml:"metrics-addr"`
}

// New returns a Config holding the defaults of every option.
func New() *Config {
	return &Config{
		Mode:               "repl",
		Output:             "2sql",
		Host:               "127.0.0.1",
		Port:               3306,
		ServerId:           1113306,
		ResumeMode:         "file",
		StartPos:           vars.BinlogStartPos,
		BinlogTimeLocation: "Local",
		Checksum:           "auto",
		OnConflict:         "fail",
		ReconnectDelay:     vars.ReconnectDelay,
		PrintInterval:      vars.GetDefaultValueOfRange("PrintInterval"),
		BigTrxRowLimit:     vars.GetDefaultValueOfRange("BigTrxRowLimit"),
		LongTrxSeconds:     vars.GetDefaultValueOfRange("LongTrxSeconds"),
		Threads:            vars.GetDefaultValueOfRange("Threads"),
		LogLevel:           "info",
	}
}

// LoadFile decodes a TOML file over c. Keys absent from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown keys %v in %s", vars.InvalidOption, undecoded, path)
	}
	return nil
}

// ParseConfig validates the options and derives the parsed fields.
func (c *Config) ParseConfig() error {
	var err error

	if err = checkOption(vars.GOptsValidMode, c.Mode, "invalid arg for --mode"); err != nil {
		return err
	}
	if err = checkOption(vars.GOptsValidOutput, c.Output, "invalid arg for --output"); err != nil {
		return err
	}
	if c.ResumeMode == "" {
		c.ResumeMode = "file"
	}
	if err = checkOption(vars.GOptsValidResume, c.ResumeMode, "invalid arg for --resume"); err != nil {
		return err
	}
	if c.Checksum == "" {
		c.Checksum = "auto"
	}
	if err = checkOption(vars.GOptsValidChecksum, c.Checksum, "invalid arg for --checksum"); err != nil {
		return err
	}
	if c.OnConflict == "" {
		c.OnConflict = "fail"
	}
	if err = checkOption(vars.GOptsValidConflict, c.OnConflict, "invalid arg for --schema-conflict"); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if err = checkOption(vars.GOptsValidLogLevel, c.LogLevel, "invalid arg for --log-level"); err != nil {
			return err
		}
	}

	// check --output-dir
	if c.OutputDir != "" {
		ifExist, errMsg := utils.CheckIsDir(c.OutputDir)
		if !ifExist {
			return fmt.Errorf("%w: --output-dir %s", vars.InvalidOption, errMsg)
		}
	} else {
		c.OutputDir, _ = os.Getwd()
	}
	c.SQLTblPrefixDB = !c.DoNotAddPrefixDB

	if err = c.parseFilter(); err != nil {
		return err
	}
	if err = c.parseTimes(); err != nil {
		return err
	}
	if err = c.parsePositions(); err != nil {
		return err
	}
	return c.checkRanges()
}

func checkOption(valid []string, v, prefix string) error {
	if err := utils.CheckItemInSlice(valid, v, prefix); err != nil {
		return fmt.Errorf("%w: %w", vars.InvalidOption, err)
	}
	return nil
}

func (c *Config) parseFilter() error {
	c.Filter = replication.Filter{
		IncludeSchemas: utils.CommaListToArray(c.Databases),
		IncludeTables:  utils.CommaListToArray(c.Tables),
		ExcludeSchemas: utils.CommaListToArray(c.IgnoreDatabases),
		ExcludeTables:  utils.CommaListToArray(c.IgnoreTables),
	}

	// --sql narrows rows events and DDL; BEGIN, COMMIT and ROLLBACK always flow
	sqlTypes := utils.CommaListToArray(c.SQLTypes)
	if len(sqlTypes) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(sqlTypes))
	for _, t := range sqlTypes {
		if err := checkOption(vars.GOptsValidFilterSQL, t, "invalid arg for --sql"); err != nil {
			return err
		}
		wanted[t] = struct{}{}
	}
	for _, k := range vars.GOptsValidFilterSQL {
		if _, ok := wanted[k]; !ok {
			c.Filter.ExcludeEvents = append(c.Filter.ExcludeEvents, k)
		}
	}
	return nil
}

func (c *Config) parseTimes() error {
	var err error
	if c.BinlogTimeLocation == "" {
		c.BinlogTimeLocation = "Local"
	}
	c.GTimeLocation, err = time.LoadLocation(c.BinlogTimeLocation)
	if err != nil {
		return fmt.Errorf("%w: time location %s: %v", vars.InvalidOption, c.BinlogTimeLocation, err)
	}

	if c.StartTime != "" {
		t, err := time.ParseInLocation(vars.TimeLayout, c.StartTime, c.GTimeLocation)
		if err != nil {
			return fmt.Errorf("%w: --start-datetime %s", vars.InvalidOption, c.StartTime)
		}
		c.StartDatetime = uint32(t.Unix())
		c.IfSetStartDateTime = true
	}

	if c.StopTime != "" {
		t, err := time.ParseInLocation(vars.TimeLayout, c.StopTime, c.GTimeLocation)
		if err != nil {
			return fmt.Errorf("%w: --stop-datetime %s", vars.InvalidOption, c.StopTime)
		}
		c.StopDatetime = uint32(t.Unix())
		c.IfSetStopDateTime = true
	}

	if c.IfSetStartDateTime && c.IfSetStopDateTime && c.StartDatetime >= c.StopDatetime {
		return fmt.Errorf("%w: --start-datetime must be earlier than --stop-datetime", vars.InvalidOption)
	}
	return nil
}

func (c *Config) parsePositions() error {
	if c.Mode == "file" {
		if c.LocalBinFile == "" {
			return fmt.Errorf("%w: --local-binlog-file must be specified when --mode=file", vars.InvalidOption)
		}
		if !utils.IsFile(c.LocalBinFile) {
			return fmt.Errorf("%w: %s doesn't exist or is not a file", vars.InvalidOption, c.LocalBinFile)
		}
		if c.ResumeMode == "gtid" {
			return fmt.Errorf("%w: --resume=gtid needs --mode=repl", vars.InvalidOption)
		}
		c.BinlogDir = filepath.Dir(c.LocalBinFile)
		c.StartFile = filepath.Base(c.LocalBinFile)
	}

	if c.ResumeMode == "gtid" {
		if _, err := gtid.ParseSet(c.GTIDSet); err != nil {
			return fmt.Errorf("%w: --gtid-set: %w", vars.InvalidOption, err)
		}
	}

	if c.StartFile != "" {
		c.StartFile = filepath.Base(c.StartFile)
		if c.StartPos < vars.BinlogStartPos {
			c.StartPos = vars.BinlogStartPos
		}
		c.IfSetStartFilePos = true
		c.StartFilePos = mysql.Position{Name: c.StartFile, Pos: uint32(c.StartPos)}
	}

	if c.StopFile != "" {
		c.StopFile = filepath.Base(c.StopFile)
		c.IfSetStopFilePos = true
		c.StopFilePos = mysql.Position{Name: c.StopFile, Pos: uint32(c.StopPos)}
	}

	if c.IfSetStartFilePos && c.IfSetStopFilePos && c.StartFilePos.Compare(c.StopFilePos) >= 0 {
		return fmt.Errorf("%w: start position (--start-file --start-pos) must be less than stop position (--stop-file --stop-pos)",
			vars.InvalidOption)
	}
	return nil
}

func (c *Config) checkRanges() error {
	checks := []struct {
		opt  string
		val  int
		flag string
	}{
		{"PrintInterval", c.PrintInterval, "--print-interval"},
		{"BigTrxRowLimit", c.BigTrxRowLimit, "--big-trx-row-limit"},
		{"LongTrxSeconds", c.LongTrxSeconds, "--long-trx-seconds"},
		{"Threads", c.Threads, "--threads"},
		{"HeartbeatSeconds", c.HeartbeatSeconds, "--heartbeat-seconds"},
		{"MaxReconnects", c.MaxReconnects, "--max-reconnects"},
	}
	var errs []error
	for _, ck := range checks {
		if err := vars.CheckValueInRange(ck.opt, ck.val, "value of "+ck.flag+" out of range"); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", vars.InvalidOption, err)
	}
	return nil
}

// ReplOptions builds the replication client options. ParseConfig must have
// succeeded.
func (c *Config) ReplOptions() (replication.Options, error) {
	checksum, err := replication.ParseChecksumMode(c.Checksum)
	if err != nil {
		return replication.Options{}, err
	}
	conflict, err := schema.ParseConflictPolicy(c.OnConflict)
	if err != nil {
		return replication.Options{}, fmt.Errorf("%w: %w", vars.InvalidOption, err)
	}

	opts := replication.Options{
		ServerID: uint32(c.ServerId),
		Report: replication.Report{
			Host: c.ReportHost,
			Port: uint16(c.ReportPort),
			User: c.User,
		},
		Mode:            replication.ModePosition,
		StartPos:        c.StartFilePos,
		StopAtEnd:       !c.StopNever,
		Filter:          c.Filter,
		Checksum:        checksum,
		VerifyChecksum:  c.VerifyChecksum,
		HeartbeatPeriod: time.Duration(c.HeartbeatSeconds) * time.Second,
		StrictMetadata:  c.StrictMetadata,
		Schema: schema.Options{
			FreezeSchema: c.FreezeSchema,
			OnConflict:   conflict,
		},
		MaxReconnects:  c.MaxReconnects,
		ReconnectDelay: c.ReconnectDelay,
		Location:       c.GTimeLocation,
	}

	if c.ResumeMode == "gtid" {
		set, err := gtid.ParseSet(c.GTIDSet)
		if err != nil {
			return replication.Options{}, err
		}
		opts.Mode = replication.ModeGTID
		opts.GTIDSet = set
	}
	return opts, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) DSN() string {
	return utils.BuildDSN(c.Host, c.Port, c.User, c.Passwd, vars.EventTimeout)
}
