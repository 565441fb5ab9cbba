package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/core"
	"github.com/SisyphusSQ/binrepl/internal/extractor"
	"github.com/SisyphusSQ/binrepl/internal/loader"
	"github.com/SisyphusSQ/binrepl/internal/locker"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/models"
	"github.com/SisyphusSQ/binrepl/internal/transformer"
	"github.com/SisyphusSQ/binrepl/internal/utils"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: fmt.Sprintf("Start to run %s ...", vars.AppName),
	Example: fmt.Sprintf("%s run --host 10.0.0.1 --user repl --password xxx --start-file mysql-bin.000003 --output rollback\n"+
		"%s run --mode file --local-binlog-file /data/mysql-bin.000003 --output json --output-to-screen", vars.AppName, vars.AppName),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := c.ParseConfig(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, c)
	},
}

// loadConfig decodes --config under the flags given on the command line.
func loadConfig(fs *pflag.FlagSet) error {
	if configFile == "" {
		return nil
	}

	changed := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	if err := c.LoadFile(configFile); err != nil {
		return err
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err == nil {
			err = f.Value.Set(changed[f.Name])
		}
	})
	return err
}

func run(ctx context.Context, c *config.Config) error {
	var (
		wg        sync.WaitGroup
		meta      *models.MetaConn
		extract   core.Extractor
		loaders   []core.Loader
		eventChan = make(chan *models.MyBinEvent, vars.EventChanSize)
		statsChan = make(chan *models.BinEventStats, vars.EventChanSize)
		resChan   = make(chan *models.ResultSQL, vars.EventChanSize)
		err       error
	)

	// file mode works without a server, names then come from table map metadata
	if c.Mode == "repl" || c.User != "" {
		meta = models.NewMetaConn(c.DSN())
		defer meta.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	if c.Mode == "file" {
		extract, err = extractor.NewFileExtract(&wg, gctx, c, meta, eventChan, statsChan)
	} else {
		extract, err = extractor.NewReplExtract(&wg, gctx, c, meta, eventChan, statsChan)
	}
	if err != nil {
		return err
	}

	stats, err := loader.NewStatsLoad(&wg, gctx, c, statsChan)
	if err != nil {
		return err
	}
	loaders = append(loaders, stats)

	if c.Output != "stats" {
		var (
			trWg    sync.WaitGroup
			trCnt   atomic.Int64
			trxLock = locker.NewTrxLock()
		)
		for i := range c.Threads {
			tr := transformer.NewTransformer(&wg, gctx, i, &trCnt, c, meta, eventChan, resChan, trxLock)
			trWg.Add(1)
			g.Go(func() error {
				defer trWg.Done()
				return startAndStop(tr)
			})
		}
		go func() {
			trWg.Wait()
			close(resChan)
		}()
		loaders = append(loaders, loader.NewSQLLoader(&wg, gctx, c, resChan))
	}

	for _, l := range loaders {
		g.Go(func() error { return startAndStop(l) })
	}
	g.Go(func() error { return startAndStop(extract) })

	err = g.Wait()
	wg.Wait()

	pos := extract.Position()
	if err != nil {
		log.Logger.Error("stopped at %s:%d, got err: %v", pos.Name, pos.Pos, err)
		return err
	}
	log.Logger.Info("finished, resume with --start-file %s --start-pos %d", pos.Name, pos.Pos)
	return nil
}

func startAndStop(l core.LifeCycle) error {
	defer l.Stop()
	return l.Start()
}

func initRun() {
	runCmd.Flags().StringVar(&c.Mode, "mode", c.Mode, utils.SliceToString(vars.GOptsValidMode, vars.JoinSepComma, vars.ValidOptMsg)+". repl: as a replica to get binlogs from the source. file: read binlogs from local filesystem. default repl")
	runCmd.Flags().StringVar(&c.Output, "output", c.Output, utils.SliceToString(vars.GOptsValidOutput, vars.JoinSepComma, vars.ValidOptMsg)+". 2sql: convert binlog to sqls, rollback: generate rollback sqls, json: one json line per row, stats: analyze transactions. default 2sql")

	runCmd.Flags().StringVar(&c.Host, "host", c.Host, "mysql host, default 127.0.0.1")
	runCmd.Flags().UintVar(&c.Port, "port", c.Port, "mysql port, default 3306")
	runCmd.Flags().StringVar(&c.User, "user", "", "mysql user. in file mode it's optional and only used to look up column names")
	runCmd.Flags().StringVar(&c.Passwd, "password", "", "mysql user password")
	runCmd.Flags().UintVar(&c.ServerId, "server-id", c.ServerId, "server id of this replica, must be unique among the replicas of the source. default 1113306")
	runCmd.Flags().StringVar(&c.ReportHost, "report-host", "", "host reported to the source when registering as a replica")
	runCmd.Flags().UintVar(&c.ReportPort, "report-port", 0, "port reported to the source when registering as a replica")

	runCmd.Flags().StringVar(&c.Databases, "databases", "", "only parse these databases, comma separated, default all")
	runCmd.Flags().StringVar(&c.Tables, "tables", "", "only parse these tables, comma separated, DO NOT prefix with schema, default all")
	runCmd.Flags().StringVar(&c.IgnoreDatabases, "ignore-databases", "", "ignore these databases, comma separated, default null")
	runCmd.Flags().StringVar(&c.IgnoreTables, "ignore-tables", "", "ignore these tables, comma separated, default null")
	runCmd.Flags().StringVar(&c.SQLTypes, "sql", "", utils.SliceToString(vars.GOptsValidFilterSQL, vars.JoinSepComma, vars.ValidOptMsg)+". only parse these types of sql, comma separated, default all")

	runCmd.Flags().StringVar(&c.ResumeMode, "resume", c.ResumeMode, utils.SliceToString(vars.GOptsValidResume, vars.JoinSepComma, vars.ValidOptMsg)+". file: start from --start-file/--start-pos, gtid: start after --gtid-set. default file")
	runCmd.Flags().StringVar(&c.GTIDSet, "gtid-set", "", "executed gtid set to resume after, works with --resume=gtid")
	runCmd.Flags().StringVar(&c.StartFile, "start-file", "", "binlog file to start reading, default the current file of the source")
	runCmd.Flags().UintVar(&c.StartPos, "start-pos", c.StartPos, "start reading the binlog at position")
	runCmd.Flags().StringVar(&c.StopFile, "stop-file", "", "binlog file to stop reading")
	runCmd.Flags().UintVar(&c.StopPos, "stop-pos", 4, "stop reading the binlog at position")
	runCmd.Flags().StringVar(&c.LocalBinFile, "local-binlog-file", "", "local binlog file to process, works with --mode=file. following files in the same dir are read on rotate")

	runCmd.Flags().StringVar(&c.BinlogTimeLocation, "tl", c.BinlogTimeLocation, "time location to parse timestamp/datetime column in binlog, such as Asia/Shanghai. default Local")
	runCmd.Flags().StringVar(&c.StartTime, "start-datetime", "", "start reading the binlog at first event having a datetime equal or posterior to the argument, it should be like this: \"2020-01-01 01:00:00\"")
	runCmd.Flags().StringVar(&c.StopTime, "stop-datetime", "", "stop reading the binlog at first event having a datetime equal or posterior to the argument, it should be like this: \"2020-12-30 01:00:00\"")

	runCmd.Flags().StringVar(&c.Checksum, "checksum", c.Checksum, utils.SliceToString(vars.GOptsValidChecksum, vars.JoinSepComma, vars.ValidOptMsg)+". auto: ask the source, on/off: force. default auto")
	runCmd.Flags().BoolVar(&c.VerifyChecksum, "verify-checksum", false, "verify the crc32 of every event")
	runCmd.Flags().IntVar(&c.HeartbeatSeconds, "heartbeat-seconds", c.HeartbeatSeconds, "heartbeat period asked from the source, 0 keeps the server default. "+vars.GetDefaultAndRangeValueMsg("HeartbeatSeconds"))
	runCmd.Flags().BoolVar(&c.StrictMetadata, "strict-metadata", false, "fail when a table map carries no column names and no lookup is possible")
	runCmd.Flags().BoolVar(&c.FreezeSchema, "freeze-schema", false, "look up each table once and keep its columns across rotates")
	runCmd.Flags().StringVar(&c.OnConflict, "schema-conflict", c.OnConflict, utils.SliceToString(vars.GOptsValidConflict, vars.JoinSepComma, vars.ValidOptMsg)+". what to do when a frozen table gets a different table map. default fail")
	runCmd.Flags().IntVar(&c.MaxReconnects, "max-reconnects", c.MaxReconnects, "reconnect at most this many times in a row on transient errors, 0 means unlimited. "+vars.GetDefaultAndRangeValueMsg("MaxReconnects"))
	runCmd.Flags().DurationVar(&c.ReconnectDelay, "reconnect-delay", c.ReconnectDelay, "wait between two reconnects")
	runCmd.Flags().DurationVar(&c.ReadTimeout, "read-timeout", 0, "read timeout of the dump connection, 0 means no timeout")
	runCmd.Flags().BoolVar(&c.StopNever, "stop-never", false, "keep waiting for new events at the end of the last binlog")

	runCmd.Flags().BoolVar(&c.OutputToScreen, "output-to-screen", false, "just output to screen, do not write to file")
	runCmd.Flags().BoolVar(&c.PrintExtraInfo, "add-extra-info", false, "works with --output=2sql|rollback. print database/table/datetime/binlog_position...info on the line before sql, default false")
	runCmd.Flags().BoolVar(&c.FullColumns, "full-columns", false, "for update sql, include unchanged columns. for update and delete, use all columns to build where condition.\t\ndefault false, this is, use changed columns to build set part, use primary/unique key to build where condition")
	runCmd.Flags().BoolVar(&c.DoNotAddPrefixDB, "do-not-add-prefix-db", false, "do not prefix table name with database name in sql, ex: insert into tb1 (x1, x1) values (y1, y1)")
	runCmd.Flags().BoolVar(&c.UseUniqueKeyFirst, "unique-key-first", false, "prefer to use unique key instead of primary key to build where condition for delete/update sql")
	runCmd.Flags().BoolVar(&c.IgnorePrimaryKeyForInsert, "ignore-primary-key-for-insert", false, "for insert statement when --output=2sql, ignore primary key")

	runCmd.Flags().StringVar(&c.OutputDir, "output-dir", "", "result output dir, default current work dir. Attention, result files could be large, set it to a dir with large free space")
	runCmd.Flags().BoolVar(&c.FilePerTable, "file-per-table", false, "one file for one table if true, else one file for all tables. default false. Attention, always one file for one binlog")
	runCmd.Flags().IntVar(&c.PrintInterval, "print-interval", c.PrintInterval, "print stats info each PrintInterval seconds. "+vars.GetDefaultAndRangeValueMsg("PrintInterval"))
	runCmd.Flags().IntVar(&c.BigTrxRowLimit, "big-trx-row-limit", c.BigTrxRowLimit, "transaction with affected rows greater or equal to this value is considered as big transaction. "+vars.GetDefaultAndRangeValueMsg("BigTrxRowLimit"))
	runCmd.Flags().IntVar(&c.LongTrxSeconds, "long-trx-seconds", c.LongTrxSeconds, "transaction with duration greater or equal to this value is considered as long transaction. "+vars.GetDefaultAndRangeValueMsg("LongTrxSeconds"))
	runCmd.Flags().IntVar(&c.Threads, "threads", c.Threads, "works with --output=2sql|rollback|json. threads to run. "+vars.GetDefaultAndRangeValueMsg("Threads"))
	rootCmd.AddCommand(runCmd)
}
