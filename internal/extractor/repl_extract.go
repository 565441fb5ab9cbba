package extractor

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/core"
	"github.com/SisyphusSQ/binrepl/internal/gtid"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/models"
	"github.com/SisyphusSQ/binrepl/internal/replication"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

var (
	_ core.Extractor = (*ReplExtract)(nil)
	_ core.Extractor = (*FileExtract)(nil)
)

// binlogExtract pumps a replication client into the dispatcher until the
// stream ends, the stop point is reached or ctx is done.
type binlogExtract struct {
	wg  *sync.WaitGroup
	ctx context.Context

	name       string
	config     *config.Config
	client     *replication.Client
	dispatcher *models.Dispatcher

	eventChan chan<- *models.MyBinEvent
	statsChan chan<- *models.BinEventStats
}

func newBinlogExtract(wg *sync.WaitGroup, ctx context.Context, name string,
	c *config.Config,
	connector replication.Connector,
	aux replication.Auxiliary,
	eventChan chan *models.MyBinEvent,
	statsChan chan *models.BinEventStats) (*binlogExtract, error) {
	opts, err := c.ReplOptions()
	if err != nil {
		return nil, err
	}
	client, err := replication.NewClient(opts, connector, aux)
	if err != nil {
		return nil, err
	}

	// transformers only need rows events when sql or json is wanted
	var rowsChan chan<- *models.MyBinEvent
	if c.Output != "stats" {
		rowsChan = eventChan
	}
	return &binlogExtract{
		wg:         wg,
		ctx:        ctx,
		name:       name,
		config:     c,
		client:     client,
		dispatcher: models.NewDispatcher(c, rowsChan, statsChan),
		eventChan:  eventChan,
		statsChan:  statsChan,
	}, nil
}

func (b *binlogExtract) Start() error {
	b.wg.Add(1)
	log.Logger.Info("starting to get binlog %s", b.name)

	for {
		ev, err := b.client.Next(b.ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Logger.Info("reached the end of binlog at %s", b.client.Position())
				return nil
			case errors.Is(err, context.Canceled):
				log.Logger.Warn("ready to quit! [%v]", err)
				return nil
			}
			log.Logger.Error("error to get binlog event: %v", err)
			return err
		}

		state, err := b.dispatcher.Dispatch(b.ctx, b.client.Position(), ev)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if state == vars.ReBreak {
			return nil
		}
	}
}

func (b *binlogExtract) Binlog() string {
	return b.client.Position().Name
}

// Position is where a later run resumes to see every unfinished transaction.
func (b *binlogExtract) Position() mysql.Position {
	return b.client.ResumePosition()
}

func (b *binlogExtract) GTIDSet() *gtid.Set {
	return b.client.GTIDSet()
}

func (b *binlogExtract) Stop() {
	if err := b.client.Close(); err != nil {
		log.Logger.Warn("close replication client: %v", err)
	}

	close(b.eventChan)
	close(b.statsChan)

	b.wg.Done()
	log.Logger.Info("finished getting binlog %s, resume position %s, gtid set [%s]",
		b.name, b.Position(), b.GTIDSet())
}

// ReplExtract streams binlog events from a MySQL source over replication.
type ReplExtract struct {
	*binlogExtract
}

func NewReplExtract(wg *sync.WaitGroup, ctx context.Context,
	c *config.Config,
	meta *models.MetaConn,
	eventChan chan *models.MyBinEvent,
	statsChan chan *models.BinEventStats) (*ReplExtract, error) {
	connector := &replication.MySQLConnector{
		Addr:         c.Addr(),
		User:         c.User,
		Password:     c.Passwd,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: vars.EventTimeout,
	}

	b, err := newBinlogExtract(wg, ctx, "from mysql "+c.Addr(), c, connector, meta, eventChan, statsChan)
	if err != nil {
		return nil, err
	}
	return &ReplExtract{binlogExtract: b}, nil
}
