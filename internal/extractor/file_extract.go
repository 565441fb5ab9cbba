package extractor

import (
	"context"
	"sync"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/models"
)

// FileExtract replays local binlog files through the replication client.
type FileExtract struct {
	*binlogExtract
}

// NewFileExtract reads from c.BinlogDir starting at c.StartFile. meta may be
// nil, column names then come from the table map optional metadata.
func NewFileExtract(wg *sync.WaitGroup, ctx context.Context,
	c *config.Config,
	meta *models.MetaConn,
	eventChan chan *models.MyBinEvent,
	statsChan chan *models.BinEventStats) (*FileExtract, error) {
	aux := &fileAux{dir: c.BinlogDir, first: c.StartFile, meta: meta}

	b, err := newBinlogExtract(wg, ctx, "from local files in "+c.BinlogDir, c,
		&fileConnector{dir: c.BinlogDir}, aux, eventChan, statsChan)
	if err != nil {
		return nil, err
	}
	return &FileExtract{binlogExtract: b}, nil
}
