package transformer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sql "github.com/SisyphusSQ/godropbox/database/sqlbuilder"
	"github.com/segmentio/encoding/json"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/core"
	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/locker"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/models"
	"github.com/SisyphusSQ/binrepl/internal/schema"
	"github.com/SisyphusSQ/binrepl/internal/utils"
)

var _ core.Transformer = (*Transformer)(nil)

type Transformer struct {
	wg  *sync.WaitGroup
	ctx context.Context

	binlog    string
	posStr    string
	threadNum int
	trCnt     *atomic.Int64
	loc       *time.Location

	isJson     bool
	isUkFirst  bool
	isRollBack bool
	isFullCols bool
	isPrefixDB bool
	isIgrPri   bool

	curDB      string
	curTb      string
	curAbsTb   string
	curTable   *schema.Table
	curPriCols []string
	curUkCols  []string
	curColsDef map[string]sql.NonAliasColumn

	ev      *models.MyBinEvent
	meta    *models.MetaConn
	ukCache map[string]models.KeyInfo
	trxLock *locker.TrxLock

	eventChan <-chan *models.MyBinEvent
	resChan   chan<- *models.ResultSQL
}

// NewTransformer returns one transformer thread. meta is only used for unique
// keys and may be nil.
func NewTransformer(wg *sync.WaitGroup, ctx context.Context,
	threadNum int,
	trCnt *atomic.Int64,
	c *config.Config,
	meta *models.MetaConn,
	eventChan chan *models.MyBinEvent,
	resChan chan *models.ResultSQL,
	trxLock *locker.TrxLock) *Transformer {
	t := &Transformer{
		wg:        wg,
		ctx:       ctx,
		threadNum: threadNum,
		trCnt:     trCnt,
		loc:       c.GTimeLocation,

		isJson:     c.Output == "json",
		isUkFirst:  c.UseUniqueKeyFirst,
		isRollBack: c.Output == "rollback",
		isFullCols: c.FullColumns,
		isPrefixDB: c.SQLTblPrefixDB,
		isIgrPri:   c.IgnorePrimaryKeyForInsert,

		meta:      meta,
		ukCache:   make(map[string]models.KeyInfo),
		eventChan: eventChan,
		resChan:   resChan,

		trxLock: trxLock,
	}

	return t
}

func (t *Transformer) Start() error {
	t.wg.Add(1)
	defer t.trCnt.Add(1)
	log.Logger.Info("start thread %d to generate redo/rollback sql", t.threadNum)

	for {
		select {
		case <-t.ctx.Done():
			return nil
		case ev, ok := <-t.eventChan:
			if !ok {
				return nil
			}

			if err := t.generate(ev); err != nil {
				if t.ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (t *Transformer) generate(ev *models.MyBinEvent) error {
	t.ev = ev
	t.binlog = ev.MyPos.Name
	t.curTable = ev.Rows.Table
	t.curDB = t.curTable.Schema
	t.curTb = t.curTable.Name
	t.curAbsTb = utils.GetAbsTableName(t.curDB, t.curTb)
	t.posStr = utils.GetPosStr(ev.MyPos.Name, ev.StartPos, ev.MyPos.Pos)

	res := &models.ResultSQL{
		SQLInfo: models.ExtraInfo{
			Schema:    t.curDB,
			Table:     t.curTb,
			Binlog:    t.binlog,
			StartPos:  ev.StartPos,
			EndPos:    ev.MyPos.Pos,
			Datetime:  utils.UnixToLayout(int64(ev.Timestamp), t.loc),
			TrxIndex:  ev.TrxIndex,
			TrxStatus: ev.TrxStatus,
		},
	}

	rows, err := ev.Rows.Rows()
	switch {
	case err != nil:
		return fmt.Errorf("rows of %s %s: %w", t.curAbsTb, t.posStr, err)
	case t.curTable.Unavailable:
		log.Logger.Warn("no column definitions of %s, skip %s event at %s", t.curAbsTb, ev.SQLType, t.posStr)
		rows = nil
	}

	// -------------- start to transform --------------
	if len(rows) > 0 {
		t.getFieldsExpr()
		t.getUkIndex()
		if t.isJson {
			res.Jsons, err = t.transform2Json(rows)
		} else {
			res.SQLs, err = t.transform2SQL(rows)
		}
		if err != nil {
			return err
		}
	}

	// results leave in event order whatever thread built them
	if err = t.trxLock.Wait(t.ctx, ev.EventIdx); err != nil {
		return err
	}
	defer t.trxLock.Done()

	if len(res.SQLs) == 0 && len(res.Jsons) == 0 {
		return nil
	}
	select {
	case t.resChan <- res:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (t *Transformer) CurPos() string {
	return t.posStr
}

func (t *Transformer) Stop() {
	t.wg.Done()
	log.Logger.Info("exit thread %d to generate redo/rollback sql", t.threadNum)
}

func (t *Transformer) getFieldsExpr() {
	defs := make(map[string]sql.NonAliasColumn, len(t.curTable.Columns))
	for _, col := range t.curTable.Columns {
		defs[col.Name] = getDataTypeAndSQLCol(col)
	}
	t.curColsDef = defs
}

func (t *Transformer) table() *sql.Table {
	return sql.NewTable(t.curTb, t.columns(t.curTable.ColumnNames())...)
}

// columns returns the definitions of names.
func (t *Transformer) columns(names []string) []sql.NonAliasColumn {
	cols := make([]sql.NonAliasColumn, 0, len(names))
	for _, n := range names {
		cols = append(cols, t.curColsDef[n])
	}
	return cols
}

func getDataTypeAndSQLCol(col *schema.ColumnDescriptor) sql.NonAliasColumn {
	switch col.Type {
	case schema.TypeTiny, schema.TypeShort, schema.TypeInt24, schema.TypeLong,
		schema.TypeLongLong, schema.TypeBit, schema.TypeYear:
		return sql.IntColumn(col.Name, sql.NotNullable)
	case schema.TypeNewDecimal, schema.TypeFloat, schema.TypeDouble:
		return sql.DoubleColumn(col.Name, sql.NotNullable)
	case schema.TypeBlob, schema.TypeTinyBlob, schema.TypeMediumBlob, schema.TypeLongBlob:
		// text is stored as blob
		if !col.Binary() && strings.Contains(strings.ToLower(col.SQLType), "text") {
			return sql.StrColumn(col.Name, sql.UTF8, sql.UTF8CaseInsensitive, sql.NotNullable)
		}
		return sql.BytesColumn(col.Name, sql.NotNullable)
	case schema.TypeGeometry:
		return sql.BytesColumn(col.Name, sql.NotNullable)
	}
	// strings, temporal, enum and set names, json text
	return sql.StrColumn(col.Name, sql.UTF8, sql.UTF8CaseInsensitive, sql.NotNullable)
}

// literal is the sqlbuilder value of v.
func literal(v event.Value) any {
	switch v.Kind {
	case event.KindNull:
		return nil
	case event.KindInt, event.KindYear:
		return v.Int()
	case event.KindUint, event.KindBits:
		return v.Uint()
	case event.KindFloat, event.KindDouble:
		return v.Float()
	case event.KindBytes:
		return v.Bytes()
	}
	return v.String()
}

func valueEqual(a, b event.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == event.KindBytes {
		return bytes.Equal(a.Bytes(), b.Bytes())
	}
	return a.String() == b.String()
}

func (t *Transformer) getUkIndex() {
	t.curPriCols = t.curTable.PrimaryKey
	t.curUkCols = t.curTable.PrimaryKey

	if !t.isUkFirst || t.meta == nil {
		return
	}
	uk, ok := t.ukCache[t.curAbsTb]
	if !ok {
		keys, err := t.meta.UniqueKeys(t.ctx, t.curDB, t.curTb)
		if err != nil {
			log.Logger.Warn("get unique keys of %s: %v, use primary key", t.curAbsTb, err)
		} else if len(keys) > 0 {
			uk = keys[0]
		}
		t.ukCache[t.curAbsTb] = uk
	}
	if len(uk) > 0 {
		t.curUkCols = uk
	}
}

// present lists the columns carried by row in table order.
func (t *Transformer) present(row *event.Row) []string {
	names := make([]string, 0, row.Len())
	for _, col := range t.curTable.Columns {
		if _, ok := row.Get(col.Name); ok {
			names = append(names, col.Name)
		}
	}
	return names
}

func (t *Transformer) schemaName() string {
	if !t.isPrefixDB {
		return ""
	}
	return t.curDB
}

// transform2SQL renders the redo or rollback statements of rows.
func (t *Transformer) transform2SQL(rows []event.RowPair) ([]string, error) {
	switch t.ev.SQLType {
	case "insert":
		if t.isRollBack {
			return t.genDelFromEvent(rows, false)
		}
		return t.genInsFromEvent(rows, false)
	case "delete":
		if t.isRollBack {
			return t.genInsFromEvent(rows, true)
		}
		return t.genDelFromEvent(rows, true)
	case "update":
		return t.genUpdFromEvent(rows)
	}

	log.Logger.Warn("unsupported query type %s to generate 2sql|rollback sql, it should one of insert|update|delete. %s",
		t.ev.SQLType, t.posStr)
	return nil, nil
}

// image picks the row image a statement is built from.
func image(r event.RowPair, before bool) *event.Row {
	if before {
		return r.Before
	}
	return r.After
}

func (t *Transformer) genInsFromEvent(rows []event.RowPair, before bool) ([]string, error) {
	var (
		sqlType  = "insert"
		ifIgrPri = t.isIgrPri && len(t.curPriCols) > 0
		sqls     = make([]string, 0, len(rows))
	)
	if t.isRollBack {
		sqlType = "insert_for_delete_rollback"
		ifIgrPri = false
	}

	for _, r := range rows {
		row := image(r, before)
		names := make([]string, 0, row.Len())
		exprs := make([]sql.Expression, 0, row.Len())
		for _, n := range t.present(row) {
			if ifIgrPri && utils.EqualsAny(n, t.curPriCols...) {
				continue
			}
			v, _ := row.Get(n)
			names = append(names, n)
			exprs = append(exprs, sql.Literal(literal(v)))
		}

		s, err := t.table().Insert(t.columns(names)...).Add(exprs...).String(t.schemaName())
		if err != nil {
			return nil, fmt.Errorf("fail to generate %s sql for %s %s: %w", sqlType, t.curAbsTb, t.posStr, err)
		}
		sqls = append(sqls, s)
	}
	return sqls, nil
}

func (t *Transformer) genDelFromEvent(rows []event.RowPair, before bool) ([]string, error) {
	sqlType := "delete"
	if t.isRollBack {
		sqlType = "delete_for_insert_rollback"
	}

	sqls := make([]string, 0, len(rows))
	for _, r := range rows {
		row := image(r, before)
		s, err := t.table().Delete().Where(sql.And(t.genEqCond(row)...)).String(t.schemaName())
		if err != nil {
			return nil, fmt.Errorf("fail to generate %s sql for %s %s: %w", sqlType, t.curAbsTb, t.posStr, err)
		}
		sqls = append(sqls, s)
	}
	return sqls, nil
}

func (t *Transformer) genUpdFromEvent(rows []event.RowPair) ([]string, error) {
	sqlType := "update"
	if t.isRollBack {
		sqlType = "update_for_update_rollback"
	}

	sqls := make([]string, 0, len(rows))
	for _, r := range rows {
		set, cond := r.After, r.Before
		if t.isRollBack {
			set, cond = r.Before, r.After
		}

		update := t.table().Update()
		update = t.genUpdSetPart(update, set, cond)
		update.Where(sql.And(t.genEqCond(cond)...))

		s, err := update.String(t.schemaName())
		if err != nil {
			return nil, fmt.Errorf("fail to generate %s sql for %s %s: %w", sqlType, t.curAbsTb, t.posStr, err)
		}
		sqls = append(sqls, s)
	}
	return sqls, nil
}

// genUpdSetPart sets the columns of set that differ from cond, every column
// of set with full columns or when nothing differs.
func (t *Transformer) genUpdSetPart(update sql.UpdateStatement, set, cond *event.Row) sql.UpdateStatement {
	names := t.present(set)
	changed := make([]string, 0, len(names))
	for _, n := range names {
		v, _ := set.Get(n)
		old, ok := cond.Get(n)
		if t.isFullCols || !ok || !valueEqual(v, old) {
			changed = append(changed, n)
		}
	}
	if len(changed) == 0 {
		changed = names
	}

	for _, n := range changed {
		v, _ := set.Get(n)
		update.Set(t.curColsDef[n], sql.Literal(literal(v)))
	}
	return update
}

// genEqCond matches row on the unique key when the image carries it, on
// every present column otherwise.
func (t *Transformer) genEqCond(row *event.Row) []sql.BoolExpression {
	names := t.present(row)
	if !t.isFullCols && len(t.curUkCols) > 0 {
		keyed := true
		for _, k := range t.curUkCols {
			if _, ok := row.Get(k); !ok {
				keyed = false
				break
			}
		}
		if keyed {
			names = t.curUkCols
		}
	}

	exps := make([]sql.BoolExpression, 0, len(names))
	for _, n := range names {
		v, _ := row.Get(n)
		exps = append(exps, sql.EqL(t.curColsDef[n], literal(v)))
	}
	return exps
}

// transform2Json renders one json line per changed row.
func (t *Transformer) transform2Json(rows []event.RowPair) ([]string, error) {
	jsonEvents := make([]string, 0, len(rows))
	for _, r := range rows {
		ev := &models.JsonEvent{
			EventType:  strings.ToUpper(t.ev.SQLType),
			SchemaName: t.curDB,
			TableName:  t.curTb,
			Timestamp:  t.ev.Timestamp,
			Position:   t.posStr,
			TrxIndex:   t.ev.TrxIndex,
			RowBefore:  r.Before,
			RowAfter:   r.After,
		}

		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("json event of %s %s can not be marshaled: %w", t.curAbsTb, t.posStr, err)
		}
		jsonEvents = append(jsonEvents, string(data))
	}
	return jsonEvents, nil
}
