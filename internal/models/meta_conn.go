package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-mysql-org/go-mysql/mysql"
	drv "github.com/go-sql-driver/mysql"

	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/schema"
	"github.com/SisyphusSQ/binrepl/internal/utils"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

// ER_PARSE_ERROR, returned by servers that removed SHOW MASTER STATUS
const errParse = 1064

// KeyInfo {colname1, colname2}
type KeyInfo []string

// MetaConn is the side connection next to the dump session. It answers
// schema lookups and the questions asked before registering.
type MetaConn struct {
	dsn string

	mu     sync.Mutex
	client *sql.DB
}

func NewMetaConn(dsn string) *MetaConn {
	return &MetaConn{dsn: dsn}
}

// db opens the pool on first use, limited to one connection.
func (m *MetaConn) db() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}

	client, err := utils.CreateMysqlConn(m.dsn)
	if err != nil {
		return nil, err
	}
	client.SetMaxOpenConns(1)
	client.SetMaxIdleConns(1)
	m.client = client
	return client, nil
}

func (m *MetaConn) Columns(ctx context.Context, db, table string) ([]schema.ColumnInfo, error) {
	if utils.IsAnyEmpty(db, table) {
		return nil, vars.SchemaTableEmpty
	}
	client, err := m.db()
	if err != nil {
		return nil, err
	}

	rows, err := client.QueryContext(ctx, vars.SelectColumns, db, table)
	if err != nil {
		return nil, fmt.Errorf("table[%s] select columns: %w", utils.GetAbsTableName(db, table), err)
	}
	defer rows.Close()

	cols := make([]schema.ColumnInfo, 0)
	for rows.Next() {
		var (
			name, comment, colType, key string
			collation, charset          sql.NullString
		)
		if err = rows.Scan(&name, &collation, &charset, &comment, &colType, &key); err != nil {
			return nil, err
		}
		cols = append(cols, schema.ColumnInfo{
			Name:         name,
			Collation:    collation.String,
			Charset:      charset.String,
			Comment:      comment,
			ColumnType:   colType,
			IsPrimaryKey: key == "PRI",
		})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(cols) == 0 {
		log.Logger.Warn("table %s not found, maybe it was dropped", utils.GetAbsTableName(db, table))
	}
	return cols, nil
}

// UniqueKeys returns the non-primary unique indexes of a table, in index order.
func (m *MetaConn) UniqueKeys(ctx context.Context, db, table string) ([]KeyInfo, error) {
	client, err := m.db()
	if err != nil {
		return nil, err
	}

	rows, err := client.QueryContext(ctx, fmt.Sprintf(vars.ShowKeys, db, table))
	if err != nil {
		return nil, fmt.Errorf("table[%s] show keys: %w", utils.GetAbsTableName(db, table), err)
	}
	defer rows.Close()

	/*
		mysql> show index from test.t;
		+-------+------------+----------+--------------+-------------+-----
		| Table | Non_unique | Key_name | Seq_in_index | Column_name | ...
		+-------+------------+----------+--------------+-------------+-----
		| t     |          0 | PRIMARY  |            1 | a           | ...
		| t     |          0 | ucd      |            1 | c           | ...
		| t     |          0 | ucd      |            2 | d           | ...
		+-------+------------+----------+--------------+-------------+-----
	*/
	var entries []indexEntry
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		nonUnique, err := strconv.Atoi(row["Non_unique"])
		if err != nil {
			return nil, fmt.Errorf("table[%s] Non_unique %q: %w", utils.GetAbsTableName(db, table), row["Non_unique"], err)
		}
		entries = append(entries, indexEntry{
			key:    row["Key_name"],
			column: row["Column_name"],
			unique: nonUnique == 0,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return groupUniqueKeys(entries), nil
}

// ChecksumEnabled reports whether the source writes CRC32 event checksums.
func (m *MetaConn) ChecksumEnabled(ctx context.Context) (bool, error) {
	client, err := m.db()
	if err != nil {
		return false, err
	}

	rows, err := client.QueryContext(ctx, vars.ShowChecksum)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	// servers before 5.6 have no such variable
	if !rows.Next() {
		return false, rows.Err()
	}
	row, err := scanRow(rows)
	if err != nil {
		return false, err
	}
	return parseChecksum(row["Value"]), nil
}

// MasterStatus returns the current binlog file and position of the source.
func (m *MetaConn) MasterStatus(ctx context.Context) (mysql.Position, error) {
	client, err := m.db()
	if err != nil {
		return mysql.Position{}, err
	}

	rows, err := client.QueryContext(ctx, vars.ShowMasterStatus)
	var myErr *drv.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errParse {
		rows, err = client.QueryContext(ctx, vars.ShowBinaryStatus)
	}
	if err != nil {
		return mysql.Position{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return mysql.Position{}, err
		}
		return mysql.Position{}, errors.New("binary logging is disabled on the source")
	}
	row, err := scanRow(rows)
	if err != nil {
		return mysql.Position{}, err
	}

	pos, err := strconv.ParseUint(row["Position"], 10, 32)
	if err != nil {
		return mysql.Position{}, fmt.Errorf("master status position %q: %w", row["Position"], err)
	}
	return mysql.Position{Name: row["File"], Pos: uint32(pos)}, nil
}

func (m *MetaConn) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
}

type indexEntry struct {
	key    string
	column string
	unique bool
}

func groupUniqueKeys(entries []indexEntry) []KeyInfo {
	var (
		order []string
		keys  = make(map[string]KeyInfo)
	)
	for _, e := range entries {
		if !e.unique || strings.EqualFold(e.key, "PRIMARY") {
			continue
		}
		if _, ok := keys[e.key]; !ok {
			order = append(order, e.key)
		}
		keys[e.key] = append(keys[e.key], e.column)
	}

	res := make([]KeyInfo, 0, len(order))
	for _, k := range order {
		res = append(res, keys[k])
	}
	return res
}

func parseChecksum(value string) bool {
	return value != "" && !strings.EqualFold(value, "NONE")
}

// scanRow reads the current row by column name.
func scanRow(rows *sql.Rows) (map[string]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	scanArgs := make([]any, len(cols))
	for i := range scanArgs {
		scanArgs[i] = &sql.RawBytes{}
	}
	if err = rows.Scan(scanArgs...); err != nil {
		return nil, err
	}

	row := make(map[string]string, len(cols))
	for i, c := range cols {
		row[c] = string(*scanArgs[i].(*sql.RawBytes))
	}
	return row, nil
}
