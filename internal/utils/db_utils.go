package utils

import (
	"database/sql"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// BuildDSN renders a go-sql-driver DSN for the side connection.
func BuildDSN(host string, port uint, user, password string, timeout time.Duration) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.Timeout = timeout
	cfg.ReadTimeout = timeout
	cfg.Collation = "utf8mb4_general_ci"
	return cfg.FormatDSN()
}

func CreateMysqlConn(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
