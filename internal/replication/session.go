package replication

import (
	"context"
	"time"

	"github.com/go-mysql-org/go-mysql/client"
	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/binrepl/internal/schema"
)

// Session is one network connection to the source server.
type Session interface {
	Execute(query string) error
	// WritePacket sends one command. data holds the payload only.
	WritePacket(data []byte) error
	ReadPacket() ([]byte, error)
	Close() error
}

type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

type ConnectorFunc func(ctx context.Context) (Session, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Auxiliary answers the questions asked outside the dump session.
type Auxiliary interface {
	schema.Lookup
	ChecksumEnabled(ctx context.Context) (bool, error)
	MasterStatus(ctx context.Context) (mysql.Position, error)
}

// MySQLConnector opens dump sessions with go-mysql.
type MySQLConnector struct {
	Addr     string
	User     string
	Password string
	// ReadTimeout bounds a single packet read, 0 waits forever.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *MySQLConnector) Connect(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	withTimeouts := func(conn *client.Conn) error {
		conn.ReadTimeout = c.ReadTimeout
		conn.WriteTimeout = c.WriteTimeout
		return nil
	}
	conn, err := client.Connect(c.Addr, c.User, c.Password, "", withTimeouts)
	if err != nil {
		return nil, err
	}
	return &mysqlSession{conn: conn}, nil
}

type mysqlSession struct {
	conn *client.Conn
}

func (s *mysqlSession) Execute(query string) error {
	_, err := s.conn.Execute(query)
	return err
}

func (s *mysqlSession) WritePacket(data []byte) error {
	s.conn.ResetSequence()
	buf := make([]byte, 4, 4+len(data))
	return s.conn.WritePacket(append(buf, data...))
}

func (s *mysqlSession) ReadPacket() ([]byte, error) {
	return s.conn.ReadPacket()
}

func (s *mysqlSession) Close() error {
	return s.conn.Close()
}
