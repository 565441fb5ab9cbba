package replication

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-sql-driver/mysql"
)

var (
	ErrClosed            = errors.New("replication client is closed")
	ErrTooManyReconnects = errors.New("too many reconnects")
)

// TransportError is a failure of the network session. Transient ones are
// retried by the client.
type TransportError struct {
	Err       error
	Transient bool
}

func (e *TransportError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s transport error: %v", kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// server error codes a replica reconnects on
var transientCodes = map[uint16]struct{}{
	1053: {}, // ER_SERVER_SHUTDOWN
	1152: {}, // ER_ABORTING_CONNECTION
	1158: {}, // ER_NET_READ_ERROR
	1159: {}, // ER_NET_READ_INTERRUPTED
	1160: {}, // ER_NET_ERROR_ON_WRITE
	1161: {}, // ER_NET_WRITE_INTERRUPTED
	2006: {}, // CR_SERVER_GONE_ERROR
	2013: {}, // CR_SERVER_LOST
}

// IsTransient reports whether a reconnect may get past err.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Transient
	}

	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, gomysql.ErrBadConn),
		errors.Is(err, driver.ErrBadConn):
		return true
	}

	var myErr *gomysql.MyError
	if errors.As(err, &myErr) {
		_, ok := transientCodes[myErr.Code]
		return ok
	}
	var drvErr *mysql.MySQLError
	if errors.As(err, &drvErr) {
		_, ok := transientCodes[drvErr.Number]
		return ok
	}

	// go-mysql wraps ErrBadConn without keeping the chain
	return strings.Contains(err.Error(), gomysql.ErrBadConn.Error())
}

func transportErr(err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Err: err, Transient: IsTransient(err)}
}
