package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/SisyphusSQ/binrepl/internal/vars"
)

func StartWith(str string, starts ...string) (ok bool) {
	for _, start := range starts {
		ok = ok || strings.HasPrefix(str, start)
	}
	return
}

func IsAnyEmpty(ss ...string) bool {
	for _, s := range ss {
		if s == "" {
			return true
		}
	}
	return false
}

func GetAbsTableName(schema, table string) string {
	return schema + "." + table
}

// UnixToLayout formats a binlog timestamp in loc, time.Local when nil.
func UnixToLayout(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(ts, 0).In(loc).Format(vars.TimeLayout)
}

// GetPosStr renders "binlog start-stop" for logs and json output.
func GetPosStr(name string, start, stop uint32) string {
	return fmt.Sprintf("%s %d-%d", name, start, stop)
}
