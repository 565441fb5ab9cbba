package replication

import (
	"slices"
	"strings"

	"github.com/SisyphusSQ/binrepl/internal/event"
	"github.com/SisyphusSQ/binrepl/internal/utils"
)

// Filter selects what the client yields. Empty include lists allow all.
// Tables are "schema.table" or a bare table name matching any schema.
type Filter struct {
	IncludeSchemas []string
	ExcludeSchemas []string
	IncludeTables  []string
	ExcludeTables  []string
	// IncludeEvents and ExcludeEvents hold names from EventKind.
	IncludeEvents []string
	ExcludeEvents []string
}

func (f *Filter) SchemaAllowed(schema string) bool {
	if containsFold(f.ExcludeSchemas, schema) {
		return false
	}
	return len(f.IncludeSchemas) == 0 || containsFold(f.IncludeSchemas, schema)
}

func (f *Filter) TableAllowed(schema, table string) bool {
	if !f.SchemaAllowed(schema) {
		return false
	}
	if matchTable(f.ExcludeTables, schema, table) {
		return false
	}
	return len(f.IncludeTables) == 0 || matchTable(f.IncludeTables, schema, table)
}

func (f *Filter) EventAllowed(kind string) bool {
	if slices.Contains(f.ExcludeEvents, kind) {
		return false
	}
	return len(f.IncludeEvents) == 0 || slices.Contains(f.IncludeEvents, kind)
}

func matchTable(list []string, schema, table string) bool {
	for _, item := range list {
		db, tb, ok := strings.Cut(item, ".")
		if !ok {
			db, tb = "", item
		}
		if (db == "" || strings.EqualFold(db, schema)) && strings.EqualFold(tb, table) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(item string) bool {
		return strings.EqualFold(item, s)
	})
}

// EventKind names an event for event filters.
func EventKind(ev event.Event) string {
	switch e := ev.(type) {
	case *event.RowsEvent:
		return e.Kind().String()
	case *event.QueryEvent, *event.ExecuteLoadQueryEvent:
		return "query"
	case *event.XidEvent:
		return "xid"
	case *event.GtidEvent:
		return "gtid"
	case *event.RotateEvent:
		return "rotate"
	case *event.TableMapEvent:
		return "tablemap"
	case *event.HeartbeatEvent:
		return "heartbeat"
	}
	return "other"
}

// isTransactionControl reports statements that carry no schema change.
func isTransactionControl(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	switch q {
	case "BEGIN", "COMMIT", "ROLLBACK":
		return true
	}
	return utils.StartWith(q, "XA ", "SAVEPOINT", "ROLLBACK TO")
}

// transactionControl reports query events marking transaction boundaries.
// They pass event filters so consumers can still pair BEGIN with COMMIT.
func transactionControl(ev event.Event) bool {
	q, ok := ev.(*event.QueryEvent)
	return ok && isTransactionControl(q.Query)
}

// opensTransaction reports statements after which the transaction is
// still open.
func opensTransaction(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return q == "BEGIN" || q == "XA END" || utils.StartWith(q, "XA START", "SAVEPOINT", "ROLLBACK TO")
}
