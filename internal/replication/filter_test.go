package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SisyphusSQ/binrepl/internal/event"
)

func TestFilterTables(t *testing.T) {
	f := Filter{
		IncludeSchemas: []string{"shop", "crm"},
		ExcludeTables:  []string{"shop.secret", "tmp"},
	}
	tests := []struct {
		schema, table string
		want          bool
	}{
		{"shop", "users", true},
		{"SHOP", "Users", true},
		{"shop", "secret", false},
		{"crm", "secret", true},
		{"crm", "tmp", false},
		{"shop", "tmp", false},
		{"billing", "users", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.TableAllowed(tt.schema, tt.table), "%s.%s", tt.schema, tt.table)
	}

	f = Filter{IncludeTables: []string{"orders"}, ExcludeSchemas: []string{"mysql"}}
	assert.True(t, f.TableAllowed("shop", "orders"))
	assert.False(t, f.TableAllowed("shop", "users"))
	assert.False(t, f.TableAllowed("mysql", "orders"))
	assert.True(t, f.SchemaAllowed("anything"))
}

func TestFilterEvents(t *testing.T) {
	var f Filter
	assert.True(t, f.EventAllowed("insert"))

	f = Filter{IncludeEvents: []string{"insert", "update", "xid"}, ExcludeEvents: []string{"update"}}
	assert.True(t, f.EventAllowed("insert"))
	assert.True(t, f.EventAllowed("xid"))
	assert.False(t, f.EventAllowed("update"))
	assert.False(t, f.EventAllowed("query"))
}

func TestEventKind(t *testing.T) {
	tests := []struct {
		ev   event.Event
		want string
	}{
		{&event.RowsEvent{Header: event.Header{Type: event.TypeWriteRowsV2}}, "insert"},
		{&event.RowsEvent{Header: event.Header{Type: event.TypeUpdateRowsV1}}, "update"},
		{&event.RowsEvent{Header: event.Header{Type: event.TypeDeleteRowsV2}}, "delete"},
		{&event.QueryEvent{}, "query"},
		{&event.ExecuteLoadQueryEvent{}, "query"},
		{&event.XidEvent{}, "xid"},
		{&event.GtidEvent{}, "gtid"},
		{&event.RotateEvent{}, "rotate"},
		{&event.TableMapEvent{}, "tablemap"},
		{&event.HeartbeatEvent{}, "heartbeat"},
		{&event.StopEvent{}, "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EventKind(tt.ev))
	}
}

func TestTransactionStatements(t *testing.T) {
	for _, q := range []string{"BEGIN", " begin ", "XA START 'x'", "XA END", "SAVEPOINT sp1", "ROLLBACK TO sp1"} {
		assert.True(t, opensTransaction(q), q)
		assert.True(t, isTransactionControl(q), q)
	}
	for _, q := range []string{"COMMIT", "ROLLBACK", "XA COMMIT 'x'"} {
		assert.False(t, opensTransaction(q), q)
		assert.True(t, isTransactionControl(q), q)
	}
	assert.False(t, opensTransaction("CREATE TABLE t (id int)"))
	assert.False(t, isTransactionControl("BEGINNING"))
}
