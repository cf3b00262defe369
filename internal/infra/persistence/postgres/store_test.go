package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbtlineage/pkg/domain"
)

type stubConn struct {
	mu        sync.Mutex
	execs     []string
	args      [][]driver.NamedValue
	failExec  string
	commits   int
	rollbacks int
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func newStubDB(t *testing.T) (*sql.DB, *stubConn) {
	t.Helper()
	conn := &stubConn{}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	require.NoError(t, err)
	return db, conn
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) { return c, nil }

func (c *stubConn) Ping(context.Context) error { return nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) { return c, nil }

func (c *stubConn) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	return nil
}

func (c *stubConn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks++
	return nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failExec != "" && strings.Contains(query, c.failExec) {
		return nil, errors.New("exec failed")
	}
	c.execs = append(c.execs, query)
	c.args = append(c.args, args)
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return emptyRows{}, nil
}

type emptyRows struct{}

func (emptyRows) Columns() []string { return []string{"payload"} }

func (emptyRows) Close() error { return nil }

func (emptyRows) Next([]driver.Value) error { return io.EOF }

func openStubStore(t *testing.T) (*Store, *stubConn) {
	t.Helper()
	db, conn := newStubDB(t)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore("", domain.NewRulesEngine())
	require.NoError(t, err)
	return store, conn
}

func TestNewStoreAppliesDDL(t *testing.T) {
	_, conn := openStubStore(t)
	var tables []string
	for _, stmt := range conn.execs {
		if strings.HasPrefix(stmt, "CREATE TABLE") {
			tables = append(tables, stmt)
		}
	}
	require.Len(t, tables, 3)
	assert.Contains(t, tables[0], "payload JSONB NOT NULL")
}

func TestRunInTransactionUpsertsTouchedRows(t *testing.T) {
	store, conn := openStubStore(t)
	ddl := len(conn.execs)

	var design domain.Design
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		design, err = tx.CreateDesign(domain.Design{Name: "d", Lineage: domain.Lineage{Sequence: "A"}})
		return err
	})
	require.NoError(t, err)

	upserts := conn.execs[ddl:]
	require.Len(t, upserts, 1)
	assert.Contains(t, upserts[0], "INSERT INTO designs")
	assert.Contains(t, upserts[0], "$7")
	assert.Equal(t, design.ID, conn.args[ddl][0].Value)
	assert.Equal(t, 1, conn.commits)
}

func TestRunInTransactionWriteFailureRestoresState(t *testing.T) {
	store, conn := openStubStore(t)
	conn.failExec = "INSERT INTO designs"

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateDesign(domain.Design{Name: "d", Lineage: domain.Lineage{Sequence: "A"}})
		return err
	})
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, store.ListDesigns())
	assert.Equal(t, 1, conn.rollbacks)
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial") })
	defer restore()
	_, err := NewStore("postgres://example", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres")
}
