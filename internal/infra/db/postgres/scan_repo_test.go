package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stub driver that records the query and serves one canned row, so the
// column order of aggregate queries can be asserted without a server.
type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

type stubConn struct {
	query string
	args  []driver.NamedValue
	row   []driver.Value
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

func (c *stubConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.query = query
	c.args = args
	return &stubRows{row: c.row}, nil
}

type stubRows struct {
	row  []driver.Value
	done bool
}

func (r *stubRows) Columns() []string {
	cols := make([]string, len(r.row))
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	return cols
}
func (r *stubRows) Close() error { return nil }
func (r *stubRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	copy(dest, r.row)
	r.done = true
	return nil
}

func TestSummaryColumnOrder(t *testing.T) {
	conn := &stubConn{row: []driver.Value{int64(5), int64(7), int64(3), int64(2)}}
	sql.Register("postgres-scan-stub", &stubDriver{conn: conn})
	db, err := sql.Open("postgres-scan-stub", "")
	require.NoError(t, err)
	defer db.Close()

	repo := NewScanRepository(db)
	total, completed, failed, findings, err := repo.Summary(context.Background(), 1, 30)
	require.NoError(t, err)

	// the row comes back in (total, completed, failed, findings) order
	assert.Equal(t, 5, total)
	assert.Equal(t, 7, completed)
	assert.Equal(t, 3, failed)
	assert.Equal(t, 2, findings)

	// status counts, not severity sums
	assert.Contains(t, conn.query, "FILTER (WHERE status=$1)")
	assert.Contains(t, conn.query, "findings_total")
	assert.NotContains(t, conn.query, "SUM(critical)")
	require.Len(t, conn.args, 4)
	assert.Equal(t, "completed", fmt.Sprint(conn.args[0].Value))
	assert.Equal(t, "failed", fmt.Sprint(conn.args[1].Value))
}
