// Package testutil provides a stub database/sql driver that understands the
// bucket statements of the postgres store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

const stateTable = "state"

var driverSeq atomic.Uint64

// StubConn keeps the state table in memory. Writes inside a transaction are
// staged and applied on commit.
type StubConn struct {
	mu sync.Mutex

	// Execs lists every statement passed to ExecContext.
	Execs []string
	// Tables maps table name to rows keyed by lowercase column name.
	Tables map[string][]map[string]any

	FailExec   bool
	FailBegin  bool
	FailCommit bool
	// RowsErr is returned by the row iterator after the last row.
	RowsErr error

	staged []func()
	inTx   bool
}

// NewStubDB registers a fresh driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("molluscadb-stub-%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn. Only direct exec and query are supported.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("stub: prepare not supported: %s", query)
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("stub: ping failed")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	c.inTx = true
	c.staged = nil
	return stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	verb := strings.ToUpper(strings.Fields(query)[0])
	var apply func()
	switch verb {
	case "CREATE":
		return driver.RowsAffected(0), nil
	case "INSERT":
		if len(args) != 2 {
			return nil, fmt.Errorf("stub: insert wants bucket and payload, got %d args", len(args))
		}
		row := map[string]any{"bucket": args[0].Value, "payload": args[1].Value}
		apply = func() { c.put(row) }
	case "DELETE":
		if len(args) != 1 {
			return nil, fmt.Errorf("stub: delete wants a bucket, got %d args", len(args))
		}
		bucket := args[0].Value
		apply = func() { c.drop(bucket) }
	default:
		return nil, fmt.Errorf("stub: unsupported statement: %s", query)
	}
	if c.inTx {
		c.staged = append(c.staged, apply)
	} else {
		apply()
	}
	return driver.RowsAffected(1), nil
}

func (c *StubConn) put(row map[string]any) {
	c.drop(row["bucket"])
	c.Tables[stateTable] = append(c.Tables[stateTable], row)
}

func (c *StubConn) drop(bucket any) {
	rows := c.Tables[stateTable][:0:0]
	for _, r := range c.Tables[stateTable] {
		if r["bucket"] != bucket {
			rows = append(rows, r)
		}
	}
	c.Tables[stateTable] = rows
}

// QueryContext implements driver.QueryerContext for SELECT bucket, payload.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return nil, fmt.Errorf("stub: unsupported query: %s", query)
	}
	rows := &stubRows{err: c.RowsErr}
	for _, r := range c.Tables[stateTable] {
		rows.rows = append(rows.rows, []driver.Value{r["bucket"], r["payload"]})
	}
	return rows, nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inTx = false
	staged := c.staged
	c.staged = nil
	if c.FailCommit {
		return errors.New("stub: commit failed")
	}
	for _, apply := range staged {
		apply()
	}
	return nil
}

func (t stubTx) Rollback() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inTx = false
	c.staged = nil
	return nil
}

type stubRows struct {
	rows [][]driver.Value
	next int
	err  error
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}
