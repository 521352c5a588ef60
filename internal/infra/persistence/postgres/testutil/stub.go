// Package testutil provides an in-memory database/sql driver standing in for
// postgres in run store tests. It understands only the statements the store
// issues: the table DDL, the run upsert, lookup by id and the ordered listing.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Run is one stored row of the runs table.
type Run struct {
	ID        string
	StartedAt time.Time
	Payload   []byte
}

// StubConn keeps run rows in memory and records every executed statement.
// The Fail switches and RowsErr inject errors at the matching call.
type StubConn struct {
	mu    sync.Mutex
	Execs []string
	Runs  map[string]Run

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
}

var driverSeq atomic.Int64

// NewStubDB registers a fresh stub driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Runs: make(map[string]Run)}
	name := fmt.Sprintf("cpgcore-stubpg-%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn; statements go through ExecContext and QueryContext instead.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return stubTx{conn: c}, nil
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	stmt := normalize(query)
	switch {
	case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS CPGCORE_RUNS"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(stmt, "INSERT INTO CPGCORE_RUNS"):
		run, err := runFromArgs(args)
		if err != nil {
			return nil, err
		}
		c.Runs[run.ID] = run
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stmt := normalize(query)
	switch {
	case strings.HasPrefix(stmt, "SELECT ID, PAYLOAD FROM CPGCORE_RUNS WHERE ID ="):
		if len(args) != 1 {
			return nil, fmt.Errorf("lookup expects one argument, got %d", len(args))
		}
		rows := &stubRows{cols: []string{"id", "payload"}, err: c.RowsErr}
		if run, ok := c.Runs[fmt.Sprint(args[0].Value)]; ok {
			rows.rows = append(rows.rows, []driver.Value{run.ID, run.Payload})
		}
		return rows, nil
	case strings.HasPrefix(stmt, "SELECT PAYLOAD FROM CPGCORE_RUNS ORDER BY"):
		runs := make([]Run, 0, len(c.Runs))
		for _, run := range c.Runs {
			runs = append(runs, run)
		}
		sort.Slice(runs, func(i, j int) bool {
			if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
				return runs[i].StartedAt.After(runs[j].StartedAt)
			}
			return runs[i].ID < runs[j].ID
		})
		rows := &stubRows{cols: []string{"payload"}, err: c.RowsErr}
		for _, run := range runs {
			rows.rows = append(rows.rows, []driver.Value{run.Payload})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported query: %s", query)
}

func runFromArgs(args []driver.NamedValue) (Run, error) {
	if len(args) != 3 {
		return Run{}, fmt.Errorf("upsert expects 3 arguments, got %d", len(args))
	}
	id, ok := args[0].Value.(string)
	if !ok {
		return Run{}, fmt.Errorf("id argument is %T", args[0].Value)
	}
	started, ok := args[1].Value.(time.Time)
	if !ok {
		return Run{}, fmt.Errorf("started_at argument is %T", args[1].Value)
	}
	payload, ok := args[2].Value.([]byte)
	if !ok {
		return Run{}, fmt.Errorf("payload argument is %T", args[2].Value)
	}
	return Run{ID: id, StartedAt: started, Payload: append([]byte(nil), payload...)}, nil
}

func normalize(query string) string {
	return strings.ToUpper(strings.Join(strings.Fields(query), " "))
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
