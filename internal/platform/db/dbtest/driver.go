// Package dbtest provides a scriptable database/sql driver. Connections it
// hands out count against the *sql.DB pool like real ones, so pool limits
// behave as they do against Postgres.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
)

// Reply is the answer to one statement. Exec calls only use RowsAffected.
type Reply struct {
	Columns      []string
	Rows         [][]driver.Value
	RowsAffected int64
}

// Handler answers every query and exec sent over any connection.
type Handler func(ctx context.Context, query string, args []driver.NamedValue) (Reply, error)

// Open returns a pool whose connections are served by h.
func Open(h Handler) *sql.DB {
	return sql.OpenDB(connector{handler: h})
}

type connector struct {
	handler Handler
}

func (c connector) Connect(context.Context) (driver.Conn, error) {
	return &conn{handler: c.handler}, nil
}

func (c connector) Driver() driver.Driver { return drv{} }

type drv struct{}

func (drv) Open(string) (driver.Conn, error) {
	return nil, errors.New("dbtest: open through a connector")
}

type conn struct {
	handler Handler
}

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("dbtest: prepared statements are not supported")
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return nil, errors.New("dbtest: transactions are not supported")
}

func (c *conn) Ping(context.Context) error { return nil }

// CheckNamedValue passes arguments through unconverted, as pgx does.
func (c *conn) CheckNamedValue(*driver.NamedValue) error { return nil }

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	reply, err := c.handler(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return &rows{columns: reply.Columns, values: reply.Rows}, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	reply, err := c.handler(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(reply.RowsAffected), nil
}

type rows struct {
	columns []string
	values  [][]driver.Value
}

func (r *rows) Columns() []string { return r.columns }

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if len(r.values) == 0 {
		return io.EOF
	}
	copy(dest, r.values[0])
	r.values = r.values[1:]
	return nil
}
