package driver

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tomyedwab/sqlbridge/sqlproxy/types"
)

// CallHost delivers one request payload to the host and returns its response
// payload.
type CallHost func(requestPayload []byte) (responsePayload []byte, err error)

// ErrTxUnsupported is returned by Begin. The storage proxy runs every
// statement on its own.
var ErrTxUnsupported = errors.New("sqlproxy: transactions are not supported")

// Connector opens proxy connections that talk to the host through call.
// Use it with sql.OpenDB. The host database behind a Connector is opened on
// the first connection and shared by all of its connections; closing the
// sql.DB releases it.
type Connector struct {
	call CallHost

	mu       sync.Mutex
	database uint32
	opened   bool
}

var _ io.Closer = (*Connector)(nil)

func NewConnector(call CallHost) *Connector {
	return &Connector{call: call}
}

func (c *Connector) Connect(context.Context) (driver.Conn, error) {
	if c.call == nil {
		return nil, fmt.Errorf("sqlproxy: CallHost function is not set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		var resp types.OpenResponse
		err := roundTrip(c.call, types.SQLRequest{Command: types.CommandOpen}, &resp, func() string { return resp.Error })
		if err != nil {
			return nil, err
		}
		c.database = resp.Database
		c.opened = true
	}
	return &Conn{call: c.call, database: c.database}, nil
}

// Close releases the host database, if one was opened. sql.DB.Close calls
// it.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil
	}
	c.opened = false
	var resp types.GeneralResponse
	return roundTrip(c.call, types.SQLRequest{Command: types.CommandCloseDB, Database: c.database}, &resp, func() string { return resp.Error })
}

func (c *Connector) Driver() driver.Driver { return Driver{} }

// Driver exists to satisfy driver.Connector; connections are only created
// through a Connector.
type Driver struct{}

func (Driver) Open(string) (driver.Conn, error) {
	return nil, fmt.Errorf("sqlproxy: open connections with sql.OpenDB(NewConnector(...))")
}

// --- Connection implementation ---

// Conn implements the driver.Conn interface.
type Conn struct {
	call     CallHost
	database uint32
}

var (
	_ driver.Conn              = (*Conn)(nil)
	_ driver.NamedValueChecker = (*Conn)(nil)
)

// Prepare returns a statement bound to this connection. Nothing is sent to
// the host until the statement runs.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{conn: c, query: query}, nil
}

// Close tells the host the connection is going away.
func (c *Conn) Close() error {
	var resp types.GeneralResponse
	return c.roundTrip(types.SQLRequest{Command: types.CommandCloseConn}, &resp, func() string { return resp.Error })
}

func (c *Conn) Begin() (driver.Tx, error) {
	return nil, ErrTxUnsupported
}

// CheckNamedValue accepts parameters unchanged. Engine parameters include
// lists and records that the default converter would reject; the host
// converts them.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	if t, ok := nv.Value.(time.Time); ok {
		nv.Value = t.Format(time.RFC3339Nano)
	}
	return nil
}

// roundTrip sends req on the connection's database.
func (c *Conn) roundTrip(req types.SQLRequest, resp any, errOf func() string) error {
	req.Database = c.database
	return roundTrip(c.call, req, resp, errOf)
}

func roundTrip(call CallHost, req types.SQLRequest, resp any, errOf func() string) error {
	reqPayload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sqlproxy: failed to marshal %s request: %w", req.Command, err)
	}

	respPayload, err := call(reqPayload)
	if err != nil {
		return fmt.Errorf("sqlproxy: CallHost for %s failed: %w", req.Command, err)
	}

	if err := json.Unmarshal(respPayload, resp); err != nil {
		return fmt.Errorf("sqlproxy: failed to unmarshal %s response: %w", req.Command, err)
	}
	if msg := errOf(); msg != "" {
		return &HostError{Command: req.Command, Message: msg}
	}
	return nil
}

// HostError is an error the host reported for a request.
type HostError struct {
	Command string
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("sqlproxy: host %s error: %s", e.Command, e.Message)
}

// --- Statement implementation ---

// Stmt implements the driver.Stmt interface.
type Stmt struct {
	conn  *Conn
	query string
}

func (s *Stmt) Close() error { return nil }

// NumInput returns -1; the host validates placeholder counts.
func (s *Stmt) NumInput() int { return -1 }

func convertDriverValues(args []driver.Value) []any {
	out := make([]any, len(args))
	for i, v := range args {
		out[i] = v
	}
	return out
}

// Exec executes the statement with the given arguments.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	var resp types.ExecResponse
	err := s.conn.roundTrip(
		types.SQLRequest{Command: types.CommandExec, SQL: s.query, Args: convertDriverValues(args)},
		&resp, func() string { return resp.Error })
	if err != nil {
		return nil, err
	}
	return &sqlProxyResult{lastInsertID: resp.LastInsertID, rowsAffected: resp.RowsAffected}, nil
}

// Query executes the statement and returns all of its rows.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	var resp types.QueryResponse
	err := s.conn.roundTrip(
		types.SQLRequest{Command: types.CommandQuery, SQL: s.query, Args: convertDriverValues(args)},
		&resp, func() string { return resp.Error })
	if err != nil {
		return nil, err
	}
	return &sqlProxyRows{columns: resp.Columns, data: resp.Rows}, nil
}

// --- Result implementation ---

type sqlProxyResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r *sqlProxyResult) LastInsertId() (int64, error) {
	return r.lastInsertID, nil
}

func (r *sqlProxyResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- Rows implementation ---

// sqlProxyRows holds a result set fetched from the host in one response.
type sqlProxyRows struct {
	columns         []string
	data            [][]any
	currentRowIndex int
}

func (r *sqlProxyRows) Columns() []string {
	return r.columns
}

func (r *sqlProxyRows) Close() error {
	r.data = nil
	r.currentRowIndex = 0
	return nil
}

// Next copies the next row into dest. Values keep their JSON types:
// float64, string, bool or nil.
func (r *sqlProxyRows) Next(dest []driver.Value) error {
	if r.currentRowIndex >= len(r.data) {
		return io.EOF
	}

	rowData := r.data[r.currentRowIndex]
	if len(rowData) != len(dest) {
		return fmt.Errorf("sqlproxy: column count mismatch. Expected %d, got %d", len(dest), len(rowData))
	}
	for i, val := range rowData {
		dest[i] = val
	}

	r.currentRowIndex++
	return nil
}
