// Package sqliteengine is an in-process engine backed by SQLite. It honours
// the same callback contract as the sandboxed engine and is used where no
// module is available, such as tests and the native mode of the CLI.
package sqliteengine

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/handles"
	"github.com/tomyedwab/sqlbridge/sqlproxy/host"
	"github.com/tomyedwab/sqlbridge/value"
)

const (
	driverName = "sqlite3"
	// DefaultDSN gives every opened database its own private in-memory store.
	DefaultDSN = ":memory:"
)

type options struct {
	dsn    string
	logger *zap.Logger
}

type Option func(*options)

// WithDSN sets the data source opened for each database. Databases opened
// with the same file DSN share its contents.
func WithDSN(dsn string) Option {
	return func(o *options) {
		o.dsn = dsn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Engine keeps a reference on all opened databases.
type Engine struct {
	dsn    string
	logger *zap.Logger
	dbs    *handles.Registry[*sqlx.DB]
}

var (
	_ engine.Engine = (*Engine)(nil)
	_ engine.Closer = (*Engine)(nil)
)

func New(opts ...Option) *Engine {
	o := options{dsn: DefaultDSN, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		dsn:    o.dsn,
		logger: o.logger,
		dbs:    handles.NewRegistry[*sqlx.DB](),
	}
}

// OpenDatabase opens a database and reports the handle that selects it.
func (e *Engine) OpenDatabase(ctx context.Context, cb engine.OpenCallback) {
	go func() {
		db, err := sqlx.ConnectContext(ctx, driverName, e.dsn)
		if err != nil {
			cb(0, engine.Wrap("open database", err))
			return
		}
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)

		h := e.dbs.Register(db)
		e.logger.Debug("opened database", zap.Uint32("handle", uint32(h)), zap.String("dsn", e.dsn))
		cb(h, nil)
	}()
}

// Execute runs a statement on the database identified by h.
func (e *Engine) Execute(ctx context.Context, h engine.Handle, statement string, params []any, cb engine.ExecCallback) {
	go func() {
		db, err := e.lookup(h)
		if err != nil {
			cb(err)
			return
		}
		if _, err := db.ExecContext(ctx, statement, host.DriverArgs(params)...); err != nil {
			cb(engine.Wrap("exec", err))
			return
		}
		cb(nil)
	}()
}

// Query runs a statement and reports each row as a record in column order.
// The result is read in full before the first row is reported, so the
// callback may issue further statements on the same database.
func (e *Engine) Query(ctx context.Context, h engine.Handle, statement string, params []any, cb engine.RowCallback) {
	go func() {
		records, err := e.query(ctx, h, statement, params)
		for _, rec := range records {
			cb(rec, nil)
		}
		cb(nil, err)
	}()
}

func (e *Engine) query(ctx context.Context, h engine.Handle, statement string, params []any) ([]*value.Record, error) {
	db, err := e.lookup(h)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryxContext(ctx, statement, host.DriverArgs(params)...)
	if err != nil {
		return nil, engine.Wrap("query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, engine.Wrap("query", err)
	}

	var records []*value.Record
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return records, engine.Wrap("query", err)
		}
		vals := host.ProcessRowValues(raw)
		rec := &value.Record{
			Keys:   append([]string(nil), columns...),
			Fields: make(map[string]any, len(columns)),
		}
		for i, col := range columns {
			rec.Fields[col] = vals[i]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return records, engine.Wrap("query", err)
	}
	return records, nil
}

func (e *Engine) lookup(h engine.Handle) (*sqlx.DB, error) {
	db, ok := e.dbs.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w %d", engine.ErrUnknownHandle, h)
	}
	return db, nil
}

// Close closes every database the engine opened.
func (e *Engine) Close(ctx context.Context) error {
	var firstErr error
	e.dbs.Range(func(h engine.Handle, db *sqlx.DB) bool {
		e.dbs.Release(h)
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}
