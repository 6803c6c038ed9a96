// Package session is the host-facing API over a database engine. An Engine
// opens Databases; a Database runs statements and builds lazy Streams over
// query results.
//
//	eng, err := session.Initialize(ctx, session.WithModuleLocation("engine.wasm"))
//	db, err := eng.Database(ctx)
//	err = db.Exec(ctx, "CREATE TABLE foo (a, b)")
//	rows, err := db.Query("SELECT * FROM foo").Filter(hasA).Collect(ctx)
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tomyedwab/sqlbridge/async"
	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/handles"
	"github.com/tomyedwab/sqlbridge/sqlproxy/host"
	"github.com/tomyedwab/sqlbridge/value"
	"github.com/tomyedwab/sqlbridge/wasmengine"
)

// DefaultModuleLocation is where Initialize looks for the engine module
// when no location is given.
const DefaultModuleLocation = "genji.wasm"

type options struct {
	moduleLocation string
	storage        *sqlx.DB
	logger         *zap.Logger
	httpClient     *http.Client
}

type Option func(*options)

// WithModuleLocation sets the engine module to load: a filesystem path or
// an http(s) URL.
func WithModuleLocation(location string) Option {
	return func(o *options) {
		o.moduleLocation = location
	}
}

// WithStorage sets the database that backs the sandboxed engine. Every
// Database the Engine opens then shares db, so tables created through one
// are visible to the others. The caller keeps ownership of db. Without it
// each Database gets its own in-memory store that is closed with it.
func WithStorage(db *sqlx.DB) Option {
	return func(o *options) {
		o.storage = db
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient sets the client used to fetch a module from a URL.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		moduleLocation: DefaultModuleLocation,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Engine is a ready engine. It is safe for concurrent use.
type Engine struct {
	eng    engine.Engine
	logger *zap.Logger
	dbs    *handles.Registry[*Database]

	closed   atomic.Bool
	closeFns []func() error
}

// Initialize loads the engine module and readies it for use.
func Initialize(ctx context.Context, opts ...Option) (*Engine, error) {
	o := newOptions(opts)

	store := host.MemoryStore
	if o.storage != nil {
		store = host.SharedStore(o.storage)
	}
	sqlHost := host.NewSQLHost(store, o.logger.Named("storage"))

	wasmOpts := []wasmengine.Option{
		wasmengine.WithLogger(o.logger),
		wasmengine.WithStorage(sqlHost),
		wasmengine.WithHTTPClient(o.httpClient),
	}
	eng, err := wasmengine.Load(ctx, o.moduleLocation, wasmOpts...)
	if err != nil {
		sqlHost.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	e := newEngine(eng, o)
	e.closeFns = []func() error{sqlHost.Close}
	o.logger.Info("engine initialized", zap.String("module", o.moduleLocation))
	return e, nil
}

// NewEngine wraps an already running engine. Only the logger option
// applies.
func NewEngine(eng engine.Engine, opts ...Option) *Engine {
	return newEngine(eng, newOptions(opts))
}

func newEngine(eng engine.Engine, o *options) *Engine {
	return &Engine{
		eng:    eng,
		logger: o.logger,
		dbs:    handles.NewRegistry[*Database](),
	}
}

// DatabaseAsync opens a new database. A database the engine reports after
// ctx is done is not adopted.
func (e *Engine) DatabaseAsync(ctx context.Context) *async.Completion[*Database] {
	if e.closed.Load() {
		return async.Rejected[*Database](engine.ErrClosed)
	}

	c := async.New[*Database]()
	var once sync.Once
	e.eng.OpenDatabase(ctx, func(h engine.Handle, err error) {
		once.Do(func() {
			if err != nil {
				c.Reject(err)
				return
			}
			if ctx.Err() != nil {
				e.logger.Debug("database opened after cancellation", zap.Uint32("handle", uint32(h)))
				c.Reject(ctx.Err())
				return
			}
			db := &Database{engine: e, handle: h}
			if !e.dbs.Adopt(h, db) {
				c.Reject(fmt.Errorf("engine reported database handle %d twice", h))
				return
			}
			e.logger.Debug("database opened", zap.Uint32("handle", uint32(h)))
			c.Resolve(db)
		})
	})
	return c
}

// Database opens a new database and waits for it to be ready. If ctx ends
// first, a database adopted in the meantime is released again.
func (e *Engine) Database(ctx context.Context) (*Database, error) {
	c := e.DatabaseAsync(ctx)
	db, err := c.Wait(ctx)
	if err != nil {
		c.Then(func(late *Database, err error) {
			if err == nil && late != nil {
				e.dbs.Release(late.handle)
			}
		})
		return nil, err
	}
	return db, nil
}

// Databases returns the number of databases opened and not yet released.
func (e *Engine) Databases() int {
	return e.dbs.Len()
}

// Close releases every database and the engine itself. Operations started
// afterwards fail with engine.ErrClosed.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}
	e.dbs.Range(func(h engine.Handle, _ *Database) bool {
		e.dbs.Release(h)
		return true
	})

	var err error
	if closer, ok := e.eng.(engine.Closer); ok {
		err = multierr.Append(err, closer.Close(ctx))
	}
	for _, fn := range e.closeFns {
		err = multierr.Append(err, fn())
	}
	e.logger.Debug("engine closed", zap.Error(err))
	return err
}

// Database is an open database inside the engine.
type Database struct {
	engine *Engine
	handle engine.Handle
}

// Handle returns the engine's identifier for d.
func (d *Database) Handle() engine.Handle {
	return d.handle
}

// ExecAsync runs a statement that returns no rows. Parameters are Go values
// accepted by value.Of.
func (d *Database) ExecAsync(ctx context.Context, statement string, params ...any) *async.Completion[struct{}] {
	if d.engine.closed.Load() {
		return async.Rejected[struct{}](engine.ErrClosed)
	}
	args, err := encodeParams(params)
	if err != nil {
		return async.Rejected[struct{}](err)
	}

	d.engine.logger.Debug("exec", zap.Uint32("handle", uint32(d.handle)), zap.String("statement", statement))
	return async.FromErrCallback(func(cb func(error)) {
		d.engine.eng.Execute(ctx, d.handle, statement, args, cb)
	})
}

// Exec runs a statement that returns no rows and waits for it to finish.
func (d *Database) Exec(ctx context.Context, statement string, params ...any) error {
	_, err := d.ExecAsync(ctx, statement, params...).Wait(ctx)
	return err
}

// Query returns a Stream over the statement's rows. Nothing runs until the
// Stream is consumed, and every consumption runs the statement again.
func (d *Database) Query(statement string, params ...any) *Stream {
	return &Stream{
		db:        d,
		statement: statement,
		params:    params,
	}
}

func encodeParams(params []any) ([]any, error) {
	vals, err := value.OfAll(params)
	if err != nil {
		return nil, fmt.Errorf("invalid statement parameters: %w", err)
	}
	return value.EncodeAll(vals), nil
}
