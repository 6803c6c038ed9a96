package guest

import (
	"database/sql"
	"fmt"

	"github.com/tomyedwab/sqlbridge/handles"
	"github.com/tomyedwab/sqlbridge/value"
	"github.com/tomyedwab/sqlbridge/wasi/types"
)

// Backend runs the engine's entry points against database/sql. It keeps a
// reference on every database it opened, keyed by the handle given to the
// host.
type Backend struct {
	open func() (*sql.DB, error)
	dbs  *handles.Registry[*sql.DB]
}

// NewBackend returns a Backend that calls open for every open_db request.
func NewBackend(open func() (*sql.DB, error)) *Backend {
	return &Backend{
		open: open,
		dbs:  handles.NewRegistry[*sql.DB](),
	}
}

// Open opens a database and returns the handle the host uses to select it.
func (b *Backend) Open() (handles.Handle, error) {
	db, err := b.open()
	if err != nil {
		return 0, err
	}
	return b.dbs.Register(db), nil
}

func (b *Backend) lookup(h uint32) (*sql.DB, error) {
	db, ok := b.dbs.Get(handles.Handle(h))
	if !ok {
		return nil, fmt.Errorf("unknown database id %d", h)
	}
	return db, nil
}

// Exec runs a statement that returns no rows.
func (b *Backend) Exec(req types.StatementRequest) error {
	db, err := b.lookup(req.Handle)
	if err != nil {
		return err
	}
	_, err = db.Exec(req.Statement, req.Params...)
	return err
}

// Query runs a statement and calls emit for each row, in order. Each row is
// a record whose keys follow the result's column order. Iteration stops at
// the first error from emit.
func (b *Backend) Query(req types.StatementRequest, emit func(*value.Record) error) error {
	db, err := b.lookup(req.Handle)
	if err != nil {
		return err
	}

	rows, err := db.Query(req.Statement, req.Params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	scanArgs := make([]any, len(columns))
	scanPtrs := make([]any, len(columns))
	for i := range scanArgs {
		scanPtrs[i] = &scanArgs[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanPtrs...); err != nil {
			return err
		}
		rec := &value.Record{
			Keys:   append([]string(nil), columns...),
			Fields: make(map[string]any, len(columns)),
		}
		for i, col := range columns {
			v := scanArgs[i]
			if bs, ok := v.([]byte); ok {
				v = string(bs)
			}
			rec.Fields[col] = v
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes every open database.
func (b *Backend) Close() error {
	var firstErr error
	b.dbs.Range(func(h handles.Handle, db *sql.DB) bool {
		b.dbs.Release(h)
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}
