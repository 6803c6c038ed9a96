// Package enginetest provides a scripted engine for exercising code that
// sits on top of the engine callback contract.
package enginetest

import (
	"context"
	"sync"

	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/value"
)

// Call records one entry point invocation.
type Call struct {
	Op        string
	Handle    engine.Handle
	Statement string
	Params    []any
}

// QueryFunc scripts the callbacks for one query.
type QueryFunc func(h engine.Handle, statement string, params []any, cb engine.RowCallback)

// Stub is an engine.Engine whose behaviour is supplied by the test. Unset
// funcs behave like an empty, error-free engine. Callbacks are delivered on
// a fresh goroutine unless Sync is set.
type Stub struct {
	OpenFunc  func() (engine.Handle, error)
	ExecFunc  func(h engine.Handle, statement string, params []any) error
	QueryFunc QueryFunc
	Sync      bool

	mu    sync.Mutex
	next  engine.Handle
	calls []Call
}

var _ engine.Engine = (*Stub)(nil)

func (s *Stub) OpenDatabase(ctx context.Context, cb engine.OpenCallback) {
	s.record(Call{Op: "open"})
	s.run(func() {
		if s.OpenFunc != nil {
			cb(s.OpenFunc())
			return
		}
		s.mu.Lock()
		s.next++
		h := s.next
		s.mu.Unlock()
		cb(h, nil)
	})
}

func (s *Stub) Execute(ctx context.Context, h engine.Handle, statement string, params []any, cb engine.ExecCallback) {
	s.record(Call{Op: "exec", Handle: h, Statement: statement, Params: params})
	s.run(func() {
		if s.ExecFunc != nil {
			cb(s.ExecFunc(h, statement, params))
			return
		}
		cb(nil)
	})
}

func (s *Stub) Query(ctx context.Context, h engine.Handle, statement string, params []any, cb engine.RowCallback) {
	s.record(Call{Op: "query", Handle: h, Statement: statement, Params: params})
	s.run(func() {
		if s.QueryFunc != nil {
			s.QueryFunc(h, statement, params, cb)
			return
		}
		cb(nil, nil)
	})
}

// Calls returns the invocations seen so far.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Stub) record(c Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *Stub) run(fn func()) {
	if s.Sync {
		fn()
		return
	}
	go fn()
}

// Rows scripts a query that delivers rows in order and then ends.
func Rows(rows ...any) QueryFunc {
	return func(_ engine.Handle, _ string, _ []any, cb engine.RowCallback) {
		for _, r := range rows {
			cb(r, nil)
		}
		cb(nil, nil)
	}
}

// FailAfter scripts a query that delivers rows and then reports err.
func FailAfter(err error, rows ...any) QueryFunc {
	return func(_ engine.Handle, _ string, _ []any, cb engine.RowCallback) {
		for _, r := range rows {
			cb(r, nil)
		}
		cb(nil, err)
	}
}

// Row builds an encoded row document from alternating column/value pairs.
func Row(kv ...any) *value.Record {
	return value.EncodeObject(value.Obj(kv...))
}
