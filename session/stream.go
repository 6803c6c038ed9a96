package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomyedwab/sqlbridge/async"
	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/value"
)

// ErrNoRows is returned by First when the stream yields nothing.
var ErrNoRows = errors.New("no rows in result")

var errStop = errors.New("stop")

// Stage transforms one row. Returning keep == false drops the row; the
// remaining stages do not see it.
type Stage func(row *value.Object) (out *value.Object, keep bool)

// Stream is a lazy, immutable view over a query's rows. Map, Filter and
// Pipe return a new Stream and leave the receiver unchanged.
type Stream struct {
	db        *Database
	statement string
	params    []any
	stages    []Stage
}

// Pipe returns a Stream with stage appended.
func (s *Stream) Pipe(stage Stage) *Stream {
	stages := make([]Stage, len(s.stages), len(s.stages)+1)
	copy(stages, s.stages)
	return &Stream{
		db:        s.db,
		statement: s.statement,
		params:    s.params,
		stages:    append(stages, stage),
	}
}

// Map returns a Stream that replaces each row with fn's result. A nil
// result drops the row.
func (s *Stream) Map(fn func(*value.Object) *value.Object) *Stream {
	return s.Pipe(func(row *value.Object) (*value.Object, bool) {
		out := fn(row)
		return out, out != nil
	})
}

// Filter returns a Stream that keeps only the rows pred accepts.
func (s *Stream) Filter(pred func(*value.Object) bool) *Stream {
	return s.Pipe(func(row *value.Object) (*value.Object, bool) {
		return row, pred(row)
	})
}

func (s *Stream) apply(row *value.Object) (*value.Object, bool) {
	for _, stage := range s.stages {
		var keep bool
		if row, keep = stage(row); !keep {
			return nil, false
		}
	}
	return row, true
}

type rowEvent struct {
	row any
	err error
}

// ForEach runs the query and calls visit with every row that passes the
// stages, in the order the engine produced them. It returns nil once the
// engine reports the end of the results, the engine's error if it reports
// one, or the first error from visit. An *engine.Error is returned tagged
// with the query's id. Stages and visit run on the calling
// goroutine.
func (s *Stream) ForEach(ctx context.Context, visit func(*value.Object) error) error {
	e := s.db.engine
	if e.closed.Load() {
		return engine.ErrClosed
	}
	args, err := encodeParams(s.params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queryID := uuid.NewString()
	logger := e.logger.With(
		zap.String("query_id", queryID),
		zap.Uint32("handle", uint32(s.db.handle)),
	)
	logger.Debug("query", zap.String("statement", s.statement))

	events := make(chan rowEvent)
	var ended atomic.Bool
	go e.eng.Query(ctx, s.db.handle, s.statement, args, func(row any, err error) {
		if ended.Load() {
			return
		}
		if row == nil || err != nil {
			ended.Store(true)
		}
		select {
		case events <- rowEvent{row: row, err: err}:
		case <-ctx.Done():
		}
	})

	visited := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.err != nil {
				logger.Debug("query failed", zap.Error(ev.err))
				if ee, ok := ev.err.(*engine.Error); ok {
					return ee.WithQueryID(queryID)
				}
				return ev.err
			}
			if ev.row == nil {
				logger.Debug("query finished", zap.Int("rows", visited))
				return nil
			}
			out, keep := s.apply(value.DecodeRow(ev.row))
			if !keep {
				continue
			}
			visited++
			if err := visit(out); err != nil {
				return err
			}
		}
	}
}

// ForEachAsync is ForEach run on its own goroutine. A panic in a stage or
// in visit rejects the completion, except a value.ContractViolation, which
// is never recovered.
func (s *Stream) ForEachAsync(ctx context.Context, visit func(*value.Object) error) *async.Completion[struct{}] {
	c := async.New[struct{}]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if cv, ok := r.(*value.ContractViolation); ok {
					panic(cv)
				}
				c.Reject(fmt.Errorf("stream consumer panicked: %v", r))
			}
		}()
		c.Settle(struct{}{}, s.ForEach(ctx, visit))
	}()
	return c
}

// Collect returns every row that passes the stages.
func (s *Stream) Collect(ctx context.Context) ([]*value.Object, error) {
	var rows []*value.Object
	err := s.ForEach(ctx, func(row *value.Object) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// First returns the first row that passes the stages and stops consuming
// the query. It returns ErrNoRows if there is none.
func (s *Stream) First(ctx context.Context) (*value.Object, error) {
	var first *value.Object
	err := s.ForEach(ctx, func(row *value.Object) error {
		first = row
		return errStop
	})
	switch {
	case errors.Is(err, errStop):
		return first, nil
	case err != nil:
		return nil, err
	}
	return nil, ErrNoRows
}
