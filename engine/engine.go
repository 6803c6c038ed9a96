// Package engine defines the callback contract between the host and an
// embedded database engine.
//
// The engine is opaque: it is reached only through three entry points, each
// of which returns immediately and reports back through a callback that may
// run on any goroutine.
//
//	open-database      cb(handle, err)                 exactly once
//	execute-statement  cb(err)                         exactly once
//	run-query          cb(row, nil) per row, then      cb(nil, nil) at the end
//	                   or cb(nil, err) at any point
//
// Parameters and rows travel in the engine representation produced by
// value.Encode.
package engine

import (
	"context"

	"github.com/tomyedwab/sqlbridge/handles"
)

// Handle identifies an open database inside the engine.
type Handle = handles.Handle

type (
	OpenCallback func(h Handle, err error)
	ExecCallback func(err error)
	// RowCallback receives one encoded row document per call. A nil row with
	// a nil error marks the end of the results.
	RowCallback func(row any, err error)
)

// Engine is the engine's callback entry points.
type Engine interface {
	OpenDatabase(ctx context.Context, cb OpenCallback)
	Execute(ctx context.Context, h Handle, statement string, params []any, cb ExecCallback)
	Query(ctx context.Context, h Handle, statement string, params []any, cb RowCallback)
}

// Closer is implemented by engines that own resources, such as a sandbox.
type Closer interface {
	Close(ctx context.Context) error
}
