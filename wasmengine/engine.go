// Package wasmengine runs the database engine as a sandboxed WebAssembly
// module under wazero. The module reaches storage only through the host's
// storage_request import, and reports results through the deliver import.
package wasmengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tomyedwab/sqlbridge/engine"
	"github.com/tomyedwab/sqlbridge/wasi/host"
	"github.com/tomyedwab/sqlbridge/wasi/types"
)

// Storage serves the module's storage requests. *sqlproxy/host.SQLHost
// satisfies it.
type Storage interface {
	HandleRequest(ctx context.Context, payload []byte) ([]byte, error)
}

type options struct {
	logger     *zap.Logger
	storage    Storage
	httpClient *http.Client
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStorage sets where the module's storage requests go. Without it every
// storage request fails.
func WithStorage(s Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithHTTPClient sets the client Load uses for http and https locations.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:     zap.NewNop(),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Engine is an engine.Engine backed by an instantiated module. The module
// runs one entry point at a time; callbacks are delivered in order on a
// separate goroutine per call, so they may issue further calls.
type Engine struct {
	runtime wazero.Runtime
	module  api.Module
	storage Storage
	logger  *zap.Logger

	// sem serializes entry point calls into the module.
	sem    *semaphore.Weighted
	calls  *callTable
	closed atomic.Bool
}

var (
	_ engine.Engine = (*Engine)(nil)
	_ engine.Closer = (*Engine)(nil)
)

// New instantiates the engine module from its compiled bytes.
func New(ctx context.Context, wasm []byte, opts ...Option) (*Engine, error) {
	return newEngine(ctx, wasm, newOptions(opts))
}

func newEngine(ctx context.Context, wasm []byte, o *options) (*Engine, error) {
	e := &Engine{
		storage: o.storage,
		logger:  o.logger,
		sem:     semaphore.NewWeighted(1),
		calls:   newCallTable(),
	}

	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	_, err := r.NewHostModuleBuilder(types.HostModule).
		NewFunctionBuilder().WithFunc(e.deliver).Export(types.ImportDeliver).
		NewFunctionBuilder().WithFunc(e.storageRequest).Export(types.ImportStorageRequest).
		Instantiate(ctx)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	mod, err := r.InstantiateWithConfig(
		ctx,
		wasm,
		wazero.NewModuleConfig().
			WithName("engine").
			WithStartFunctions(types.StartFunction),
	)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate engine module: %w", err)
	}

	for _, name := range []string{types.ExportAllocBytes, types.ExportFreeBytes, types.ExportOpenDB, types.ExportExec, types.ExportQuery} {
		if mod.ExportedFunction(name) == nil {
			r.Close(ctx)
			return nil, fmt.Errorf("engine module does not export %s", name)
		}
	}

	e.runtime = r
	e.module = mod
	e.logger.Debug("engine module instantiated")
	return e, nil
}

// OpenDatabase asks the module for a new database.
func (e *Engine) OpenDatabase(ctx context.Context, cb engine.OpenCallback) {
	go e.invoke(ctx, types.ExportOpenDB, nil, openCall(cb))
}

// Execute runs a statement that returns no rows.
func (e *Engine) Execute(ctx context.Context, h engine.Handle, statement string, params []any, cb engine.ExecCallback) {
	req := &types.StatementRequest{Handle: uint32(h), Statement: statement, Params: params}
	go e.invoke(ctx, types.ExportExec, req, execCall(cb))
}

// Query runs a statement and reports its rows.
func (e *Engine) Query(ctx context.Context, h engine.Handle, statement string, params []any, cb engine.RowCallback) {
	req := &types.StatementRequest{Handle: uint32(h), Statement: statement, Params: params}
	go e.invoke(ctx, types.ExportQuery, req, queryCall(cb))
}

// invoke runs one entry point. Any failure that the module did not report
// through deliver, including a trap or a missing final callback, is reported
// to the call instead.
func (e *Engine) invoke(ctx context.Context, export string, req *types.StatementRequest, c *call) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		c.fail(err)
		return
	}
	defer e.sem.Release(1)

	if e.closed.Load() {
		c.fail(engine.ErrClosed)
		return
	}

	id := e.calls.add(c)
	defer e.calls.remove(id)

	logger := e.logger.With(zap.String("export", export), zap.Uint32("callback_id", id))
	args := []uint64{uint64(id)}
	if req != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			c.fail(engine.Wrap(c.op, err))
			return
		}
		ptr, freeFn, err := host.WriteBytes(ctx, e.module, payload)
		if err != nil {
			c.fail(engine.Wrap(c.op, err))
			return
		}
		defer freeFn()
		args = append(args, uint64(ptr), uint64(len(payload)))
		logger.Debug("calling engine", zap.String("statement", req.Statement))
	}

	if _, err := e.module.ExportedFunction(export).Call(ctx, args...); err != nil {
		logger.Error("engine call failed", zap.Error(err))
		c.fail(engine.Wrap(c.op, err))
		return
	}
	if !c.terminated() {
		logger.Warn("engine returned without a final callback")
		c.fail(fmt.Errorf("%s: %w", c.op, engine.ErrIncomplete))
	}
}

// deliver is the host side of the deliver import.
func (e *Engine) deliver(ctx context.Context, m api.Module, callbackID, errPtr, errLen, docPtr, docLen uint32) {
	c, ok := e.calls.get(callbackID)
	if !ok {
		e.logger.Warn("delivery for unknown callback", zap.Uint32("callback_id", callbackID))
		return
	}
	errMsg, err := host.ReadString(m, errPtr, errLen)
	if err != nil {
		c.fail(engine.Wrap(c.op, err))
		return
	}
	doc, err := host.ReadString(m, docPtr, docLen)
	if err != nil {
		c.fail(engine.Wrap(c.op, err))
		return
	}
	c.deliver(errMsg, doc)
}

// storageRequest is the host side of the storage_request import. The
// response is copied into a module buffer whose handle is written at
// destPtr; the result is the response length, negated when the response is
// an error message.
func (e *Engine) storageRequest(ctx context.Context, m api.Module, reqPtr, reqLen, destPtr uint32) int32 {
	payload, err := host.ReadBytes(m, reqPtr, reqLen)
	if err != nil {
		return e.storageReply(ctx, m, destPtr, []byte(err.Error()), true)
	}
	if e.storage == nil {
		return e.storageReply(ctx, m, destPtr, []byte("no storage configured"), true)
	}
	resp, err := e.storage.HandleRequest(ctx, payload)
	if err != nil {
		e.logger.Warn("storage request failed", zap.Error(err))
		return e.storageReply(ctx, m, destPtr, []byte(err.Error()), true)
	}
	return e.storageReply(ctx, m, destPtr, resp, false)
}

func (e *Engine) storageReply(ctx context.Context, m api.Module, destPtr uint32, data []byte, isErr bool) int32 {
	handle, _, err := host.Alloc(ctx, m, data)
	if err != nil {
		// Nothing can be handed back; the module sees an empty error.
		e.logger.Error("failed to write storage response", zap.Error(err))
		return 0
	}
	if !m.Memory().WriteUint32Le(destPtr, handle) {
		host.Free(ctx, m, handle)
		e.logger.Error("storage response handle out of range", zap.Uint32("dest_ptr", destPtr))
		return 0
	}
	if isErr {
		return -int32(len(data))
	}
	return int32(len(data))
}

// Close waits for the running call, if any, and releases the runtime.
// Later calls fail with engine.ErrClosed.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	return e.runtime.Close(ctx)
}

// callTable maps callback ids handed to the module to pending calls.
type callTable struct {
	mu      sync.Mutex
	next    uint32
	pending map[uint32]*call
}

func newCallTable() *callTable {
	return &callTable{pending: make(map[uint32]*call)}
}

func (t *callTable) add(c *call) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.pending[t.next] = c
	return t.next
}

func (t *callTable) get(id uint32) (*call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.pending[id]
	return c, ok
}

func (t *callTable) remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}
