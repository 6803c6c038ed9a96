package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tomyedwab/sqlbridge/handles"
	"github.com/tomyedwab/sqlbridge/sqlproxy/types"
)

// Store opens the storage behind one guest database. closeFn releases it
// when the guest closes the database.
type Store func(ctx context.Context) (db *sqlx.DB, closeFn func() error, err error)

// MemoryStore gives every guest database a private in-memory SQLite
// database.
func MemoryStore(ctx context.Context) (*sqlx.DB, func() error, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", ":memory:")
	if err != nil {
		return nil, nil, err
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return db, db.Close, nil
}

// SharedStore backs every guest database with db, so they all see the same
// tables. The caller keeps ownership of db.
func SharedStore(db *sqlx.DB) Store {
	return func(context.Context) (*sqlx.DB, func() error, error) {
		return db, func() error { return nil }, nil
	}
}

type store struct {
	db      *sqlx.DB
	closeFn func() error
}

// SQLHost serves storage requests from the sandboxed engine. Each database
// the guest opens gets its own store, selected by the request's database id.
type SQLHost struct {
	open   Store
	stores *handles.Registry[*store]
	logger *zap.Logger
}

// NewSQLHost creates a new SQLHost that opens stores with open.
func NewSQLHost(open Store, logger *zap.Logger) *SQLHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLHost{
		open:   open,
		stores: handles.NewRegistry[*store](),
		logger: logger,
	}
}

// HandleRequest processes a raw SQL request payload and returns a raw
// response payload. Operational failures are reported inside the payload;
// the returned error is set only when no payload could be produced.
func (h *SQLHost) HandleRequest(ctx context.Context, requestPayload []byte) ([]byte, error) {
	requestID := uuid.NewString()
	logger := h.logger.With(zap.String("request_id", requestID))

	var req types.SQLRequest
	if err := json.Unmarshal(requestPayload, &req); err != nil {
		logger.Warn("malformed storage request", zap.Error(err))
		return marshalErrorResponse(fmt.Sprintf("failed to unmarshal request: %v", err))
	}
	logger.Debug("storage request",
		zap.String("command", req.Command),
		zap.Uint32("database", req.Database),
		zap.String("sql", req.SQL))

	var responseData any
	var opErr error

	switch req.Command {
	case types.CommandOpen:
		responseData, opErr = h.handleOpen(ctx)
	case types.CommandQuery:
		responseData, opErr = h.handleQuery(ctx, &req)
	case types.CommandExec:
		responseData, opErr = h.handleExec(ctx, &req)
	case types.CommandCloseConn:
		responseData = types.GeneralResponse{}
	case types.CommandCloseDB:
		responseData, opErr = types.GeneralResponse{}, h.closeStore(req.Database)
	default:
		opErr = fmt.Errorf("unknown command: %s", req.Command)
	}

	if opErr != nil {
		logger.Debug("storage request failed", zap.Error(opErr))
		return marshalErrorResponse(opErr.Error())
	}

	return json.Marshal(responseData)
}

// Databases returns the number of open stores.
func (h *SQLHost) Databases() int {
	return h.stores.Len()
}

// Close releases every store the guest left open.
func (h *SQLHost) Close() error {
	var err error
	h.stores.Range(func(id handles.Handle, _ *store) bool {
		err = multierr.Append(err, h.closeStore(uint32(id)))
		return true
	})
	return err
}

func (h *SQLHost) handleOpen(ctx context.Context) (types.OpenResponse, error) {
	db, closeFn, err := h.open(ctx)
	if err != nil {
		return types.OpenResponse{}, fmt.Errorf("open failed: %w", err)
	}
	id := h.stores.Register(&store{db: db, closeFn: closeFn})
	h.logger.Debug("opened store", zap.Uint32("database", uint32(id)))
	return types.OpenResponse{Database: uint32(id)}, nil
}

func (h *SQLHost) lookup(id uint32) (*sqlx.DB, error) {
	s, ok := h.stores.Get(handles.Handle(id))
	if !ok {
		return nil, fmt.Errorf("unknown database %d", id)
	}
	return s.db, nil
}

func (h *SQLHost) closeStore(id uint32) error {
	s, ok := h.stores.Release(handles.Handle(id))
	if !ok {
		return fmt.Errorf("unknown database %d", id)
	}
	return s.closeFn()
}

func marshalErrorResponse(errMsg string) ([]byte, error) {
	payload, err := json.Marshal(types.GeneralResponse{Error: errMsg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error response for '%s': %w", errMsg, err)
	}
	return payload, nil
}

func (h *SQLHost) handleExec(ctx context.Context, req *types.SQLRequest) (types.ExecResponse, error) {
	db, err := h.lookup(req.Database)
	if err != nil {
		return types.ExecResponse{}, err
	}
	res, err := db.ExecContext(ctx, req.SQL, DriverArgs(req.Args)...)
	if err != nil {
		return types.ExecResponse{}, fmt.Errorf("exec failed: %w", err)
	}

	// SQLite always reports both; other drivers may not.
	lastInsertID, _ := res.LastInsertId()
	rowsAffected, _ := res.RowsAffected()
	return types.ExecResponse{LastInsertID: lastInsertID, RowsAffected: rowsAffected}, nil
}

func (h *SQLHost) handleQuery(ctx context.Context, req *types.SQLRequest) (types.QueryResponse, error) {
	db, err := h.lookup(req.Database)
	if err != nil {
		return types.QueryResponse{}, err
	}
	rows, err := db.QueryxContext(ctx, req.SQL, DriverArgs(req.Args)...)
	if err != nil {
		return types.QueryResponse{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return types.QueryResponse{}, fmt.Errorf("failed to get columns: %w", err)
	}

	results := [][]any{}
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return types.QueryResponse{}, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, ProcessRowValues(raw))
	}
	if err := rows.Err(); err != nil {
		return types.QueryResponse{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return types.QueryResponse{Columns: columns, Rows: results}, nil
}
