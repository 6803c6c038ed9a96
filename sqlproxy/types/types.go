package types

// Storage protocol between the sandboxed engine and the host. Requests and
// responses are JSON.

const (
	// CommandOpen opens a store and returns its database id.
	CommandOpen      = "open"
	CommandExec      = "exec"
	CommandQuery     = "query"
	CommandCloseConn = "close_conn"

	// CommandCloseDB releases the store behind a database id.
	CommandCloseDB = "close_db"
)

// SQLRequest defines the structure for requests sent to the host. Every
// command but open names the database it applies to.
type SQLRequest struct {
	Command  string `json:"command"`
	Database uint32 `json:"database,omitempty"`
	SQL      string `json:"sql,omitempty"`
	Args     []any  `json:"args,omitempty"`
}

// GeneralResponse is used for commands that return neither rows nor exec
// results, and for errors.
type GeneralResponse struct {
	Error string `json:"error,omitempty"`
}

// OpenResponse defines the structure for responses from 'open' commands.
type OpenResponse struct {
	Database uint32 `json:"database"`
	Error    string `json:"error,omitempty"`
}

// QueryResponse defines the structure for responses from 'query' commands.
// Column order is the order of Columns.
type QueryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Error   string   `json:"error,omitempty"`
}

// ExecResponse defines the structure for responses from 'exec' commands.
type ExecResponse struct {
	LastInsertID int64  `json:"last_insert_id"`
	RowsAffected int64  `json:"rows_affected"`
	Error        string `json:"error,omitempty"`
}
