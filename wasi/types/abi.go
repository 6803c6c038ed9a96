// Package types holds the ABI shared by the host and the engine module.
package types

// Functions the engine module exports.
const (
	ExportAllocBytes = "alloc_bytes"
	ExportFreeBytes  = "free_bytes"
	ExportOpenDB     = "open_db"
	ExportExec       = "db_exec"
	ExportQuery      = "db_query"
	// StartFunction is run when the module is instantiated.
	StartFunction = "_initialize"
)

// Functions the host provides to the engine module under HostModule.
const (
	HostModule = "env"
	// ImportDeliver passes a callback result back to the host:
	// deliver(callbackID, errPtr, errLen, docPtr, docLen).
	ImportDeliver = "deliver"
	// ImportStorageRequest proxies a storage request to the host:
	// storage_request(reqPtr, reqLen, destPtr) returns the response length,
	// negated when the response is an error message.
	ImportStorageRequest = "storage_request"
)

// StatementRequest is the JSON payload of db_exec and db_query.
type StatementRequest struct {
	Handle    uint32 `json:"handle"`
	Statement string `json:"statement"`
	Params    []any  `json:"params"`
}
