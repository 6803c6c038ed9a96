//go:build wasip1

package guest

import (
	"encoding/json"
	"strconv"

	"github.com/tomyedwab/sqlbridge/value"
	"github.com/tomyedwab/sqlbridge/wasi/types"
)

var backend *Backend

// Init installs the backend that serves the engine exports.
func Init(b *Backend) {
	backend = b
}

//go:wasmimport env deliver
func deliver(callbackID uint32, errMsg string, doc string)

func deliverError(callbackID uint32, err error) {
	deliver(callbackID, err.Error(), "")
}

//go:wasmexport open_db
func openDB(callbackID uint32) {
	h, err := backend.Open()
	if err != nil {
		deliverError(callbackID, err)
		return
	}
	deliver(callbackID, "", strconv.FormatUint(uint64(h), 10))
}

//go:wasmexport db_exec
func dbExec(callbackID, reqPtr, reqLen uint32) {
	req, err := readRequest(reqPtr, reqLen)
	if err != nil {
		deliverError(callbackID, err)
		return
	}
	if err := backend.Exec(req); err != nil {
		deliverError(callbackID, err)
		return
	}
	deliver(callbackID, "", "")
}

// dbQuery delivers one JSON record per row, then an empty document to mark
// the end of the results.
//
//go:wasmexport db_query
func dbQuery(callbackID, reqPtr, reqLen uint32) {
	req, err := readRequest(reqPtr, reqLen)
	if err != nil {
		deliverError(callbackID, err)
		return
	}
	err = backend.Query(req, func(rec *value.Record) error {
		doc, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		deliver(callbackID, "", string(doc))
		return nil
	})
	if err != nil {
		deliverError(callbackID, err)
		return
	}
	deliver(callbackID, "", "")
}

func readRequest(ptr, size uint32) (types.StatementRequest, error) {
	var req types.StatementRequest
	err := json.Unmarshal(GetBytesFromPtr(ptr, size), &req)
	return req, err
}
