//go:build wasip1

package guest

import (
	"database/sql"
	"fmt"

	sqlproxy "github.com/tomyedwab/sqlbridge/sqlproxy/driver"
)

//go:wasmimport env storage_request
func storage_request(requestPayload string, destPtr *uint32) int32

// CallStorage sends one storage request to the host.
func CallStorage(payload []byte) ([]byte, error) {
	var handle uint32
	size := storage_request(string(payload), &handle)
	if size < 0 {
		ret := takeBytes(handle, uint32(-size))
		return nil, fmt.Errorf("storage_request returned error: %s", string(ret))
	}
	return takeBytes(handle, uint32(size)), nil
}

// OpenStorage opens a database backed by its own host store.
func OpenStorage() (*sql.DB, error) {
	db := sql.OpenDB(sqlproxy.NewConnector(CallStorage))
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
