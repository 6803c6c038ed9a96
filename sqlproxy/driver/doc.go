// Package driver implements a database/sql/driver that proxies SQL from a Go
// program running inside the WebAssembly sandbox to storage managed by the
// host.
//
// Statements and arguments are serialized as JSON SQLRequest values and
// handed to a CallHost function, which the sandboxed program wires to the
// host's storage_request import:
//
//	db := sql.OpenDB(driver.NewConnector(callHost))
//
// Arguments are passed through untouched, so lists and records produced by
// the value codec reach the host, which binds them as JSON text. Every
// statement runs on its own on the host; Begin returns ErrTxUnsupported.
// Query results are fetched in a single response.
package driver
