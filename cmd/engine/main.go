//go:build wasip1

// Command engine is the database engine module loaded by the host. Build it
// as a reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o genji.wasm ./cmd/engine
package main

import (
	"github.com/tomyedwab/sqlbridge/wasi/guest"
)

func init() {
	guest.Init(guest.NewBackend(guest.OpenStorage))
}

func main() {}
