package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/tomyedwab/sqlbridge/wasi/types"
)

// ReadBytes copies byteCount bytes at offset out of the module's memory.
func ReadBytes(m api.Module, offset, byteCount uint32) ([]byte, error) {
	if byteCount == 0 {
		return nil, nil
	}
	buf, ok := m.Memory().Read(offset, byteCount)
	if !ok {
		return nil, fmt.Errorf("Memory.Read(%d, %d) out of range", offset, byteCount)
	}
	return append([]byte(nil), buf...), nil
}

// Alloc copies data into a buffer allocated by the module's alloc_bytes
// export. The buffer stays alive until Free is called with its handle.
func Alloc(ctx context.Context, m api.Module, data []byte) (handle, ptr uint32, err error) {
	alloc := m.ExportedFunction(types.ExportAllocBytes)
	if alloc == nil {
		return 0, 0, fmt.Errorf("module does not export %s", types.ExportAllocBytes)
	}
	result, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", types.ExportAllocBytes, err)
	}
	handle = uint32(result[0] >> 32)
	ptr = uint32(result[0])
	if len(data) > 0 && !m.Memory().Write(ptr, data) {
		Free(ctx, m, handle)
		return 0, 0, fmt.Errorf("Memory.Write(%d, %d) out of range", ptr, len(data))
	}
	return handle, ptr, nil
}

// Free releases a buffer obtained from Alloc.
func Free(ctx context.Context, m api.Module, handle uint32) {
	if free := m.ExportedFunction(types.ExportFreeBytes); free != nil {
		free.Call(context.WithoutCancel(ctx), uint64(handle))
	}
}

// WriteBytes copies data into module memory for the duration of one call.
// freeFn returns the memory to the module.
func WriteBytes(ctx context.Context, m api.Module, data []byte) (ptr uint32, freeFn func(), err error) {
	if len(data) == 0 {
		return 0, func() {}, nil
	}
	handle, ptr, err := Alloc(ctx, m, data)
	if err != nil {
		return 0, nil, err
	}
	return ptr, func() { Free(ctx, m, handle) }, nil
}

// ReadString reads a UTF-8 string passed as a pointer/length pair.
func ReadString(m api.Module, offset, byteCount uint32) (string, error) {
	b, err := ReadBytes(m, offset, byteCount)
	return string(b), err
}
