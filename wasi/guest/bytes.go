//go:build wasip1

package guest

import (
	"unsafe"
)

var byteHandles = make(map[uint32][]byte)
var nextByteHandle uint32 = 1

// allocBytes hands the host a buffer to write into. The result packs the
// buffer's handle in the high 32 bits and its address in the low 32 bits.
//
//go:wasmexport alloc_bytes
func allocBytes(size uint32) uint64 {
	bytes := make([]byte, max(size, 1))
	handle := nextByteHandle
	byteHandles[handle] = bytes
	nextByteHandle++
	return uint64(handle)<<32 | uint64(uintptr(unsafe.Pointer(&bytes[0])))
}

//go:wasmexport free_bytes
func freeBytes(handle uint32) {
	delete(byteHandles, handle)
}

func takeBytes(handle uint32, size uint32) []byte {
	buf := byteHandles[handle]
	delete(byteHandles, handle)
	if int(size) > len(buf) {
		size = uint32(len(buf))
	}
	return buf[:size]
}

func GetBytesFromPtr(ptr uint32, size uint32) []byte {
	if size == 0 {
		return nil
	}
	slice := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), size)
	result := make([]byte, size)
	copy(result, slice)
	return result
}
