// Package bufutil holds the small unsafe-pointer and timestamp helpers
// every capture backend needs to turn a raw byte slice or native buffer
// into plane pointers for an Envelope, mirroring the teacher's
// types.Frame{Ptr, Width, Height, Stride} convention.
package bufutil

import (
	"time"
	"unsafe"
)

// PointerOf returns the address of data's backing array, or nil for an
// empty slice. The caller must keep data alive at least as long as any
// Envelope built from the returned pointer is in flight.
func PointerOf(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Pointer(&data[0])
}

// OffsetPointer advances base by offsetBytes, the way a multi-plane layout
// addresses plane N from a single contiguous allocation.
func OffsetPointer(base unsafe.Pointer, offsetBytes int) unsafe.Pointer {
	if base == nil {
		return nil
	}
	return unsafe.Pointer(uintptr(base) + uintptr(offsetBytes))
}

// NowMicros stamps an Envelope's TimestampUs at delivery time. Backends
// that receive a native presentation timestamp from the platform (CMTime,
// IMFSample, XShm's XSync-settled frame) should prefer that instead.
func NowMicros() int64 {
	return time.Now().UnixMicro()
}
