//go:build darwin

package camera

import (
	"github.com/miniav/miniav/internal/core"
)

func init() {
	core.RegisterBackend(core.Camera, core.BackendDescriptor{
		Name:  "avfoundation",
		Probe: probeAVFoundation,
	})
}

// probeAVFoundation reports NotSupported until the AVFoundation cgo bridge
// (AVCaptureSession/AVCaptureVideoDataOutput, per the teacher's
// internal/capture/sck_darwin.go use of the Cocoa bridging pattern for
// screen capture) lands for cameras specifically. Registering the
// descriptor now keeps the registry shape identical across platforms so
// callers never special-case a missing entry.
func probeAVFoundation() (core.Backend, error) {
	return nil, core.NewError("probe", core.NotSupported)
}
