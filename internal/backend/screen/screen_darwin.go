//go:build darwin

package screen

import "github.com/miniav/miniav/internal/core"

func init() {
	core.RegisterBackend(core.Screen, core.BackendDescriptor{
		Name:  "screencapturekit",
		Probe: probeSCK,
	})
}

// probeSCK reports NotSupported until the ScreenCaptureKit bridge lands.
// The teacher's internal/capture/sck_darwin.go shows the cgo header shape
// (SCKCaptureHandle + sck_capture_start_display/_window/_grab/_stop) but its
// Objective-C implementation lives outside this pack's retrieved sources, so
// there is nothing to link against yet; porting the header alone would just
// be an unresolved symbol at link time.
func probeSCK() (core.Backend, error) {
	return nil, core.NewError("probe", core.NotSupported)
}
