//go:build darwin

package loopback

import "github.com/miniav/miniav/internal/core"

func init() {
	core.RegisterBackend(core.Loopback, core.BackendDescriptor{
		Name:  "screencapturekit-audio",
		Probe: probeSCKAudio,
	})
}

// probeSCKAudio reports NotSupported until the ScreenCaptureKit
// SCStreamOutput audio tap (macOS 13+, per-app capable via SCContentFilter)
// lands, grounded on the teacher's internal/capture/sck_darwin.go Cocoa
// bridging approach for the video side of the same API.
func probeSCKAudio() (core.Backend, error) {
	return nil, core.NewError("probe", core.NotSupported)
}
