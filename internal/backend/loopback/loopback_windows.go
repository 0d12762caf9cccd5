//go:build windows

package loopback

import "github.com/miniav/miniav/internal/core"

func init() {
	core.RegisterBackend(core.Loopback, core.BackendDescriptor{
		Name:  "wasapi-loopback",
		Probe: probeWASAPILoopback,
	})
}

// probeWASAPILoopback reports NotSupported until the IAudioClient
// AUDCLNT_STREAMFLAGS_LOOPBACK bridge (system-wide) and its
// IAudioClient3/process-loopback fallback (per §4.4/§9, Windows 10 2004+)
// land.
func probeWASAPILoopback() (core.Backend, error) {
	return nil, core.NewError("probe", core.NotSupported)
}
