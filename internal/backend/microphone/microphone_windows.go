//go:build windows

package microphone

import "github.com/miniav/miniav/internal/core"

func init() {
	core.RegisterBackend(core.Microphone, core.BackendDescriptor{
		Name:  "wasapi",
		Probe: probeWASAPI,
	})
}

// probeWASAPI reports NotSupported until the IAudioClient capture bridge
// lands. It performs no COM initialization.
func probeWASAPI() (core.Backend, error) {
	return nil, core.NewError("probe", core.NotSupported)
}
