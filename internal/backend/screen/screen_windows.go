//go:build windows

package screen

import "github.com/miniav/miniav/internal/core"

func init() {
	core.RegisterBackend(core.Screen, core.BackendDescriptor{
		Name:  "wgc-dxgi",
		Probe: probeWGC,
	})
}

// probeWGC reports NotSupported until the Windows.Graphics.Capture /
// DXGI desktop-duplication bridge lands.
func probeWGC() (core.Backend, error) {
	return nil, core.NewError("probe", core.NotSupported)
}
