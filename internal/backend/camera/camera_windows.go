//go:build windows

package camera

import (
	"github.com/go-ole/go-ole"

	"github.com/miniav/miniav/internal/core"
)

func init() {
	core.RegisterBackend(core.Camera, core.BackendDescriptor{
		Name:  "mf-source-reader",
		Probe: probeMediaFoundation,
	})
}

// probeMediaFoundation reports NotSupported until the IMFSourceReader
// bridge (Media Foundation, the teacher-pack's svanichkin-gocam style COM
// capture session) is implemented. go-ole is kept wired here because COM
// apartment initialization (CoInitializeEx) must run once per capture
// thread before any Media Foundation call, exactly as the teacher's
// internal/platform Windows paths require for clipboard/input COM use.
func probeMediaFoundation() (core.Backend, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return nil, core.Wrap("probe", core.SystemCallFailed, err)
	}
	return nil, core.NewError("probe", core.NotSupported)
}
