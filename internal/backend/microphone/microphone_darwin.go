//go:build darwin

package microphone

import "github.com/miniav/miniav/internal/core"

func init() {
	core.RegisterBackend(core.Microphone, core.BackendDescriptor{
		Name:  "coreaudio",
		Probe: probeCoreAudio,
	})
}

// probeCoreAudio reports NotSupported until the AudioUnit/AUHAL input-device
// bridge lands, following the teacher's internal/audio/sck_darwin.go pattern
// of a separate build-tagged file per platform with an identical exported
// surface to its Linux counterpart.
func probeCoreAudio() (core.Backend, error) {
	return nil, core.NewError("probe", core.NotSupported)
}
