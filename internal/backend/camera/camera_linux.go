//go:build linux

package camera

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/miniav/miniav/internal/bufutil"
	"github.com/miniav/miniav/internal/core"
	"github.com/miniav/miniav/internal/plane"
)

func init() {
	core.RegisterBackend(core.Camera, core.BackendDescriptor{
		Name:  "v4l2",
		Probe: probeV4L2,
	})
}

// probeV4L2 succeeds whenever at least one /dev/video* node exists; it does
// no further negotiation (that's Init's job once a Context has committed to
// this backend).
func probeV4L2() (core.Backend, error) {
	devices, err := listVideoDevices()
	if err != nil || len(devices) == 0 {
		return nil, core.NewError("probe", core.DeviceNotFound)
	}
	return &v4l2Backend{}, nil
}

func listVideoDevices() ([]string, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "video") {
			out = append(out, filepath.Join("/dev", e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// v4l2Backend is the Camera domain's Linux Backend. One Context owns one
// open device at a time; Configure picks the device, Start spins the
// producer goroutine.
type v4l2Backend struct {
	mu  sync.Mutex
	dev *v4l2Device
}

type v4l2State struct {
	deviceID string
	format   core.VideoFormat
	producer *core.Producer
}

func (b *v4l2Backend) Name() string { return "v4l2" }

func (b *v4l2Backend) Init(ctx *core.Context) error {
	ctx.SetState(&v4l2State{})
	return nil
}

func (b *v4l2Backend) Destroy(ctx *core.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev != nil {
		_ = b.dev.close()
		b.dev = nil
	}
}

func (b *v4l2Backend) Enumerate() ([]core.DeviceDescriptor, error) {
	paths, err := listVideoDevices()
	if err != nil {
		return nil, core.Wrap("enumerate", core.SystemCallFailed, err)
	}
	out := make([]core.DeviceDescriptor, 0, len(paths))
	for _, p := range paths {
		dev, err := openV4L2Device(p)
		if err != nil {
			continue
		}
		cap, err := dev.queryCapability()
		name := p
		if err == nil {
			name = nullTerminatedString(cap.Card[:])
		}
		_ = dev.close()
		out = append(out, core.DeviceDescriptor{ID: p, Name: name})
	}
	return out, nil
}

func nullTerminatedString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func (b *v4l2Backend) GetSupportedFormats(deviceID string) ([]core.Format, error) {
	// A conservative, always-true-on-commodity-webcams default set; V4L2's
	// VIDIOC_ENUM_FMT/FRAMESIZES negotiation is out of scope for this pass.
	mk := func(w, h int, pf core.PixelFormat) core.Format {
		return core.Format{Video: &core.VideoFormat{Width: w, Height: h, PixelFormat: pf, FPSNum: 30, FPSDen: 1, Output: core.OutputCPU}}
	}
	return []core.Format{
		mk(1920, 1080, core.PixFmtYUY2),
		mk(1280, 720, core.PixFmtYUY2),
		mk(640, 480, core.PixFmtYUY2),
	}, nil
}

func (b *v4l2Backend) GetDefaultFormat(deviceID string) (core.Format, error) {
	return core.Format{Video: &core.VideoFormat{Width: 1280, Height: 720, PixelFormat: core.PixFmtYUY2, FPSNum: 30, FPSDen: 1, Output: core.OutputCPU}}, nil
}

func (b *v4l2Backend) Configure(ctx *core.Context, req core.ConfigureRequest) error {
	if req.Format.Video == nil {
		return core.NewError("configure", core.InvalidArgument)
	}
	st := ctx.State().(*v4l2State)

	deviceID := ""
	if req.Target != nil && req.Target.Kind == core.TargetDeviceID {
		deviceID = req.Target.DeviceID
	}
	if deviceID == "" {
		paths, err := listVideoDevices()
		if err != nil || len(paths) == 0 {
			return core.NewError("configure", core.DeviceNotFound)
		}
		deviceID = paths[0]
	}

	dev, err := openV4L2Device(deviceID)
	if err != nil {
		return core.Wrap("configure", core.DeviceNotFound, err)
	}

	pixFmt := v4l2PixFmtYUYV
	if req.Format.Video.PixelFormat == core.PixFmtNV12 {
		pixFmt = v4l2PixFmtNV12
	}

	negotiated, err := dev.setFormat(req.Format.Video.Width, req.Format.Video.Height, pixFmt)
	if err != nil {
		_ = dev.close()
		return core.Wrap("configure", core.FormatNotSupported, err)
	}

	b.mu.Lock()
	if b.dev != nil {
		_ = b.dev.close()
	}
	b.dev = dev
	b.mu.Unlock()

	st.deviceID = deviceID
	st.format = core.VideoFormat{
		Width:       int(negotiated.Width),
		Height:      int(negotiated.Height),
		PixelFormat: pixelFormatFromV4L2(negotiated.PixelFormat),
		FPSNum:      req.Format.Video.FPSNum,
		FPSDen:      req.Format.Video.FPSDen,
		Output:      core.OutputCPU,
	}
	return nil
}

func pixelFormatFromV4L2(f uint32) core.PixelFormat {
	switch f {
	case v4l2PixFmtNV12:
		return core.PixFmtNV12
	default:
		return core.PixFmtYUY2
	}
}

func (b *v4l2Backend) GetConfiguredFormat(ctx *core.Context) (core.Format, error) {
	st := ctx.State().(*v4l2State)
	return core.Format{Video: &st.format}, nil
}

func (b *v4l2Backend) StartCapture(ctx *core.Context) error {
	st := ctx.State().(*v4l2State)
	b.mu.Lock()
	dev := b.dev
	b.mu.Unlock()
	if dev == nil {
		return core.NewError("start_capture", core.NotInitialized)
	}
	if err := dev.start(); err != nil {
		return core.Wrap("start_capture", core.SystemCallFailed, err)
	}

	st.producer = core.NewProducer()
	st.producer.Run(func() {
		runProducerLoop(ctx, dev, st)
	})
	return nil
}

func runProducerLoop(ctx *core.Context, dev *v4l2Device, st *v4l2State) {
	log := ctx.Log()
	descs, err := plane.Layout(st.format.PixelFormat, st.format.Width, st.format.Height)
	if err != nil {
		log.Error("plane layout failed, stopping producer", zap.Error(err))
		return
	}

	const maxConsecutiveFailures = 50 // ~250ms of unbroken read failures
	failures := 0

	for {
		select {
		case <-st.producer.Stopping():
			return
		default:
		}

		data, err := dev.readFrame()
		if err != nil {
			log.Warn("v4l2 read_frame failed", zap.Error(err))
			failures++
			if failures >= maxConsecutiveFailures {
				ctx.NotifyDeviceLost(err)
				return
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		failures = 0

		cb, userData := ctx.Callback()
		if cb == nil {
			continue
		}

		env := buildVideoEnvelope(st.format, descs, data)
		payload := &core.ReleasePayload{Resources: []core.NativeResource{{Kind: core.ReleaseCPUCopy, CPUCopy: data}}}
		ctx.AllocateEnvelope(env, payload)
		core.RecordDebugFrame(ctx, env, core.Format{Video: &st.format})
		st.producer.Deliver(cb, env, userData)
	}
}

func buildVideoEnvelope(format core.VideoFormat, descs []plane.Descriptor, data []byte) *core.Envelope {
	planes := make([]core.Plane, len(descs))
	base := bufutil.PointerOf(data)
	for i, d := range descs {
		planes[i] = core.Plane{
			DataPtr:     bufutil.OffsetPointer(base, d.OffsetBytes),
			Width:       d.Width,
			Height:      d.Height,
			StrideBytes: d.StrideBytes,
			OffsetBytes: d.OffsetBytes,
		}
	}
	return &core.Envelope{
		Type:          core.EnvelopeVideo,
		ContentType:   core.ContentCPU,
		TimestampUs:   bufutil.NowMicros(),
		Video:         &core.VideoPayload{Format: format, Planes: planes},
		DataSizeBytes: len(data),
	}
}

func (b *v4l2Backend) StopCapture(ctx *core.Context) error {
	st := ctx.State().(*v4l2State)
	if st.producer != nil {
		st.producer.Stop()
		st.producer = nil
	}
	b.mu.Lock()
	dev := b.dev
	b.mu.Unlock()
	if dev == nil {
		return nil
	}
	if err := dev.stop(); err != nil {
		return core.Wrap("stop_capture", core.SystemCallFailed, err)
	}
	return nil
}

func (b *v4l2Backend) ReleaseBuffer(ctx *core.Context, payload *core.ReleasePayload) error {
	return core.ReleaseNativeResources(payload)
}
