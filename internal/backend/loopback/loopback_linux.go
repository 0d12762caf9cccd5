//go:build linux

package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"

	"github.com/miniav/miniav/internal/bufutil"
	"github.com/miniav/miniav/internal/core"
	"github.com/miniav/miniav/internal/resolver"
)

func init() {
	core.RegisterBackend(core.Loopback, core.BackendDescriptor{
		Name:  "pulseaudio-monitor",
		Probe: probePulseMonitor,
	})
}

// probePulseMonitor mirrors the teacher's internal/audio/pulse_linux.go
// exactly: the monitor source of the default sink is system loopback audio
// on Linux, no separate loopback device class exists the way WASAPI or
// CoreAudio ScreenCaptureKit expose one.
func probePulseMonitor() (core.Backend, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("miniav"))
	if err != nil {
		return nil, core.Wrap("probe", core.DeviceNotFound, err)
	}
	return &monitorBackend{client: client}, nil
}

type monitorBackend struct {
	mu     sync.Mutex
	client *pulse.Client
	stream *pulse.RecordStream
}

type monitorState struct {
	format      core.AudioFormat
	target      *core.Target
	resolved    resolver.ResolvedTarget
	producer    *core.Producer
}

func (b *monitorBackend) Name() string { return "pulseaudio-monitor" }

func (b *monitorBackend) Init(ctx *core.Context) error {
	ctx.SetState(&monitorState{})
	return nil
}

func (b *monitorBackend) Destroy(ctx *core.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream != nil {
		b.stream.Stop()
		b.stream = nil
	}
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
}

func (b *monitorBackend) Enumerate() ([]core.DeviceDescriptor, error) {
	candidates, err := resolver.EnumerateProcessCandidates(context.Background())
	if err != nil {
		return nil, err
	}
	out := make([]core.DeviceDescriptor, 0, len(candidates)+1)
	out = append(out, core.DeviceDescriptor{ID: "", Name: "system default output (monitor)"})
	for _, c := range candidates {
		out = append(out, core.DeviceDescriptor{ID: "pid:" + itoa(int(c.PID)), Name: c.Name})
	}
	return out, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (b *monitorBackend) GetSupportedFormats(deviceID string) ([]core.Format, error) {
	return []core.Format{defaultFormat()}, nil
}

func (b *monitorBackend) GetDefaultFormat(deviceID string) (core.Format, error) {
	return defaultFormat(), nil
}

func defaultFormat() core.Format {
	return core.Format{Audio: &core.AudioFormat{
		SampleRate:        48000,
		Channels:          2,
		SampleFormat:      core.SampleFmtS16,
		FramesPerCallback: 960,
	}}
}

func (b *monitorBackend) Configure(ctx *core.Context, req core.ConfigureRequest) error {
	if req.Format.Audio == nil {
		return core.NewError("configure", core.InvalidArgument)
	}
	st := ctx.State().(*monitorState)
	st.format = *req.Format.Audio
	if st.format.FramesPerCallback == 0 {
		st.format.FramesPerCallback = 960
	}
	st.target = req.Target

	if req.Target != nil && req.Target.Kind == core.TargetProcessID {
		resolved, err := resolver.Resolve(context.Background(), *req.Target)
		if err != nil {
			return err
		}
		st.resolved = resolved
		ctx.Log().Info("per-process loopback target resolved; PulseAudio backend "+
			"still captures the monitor of the default sink system-wide "+
			"(per-application sink-input isolation is a WASAPI/CoreAudio-only "+
			"capability on this pack)", zap.String("target", resolved.String()))
	}
	return nil
}

func (b *monitorBackend) GetConfiguredFormat(ctx *core.Context) (core.Format, error) {
	st := ctx.State().(*monitorState)
	return core.Format{Audio: &st.format}, nil
}

type pcmCollector struct {
	mu  sync.Mutex
	buf []int16
}

func (p *pcmCollector) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(data) / 2
	for i := 0; i < n; i++ {
		sample := int16(data[i*2]) | int16(data[i*2+1])<<8
		p.buf = append(p.buf, sample)
	}
	return len(data), nil
}

func (p *pcmCollector) Format() byte { return proto.FormatInt16LE }

func (p *pcmCollector) drain(count int) []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) < count {
		return nil
	}
	out := make([]int16, count)
	copy(out, p.buf[:count])
	p.buf = p.buf[count:]
	return out
}

func (b *monitorBackend) StartCapture(ctx *core.Context) error {
	st := ctx.State().(*monitorState)
	collector := &pcmCollector{}

	sink, err := b.client.DefaultSink()
	if err != nil {
		return core.Wrap("start_capture", core.DeviceNotFound, err)
	}

	opts := []pulse.RecordOption{
		pulse.RecordMonitor(sink),
		pulse.RecordSampleRate(uint32(st.format.SampleRate)),
	}
	if st.format.Channels >= 2 {
		opts = append(opts, pulse.RecordStereo)
	} else {
		opts = append(opts, pulse.RecordMono)
	}
	opts = append(opts, pulse.RecordBufferFragmentSize(uint32(st.format.FramesPerCallback*st.format.Channels*2)))

	stream, err := b.client.NewRecord(collector, opts...)
	if err != nil {
		return core.Wrap("start_capture", core.SystemCallFailed, err)
	}

	b.mu.Lock()
	b.stream = stream
	b.mu.Unlock()
	stream.Start()

	st.producer = core.NewProducer()
	st.producer.Run(func() {
		runRecordLoop(ctx, st, collector)
	})
	return nil
}

func runRecordLoop(ctx *core.Context, st *monitorState, collector *pcmCollector) {
	samplesPerFrame := st.format.FramesPerCallback * st.format.Channels
	rate := st.format.SampleRate
	if rate <= 0 {
		rate = 48000
	}
	frameDuration := time.Duration(st.format.FramesPerCallback) * time.Second / time.Duration(rate)

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-st.producer.Stopping():
			return
		case <-ticker.C:
			pcm := collector.drain(samplesPerFrame)
			if pcm == nil {
				continue
			}
			cb, userData := ctx.Callback()
			if cb == nil {
				continue
			}
			env, payload := buildAudioEnvelope(st.format, pcm)
			ctx.AllocateEnvelope(env, payload)
			core.RecordDebugFrame(ctx, env, core.Format{Audio: &st.format})
			st.producer.Deliver(cb, env, userData)
		}
	}
}

func buildAudioEnvelope(format core.AudioFormat, pcm []int16) (*core.Envelope, *core.ReleasePayload) {
	raw := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		raw[i*2] = byte(s)
		raw[i*2+1] = byte(s >> 8)
	}
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}
	env := &core.Envelope{
		Type:        core.EnvelopeAudio,
		ContentType: core.ContentCPU,
		TimestampUs: bufutil.NowMicros(),
		Audio: &core.AudioPayload{
			Format:    format,
			NumFrames: len(pcm) / channels,
			Data:      bufutil.PointerOf(raw),
		},
		DataSizeBytes: len(raw),
	}
	payload := &core.ReleasePayload{Resources: []core.NativeResource{{Kind: core.ReleaseCPUCopy, CPUCopy: raw}}}
	return env, payload
}

func (b *monitorBackend) StopCapture(ctx *core.Context) error {
	st := ctx.State().(*monitorState)
	if st.producer != nil {
		st.producer.Stop()
		st.producer = nil
	}
	b.mu.Lock()
	stream := b.stream
	b.stream = nil
	b.mu.Unlock()
	if stream != nil {
		stream.Stop()
	}
	return nil
}

func (b *monitorBackend) ReleaseBuffer(ctx *core.Context, payload *core.ReleasePayload) error {
	return core.ReleaseNativeResources(payload)
}
