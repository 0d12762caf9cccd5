//go:build linux

package microphone

import (
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"github.com/miniav/miniav/internal/bufutil"
	"github.com/miniav/miniav/internal/core"
)

func init() {
	core.RegisterBackend(core.Microphone, core.BackendDescriptor{
		Name:  "pulseaudio",
		Probe: probePulse,
	})
}

// probePulse succeeds whenever a PulseAudio/PipeWire-pulse socket accepts a
// client connection, mirroring the teacher's internal/audio/pulse_linux.go
// which connects unconditionally and treats dial failure as fatal.
func probePulse() (core.Backend, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("miniav"))
	if err != nil {
		return nil, core.Wrap("probe", core.DeviceNotFound, err)
	}
	return &pulseBackend{client: client}, nil
}

type pulseBackend struct {
	mu     sync.Mutex
	client *pulse.Client
	stream *pulse.RecordStream
}

type pulseState struct {
	format   core.AudioFormat
	deviceID string
	producer *core.Producer
}

func (b *pulseBackend) Name() string { return "pulseaudio" }

func (b *pulseBackend) Init(ctx *core.Context) error {
	ctx.SetState(&pulseState{})
	return nil
}

func (b *pulseBackend) Destroy(ctx *core.Context) {
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

func (b *pulseBackend) Enumerate() ([]core.DeviceDescriptor, error) {
	sources, err := b.client.ListSources()
	if err != nil {
		return nil, core.Wrap("enumerate", core.SystemCallFailed, err)
	}
	out := make([]core.DeviceDescriptor, 0, len(sources))
	for _, s := range sources {
		out = append(out, core.DeviceDescriptor{ID: s.Name(), Name: s.Name()})
	}
	return out, nil
}

func (b *pulseBackend) GetSupportedFormats(deviceID string) ([]core.Format, error) {
	return []core.Format{defaultFormat()}, nil
}

func (b *pulseBackend) GetDefaultFormat(deviceID string) (core.Format, error) {
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

func (b *pulseBackend) Configure(ctx *core.Context, req core.ConfigureRequest) error {
	if req.Format.Audio == nil {
		return core.NewError("configure", core.InvalidArgument)
	}
	st := ctx.State().(*pulseState)
	deviceID := ""
	if req.Target != nil && req.Target.Kind == core.TargetDeviceID {
		deviceID = req.Target.DeviceID
	}
	st.deviceID = deviceID
	st.format = *req.Format.Audio
	if st.format.FramesPerCallback == 0 {
		st.format.FramesPerCallback = 960
	}
	return nil
}

func (b *pulseBackend) GetConfiguredFormat(ctx *core.Context) (core.Format, error) {
	st := ctx.State().(*pulseState)
	return core.Format{Audio: &st.format}, nil
}

// pcmCollector buffers raw S16LE PCM pulled off the record stream until a
// full callback-sized frame is available, the same accumulate-then-drain
// shape as the teacher's pcmCollector in internal/audio/pulse_linux.go.
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

func (b *pulseBackend) StartCapture(ctx *core.Context) error {
	st := ctx.State().(*pulseState)
	collector := &pcmCollector{}

	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(uint32(st.format.SampleRate)),
	}
	if st.format.Channels >= 2 {
		opts = append(opts, pulse.RecordStereo)
	} else {
		opts = append(opts, pulse.RecordMono)
	}
	if st.deviceID != "" {
		source, err := b.client.SourceByName(st.deviceID)
		if err == nil {
			opts = append(opts, pulse.RecordSource(source))
		}
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

func runRecordLoop(ctx *core.Context, st *pulseState, collector *pcmCollector) {
	samplesPerFrame := st.format.FramesPerCallback * st.format.Channels
	frameDuration := time.Duration(st.format.FramesPerCallback) * time.Second / time.Duration(max1(st.format.SampleRate))

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

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func buildAudioEnvelope(format core.AudioFormat, pcm []int16) (*core.Envelope, *core.ReleasePayload) {
	raw := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		raw[i*2] = byte(s)
		raw[i*2+1] = byte(s >> 8)
	}
	env := &core.Envelope{
		Type:        core.EnvelopeAudio,
		ContentType: core.ContentCPU,
		TimestampUs: bufutil.NowMicros(),
		Audio: &core.AudioPayload{
			Format:    format,
			NumFrames: len(pcm) / max1(format.Channels),
			Data:      bufutil.PointerOf(raw),
		},
		DataSizeBytes: len(raw),
	}
	payload := &core.ReleasePayload{Resources: []core.NativeResource{{Kind: core.ReleaseCPUCopy, CPUCopy: raw}}}
	return env, payload
}

func (b *pulseBackend) StopCapture(ctx *core.Context) error {
	st := ctx.State().(*pulseState)
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

func (b *pulseBackend) ReleaseBuffer(ctx *core.Context, payload *core.ReleasePayload) error {
	return core.ReleaseNativeResources(payload)
}
