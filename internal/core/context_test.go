package core

import (
	"sync/atomic"
	"testing"
)

const testDomain Domain = 1000

type fakeBackend struct {
	startErr  error
	stopErr   error
	configErr error
	started   int32
}

func (b *fakeBackend) Name() string                                 { return "fake" }
func (b *fakeBackend) Init(ctx *Context) error                       { return nil }
func (b *fakeBackend) Destroy(ctx *Context)                          {}
func (b *fakeBackend) Enumerate() ([]DeviceDescriptor, error)        { return nil, nil }
func (b *fakeBackend) GetSupportedFormats(string) ([]Format, error)  { return nil, nil }
func (b *fakeBackend) GetDefaultFormat(string) (Format, error)       { return Format{}, nil }
func (b *fakeBackend) Configure(ctx *Context, req ConfigureRequest) error {
	return b.configErr
}
func (b *fakeBackend) StartCapture(ctx *Context) error {
	if b.startErr != nil {
		return b.startErr
	}
	atomic.StoreInt32(&b.started, 1)
	return nil
}
func (b *fakeBackend) StopCapture(ctx *Context) error {
	atomic.StoreInt32(&b.started, 0)
	return b.stopErr
}
func (b *fakeBackend) ReleaseBuffer(ctx *Context, p *ReleasePayload) error {
	return ReleaseNativeResources(p)
}
func (b *fakeBackend) GetConfiguredFormat(ctx *Context) (Format, error) { return Format{}, nil }

func registerFake(t *testing.T, b *fakeBackend) {
	t.Helper()
	globalRegistry.mu.Lock()
	globalRegistry.byDom[testDomain] = []BackendDescriptor{{
		Name:  "fake",
		Probe: func() (Backend, error) { return b, nil },
	}}
	globalRegistry.mu.Unlock()
}

func mustNewContext(t *testing.T) (*Context, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{}
	registerFake(t, b)
	ctx, err := NewContext(testDomain)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx, b
}

func TestStateMachineHappyPath(t *testing.T) {
	ctx, _ := mustNewContext(t)
	if ctx.Phase() != Created {
		t.Fatalf("phase = %v, want Created", ctx.Phase())
	}
	if err := ctx.Configure(ConfigureRequest{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if ctx.Phase() != Configured {
		t.Fatalf("phase = %v, want Configured", ctx.Phase())
	}
	if err := ctx.Start(func(*Envelope, interface{}) {}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ctx.Phase() != Running {
		t.Fatalf("phase = %v, want Running", ctx.Phase())
	}
	if err := ctx.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ctx.Phase() != Stopped {
		t.Fatalf("phase = %v, want Stopped", ctx.Phase())
	}
	ctx.Destroy()
	if ctx.Phase() != Destroyed {
		t.Fatalf("phase = %v, want Destroyed", ctx.Phase())
	}
}

func TestStartOnCreatedIsNotInitialized(t *testing.T) {
	ctx, _ := mustNewContext(t)
	err := ctx.Start(func(*Envelope, interface{}) {}, nil)
	if CodeOf(err) != NotInitialized {
		t.Fatalf("code = %v, want NotInitialized", CodeOf(err))
	}
}

func TestConfigureOnRunningIsAlreadyRunning(t *testing.T) {
	ctx, _ := mustNewContext(t)
	_ = ctx.Configure(ConfigureRequest{})
	_ = ctx.Start(func(*Envelope, interface{}) {}, nil)
	err := ctx.Configure(ConfigureRequest{})
	if CodeOf(err) != AlreadyRunning {
		t.Fatalf("code = %v, want AlreadyRunning", CodeOf(err))
	}
	if ctx.Phase() != Running {
		t.Fatalf("phase = %v, want Running (unchanged)", ctx.Phase())
	}
}

func TestStopIsIdempotentOnCreatedAndStopped(t *testing.T) {
	ctx, _ := mustNewContext(t)
	if err := ctx.Stop(); err != nil {
		t.Fatalf("Stop on Created: %v", err)
	}
	_ = ctx.Configure(ConfigureRequest{})
	_ = ctx.Start(func(*Envelope, interface{}) {}, nil)
	_ = ctx.Stop()
	if err := ctx.Stop(); err != nil {
		t.Fatalf("Stop on already-Stopped: %v", err)
	}
}

func TestStartFailureClearsCallbackAndKeepsConfigured(t *testing.T) {
	ctx, b := mustNewContext(t)
	_ = ctx.Configure(ConfigureRequest{})
	b.startErr = NewError("start_capture", SystemCallFailed)
	err := ctx.Start(func(*Envelope, interface{}) {}, nil)
	if err == nil {
		t.Fatal("expected Start to fail")
	}
	if ctx.Phase() != Configured {
		t.Fatalf("phase = %v, want Configured", ctx.Phase())
	}
	cb, _ := ctx.Callback()
	if cb != nil {
		t.Fatal("callback should be cleared after failed start")
	}
}

func TestStopStateChangeAuthoritativeEvenOnBackendError(t *testing.T) {
	ctx, b := mustNewContext(t)
	_ = ctx.Configure(ConfigureRequest{})
	_ = ctx.Start(func(*Envelope, interface{}) {}, nil)
	b.stopErr = NewError("stop_capture", SystemCallFailed)
	err := ctx.Stop()
	if err == nil {
		t.Fatal("expected Stop to surface the backend error")
	}
	if ctx.Phase() != Stopped {
		t.Fatalf("phase = %v, want Stopped despite backend error", ctx.Phase())
	}
}

func TestDestroyAutoStopsWhenRunning(t *testing.T) {
	ctx, b := mustNewContext(t)
	_ = ctx.Configure(ConfigureRequest{})
	_ = ctx.Start(func(*Envelope, interface{}) {}, nil)
	ctx.Destroy()
	if atomic.LoadInt32(&b.started) != 0 {
		t.Fatal("backend should have been stopped before destroy")
	}
	if ctx.Phase() != Destroyed {
		t.Fatalf("phase = %v, want Destroyed", ctx.Phase())
	}
}

func TestEnvelopeAccountingNetZeroAfterRelease(t *testing.T) {
	ctx, _ := mustNewContext(t)
	_ = ctx.Configure(ConfigureRequest{})

	const n = 5
	envs := make([]*Envelope, n)
	for i := 0; i < n; i++ {
		env := &Envelope{Type: EnvelopeVideo}
		payload := &ReleasePayload{Resources: []NativeResource{{Kind: ReleaseCPUCopy, CPUCopy: make([]byte, 16)}}}
		ctx.AllocateEnvelope(env, payload)
		envs[i] = env
	}
	if got := ctx.OutstandingEnvelopes(); got != n {
		t.Fatalf("outstanding = %d, want %d", got, n)
	}
	for _, env := range envs {
		if err := ReleaseBuffer(ctx, env); err != nil {
			t.Fatalf("ReleaseBuffer: %v", err)
		}
	}
	if got := ctx.OutstandingEnvelopes(); got != 0 {
		t.Fatalf("outstanding after release = %d, want 0", got)
	}
}

func TestReleaseBufferOnStaleEnvelopeAfterDestroyIsNoOp(t *testing.T) {
	ctx, _ := mustNewContext(t)
	_ = ctx.Configure(ConfigureRequest{})
	env := &Envelope{Type: EnvelopeVideo}
	payload := &ReleasePayload{}
	ctx.AllocateEnvelope(env, payload)
	ctx.Destroy()
	if err := ReleaseBuffer(ctx, env); err != nil {
		t.Fatalf("release on stale envelope should be a no-op, got: %v", err)
	}
}

func TestNotifyDeviceLostForcesStoppedAndClearsCallback(t *testing.T) {
	ctx, _ := mustNewContext(t)
	_ = ctx.Configure(ConfigureRequest{})
	_ = ctx.Start(func(*Envelope, interface{}) {}, nil)

	ctx.NotifyDeviceLost(NewError("read_frame", DeviceLost))

	if ctx.Phase() != Stopped {
		t.Fatalf("phase = %v, want Stopped", ctx.Phase())
	}
	cb, _ := ctx.Callback()
	if cb != nil {
		t.Fatal("callback should be cleared after device loss")
	}
}

func TestNotifyDeviceLostIsNoOpUnlessRunning(t *testing.T) {
	ctx, _ := mustNewContext(t)
	ctx.NotifyDeviceLost(NewError("read_frame", DeviceLost))
	if ctx.Phase() != Created {
		t.Fatalf("phase = %v, want Created (unaffected)", ctx.Phase())
	}
}

func TestDebugPeekReportsLastRecordedFrame(t *testing.T) {
	ctx, _ := mustNewContext(t)
	_ = ctx.Configure(ConfigureRequest{})

	env := &Envelope{TimestampUs: 42, DataSizeBytes: 128}
	format := Format{Video: &VideoFormat{Width: 640, Height: 480}}
	RecordDebugFrame(ctx, env, format)

	info := ctx.DebugPeek()
	if info.TimestampUs != 42 || info.DataSizeBytes != 128 {
		t.Fatalf("DebugPeek = %+v, unexpected", info)
	}
	if info.Format.Video == nil || info.Format.Video.Width != 640 {
		t.Fatalf("DebugPeek format = %+v, unexpected", info.Format)
	}
}

func TestReleaseBufferTwiceIsNoOp(t *testing.T) {
	ctx, _ := mustNewContext(t)
	env := &Envelope{Type: EnvelopeVideo}
	payload := &ReleasePayload{}
	ctx.AllocateEnvelope(env, payload)
	if err := ReleaseBuffer(ctx, env); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := ReleaseBuffer(ctx, env); err != nil {
		t.Fatalf("second release should be a no-op, got: %v", err)
	}
}
