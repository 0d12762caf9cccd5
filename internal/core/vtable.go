package core

// Callback is the user-supplied delivery function. The core guarantees no
// two invocations for the same Context overlap (§5) but makes no promise
// about which goroutine/thread runs it.
type Callback func(env *Envelope, userData interface{})

// ConfigureRequest bundles everything a single Configure call can set.
// Target selects the device (camera/microphone backends read a
// TargetDeviceID) or the loopback/screen target; CaptureAudio applies to
// the screen domain only.
type ConfigureRequest struct {
	Format       Format
	Target       *Target
	CaptureAudio bool // screen domain only
}

// Backend is the per-domain vtable every platform provider implements.
// Shape is shared by all four domains; the screen-specific inputs
// (ConfigureRequest.CaptureAudio and the Region/Display variants of
// Target) travel in the request rather than in a separate method set
// (the Linux xshm backend ignores CaptureAudio and Region), which keeps one
// interface instead of forking per spec's "screen variant adds separate
// operations" note — the dispatch happens on the request contents, the way
// the teacher's single CapturerFactory already varies behavior on the
// display string ("vm" vs a real X11 display).
type Backend interface {
	// Name identifies the backend for logs and registry ordering.
	Name() string

	// Init allocates and attaches backend-private state to ctx. Called
	// once, immediately after a winning selection probe.
	Init(ctx *Context) error

	// Destroy frees backend-private state. Must be safe to call on state
	// that never got past a partial Init, and must not assume Start ever
	// ran.
	Destroy(ctx *Context)

	// Enumerate produces a fresh device list; the core owns the slice.
	Enumerate() ([]DeviceDescriptor, error)

	// GetSupportedFormats and GetDefaultFormat are pure queries keyed by
	// device id ("" means system default).
	GetSupportedFormats(deviceID string) ([]Format, error)
	GetDefaultFormat(deviceID string) (Format, error)

	// Configure installs format and target. Rejecting the call while
	// Running is the Context's job; backends only ever see this call
	// while the Context is in Created, Configured or Stopped.
	Configure(ctx *Context, req ConfigureRequest) error

	// StartCapture / StopCapture flip the Producer Engine on/off. Callback
	// and user data are already installed on ctx by the time StartCapture
	// runs (see Context.Start).
	StartCapture(ctx *Context) error
	StopCapture(ctx *Context) error

	// ReleaseBuffer reclaims every native resource referenced by payload.
	ReleaseBuffer(ctx *Context, payload *ReleasePayload) error

	// GetConfiguredFormat returns the actually-negotiated format, which may
	// differ from what Configure was asked for.
	GetConfiguredFormat(ctx *Context) (Format, error)
}

// SelectionProbe performs the minimum work needed to decide whether a
// backend can run on the current system. On success it returns a Backend
// with its private state allocated (but not necessarily fully
// initialized — that's Init's job). Probe failure means "not applicable
// on this machine" and the registry tries the next descriptor; it is not
// a Context-creation failure by itself.
type SelectionProbe func() (Backend, error)

// BackendDescriptor is one registry entry: a name, paired with the probe
// that decides whether this backend is usable and attaches its Backend.
type BackendDescriptor struct {
	Name  string
	Probe SelectionProbe
}
