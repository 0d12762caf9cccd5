package core

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var contextCounter uint64

// Context is the central entity of the core (§3): a handle that owns one
// selected backend, its configuration, and its lifecycle state machine.
// A Context must not be used concurrently from two goroutines — the core
// does not enforce this with a lock beyond what's needed for its own
// bookkeeping; serializing user calls is a binding-layer responsibility
// (§5).
type Context struct {
	ID     uint64
	UUID   uuid.UUID
	Domain Domain

	backend     Backend
	backendName string

	mu           sync.Mutex
	phase        Phase
	format       Format
	target       *Target
	captureAudio bool
	callback     Callback
	userData     interface{}
	arena        *releaseArena

	state interface{} // backend-private state slot, opaque to the core

	log *zap.Logger

	debugMu     sync.Mutex
	debugFormat Format
	debugTsUs   int64
	debugBytes  int
}

// NewContext iterates domain's registry (§4.2): the first probe to
// succeed wins and its backend's Init runs immediately. If Init fails the
// partial backend state is destroyed and the whole call fails with that
// error — there is no fallback to the next descriptor once a probe has
// accepted, since probe acceptance is the commitment point.
func NewContext(domain Domain) (*Context, error) {
	backend, name, err := selectBackend(domain)
	if err != nil {
		return nil, err
	}

	id := atomic.AddUint64(&contextCounter, 1)
	ctx := &Context{
		ID:          id,
		UUID:        uuid.New(),
		Domain:      domain,
		backend:     backend,
		backendName: name,
		phase:       Created,
		arena:       newReleaseArena(),
		log:         Log().Named("core.context").With(zap.String("domain", domain.String()), zap.String("backend", name)),
	}

	if err := backend.Init(ctx); err != nil {
		ctx.log.Warn("backend init failed after probe accepted", zap.Error(err))
		backend.Destroy(ctx)
		return nil, err
	}

	ctx.log.Info("context created")
	return ctx, nil
}

// BackendName reports which registry entry this Context committed to.
func (c *Context) BackendName() string { return c.backendName }

// Log returns the Context's scoped logger, already tagged with its domain
// and chosen backend name, for a backend's producer loop to log through.
func (c *Context) Log() *zap.Logger { return c.log }

// Phase returns the current lifecycle phase.
func (c *Context) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SetState stores backend-private state on the Context. Backends call
// this from Init; the core never interprets the value.
func (c *Context) SetState(v interface{}) { c.state = v }

// State retrieves the backend-private state stored by SetState.
func (c *Context) State() interface{} { return c.state }

// Target returns the currently configured target, or nil if none/system
// default.
func (c *Context) Target() *Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// CaptureAudio reports the screen domain's audio-along-with-video flag.
func (c *Context) CaptureAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captureAudio
}

// Configure installs format (and, for loopback/screen, target) per the
// transition table in §4.3: permitted from Created, Configured (replacing
// the previous format) or Stopped; rejected with AlreadyRunning while
// Running and with InvalidHandle once Destroyed.
func (c *Context) Configure(req ConfigureRequest) error {
	c.mu.Lock()
	if c.phase == Running {
		c.mu.Unlock()
		return NewError("configure", AlreadyRunning)
	}
	if c.phase == Destroyed {
		c.mu.Unlock()
		return NewError("configure", InvalidHandle)
	}
	c.mu.Unlock()

	if err := c.backend.Configure(c, req); err != nil {
		c.log.Warn("configure failed, state retained", zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.format = req.Format
	c.target = req.Target
	c.captureAudio = req.CaptureAudio
	c.phase = Configured
	c.mu.Unlock()

	c.log.Info("configured")
	return nil
}

// Start transitions Configured -> Running. Per §4.4 Startup, the callback
// and user data are installed before the backend is signaled to begin
// producing, so the first frame — synchronous or not — never races an
// unset callback. On failure the callback is cleared and the phase stays
// Configured.
func (c *Context) Start(cb Callback, userData interface{}) error {
	c.mu.Lock()
	if c.phase != Configured {
		phase := c.phase
		c.mu.Unlock()
		if phase == Created {
			return NewError("start", NotInitialized)
		}
		if phase == Running {
			return NewError("start", AlreadyRunning)
		}
		return NewError("start", InvalidOperationForState(phase))
	}
	c.callback = cb
	c.userData = userData
	c.mu.Unlock()

	if err := c.backend.StartCapture(c); err != nil {
		c.mu.Lock()
		c.callback = nil
		c.userData = nil
		c.mu.Unlock()
		c.log.Warn("start failed", zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.phase = Running
	c.mu.Unlock()
	c.log.Info("capture started")
	return nil
}

// Stop halts capture. It is idempotent when already Stopped or Created
// (returns success without calling the backend). Otherwise the state
// change to Stopped is authoritative even if the backend's StopCapture
// itself returns an error (§4.3) — callers still learn about that error,
// but the Context is left consistent either way.
func (c *Context) Stop() error {
	c.mu.Lock()
	phase := c.phase
	if phase == Stopped || phase == Created {
		c.mu.Unlock()
		return nil
	}
	if phase == Destroyed {
		c.mu.Unlock()
		return NewError("stop", InvalidHandle)
	}
	c.mu.Unlock()

	err := c.backend.StopCapture(c)

	c.mu.Lock()
	c.phase = Stopped
	c.callback = nil
	c.userData = nil
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("backend stop_capture returned error; state forced to stopped", zap.Error(err))
	} else {
		c.log.Info("capture stopped")
	}
	return err
}

// Destroy auto-stops if Running, then frees the backend's private state.
// Any Envelopes the caller never released are force-reclaimed through the
// backend's release op so platform resources don't leak just because
// Destroy ran first (§8 property 2 still holds: net-zero outstanding
// resources after teardown).
func (c *Context) Destroy() {
	c.mu.Lock()
	phase := c.phase
	c.mu.Unlock()

	if phase == Destroyed {
		return
	}
	if phase == Running {
		_ = c.Stop()
	}

	c.arena.teardown(func(p *ReleasePayload) {
		if err := c.backend.ReleaseBuffer(c, p); err != nil {
			c.log.Warn("force-release on destroy failed", zap.Error(err))
		}
	})

	c.backend.Destroy(c)

	c.mu.Lock()
	c.phase = Destroyed
	c.mu.Unlock()
	c.log.Info("context destroyed")
}

// AllocateEnvelope stamps env with a fresh arena token bound to payload,
// completing the envelope/payload pairing the Producer Engine creates for
// every captured unit (§3). Backends call this right before handing env to
// Producer.Deliver.
func (c *Context) AllocateEnvelope(env *Envelope, payload *ReleasePayload) {
	payload.ContextID = c.ID
	c.arena.alloc(c.ID, env, payload)
}

// Callback and UserData expose the currently installed delivery target so
// a backend's producer loop can call Producer.Deliver without reaching
// into Context internals on every frame.
func (c *Context) Callback() (Callback, interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback, c.userData
}

// Format returns the currently configured format.
func (c *Context) Format() Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// OutstandingEnvelopes reports how many delivered Envelopes have not yet
// been released. Exposed for the leak-accounting property in §8.
func (c *Context) OutstandingEnvelopes() int {
	return c.arena.outstanding()
}

// ReleaseBuffer resolves env's arena token back to its Release Payload and
// dispatches to the backend's release op. A nil, already-released, or
// stale (post-destroy) Envelope is a documented no-op (§4.5).
func ReleaseBuffer(ctx *Context, env *Envelope) error {
	if env == nil || ctx == nil {
		return nil
	}
	env.mu.Lock()
	if env.released {
		env.mu.Unlock()
		return nil
	}
	env.released = true
	token := env.token
	env.mu.Unlock()

	payload := ctx.arena.take(token)
	if payload == nil {
		return nil
	}
	return ctx.backend.ReleaseBuffer(ctx, payload)
}

// NotifyDeviceLost lets a backend's producer loop report that the
// underlying device disappeared mid-capture (unplugged camera, PulseAudio
// server restart, display server gone). The context is forced to Stopped
// the same way an explicit Stop would, but logged and surfaced under the
// DeviceLost code instead of treated as a clean shutdown — a first-class
// producer-engine event rather than a log line.
func (c *Context) NotifyDeviceLost(cause error) {
	c.mu.Lock()
	phase := c.phase
	if phase != Running {
		c.mu.Unlock()
		return
	}
	c.phase = Stopped
	c.callback = nil
	c.userData = nil
	c.mu.Unlock()

	c.log.Warn("device lost; context forced to stopped", zap.Error(NewError("device_lost", DeviceLost)), zap.NamedError("cause", cause))
}

// recordDebugFrame stashes metadata (never pixel/sample data) about the
// most recently delivered Envelope, for DebugPeek. Backends call this
// alongside Producer.Deliver; it never touches the callback path so a
// debug client can't perturb normal delivery serialization.
func (c *Context) recordDebugFrame(env *Envelope, format Format) {
	c.debugMu.Lock()
	defer c.debugMu.Unlock()
	c.debugFormat = format
	c.debugTsUs = env.TimestampUs
	c.debugBytes = env.DataSizeBytes
}

// RecordDebugFrame is the exported hook a backend's producer loop calls
// right before Producer.Deliver, so DebugPeek has something fresh to
// report without backends reaching into Context's unexported fields.
func RecordDebugFrame(ctx *Context, env *Envelope, format Format) {
	ctx.recordDebugFrame(env, format)
}

// DebugFrameInfo is the synchronous, metadata-only snapshot DebugPeek
// returns: enough to confirm a producer is alive and what it's emitting,
// without exposing a second consumer of the zero-copy buffer pipeline.
type DebugFrameInfo struct {
	Format      Format
	TimestampUs int64
	DataSizeBytes int
}

// DebugPeek reports metadata about the last frame/packet this Context
// delivered, for diagnostic tooling (cmd/miniavctl probe). It never
// competes with the installed Callback for buffer ownership, matching the
// teacher's internal/server /debug/frame endpoint (a side-channel read,
// not a second subscriber).
func (c *Context) DebugPeek() DebugFrameInfo {
	c.debugMu.Lock()
	defer c.debugMu.Unlock()
	return DebugFrameInfo{Format: c.debugFormat, TimestampUs: c.debugTsUs, DataSizeBytes: c.debugBytes}
}

// ReleaseNativeResources is the default ReleaseBuffer implementation most
// backends delegate to: it walks payload's native resources and reclaims
// each one per its Kind. Backends with no extra bookkeeping can use this
// directly as their vtable's ReleaseBuffer.
func ReleaseNativeResources(payload *ReleasePayload) error {
	return releaseNativeResources(payload)
}

// InvalidOperationForState maps an unexpected phase to the closest
// taxonomy entry for a rejected transition. Start uses it for the phases
// it has no dedicated case for: Destroyed maps to InvalidHandle, and
// Stopped to NotInitialized.
func InvalidOperationForState(p Phase) ResultCode {
	switch p {
	case Destroyed:
		return InvalidHandle
	default:
		return NotInitialized
	}
}
