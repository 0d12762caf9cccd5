package core

import (
	"sync"
	"unsafe"
)

// EnvelopeType discriminates whether an Envelope carries video or audio.
type EnvelopeType int

const (
	EnvelopeVideo EnvelopeType = iota
	EnvelopeAudio
)

// Plane is one image plane of a video Envelope: packed formats publish a
// single plane, semi-planar (NV12/NV21) two, planar (I420) three. See
// internal/plane for the layout rules each pixel format implies.
type Plane struct {
	DataPtr          unsafe.Pointer
	Width, Height    int
	StrideBytes      int
	OffsetBytes      int
	SubresourceIndex int
}

// MaxPlanes is the fixed maximum plane count the external envelope layout
// reserves (§6: "fixed maximum plane count (≥4)").
const MaxPlanes = 4

// VideoPayload is the video sub-record of an Envelope.
type VideoPayload struct {
	Format VideoFormat
	Planes []Plane
}

// AudioPayload is the audio sub-record of an Envelope.
type AudioPayload struct {
	Format    AudioFormat
	NumFrames int
	Data      unsafe.Pointer
}

// Envelope is the payload handed to a user callback for exactly one
// captured unit. Its internal release handle is opaque: callers pass the
// Envelope back to ReleaseBuffer and never touch handle fields directly.
type Envelope struct {
	Type          EnvelopeType
	ContentType   ContentType
	TimestampUs   int64
	Video         *VideoPayload
	Audio         *AudioPayload
	// DataSizeBytes is the size in bytes of the CPU-visible data: for a
	// CPU buffer, the actual allocation; for a GPU handle (DMABUF fd,
	// shared texture), the size a caller would see after mapping it, not
	// a driver-reported allocation size.
	DataSizeBytes int
	UserData      interface{}

	contextID uint64
	token     uint64
	released  bool
	mu        sync.Mutex
}

// ReleaseKind identifies which native-resource reclamation path a Release
// Payload requires.
type ReleaseKind int

const (
	ReleaseCPUCopy ReleaseKind = iota
	ReleaseLockedMapping
	ReleaseDMABUFFd
	ReleaseD3D11SharedHandle
	ReleaseMetalTexture
	ReleaseIMFSample
	ReleaseGeneric
)

// NativeResource is one backend-specific resource a Release Payload must
// reclaim. At most one of the fields below is meaningful, selected by Kind.
type NativeResource struct {
	Kind ReleaseKind

	// ReleaseCPUCopy: a heap copy the producer made; release drops the
	// reference and the Go GC reclaims the memory.
	CPUCopy []byte

	// ReleaseLockedMapping: Unmap reverses whatever the producer locked
	// (CVPixelBufferLockBaseAddress, IMFMediaBuffer::Unlock, munmap, ...).
	Unmap func() error

	// ReleaseDMABUFFd: an fd duplicated with F_DUPFD_CLOEXEC that must be
	// closed exactly once.
	DMABUFFd int

	// ReleaseD3D11SharedHandle: a Windows HANDLE. Per §4.5 this one is
	// *transferred* to the user — Close here only logs the handoff and
	// never calls CloseHandle.
	D3D11Handle uintptr

	// ReleaseMetalTexture / ReleaseIMFSample: an opaque native object whose
	// Close reverses a CFRetain/AddRef the producer took.
	Close func() error
}

// ReleasePayload is the heap record backing one delivered Envelope. The
// core never exposes it directly; ReleaseBuffer resolves to it through the
// owning Context's arena.
type ReleasePayload struct {
	ContextID uint64
	Resources []NativeResource // one singular, or up to MaxPlanes planar entries
}

// releaseArena is a per-context table of live Release Payloads, indexed by
// an opaque token instead of a raw pointer. This is what makes releasing a
// stale Envelope safe after its Context has been destroyed (§9): Destroy
// clears the arena, so any token from before destruction resolves to
// nothing and ReleaseBuffer degrades to the documented no-op instead of
// touching freed backend state.
type releaseArena struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*ReleasePayload
	live    bool
}

func newReleaseArena() *releaseArena {
	return &releaseArena{entries: make(map[uint64]*ReleasePayload), live: true}
}

// alloc stores payload and stamps env with the token that resolves back to
// it, completing the envelope/payload pairing described in §3's Lifecycle
// of an Envelope.
func (a *releaseArena) alloc(contextID uint64, env *Envelope, payload *ReleasePayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	tok := a.next
	env.contextID = contextID
	env.token = tok
	if a.live {
		a.entries[tok] = payload
	}
}

// take removes and returns the payload for env's token, or nil if the
// token is unknown (stale envelope, already released, or arena torn down).
func (a *releaseArena) take(token uint64) *ReleasePayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.entries[token]
	if !ok {
		return nil
	}
	delete(a.entries, token)
	return p
}

// outstanding reports how many envelopes are still unreleased. Backs
// Context.OutstandingEnvelopes, used by tests verifying §8 property 2.
func (a *releaseArena) outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// teardown marks the arena dead: further allocs are silently dropped and
// any remaining entries are released through releaseFn so no platform
// resource leaks just because the user never called ReleaseBuffer before
// Destroy.
func (a *releaseArena) teardown(releaseFn func(*ReleasePayload)) {
	a.mu.Lock()
	remaining := a.entries
	a.entries = make(map[uint64]*ReleasePayload)
	a.live = false
	a.mu.Unlock()
	for _, p := range remaining {
		releaseFn(p)
	}
}

// releaseNativeResources runs the reclamation path for every resource in
// payload, in order, collecting (not short-circuiting on) errors so a
// locked mapping on plane 0 still gets unmapped if plane 1's close fails.
func releaseNativeResources(payload *ReleasePayload) error {
	var first error
	for i := range payload.Resources {
		r := &payload.Resources[i]
		var err error
		switch r.Kind {
		case ReleaseLockedMapping:
			if r.Unmap != nil {
				err = r.Unmap()
			}
		case ReleaseDMABUFFd:
			if r.DMABUFFd > 0 {
				err = closeFd(r.DMABUFFd)
			}
		case ReleaseD3D11SharedHandle:
			// Transferred to the user; nothing to close here.
		case ReleaseMetalTexture, ReleaseIMFSample, ReleaseGeneric:
			if r.Close != nil {
				err = r.Close()
			}
		case ReleaseCPUCopy:
			r.CPUCopy = nil
		}
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}
