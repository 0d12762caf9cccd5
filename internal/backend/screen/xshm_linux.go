//go:build linux

package screen

/*
#cgo pkg-config: x11 xext xfixes
#include <X11/Xlib.h>
#include <X11/Xutil.h>
#include <X11/extensions/XShm.h>
#include <X11/extensions/Xfixes.h>
#include <sys/ipc.h>
#include <sys/shm.h>
#include <stdlib.h>
#include <string.h>

// X11 shared-memory screen capturer. Adapted from the teacher's
// internal/capture package: same XShmCreateImage/XShmAttach/XShmGetImage
// sequence. It always captures the whole root window of the default screen
// of the named display; display-index and region targets are not applied.

typedef struct {
	Display *display;
	Window root;
	XShmSegmentInfo shminfo;
	XImage *image;
	int width;
	int height;
} XShmCapturer;

static XShmCapturer* xshm_init(const char *display_name) {
	XShmCapturer *c = (XShmCapturer*)calloc(1, sizeof(XShmCapturer));
	if (!c) return NULL;

	c->display = XOpenDisplay(display_name);
	if (!c->display) { free(c); return NULL; }

	int screen = DefaultScreen(c->display);
	c->root = RootWindow(c->display, screen);
	c->width = DisplayWidth(c->display, screen);
	c->height = DisplayHeight(c->display, screen);

	c->image = XShmCreateImage(c->display,
		DefaultVisual(c->display, screen),
		DefaultDepth(c->display, screen),
		ZPixmap, NULL, &c->shminfo,
		c->width, c->height);
	if (!c->image) {
		XCloseDisplay(c->display);
		free(c);
		return NULL;
	}

	c->shminfo.shmid = shmget(IPC_PRIVATE,
		c->image->bytes_per_line * c->image->height,
		IPC_CREAT | 0600);
	if (c->shminfo.shmid < 0) {
		XDestroyImage(c->image);
		XCloseDisplay(c->display);
		free(c);
		return NULL;
	}

	c->shminfo.shmaddr = c->image->data = (char*)shmat(c->shminfo.shmid, NULL, 0);
	c->shminfo.readOnly = False;

	if (!XShmAttach(c->display, &c->shminfo)) {
		shmdt(c->shminfo.shmaddr);
		shmctl(c->shminfo.shmid, IPC_RMID, NULL);
		XDestroyImage(c->image);
		XCloseDisplay(c->display);
		free(c);
		return NULL;
	}

	shmctl(c->shminfo.shmid, IPC_RMID, NULL);

	return c;
}

static int xshm_grab(XShmCapturer *c) {
	if (!XShmGetImage(c->display, c->root, c->image, 0, 0, AllPlanes)) {
		return -1;
	}
	XSync(c->display, False);
	return 0;
}

static void xshm_composite_cursor(XShmCapturer *c) {
	XFixesCursorImage *cursor = XFixesGetCursorImage(c->display);
	if (!cursor) return;

	int cx = cursor->x - cursor->xhot;
	int cy = cursor->y - cursor->yhot;

	for (int y = 0; y < (int)cursor->height; y++) {
		int dy = cy + y;
		if (dy < 0 || dy >= c->height) continue;
		for (int x = 0; x < (int)cursor->width; x++) {
			int dx = cx + x;
			if (dx < 0 || dx >= c->width) continue;

			unsigned long pixel = cursor->pixels[y * cursor->width + x];
			unsigned char a = (pixel >> 24) & 0xFF;
			if (a == 0) continue;

			unsigned char cr = (pixel >> 0) & 0xFF;
			unsigned char cg = (pixel >> 8) & 0xFF;
			unsigned char cb = (pixel >> 16) & 0xFF;

			int offset = dy * c->image->bytes_per_line + dx * 4;
			unsigned char *dst = (unsigned char*)c->image->data + offset;

			if (a == 255) {
				dst[0] = cb;
				dst[1] = cg;
				dst[2] = cr;
			} else {
				dst[0] = (cb * a + dst[0] * (255 - a)) / 255;
				dst[1] = (cg * a + dst[1] * (255 - a)) / 255;
				dst[2] = (cr * a + dst[2] * (255 - a)) / 255;
			}
		}
	}
	XFree(cursor);
}

static void xshm_destroy(XShmCapturer *c) {
	if (!c) return;
	XShmDetach(c->display, &c->shminfo);
	shmdt(c->shminfo.shmaddr);
	XDestroyImage(c->image);
	XCloseDisplay(c->display);
	free(c);
}
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/miniav/miniav/internal/bufutil"
	"github.com/miniav/miniav/internal/core"
)

type xshmCapturer struct {
	c *C.XShmCapturer
}

func newXshmCapturer(displayName string) (*xshmCapturer, error) {
	cDisplay := C.CString(displayName)
	defer C.free(unsafe.Pointer(cDisplay))

	c := C.xshm_init(cDisplay)
	if c == nil {
		return nil, fmt.Errorf("XOpenDisplay/XShmCreateImage failed for %q", displayName)
	}
	return &xshmCapturer{c: c}, nil
}

func (x *xshmCapturer) width() int  { return int(x.c.width) }
func (x *xshmCapturer) height() int { return int(x.c.height) }

// grab captures one frame with the cursor composited in, copying BGRA32
// pixels out of the shared-memory segment so the returned slice stays valid
// across the next XShmGetImage call.
func (x *xshmCapturer) grab() ([]byte, int, int, int, error) {
	if C.xshm_grab(x.c) != 0 {
		return nil, 0, 0, 0, fmt.Errorf("XShmGetImage failed")
	}
	C.xshm_composite_cursor(x.c)

	w := int(x.c.width)
	h := int(x.c.height)
	stride := int(x.c.image.bytes_per_line)
	size := stride * h
	data := C.GoBytes(unsafe.Pointer(x.c.image.data), C.int(size))
	return data, w, h, stride, nil
}

func (x *xshmCapturer) close() {
	C.xshm_destroy(x.c)
}

func init() {
	core.RegisterBackend(core.Screen, core.BackendDescriptor{
		Name:  "xshm",
		Probe: probeXShm,
	})
}

func probeXShm() (core.Backend, error) {
	c, err := newXshmCapturer("")
	if err != nil {
		return nil, core.Wrap("probe", core.DeviceNotFound, err)
	}
	c.close() // probe only proves X11 is reachable; Configure opens its own handle
	return &xshmBackend{}, nil
}

type xshmBackend struct{}

type xshmState struct {
	displayName string
	format      core.VideoFormat
	capturer    *xshmCapturer
	producer    *core.Producer
}

func (b *xshmBackend) Name() string { return "xshm" }

func (b *xshmBackend) Init(ctx *core.Context) error {
	ctx.SetState(&xshmState{})
	return nil
}

func (b *xshmBackend) Destroy(ctx *core.Context) {
	st := ctx.State().(*xshmState)
	if st.capturer != nil {
		st.capturer.close()
		st.capturer = nil
	}
}

func (b *xshmBackend) Enumerate() ([]core.DeviceDescriptor, error) {
	// X11 exposes one screen resource per DISPLAY; a multi-monitor layout
	// is a single virtual root window here, matching the teacher's model.
	return []core.DeviceDescriptor{{ID: "display_0", Name: "Primary X11 display"}}, nil
}

func (b *xshmBackend) GetSupportedFormats(deviceID string) ([]core.Format, error) {
	return []core.Format{b.defaultFormatLocked()}, nil
}

func (b *xshmBackend) defaultFormatLocked() core.Format {
	return core.Format{Video: &core.VideoFormat{Width: 1920, Height: 1080, PixelFormat: core.PixFmtBGRA32, FPSNum: 30, FPSDen: 1, Output: core.OutputCPU}}
}

func (b *xshmBackend) GetDefaultFormat(deviceID string) (core.Format, error) {
	return b.defaultFormatLocked(), nil
}

func (b *xshmBackend) Configure(ctx *core.Context, req core.ConfigureRequest) error {
	if req.Format.Video == nil {
		return core.NewError("configure", core.InvalidArgument)
	}
	st := ctx.State().(*xshmState)

	displayName := ""
	if req.Target != nil && req.Target.Kind == core.TargetDisplayID {
		// XShm addresses the whole root window; a specific display index
		// beyond DISPLAY's default isn't distinguishable without querying
		// XRandR outputs, which is a documented simplification here.
		displayName = ""
	}

	capturer, err := newXshmCapturer(displayName)
	if err != nil {
		return core.Wrap("configure", core.DeviceNotFound, err)
	}
	if st.capturer != nil {
		st.capturer.close()
	}
	st.capturer = capturer
	st.displayName = displayName
	st.format = core.VideoFormat{
		Width:       capturer.width(),
		Height:      capturer.height(),
		PixelFormat: core.PixFmtBGRA32,
		FPSNum:      req.Format.Video.FPSNum,
		FPSDen:      req.Format.Video.FPSDen,
		Output:      core.OutputCPU,
	}
	if st.format.FPSNum == 0 {
		st.format.FPSNum, st.format.FPSDen = 30, 1
	}
	return nil
}

func (b *xshmBackend) GetConfiguredFormat(ctx *core.Context) (core.Format, error) {
	st := ctx.State().(*xshmState)
	return core.Format{Video: &st.format}, nil
}

func (b *xshmBackend) StartCapture(ctx *core.Context) error {
	st := ctx.State().(*xshmState)
	if st.capturer == nil {
		return core.NewError("start_capture", core.NotInitialized)
	}
	st.producer = core.NewProducer()
	st.producer.Run(func() {
		runScreenLoop(ctx, st)
	})
	return nil
}

func runScreenLoop(ctx *core.Context, st *xshmState) {
	log := ctx.Log()
	fps := st.format.FPSNum
	if st.format.FPSDen > 0 {
		fps = st.format.FPSNum / st.format.FPSDen
	}
	if fps <= 0 {
		fps = 30
	}
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	const maxConsecutiveFailures = 30
	failures := 0

	for {
		select {
		case <-st.producer.Stopping():
			return
		case <-ticker.C:
			data, w, h, stride, err := st.capturer.grab()
			if err != nil {
				log.Warn("xshm grab failed", zap.Error(err))
				failures++
				if failures >= maxConsecutiveFailures {
					ctx.NotifyDeviceLost(err)
					return
				}
				continue
			}
			failures = 0
			cb, userData := ctx.Callback()
			if cb == nil {
				continue
			}
			env := buildFrameEnvelope(st.format, data, w, h, stride)
			payload := &core.ReleasePayload{Resources: []core.NativeResource{{Kind: core.ReleaseCPUCopy, CPUCopy: data}}}
			ctx.AllocateEnvelope(env, payload)
			core.RecordDebugFrame(ctx, env, core.Format{Video: &st.format})
			st.producer.Deliver(cb, env, userData)
		}
	}
}

func buildFrameEnvelope(format core.VideoFormat, data []byte, w, h, stride int) *core.Envelope {
	base := bufutil.PointerOf(data)
	return &core.Envelope{
		Type:        core.EnvelopeVideo,
		ContentType: core.ContentCPU,
		TimestampUs: bufutil.NowMicros(),
		Video: &core.VideoPayload{
			Format: format,
			Planes: []core.Plane{{
				DataPtr:     base,
				Width:       w,
				Height:      h,
				StrideBytes: stride,
			}},
		},
		DataSizeBytes: len(data),
	}
}

func (b *xshmBackend) StopCapture(ctx *core.Context) error {
	st := ctx.State().(*xshmState)
	if st.producer != nil {
		st.producer.Stop()
		st.producer = nil
	}
	return nil
}

func (b *xshmBackend) ReleaseBuffer(ctx *core.Context, payload *core.ReleasePayload) error {
	return core.ReleaseNativeResources(payload)
}
