package plane

import (
	"testing"

	"github.com/miniav/miniav/internal/core"
)

func TestLayoutNV12_1920x1080(t *testing.T) {
	descs, err := Layout(core.PixFmtNV12, 1920, 1080)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("num_planes = %d, want 2", len(descs))
	}
	y, uv := descs[0], descs[1]
	if y.Width != 1920 || y.Height != 1080 || y.StrideBytes < 1920 || y.OffsetBytes != 0 {
		t.Fatalf("plane0 = %+v, unexpected", y)
	}
	if uv.Width != 960 || uv.Height != 540 || uv.StrideBytes != y.StrideBytes || uv.OffsetBytes != y.StrideBytes*1080 {
		t.Fatalf("plane1 = %+v, unexpected (y.stride=%d)", uv, y.StrideBytes)
	}
}

func TestLayoutI420_640x480(t *testing.T) {
	descs, err := Layout(core.PixFmtI420, 640, 480)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("num_planes = %d, want 3", len(descs))
	}
	yy, u, v := descs[0], descs[1], descs[2]
	if yy.Width != 640 || yy.Height != 480 || yy.StrideBytes < 640 || yy.OffsetBytes != 0 {
		t.Fatalf("Y = %+v, unexpected", yy)
	}
	if u.Width != 320 || u.Height != 240 || u.OffsetBytes != yy.StrideBytes*480 {
		t.Fatalf("U = %+v, unexpected", u)
	}
	if v.Width != 320 || v.Height != 240 || v.StrideBytes != u.StrideBytes || v.OffsetBytes != u.OffsetBytes+u.StrideBytes*240 {
		t.Fatalf("V = %+v, unexpected (U=%+v)", v, u)
	}
}

func TestLayoutBGRA32_1280x720(t *testing.T) {
	descs, err := Layout(core.PixFmtBGRA32, 1280, 720)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("num_planes = %d, want 1", len(descs))
	}
	if descs[0].StrideBytes < 1280*4 {
		t.Fatalf("stride = %d, want >= %d", descs[0].StrideBytes, 1280*4)
	}
}

func TestLayoutRejectsUnknownFormat(t *testing.T) {
	if _, err := Layout(core.PixFmtUnknown, 64, 64); err == nil {
		t.Fatal("expected error for unknown pixel format")
	}
}

func TestLayoutRejectsNonPositiveDimensions(t *testing.T) {
	if _, err := Layout(core.PixFmtBGRA32, 0, 10); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestWithReportedStrideRebasesOffsets(t *testing.T) {
	descs, err := Layout(core.PixFmtNV12, 1920, 1080)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Simulate a platform buffer padded to 2048-byte row pitch.
	padded := WithReportedStride(descs, 2048)
	if padded[0].StrideBytes != 2048 {
		t.Fatalf("plane0 stride = %d, want 2048", padded[0].StrideBytes)
	}
	if padded[1].OffsetBytes != 2048*1080 {
		t.Fatalf("plane1 offset = %d, want %d", padded[1].OffsetBytes, 2048*1080)
	}
}
