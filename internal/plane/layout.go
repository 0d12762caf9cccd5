// Package plane computes the per-pixel-format plane layout (§4.4 step 4,
// §8 property 7) that the Producer Engine stamps onto every video
// Envelope: how many planes a format needs, and each plane's width,
// height, stride, and byte offset from the buffer base.
package plane

import "github.com/miniav/miniav/internal/core"

// Descriptor is one plane's layout, independent of any backing memory.
type Descriptor struct {
	Width, Height int
	StrideBytes   int
	OffsetBytes   int
}

// bytesPerPixelPacked returns the packed-format byte width, or 0 if fmt is
// not a single-plane packed format.
func bytesPerPixelPacked(fmt core.PixelFormat) int {
	switch fmt {
	case core.PixFmtRGBA32, core.PixFmtBGRA32:
		return 4
	case core.PixFmtYUY2:
		return 2
	default:
		return 0
	}
}

// Layout computes the plane descriptors for one frame of (fmt, width,
// height) using the minimum stride (no padding). Setting StrideBytes on the
// result does not move the other planes' offsets; for a platform-reported
// larger stride, pass the result through WithReportedStride, which re-derives
// every plane's stride and offset from plane 0's stride.
func Layout(fmt core.PixelFormat, width, height int) ([]Descriptor, error) {
	if width <= 0 || height <= 0 {
		return nil, core.NewError("plane.Layout", core.InvalidArgument)
	}

	if bpp := bytesPerPixelPacked(fmt); bpp > 0 {
		return []Descriptor{{
			Width:       width,
			Height:      height,
			StrideBytes: width * bpp,
			OffsetBytes: 0,
		}}, nil
	}

	switch fmt {
	case core.PixFmtNV12, core.PixFmtNV21:
		// Semi-planar: full-res Y, then interleaved half-res chroma at the
		// same row pitch as Y (each "pixel" of the UV plane is a U,V pair).
		strideY := width
		chromaW := (width + 1) / 2
		chromaH := (height + 1) / 2
		return []Descriptor{
			{Width: width, Height: height, StrideBytes: strideY, OffsetBytes: 0},
			{Width: chromaW, Height: chromaH, StrideBytes: strideY, OffsetBytes: strideY * height},
		}, nil
	case core.PixFmtI420:
		strideY := width
		strideC := (width + 1) / 2
		chromaW := (width + 1) / 2
		chromaH := (height + 1) / 2
		yBytes := strideY * height
		return []Descriptor{
			{Width: width, Height: height, StrideBytes: strideY, OffsetBytes: 0},
			{Width: chromaW, Height: chromaH, StrideBytes: strideC, OffsetBytes: yBytes},
			{Width: chromaW, Height: chromaH, StrideBytes: strideC, OffsetBytes: yBytes + strideC*chromaH},
		}, nil
	default:
		return nil, core.NewError("plane.Layout", core.FormatNotSupported)
	}
}

// WithReportedStride re-derives offsets using a platform-reported stride
// for plane 0 (e.g. IMFMediaBuffer's GetContiguousLength, or bytes_per_line
// from an XImage) instead of the tight minimum stride Layout assumed.
func WithReportedStride(descs []Descriptor, strideY int) []Descriptor {
	if len(descs) == 0 || strideY <= 0 {
		return descs
	}
	out := make([]Descriptor, len(descs))
	copy(out, descs)
	yHeight := out[0].Height
	out[0].StrideBytes = strideY
	out[0].OffsetBytes = 0
	if len(out) > 1 {
		// NV12/NV21's interleaved chroma plane keeps the Y stride; I420's
		// separate U and V planes use half of it, as in Layout.
		chromaStride := strideY
		if len(out) > 2 {
			chromaStride = (strideY + 1) / 2
		}
		out[1].StrideBytes = chromaStride
		out[1].OffsetBytes = strideY * yHeight
	}
	if len(out) > 2 {
		chromaH := out[1].Height
		out[2].StrideBytes = out[1].StrideBytes
		out[2].OffsetBytes = out[1].OffsetBytes + out[1].StrideBytes*chromaH
	}
	return out
}
