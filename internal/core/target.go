package core

import (
	"fmt"
	"strconv"
	"strings"
)

// TargetKind discriminates a loopback/screen Target Descriptor.
type TargetKind int

const (
	TargetSystemDefault TargetKind = iota
	TargetDeviceID
	TargetProcessID
	TargetWindowHandle
	TargetDisplayID
	TargetRegion
)

// RegionRect is the x/y/w/h sub-rectangle of a Region target.
type RegionRect struct {
	X, Y, W, H int
}

// Target is the parsed form of a loopback/screen target identifier: either
// a structured record built directly by a caller, or the result of parsing
// one of the grammar strings in §6.
type Target struct {
	Kind         TargetKind
	DeviceID     string
	PID          int
	WindowHandle uintptr
	DisplayID    int
	Region       *RegionRect // set only when Kind == TargetRegion; Region.target nested via Of
	Of           *Target     // the target a Region is relative to
}

// ParseTargetString applies the grammar from §3/§6:
//
//	device_id := "" | "hwnd:" hex_ptr | "pid:" decimal | "display_" decimal | opaque_string
func ParseTargetString(s string) (Target, error) {
	if s == "" {
		return Target{Kind: TargetSystemDefault}, nil
	}
	switch {
	case strings.HasPrefix(s, "hwnd:"):
		hex := strings.TrimPrefix(s, "hwnd:")
		hex = strings.TrimPrefix(hex, "0x")
		hex = strings.TrimPrefix(hex, "0X")
		v, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return Target{}, NewError("parse_target", InvalidArgument)
		}
		return Target{Kind: TargetWindowHandle, WindowHandle: uintptr(v)}, nil
	case strings.HasPrefix(s, "pid:"):
		v, err := strconv.ParseInt(strings.TrimPrefix(s, "pid:"), 10, 64)
		if err != nil {
			return Target{}, NewError("parse_target", InvalidArgument)
		}
		return Target{Kind: TargetProcessID, PID: int(v)}, nil
	case strings.HasPrefix(s, "display_"):
		v, err := strconv.ParseInt(strings.TrimPrefix(s, "display_"), 10, 64)
		if err != nil {
			return Target{}, NewError("parse_target", InvalidArgument)
		}
		return Target{Kind: TargetDisplayID, DisplayID: int(v)}, nil
	default:
		return Target{Kind: TargetDeviceID, DeviceID: s}, nil
	}
}

// FormatTargetString is the inverse of ParseTargetString, used for logging
// and for the round-trip property in §8.6. Hex window handles are always
// formatted lower-case with a 0x prefix, which is the canonical casing the
// round-trip test allows for. Region targets format as "<base>@x,y,w,h",
// which ParseTargetString does not parse back into a Region.
func FormatTargetString(t Target) string {
	switch t.Kind {
	case TargetSystemDefault:
		return ""
	case TargetWindowHandle:
		return fmt.Sprintf("hwnd:0x%x", t.WindowHandle)
	case TargetProcessID:
		return fmt.Sprintf("pid:%d", t.PID)
	case TargetDisplayID:
		return fmt.Sprintf("display_%d", t.DisplayID)
	case TargetDeviceID:
		return t.DeviceID
	case TargetRegion:
		base := ""
		if t.Of != nil {
			base = FormatTargetString(*t.Of)
		}
		if t.Region == nil {
			return base
		}
		return fmt.Sprintf("%s@%d,%d,%d,%d", base, t.Region.X, t.Region.Y, t.Region.W, t.Region.H)
	default:
		return ""
	}
}
