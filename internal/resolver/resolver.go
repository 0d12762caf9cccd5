// Package resolver turns a parsed core.Target into the concrete handle a
// backend needs to open a capture: a process's PID validated against the
// live process table, or an enumerated list of candidate loopback targets
// (one per running process whose name can be read; processes are not
// filtered by audio activity, and the system default is not included). It
// is grounded on the teacher's process/session bookkeeping
// style, substituting gopsutil for the teacher's own process tracking.
package resolver

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/miniav/miniav/internal/core"
)

// ProcessCandidate describes one process that can be addressed as a
// per-process loopback target (§4.6 of the capture spec).
type ProcessCandidate struct {
	PID  int32
	Name string
}

// EnumerateProcessCandidates lists running processes suitable for
// per-process loopback capture. Backends that lack true per-process audio
// isolation can still use this to validate a pid: target exists before
// falling back to system-wide capture.
func EnumerateProcessCandidates(ctx context.Context) ([]ProcessCandidate, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, core.Wrap("enumerate_process_candidates", core.SystemCallFailed, err)
	}

	out := make([]ProcessCandidate, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, ProcessCandidate{PID: p.Pid, Name: name})
	}
	return out, nil
}

// ValidatePID confirms a target's pid refers to a live process, returning
// its executable name for diagnostics and log messages.
func ValidatePID(ctx context.Context, pid int32) (string, error) {
	running, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return "", core.Wrap("validate_pid", core.SystemCallFailed, err)
	}
	if !running {
		return "", core.NewError("validate_pid", core.DeviceNotFound)
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", core.Wrap("validate_pid", core.DeviceNotFound, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", core.Wrap("validate_pid", core.DeviceNotFound, err)
	}
	return name, nil
}

// Resolve inspects a parsed Target and reports what a backend must do to
// honor it: which PID to filter on (per-process loopback), which display
// to attach to (screen), or that system-default behavior applies.
func Resolve(ctx context.Context, t core.Target) (ResolvedTarget, error) {
	switch t.Kind {
	case core.TargetSystemDefault:
		return ResolvedTarget{Kind: t.Kind}, nil
	case core.TargetProcessID:
		name, err := ValidatePID(ctx, int32(t.PID))
		if err != nil {
			return ResolvedTarget{}, err
		}
		return ResolvedTarget{Kind: t.Kind, PID: t.PID, ProcessName: name}, nil
	case core.TargetDisplayID:
		return ResolvedTarget{Kind: t.Kind, DisplayID: t.DisplayID}, nil
	case core.TargetWindowHandle:
		return ResolvedTarget{Kind: t.Kind, WindowHandle: uint64(t.WindowHandle)}, nil
	case core.TargetDeviceID:
		return ResolvedTarget{Kind: t.Kind, DeviceID: t.DeviceID}, nil
	default:
		return ResolvedTarget{}, core.NewError("resolve_target", core.InvalidArgument)
	}
}

// ResolvedTarget is the backend-facing output of Resolve: unlike core.Target
// it carries data validated against live OS state (a confirmed process
// name), not just a parsed string.
type ResolvedTarget struct {
	Kind         core.TargetKind
	PID          int
	ProcessName  string
	DisplayID    int
	WindowHandle uint64
	DeviceID     string
}

func (r ResolvedTarget) String() string {
	switch r.Kind {
	case core.TargetProcessID:
		return fmt.Sprintf("pid:%d(%s)", r.PID, r.ProcessName)
	case core.TargetDisplayID:
		return fmt.Sprintf("display_%d", r.DisplayID)
	case core.TargetWindowHandle:
		return fmt.Sprintf("hwnd:0x%x", r.WindowHandle)
	case core.TargetDeviceID:
		return r.DeviceID
	default:
		return "system_default"
	}
}
