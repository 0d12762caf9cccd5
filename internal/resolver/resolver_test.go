package resolver

import (
	"context"
	"os"
	"testing"

	"github.com/miniav/miniav/internal/core"
)

func TestResolveSystemDefault(t *testing.T) {
	r, err := Resolve(context.Background(), core.Target{Kind: core.TargetSystemDefault})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Kind != core.TargetSystemDefault {
		t.Fatalf("Kind = %v, want TargetSystemDefault", r.Kind)
	}
}

func TestResolveProcessIDValidatesAgainstLiveProcess(t *testing.T) {
	pid := os.Getpid()
	r, err := Resolve(context.Background(), core.Target{Kind: core.TargetProcessID, PID: pid})
	if err != nil {
		t.Fatalf("Resolve(self pid): %v", err)
	}
	if r.PID != pid || r.ProcessName == "" {
		t.Fatalf("ResolvedTarget = %+v, unexpected", r)
	}
}

func TestResolveProcessIDRejectsDeadPID(t *testing.T) {
	// A PID vanishingly unlikely to be alive on any test host.
	const implausiblePID = 1 << 30
	_, err := Resolve(context.Background(), core.Target{Kind: core.TargetProcessID, PID: implausiblePID})
	if err == nil {
		t.Fatal("expected error resolving an implausible pid")
	}
	if core.CodeOf(err) != core.DeviceNotFound {
		t.Fatalf("code = %v, want DeviceNotFound", core.CodeOf(err))
	}
}

func TestResolvedTargetString(t *testing.T) {
	r := ResolvedTarget{Kind: core.TargetProcessID, PID: 1234, ProcessName: "firefox"}
	if got, want := r.String(), "pid:1234(firefox)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
