package core

import "testing"

const registryTestDomain Domain = 2000

func TestApplyBackendOrderReprioritizesWithoutRemoving(t *testing.T) {
	globalRegistry.mu.Lock()
	globalRegistry.byDom[registryTestDomain] = []BackendDescriptor{
		{Name: "a", Probe: func() (Backend, error) { return nil, nil }},
		{Name: "b", Probe: func() (Backend, error) { return nil, nil }},
		{Name: "c", Probe: func() (Backend, error) { return nil, nil }},
	}
	globalRegistry.mu.Unlock()

	ApplyBackendOrder(registryTestDomain, []string{"c", "unknown", "a"})

	got := Descriptors(registryTestDomain)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (no entries dropped)", len(got))
	}
	names := []string{got[0].Name, got[1].Name, got[2].Name}
	want := []string{"c", "a", "b"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

func TestApplyBackendOrderWithEmptyNamesIsNoOp(t *testing.T) {
	globalRegistry.mu.Lock()
	globalRegistry.byDom[registryTestDomain] = []BackendDescriptor{
		{Name: "a", Probe: func() (Backend, error) { return nil, nil }},
	}
	globalRegistry.mu.Unlock()

	ApplyBackendOrder(registryTestDomain, nil)

	got := Descriptors(registryTestDomain)
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("registry mutated unexpectedly: %+v", got)
	}
}
