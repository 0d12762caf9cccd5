package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.DefaultFramesPerCallback != 960 {
		t.Fatalf("DefaultFramesPerCallback = %d, want 960", cfg.DefaultFramesPerCallback)
	}
	if cfg.ExperimentalGPUPaths {
		t.Fatal("ExperimentalGPUPaths should default to false")
	}
}

func TestLoadWithEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.EnumerationTimeoutMS != 2000 {
		t.Fatalf("EnumerationTimeoutMS = %d, want 2000", cfg.EnumerationTimeoutMS)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "miniav.yaml")
	contents := []byte("default_frames_per_callback: 480\nexperimental_gpu_paths: true\nbackend_order:\n  screen:\n    - xshm\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultFramesPerCallback != 480 {
		t.Fatalf("DefaultFramesPerCallback = %d, want 480", cfg.DefaultFramesPerCallback)
	}
	if !cfg.ExperimentalGPUPaths {
		t.Fatal("ExperimentalGPUPaths should be true from file")
	}
	if got := cfg.BackendOrder["screen"]; len(got) != 1 || got[0] != "xshm" {
		t.Fatalf("BackendOrder[screen] = %v, want [xshm]", got)
	}
}
