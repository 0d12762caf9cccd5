// Package config loads process-wide capture settings: preferred backend
// ordering overrides, a default frames-per-callback hint, a discovery
// timeout, and a GPU-path toggle. It never overrides a per-call Configure
// (§4.1 of the spec). Of these, only BackendOrder takes effect (miniavctl
// applies it to the registry before creating a Context); no backend reads
// the other fields.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config mirrors the teacher's internal/platform.Config: a small struct
// filled once from file + environment, passed down to whatever needs it
// instead of threaded through every call.
type Config struct {
	// BackendOrder, keyed by domain name ("camera", "microphone",
	// "loopback", "screen"), moves the named backends to the front of the
	// registry's probe order for that domain; backends it does not name
	// stay registered after them. An empty slice leaves the built-in order
	// untouched.
	BackendOrder map[string][]string

	// DefaultFramesPerCallback is a frames-per-callback hint. No backend
	// reads it: the Linux audio backends fall back to a fixed 960 when a
	// caller's AudioFormat.FramesPerCallback is zero.
	DefaultFramesPerCallback int

	// EnumerationTimeoutMS is a timeout for one-shot Enumerate calls. No
	// Enumerate path applies it.
	EnumerationTimeoutMS int

	// ExperimentalGPUPaths is a toggle for GPU-interop delivery, mirroring
	// the teacher's --experimental-nvfbc flag. No backend reads it; every
	// backend in this tree delivers CPU buffers.
	ExperimentalGPUPaths bool
}

// Default returns the config every backend sees before a config file or
// environment override is applied.
func Default() Config {
	return Config{
		BackendOrder:             map[string][]string{},
		DefaultFramesPerCallback: 960, // 20ms at 48kHz, matching the teacher's frameSize
		EnumerationTimeoutMS:     2000,
		ExperimentalGPUPaths:     false,
	}
}

// Load reads configPath (if non-empty) and MINIAV_-prefixed environment
// variables over the defaults, the same precedence the teacher's agent
// config (LanternOps-breeze style viper setup) uses: file first, then env.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("MINIAV")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("default_frames_per_callback", cfg.DefaultFramesPerCallback)
	v.SetDefault("enumeration_timeout_ms", cfg.EnumerationTimeoutMS)
	v.SetDefault("experimental_gpu_paths", cfg.ExperimentalGPUPaths)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	cfg.DefaultFramesPerCallback = v.GetInt("default_frames_per_callback")
	cfg.EnumerationTimeoutMS = v.GetInt("enumeration_timeout_ms")
	cfg.ExperimentalGPUPaths = v.GetBool("experimental_gpu_paths")

	order := map[string][]string{}
	for _, domain := range []string{"camera", "microphone", "loopback", "screen"} {
		key := "backend_order." + domain
		if v.IsSet(key) {
			order[domain] = v.GetStringSlice(key)
		}
	}
	cfg.BackendOrder = order

	return cfg, nil
}
