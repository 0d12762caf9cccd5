// Command miniavctl is a development and diagnostic CLI over the capture
// core: enumerate devices, probe which backend a domain resolves to, and
// run a short capture against stdout statistics. It plays the role the
// teacher's cmd/bunghole binary plays for the capture+relay server, and
// mirrors breeze-agent's cobra command-tree layout.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/miniav/miniav/internal/backend/camera"
	_ "github.com/miniav/miniav/internal/backend/loopback"
	_ "github.com/miniav/miniav/internal/backend/microphone"
	_ "github.com/miniav/miniav/internal/backend/screen"
	"github.com/miniav/miniav/internal/config"
	"github.com/miniav/miniav/internal/core"
)

var (
	version    = "0.1.0"
	cfgFile    string
	domainFlag string
)

var loadedConfig config.Config

var rootCmd = &cobra.Command{
	Use:   "miniavctl",
	Short: "MiniAV capture core diagnostic CLI",
	Long:  "miniavctl enumerates devices, probes backend selection, and runs short capture sessions against the camera, microphone, loopback, and screen domains.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		loadedConfig = cfg
		for domainName, order := range cfg.BackendOrder {
			domain, err := parseDomain(domainName)
			if err != nil {
				continue
			}
			core.ApplyBackendOrder(domain, order)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("miniavctl v%s\n", version)
	},
}

var enumerateCmd = &cobra.Command{
	Use:   "enumerate",
	Short: "List devices for a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := parseDomain(domainFlag)
		if err != nil {
			return err
		}
		devices, err := core.EnumerateAll(domain)
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Printf("%s\t%s\n", d.ID, d.Name)
		}
		return nil
	},
}

var probePeekFlag bool

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report which backend a domain would select on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := parseDomain(domainFlag)
		if err != nil {
			return err
		}
		ctx, err := core.NewContext(domain)
		if err != nil {
			return err
		}
		defer ctx.Destroy()
		fmt.Printf("domain=%s backend=%s\n", domain, ctx.BackendName())
		if probePeekFlag {
			if err := peekOneFrame(ctx); err != nil {
				return err
			}
		}
		return nil
	},
}

// peekOneFrame runs the selected backend just long enough to land one
// frame in the context's debug slot, then reports it via DebugPeek
// without ever touching the producer's callback path — the diagnostic
// counterpart to `capture`, which reports aggregate stats instead.
func peekOneFrame(ctx *core.Context) error {
	format, err := backendDefaultFormat(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Configure(core.ConfigureRequest{Format: format}); err != nil {
		return err
	}
	if err := ctx.Start(func(env *core.Envelope, userData interface{}) {
		_ = core.ReleaseBuffer(ctx, env)
	}, nil); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	if err := ctx.Stop(); err != nil {
		return err
	}
	info := ctx.DebugPeek()
	fmt.Printf("debug_peek: timestamp_us=%d data_size_bytes=%d\n", info.TimestampUs, info.DataSizeBytes)
	return nil
}

func parseDomain(s string) (core.Domain, error) {
	switch s {
	case "camera":
		return core.Camera, nil
	case "microphone":
		return core.Microphone, nil
	case "loopback":
		return core.Loopback, nil
	case "screen":
		return core.Screen, nil
	default:
		return 0, fmt.Errorf("unknown --domain %q (want camera|microphone|loopback|screen)", s)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&domainFlag, "domain", "camera", "capture domain (camera|microphone|loopback|screen)")
	probeCmd.Flags().BoolVar(&probePeekFlag, "peek", false, "briefly run the backend and report one frame via DebugPeek")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(enumerateCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(newCaptureCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
