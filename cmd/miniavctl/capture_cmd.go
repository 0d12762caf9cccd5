package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/miniav/miniav/internal/core"
)

func newCaptureCmd() *cobra.Command {
	var durationSec int
	var targetStr string

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run a short capture against the chosen domain and print frame/packet stats",
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

			format, err := backendDefaultFormat(ctx)
			if err != nil {
				return err
			}

			var target *core.Target
			if targetStr != "" {
				t, err := core.ParseTargetString(targetStr)
				if err != nil {
					return err
				}
				target = &t
			}

			if err := ctx.Configure(core.ConfigureRequest{Format: format, Target: target}); err != nil {
				return err
			}

			var count int
			var totalBytes int
			done := make(chan struct{})
			deadline := time.After(time.Duration(durationSec) * time.Second)

			err = ctx.Start(func(env *core.Envelope, userData interface{}) {
				count++
				totalBytes += env.DataSizeBytes
				_ = core.ReleaseBuffer(ctx, env)
			}, nil)
			if err != nil {
				return err
			}

			go func() {
				<-deadline
				close(done)
			}()
			<-done

			if err := ctx.Stop(); err != nil {
				return err
			}
			fmt.Printf("backend=%s frames=%d bytes=%d outstanding=%d\n", ctx.BackendName(), count, totalBytes, ctx.OutstandingEnvelopes())
			return nil
		},
	}
	cmd.Flags().IntVar(&durationSec, "duration", 5, "capture duration in seconds")
	cmd.Flags().StringVar(&targetStr, "target", "", "target string per the grammar in the capture core docs")
	return cmd
}

func backendDefaultFormat(ctx *core.Context) (core.Format, error) {
	// Returns a fixed per-domain format (1280x720 BGRA32 @30 for video,
	// 48 kHz stereo S16 for audio); it does not query the backend's
	// GetDefaultFormat.
	switch ctx.Domain {
	case core.Camera, core.Screen:
		return core.Format{Video: &core.VideoFormat{Width: 1280, Height: 720, PixelFormat: core.PixFmtBGRA32, FPSNum: 30, FPSDen: 1}}, nil
	default:
		return core.Format{Audio: &core.AudioFormat{SampleRate: 48000, Channels: 2, SampleFormat: core.SampleFmtS16, FramesPerCallback: 960}}, nil
	}
}
