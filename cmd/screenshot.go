package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/logging"
)

// CreateScreenshotCmd creates the screenshot command.
func CreateScreenshotCmd() *cobra.Command {
	var opts captureOptions
	var delay, timeout time.Duration

	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture a single PNG frame",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := opts.load(cmd); err != nil {
				fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
				os.Exit(1)
			}
			logger := logging.GetLogger("screenshot")

			stackOpts, err := opts.stackOptions()
			if err != nil {
				logger.Error("Invalid capture options", "error", err)
				os.Exit(2)
			}
			stack, err := NewStack(stackOpts)
			if err != nil {
				logger.Error("Failed to set up capture", "error", err)
				os.Exit(1)
			}
			defer stack.Recorder.Close()

			sel, err := opts.selections(capture.ModeScreenshot)
			if err != nil {
				logger.Error("Invalid selection", "error", err)
				os.Exit(2)
			}

			if delay > 0 {
				logger.Info("Waiting before capture", "delay", delay)
				time.Sleep(delay)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			sess, err := stack.Recorder.Create(ctx, sel)
			if err != nil {
				logger.Error("Failed to build pipeline", "error", err, "kind", capture.KindOf(err))
				os.Exit(1)
			}
			logger.Debug("Pipeline built", "engine", stack.EngineName, "pipeline", sess.Controller().Describe())

			if err := stack.Recorder.Control("start"); err != nil {
				logger.Error("Failed to start capture", "error", err)
				os.Exit(1)
			}
			res, err := stack.Recorder.Wait(ctx)
			if err != nil {
				logger.Error("Screenshot did not finish", "error", err)
				os.Exit(1)
			}
			if res.Err != nil {
				logger.Error("Screenshot failed", "error", res.Err)
				os.Exit(1)
			}

			path, err := stack.Recorder.Save()
			if err != nil {
				logger.Error("Failed to save screenshot", "error", err)
				os.Exit(1)
			}
			fmt.Println(path)
		},
	}

	opts.addStackFlags(cmd)
	opts.addTargetFlags(cmd)
	f := cmd.Flags()
	f.BoolVar(&opts.Cursor, "cursor", false, "Draw the mouse pointer")
	f.BoolVar(&opts.Borders, "borders", false, "Include window decorations for --target window")
	f.BoolVar(&opts.TestSource, "test-source", false, "Use a synthetic video source")
	f.DurationVar(&delay, "delay", 0, "Wait this long before capturing")
	f.DurationVar(&timeout, "timeout", 15*time.Second, "Give up if no frame arrives in time")

	return cmd
}
