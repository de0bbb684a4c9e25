package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/lifecycle"
	"github.com/smazurov/screencap/internal/logging"
)

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var opts captureOptions
	var mode string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record or broadcast a capture session",
		Long: `Builds a capture pipeline for the chosen target and records until interrupted or until ` +
			`--duration elapses. SIGUSR1 toggles pause. File output is saved under --save-dir with the ` +
			`next free autosave name, which is printed on success.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := opts.load(cmd); err != nil {
				fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
				os.Exit(1)
			}
			logger := logging.GetLogger("record")

			m, err := capture.ParseMode(mode)
			if err == nil && m == capture.ModeScreenshot {
				err = errors.New("use the screenshot command for still images")
			}
			if err != nil {
				logger.Error("Invalid mode", "error", err)
				os.Exit(2)
			}

			os.Exit(runRecord(cmd.Context(), &opts, m, duration, logger))
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(capture.ModeScreencast), "Capture mode: screencast, broadcast or webcam")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 records until interrupted)")
	opts.addStackFlags(cmd)
	opts.addEncodeFlags(cmd)
	opts.addTargetFlags(cmd)

	return cmd
}

func runRecord(ctx context.Context, opts *captureOptions, mode capture.Mode, duration time.Duration, logger *slog.Logger) int {
	stackOpts, err := opts.stackOptions()
	if err != nil {
		logger.Error("Invalid capture options", "error", err)
		return 2
	}
	stack, err := NewStack(stackOpts)
	if err != nil {
		logger.Error("Failed to set up capture", "error", err)
		return 1
	}
	defer stack.Recorder.Close()

	sel, err := opts.selections(mode)
	if err != nil {
		logger.Error("Invalid selection", "error", err)
		return 2
	}
	sess, err := stack.Recorder.Create(ctx, sel)
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err, "kind", capture.KindOf(err))
		return 1
	}
	ctrl := sess.Controller()
	logger.Info("Pipeline built", "engine", stack.EngineName, "session_id", sess.ID, "pipeline", ctrl.Describe())
	for _, w := range sess.Request.Warnings {
		logger.Warn(w)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	defer signal.Stop(toggle)

	if err := stack.Recorder.Control("start"); err != nil {
		logger.Error("Failed to start recording", "error", err)
		return 1
	}
	logger.Info("Recording", "mode", mode, "output", ctrl.TempFile())

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	finished := false
wait:
	for {
		select {
		case <-sigCtx.Done():
			break wait
		case <-timeout:
			break wait
		case <-ctrl.Done():
			finished = true
			break wait
		case <-toggle:
			action := "pause"
			if ctrl.State() == lifecycle.StatePaused {
				action = "resume"
			}
			if err := stack.Recorder.Control(action); err != nil {
				logger.Warn("Failed to toggle pause", "action", action, "error", err)
				continue
			}
			logger.Info("Recording toggled", "state", ctrl.State())
		}
	}
	// A second interrupt kills the process.
	stop()

	if !finished {
		logger.Info("Stopping")
		if err := stack.Recorder.Control("stop"); err != nil && !errors.Is(err, lifecycle.ErrInvalidState) {
			logger.Error("Failed to stop recording", "error", err)
			return 1
		}
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), opts.StopTimeout+5*time.Second)
	defer cancel()
	res, err := stack.Recorder.Wait(waitCtx)
	if err != nil {
		logger.Error("Output was not flushed", "error", err)
		return 1
	}
	if res.Err != nil {
		logger.Error("Recording failed", "error", res.Err)
		if res.Path == "" {
			return 1
		}
		if path, saveErr := stack.Recorder.Save(); saveErr != nil {
			logger.Error("Failed to save partial recording", "error", saveErr, "temp_file", res.Path)
		} else {
			logger.Warn("Partial recording saved", "path", path)
			fmt.Println(path)
		}
		return 1
	}

	if !mode.FileSink() {
		logger.Info("Broadcast ended")
		return 0
	}
	path, err := stack.Recorder.Save()
	if err != nil {
		logger.Error("Failed to save recording", "error", err, "temp_file", res.Path)
		return 1
	}
	logger.Info("Recording saved", "path", path)
	fmt.Println(path)
	return 0
}
