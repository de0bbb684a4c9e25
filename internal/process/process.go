package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// ErrNotRunning is returned when signalling a process that is not running.
var ErrNotRunning = errors.New("process not running")

// Process supervises one subprocess: start, suspend, interrupt, and
// force kill after a grace period.
type Process struct {
	id              string
	args            []string
	cmd             *exec.Cmd
	mu              sync.Mutex
	state           State
	exitCode        int
	done            chan struct{}
	logger          *slog.Logger
	processLogger   *slog.Logger // logger for process output (nil = use logger)
	logParser       LogParser    // parses process output for log level (nil = no parsing)
	outputHandler   OutputHandler
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up
}

// New creates a process for args. It does not start it.
func New(id string, args []string, logger *slog.Logger) *Process {
	return NewWithOutput(id, args, logger, nil)
}

// NewWithOutput creates a process with an output handler.
// The handler receives each line of stdout/stderr from the subprocess.
func NewWithOutput(id string, args []string, logger *slog.Logger, handler OutputHandler) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		state:           StateIdle,
		done:            make(chan struct{}),
		outputHandler:   handler,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// SetLogParser sets a custom logger and log parser for process output.
func (p *Process) SetLogParser(logger *slog.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetTimeouts overrides the grace period before SIGKILL and the wait after it.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// CommandLine returns the arguments joined for display.
func (p *Process) CommandLine() string {
	return strings.Join(p.args, " ")
}

// Start launches the subprocess and returns once it is running. Output is
// streamed in the background; Done is closed when the process has exited
// and its output has been drained.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return fmt.Errorf("process %s already started", p.id)
	}
	if len(p.args) == 0 {
		p.state = StateExited
		p.exitCode = 1
		close(p.done)
		return fmt.Errorf("empty command")
	}

	p.cmd = exec.Command(p.args[0], p.args[1:]...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", p.CommandLine())
		p.state = StateExited
		p.exitCode = 1
		close(p.done)
		return err
	}
	p.state = StateRunning
	p.logger.Info("Process started", "id", p.id, "pid", p.cmd.Process.Pid, "command", p.CommandLine())

	var output sync.WaitGroup
	output.Add(2)
	go func() {
		defer output.Done()
		p.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer output.Done()
		p.streamOutput(stderr, "stderr")
	}()

	go func() {
		output.Wait()
		err := p.cmd.Wait()
		code := p.handleProcessExit(err)

		p.mu.Lock()
		p.state = StateExited
		p.exitCode = code
		p.mu.Unlock()

		p.logger.Info("Process exited", "id", p.id, "exit_code", code)
		close(p.done)
	}()
	return nil
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code once Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// State returns the supervision state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Interrupt sends SIGINT without waiting.
func (p *Process) Interrupt() error {
	return p.signal(syscall.SIGINT, StateRunning, StateStopping)
}

// Suspend stops the process group with SIGSTOP.
func (p *Process) Suspend() error {
	return p.signal(syscall.SIGSTOP, StateRunning, StateSuspended)
}

// Resume continues a suspended process group with SIGCONT.
func (p *Process) Resume() error {
	return p.signal(syscall.SIGCONT, StateSuspended, StateRunning)
}

func (p *Process) signal(sig syscall.Signal, from, to State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil || p.state == StateExited {
		return ErrNotRunning
	}
	if p.state != from {
		return fmt.Errorf("process %s is %s, cannot send %s", p.id, p.state, sig)
	}

	p.logger.Debug("Signalling process", "id", p.id, "pid", p.cmd.Process.Pid, "signal", sig.String())
	target := p.cmd.Process.Pid
	if sig == syscall.SIGSTOP || sig == syscall.SIGCONT {
		target = -target
	}
	if err := syscall.Kill(target, sig); err != nil {
		return fmt.Errorf("send %s: %w", sig, err)
	}
	p.state = to
	return nil
}

// Stop interrupts the process and waits for it to exit, force-killing it
// after the grace period. It returns the exit code.
func (p *Process) Stop() int {
	switch p.State() {
	case StateIdle:
		return 0
	case StateSuspended:
		if err := p.Resume(); err != nil {
			p.logger.Warn("Failed to resume before stop", "error", err)
		}
	}
	if err := p.Interrupt(); err != nil && !errors.Is(err, ErrNotRunning) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
	return p.waitForExit(p.gracefulTimeout)
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(timeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", timeout)
	p.mu.Lock()
	pid := p.cmd.Process.Pid
	p.mu.Unlock()
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Error("Failed to kill process", "error", err)
	}

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal")
	}
	return 137
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		// Killed by a signal.
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}
	return 1
}

func (p *Process) handleProcessExit(processErr error) int {
	exitCode := exitCodeFromError(processErr)
	if processErr != nil && exitCode == 1 {
		p.logger.Error("Process exited with error", "error", processErr)
	}
	return exitCode
}

// streamOutput forwards output lines to the handler and logs them at the
// level the LogParser reports.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}
