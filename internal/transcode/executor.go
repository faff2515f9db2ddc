package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// ErrTimeout is returned when a subprocess outlives its timeout.
var ErrTimeout = errors.New("command timed out")

// TimeoutConfig holds timeout configuration for subprocess execution.
type TimeoutConfig struct {
	// Maximum time to wait for subprocess completion
	Timeout time.Duration

	// Time to wait after SIGINT before sending SIGKILL
	GracePeriod time.Duration
}

// DefaultTimeoutConfig returns sensible default timeout settings.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout:     time.Minute,
		GracePeriod: 500 * time.Millisecond,
	}
}

// TimeoutExecutor runs subprocesses with a deadline. On timeout or
// cancellation it sends SIGINT, waits out the grace period, then kills.
type TimeoutExecutor struct {
	config TimeoutConfig
	logger *log.Logger
}

// NewTimeoutExecutor creates a new timeout executor with the given config.
func NewTimeoutExecutor(config TimeoutConfig, logger *log.Logger) *TimeoutExecutor {
	if logger == nil {
		logger = log.Default()
	}
	return &TimeoutExecutor{config: config, logger: logger}
}

// Run starts cmd and waits for it, stopping it when ctx is done or the
// timeout expires.
func (te *TimeoutExecutor) Run(ctx context.Context, cmd *exec.Cmd) error {
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timeout := time.NewTimer(te.config.Timeout)
	defer timeout.Stop()

	select {
	case err := <-done:
		te.logExecution(cmd, time.Since(start), err)
		return err

	case <-timeout.C:
		te.logger.Warn("Command timed out", "command", cmd.Path, "timeout", te.config.Timeout)
		te.stop(cmd.Process, done)
		return fmt.Errorf("%w after %v", ErrTimeout, te.config.Timeout)

	case <-ctx.Done():
		te.logger.Debug("Command cancelled", "command", cmd.Path)
		te.stop(cmd.Process, done)
		return ctx.Err()
	}
}

// stop interrupts proc, kills it after the grace period and reaps it.
func (te *TimeoutExecutor) stop(proc *os.Process, done <-chan error) {
	if err := sendInterrupt(proc); err != nil {
		te.logger.Debug("Failed to send interrupt signal", "error", err)
	}

	grace := time.NewTimer(te.config.GracePeriod)
	defer grace.Stop()

	select {
	case <-done:
		return
	case <-grace.C:
	}

	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		te.logger.Error("Failed to kill process", "error", err)
	}
	<-done
}

func (te *TimeoutExecutor) logExecution(cmd *exec.Cmd, d time.Duration, err error) {
	if err != nil {
		te.logger.Debug("Subprocess failed", "command", cmd.Path, "args", cmd.Args[1:], "duration", d, "error", err)
		return
	}
	te.logger.Debug("Subprocess executed", "command", cmd.Path, "args", cmd.Args[1:], "duration", d)
}

// sendInterrupt sends an interrupt signal to the process (platform-specific).
func sendInterrupt(proc *os.Process) error {
	if runtime.GOOS == "windows" {
		// Windows doesn't have SIGINT, use Kill directly
		return proc.Kill()
	}
	return proc.Signal(syscall.SIGINT)
}
