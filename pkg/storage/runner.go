package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/marmos91/storagehub/internal/logger"
	"github.com/marmos91/storagehub/pkg/provision/models"
)

// Runner executes external storage tools (zfs, setquota, du).
// It is an interface so backends are testable without the tools
// installed.
type Runner interface {
	// Run executes a command and returns its captured output. A non-zero
	// exit code is reported in Result, not as an error; err is non-nil
	// only when the command could not run at all (missing binary,
	// timeout, cancellation).
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Result is the outcome of a tool invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// execRunner runs commands through os/exec with a bounded timeout.
type execRunner struct {
	timeout time.Duration
}

// NewRunner returns a Runner that enforces the given per-invocation
// timeout on top of any caller-supplied context deadline.
func NewRunner(timeout time.Duration) Runner {
	return &execRunner{timeout: timeout}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger.Debug("running command", "cmd", name, "args", args)

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		// A timed-out process is killed and surfaces as an ExitError, so
		// the context has to be consulted first.
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Error("command timed out", "cmd", name, "timeout", r.timeout)
			return res, fmt.Errorf("command %s timed out after %s: %w", name, r.timeout, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		logger.Error("command could not run", "cmd", name, "error", err)
		return res, err
	}

	return res, nil
}

// toolError wraps a tool invocation outcome as ErrBackendUnavailable,
// preserving the command line and stderr for diagnosis.
func toolError(name string, args []string, res Result, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s %v: %v", models.ErrBackendUnavailable, name, args, err)
	}
	return fmt.Errorf("%w: %s %v exited %d: %s",
		models.ErrBackendUnavailable, name, args, res.ExitCode, res.Stderr)
}
