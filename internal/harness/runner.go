package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/zjrosen/oompa/internal/log"
)

// DefaultTimeout bounds a single agent invocation.
const DefaultTimeout = 300 * time.Second

// ErrTimeout is returned when an invocation exceeds its deadline.
var ErrTimeout = errors.New("agent invocation timed out")

// Result captures one finished subprocess.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes agent invocations. Implemented by SubprocessRunner;
// tests substitute scripted runners.
type Runner interface {
	Run(ctx context.Context, h Harness, inv Invocation) (Result, error)
}

// SubprocessRunner runs invocations as OS subprocesses.
type SubprocessRunner struct {
	// Timeout bounds each invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Run builds the command for the invocation and executes it to completion,
// capturing stdout and stderr. A non-zero exit is not an error; it is
// reported through Result.ExitCode so callers can decide what it means.
func (r *SubprocessRunner) Run(ctx context.Context, h Harness, inv Invocation) (Result, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := h.BuildCmd(inv)
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("harness %s built an empty command", h.Kind())
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...) //nolint:gosec // G204: argv comes from the harness adapter
	cmd.Dir = inv.WorkDir
	if stdin := h.Stdin(inv.Prompt); stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug(log.CatHarness, "running agent",
		"kind", string(h.Kind()), "dir", inv.WorkDir, "resume", inv.Resume)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runCtx.Err() == context.DeadlineExceeded {
		log.Warn(log.CatHarness, "agent timed out",
			"kind", string(h.Kind()), "after", elapsed.String())
		return result, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Spawn-level failure: binary missing, workdir gone, context canceled.
		return result, fmt.Errorf("run %s: %w", argv[0], err)
	}

	log.Debug(log.CatHarness, "agent finished",
		"kind", string(h.Kind()), "exit", result.ExitCode, "took", elapsed.String())
	return result, nil
}
