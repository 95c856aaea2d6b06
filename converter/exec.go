package converter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// command configures one converter subprocess invocation.
type command struct {
	binary      string
	args        []string
	gracePeriod time.Duration
}

// result holds the output and status of a completed subprocess.
type result struct {
	stdout   []byte
	stderr   []byte
	exitCode int
	duration time.Duration
}

// run executes a converter subprocess and waits for it to complete.
// If the context is canceled, SIGTERM is sent first, then SIGKILL after
// the grace period.
func run(ctx context.Context, cmd command) (*result, error) {
	if cmd.binary == "" {
		return nil, fmt.Errorf("converter: binary is required")
	}

	gracePeriod := cmd.gracePeriod
	if gracePeriod == 0 {
		gracePeriod = 5 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.binary, cmd.args...) //nolint:gosec // invoking the configured converter binary is the point
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	// Use process group so we can kill the entire tree
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Don't let exec.CommandContext kill with SIGKILL immediately
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = gracePeriod

	start := time.Now()
	err := c.Run()
	duration := time.Since(start)

	// ProcessState is nil when the binary never started (e.g. not found).
	exitCode := -1
	if c.ProcessState != nil {
		exitCode = c.ProcessState.ExitCode()
	}

	res := &result{
		stdout:   stdout.Bytes(),
		stderr:   stderr.Bytes(),
		exitCode: exitCode,
		duration: duration,
	}

	if err != nil {
		// Context cancellation is the expected way to kill a conversion
		if ctx.Err() != nil {
			return res, fmt.Errorf("converter: killed by context: %w", ctx.Err())
		}
		return res, fmt.Errorf("converter: exit code %d: %w", res.exitCode, err)
	}

	return res, nil
}
