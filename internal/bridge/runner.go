package bridge

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single bridge invocation.
	DefaultTimeout = 40 * time.Second

	// InstallTimeout bounds package installs, which push an APK over USB.
	InstallTimeout = 180 * time.Second

	// MaxOutputSize caps captured stdout/stderr per invocation.
	MaxOutputSize = 256 * 1024
)

// Result holds the outcome of one bridge executable invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Detail returns the most useful diagnostic text from the invocation.
func (r Result) Detail() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		return s
	}
	return "no output"
}

// Runner executes the bridge binary. Factored out so tests can substitute a
// fake without a real adb install.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, args ...string) (Result, error)
}

// execRunner runs the real executable with a bounded timeout and capped
// output capture.
type execRunner struct {
	executable string
}

func (r *execRunner) Run(ctx context.Context, timeout time.Duration, args ...string) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.executable, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: MaxOutputSize}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: MaxOutputSize}

	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			res.ExitCode = -1
			return res, &CommandError{Args: args, Detail: "timed out after " + timeout.String()}
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, &CommandError{Args: args, Detail: err.Error()}
	}

	return res, nil
}

// limitedWriter wraps a buffer with a size limit.
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (n int, err error) {
	if w.written >= w.limit {
		// Discard additional data but don't error
		return len(p), nil
	}

	remaining := w.limit - w.written
	if len(p) > remaining {
		p = p[:remaining]
	}

	n, err = w.buf.Write(p)
	w.written += n
	return len(p), err // Return original length to avoid short write errors
}
