package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned by Output when the command outlives its deadline.
var ErrTimeout = errors.New("command timed out")

// Runner abstracts command execution so packages can be unit-tested without
// spawning real processes (ping).
type Runner interface {
	// Output runs the command and returns its combined stdout and stderr.
	// A non-zero exit status is reported as an error alongside the output.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct {
	// Timeout bounds every invocation. Zero leaves the caller's context in charge.
	Timeout time.Duration
}

func NewOSRunner(timeout time.Duration) *OSRunner {
	return &OSRunner{Timeout: timeout}
}

func (r *OSRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	// Kill the process if it ignores the signal and keeps stdout open.
	cmd.WaitDelay = time.Second
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	out := buf.String()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%s: %w", name, ErrTimeout)
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		msg := strings.TrimSpace(out)
		if msg != "" {
			return out, fmt.Errorf("%s: %s: %s", name, err.Error(), lastLine(msg))
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
