package execx

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func TestOSRunner_CombinedOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	out, err := NewOSRunner(0).Output(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !strings.Contains(out, "out") || !strings.Contains(out, "err") {
		t.Fatalf("out=%q", out)
	}
}

func TestOSRunner_NonZeroExitKeepsOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	out, err := NewOSRunner(0).Output(context.Background(), "sh", "-c", "echo unreachable; exit 1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(out, "unreachable") {
		t.Fatalf("out=%q", out)
	}
	if !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("err=%v", err)
	}
}

func TestOSRunner_Timeout(t *testing.T) {
	t.Parallel()
	requireShell(t)

	start := time.Now()
	_, err := NewOSRunner(100*time.Millisecond).Output(context.Background(), "sh", "-c", "sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout not enforced: %s", elapsed)
	}
}
