//go:build unix

package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"investigator/internal/errs"
)

func TestSignalProbe(t *testing.T) {
	probe := NewSignalProbe()

	if !probe.Alive(os.Getpid()) {
		t.Fatalf("Alive(self) = false")
	}
	if probe.Alive(0) || probe.Alive(-1) {
		t.Fatalf("Alive() = true for non-positive pid")
	}
	if probe.Alive(1 << 30) {
		t.Fatalf("Alive() = true for pid beyond pid_max")
	}
}

func TestLauncherStartsDetachedAndReaps(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	logPath := filepath.Join(t.TempDir(), "logs", "worker.log")
	launcher := NewLauncher(context.Background(), Spec{
		Program: "/bin/sh",
		Args:    []string{"-c", "echo draining; sleep 0.2"},
		LogFile: logPath,
	})

	ctx, cancel := context.WithCancel(context.Background())
	launched, err := launcher.Launch(ctx)
	cancel()
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if launched.PID <= 0 {
		t.Fatalf("Launch() pid = %d", launched.PID)
	}
	if launched.Command != "/bin/sh -c echo draining; sleep 0.2" {
		t.Fatalf("Launch() command = %q", launched.Command)
	}

	probe := NewSignalProbe()
	if !probe.Alive(launched.PID) {
		t.Fatalf("Alive() = false right after launch, cancelled request context must not kill the worker")
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(launcher.Running()) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("worker %d was not reaped", launched.PID)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if probe.Alive(launched.PID) {
		t.Fatalf("Alive() = true after the worker was reaped")
	}

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read worker log: %v", err)
	}
	if !strings.Contains(string(raw), "draining") {
		t.Fatalf("worker log = %q", raw)
	}
}

func TestLauncherRequiresProgram(t *testing.T) {
	launcher := NewLauncher(context.Background(), Spec{})
	if _, err := launcher.Launch(context.Background()); err == nil {
		t.Fatalf("Launch() expected error for empty program")
	}
}

func TestLauncherStartFailureCarriesStack(t *testing.T) {
	launcher := NewLauncher(context.Background(), Spec{
		Program: filepath.Join(t.TempDir(), "no-such-worker"),
	})

	_, err := launcher.Launch(context.Background())
	if err == nil {
		t.Fatalf("Launch() expected error for missing program")
	}
	var se *errs.StackError
	if !errors.As(err, &se) || len(se.Stack()) == 0 {
		t.Fatalf("Launch() error = %v, want stack trace", err)
	}
	if len(launcher.Running()) != 0 {
		t.Fatalf("Running() = %v after failed launch", launcher.Running())
	}
}
