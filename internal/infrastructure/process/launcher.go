package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/ports"
)

// Spec describes the worker command line.
type Spec struct {
	Program string
	Args    []string
	Env     []string
	Dir     string
	LogFile string
}

// CommandLine renders the program and its arguments for logs and markers.
func (s Spec) CommandLine() string {
	return strings.Join(append([]string{s.Program}, s.Args...), " ")
}

// Launcher starts the worker in its own session so it outlives the request
// (and the server) that launched it. It keeps one goroutine per child to
// reap it on exit; callers never wait on the child.
type Launcher struct {
	spec Spec
	ctx  context.Context

	mu      sync.Mutex
	running map[int]time.Time
}

var _ ports.WorkerLauncher = (*Launcher)(nil)

// NewLauncher returns a launcher. baseCtx carries the logger used for exit
// reports; it does not bound the child's lifetime.
func NewLauncher(baseCtx context.Context, spec Spec) *Launcher {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Launcher{
		spec:    spec,
		ctx:     logging.WithAttrs(context.WithoutCancel(baseCtx), slog.String("component", "process.launcher")),
		running: make(map[int]time.Time),
	}
}

func (l *Launcher) Launch(ctx context.Context) (ports.LaunchedProcess, error) {
	if ctx == nil {
		return ports.LaunchedProcess{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ports.LaunchedProcess{}, errs.Wrap(err, "check context")
	}

	program := strings.TrimSpace(l.spec.Program)
	if program == "" {
		return ports.LaunchedProcess{}, errors.New("worker program is required")
	}

	// exec.Command, not CommandContext: the request context must not kill it.
	cmd := exec.Command(program, l.spec.Args...)
	cmd.Dir = l.spec.Dir
	cmd.Env = append(os.Environ(), l.spec.Env...)
	cmd.Stdin = nil
	detach(cmd)

	logFile, err := openLogFile(l.spec.LogFile)
	if err != nil {
		return ports.LaunchedProcess{}, err
	}
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return ports.LaunchedProcess{}, errs.Wrapf(errs.WithStack(err), "start worker %q", program)
	}

	pid := cmd.Process.Pid
	l.track(pid)
	go l.reap(cmd, logFile)

	logging.Info(l.ctx, "worker launched", slog.Int("pid", pid), slog.String("command", l.spec.CommandLine()))
	return ports.LaunchedProcess{PID: pid, Command: l.spec.CommandLine()}, nil
}

// Running returns the pids of children launched by this process that have
// not exited yet.
func (l *Launcher) Running() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]int, 0, len(l.running))
	for pid := range l.running {
		out = append(out, pid)
	}
	return out
}

func (l *Launcher) track(pid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running[pid] = time.Now().UTC()
}

func (l *Launcher) reap(cmd *exec.Cmd, logFile *os.File) {
	err := cmd.Wait()
	if logFile != nil {
		_ = logFile.Close()
	}

	pid := cmd.Process.Pid
	l.mu.Lock()
	startedAt := l.running[pid]
	delete(l.running, pid)
	l.mu.Unlock()

	attrs := []slog.Attr{
		slog.Int("pid", pid),
		slog.Int("exit_code", exitCode(cmd, err)),
		slog.Duration("elapsed", time.Since(startedAt)),
	}
	if err != nil {
		logging.Warn(l.ctx, "worker exited with error", append(attrs, slog.Any("err", errs.Loggable(err)))...)
		return
	}
	logging.Info(l.ctx, "worker exited", attrs...)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func openLogFile(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrapf(err, "create worker log directory %q", dir)
		}
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.Wrapf(err, "open worker log %q", trimmed)
	}
	return f, nil
}
