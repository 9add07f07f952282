package investigation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
)

const (
	defaultInvestigateTimeout = time.Hour
	storeAttempts             = 5
)

var errRunnerMissing = errors.New("investigation runner is not configured")

// InvestigationRunner performs one investigation. A nil error means the
// issue counts as investigated.
type InvestigationRunner interface {
	Run(ctx context.Context, item domain.QueueItem) error
}

// CommandRunner runs an external program as `<program> [args...] <repo> <issue>`.
type CommandRunner struct {
	Program string
	Args    []string
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

func (r CommandRunner) Run(ctx context.Context, item domain.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	program := strings.TrimSpace(r.Program)
	if program == "" {
		return errRunnerMissing
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultInvestigateTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, r.Args...), item.Repository, strconv.Itoa(item.IssueNumber))
	cmd := exec.CommandContext(runCtx, program, args...)
	cmd.Env = append(os.Environ(),
		"INVESTIGATE_REPO="+item.Repository,
		"INVESTIGATE_ISSUE="+strconv.Itoa(item.IssueNumber),
		"INVESTIGATE_REINVESTIGATION="+strconv.FormatBool(item.IsReinvestigation),
	)
	cmd.Stdout = writerOr(r.Stdout, os.Stdout)
	cmd.Stderr = writerOr(r.Stderr, os.Stderr)

	runErr := cmd.Run()
	if runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("investigation timed out after %s", timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return fmt.Errorf("investigation exited with code %d", exitErr.ExitCode())
		}
		return errs.Wrap(runErr, "run investigation")
	}
	return nil
}

func writerOr(w io.Writer, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

type DrainInput struct {
	// MaxItems stops the drain after that many items; 0 means until empty.
	MaxItems int
}

type DrainResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Drain is the worker loop: it claims the oldest item, runs the
// investigation and records success in the ledger, until the queue is empty.
// A failed investigation is logged and not retried; the next scan picks the
// issue up again.
func (s *Service) Drain(ctx context.Context, input DrainInput) (DrainResult, error) {
	if err := checkContext(ctx); err != nil {
		return DrainResult{}, err
	}
	if s.runner == nil {
		return DrainResult{}, errRunnerMissing
	}
	logCtx := logging.WithAttrs(s.logCtx(ctx), slog.Int("pid", os.Getpid()))
	logging.Info(logCtx, "worker drain started")

	var result DrainResult
	for input.MaxItems <= 0 || result.Processed < input.MaxItems {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		popped, err := retryStore(logCtx, s.storeBackOff, "pop queue", func() (popResult, error) {
			item, ok, err := s.Pop(ctx)
			return popResult{item: item, ok: ok}, err
		})
		if err != nil {
			return result, err
		}
		if !popped.ok {
			break
		}
		item := popped.item
		result.Processed++

		itemCtx := logging.WithAttrs(
			logCtx,
			slog.String("repo", item.Repository),
			slog.Int("issue", item.IssueNumber),
			slog.Bool("reinvestigation", item.IsReinvestigation),
		)
		logging.Info(itemCtx, "investigation started")

		if err := s.runner.Run(ctx, item); err != nil {
			result.Failed++
			s.metrics.ObserveWorker("investigation_failed")
			logging.Warn(itemCtx, "investigation failed", slog.Any("err", errs.Loggable(err)))
			continue
		}

		investigatedAt := s.now()
		if _, err := retryStore(itemCtx, s.storeBackOff, "record investigation", func() (struct{}, error) {
			return struct{}{}, s.RecordInvestigation(ctx, item.Repository, item.IssueNumber, investigatedAt)
		}); err != nil {
			result.Failed++
			logging.Error(itemCtx, "investigation result not recorded", slog.Any("err", errs.Loggable(err)))
			continue
		}
		result.Succeeded++
		s.metrics.ObserveWorker("investigation_succeeded")
	}

	logging.Info(
		logCtx,
		"worker drain finished",
		slog.Int("processed", result.Processed),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

type popResult struct {
	item domain.QueueItem
	ok   bool
}

// retryStore retries a storage call with exponential backoff. Invalid input
// and context cancellation are not retried.
func retryStore[T any](ctx context.Context, newBackOff func() backoff.BackOff, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		out, err := fn()
		if err == nil {
			return out, nil
		}
		if errs.IsAny(err, context.Canceled, context.DeadlineExceeded,
			domain.ErrRepositoryRequired, domain.ErrInvalidRepository, domain.ErrInvalidIssueNumber) {
			return out, backoff.Permanent(err)
		}
		logging.Warn(ctx, "storage call failed", slog.String("op", op), slog.Int("attempt", attempt), slog.Any("err", errs.Loggable(err)))
		return out, err
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(storeAttempts))
}

func defaultStoreBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
