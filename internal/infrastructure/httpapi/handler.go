package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
	"investigator/internal/infrastructure/metrics"
	"investigator/internal/usecase/investigation"
)

const maxBodyBytes = 1 << 20

// Service is the part of the investigation service the HTTP surface uses.
type Service interface {
	RequestInvestigation(ctx context.Context, repo string, issue int) (investigation.InvestigationOutcome, error)
	IssueOpened(ctx context.Context, repo string, issue int) (investigation.InvestigationOutcome, error)
	CommentCreated(ctx context.Context, input investigation.CommentInput) (investigation.CommentOutcome, error)
	RecordInvestigation(ctx context.Context, repo string, issue int, at time.Time) error
	Status(ctx context.Context) (investigation.StatusSnapshot, error)
}

type Options struct {
	// WebhookSecret enables X-Hub-Signature-256 verification when set.
	WebhookSecret string
	Metrics       *metrics.Metrics
}

type handler struct {
	svc    Service
	secret []byte
}

type errorResponse struct {
	Error string `json:"error"`
}

type ignoredResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Event  string `json:"event,omitempty"`
}

type investigateRequest struct {
	Repo  string      `json:"repo" validate:"required,repo_slug"`
	Issue issueNumber `json:"issue" validate:"required,gt=0"`
}

type completeRequest struct {
	Repo           string      `json:"repo" validate:"required,repo_slug"`
	Issue          issueNumber `json:"issue" validate:"required,gt=0"`
	InvestigatedAt *time.Time  `json:"investigatedAt,omitempty"`
}

// issueNumber accepts 42 and "42".
type issueNumber int

func (n *issueNumber) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("issue must be an integer, got %s", b)
	}
	*n = issueNumber(v)
	return nil
}

func NewHandler(svc Service, opts Options) http.Handler {
	h := &handler{
		svc:    svc,
		secret: []byte(opts.WebhookSecret),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/investigate", h.handleInvestigate)
	r.Post("/webhooks/github", h.handleGitHubWebhook)
	r.Post("/investigations/complete", h.handleComplete)
	r.Get("/status", h.handleStatus)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *handler) handleInvestigate(w http.ResponseWriter, r *http.Request) {
	var req investigateRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := logging.WithRequest(r.Context(), middleware.GetReqID(r.Context()), req.Repo, int(req.Issue))
	out, err := h.svc.RequestInvestigation(ctx, req.Repo, int(req.Issue))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var at time.Time
	if req.InvestigatedAt != nil {
		at = req.InvestigatedAt.UTC()
	}
	ctx := logging.WithRequest(r.Context(), middleware.GetReqID(r.Context()), req.Repo, int(req.Issue))
	if err := h.svc.RecordInvestigation(ctx, req.Repo, int(req.Issue), at); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repository": req.Repo, "issue": int(req.Issue), "recorded": true})
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Status(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errs.Wrap(err, "decode request body")
	}
	return validateRequest(dst)
}

// writeServiceError maps invalid targets to 400; anything else is a storage
// or internal failure.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if errs.IsAny(err, domain.ErrRepositoryRequired, domain.ErrInvalidRepository, domain.ErrInvalidIssueNumber) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logging.Error(ctx, "request failed", slog.Any("err", errs.Loggable(err)))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logging.WithAttrs(
			r.Context(),
			slog.String("component", "httpapi"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Info(
			ctx,
			"http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}
