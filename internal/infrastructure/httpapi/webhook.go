package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	gh "github.com/google/go-github/v68/github"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
	"investigator/internal/usecase/investigation"
)

const (
	eventPing         = "ping"
	eventIssues       = "issues"
	eventIssueComment = "issue_comment"
)

func (h *handler) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	eventType := gh.WebHookType(r)
	ctx := logging.WithAttrs(
		r.Context(),
		slog.String("event", eventType),
		slog.String("delivery", gh.DeliveryID(r)),
	)

	payload, err := gh.ValidatePayload(r, h.secret)
	if err != nil {
		logging.Warn(ctx, "webhook payload rejected", slog.Any("err", errs.Loggable(err)))
		status := http.StatusBadRequest
		if len(h.secret) > 0 {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err.Error())
		return
	}

	switch eventType {
	case eventPing, eventIssues, eventIssueComment:
	default:
		writeIgnored(w, eventType)
		return
	}

	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, errs.Wrap(err, "parse webhook").Error())
		return
	}

	switch e := event.(type) {
	case *gh.PingEvent:
		writeJSON(w, http.StatusOK, map[string]any{"status": "pong", "hookId": e.GetHookID()})

	case *gh.IssuesEvent:
		if e.GetAction() != "opened" {
			writeIgnored(w, eventType+"."+e.GetAction())
			return
		}
		repo, issue := e.GetRepo().GetFullName(), e.GetIssue().GetNumber()
		ctx = logging.WithRequest(ctx, middleware.GetReqID(ctx), repo, issue)
		out, err := h.svc.IssueOpened(ctx, repo, issue)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)

	case *gh.IssueCommentEvent:
		if e.GetAction() != "created" {
			writeIgnored(w, eventType+"."+e.GetAction())
			return
		}
		commenter := e.GetComment().GetUser().GetLogin()
		if commenter == "" {
			commenter = e.GetSender().GetLogin()
		}
		repo, issue := e.GetRepo().GetFullName(), e.GetIssue().GetNumber()
		ctx = logging.WithRequest(ctx, middleware.GetReqID(ctx), repo, issue)
		out, err := h.svc.CommentCreated(ctx, investigation.CommentInput{
			Repository:  repo,
			IssueNumber: issue,
			Commenter:   commenter,
		})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)

	default:
		writeIgnored(w, eventType)
	}
}

func writeIgnored(w http.ResponseWriter, event string) {
	writeJSON(w, http.StatusAccepted, ignoredResponse{
		Status: string(domain.CommentIgnored),
		Reason: domain.ReasonUnsupportedEvent,
		Event:  event,
	})
}
