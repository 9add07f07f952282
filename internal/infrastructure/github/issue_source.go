package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"investigator/internal/bootstrap/config"
	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
	"investigator/internal/ports"
)

const listPageSize = 100

// IssueSource reads open issues from the GitHub REST API.
type IssueSource struct {
	client  *gh.Client
	limiter *rate.Limiter
	timeout time.Duration
}

var _ ports.IssueSource = (*IssueSource)(nil)

// NewIssueSource builds a client authenticated as a GitHub App installation,
// with a personal token, or anonymously, in that order of preference.
func NewIssueSource(ctx context.Context, cfg config.GitHubConfig) (*IssueSource, error) {
	httpClient, err := newHTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := gh.NewClient(httpClient)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client, err = client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, errs.Wrapf(err, "set github base url %q", base)
		}
	}

	return NewIssueSourceFromClient(client, cfg), nil
}

// NewIssueSourceFromClient wraps an already configured go-github client.
func NewIssueSourceFromClient(client *gh.Client, cfg config.GitHubConfig) *IssueSource {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &IssueSource{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
	}
}

func newHTTPClient(ctx context.Context, cfg config.GitHubConfig) (*http.Client, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "github.issue_source"))

	if cfg.UsesAppAuth() {
		transport, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKeyFile)
		if err != nil {
			return nil, errs.Wrap(err, "load github app key")
		}
		if base := strings.TrimSpace(cfg.BaseURL); base != "" {
			transport.BaseURL = strings.TrimSuffix(base, "/")
		}
		logging.Info(logCtx, "github client uses app installation auth", slog.Int64("app_id", cfg.AppID))
		return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
	}

	if token := strings.TrimSpace(cfg.Token); token != "" {
		client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		client.Timeout = cfg.Timeout
		logging.Info(logCtx, "github client uses token auth")
		return client, nil
	}

	logging.Warn(logCtx, "github client is anonymous, rate limits will be low")
	return &http.Client{Timeout: cfg.Timeout}, nil
}

// ListOpenIssues pages through every open issue of repo. Pull requests are
// skipped. Items without a number or update time make the whole listing fail.
func (s *IssueSource) ListOpenIssues(ctx context.Context, repo string) ([]ports.RemoteIssue, error) {
	owner, name, err := domain.SplitRepository(repo)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: listPageSize},
	}

	out := make([]ports.RemoteIssue, 0, listPageSize)
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, unavailable(err, "wait for github rate limiter")
		}

		issues, resp, err := s.client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, unavailable(err, fmt.Sprintf("list open issues of %s page %d", repo, opts.Page))
		}

		for _, issue := range issues {
			if issue == nil || issue.IsPullRequest() {
				continue
			}
			remote, err := toRemoteIssue(issue)
			if err != nil {
				return nil, errs.Wrapf(err, "list open issues of %s", repo)
			}
			out = append(out, remote)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (s *IssueSource) GetIssue(ctx context.Context, repo string, number int) (ports.RemoteIssue, error) {
	owner, name, err := domain.SplitRepository(repo)
	if err != nil {
		return ports.RemoteIssue{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return ports.RemoteIssue{}, unavailable(err, "wait for github rate limiter")
	}

	issue, _, err := s.client.Issues.Get(ctx, owner, name, number)
	if err != nil {
		return ports.RemoteIssue{}, unavailable(err, fmt.Sprintf("get issue %s", domain.IssueKey(repo, number)))
	}
	return toRemoteIssue(issue)
}

var errMalformedIssue = errors.New("malformed issue payload")

func toRemoteIssue(issue *gh.Issue) (ports.RemoteIssue, error) {
	if issue == nil || issue.Number == nil || issue.GetNumber() <= 0 {
		return ports.RemoteIssue{}, fmt.Errorf("%w: missing number", errMalformedIssue)
	}
	if issue.UpdatedAt == nil || issue.GetUpdatedAt().IsZero() {
		return ports.RemoteIssue{}, fmt.Errorf("%w: issue %d has no updated_at", errMalformedIssue, issue.GetNumber())
	}
	return ports.RemoteIssue{
		Number:    issue.GetNumber(),
		UpdatedAt: issue.GetUpdatedAt().UTC(),
	}, nil
}

func unavailable(err error, msg string) error {
	return fmt.Errorf("%w: %s: %w", ports.ErrIssueSourceUnavailable, msg, err)
}
