package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	gh "github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investigator/internal/bootstrap/config"
	"investigator/internal/ports"
)

func newTestSource(t *testing.T, handler http.Handler, timeout time.Duration) *IssueSource {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return NewIssueSourceFromClient(client, config.GitHubConfig{Timeout: timeout})
}

func TestListOpenIssuesPaginatesAndSkipsPullRequests(t *testing.T) {
	var pages []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		w.Header().Set("Content-Type", "application/json")
		if page == "" || page == "1" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/widgets/issues?page=2>; rel="next"`, r.Host))
			fmt.Fprint(w, `[
				{"number": 1, "updated_at": "2026-01-01T00:00:00Z"},
				{"number": 2, "updated_at": "2026-01-02T00:00:00Z", "pull_request": {"url": "x"}}
			]`)
			return
		}
		fmt.Fprint(w, `[{"number": 3, "updated_at": "2026-01-03T10:00:00Z"}]`)
	})

	source := newTestSource(t, mux, 5*time.Second)
	issues, err := source.ListOpenIssues(context.Background(), "acme/widgets")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "2"}, pages)
	assert.Equal(t, []ports.RemoteIssue{
		{Number: 1, UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Number: 3, UpdatedAt: time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)},
	}, issues)
}

func TestListOpenIssuesRejectsMalformedItems(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"number": 1}]`)
	})

	source := newTestSource(t, mux, 5*time.Second)
	_, err := source.ListOpenIssues(context.Background(), "acme/widgets")
	require.Error(t, err)
	assert.ErrorIs(t, err, errMalformedIssue)
}

func TestListOpenIssuesReportsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusBadGateway)
	})

	source := newTestSource(t, mux, 5*time.Second)
	_, err := source.ListOpenIssues(context.Background(), "acme/widgets")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrIssueSourceUnavailable)
}

func TestListOpenIssuesTimesOut(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	source := newTestSource(t, mux, 50*time.Millisecond)
	start := time.Now()
	_, err := source.ListOpenIssues(context.Background(), "acme/widgets")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrIssueSourceUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGetIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/42", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"number": 42, "updated_at": "2026-02-02T02:02:02Z"}`)
	})

	source := newTestSource(t, mux, 5*time.Second)
	issue, err := source.GetIssue(context.Background(), "acme/widgets", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	assert.True(t, issue.UpdatedAt.Equal(time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)))
}

func TestListOpenIssuesRejectsBadRepository(t *testing.T) {
	source := newTestSource(t, http.NewServeMux(), time.Second)
	_, err := source.ListOpenIssues(context.Background(), "not-a-repo")
	require.Error(t, err)
}
