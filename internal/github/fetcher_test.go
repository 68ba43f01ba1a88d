package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gogithub "github.com/google/go-github/v60/github"
)

// newTestFetcher points a Fetcher at an httptest server.
func newTestFetcher(t *testing.T, handler http.Handler) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := gogithub.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	client.BaseURL = base

	return NewFetcher(client, "acme", "widgets"), srv
}

func TestListClosedIssuesPage_FiltersPullRequests(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "closed" {
			t.Errorf("expected state=closed, got %q", got)
		}
		if got := r.URL.Query().Get("sort"); got != "updated" {
			t.Errorf("expected sort=updated, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id": 101, "number": 1, "title": "Real issue", "body": "b", "html_url": "https://example.com/1", "comments": 2},
			{"id": 102, "number": 2, "title": "A pull request", "pull_request": {"url": "https://example.com/pr/2"}},
			{"id": 103, "number": 3, "title": "Another issue", "comments": 0}
		]`)
	}))

	issues, fullPage, err := f.ListClosedIssuesPage(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("ListClosedIssuesPage returned error: %v", err)
	}

	if len(issues) != 2 {
		t.Fatalf("expected 2 issues after PR filtering, got %d", len(issues))
	}
	if issues[0].ID != 101 || issues[1].ID != 103 {
		t.Errorf("unexpected issue ids: %d, %d", issues[0].ID, issues[1].ID)
	}
	if issues[0].CommentsCount != 2 {
		t.Errorf("expected 2 comments on first issue, got %d", issues[0].CommentsCount)
	}
	// The raw listing held perPage entries, so this still counts as a full page.
	if !fullPage {
		t.Error("expected fullPage=true when raw listing length equals perPage")
	}
}

func TestListClosedIssuesPage_PartialPage(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id": 1, "number": 1, "title": "only one"}]`)
	}))

	_, fullPage, err := f.ListClosedIssuesPage(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("ListClosedIssuesPage returned error: %v", err)
	}
	if fullPage {
		t.Error("expected fullPage=false for a short page")
	}
}

func TestListClosedIssuesPage_ServerError(t *testing.T) {
	calls := 0
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))

	_, _, err := f.ListClosedIssuesPage(context.Background(), 1, 100)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	// Client errors must not be retried.
	if calls != 1 {
		t.Errorf("expected 1 call for a 404, got %d", calls)
	}
}

func TestListComments(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/issues/7/comments" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"body": "first"}, {"body": "second"}]`)
	}))

	comments, err := f.ListComments(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListComments returned error: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0] != "first" || comments[1] != "second" {
		t.Errorf("comments out of order: %v", comments)
	}
}
