package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/nvell/issuelens/internal/retry"
)

// Issue is a closed GitHub issue as fetched from the issues listing.
type Issue struct {
	ID            int64
	Number        int
	Title         string
	Body          string
	URL           string
	CommentsCount int
}

// Fetcher wraps the GitHub issues and comments endpoints for one repository.
type Fetcher struct {
	client *gogithub.Client
	owner  string
	repo   string
}

// NewFetcher creates a Fetcher for owner/repo.
func NewFetcher(client *gogithub.Client, owner, repo string) *Fetcher {
	return &Fetcher{client: client, owner: owner, repo: repo}
}

// ListClosedIssuesPage fetches one page of closed issues sorted by most
// recently updated. Pull requests arrive in the same listing and are
// filtered out here; because of that, a "full" page is judged by the raw
// listing length, not the filtered result. fullPage reports whether the page
// held perPage entries before filtering.
func (f *Fetcher) ListClosedIssuesPage(ctx context.Context, page, perPage int) (issues []Issue, fullPage bool, err error) {
	opts := &gogithub.IssueListByRepoOptions{
		State:     "closed",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: gogithub.ListOptions{
			Page:    page,
			PerPage: perPage,
		},
	}

	var raw []*gogithub.Issue
	err = retry.Do(ctx, retry.DefaultMaxAttempts, isRetryable, func() error {
		var resp *gogithub.Response
		raw, resp, err = f.client.Issues.ListByRepo(ctx, f.owner, f.repo, opts)
		if err != nil {
			return wrapAPIError("listing issues", resp, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	for _, gh := range raw {
		// GitHub represents pull requests as issues with a PR linkage field.
		if gh.PullRequestLinks != nil {
			continue
		}
		issues = append(issues, Issue{
			ID:            gh.GetID(),
			Number:        gh.GetNumber(),
			Title:         gh.GetTitle(),
			Body:          gh.GetBody(),
			URL:           gh.GetHTMLURL(),
			CommentsCount: gh.GetComments(),
		})
	}

	return issues, len(raw) == perPage, nil
}

// ListComments fetches all comment bodies for an issue, oldest first.
func (f *Fetcher) ListComments(ctx context.Context, number int) ([]string, error) {
	opts := &gogithub.IssueListCommentsOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var comments []string
	for {
		var raw []*gogithub.IssueComment
		var resp *gogithub.Response
		err := retry.Do(ctx, retry.DefaultMaxAttempts, isRetryable, func() error {
			var innerErr error
			raw, resp, innerErr = f.client.Issues.ListComments(ctx, f.owner, f.repo, number, opts)
			if innerErr != nil {
				return wrapAPIError(fmt.Sprintf("listing comments for #%d", number), resp, innerErr)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, c := range raw {
			comments = append(comments, c.GetBody())
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	return comments, nil
}

// apiError carries the upstream status code alongside the wrapped error so
// the retry predicate can distinguish server faults from client mistakes.
type apiError struct {
	op     string
	status int
	err    error
}

func (e *apiError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("%s: GitHub API error %d: %v", e.op, e.status, e.err)
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *apiError) Unwrap() error { return e.err }

func wrapAPIError(op string, resp *gogithub.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	return &apiError{op: op, status: status, err: err}
}

// isRetryable retries server errors and secondary rate limits; 4xx client
// errors fail fast.
func isRetryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status >= http.StatusInternalServerError || ae.status == http.StatusTooManyRequests
	}
	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	// Transport-level failures (connection reset, DNS) are worth a retry.
	return true
}
