package server

import (
	"time"

	"github.com/nvell/issuelens/internal/search"
	"github.com/nvell/issuelens/internal/store"
)

// issueView is the wire shape of an issue. Embeddings stay server-side.
type issueView struct {
	ID            int64     `json:"id"`
	GithubIssueID int64     `json:"githubIssueId"`
	Number        int       `json:"number"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	State         string    `json:"state"`
	Category      string    `json:"category"`
	Summary       string    `json:"summary"`
	RootCause     string    `json:"rootCause,omitempty"`
	Solution      string    `json:"solution"`
	Confidence    string    `json:"confidence"`
	CreatedAt     time.Time `json:"createdAt"`
}

type resultView struct {
	Issue issueView `json:"issue"`
	Score float64   `json:"score"`
}

type statusView struct {
	IsRunning   bool       `json:"isRunning"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Processed   int        `json:"processed"`
	Total       int        `json:"total"`
	Errors      int        `json:"errors"`
	Message     string     `json:"message"`
}

type statsResponse struct {
	Total        int                    `json:"total"`
	ByCategory   store.CategoryCounts   `json:"byCategory"`
	ByConfidence store.ConfidenceCounts `json:"byConfidence"`
	LastSync     *time.Time             `json:"lastSync,omitempty"`
	RecentIssues []issueView            `json:"recentIssues"`
}

type listResponse struct {
	Issues  []issueView `json:"issues"`
	Total   int         `json:"total"`
	HasMore bool        `json:"hasMore"`
}

func toIssueView(issue store.Issue) issueView {
	return issueView{
		ID:            issue.ID,
		GithubIssueID: issue.GithubIssueID,
		Number:        issue.Number,
		Title:         issue.Title,
		URL:           issue.URL,
		State:         issue.State,
		Category:      issue.Category,
		Summary:       issue.Summary,
		RootCause:     issue.RootCause,
		Solution:      issue.Solution,
		Confidence:    issue.Confidence,
		CreatedAt:     issue.CreatedAt,
	}
}

func issueViews(issues []store.Issue) []issueView {
	views := make([]issueView, 0, len(issues))
	for _, issue := range issues {
		views = append(views, toIssueView(issue))
	}
	return views
}

func resultViews(results []search.Result) []resultView {
	views := make([]resultView, 0, len(results))
	for _, res := range results {
		views = append(views, resultView{Issue: toIssueView(res.Issue), Score: res.Score})
	}
	return views
}

func toStatusView(s *store.SyncStatus) statusView {
	return statusView{
		IsRunning:   s.IsRunning,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Processed:   s.Processed,
		Total:       s.Total,
		Errors:      s.Errors,
		Message:     s.Message,
	}
}
