package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Issue categories as returned by the analyzer.
const (
	CategoryBug            = "Bug"
	CategoryFeatureRequest = "Feature Request"
	CategoryQuestion       = "Question"
	CategoryOther          = "Other"
)

// Confidence levels as returned by the analyzer.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// Issue is a canonical analyzed GitHub issue. There is exactly one row per
// GitHub issue id; rows are never updated after insert.
type Issue struct {
	ID            int64
	GithubIssueID int64
	Number        int
	Title         string
	URL           string
	State         string
	Category      string
	Summary       string
	RootCause     string
	Solution      string
	Confidence    string
	Embedding     []byte
	CreatedAt     time.Time
}

// IssueEmbedding pairs an issue row id with its stored embedding blob.
type IssueEmbedding struct {
	IssueID   int64
	Embedding []byte
}

// InsertIssue inserts an analyzed issue and updates the aggregate stats in
// the same transaction. An issue whose github_issue_id already exists is
// skipped (inserted=false) and leaves the stats untouched, so a concurrent
// or repeated run never double-counts.
func (d *DB) InsertIssue(issue *Issue) (inserted bool, err error) {
	if d.dims > 0 && len(issue.Embedding) != d.dims*4 {
		return false, fmt.Errorf("embedding dimension mismatch: got %d floats, index width is %d",
			len(issue.Embedding)/4, d.dims)
	}
	if !validCategory(issue.Category) {
		return false, fmt.Errorf("invalid category %q", issue.Category)
	}
	if !validConfidence(issue.Confidence) {
		return false, fmt.Errorf("invalid confidence %q", issue.Confidence)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(`
		INSERT INTO issues (github_issue_id, number, title, url, state, category, summary, root_cause, solution, confidence, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(github_issue_id) DO NOTHING`,
		issue.GithubIssueID, issue.Number, issue.Title, issue.URL, issue.State,
		issue.Category, issue.Summary, nullStr(issue.RootCause), issue.Solution,
		issue.Confidence, issue.Embedding, now.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("inserting issue: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	_, err = tx.Exec(fmt.Sprintf(`
		UPDATE issue_stats SET
			total = total + 1,
			%s = %s + 1,
			%s = %s + 1,
			last_sync = ?
		WHERE id = 1`,
		categoryColumn(issue.Category), categoryColumn(issue.Category),
		confidenceColumn(issue.Confidence), confidenceColumn(issue.Confidence)),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("updating stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing insert: %w", err)
	}
	return true, nil
}

// HasIssue reports whether an issue with the given GitHub issue id exists.
func (d *DB) HasIssue(githubIssueID int64) (bool, error) {
	var one int
	err := d.db.QueryRow(`SELECT 1 FROM issues WHERE github_issue_id = ?`, githubIssueID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking issue existence: %w", err)
	}
	return true, nil
}

// GetIssueByGithubID retrieves an issue by its GitHub issue id.
// Returns sql.ErrNoRows if absent.
func (d *DB) GetIssueByGithubID(githubIssueID int64) (*Issue, error) {
	row := d.db.QueryRow(issueSelect+` WHERE github_issue_id = ?`, githubIssueID)
	return scanIssue(row.Scan)
}

// ListIssuesPage returns one page of issues ordered by row id, embedding
// excluded. Callers iterate pages to scan the whole corpus without loading
// it at once.
func (d *DB) ListIssuesPage(offset, limit int) ([]Issue, error) {
	rows, err := d.db.Query(issueSelectLight+` ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying issues page: %w", err)
	}
	defer rows.Close()
	return collectLightIssues(rows)
}

// ListEmbeddingsPage returns one page of (issue id, embedding) pairs ordered
// by row id.
func (d *DB) ListEmbeddingsPage(offset, limit int) ([]IssueEmbedding, error) {
	rows, err := d.db.Query(`SELECT id, embedding FROM issues ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var results []IssueEmbedding
	for rows.Next() {
		var ie IssueEmbedding
		if err := rows.Scan(&ie.IssueID, &ie.Embedding); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		results = append(results, ie)
	}
	return results, rows.Err()
}

// GetIssuesByIDs returns the issues with the given row ids, embedding
// excluded. Missing ids are silently dropped.
func (d *DB) GetIssuesByIDs(ids []int64) ([]Issue, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.Query(issueSelectLight+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues by ids: %w", err)
	}
	defer rows.Close()
	return collectLightIssues(rows)
}

// ListFilteredIssues returns issues filtered by category and/or confidence
// (empty or "all" disables a filter), newest first, with the total count of
// matching rows for pagination.
func (d *DB) ListFilteredIssues(category, confidence string, limit, offset int) (issues []Issue, total int, err error) {
	var conds []string
	var args []any

	if category != "" && category != "all" {
		conds = append(conds, "category = ?")
		args = append(args, category)
	}
	if confidence != "" && confidence != "all" {
		conds = append(conds, "confidence = ?")
		args = append(args, confidence)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM issues`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting filtered issues: %w", err)
	}

	query := issueSelectLight + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := d.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying filtered issues: %w", err)
	}
	defer rows.Close()

	issues, err = collectLightIssues(rows)
	return issues, total, err
}

// ListRecentIssues returns the n newest issues, embedding excluded.
func (d *DB) ListRecentIssues(n int) ([]Issue, error) {
	rows, err := d.db.Query(issueSelectLight+` ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying recent issues: %w", err)
	}
	defer rows.Close()
	return collectLightIssues(rows)
}

// CountIssues returns the number of analyzed issues.
func (d *DB) CountIssues() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM issues`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting issues: %w", err)
	}
	return n, nil
}

// ClearAllIssues deletes every analyzed issue and resets the aggregate stats
// to zero in one transaction. Returns the number of deleted rows.
func (d *DB) ClearAllIssues() (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM issues`)
	if err != nil {
		return 0, fmt.Errorf("deleting issues: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE issue_stats SET
			total = 0, bug = 0, feature_request = 0, question = 0, other = 0,
			high = 0, medium = 0, low = 0, last_sync = NULL
		WHERE id = 1`)
	if err != nil {
		return 0, fmt.Errorf("resetting stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing clear: %w", err)
	}
	return int(deleted), nil
}

const issueSelect = `SELECT id, github_issue_id, number, title, url, state, category, summary, root_cause, solution, confidence, embedding, created_at FROM issues`

// issueSelectLight omits the embedding blob; multi-hundred-float vectors
// never leave the store except for similarity scans.
const issueSelectLight = `SELECT id, github_issue_id, number, title, url, state, category, summary, root_cause, solution, confidence, created_at FROM issues`

func scanIssue(scan func(...any) error) (*Issue, error) {
	var issue Issue
	var rootCause sql.NullString
	var createdAt string

	err := scan(
		&issue.ID, &issue.GithubIssueID, &issue.Number, &issue.Title, &issue.URL,
		&issue.State, &issue.Category, &issue.Summary, &rootCause,
		&issue.Solution, &issue.Confidence, &issue.Embedding, &createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning issue: %w", err)
	}

	issue.RootCause = rootCause.String
	issue.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &issue, nil
}

func collectLightIssues(rows *sql.Rows) ([]Issue, error) {
	var issues []Issue
	for rows.Next() {
		var issue Issue
		var rootCause sql.NullString
		var createdAt string

		err := rows.Scan(
			&issue.ID, &issue.GithubIssueID, &issue.Number, &issue.Title, &issue.URL,
			&issue.State, &issue.Category, &issue.Summary, &rootCause,
			&issue.Solution, &issue.Confidence, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}

		issue.RootCause = rootCause.String
		issue.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func validCategory(c string) bool {
	switch c {
	case CategoryBug, CategoryFeatureRequest, CategoryQuestion, CategoryOther:
		return true
	}
	return false
}

func validConfidence(c string) bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

func categoryColumn(c string) string {
	switch c {
	case CategoryBug:
		return "bug"
	case CategoryFeatureRequest:
		return "feature_request"
	case CategoryQuestion:
		return "question"
	default:
		return "other"
	}
}

func confidenceColumn(c string) string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
