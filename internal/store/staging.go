package store

import (
	"encoding/json"
	"fmt"
)

// RawIssue is a fetched-but-not-yet-analyzed issue parked in the staging
// table for one sync run. CommentsFetched is monotone: once set it never
// reverts within a run.
type RawIssue struct {
	SyncID          string
	GithubIssueID   int64
	Number          int
	Title           string
	Body            string
	URL             string
	CommentsCount   int
	CommentsFetched bool
	Comments        []string
}

// StageIssue inserts a fetched issue into the staging table with comments
// not yet fetched. Staging the same issue twice within a run is a no-op.
func (d *DB) StageIssue(issue *RawIssue) error {
	_, err := d.db.Exec(`
		INSERT INTO staging_issues (sync_id, github_issue_id, number, title, body, url, comments_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sync_id, github_issue_id) DO NOTHING`,
		issue.SyncID, issue.GithubIssueID, issue.Number, issue.Title,
		issue.Body, issue.URL, issue.CommentsCount,
	)
	if err != nil {
		return fmt.Errorf("staging issue: %w", err)
	}
	return nil
}

// SetStagedComments records the fetched comment bodies for a staged issue
// and marks it fetched.
func (d *DB) SetStagedComments(syncID string, githubIssueID int64, comments []string) error {
	if comments == nil {
		comments = []string{}
	}
	encoded, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("marshaling comments: %w", err)
	}

	_, err = d.db.Exec(`
		UPDATE staging_issues SET comments = ?, comments_fetched = 1
		WHERE sync_id = ? AND github_issue_id = ?`,
		string(encoded), syncID, githubIssueID,
	)
	if err != nil {
		return fmt.Errorf("updating staged comments: %w", err)
	}
	return nil
}

// NextUnfetched returns up to limit staged issues whose comments have not
// been fetched yet.
func (d *DB) NextUnfetched(syncID string, limit int) ([]RawIssue, error) {
	rows, err := d.db.Query(rawIssueSelect+`
		WHERE sync_id = ? AND comments_fetched = 0
		ORDER BY id LIMIT ?`,
		syncID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying unfetched staging issues: %w", err)
	}
	defer rows.Close()
	return collectRawIssues(rows)
}

// CountUnfetched returns the number of staged issues still awaiting comments.
func (d *DB) CountUnfetched(syncID string) (int, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM staging_issues WHERE sync_id = ? AND comments_fetched = 0`,
		syncID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unfetched staging issues: %w", err)
	}
	return n, nil
}

// GetStagedIssues returns all staged issues for a run ordered by insertion.
func (d *DB) GetStagedIssues(syncID string) ([]RawIssue, error) {
	rows, err := d.db.Query(rawIssueSelect+` WHERE sync_id = ? ORDER BY id`, syncID)
	if err != nil {
		return nil, fmt.Errorf("querying staging issues: %w", err)
	}
	defer rows.Close()
	return collectRawIssues(rows)
}

// PurgeStaleStagedIssues deletes staging rows belonging to any run other
// than the given one. Rows from a failed run stay inspectable until the
// next run starts, then they expire: the new run re-fetches anything still
// unindexed, so old generations carry no information worth keeping.
func (d *DB) PurgeStaleStagedIssues(currentSyncID string) (int, error) {
	res, err := d.db.Exec(`DELETE FROM staging_issues WHERE sync_id != ?`, currentSyncID)
	if err != nil {
		return 0, fmt.Errorf("purging stale staging issues: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging stale staging issues: %w", err)
	}
	return int(n), nil
}

// ClearStagedIssues deletes all staging rows for a run.
func (d *DB) ClearStagedIssues(syncID string) error {
	_, err := d.db.Exec(`DELETE FROM staging_issues WHERE sync_id = ?`, syncID)
	if err != nil {
		return fmt.Errorf("clearing staging issues: %w", err)
	}
	return nil
}

const rawIssueSelect = `SELECT sync_id, github_issue_id, number, title, body, url, comments_count, comments_fetched, comments FROM staging_issues`

func collectRawIssues(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]RawIssue, error) {
	var issues []RawIssue
	for rows.Next() {
		var ri RawIssue
		var fetched int
		var comments string

		err := rows.Scan(
			&ri.SyncID, &ri.GithubIssueID, &ri.Number, &ri.Title,
			&ri.Body, &ri.URL, &ri.CommentsCount, &fetched, &comments,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning staging issue: %w", err)
		}

		ri.CommentsFetched = fetched != 0
		if comments != "" {
			if err := json.Unmarshal([]byte(comments), &ri.Comments); err != nil {
				return nil, fmt.Errorf("unmarshaling comments: %w", err)
			}
		}
		issues = append(issues, ri)
	}
	return issues, rows.Err()
}
