package store

// Store defines the storage operations used by the sync pipeline and the
// search layer. It is satisfied by *DB and can be replaced with a mock for
// testing.
type Store interface {
	// Issues
	InsertIssue(issue *Issue) (bool, error)
	HasIssue(githubIssueID int64) (bool, error)
	ListIssuesPage(offset, limit int) ([]Issue, error)
	ListEmbeddingsPage(offset, limit int) ([]IssueEmbedding, error)
	GetIssuesByIDs(ids []int64) ([]Issue, error)

	// Staging
	StageIssue(issue *RawIssue) error
	SetStagedComments(syncID string, githubIssueID int64, comments []string) error
	NextUnfetched(syncID string, limit int) ([]RawIssue, error)
	CountUnfetched(syncID string) (int, error)
	GetStagedIssues(syncID string) ([]RawIssue, error)
	ClearStagedIssues(syncID string) error
	PurgeStaleStagedIssues(currentSyncID string) (int, error)

	// Status
	StartSync() error
	UpdateSyncProgress(processed, total, errCount int, message string) error
	CompleteSync(processed, total, errCount int, message string) error
	GetSyncStatus() (*SyncStatus, error)
}

// Compile-time check that *DB satisfies the Store interface.
var _ Store = (*DB)(nil)
