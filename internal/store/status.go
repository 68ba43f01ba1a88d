package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSyncRunning is returned by StartSync when a run is already in progress.
var ErrSyncRunning = errors.New("a sync is already running")

// SyncStatus is the singleton progress record polled by clients.
type SyncStatus struct {
	IsRunning   bool
	StartedAt   *time.Time
	CompletedAt *time.Time
	Processed   int
	Total       int
	Errors      int
	Message     string
}

// GetSyncStatus returns the sync status singleton.
func (d *DB) GetSyncStatus() (*SyncStatus, error) {
	var s SyncStatus
	var running int
	var startedAt, completedAt sql.NullString

	err := d.db.QueryRow(`
		SELECT is_running, started_at, completed_at, processed, total, errors, message
		FROM sync_status WHERE id = 1`,
	).Scan(&running, &startedAt, &completedAt, &s.Processed, &s.Total, &s.Errors, &s.Message)
	if err != nil {
		return nil, fmt.Errorf("reading sync status: %w", err)
	}

	s.IsRunning = running != 0
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		s.StartedAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		s.CompletedAt = &t
	}
	return &s, nil
}

// StartSync marks the status record running and resets its counters.
// The guard is a single conditional update: if another run holds the record,
// ErrSyncRunning is returned and nothing changes.
func (d *DB) StartSync() error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := d.db.Exec(`
		UPDATE sync_status SET
			is_running = 1, started_at = ?, completed_at = NULL,
			processed = 0, total = 0, errors = 0, message = 'Starting sync...'
		WHERE id = 1 AND is_running = 0`,
		now,
	)
	if err != nil {
		return fmt.Errorf("starting sync status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSyncRunning
	}
	return nil
}

// UpdateSyncProgress patches the counters and message on a running sync.
func (d *DB) UpdateSyncProgress(processed, total, errCount int, message string) error {
	_, err := d.db.Exec(`
		UPDATE sync_status SET processed = ?, total = ?, errors = ?, message = ?
		WHERE id = 1`,
		processed, total, errCount, message,
	)
	if err != nil {
		return fmt.Errorf("updating sync progress: %w", err)
	}
	return nil
}

// CompleteSync finalizes the status record with the terminal counters and
// message.
func (d *DB) CompleteSync(processed, total, errCount int, message string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := d.db.Exec(`
		UPDATE sync_status SET
			is_running = 0, completed_at = ?,
			processed = ?, total = ?, errors = ?, message = ?
		WHERE id = 1`,
		now, processed, total, errCount, message,
	)
	if err != nil {
		return fmt.Errorf("completing sync status: %w", err)
	}
	return nil
}
