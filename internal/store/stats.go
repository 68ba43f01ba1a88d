package store

import (
	"database/sql"
	"fmt"
	"time"
)

// rebuildPageSize bounds a single scan page during a stats rebuild.
const rebuildPageSize = 500

// Stats is the aggregate summary over all analyzed issues.
type Stats struct {
	Total        int
	ByCategory   CategoryCounts
	ByConfidence ConfidenceCounts
	LastSync     *time.Time
}

// CategoryCounts holds per-category issue counts.
type CategoryCounts struct {
	Bug            int `json:"Bug"`
	FeatureRequest int `json:"FeatureRequest"`
	Question       int `json:"Question"`
	Other          int `json:"Other"`
}

// ConfidenceCounts holds per-confidence-level issue counts.
type ConfidenceCounts struct {
	High   int `json:"High"`
	Medium int `json:"Medium"`
	Low    int `json:"Low"`
}

// GetStats returns the aggregate stats singleton.
func (d *DB) GetStats() (*Stats, error) {
	var s Stats
	var lastSync sql.NullString

	err := d.db.QueryRow(`
		SELECT total, bug, feature_request, question, other, high, medium, low, last_sync
		FROM issue_stats WHERE id = 1`,
	).Scan(
		&s.Total,
		&s.ByCategory.Bug, &s.ByCategory.FeatureRequest, &s.ByCategory.Question, &s.ByCategory.Other,
		&s.ByConfidence.High, &s.ByConfidence.Medium, &s.ByConfidence.Low,
		&lastSync,
	)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	if lastSync.Valid {
		t, _ := time.Parse(time.RFC3339, lastSync.String)
		s.LastSync = &t
	}
	return &s, nil
}

// RebuildStats recomputes the aggregate stats by a paginated scan of the
// issues table and overwrites the singleton. Incremental maintenance can
// drift after partial failures; the rebuild is the source of truth.
func (d *DB) RebuildStats() (*Stats, error) {
	var s Stats
	var latest time.Time

	for offset := 0; ; offset += rebuildPageSize {
		rows, err := d.db.Query(
			`SELECT category, confidence, created_at FROM issues ORDER BY id LIMIT ? OFFSET ?`,
			rebuildPageSize, offset,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning issues for rebuild: %w", err)
		}

		count := 0
		for rows.Next() {
			var category, confidence, createdAt string
			if err := rows.Scan(&category, &confidence, &createdAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning rebuild row: %w", err)
			}
			count++
			s.Total++

			switch category {
			case CategoryBug:
				s.ByCategory.Bug++
			case CategoryFeatureRequest:
				s.ByCategory.FeatureRequest++
			case CategoryQuestion:
				s.ByCategory.Question++
			default:
				s.ByCategory.Other++
			}

			switch confidence {
			case ConfidenceHigh:
				s.ByConfidence.High++
			case ConfidenceMedium:
				s.ByConfidence.Medium++
			case ConfidenceLow:
				s.ByConfidence.Low++
			}

			if t, err := time.Parse(time.RFC3339, createdAt); err == nil && t.After(latest) {
				latest = t
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating rebuild rows: %w", err)
		}
		rows.Close()

		if count < rebuildPageSize {
			break
		}
	}

	var lastSync any
	if !latest.IsZero() {
		lastSync = latest.Format(time.RFC3339)
		s.LastSync = &latest
	}

	_, err := d.db.Exec(`
		UPDATE issue_stats SET
			total = ?, bug = ?, feature_request = ?, question = ?, other = ?,
			high = ?, medium = ?, low = ?, last_sync = ?
		WHERE id = 1`,
		s.Total,
		s.ByCategory.Bug, s.ByCategory.FeatureRequest, s.ByCategory.Question, s.ByCategory.Other,
		s.ByConfidence.High, s.ByConfidence.Medium, s.ByConfidence.Low,
		lastSync,
	)
	if err != nil {
		return nil, fmt.Errorf("writing rebuilt stats: %w", err)
	}

	return &s, nil
}
