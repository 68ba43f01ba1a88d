// Package sync runs the closed-issue ingestion pipeline: page through a
// repository's closed issues, stage the unseen ones, fetch their comment
// threads, then analyze and index each one. Steps execute sequentially on
// a single goroutine; the staging table holds the work state between
// steps, so an aborted run can be re-triggered and skips finished work.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nvell/issuelens/internal/analyze"
	"github.com/nvell/issuelens/internal/github"
	"github.com/nvell/issuelens/internal/pubsub"
	"github.com/nvell/issuelens/internal/store"
	"github.com/nvell/issuelens/internal/vector"
)

const (
	DefaultPerPage      = 100
	DefaultMaxPages     = 30
	DefaultCommentBatch = 20
	DefaultAnalyzeBatch = 25

	// DefaultDelay paces analysis at roughly 28 issues per minute, below
	// the embedding provider's 30 RPM ceiling.
	DefaultDelay = 2100 * time.Millisecond

	// progressEvery controls how often sync_status is updated during the
	// analyze phase.
	progressEvery = 5
)

// fetcher is the slice of the GitHub client the runner needs.
type fetcher interface {
	ListClosedIssuesPage(ctx context.Context, page, perPage int) ([]github.Issue, bool, error)
	ListComments(ctx context.Context, number int) ([]string, error)
}

// analyzer produces an analysis plus embedding for one staged issue.
type analyzer interface {
	Analyze(ctx context.Context, issue store.RawIssue) (*analyze.Analysis, error)
}

// syncStore is the slice of the store the runner needs.
type syncStore interface {
	StartSync() error
	UpdateSyncProgress(processed, total, errCount int, message string) error
	CompleteSync(processed, total, errCount int, message string) error
	HasIssue(githubIssueID int64) (bool, error)
	InsertIssue(issue *store.Issue) (bool, error)
	StageIssue(issue *store.RawIssue) error
	SetStagedComments(syncID string, githubIssueID int64, comments []string) error
	NextUnfetched(syncID string, limit int) ([]store.RawIssue, error)
	CountUnfetched(syncID string) (int, error)
	GetStagedIssues(syncID string) ([]store.RawIssue, error)
	ClearStagedIssues(syncID string) error
	PurgeStaleStagedIssues(currentSyncID string) (int, error)
}

// Options tune page sizes and pacing. Zero values fall back to defaults.
type Options struct {
	PerPage      int
	MaxPages     int
	CommentBatch int
	AnalyzeBatch int
	Delay        time.Duration
}

func (o Options) withDefaults() Options {
	if o.PerPage <= 0 {
		o.PerPage = DefaultPerPage
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.CommentBatch <= 0 {
		o.CommentBatch = DefaultCommentBatch
	}
	if o.AnalyzeBatch <= 0 {
		o.AnalyzeBatch = DefaultAnalyzeBatch
	}
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	return o
}

// RunnerDeps holds the dependencies for the Runner.
type RunnerDeps struct {
	Fetcher  fetcher
	Analyzer analyzer
	Store    syncStore
	Broker   *pubsub.Broker
	Logger   *slog.Logger
	Options  Options
}

// Runner drives one sync run at a time. The database's sync_status row is
// the cross-process guard; a second Trigger while a run is live returns
// store.ErrSyncRunning.
type Runner struct {
	deps RunnerDeps
	opts Options
}

// New creates a Runner with the given dependencies.
func New(deps RunnerDeps) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Runner{deps: deps, opts: deps.Options.withDefaults()}
}

// Trigger starts a sync run in the background and returns its id. It
// fails with store.ErrSyncRunning if a run is already live. The run
// outlives the caller's request, so only ctx's values carry over.
func (r *Runner) Trigger(ctx context.Context) (string, error) {
	syncID, err := r.start()
	if err != nil {
		return "", err
	}
	go r.execute(context.WithoutCancel(ctx), syncID)
	return syncID, nil
}

// Run executes a sync run synchronously. Used by the CLI sync command.
func (r *Runner) Run(ctx context.Context) error {
	syncID, err := r.start()
	if err != nil {
		return err
	}
	return r.execute(ctx, syncID)
}

func (r *Runner) start() (string, error) {
	if err := r.deps.Store.StartSync(); err != nil {
		return "", err
	}
	syncID := uuid.NewString()
	r.publish(pubsub.Event{Type: pubsub.SyncStarted, SyncID: syncID, Message: "Starting sync..."})
	return syncID, nil
}

func (r *Runner) publish(evt pubsub.Event) {
	if r.deps.Broker != nil {
		r.deps.Broker.Publish(evt)
	}
}

// run is the mutable state of one sync run.
type run struct {
	r      *Runner
	syncID string
	logger *slog.Logger

	skipped int // already-indexed issues dropped before staging
	staged  int
	total   int
	indexed int
	errors  int
}

// execute walks the step chain. Each step returns its successor; a nil
// successor ends the run.
func (r *Runner) execute(ctx context.Context, syncID string) error {
	s := &run{
		r:      r,
		syncID: syncID,
		logger: r.deps.Logger.With("sync_id", syncID),
	}
	s.logger.Info("sync started")

	// Leftovers from earlier runs (kept after a failure for inspection)
	// expire once a new run begins.
	if purged, err := r.deps.Store.PurgeStaleStagedIssues(syncID); err != nil {
		return s.fail(fmt.Errorf("purging stale staging rows: %w", err))
	} else if purged > 0 {
		s.logger.Info("purged stale staging rows", "rows", purged)
	}

	step := s.stepFetchPage(1)
	for step != nil {
		next, err := step(ctx)
		if err != nil {
			return s.fail(err)
		}
		step = next
	}
	return nil
}

type stepFn func(ctx context.Context) (stepFn, error)

func (s *run) stepFetchPage(page int) stepFn {
	return func(ctx context.Context) (stepFn, error) {
		issues, fullPage, err := s.r.deps.Fetcher.ListClosedIssuesPage(ctx, page, s.r.opts.PerPage)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		for _, issue := range issues {
			exists, err := s.r.deps.Store.HasIssue(issue.ID)
			if err != nil {
				return nil, fmt.Errorf("dedup check issue %d: %w", issue.Number, err)
			}
			if exists {
				s.skipped++
				continue
			}
			raw := &store.RawIssue{
				SyncID:        s.syncID,
				GithubIssueID: issue.ID,
				Number:        issue.Number,
				Title:         issue.Title,
				Body:          issue.Body,
				URL:           issue.URL,
				CommentsCount: issue.CommentsCount,
			}
			if err := s.r.deps.Store.StageIssue(raw); err != nil {
				return nil, fmt.Errorf("stage issue %d: %w", issue.Number, err)
			}
			s.staged++
		}
		s.logger.Info("page fetched", "page", page, "staged", s.staged, "skipped", s.skipped)

		if fullPage && page < s.r.opts.MaxPages {
			return s.stepFetchPage(page + 1), nil
		}
		if s.staged == 0 {
			return nil, s.completeEmpty()
		}
		s.total = s.staged
		if err := s.r.deps.Store.UpdateSyncProgress(0, s.total, 0, fmt.Sprintf("Processing: 0/%d new issues...", s.total)); err != nil {
			return nil, err
		}
		return s.stepFetchComments, nil
	}
}

func (s *run) stepFetchComments(ctx context.Context) (stepFn, error) {
	rows, err := s.r.deps.Store.NextUnfetched(s.syncID, s.r.opts.CommentBatch)
	if err != nil {
		return nil, fmt.Errorf("load unfetched: %w", err)
	}
	for _, row := range rows {
		var comments []string
		if row.CommentsCount > 0 {
			comments, err = s.r.deps.Fetcher.ListComments(ctx, row.Number)
			if err != nil {
				return nil, fmt.Errorf("fetch comments for issue %d: %w", row.Number, err)
			}
		}
		if err := s.r.deps.Store.SetStagedComments(s.syncID, row.GithubIssueID, comments); err != nil {
			return nil, fmt.Errorf("store comments for issue %d: %w", row.Number, err)
		}
	}

	remaining, err := s.r.deps.Store.CountUnfetched(s.syncID)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		return s.stepFetchComments, nil
	}
	return s.stepAnalyzeBatch(0), nil
}

func (s *run) stepAnalyzeBatch(start int) stepFn {
	return func(ctx context.Context) (stepFn, error) {
		staged, err := s.r.deps.Store.GetStagedIssues(s.syncID)
		if err != nil {
			return nil, fmt.Errorf("load staged: %w", err)
		}
		end := start + s.r.opts.AnalyzeBatch
		if end > len(staged) {
			end = len(staged)
		}

		for i, row := range staged[start:end] {
			if start+i > 0 {
				if err := s.pace(ctx); err != nil {
					return nil, err
				}
			}
			if err := s.analyzeOne(ctx, row); err != nil {
				s.errors++
				s.logger.Warn("issue analysis failed", "issue", row.Number, "error", err)
				continue
			}
			s.indexed++
			if s.indexed%progressEvery == 0 {
				s.progress()
			}
		}

		if end < len(staged) {
			return s.stepAnalyzeBatch(end), nil
		}
		return nil, s.complete()
	}
}

func (s *run) analyzeOne(ctx context.Context, row store.RawIssue) error {
	analysis, err := s.r.deps.Analyzer.Analyze(ctx, row)
	if err != nil {
		return err
	}
	issue := &store.Issue{
		GithubIssueID: row.GithubIssueID,
		Number:        row.Number,
		Title:         row.Title,
		URL:           row.URL,
		State:         "closed",
		Category:      analysis.Category,
		Summary:       analysis.Summary,
		RootCause:     analysis.RootCause,
		Solution:      analysis.Solution,
		Confidence:    analysis.Confidence,
		Embedding:     vector.Encode(analysis.Embedding),
	}
	if _, err := s.r.deps.Store.InsertIssue(issue); err != nil {
		return err
	}
	return nil
}

// pace spaces analysis calls out so the providers' rate limits hold.
func (s *run) pace(ctx context.Context) error {
	t := time.NewTimer(s.r.opts.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *run) progress() {
	msg := fmt.Sprintf("Processing: %d/%d new issues...", s.indexed, s.total)
	if err := s.r.deps.Store.UpdateSyncProgress(s.indexed, s.total, s.errors, msg); err != nil {
		s.logger.Warn("progress update failed", "error", err)
	}
	s.publishEvent(pubsub.SyncProgress, msg)
}

func (s *run) completeEmpty() error {
	msg := fmt.Sprintf("No new issues to sync (%d already indexed)", s.skipped)
	s.logger.Info("sync complete", "indexed", 0, "skipped", s.skipped)
	if err := s.r.deps.Store.CompleteSync(0, 0, 0, msg); err != nil {
		return err
	}
	s.publishEvent(pubsub.SyncCompleted, msg)
	return nil
}

func (s *run) complete() error {
	if err := s.r.deps.Store.ClearStagedIssues(s.syncID); err != nil {
		return err
	}
	msg := fmt.Sprintf("Completed: %d new issues indexed, %d errors", s.indexed, s.errors)
	s.logger.Info("sync complete", "indexed", s.indexed, "errors", s.errors, "skipped", s.skipped)
	if err := s.r.deps.Store.CompleteSync(s.indexed, s.total, s.errors, msg); err != nil {
		return err
	}
	s.publishEvent(pubsub.SyncCompleted, msg)
	return nil
}

// fail finalizes the run after a step error. Staging rows are left in
// place for inspection; a re-triggered run gets a fresh id and skips the
// already-indexed issues.
func (s *run) fail(stepErr error) error {
	msg := "Sync failed: " + stepErr.Error()
	s.logger.Error("sync failed", "error", stepErr)
	if err := s.r.deps.Store.CompleteSync(s.indexed, s.total, s.errors, msg); err != nil {
		s.logger.Error("failed to finalize sync status", "error", err)
	}
	s.publishEvent(pubsub.SyncFailed, msg)
	return stepErr
}

func (s *run) publishEvent(t pubsub.EventType, msg string) {
	s.r.publish(pubsub.Event{
		Type:      t,
		SyncID:    s.syncID,
		Processed: s.indexed,
		Total:     s.total,
		Errors:    s.errors,
		Message:   msg,
	})
}
