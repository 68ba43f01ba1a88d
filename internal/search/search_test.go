package search

import (
	"context"
	"testing"

	"github.com/nvell/issuelens/internal/provider"
	"github.com/nvell/issuelens/internal/store"
	"github.com/nvell/issuelens/internal/vector"
)

// fakeStore serves canned issues for both search paths.
type fakeStore struct {
	issues []store.Issue
}

func (f *fakeStore) ListIssuesPage(offset, limit int) ([]store.Issue, error) {
	if offset >= len(f.issues) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.issues) {
		end = len(f.issues)
	}
	return f.issues[offset:end], nil
}

func (f *fakeStore) ListEmbeddingsPage(offset, limit int) ([]store.IssueEmbedding, error) {
	page, err := f.ListIssuesPage(offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]store.IssueEmbedding, 0, len(page))
	for _, issue := range page {
		out = append(out, store.IssueEmbedding{IssueID: issue.ID, Embedding: issue.Embedding})
	}
	return out, nil
}

func (f *fakeStore) GetIssuesByIDs(ids []int64) ([]store.Issue, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []store.Issue
	for _, issue := range f.issues {
		if want[issue.ID] {
			out = append(out, issue)
		}
	}
	return out, nil
}

type fixedEmbedder struct {
	vec      []float32
	lastType provider.InputType
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string, t provider.InputType) ([]float32, error) {
	f.lastType = t
	return f.vec, nil
}

func TestKeyword_RanksByMatchCount(t *testing.T) {
	db := &fakeStore{issues: []store.Issue{
		{ID: 1, Title: "Payment webhook timeout", Summary: "webhook retries exhausted", Category: store.CategoryBug, Confidence: store.ConfidenceHigh},
		{ID: 2, Title: "Webhook docs unclear", Summary: "question about setup", Category: store.CategoryQuestion, Confidence: store.ConfidenceLow},
		{ID: 3, Title: "Dark mode request", Summary: "UI theme", Category: store.CategoryFeatureRequest, Confidence: store.ConfidenceMedium},
	}}

	results, err := Keyword(db, "webhook timeout", 10)
	if err != nil {
		t.Fatalf("Keyword returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Issue.ID != 1 {
		t.Errorf("expected issue 1 (both tokens) first, got %d", results[0].Issue.ID)
	}
	if results[0].Score != 1.0 {
		t.Errorf("expected full-match score 1.0, got %f", results[0].Score)
	}
	if results[1].Score != 0.5 {
		t.Errorf("expected half-match score 0.5, got %f", results[1].Score)
	}
}

func TestKeyword_NoMatchingTokens(t *testing.T) {
	db := &fakeStore{issues: []store.Issue{
		{ID: 1, Title: "Payment webhook timeout", Summary: "retries exhausted"},
	}}
	results, err := Keyword(db, "kubernetes helm", 10)
	if err != nil {
		t.Fatalf("Keyword returned error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result set, got %v", results)
	}
}

func TestKeyword_EmptyQueryAndLimit(t *testing.T) {
	db := &fakeStore{issues: []store.Issue{{ID: 1, Title: "anything"}}}
	if results, _ := Keyword(db, "   ", 10); results != nil {
		t.Errorf("expected nil for blank query, got %v", results)
	}
	if results, _ := Keyword(db, "anything", 0); results != nil {
		t.Errorf("expected nil for zero limit, got %v", results)
	}
}

func TestKeyword_PaginatesAndTruncates(t *testing.T) {
	db := &fakeStore{}
	for i := 0; i < scanPageSize+50; i++ {
		db.issues = append(db.issues, store.Issue{ID: int64(i + 1), Title: "crash"})
	}

	results, err := Keyword(db, "crash", 3)
	if err != nil {
		t.Fatalf("Keyword returned error: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected result set capped at 3, got %d", len(results))
	}
}

func TestKeyword_StripsEmbedding(t *testing.T) {
	db := &fakeStore{issues: []store.Issue{
		{ID: 1, Title: "crash on boot", Embedding: []byte{1, 2, 3, 4}},
	}}
	results, err := Keyword(db, "crash", 5)
	if err != nil {
		t.Fatalf("Keyword returned error: %v", err)
	}
	if results[0].Issue.Embedding != nil {
		t.Error("embedding must be stripped from results")
	}
}

func TestVector_ThresholdExcludesWeakMatches(t *testing.T) {
	db := &fakeStore{issues: []store.Issue{
		{ID: 1, Title: "close match", Confidence: store.ConfidenceMedium, Embedding: vector.Encode([]float32{1, 0})},
		{ID: 2, Title: "orthogonal", Confidence: store.ConfidenceMedium, Embedding: vector.Encode([]float32{0, 1})},
	}}
	embedder := &fixedEmbedder{vec: []float32{1, 0}}

	results, err := Vector(context.Background(), db, embedder, "anything", 10, 0.25)
	if err != nil {
		t.Fatalf("Vector returned error: %v", err)
	}
	if len(results) != 1 || results[0].Issue.ID != 1 {
		t.Fatalf("expected only the close match, got %+v", results)
	}
	if embedder.lastType != provider.InputQuery {
		t.Errorf("query must embed in query mode, got %q", embedder.lastType)
	}
}

func TestVector_BracketTagBoostWins(t *testing.T) {
	// Both candidates share the same similarity; the vendor tag and
	// keyword overlap must decide the order.
	db := &fakeStore{issues: []store.Issue{
		{ID: 1, Title: "Generic failure", Summary: "something broke", Confidence: store.ConfidenceMedium, Embedding: vector.Encode([]float32{1, 0})},
		{ID: 2, Title: "[Acme Widgets] checkout fails", Summary: "acme checkout path", Confidence: store.ConfidenceMedium, Embedding: vector.Encode([]float32{1, 0})},
	}}
	embedder := &fixedEmbedder{vec: []float32{1, 0}}

	results, err := Vector(context.Background(), db, embedder, "acme checkout broken", 10, 0.25)
	if err != nil {
		t.Fatalf("Vector returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Issue.ID != 2 {
		t.Errorf("expected the tagged issue first, got issue %d", results[0].Issue.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("boosted score %f should exceed %f", results[0].Score, results[1].Score)
	}
}

func TestVector_ConfidenceBoostOrdersTies(t *testing.T) {
	db := &fakeStore{issues: []store.Issue{
		{ID: 1, Title: "one", Confidence: store.ConfidenceLow, Embedding: vector.Encode([]float32{1, 0})},
		{ID: 2, Title: "two", Confidence: store.ConfidenceHigh, Embedding: vector.Encode([]float32{1, 0})},
	}}
	embedder := &fixedEmbedder{vec: []float32{1, 0}}

	results, err := Vector(context.Background(), db, embedder, "zzz", 10, 0.25)
	if err != nil {
		t.Fatalf("Vector returned error: %v", err)
	}
	if results[0].Issue.ID != 2 {
		t.Errorf("expected high-confidence issue first, got %d", results[0].Issue.ID)
	}
}

func TestVector_NoCandidates(t *testing.T) {
	db := &fakeStore{}
	embedder := &fixedEmbedder{vec: []float32{1, 0}}
	results, err := Vector(context.Background(), db, embedder, "anything", 10, 0.25)
	if err != nil {
		t.Fatalf("Vector returned error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for empty index, got %v", results)
	}
}

func TestBracketTag(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"[Acme Widgets] checkout fails", "acme"},
		{"[Stripe] webhook", "stripe"},
		{"No tag here", ""},
		{"[] empty", ""},
		{"[  ] blank", ""},
		{"[unclosed tag", ""},
	}
	for _, tc := range cases {
		if got := bracketTag(tc.title); got != tc.want {
			t.Errorf("bracketTag(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}
