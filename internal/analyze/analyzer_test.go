package analyze

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nvell/issuelens/internal/provider"
	"github.com/nvell/issuelens/internal/store"
)

// mockCompleter is a test double for provider.Completer.
type mockCompleter struct {
	response   string
	err        error
	lastSystem string
	lastPrompt string
}

func (m *mockCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	m.lastSystem = system
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

// mockEmbedder is a test double for provider.Embedder.
type mockEmbedder struct {
	embedding []float32
	err       error
	lastText  string
	lastType  provider.InputType
	calls     int
}

func (m *mockEmbedder) Embed(_ context.Context, text string, inputType provider.InputType) ([]float32, error) {
	m.calls++
	m.lastText = text
	m.lastType = inputType
	if m.err != nil {
		return nil, m.err
	}
	return m.embedding, nil
}

var testRawIssue = store.RawIssue{
	SyncID:        "run-1",
	GithubIssueID: 42,
	Number:        42,
	Title:         "App crashes on startup",
	Body:          "When I open the app it crashes immediately.",
	URL:           "https://example.com/42",
	Comments:      []string{"Can you share logs?", "Fixed in v1.2 by bumping the driver."},
}

const validResponse = `{"category": "Bug", "summary": "App crashes at launch.", "rootCause": "Stale driver", "solution": "Upgrade to v1.2", "confidenceScore": "High"}`

func TestAnalyze_ValidResponse(t *testing.T) {
	completer := &mockCompleter{response: validResponse}
	embedder := &mockEmbedder{embedding: []float32{0.1, 0.2}}
	a := New(completer, embedder, 10*time.Second)

	result, err := a.Analyze(context.Background(), testRawIssue)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if result.Category != store.CategoryBug {
		t.Errorf("expected Bug, got %q", result.Category)
	}
	if result.RootCause != "Stale driver" {
		t.Errorf("unexpected root cause %q", result.RootCause)
	}
	if result.Confidence != store.ConfidenceHigh {
		t.Errorf("unexpected confidence %q", result.Confidence)
	}
	if len(result.Embedding) != 2 {
		t.Errorf("expected embedding passthrough, got %v", result.Embedding)
	}
	if embedder.lastType != provider.InputPassage {
		t.Errorf("expected passage mode for document embedding, got %q", embedder.lastType)
	}
	if completer.lastSystem == "" {
		t.Error("expected a system instruction")
	}
}

func TestAnalyze_StripsCodeFences(t *testing.T) {
	completer := &mockCompleter{response: "```json\n" + validResponse + "\n```"}
	embedder := &mockEmbedder{embedding: []float32{1}}
	a := New(completer, embedder, 10*time.Second)

	result, err := a.Analyze(context.Background(), testRawIssue)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.Summary != "App crashes at launch." {
		t.Errorf("unexpected summary %q", result.Summary)
	}
}

func TestAnalyze_MalformedJSON_Raises(t *testing.T) {
	completer := &mockCompleter{response: "Sorry, I cannot produce JSON today."}
	embedder := &mockEmbedder{embedding: []float32{1}}
	a := New(completer, embedder, 10*time.Second)

	_, err := a.Analyze(context.Background(), testRawIssue)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if !errors.Is(err, provider.ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got: %v", err)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder must not be called after a parse failure, got %d calls", embedder.calls)
	}
}

func TestAnalyze_UnknownCategory_Raises(t *testing.T) {
	completer := &mockCompleter{response: `{"category": "Banana", "summary": "s", "solution": "x", "confidenceScore": "High"}`}
	a := New(completer, &mockEmbedder{embedding: []float32{1}}, 10*time.Second)

	if _, err := a.Analyze(context.Background(), testRawIssue); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestAnalyze_NullRootCause(t *testing.T) {
	completer := &mockCompleter{response: `{"category": "Question", "summary": "s", "rootCause": null, "solution": "answered", "confidenceScore": "Low"}`}
	embedder := &mockEmbedder{embedding: []float32{1}}
	a := New(completer, embedder, 10*time.Second)

	result, err := a.Analyze(context.Background(), testRawIssue)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.RootCause != "" {
		t.Errorf("expected empty root cause for null, got %q", result.RootCause)
	}
	if !strings.Contains(embedder.lastText, "Root Cause: Not identified") {
		t.Errorf("expected placeholder root cause in embedding text:\n%s", embedder.lastText)
	}
}

func TestAnalyze_EmbeddingTextFieldOrder(t *testing.T) {
	completer := &mockCompleter{response: validResponse}
	embedder := &mockEmbedder{embedding: []float32{1}}
	a := New(completer, embedder, 10*time.Second)

	if _, err := a.Analyze(context.Background(), testRawIssue); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	text := embedder.lastText
	order := []string{"Title:", "Description:", "Summary:", "Root Cause:", "Solution:", "Category:"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(text, marker)
		if idx < 0 {
			t.Fatalf("marker %q missing from embedding text:\n%s", marker, text)
		}
		if idx < last {
			t.Errorf("marker %q out of order in embedding text", marker)
		}
		last = idx
	}
}

func TestAnalyze_EmbedderFailurePropagates(t *testing.T) {
	completer := &mockCompleter{response: validResponse}
	embedder := &mockEmbedder{err: provider.ErrRateLimit}
	a := New(completer, embedder, 10*time.Second)

	_, err := a.Analyze(context.Background(), testRawIssue)
	if !errors.Is(err, provider.ErrRateLimit) {
		t.Fatalf("expected rate limit error to propagate, got: %v", err)
	}
}

func TestBuildPrompt_Defaults(t *testing.T) {
	issue := store.RawIssue{Number: 1, Title: "Empty issue"}
	prompt, err := BuildPrompt(issue)
	if err != nil {
		t.Fatalf("BuildPrompt returned error: %v", err)
	}
	if !strings.Contains(prompt, "No description provided") {
		t.Error("expected body placeholder in prompt")
	}
	if !strings.Contains(prompt, "No comments") {
		t.Error("expected comments placeholder in prompt")
	}
}

func TestBuildPrompt_CapsComments(t *testing.T) {
	issue := testRawIssue
	issue.Comments = make([]string, 15)
	for i := range issue.Comments {
		issue.Comments[i] = strings.Repeat("c", 3) + string(rune('a'+i))
	}

	prompt, err := BuildPrompt(issue)
	if err != nil {
		t.Fatalf("BuildPrompt returned error: %v", err)
	}
	if strings.Contains(prompt, "ccck") {
		t.Error("expected comment 11+ to be dropped from prompt")
	}
	if !strings.Contains(prompt, "cccj") {
		t.Error("expected comment 10 to be present in prompt")
	}
}
