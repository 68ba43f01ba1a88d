// Package analyze turns a fetched GitHub issue into a structured analysis:
// an LLM-derived category/summary/root-cause/solution record plus a passage
// embedding over the synthesized document.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nvell/issuelens/internal/provider"
	"github.com/nvell/issuelens/internal/store"
)

// Analyzer enriches staged issues via an LLM completer and an embedder.
type Analyzer struct {
	completer provider.Completer
	embedder  provider.Embedder
	timeout   time.Duration
}

// Analysis is the structured output for one issue.
type Analysis struct {
	Category   string
	Summary    string
	RootCause  string
	Solution   string
	Confidence string
	Embedding  []float32
}

// New creates an Analyzer. If timeout is zero, each external call defaults
// to 60 seconds.
func New(completer provider.Completer, embedder provider.Embedder, timeout time.Duration) *Analyzer {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Analyzer{
		completer: completer,
		embedder:  embedder,
		timeout:   timeout,
	}
}

// llmResponse is the JSON contract expected from the LLM.
type llmResponse struct {
	Category   string  `json:"category"`
	Summary    string  `json:"summary"`
	RootCause  *string `json:"rootCause"`
	Solution   string  `json:"solution"`
	Confidence string  `json:"confidenceScore"`
}

// codeFenceRe matches markdown code fences around JSON.
var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\\s*```")

// parseResponse parses the LLM's JSON response, stripping markdown fences if
// present. A parse failure is an error, never a silent default: downstream
// persistence requires every field, and the pipeline counts the failure.
func parseResponse(raw string) (*llmResponse, error) {
	cleaned := strings.TrimSpace(raw)

	if matches := codeFenceRe.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = strings.TrimSpace(matches[1])
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("%w: %s", provider.ErrInvalidResponse, err)
	}

	if !validCategory(resp.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", provider.ErrInvalidResponse, resp.Category)
	}
	if !validConfidence(resp.Confidence) {
		return nil, fmt.Errorf("%w: unknown confidence %q", provider.ErrInvalidResponse, resp.Confidence)
	}
	if resp.Summary == "" || resp.Solution == "" {
		return nil, fmt.Errorf("%w: missing summary or solution", provider.ErrInvalidResponse)
	}

	return &resp, nil
}

func validCategory(c string) bool {
	switch c {
	case store.CategoryBug, store.CategoryFeatureRequest, store.CategoryQuestion, store.CategoryOther:
		return true
	}
	return false
}

func validConfidence(c string) bool {
	switch c {
	case store.ConfidenceHigh, store.ConfidenceMedium, store.ConfidenceLow:
		return true
	}
	return false
}

// Analyze runs the full enrichment for one staged issue: prompt the LLM,
// parse the JSON contract, then embed the synthesized document in passage
// mode (queries use the matching query mode; see the search layer).
func (a *Analyzer) Analyze(ctx context.Context, issue store.RawIssue) (*Analysis, error) {
	prompt, err := BuildPrompt(issue)
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	llmCtx, cancel := context.WithTimeout(ctx, a.timeout)
	raw, err := a.completer.Complete(llmCtx, systemInstruction, prompt)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("analyzing issue #%d: %w", issue.Number, err)
	}

	resp, err := parseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing analysis for issue #%d: %w", issue.Number, err)
	}

	analysis := &Analysis{
		Category:   resp.Category,
		Summary:    resp.Summary,
		Solution:   resp.Solution,
		Confidence: resp.Confidence,
	}
	if resp.RootCause != nil {
		analysis.RootCause = *resp.RootCause
	}

	embedCtx, cancel := context.WithTimeout(ctx, a.timeout)
	embedding, err := a.embedder.Embed(embedCtx, buildEmbeddingText(issue, analysis), provider.InputPassage)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embedding issue #%d: %w", issue.Number, err)
	}
	analysis.Embedding = embedding

	return analysis, nil
}
