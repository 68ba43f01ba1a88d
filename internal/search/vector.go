package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nvell/issuelens/internal/provider"
	"github.com/nvell/issuelens/internal/store"
	"github.com/nvell/issuelens/internal/vector"
)

const maxCandidates = 256

// stopwords excluded from the keyword-overlap boost. Tokens this common
// would otherwise boost nearly every candidate.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "with": true, "and": true, "or": true,
	"not": true, "it": true, "this": true, "that": true, "when": true,
	"how": true, "what": true, "why": true, "does": true, "do": true,
	"i": true, "my": true, "we": true, "you": true,
}

// vectorStore is the slice of the store the vector path needs.
type vectorStore interface {
	ListEmbeddingsPage(offset, limit int) ([]store.IssueEmbedding, error)
	GetIssuesByIDs(ids []int64) ([]store.Issue, error)
}

// candidate is an issue that cleared the similarity threshold.
type candidate struct {
	issueID    int64
	similarity float64
}

// Vector embeds the query and ranks stored issues by cosine similarity,
// then re-ranks the surviving candidates with metadata boosts: analysis
// confidence, query-token overlap in title/summary, and a leading
// bracket tag (e.g. "[Stripe]") matching a query token.
func Vector(ctx context.Context, db vectorStore, embedder provider.Embedder, query string, limit int, threshold float64) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	queryVec, err := embedder.Embed(ctx, query, provider.InputQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var candidates []candidate
	for offset := 0; ; offset += scanPageSize {
		page, err := db.ListEmbeddingsPage(offset, scanPageSize)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		for _, row := range page {
			stored := vector.Decode(row.Embedding)
			sim, err := vector.Cosine(queryVec, stored)
			if err != nil {
				return nil, fmt.Errorf("issue %d: %w", row.IssueID, err)
			}
			if float64(sim) < threshold {
				continue
			}
			candidates = append(candidates, candidate{issueID: row.IssueID, similarity: float64(sim)})
		}
		if len(page) < scanPageSize {
			break
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})
	keep := limit * 5
	if keep > maxCandidates {
		keep = maxCandidates
	}
	if len(candidates) > keep {
		candidates = candidates[:keep]
	}

	ids := make([]int64, len(candidates))
	simByID := make(map[int64]float64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.issueID
		simByID[c.issueID] = c.similarity
	}
	issues, err := db.GetIssuesByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	tokens := tokenize(query)
	results := make([]Result, 0, len(issues))
	for _, issue := range issues {
		score := simByID[issue.ID] * boost(issue, tokens)
		issue.Embedding = nil
		results = append(results, Result{Issue: issue, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// boost computes the multiplicative re-rank factor for one candidate.
func boost(issue store.Issue, tokens []string) float64 {
	factor := 1.0
	switch issue.Confidence {
	case store.ConfidenceHigh:
		factor *= 1.2
	case store.ConfidenceLow:
		factor *= 0.8
	}

	text := strings.ToLower(issue.Title + " " + issue.Summary)
	for _, tok := range tokens {
		if stopwords[tok] {
			continue
		}
		if strings.Contains(text, tok) {
			factor *= 1.5
			break
		}
	}

	if tag := bracketTag(issue.Title); tag != "" {
		for _, tok := range tokens {
			if tok == tag {
				factor *= 2.0
				break
			}
		}
	}
	return factor
}

// bracketTag extracts the first word of a leading "[Vendor Name]" tag,
// lowercased, or "" if the title has no such tag.
func bracketTag(title string) string {
	if !strings.HasPrefix(title, "[") {
		return ""
	}
	end := strings.Index(title, "]")
	if end < 1 {
		return ""
	}
	inner := strings.TrimSpace(title[1:end])
	if inner == "" {
		return ""
	}
	first := strings.Fields(inner)[0]
	return strings.ToLower(first)
}
