// Package search implements keyword and vector retrieval over indexed
// issues. Both paths scan the store in pages so memory use stays flat
// regardless of index size, and neither ever returns embedding blobs to
// callers.
package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nvell/issuelens/internal/store"
)

const scanPageSize = 500

// Result is a scored issue returned by either search path.
type Result struct {
	Issue store.Issue `json:"issue"`
	Score float64     `json:"score"`

	// matchCount is the primary keyword rank key; unused for vector results.
	matchCount int
}

// issueLister is the slice of the store the keyword path needs.
type issueLister interface {
	ListIssuesPage(offset, limit int) ([]store.Issue, error)
}

// Keyword runs a substring token match over title, summary, solution and
// category. Score is the fraction of query tokens that matched; ties on
// match count break by score.
func Keyword(db issueLister, query string, limit int) ([]Result, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	var results []Result
	for offset := 0; ; offset += scanPageSize {
		page, err := db.ListIssuesPage(offset, scanPageSize)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		for _, issue := range page {
			haystack := strings.ToLower(issue.Title + " " + issue.Summary + " " + issue.Solution + " " + issue.Category)
			matched := 0
			for _, tok := range tokens {
				if strings.Contains(haystack, tok) {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			issue.Embedding = nil
			results = append(results, Result{
				Issue:      issue,
				Score:      float64(matched) / float64(len(tokens)),
				matchCount: matched,
			})
		}
		if len(page) < scanPageSize {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].matchCount != results[j].matchCount {
			return results[i].matchCount > results[j].matchCount
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func tokenize(query string) []string {
	var tokens []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
