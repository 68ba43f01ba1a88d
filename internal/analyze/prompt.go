package analyze

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/nvell/issuelens/internal/store"
)

// maxPromptComments caps how many comments are included in the analysis
// prompt; long threads rarely add signal past the first few replies.
const maxPromptComments = 10

const commentSeparator = "\n\n---\n\n"

// systemInstruction demands JSON-only output so the response can be parsed
// without scraping prose.
const systemInstruction = "You are a technical analyst that extracts structured information from GitHub issues. Always respond with valid JSON only."

const analysisPromptTemplate = `You are an expert technical support analyst. Analyze the following GitHub issue and extract structured information.

Issue Title: {{.Title}}

Issue Body:
{{.Body}}

Comments:
{{.Comments}}

Based on this discussion, provide a JSON response with the following structure:
{
  "category": "Bug" | "Feature Request" | "Question" | "Other",
  "summary": "A concise 2-3 sentence summary of the main problem or question",
  "rootCause": "The underlying technical cause (if identified, otherwise null)",
  "solution": "The solution provided, workaround suggested, or reason for closing (wontfix, duplicate, etc.)",
  "confidenceScore": "High" | "Medium" | "Low"
}

Guidelines:
- Focus on technical details, ignore social pleasantries
- If the issue was solved, extract the actual solution from comments
- If it's a wontfix/duplicate, explain why
- Be concise but technically accurate
- confidenceScore should be "High" if there's clear resolution, "Medium" if partial/workaround, "Low" if unresolved/unclear

Respond with valid JSON only, no additional text.`

type promptData struct {
	Title    string
	Body     string
	Comments string
}

var analysisTmpl = template.Must(template.New("analysis").Parse(analysisPromptTemplate))

// BuildPrompt renders the analysis prompt for one staged issue. The body
// falls back to a placeholder when empty, and at most the first
// maxPromptComments comments are included.
func BuildPrompt(issue store.RawIssue) (string, error) {
	body := issue.Body
	if body == "" {
		body = "No description provided"
	}

	comments := issue.Comments
	if len(comments) > maxPromptComments {
		comments = comments[:maxPromptComments]
	}
	commentsText := "No comments"
	if len(comments) > 0 {
		commentsText = strings.Join(comments, commentSeparator)
	}

	var buf bytes.Buffer
	err := analysisTmpl.Execute(&buf, promptData{
		Title:    issue.Title,
		Body:     body,
		Comments: commentsText,
	})
	if err != nil {
		return "", fmt.Errorf("rendering analysis prompt: %w", err)
	}
	return buf.String(), nil
}

// buildEmbeddingText synthesizes the document to embed. Field order is
// fixed: the analysis fields follow the raw issue text so the stored vector
// reflects both the question and its answered form.
func buildEmbeddingText(issue store.RawIssue, a *Analysis) string {
	body := issue.Body
	if body == "" {
		body = "No description"
	}
	rootCause := a.RootCause
	if rootCause == "" {
		rootCause = "Not identified"
	}

	return fmt.Sprintf(`Title: %s

Description: %s

Summary: %s

Root Cause: %s

Solution: %s

Category: %s`,
		issue.Title, body, a.Summary, rootCause, a.Solution, a.Category)
}
