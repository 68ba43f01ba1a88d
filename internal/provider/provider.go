package provider

import (
	"context"
	"errors"
	"unicode/utf8"
)

// Sentinel errors for provider operations.
var (
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrTimeout         = errors.New("request timed out")
	ErrInvalidResponse = errors.New("invalid response from provider")
)

// InputType selects the embedding mode of an asymmetric embedding model.
// Queries and documents live in the same similarity space only when each
// side is embedded with its matching mode.
type InputType string

const (
	InputQuery   InputType = "query"
	InputPassage InputType = "passage"
)

// Completer generates a chat completion from a system instruction and a
// user prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed returns a vector embedding for the given text using the given
	// input type mode.
	Embed(ctx context.Context, text string, inputType InputType) ([]float32, error)
}

// Truncate hard-caps text at maxChars, appending an ellipsis when anything
// was cut. Embedding providers enforce a token ceiling; ~3 chars per token
// keeps the default budget safely under it.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	// Back up to a rune boundary so a multi-byte character is never cut
	// mid-sequence.
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
