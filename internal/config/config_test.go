package config

import (
	"os"
	"strings"
	"testing"
)

const minimalYAML = `
github:
  token: ghp_test
  owner: serpapi
  repo: public-roadmap
providers:
  llm:
    type: openai
    api_key: sk-test
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if cfg.GitHub.Auth != "token" {
		t.Errorf("expected auth token, got %q", cfg.GitHub.Auth)
	}
	if cfg.Sync.PerPage != 100 {
		t.Errorf("expected per_page 100, got %d", cfg.Sync.PerPage)
	}
	if cfg.Sync.MaxPages != 30 {
		t.Errorf("expected max_pages 30, got %d", cfg.Sync.MaxPages)
	}
	if cfg.Sync.CommentBatchSize != 20 {
		t.Errorf("expected comment_batch_size 20, got %d", cfg.Sync.CommentBatchSize)
	}
	if cfg.Sync.AnalyzeBatchSize != 25 {
		t.Errorf("expected analyze_batch_size 25, got %d", cfg.Sync.AnalyzeBatchSize)
	}
	if cfg.Search.SimilarityThreshold != 0.25 {
		t.Errorf("expected similarity_threshold 0.25, got %f", cfg.Search.SimilarityThreshold)
	}
	if cfg.Search.EmbedMaxChars != 24000 {
		t.Errorf("expected embed_max_chars 24000, got %d", cfg.Search.EmbedMaxChars)
	}
	if cfg.Search.VectorDimensions != 2048 {
		t.Errorf("expected vector_dimensions 2048, got %d", cfg.Search.VectorDimensions)
	}

	delay, err := cfg.Sync.RateLimitDelay()
	if err != nil {
		t.Fatalf("RateLimitDelay returned error: %v", err)
	}
	if delay.Milliseconds() != 2100 {
		t.Errorf("expected 2100ms delay, got %s", delay)
	}
}

func TestParse_EmbeddingKeyDefaultsToLLMKey(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if cfg.Providers.Embedding.APIKey != "sk-test" {
		t.Errorf("expected embedding key to default to LLM key, got %q", cfg.Providers.Embedding.APIKey)
	}
}

func TestParse_MissingToken(t *testing.T) {
	yaml := `
github:
  owner: a
  repo: b
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for missing github token")
	}
	if !strings.Contains(err.Error(), "github.token") {
		t.Errorf("expected token error, got: %v", err)
	}
}

func TestParse_MissingLLMKey(t *testing.T) {
	yaml := `
github:
  token: ghp_test
  owner: a
  repo: b
providers:
  llm:
    type: openai
    model: some-model
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for missing LLM API key")
	}
	if !strings.Contains(err.Error(), "llm.api_key") {
		t.Errorf("expected api_key error, got: %v", err)
	}
}

func TestParse_ExplicitEmbeddingKeyOnly(t *testing.T) {
	// An embedding key alone does not make the config viable: the LLM
	// side still cannot authenticate.
	yaml := `
github:
  token: ghp_test
  owner: a
  repo: b
providers:
  embedding:
    api_key: nvapi-test
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for missing LLM API key")
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	os.Setenv("TEST_IL_TOKEN", "ghp_fromenv")
	defer os.Unsetenv("TEST_IL_TOKEN")

	yaml := `
github:
  token: ${TEST_IL_TOKEN}
  owner: a
  repo: b
providers:
  llm:
    api_key: k
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.GitHub.Token != "ghp_fromenv" {
		t.Errorf("expected token from env, got %q", cfg.GitHub.Token)
	}
}

func TestParse_EnvExpansion_Missing(t *testing.T) {
	yaml := `
github:
  token: ${TEST_IL_DOES_NOT_EXIST}
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "TEST_IL_DOES_NOT_EXIST") {
		t.Errorf("expected missing var name in error, got: %v", err)
	}
}

func TestParse_InvalidThreshold(t *testing.T) {
	yaml := minimalYAML + `
search:
  similarity_threshold: 1.5
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
}

func TestParse_InvalidDailyHour(t *testing.T) {
	yaml := minimalYAML + `
sync:
  daily_hour_utc: 24
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range daily hour")
	}
}

func TestParse_InvalidPerPage(t *testing.T) {
	yaml := minimalYAML + `
sync:
  per_page: 150
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for per_page above GitHub cap")
	}
}
