package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub    GitHubConfig    `yaml:"github"`
	Providers ProvidersConfig `yaml:"providers"`
	Sync      SyncConfig      `yaml:"sync"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
}

// GitHubConfig holds GitHub authentication and target repository settings.
type GitHubConfig struct {
	Auth           string `yaml:"auth"` // "token" (default) or "app"
	Token          string `yaml:"token"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
	Owner          string `yaml:"owner"`
	Repo           string `yaml:"repo"`
}

// ProviderConfig holds settings for a single provider (LLM or embedding).
type ProviderConfig struct {
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

// ProvidersConfig groups LLM and embedding provider configs.
type ProvidersConfig struct {
	LLM       ProviderConfig `yaml:"llm"`
	Embedding ProviderConfig `yaml:"embedding"`
}

// SyncConfig holds pipeline tuning parameters.
type SyncConfig struct {
	PerPage           int    `yaml:"per_page"`
	MaxPages          int    `yaml:"max_pages"`
	CommentBatchSize  int    `yaml:"comment_batch_size"`
	AnalyzeBatchSize  int    `yaml:"analyze_batch_size"`
	RateLimitDelayRaw string `yaml:"rate_limit_delay"`
	DailyHourUTC      *int   `yaml:"daily_hour_utc"`
	DailyMinuteUTC    int    `yaml:"daily_minute_utc"`
}

// SearchConfig holds search and embedding-space parameters.
type SearchConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	EmbedMaxChars       int     `yaml:"embed_max_chars"`
	VectorDimensions    int     `yaml:"vector_dimensions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RateLimitDelay returns the parsed delay between analyze-batch issues.
func (s SyncConfig) RateLimitDelay() (time.Duration, error) {
	if s.RateLimitDelayRaw == "" {
		return 2100 * time.Millisecond, nil
	}
	return time.ParseDuration(s.RateLimitDelayRaw)
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.GitHub.Auth == "" {
		cfg.GitHub.Auth = "token"
	}
	if cfg.Sync.PerPage == 0 {
		cfg.Sync.PerPage = 100
	}
	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = 30
	}
	if cfg.Sync.CommentBatchSize == 0 {
		cfg.Sync.CommentBatchSize = 20
	}
	if cfg.Sync.AnalyzeBatchSize == 0 {
		cfg.Sync.AnalyzeBatchSize = 25
	}
	if cfg.Sync.RateLimitDelayRaw == "" {
		cfg.Sync.RateLimitDelayRaw = "2100ms"
	}
	if cfg.Search.SimilarityThreshold == 0 {
		cfg.Search.SimilarityThreshold = 0.25
	}
	if cfg.Search.EmbedMaxChars == 0 {
		cfg.Search.EmbedMaxChars = 24000
	}
	if cfg.Search.VectorDimensions == 0 {
		cfg.Search.VectorDimensions = 2048
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8085
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.issuelens/issuelens.db"
	}
	if cfg.Providers.Embedding.APIKey == "" {
		cfg.Providers.Embedding.APIKey = cfg.Providers.LLM.APIKey
	}
}

func validate(cfg *Config) error {
	switch cfg.GitHub.Auth {
	case "token":
		if cfg.GitHub.Token == "" {
			return fmt.Errorf("github.token is required when github.auth is %q", cfg.GitHub.Auth)
		}
	case "app":
		if cfg.GitHub.AppID == "" || cfg.GitHub.InstallationID == "" {
			return fmt.Errorf("github.app_id and github.installation_id are required when github.auth is %q", cfg.GitHub.Auth)
		}
	default:
		return fmt.Errorf("github.auth must be \"token\" or \"app\", got %q", cfg.GitHub.Auth)
	}

	// The embedding key defaults to the LLM key, so an empty LLM key here
	// means no provider call can authenticate. Fail now rather than after
	// a full GitHub fetch.
	if cfg.Providers.LLM.APIKey == "" {
		return fmt.Errorf("providers.llm.api_key is required")
	}
	if cfg.Providers.Embedding.APIKey == "" {
		return fmt.Errorf("providers.embedding.api_key is required")
	}

	if cfg.Sync.PerPage < 1 || cfg.Sync.PerPage > 100 {
		return fmt.Errorf("sync.per_page must be between 1 and 100, got %d", cfg.Sync.PerPage)
	}
	if cfg.Sync.MaxPages < 1 {
		return fmt.Errorf("sync.max_pages must be at least 1, got %d", cfg.Sync.MaxPages)
	}
	if _, err := time.ParseDuration(cfg.Sync.RateLimitDelayRaw); err != nil {
		return fmt.Errorf("invalid rate_limit_delay %q: %w", cfg.Sync.RateLimitDelayRaw, err)
	}
	if cfg.Sync.DailyHourUTC != nil {
		if *cfg.Sync.DailyHourUTC < 0 || *cfg.Sync.DailyHourUTC > 23 {
			return fmt.Errorf("sync.daily_hour_utc must be between 0 and 23, got %d", *cfg.Sync.DailyHourUTC)
		}
		if cfg.Sync.DailyMinuteUTC < 0 || cfg.Sync.DailyMinuteUTC > 59 {
			return fmt.Errorf("sync.daily_minute_utc must be between 0 and 59, got %d", cfg.Sync.DailyMinuteUTC)
		}
	}

	if cfg.Search.SimilarityThreshold < 0 || cfg.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %f", cfg.Search.SimilarityThreshold)
	}
	if cfg.Search.VectorDimensions < 1 {
		return fmt.Errorf("vector_dimensions must be positive, got %d", cfg.Search.VectorDimensions)
	}

	return nil
}
