package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nvell/issuelens/internal/analyze"
	"github.com/nvell/issuelens/internal/config"
	"github.com/nvell/issuelens/internal/github"
	"github.com/nvell/issuelens/internal/provider"
	"github.com/nvell/issuelens/internal/pubsub"
	"github.com/nvell/issuelens/internal/store"
	issuesync "github.com/nvell/issuelens/internal/sync"

	gogithub "github.com/google/go-github/v60/github"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "issuelens",
	Short: "Index a repository's closed issues and search them",
	Long: `Issuelens ingests a GitHub repository's closed issues, enriches each
one with an LLM analysis (category, summary, root cause, solution) and
a retrieval embedding, and serves keyword and semantic search plus
dashboard stats over the indexed corpus.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		// Optional .env next to the working directory, matching how the
		// config file references ${VAR} secrets.
		_ = godotenv.Load()
	})
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".issuelens/config.yaml"
	}
	return filepath.Join(home, ".issuelens", "config.yaml")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	return config.Load(path)
}

// expandHome resolves a leading ~/ in a configured path.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// components holds initialized components for use by subcommands.
type components struct {
	Config    *config.Config
	Store     *store.DB
	GHClient  *gogithub.Client
	Embedder  provider.Embedder
	Completer provider.Completer
	Analyzer  *analyze.Analyzer
	Broker    *pubsub.Broker
	Logger    *slog.Logger
}

// initComponents creates all components from config.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	dbPath := expandHome(cfg.Store.Path)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := store.Open(dbPath, cfg.Search.VectorDimensions)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = db

	switch cfg.GitHub.Auth {
	case "app":
		appID, err := strconv.ParseInt(cfg.GitHub.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing app_id: %w", err)
		}
		installID, err := strconv.ParseInt(cfg.GitHub.InstallationID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing installation_id: %w", err)
		}
		client, err := github.NewAppClient(appID, installID, []byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("creating GitHub client: %w", err)
		}
		c.GHClient = client
	default:
		c.GHClient = github.NewTokenClient(cfg.GitHub.Token)
	}

	c.Embedder = provider.NewHTTPEmbedder(
		cfg.Providers.Embedding.APIKey,
		cfg.Providers.Embedding.URL,
		cfg.Providers.Embedding.Model,
		cfg.Search.EmbedMaxChars,
	)

	switch cfg.Providers.LLM.Type {
	case "", "openai":
		c.Completer = provider.NewOpenAICompleter(cfg.Providers.LLM.APIKey, cfg.Providers.LLM.URL, cfg.Providers.LLM.Model)
	case "anthropic":
		c.Completer = provider.NewAnthropicCompleter(cfg.Providers.LLM.APIKey, cfg.Providers.LLM.Model)
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %q", cfg.Providers.LLM.Type)
	}

	c.Analyzer = analyze.New(c.Completer, c.Embedder, 60*time.Second)
	c.Broker = pubsub.NewBroker()

	return c, nil
}

// newRunner builds a sync runner against the configured repository.
func newRunner(c *components) (*issuesync.Runner, error) {
	if c.Config.GitHub.Owner == "" || c.Config.GitHub.Repo == "" {
		return nil, fmt.Errorf("github.owner and github.repo must be configured")
	}
	delay, err := c.Config.Sync.RateLimitDelay()
	if err != nil {
		return nil, err
	}
	fetcher := github.NewFetcher(c.GHClient, c.Config.GitHub.Owner, c.Config.GitHub.Repo)
	return issuesync.New(issuesync.RunnerDeps{
		Fetcher:  fetcher,
		Analyzer: c.Analyzer,
		Store:    c.Store,
		Broker:   c.Broker,
		Logger:   c.Logger,
		Options: issuesync.Options{
			PerPage:      c.Config.Sync.PerPage,
			MaxPages:     c.Config.Sync.MaxPages,
			CommentBatch: c.Config.Sync.CommentBatchSize,
			AnalyzeBatch: c.Config.Sync.AnalyzeBatchSize,
			Delay:        delay,
		},
	}), nil
}
