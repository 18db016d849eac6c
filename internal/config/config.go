package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ChunkerConfig bounds the token budget of produced chunks.
type ChunkerConfig struct {
	Encoding      string `yaml:"encoding" envconfig:"ENCODING"`
	MaxTokens     int    `yaml:"max_tokens" envconfig:"MAX_TOKENS"`
	OverlapTokens int    `yaml:"overlap_tokens" envconfig:"OVERLAP_TOKENS"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible
// embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" envconfig:"BASE_URL"`
	APIKeyEnv   string `yaml:"api_key_env" envconfig:"API_KEY_ENV"`
	Model       string `yaml:"model" envconfig:"MODEL"`
	TimeoutSecs int    `yaml:"timeout_secs" envconfig:"TIMEOUT_SECS"`
	BatchSize   int    `yaml:"batch_size" envconfig:"BATCH_SIZE"`
}

// EmbedderConfig selects and configures the embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type" envconfig:"TYPE"`
	Dimension int                   `yaml:"dimension" envconfig:"DIMENSION"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// IndexConfig selects and configures the index store backend.
type IndexConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND"`
	// Dir holds the jsonfile artifacts.
	Dir string `yaml:"dir" envconfig:"DIR"`
	// Path is the bolt database file.
	Path string `yaml:"path" envconfig:"PATH"`
}

// SearchConfig configures query-time retrieval.
type SearchConfig struct {
	TopK int `yaml:"top_k" envconfig:"TOP_K"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	SourceDir string         `yaml:"source_dir" envconfig:"SOURCE_DIR"`
	LogLevel  string         `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Chunker   ChunkerConfig  `yaml:"chunker"`
	Embedder  EmbedderConfig `yaml:"embedder"`
	Index     IndexConfig    `yaml:"index"`
	Search    SearchConfig   `yaml:"search"`
}

// Load reads a config from path. A missing file yields the defaults.
// RAG_* environment variables override file values either way.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyConfigDefaults(cfg)
	if err := envconfig.Process("rag", cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then the user config dir. If
// neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Logger builds the application logger at the configured level.
func (c *AppConfig) Logger(w io.Writer) *log.Logger {
	logger := log.New(w)
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragengine", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		SourceDir: "docs",
		LogLevel:  "info",
		Chunker:   ChunkerConfig{Encoding: "cl100k_base", MaxTokens: 800, OverlapTokens: 120},
		Embedder:  EmbedderConfig{Type: "hashing", Dimension: 384},
		Index:     IndexConfig{Backend: "jsonfile", Dir: filepath.Join("data", "index"), Path: filepath.Join("data", "index.db")},
		Search:    SearchConfig{TopK: 5},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.SourceDir == "" {
		cfg.SourceDir = def.SourceDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = def.Chunker.Encoding
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = def.Chunker.MaxTokens
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = def.Chunker.OverlapTokens
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = def.Embedder.Dimension
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		oa := cfg.Embedder.OpenAI
		if oa.BaseURL == "" {
			oa.BaseURL = "https://api.openai.com/v1"
		}
		if oa.APIKeyEnv == "" {
			oa.APIKeyEnv = "OPENAI_API_KEY"
		}
		if oa.Model == "" {
			oa.Model = "text-embedding-3-small"
		}
		if oa.TimeoutSecs == 0 {
			oa.TimeoutSecs = 30
		}
		if oa.BatchSize == 0 {
			oa.BatchSize = 32
		}
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = def.Index.Backend
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = def.Index.Dir
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = def.Index.Path
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = def.Search.TopK
	}
}
