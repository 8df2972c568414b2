package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the citedex API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Store      StoreConfig      `yaml:"store"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Market     MarketConfig     `yaml:"market"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig holds vector store settings. Driver "redis" talks to a Redis 8+
// instance via rueidis; "chromem" runs an embedded store persisted under Path.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // redis, chromem (default: chromem)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	Path             string   `yaml:"path"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	CacheEnabled        bool   `yaml:"cache_enabled"`
}

// GenerationConfig holds generation provider settings. Provider "api" uses an
// OpenAI-compatible endpoint, "ollama" a local ollama server.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // api, ollama (default: api)
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// ChunkingConfig holds chunker settings.
type ChunkingConfig struct {
	SizeWords    int `yaml:"size_words"`
	OverlapWords int `yaml:"overlap_words"`
}

// RetrievalConfig holds retrieval and reranking settings. The similarity
// threshold is the refusal gate and must stay configurable.
type RetrievalConfig struct {
	TopK                int            `yaml:"top_k"`
	CandidateK          int            `yaml:"candidate_k"`
	SimilarityThreshold float64        `yaml:"similarity_threshold"`
	MaxSources          int            `yaml:"max_sources"`
	Reranker            RerankerConfig `yaml:"reranker"`
}

// RerankerConfig holds hybrid reranker fusion weights.
type RerankerConfig struct {
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	NumericWeight  float64 `yaml:"numeric_weight"`
	PhraseBonus    float64 `yaml:"phrase_bonus"`
}

// MarketConfig holds market-intel enrichment settings.
type MarketConfig struct {
	Enabled    bool     `yaml:"enabled"`
	TimeoutSec int      `yaml:"timeout_sec"`
	Tickers    []string `yaml:"tickers"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "chromem"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/index"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "citedex:"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "api"
	}
	if c.Generation.Temperature < 0 {
		c.Generation.Temperature = 0
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 500
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 30
	}
	if c.Chunking.SizeWords <= 0 {
		c.Chunking.SizeWords = 220
	}
	if c.Chunking.OverlapWords < 0 {
		c.Chunking.OverlapWords = 0
	}
	if c.Chunking.OverlapWords == 0 && c.Chunking.SizeWords > 40 {
		c.Chunking.OverlapWords = 40
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 8
	}
	if c.Retrieval.CandidateK < c.Retrieval.TopK {
		c.Retrieval.CandidateK = c.Retrieval.TopK * 3
	}
	if c.Retrieval.SimilarityThreshold <= 0 {
		c.Retrieval.SimilarityThreshold = 0.2
	}
	if c.Retrieval.MaxSources <= 0 {
		c.Retrieval.MaxSources = 3
	}
	r := &c.Retrieval.Reranker
	if r.SemanticWeight <= 0 && r.LexicalWeight <= 0 && r.NumericWeight <= 0 {
		r.SemanticWeight = 0.6
		r.LexicalWeight = 0.3
		r.NumericWeight = 0.1
		r.PhraseBonus = 0.05
	}
	if c.Market.TimeoutSec <= 0 {
		c.Market.TimeoutSec = 8
	}
	if len(c.Market.Tickers) == 0 {
		c.Market.Tickers = []string{"CRWD", "PANW", "FTNT", "CHKP"}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case "redis":
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for the redis driver")
		}
	case "chromem":
		// embedded, no address needed
	default:
		return fmt.Errorf("store.driver must be \"redis\" or \"chromem\", got %q", c.Store.Driver)
	}
	switch c.Generation.Provider {
	case "api", "ollama":
	default:
		return fmt.Errorf("generation.provider must be \"api\" or \"ollama\", got %q", c.Generation.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Chunking.OverlapWords >= c.Chunking.SizeWords {
		return fmt.Errorf("chunking.overlap_words must be smaller than chunking.size_words")
	}
	if c.Retrieval.SimilarityThreshold >= 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be below 1, got %v", c.Retrieval.SimilarityThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
