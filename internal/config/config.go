// Package config loads refvec configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML file
// (<root>/.refvec.yaml or an explicit path), REFVEC_* environment
// variables, then whatever the caller sets from command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/logging"
)

// FileName is the per-directory configuration file.
const FileName = ".refvec.yaml"

// DefaultDataDirName is the state directory created under the reference root.
const DefaultDataDirName = ".refvec"

// Fingerprint modes.
const (
	FingerprintContent = "content"
	FingerprintStat    = "stat"
)

// Config is the complete refvec configuration. It is passed explicitly to
// every component constructor.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Scan       ScanConfig       `yaml:"scan"`
	Chunk      ChunkConfig      `yaml:"chunk"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Retry      RetryConfig      `yaml:"retry"`
	Index      IndexConfig      `yaml:"index"`
	Watch      WatchConfig      `yaml:"watch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig locates the reference documents and refvec's own state.
type PathsConfig struct {
	// Root is the reference-document directory. Set by Load, not read from YAML.
	Root string `yaml:"-"`
	// DataDir holds the metadata store, index and logs. Relative paths are
	// resolved against Root. Defaults to <root>/.refvec.
	DataDir string `yaml:"data_dir"`
}

// ScanConfig controls file discovery.
type ScanConfig struct {
	Extensions  []string `yaml:"extensions"`
	Fingerprint string   `yaml:"fingerprint"`
	Concurrency int      `yaml:"concurrency"`
}

// ChunkConfig bounds extracted chunks, measured in runes.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
	// MaxPerFile caps chunks taken from one document. 0 means no cap.
	MaxPerFile int `yaml:"max_per_file"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	OllamaHost        string        `yaml:"ollama_host"`
	BatchSize         int           `yaml:"batch_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
}

// RetryConfig is the bounded retry policy for embedding calls.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// IndexConfig selects the derived index backends and search fusion.
type IndexConfig struct {
	VectorBackend  string  `yaml:"vector_backend"`
	KeywordBackend string  `yaml:"keyword_backend"`
	SearchLimit    int     `yaml:"search_limit"`
	VectorWeight   float64 `yaml:"vector_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	RRFConstant    int     `yaml:"rrf_constant"`
	// TestQuery is what the test command searches for without --query.
	TestQuery string `yaml:"test_query"`
}

// WatchConfig tunes the watch command.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// NewConfig returns a Config populated with defaults and no root.
func NewConfig() *Config {
	return &Config{
		Scan: ScanConfig{
			Extensions:  []string{".pdf", ".txt", ".md", ".docx", ".xlsx"},
			Fingerprint: FingerprintContent,
			Concurrency: 4,
		},
		Chunk: ChunkConfig{
			Size:    1200,
			Overlap: 200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "ollama",
			Model:             "nomic-embed-text",
			OllamaHost:        "http://localhost:11434",
			BatchSize:         16,
			RequestsPerSecond: 0,
			Timeout:           60 * time.Second,
			CacheSize:         256,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2.0,
		},
		Index: IndexConfig{
			VectorBackend:  "hnsw",
			KeywordBackend: "sqlite",
			SearchLimit:    5,
			VectorWeight:   0.65,
			KeywordWeight:  0.35,
			RRFConstant:    60,
			TestQuery:      "installation and maintenance procedure",
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			MaxFiles: 3,
		},
	}
}

// Load builds the configuration for the reference directory root.
// configFile overrides the default <root>/.refvec.yaml lookup; an explicit
// file that does not exist is an error, a missing default file is not.
func Load(root, configFile string) (*Config, error) {
	cfg := NewConfig()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, rverrors.ConfigurationError(fmt.Sprintf("invalid reference path %q", root), err)
	}
	cfg.Paths.Root = absRoot

	if configFile != "" {
		if err := cfg.loadYAML(configFile); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromDir(absRoot); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{FileName, ".refvec.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path on top of the current values, so keys absent from
// the file keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		code := rverrors.ErrCodeConfigNotFound
		if os.IsPermission(err) {
			code = rverrors.ErrCodeConfigPermission
		}
		return rverrors.New(code, fmt.Sprintf("failed to read config file %s", path), err)
	}

	root := c.Paths.Root
	if err := yaml.Unmarshal(data, c); err != nil {
		return rverrors.ConfigurationError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	c.Paths.Root = root
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REFVEC_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("REFVEC_EXTENSIONS"); v != "" {
		c.Scan.Extensions = strings.Split(v, ",")
	}
	if v := os.Getenv("REFVEC_FINGERPRINT"); v != "" {
		c.Scan.Fingerprint = v
	}
	if v := os.Getenv("REFVEC_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunk.Size = n
		}
	}
	if v := os.Getenv("REFVEC_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunk.Overlap = n
		}
	}
	if v := os.Getenv("REFVEC_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("REFVEC_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("REFVEC_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("REFVEC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("REFVEC_VECTOR_BACKEND"); v != "" {
		c.Index.VectorBackend = v
	}
	if v := os.Getenv("REFVEC_KEYWORD_BACKEND"); v != "" {
		c.Index.KeywordBackend = v
	}
	if v := os.Getenv("REFVEC_TEST_QUERY"); v != "" {
		c.Index.TestQuery = v
	}
	if v := os.Getenv("REFVEC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) resolvePaths() {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = filepath.Join(c.Paths.Root, DefaultDataDirName)
	} else if !filepath.IsAbs(c.Paths.DataDir) {
		c.Paths.DataDir = filepath.Join(c.Paths.Root, c.Paths.DataDir)
	}

	exts := make([]string, 0, len(c.Scan.Extensions))
	for _, ext := range c.Scan.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	c.Scan.Extensions = exts
	c.Scan.Fingerprint = strings.ToLower(c.Scan.Fingerprint)
	c.Embeddings.Provider = strings.ToLower(c.Embeddings.Provider)
	c.Index.VectorBackend = strings.ToLower(c.Index.VectorBackend)
	c.Index.KeywordBackend = strings.ToLower(c.Index.KeywordBackend)
}

// Validate checks the configuration and returns a ConfigurationError
// describing the first problem found.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return rverrors.ConfigurationError(fmt.Sprintf(format, args...), nil)
	}

	if len(c.Scan.Extensions) == 0 {
		return invalid("scan.extensions must list at least one extension")
	}
	switch c.Scan.Fingerprint {
	case FingerprintContent, FingerprintStat:
	default:
		return invalid("scan.fingerprint must be 'content' or 'stat', got %q", c.Scan.Fingerprint)
	}
	if c.Scan.Concurrency < 1 {
		return invalid("scan.concurrency must be at least 1, got %d", c.Scan.Concurrency)
	}

	if c.Chunk.Size < 64 {
		return invalid("chunk.size must be at least 64, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return invalid("chunk.overlap must be in [0, chunk.size), got %d", c.Chunk.Overlap)
	}
	if c.Chunk.MaxPerFile < 0 {
		return invalid("chunk.max_per_file must be non-negative, got %d", c.Chunk.MaxPerFile)
	}

	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return invalid("embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize < 1 || c.Embeddings.BatchSize > 256 {
		return invalid("embeddings.batch_size must be between 1 and 256, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return invalid("embeddings.requests_per_second must be non-negative")
	}

	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		return invalid("retry.max_retries must be between 0 and 10, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Multiplier < 1 {
		return invalid("retry.multiplier must be at least 1, got %g", c.Retry.Multiplier)
	}

	switch c.Index.VectorBackend {
	case "hnsw", "chromem":
	default:
		return invalid("index.vector_backend must be 'hnsw' or 'chromem', got %q", c.Index.VectorBackend)
	}
	switch c.Index.KeywordBackend {
	case "sqlite", "bleve":
	default:
		return invalid("index.keyword_backend must be 'sqlite' or 'bleve', got %q", c.Index.KeywordBackend)
	}
	if c.Index.SearchLimit < 1 {
		return invalid("index.search_limit must be at least 1, got %d", c.Index.SearchLimit)
	}
	if c.Index.VectorWeight < 0 || c.Index.KeywordWeight < 0 || c.Index.VectorWeight+c.Index.KeywordWeight == 0 {
		return invalid("index.vector_weight and index.keyword_weight must be non-negative and not both zero")
	}
	if strings.TrimSpace(c.Index.TestQuery) == "" {
		return invalid("index.test_query must not be empty")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}
	return nil
}

// RetryPolicy converts the retry settings into the policy object injected
// into the indexer.
func (c *Config) RetryPolicy() rverrors.RetryConfig {
	return rverrors.RetryConfig{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   c.Retry.Multiplier,
		Jitter:       true,
	}
}

// MetadataPath is the metadata store file.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Paths.DataDir, "metadata.db")
}

// IndexDir is where the index files live.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Paths.DataDir, "index")
}

// LockPath is the writer run lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "run.lock")
}

// LogPath is the append-only log file.
func (c *Config) LogPath() string {
	return logging.LogPath(c.Paths.DataDir)
}
