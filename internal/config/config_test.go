package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, []string{".pdf", ".txt", ".md", ".docx", ".xlsx"}, cfg.Scan.Extensions)
	assert.Equal(t, FingerprintContent, cfg.Scan.Fingerprint)
	assert.Equal(t, 1200, cfg.Chunk.Size)
	assert.Equal(t, 200, cfg.Chunk.Overlap)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, "hnsw", cfg.Index.VectorBackend)
	assert.Equal(t, "sqlite", cfg.Index.KeywordBackend)
	assert.NotEmpty(t, cfg.Index.TestQuery)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	// Given: an empty reference directory
	root := t.TempDir()

	// When: loading configuration
	cfg, err := Load(root, "")

	// Then: defaults apply and the data dir sits under the root
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Paths.Root)
	assert.Equal(t, filepath.Join(root, ".refvec"), cfg.Paths.DataDir)
	assert.Equal(t, filepath.Join(root, ".refvec", "metadata.db"), cfg.MetadataPath())
	assert.Equal(t, filepath.Join(root, ".refvec", "index"), cfg.IndexDir())
	assert.Equal(t, filepath.Join(root, ".refvec", "logs", "refvec.log"), cfg.LogPath())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	// Given: a .refvec.yaml overriding a few keys
	root := t.TempDir()
	yaml := `
scan:
  extensions: [PDF, "txt"]
chunk:
  size: 800
embeddings:
  provider: static
retry:
  max_retries: 1
  initial_delay: 50ms
paths:
  data_dir: state
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(root, "")

	// Then: file values win, untouched keys keep defaults, paths resolve
	require.NoError(t, err)
	assert.Equal(t, []string{".pdf", ".txt"}, cfg.Scan.Extensions)
	assert.Equal(t, 800, cfg.Chunk.Size)
	assert.Equal(t, 200, cfg.Chunk.Overlap)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, filepath.Join(root, "state"), cfg.Paths.DataDir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("embeddings:\n  provider: ollama\n"), 0o644))
	t.Setenv("REFVEC_EMBEDDER", "static")
	t.Setenv("REFVEC_CHUNK_SIZE", "500")
	t.Setenv("REFVEC_TEST_QUERY", "valve torque")

	cfg, err := Load(root, "")

	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 500, cfg.Chunk.Size)
	assert.Equal(t, "valve torque", cfg.Index.TestQuery)
}

func TestLoad_ExplicitMissingFileIsConfigurationError(t *testing.T) {
	_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Equal(t, rverrors.KindConfiguration, rverrors.KindOf(err))
	assert.True(t, rverrors.IsFatal(err))
}

func TestLoad_MalformedYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("chunk: [unterminated"), 0o644))

	_, err := Load(root, "")

	require.Error(t, err)
	assert.Equal(t, rverrors.KindConfiguration, rverrors.KindOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"overlap too large", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }, "chunk.overlap"},
		{"tiny chunks", func(c *Config) { c.Chunk.Size = 10 }, "chunk.size"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }, "embeddings.provider"},
		{"unknown fingerprint", func(c *Config) { c.Scan.Fingerprint = "md5" }, "scan.fingerprint"},
		{"no extensions", func(c *Config) { c.Scan.Extensions = nil }, "scan.extensions"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"unknown vector backend", func(c *Config) { c.Index.VectorBackend = "faiss" }, "index.vector_backend"},
		{"unknown keyword backend", func(c *Config) { c.Index.KeywordBackend = "lucene" }, "index.keyword_backend"},
		{"zero weights", func(c *Config) { c.Index.VectorWeight, c.Index.KeywordWeight = 0, 0 }, "weight"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"blank test query", func(c *Config) { c.Index.TestQuery = "  " }, "index.test_query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := NewConfig()
	cfg.Retry.MaxRetries = 2

	p := cfg.RetryPolicy()

	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 3, p.Attempts())
	assert.Equal(t, 500*time.Millisecond, p.InitialDelay)
}
