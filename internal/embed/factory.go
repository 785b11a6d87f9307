package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/refvec/internal/config"
	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses Ollama API for embeddings (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings: offline, deterministic,
	// lower quality
	ProviderStatic ProviderType = "static"
)

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ParseProvider converts a string to ProviderType
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ollama":
		return ProviderOllama, nil
	case "static":
		return ProviderStatic, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (valid: %s)", s, strings.Join(ValidProviders(), ", "))
	}
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderStatic)}
}

// NewEmbedder creates the embedder the configuration selects, wrapped in an
// LRU cache when cfg.CacheSize > 0.
//
// There is no silent fallback between providers: an index built with one
// model is unusable with another, so an unreachable Ollama is a
// configuration error, not a reason to switch to static vectors.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, rverrors.ConfigurationError(err.Error(), err)
	}

	var embedder Embedder
	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder(StaticDimensions)

	case ProviderOllama:
		ocfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ocfg.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			ocfg.Model = cfg.Model
		}
		if cfg.BatchSize > 0 {
			ocfg.BatchSize = cfg.BatchSize
		}
		if cfg.Timeout > 0 {
			ocfg.Timeout = cfg.Timeout
		}
		ocfg.RequestsPerSecond = cfg.RequestsPerSecond

		ollama, err := NewOllamaEmbedder(ctx, ocfg)
		if err != nil {
			return nil, rverrors.New(rverrors.ErrCodeEmbedderMissing, "ollama unavailable", err).
				WithDetail("host", ocfg.Host).
				WithDetail("model", ocfg.Model).
				WithSuggestion(fmt.Sprintf("start Ollama ('ollama serve') and pull the model ('ollama pull %s'), or set embeddings.provider: static", ocfg.Model))
		}
		embedder = ollama
	}

	slog.Debug("embedder_ready",
		slog.String("provider", provider.String()),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if cfg.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}
	return embedder, nil
}

// EmbedderInfo contains information about an embedder
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
}

// GetInfo returns information about an embedder
func GetInfo(embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.Inner()
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}
	return info
}
