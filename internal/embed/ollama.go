package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
//
// It makes exactly one HTTP attempt per batch. Retrying is the caller's
// concern: the indexer wraps calls in its injected retry policy, and
// transient failures come back marked retryable so that policy can tell
// them apart from permanent ones.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport // Store for connection cleanup
	config    OllamaConfig
	modelName string
	dims      int
	limiter   *rate.Limiter
	breaker   *rverrors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates a new Ollama embedder. Unless the health check
// is skipped it confirms the model is installed and detects its dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	defaults := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = defaults.BreakerReset
	}

	// IdleConnTimeout is short because CLI runs are short-lived.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No http.Client.Timeout: it would override the per-request context.
	client := &http.Client{Transport: transport}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	e := &OllamaEmbedder{
		client:    client,
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
		limiter:   rate.NewLimiter(limit, 1),
		breaker: rverrors.NewCircuitBreaker("ollama",
			rverrors.WithMaxFailures(cfg.BreakerFailures),
			rverrors.WithResetTimeout(cfg.BreakerReset)),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout+cfg.Timeout)
		defer cancel()

		modelName, err := e.findModel(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to connect to Ollama or find model: %w", err)
		}
		e.modelName = modelName

		if e.dims == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = dims
		}
	}

	return e, nil
}

// listModels gets available models from Ollama
func (e *OllamaEmbedder) listModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

// findModel resolves the configured model against the installed ones. A
// bare name matches any tag ("nomic-embed-text" matches
// "nomic-embed-text:latest"). There is no fallback to another model: the
// index records the model it was built with.
func (e *OllamaEmbedder) findModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	want := strings.ToLower(e.config.Model)
	wantBase, _, _ := strings.Cut(want, ":")
	for _, m := range models {
		name := strings.ToLower(m.Name)
		if name == want {
			return m.Name, nil
		}
	}
	if want == wantBase {
		for _, m := range models {
			base, _, _ := strings.Cut(strings.ToLower(m.Name), ":")
			if base == wantBase {
				return m.Name, nil
			}
		}
	}

	return "", fmt.Errorf("model %q is not installed (run: ollama pull %s)", e.config.Model, e.config.Model)
}

// detectDimensions auto-detects embedding dimensions from a test embedding
func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(embeddings[0]), nil
}

// Embed generates embedding for a single text
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts using Ollama's batch API
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Whitespace-only input gets a zero vector without a round trip
	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.Dimensions())
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.config.BatchSize, len(nonEmpty))
		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		var embeddings [][]float32
		err := e.breaker.Execute(func() error {
			var err error
			embeddings, err = e.doEmbed(ctx, batchTexts)
			return err
		})
		if errors.Is(err, rverrors.ErrCircuitOpen) {
			return nil, rverrors.New(rverrors.ErrCodeEmbeddingFailed, "embedding service is failing; circuit open", err)
		}
		if err != nil {
			return nil, err
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
		e.learnDimensions(embeddings)
	}

	return results, nil
}

// doEmbed performs a single batch embedding request.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(OllamaEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		// Parent cancellation is not a service failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, rverrors.New(rverrors.ErrCodeNetworkTimeout,
				fmt.Sprintf("embedding request timed out after %s", e.config.Timeout), err)
		}
		return nil, rverrors.NetworkError("failed to reach Ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		rerr := rverrors.New(rverrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
		// Client errors will not improve on retry; 429 and 5xx might.
		rerr.Retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, rerr
	}

	var apiResult OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, rverrors.New(rverrors.ErrCodeEmbeddingFailed, "failed to decode embedding response", err)
	}
	if len(apiResult.Embeddings) != len(texts) {
		rerr := rverrors.New(rverrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(apiResult.Embeddings)), nil)
		rerr.Retryable = false
		return nil, rerr
	}

	dims := e.Dimensions()
	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		if dims > 0 && len(emb) != dims {
			return nil, rverrors.New(rverrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("model returned %d dimensions, expected %d", len(emb), dims), nil)
		}
		embedding := make([]float32, len(emb))
		for j, v := range emb {
			embedding[j] = float32(v)
		}
		embeddings[i] = normalizeVector(embedding)
	}

	slog.Debug("embedding_batch_done",
		slog.Int("texts", len(texts)),
		slog.Duration("duration", time.Since(start)))

	return embeddings, nil
}

// learnDimensions records the dimension from the first response when the
// health check was skipped.
func (e *OllamaEmbedder) learnDimensions(embeddings [][]float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 && len(embeddings) > 0 {
		e.dims = len(embeddings[0])
	}
}

// Dimensions returns the embedding dimension
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier
func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Available checks if Ollama is running and the model is installed
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	_, err := e.findModel(ctx)
	return err == nil
}

// Close releases resources
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}
