// Package pipeline keeps the index consistent with the reference directory.
//
// Each run scans the directory, diffs the result against the metadata
// store and walks every file that needs work through
// extracting → indexing → committed (or failed). A file's record is only
// written after its index upsert succeeded, so an interrupted run leaves
// every file either fully indexed and recorded, or unrecorded and due for
// the next run.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/refvec/internal/config"
	"github.com/Aman-CERP/refvec/internal/embed"
	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/extract"
	"github.com/Aman-CERP/refvec/internal/index"
	"github.com/Aman-CERP/refvec/internal/scanner"
	"github.com/Aman-CERP/refvec/internal/store"
	"github.com/Aman-CERP/refvec/internal/ui"
)

// State is where a file stands within one run.
type State string

const (
	StateUnseen          State = "unseen"
	StateNeedsProcessing State = "needs_processing"
	StateExtracting      State = "extracting"
	StateIndexing        State = "indexing"
	StateCommitted       State = "committed"
	StateFailed          State = "failed"
	StateSkipped         State = "skipped"
)

// Terminal reports whether no further transition follows s in a run.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed || s == StateSkipped
}

// Orchestrator runs the pipeline operations over one reference directory.
// All collaborators are fixed at construction.
type Orchestrator struct {
	cfg       *config.Config
	embedder  embed.Embedder
	scanner   *scanner.Scanner
	extractor *extract.Extractor
	renderer  ui.Renderer
	retry     rverrors.RetryConfig
	now       func() time.Time

	lock *RunLock
	mu   sync.Mutex
	held bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRenderer sends progress events to r.
func WithRenderer(r ui.Renderer) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.renderer = r
		}
	}
}

// WithRetryPolicy overrides the embedding retry policy from the config.
func WithRetryPolicy(p rverrors.RetryConfig) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// WithExtractor replaces the extractor built from the config.
func WithExtractor(e *extract.Extractor) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.extractor = e
		}
	}
}

// WithScanner replaces the scanner built from the config.
func WithScanner(s *scanner.Scanner) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scanner = s
		}
	}
}

// WithClock sets the time source for run and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator for cfg. The embedder is required; there is
// no implicit fallback.
func New(cfg *config.Config, embedder embed.Embedder, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, rverrors.ConfigurationError("configuration is required", nil)
	}
	if cfg.Paths.Root == "" {
		return nil, rverrors.ConfigurationError("reference directory is not set", nil)
	}
	if embedder == nil {
		return nil, rverrors.New(rverrors.ErrCodeEmbedderMissing, "embedder is required", nil)
	}

	o := &Orchestrator{
		cfg:      cfg,
		embedder: embedder,
		scanner: scanner.New(
			scanner.WithExtensions(cfg.Scan.Extensions...),
			scanner.WithFingerprintMode(scanner.FingerprintMode(cfg.Scan.Fingerprint)),
			scanner.WithConcurrency(cfg.Scan.Concurrency),
		),
		extractor: extract.New(
			extract.WithChunking(cfg.Chunk.Size, cfg.Chunk.Overlap),
			extract.WithMaxChunksPerFile(cfg.Chunk.MaxPerFile),
		),
		renderer: ui.Discard(),
		retry:    cfg.RetryPolicy(),
		now:      time.Now,
		lock:     NewRunLock(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() *config.Config {
	return o.cfg
}

// Accepts reports whether a file name is eligible for scanning.
func (o *Orchestrator) Accepts(name string) bool {
	return o.scanner.Accepts(name)
}

// Hold takes the run lock until release is called, so a sequence of runs
// (watch mode) excludes other writers throughout.
func (o *Orchestrator) Hold() (release func(), err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.tryLock(); err != nil {
		return nil, err
	}
	o.held = true
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.held = false
		_ = o.lock.Unlock()
	}, nil
}

// acquire takes the run lock for one operation unless Hold already has it.
func (o *Orchestrator) acquire() (release func(), err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.held {
		return func() {}, nil
	}
	if err := o.tryLock(); err != nil {
		return nil, err
	}
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		_ = o.lock.Unlock()
	}, nil
}

// tryLock refuses a missing reference directory before the lock file,
// and with it the data directory, is created.
func (o *Orchestrator) tryLock() error {
	if _, err := scanner.CheckRoot(o.cfg.Paths.Root); err != nil {
		return err
	}
	return o.lock.TryLock()
}

func (o *Orchestrator) indexOptions(readOnly bool) []index.Option {
	opts := []index.Option{
		index.WithRetryPolicy(o.retry),
		index.WithBatchSize(o.cfg.Embeddings.BatchSize),
		index.WithVectorBackend(index.VectorBackend(o.cfg.Index.VectorBackend)),
		index.WithKeywordBackend(store.BM25Backend(o.cfg.Index.KeywordBackend)),
		index.WithSearchWeights(index.Weights{
			Vector:  o.cfg.Index.VectorWeight,
			Keyword: o.cfg.Index.KeywordWeight,
		}, o.cfg.Index.RRFConstant),
	}
	if readOnly {
		opts = append(opts, index.WithReadOnly())
	}
	return opts
}

func (o *Orchestrator) openIndex(ctx context.Context, readOnly bool) (*index.Indexer, error) {
	return index.Open(ctx, o.cfg.IndexDir(), o.embedder, o.indexOptions(readOnly)...)
}

// embedderInfo describes the embedder for run summaries.
func (o *Orchestrator) embedderInfo() ui.EmbedderInfo {
	info := embed.GetInfo(o.embedder)
	return ui.EmbedderInfo{
		Backend:    string(info.Provider),
		Model:      info.Model,
		Dimensions: info.Dimensions,
	}
}
