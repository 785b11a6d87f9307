package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	// ProseTokenizerName is the name of the registered prose tokenizer.
	ProseTokenizerName = "refvec_prose_tokenizer"

	// ProseStopFilterName is the name of the registered stop word filter.
	ProseStopFilterName = "refvec_prose_stop"

	// ProseAnalyzerName is the name of the custom analyzer built from both.
	ProseAnalyzerName = "refvec_prose"
)

func init() {
	_ = registry.RegisterTokenizer(ProseTokenizerName, proseTokenizerConstructor)
	_ = registry.RegisterTokenFilter(ProseStopFilterName, proseStopFilterConstructor)
}

// BleveBM25Index wraps Bleve v2 for BM25 keyword search.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config BM25Config
	closed bool
}

// BleveDocument is the document structure for Bleve indexing.
type BleveDocument struct {
	Content string `json:"content"`
}

// validateIndexIntegrity checks if a Bleve index is valid before opening.
// Returns nil if valid, error describing corruption if not.
func validateIndexIntegrity(path string) error {
	// Check if index directory exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Index doesn't exist, will be created
	}

	// Check 1: index_meta.json exists and is non-empty
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		// index_meta.json missing means index is incomplete/corrupted
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	// Check 2: Validate JSON is parseable
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveBM25Index opens or creates a Bleve keyword index. If path is
// empty, creates an in-memory index. A corrupt index directory is cleared
// and recreated empty; the caller rebuilds it from entries.
func NewBleveBM25Index(path string, config BM25Config) (*BleveBM25Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		// In-memory index for testing
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		// Create directory if needed
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			// Auto-clear corrupted index
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("BM25 index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("keyword_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, rebuilding from entries"))
		}

		// Try to open existing index first
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			// Create new index
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			// Clear and recreate
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("BM25 index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			slog.Info("keyword_index_cleared",
				slog.String("path", path),
				slog.String("reason", "open failed with corruption, rebuilding from entries"))

			// Create fresh index
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveBM25Index{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

// createIndexMapping creates the Bleve index mapping with BM25 scoring.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	// Create index mapping
	indexMapping := bleve.NewIndexMapping()

	// Register custom analyzer
	err := indexMapping.AddCustomAnalyzer(ProseAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": ProseTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			ProseStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	// Set as default analyzer
	indexMapping.DefaultAnalyzer = ProseAnalyzerName

	return indexMapping, nil
}

// Index adds documents to the index.
func (b *BleveBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		bleveDoc := BleveDocument{Content: doc.Content}
		if err := batch.Index(doc.ID, bleveDoc); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

// Search returns documents matching query, scored by BM25.
func (b *BleveBM25Index) Search(ctx context.Context, queryStr string, limit int) ([]*BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if limit <= 0 || strings.TrimSpace(queryStr) == "" {
		return []*BM25Result{}, nil
	}

	// Create match query (uses the analyzer)
	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true // For matched terms

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		matchedTerms := extractMatchedTerms(hit)
		results = append(results, &BM25Result{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms,
		})
	}

	return results, nil
}

// Delete removes documents from the index.
func (b *BleveBM25Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	return nil
}

// Stats returns index statistics.
func (b *BleveBM25Index) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &IndexStats{}
	}

	docCount, _ := b.index.DocCount()

	return &IndexStats{
		DocumentCount: int(docCount),
		// Note: Bleve doesn't directly expose term count and avg doc length
		// These would require iterating through the index or tracking separately
	}
}

// Save is a no-op: Bleve persists each batch as it is applied.
func (b *BleveBM25Index) Save() error {
	return nil
}

// RemoveBleveIndex deletes the index directory at path.
func RemoveBleveIndex(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove keyword index: %w", err)
	}
	return nil
}

// Close closes the index.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms extracts matched terms from search hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "content" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

// Verify interface implementation
var _ BM25Index = (*BleveBM25Index)(nil)

// proseTokenizerConstructor creates the prose tokenizer for Bleve.
func proseTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveProseTokenizer{minLen: DefaultBM25Config().MinTokenLength}, nil
}

// bleveProseTokenizer emits runs of letters and digits, matching Tokenize.
type bleveProseTokenizer struct {
	minLen int
}

// Tokenize implements analysis.Tokenizer.
func (t *bleveProseTokenizer) Tokenize(input []byte) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input)/6)
	pos := 1
	start, runes := -1, 0

	emit := func(end int) {
		if start >= 0 && runes >= t.minLen {
			result = append(result, &analysis.Token{
				Term:     input[start:end],
				Start:    start,
				End:      end,
				Position: pos,
				Type:     analysis.AlphaNumeric,
			})
			pos++
		}
		start, runes = -1, 0
	}

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRune(input[i:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			runes++
		} else {
			emit(i)
		}
		i += size
	}
	emit(len(input))

	return result
}

// proseStopFilterConstructor creates the stop word filter for Bleve.
func proseStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveStopFilter{
		stopWords: BuildStopWordMap(DefaultStopWords),
	}, nil
}

// bleveStopFilter implements analysis.TokenFilter for stop words.
type bleveStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
