// Package extract turns one reference document into a lazy sequence of
// bounded text chunks.
package extract

import (
	"context"
	"errors"
)

// Chunk size defaults, in runes.
const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
	MinChunkSize        = 64
)

// ErrNoText is reported for documents that parse but contain no
// extractable text, such as scanned PDFs without a text layer.
var ErrNoText = errors.New("document contains no extractable text")

// Chunk is a bounded span of extracted text. Chunks are ephemeral: they
// live for one file's processing pass.
type Chunk struct {
	SourcePath string // Absolute path of the document
	Index      int    // 0-based position within the document
	Page       int    // 1-based page (PDF page, XLSX sheet, form-feed page)
	Offset     int    // Rune offset of the chunk within its page
	Text       string
}

// Page is one unit of extracted text. Chunks never cross page boundaries.
type Page struct {
	Number int
	Text   string
}

// PageReader streams the pages of one document format. Implementations
// call emit once per page in order and stop at the first error emit
// returns.
type PageReader interface {
	ReadPages(ctx context.Context, path string, emit func(Page) error) error
}

// PageReaderFunc adapts a function to PageReader.
type PageReaderFunc func(ctx context.Context, path string, emit func(Page) error) error

// ReadPages implements PageReader.
func (f PageReaderFunc) ReadPages(ctx context.Context, path string, emit func(Page) error) error {
	return f(ctx, path, emit)
}
