package extract

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"sort"
	"strings"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

var errStop = errors.New("stop")

// Extractor maps extensions to page readers and splits their pages.
type Extractor struct {
	readers    map[string]PageReader
	splitter   Splitter
	maxPerFile int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithChunking sets chunk size and overlap in runes.
func WithChunking(size, overlap int) Option {
	return func(e *Extractor) {
		e.splitter = NewSplitter(size, overlap)
	}
}

// WithMaxChunksPerFile stops a document after n chunks. 0 means no cap.
func WithMaxChunksPerFile(n int) Option {
	return func(e *Extractor) {
		e.maxPerFile = n
	}
}

// WithReader registers or replaces the reader for an extension.
func WithReader(ext string, r PageReader) Option {
	return func(e *Extractor) {
		e.readers[strings.ToLower(ext)] = r
	}
}

// New returns an Extractor with readers for PDF, DOCX, XLSX, Markdown and
// plain text.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		readers: map[string]PageReader{
			".pdf":  PageReaderFunc(readPDF),
			".docx": PageReaderFunc(readDOCX),
			".xlsx": PageReaderFunc(readXLSX),
			".md":   PageReaderFunc(readMarkdown),
			".txt":  PageReaderFunc(readText),
		},
		splitter: NewSplitter(DefaultChunkSize, DefaultChunkOverlap),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SupportedExtensions returns the registered extensions, sorted.
func (e *Extractor) SupportedExtensions() []string {
	exts := make([]string, 0, len(e.readers))
	for ext := range e.readers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Open prepares the chunk sequence for path. Nothing is read until the
// sequence is iterated. An unsupported extension is an extraction error.
func (e *Extractor) Open(path string) (*Sequence, error) {
	ext := strings.ToLower(filepath.Ext(path))
	reader, ok := e.readers[ext]
	if !ok {
		return nil, rverrors.New(rverrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported document format %q", ext), nil).WithDetail("path", path)
	}
	return &Sequence{
		path:       path,
		reader:     reader,
		splitter:   e.splitter,
		maxPerFile: e.maxPerFile,
	}, nil
}

// Sequence is the lazy, finite chunk stream of one document. It is
// restartable: every call to All reads the document again from the start.
type Sequence struct {
	path       string
	reader     PageReader
	splitter   Splitter
	maxPerFile int
}

// Path returns the document path.
func (s *Sequence) Path() string {
	return s.path
}

// All yields chunks in document order. A read failure, or a document with
// no text, is yielded once as an extraction error and ends the sequence.
// Context errors are yielded unchanged.
func (s *Sequence) All(ctx context.Context) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		index := 0
		err := s.reader.ReadPages(ctx, s.path, func(p Page) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, span := range s.splitter.Split(p.Text) {
				if s.maxPerFile > 0 && index >= s.maxPerFile {
					return errStop
				}
				c := Chunk{
					SourcePath: s.path,
					Index:      index,
					Page:       p.Number,
					Offset:     span.Offset,
					Text:       span.Text,
				}
				index++
				if !yield(c, nil) {
					return errStop
				}
			}
			return nil
		})

		switch {
		case errors.Is(err, errStop):
			return
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			yield(Chunk{}, err)
		case err != nil:
			yield(Chunk{}, rverrors.ExtractionError(s.path, err))
		case index == 0:
			yield(Chunk{}, rverrors.ExtractionError(s.path, ErrNoText))
		}
	}
}

// Collect drains the sequence into a slice.
func (s *Sequence) Collect(ctx context.Context) ([]Chunk, error) {
	var chunks []Chunk
	for c, err := range s.All(ctx) {
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}
