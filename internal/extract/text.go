package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var errBinary = errors.New("file looks binary, not text")

func readSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, errBinary
	}
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	return data, nil
}

// readText emits plain text, treating form feeds as page breaks.
func readText(ctx context.Context, path string, emit func(Page) error) error {
	data, err := readSource(path)
	if err != nil {
		return err
	}

	for i, page := range strings.Split(string(data), "\f") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(Page{Number: i + 1, Text: page}); err != nil {
			return err
		}
	}
	return nil
}

// readMarkdown renders Markdown to plain text through the goldmark AST,
// dropping markup and raw HTML but keeping code block contents.
func readMarkdown(ctx context.Context, path string, emit func(Page) error) error {
	src, err := readSource(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return emit(Page{Number: 1, Text: markdownText(src)})
}

func markdownText(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				sb.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(node.Segment.Value(src))
			if node.HardLineBreak() || node.SoftLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.AutoLink:
			sb.Write(node.Label(src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
