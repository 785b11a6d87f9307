package extract

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>|<w:br[^>]*/>|<w:tab[^>]*/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

// readDOCX emits the whole document as a single page; DOCX carries no
// fixed pagination.
func readDOCX(ctx context.Context, path string, emit func(Page) error) error {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	return emit(Page{Number: 1, Text: docxText(r.Editable().GetContent())})
}

// docxText flattens document.xml into plain text, one line per paragraph.
func docxText(content string) string {
	content = docxParagraphEnd.ReplaceAllStringFunc(content, func(tag string) string {
		if strings.HasPrefix(tag, "<w:tab") {
			return " "
		}
		return "\n"
	})
	return html.UnescapeString(xmlTag.ReplaceAllString(content, ""))
}

// readXLSX emits one page per worksheet, one line per row with cells
// separated by " | ".
func readXLSX(ctx context.Context, path string, emit func(Page) error) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}

		var sb strings.Builder
		sb.WriteString(sheet)
		sb.WriteString("\n\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if strings.Trim(line, "| ") == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}

		if err := emit(Page{Number: i + 1, Text: sb.String()}); err != nil {
			return err
		}
	}
	return nil
}
