package extract

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// readPDF emits one page per PDF page. The pdf package panics on some
// malformed inputs; those panics become errors for this file only.
func readPDF(ctx context.Context, path string, emit func(Page) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if err := emit(Page{Number: i, Text: text}); err != nil {
			return err
		}
	}
	return nil
}
