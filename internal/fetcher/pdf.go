package fetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor concatenates the plain text of every page in page order.
type PDFExtractor struct{}

// Extract implements Extractor.
func (PDFExtractor) Extract(ctx context.Context, path string) (text string, err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err //nolint:wrapcheck // context error
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}
