// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned when the filename does not name a
// supported document type.
var ErrUnsupportedFormat = errors.New("extract: only PDF files are supported")

// Extractor is the document-text extraction function.
type Extractor interface {
	ExtractText(data []byte, filename string) (string, error)
}

// Supported reports whether filename has an extension the extractor accepts.
func Supported(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// PDFExtractor extracts the text layer of PDF documents page by page.
type PDFExtractor struct{}

// NewPDFExtractor returns a PDF extractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// ExtractText returns the plain text of every page joined by newlines.
func (PDFExtractor) ExtractText(data []byte, filename string) (text string, err error) {
	if !Supported(filename) {
		return "", ErrUnsupportedFormat
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract: read pdf %s: %v", filename, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: read pdf %s: %w", filename, err)
	}
	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("extract: page %d of %s: %w", i, filename, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
