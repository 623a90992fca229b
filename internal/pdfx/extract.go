// Package pdfx extracts text from PDF documents for grounding and tracks
// the currently loaded document.
package pdfx

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"slmassist/internal/logging"
)

// DefaultMaxChars bounds extracted text before it ever reaches a prompt.
// The engine applies its own configured cap on top of this.
const DefaultMaxChars = 20000

// Document is a loaded PDF with its extracted text.
type Document struct {
	Path string
	Text string
}

// Load extracts text from the PDF at path, bounded to maxChars
// (DefaultMaxChars when maxChars <= 0).
func Load(path string, maxChars int) (*Document, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text, err := ExtractText(path)
	if err != nil {
		return nil, err
	}
	logging.Tools("loaded PDF %s (%d chars extracted)", path, len(text))
	return &Document{Path: path, Text: Truncate(text, maxChars)}, nil
}

// ExtractText returns the document's text, page by page, concatenated with
// a blank-line separator. Pages that yield no text are skipped rather than
// aborting extraction.
func ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// Unreadable page, keep going.
			logging.ToolsDebug("page %d of %s yielded no text: %v", i, path, err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, "\n\n"), nil
}

// Truncate caps s to max characters on a rune boundary.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
