package paperscraper

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ExtractPDF extracts sentences from the text layer of a PDF, page by page.
// PDFs are never main files and carry no institutes.
func ExtractPDF(path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	doc := &Document{Path: path}
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		doc.Sentences = append(doc.Sentences, SplitSentences(normalizeSpace(text))...)
	}
	return doc, nil
}
