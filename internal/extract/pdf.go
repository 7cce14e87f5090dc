package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hyperjump/hoidap/internal/models"
	"github.com/ledongthuc/pdf"
)

func extractPDF(content []byte, source string) ([]*models.Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	var docs []*models.Document
	numPages := r.NumPage()
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		text = validUTF8(text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, &models.Document{
			Content: text,
			Metadata: models.DocumentMetadata{
				Source: source,
				Page:   models.PageRef(i + 1),
			},
		})
	}
	return docs, nil
}
