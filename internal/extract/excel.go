package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hyperjump/hoidap/internal/models"
	"github.com/xuri/excelize/v2"
)

func extractExcel(content []byte, source string) ([]*models.Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var docs []*models.Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var buf strings.Builder
		for _, row := range rows {
			line := strings.Join(row, "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		text := strings.TrimSpace(buf.String())
		if text == "" {
			continue
		}
		docs = append(docs, &models.Document{
			Content:  text,
			Metadata: models.DocumentMetadata{Source: source, Sheet: sheet},
		})
	}
	return docs, nil
}
