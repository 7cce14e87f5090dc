package chat

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/hyperjump/hoidap/internal/models"
)

var promptTemplate = template.Must(template.New("qa").Parse(`Sử dụng các đoạn văn bản ngữ cảnh sau đây để trả lời câu hỏi ở cuối.
Nếu bạn không biết câu trả lời, hãy nói rằng bạn không biết, đừng cố bịa ra câu trả lời.
Hãy trả lời bằng tiếng Việt.

{{.Context}}

Câu hỏi: {{.Question}}
Trả lời tiếng Việt:`))

// BuildPrompt fills the question answering template.
func BuildPrompt(context, question string) (string, error) {
	var b strings.Builder
	err := promptTemplate.Execute(&b, struct {
		Context  string
		Question string
	}{context, question})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

// SourceLabel formats a chunk's origin for display, e.g. "luat.pdf, page: 3".
func SourceLabel(meta models.DocumentMetadata) string {
	label := filepath.Base(meta.Source)
	if meta.Source == "" {
		label = "Không rõ file"
	}
	if meta.Page != nil {
		label += fmt.Sprintf(", page: %d", *meta.Page)
	}
	if meta.Sheet != "" {
		label += ", sheet: " + meta.Sheet
	}
	return label
}

// DedupeSources removes duplicate labels and sorts the rest.
func DedupeSources(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
