package indexer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Preprocess normalizes extracted text before chunking: NFC composition (PDF text
// often carries decomposed Vietnamese diacritics), LF line endings, no trailing
// spaces on lines, and at most one blank line between paragraphs.
func Preprocess(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t ")
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
