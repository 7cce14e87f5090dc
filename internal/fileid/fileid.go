// Package fileid provides deterministic identifiers for chunks of source files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
)

const prefix = "chunk:"

// ChunkID returns a stable ID for the ordinal-th chunk of the record identified
// by source, page and sheet, starting at character offset start. The same inputs
// always yield the same ID, so rebuilding an unchanged corpus reproduces the same IDs.
func ChunkID(source string, page *int, sheet string, ordinal, start int) string {
	var b strings.Builder
	b.WriteString(filepath.Clean(source))
	b.WriteString("\x00")
	if page != nil {
		b.WriteString(strconv.Itoa(*page))
	}
	b.WriteString("\x00")
	b.WriteString(sheet)
	b.WriteString("\x00")
	b.WriteString(strconv.Itoa(ordinal))
	b.WriteString("\x00")
	b.WriteString(strconv.Itoa(start))
	hash := sha256.Sum256([]byte(b.String()))
	return prefix + hex.EncodeToString(hash[:16])
}
