package fileid

import (
	"strings"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestChunkID(t *testing.T) {
	id1 := ChunkID("/docs/luat.pdf", intPtr(2), "", 0, 0)
	id2 := ChunkID("/docs/luat.pdf", intPtr(2), "", 0, 0)
	if id1 != id2 {
		t.Errorf("same input should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix) {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
	if len(id1) != len(prefix)+32 {
		t.Errorf("unexpected ID length: %q", id1)
	}
}

func TestChunkID_distinguishesFields(t *testing.T) {
	base := ChunkID("/docs/a.xlsx", nil, "Sheet1", 1, 10)
	others := []string{
		ChunkID("/docs/b.xlsx", nil, "Sheet1", 1, 10),
		ChunkID("/docs/a.xlsx", nil, "Sheet2", 1, 10),
		ChunkID("/docs/a.xlsx", nil, "Sheet1", 1, 11),
		ChunkID("/docs/a.xlsx", nil, "Sheet1", 2, 10),
		ChunkID("/docs/a.xlsx", intPtr(1), "Sheet1", 1, 10),
	}
	for i, id := range others {
		if id == base {
			t.Errorf("variant %d should differ from base ID %q", i, base)
		}
	}
}

func TestChunkID_sameStartDifferentOrdinal(t *testing.T) {
	if ChunkID("/docs/a.docx", nil, "", 0, 5) == ChunkID("/docs/a.docx", nil, "", 1, 5) {
		t.Error("chunks sharing a start offset must still get distinct IDs")
	}
}

func TestChunkID_pathNormalized(t *testing.T) {
	if ChunkID("/docs/./a.pdf", nil, "", 0, 0) != ChunkID("/docs/a.pdf", nil, "", 0, 0) {
		t.Error("paths with . should normalize")
	}
}

func TestChunkID_pageZeroDiffersFromNoPage(t *testing.T) {
	if ChunkID("/docs/a.pdf", intPtr(0), "", 0, 0) == ChunkID("/docs/a.pdf", nil, "", 0, 0) {
		t.Error("explicit page 0 should not collide with a missing page")
	}
}
