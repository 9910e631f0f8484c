package ingest

import (
	"fmt"
	"strings"
	"testing"
)

func words(n int) string {
	b := make([]string, n)
	for i := range b {
		b[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(b, " ")
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		size       int
		overlap    int
		wantChunks int
	}{
		{"empty", "", 10, 2, 0},
		{"fits in one chunk", words(8), 10, 2, 1},
		{"exact boundary", words(10), 10, 2, 1},
		{"two chunks with overlap", words(15), 10, 2, 2},
		{"zero size uses defaults", words(DefaultChunkSize + 10), 0, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkText(tt.text, tt.size, tt.overlap)
			if len(got) != tt.wantChunks {
				t.Fatalf("chunks = %d, want %d", len(got), tt.wantChunks)
			}
		})
	}
}

func TestChunkTextOverlap(t *testing.T) {
	chunks := ChunkText(words(15), 10, 2)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}

	// Second window starts at word 8, so w8 and w9 appear in both.
	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	if first[8] != second[0] || first[9] != second[1] {
		t.Errorf("windows do not overlap: first tail %v, second head %v", first[8:], second[:2])
	}
	if second[len(second)-1] != "w14" {
		t.Errorf("last word = %q, want w14", second[len(second)-1])
	}
}
