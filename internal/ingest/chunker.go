package ingest

import "strings"

// Chunking defaults, sized for the embedding model's context.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// ChunkText splits text into overlapping word windows. Words stand in for
// tokens, close enough for retrieval granularity in both languages.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunk := strings.Join(words[start:end], " ")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(words) {
			break
		}
	}
	return chunks
}
