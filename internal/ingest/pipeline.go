package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/studyhall/ragchat/internal/log"
	"github.com/studyhall/ragchat/internal/vector"
)

// ErrAlreadyRunning means another ingest process holds the lock.
var ErrAlreadyRunning = errors.New("another ingest is already running")

// lockFileName is created in the OS temp dir, one writer per host.
const lockFileName = "ragchat-ingest.lock"

// Embedder embeds document batches.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Upserter is the slice of the vector store the pipeline needs.
type Upserter interface {
	EnsureCollection(ctx context.Context, lang string) error
	Upsert(ctx context.Context, lang string, chunks []vector.Chunk) error
}

// Pipeline chunks, embeds and uploads parsed documents.
type Pipeline struct {
	embedder Embedder
	store    Upserter
	logger   log.Logger

	chunkSize    int
	chunkOverlap int
}

// NewPipeline creates a Pipeline with the default chunking window.
func NewPipeline(embedder Embedder, store Upserter, logger log.Logger) *Pipeline {
	return &Pipeline{
		embedder:     embedder,
		store:        store,
		logger:       logger,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
}

// Run ingests documents into the language's collection. Ingestion rebuilds
// chunk ids from scratch, so only one ingest may run at a time; a second
// invocation fails fast with ErrAlreadyRunning.
func (p *Pipeline) Run(ctx context.Context, docs []Document, lang string) error {
	if !vector.SupportedLanguage(lang) {
		return fmt.Errorf("unsupported language %q", lang)
	}
	if len(docs) == 0 {
		return errors.New("no documents to ingest")
	}

	lock := flock.New(filepath.Join(os.TempDir(), lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring ingest lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("releasing ingest lock", "error", err)
		}
	}()

	chunks := p.chunkDocuments(docs)
	if len(chunks) == 0 {
		return errors.New("no chunks produced from documents")
	}
	p.logger.Info("chunked documents", "documents", len(docs), "chunks", len(chunks), "language", lang)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	if err := p.store.EnsureCollection(ctx, lang); err != nil {
		return fmt.Errorf("ensuring collection: %w", err)
	}
	if err := p.store.Upsert(ctx, lang, chunks); err != nil {
		return fmt.Errorf("uploading chunks: %w", err)
	}

	p.logger.Info("ingest complete", "chunks", len(chunks), "language", lang)
	return nil
}

// chunkDocuments expands documents into per-chunk records, numbering chunks
// within each chapter.
func (p *Pipeline) chunkDocuments(docs []Document) []vector.Chunk {
	var chunks []vector.Chunk
	for _, doc := range docs {
		for i, text := range ChunkText(doc.Text, p.chunkSize, p.chunkOverlap) {
			chunks = append(chunks, vector.Chunk{
				Text:         text,
				ChapterID:    doc.ChapterID,
				ChapterTitle: doc.ChapterTitle,
				ChunkIndex:   int64(i),
			})
		}
	}
	return chunks
}
