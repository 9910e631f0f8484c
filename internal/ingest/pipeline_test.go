package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"github.com/studyhall/ragchat/internal/log"
	"github.com/studyhall/ragchat/internal/vector"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type fakeStore struct {
	ensured  []string
	upserted []vector.Chunk
	lang     string
}

func (f *fakeStore) EnsureCollection(_ context.Context, lang string) error {
	f.ensured = append(f.ensured, lang)
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, lang string, chunks []vector.Chunk) error {
	f.lang = lang
	f.upserted = chunks
	return nil
}

func sampleDocs() []Document {
	return []Document{
		{ChapterID: "1.1", ChapterTitle: "Intro", Text: words(12)},
		{ChapterID: "1.2", ChapterTitle: "Sensors", Text: words(5)},
	}
}

func TestPipelineRun(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	p := NewPipeline(embedder, store, log.NewNop())
	p.chunkSize, p.chunkOverlap = 10, 2

	if err := p.Run(context.Background(), sampleDocs(), "en"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.ensured) != 1 || store.ensured[0] != "en" {
		t.Errorf("ensured = %v", store.ensured)
	}
	// 1.1 spans two windows, 1.2 fits in one.
	if len(store.upserted) != 3 {
		t.Fatalf("upserted %d chunks, want 3", len(store.upserted))
	}
	for i, c := range store.upserted {
		if len(c.Vector) == 0 {
			t.Errorf("chunk %d has no vector", i)
		}
	}
	if store.upserted[0].ChunkIndex != 0 || store.upserted[1].ChunkIndex != 1 {
		t.Errorf("chunk indexes = %d, %d", store.upserted[0].ChunkIndex, store.upserted[1].ChunkIndex)
	}
	if store.upserted[2].ChapterID != "1.2" || store.upserted[2].ChunkIndex != 0 {
		t.Errorf("chapter numbering not reset: %+v", store.upserted[2])
	}
}

func TestPipelineRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		docs     []Document
		lang     string
		embedErr error
	}{
		{"unsupported language", sampleDocs(), "de", nil},
		{"no documents", nil, "en", nil},
		{"embedding failure", sampleDocs(), "en", errors.New("quota exceeded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&fakeEmbedder{err: tt.embedErr}, &fakeStore{}, log.NewNop())
			if err := p.Run(context.Background(), tt.docs, tt.lang); err == nil {
				t.Fatal("Run() error = nil, want failure")
			}
		})
	}
}

func TestPipelineLockExcludesSecondRun(t *testing.T) {
	lock := flock.New(filepath.Join(os.TempDir(), lockFileName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Skipf("cannot hold ingest lock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = lock.Unlock() }()

	p := NewPipeline(&fakeEmbedder{}, &fakeStore{}, log.NewNop())
	err = p.Run(context.Background(), sampleDocs(), "en")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Run() error = %v, want ErrAlreadyRunning", err)
	}
}
