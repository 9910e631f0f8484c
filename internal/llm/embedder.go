// Package llm provides the Gemini gateways: query/document embedding and
// streaming answer generation, both built on Genkit.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/studyhall/ragchat/internal/log"
)

// EmbeddingDimension is the fixed output dimensionality. It must match the
// Milvus collection schema; see vector.Dimension.
const EmbeddingDimension int32 = 768

// Embedding task types per the Gemini API.
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

const (
	// embedBatchSize bounds texts per upstream call during ingestion.
	embedBatchSize = 100

	// embedBatchPause spaces out batch calls to respect rate limits.
	embedBatchPause = time.Second
)

// Sentinel errors checked with errors.Is().
var (
	// ErrEmptyInput indicates there was no text to embed.
	ErrEmptyInput = errors.New("empty embedding input")

	// ErrUpstream indicates the generation or embedding provider failed.
	ErrUpstream = errors.New("upstream provider error")
)

// Embedder turns text into fixed-dimension vectors. Queries and documents
// use different task types so the model optimizes each side of retrieval.
type Embedder struct {
	embedder ai.Embedder
	logger   log.Logger
}

// NewEmbedder creates an Embedder over a Genkit embedder.
func NewEmbedder(embedder ai.Embedder, logger log.Logger) *Embedder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Embedder{embedder: embedder, logger: logger}
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	vecs, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds content chunks for indexing, in batches with a short
// pause between upstream calls.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))

		vecs, err := e.embed(ctx, texts[start:end], taskRetrievalDocument)
		if err != nil {
			return nil, fmt.Errorf("batch starting at %d: %w", start, err)
		}
		all = append(all, vecs...)

		if end < len(texts) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(embedBatchPause):
			}
		}
	}

	e.logger.Debug("embedded documents", "count", len(all))
	return all, nil
}

// Ping embeds a constant probe string to verify provider reachability.
func (e *Embedder) Ping(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

func (e *Embedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	dim := EmbeddingDimension
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: docs,
		Options: &genai.EmbedContentConfig{
			TaskType:             taskType,
			OutputDimensionality: &dim,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", ErrUpstream, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrUpstream, len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrUpstream, i)
		}
		vecs[i] = emb.Embedding
	}
	return vecs, nil
}
