// Package vector provides the Milvus-backed vector search gateway.
//
// Textbook chunks live in one collection per language; searches route by
// language and filter matches below the similarity threshold client-side.
package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/studyhall/ragchat/internal/log"
)

// Dimension is the embedding dimensionality of every collection.
// Must match llm.EmbeddingDimension.
const Dimension = 768

// Supported languages and their collections.
const (
	LanguageEnglish = "en"
	LanguageUrdu    = "ur"

	collectionEnglish = "textbook_chunks_en"
	collectionUrdu    = "textbook_chunks_ur"
)

// Search defaults.
const (
	DefaultTopK     = 5
	DefaultMinScore = 0.3
)

// ErrUnknownLanguage indicates a language without a collection.
var ErrUnknownLanguage = errors.New("unknown language")

// SupportedLanguage reports whether lang has a collection.
func SupportedLanguage(lang string) bool {
	return lang == LanguageEnglish || lang == LanguageUrdu
}

// collectionFor maps a language to its collection name.
func collectionFor(lang string) (string, error) {
	switch lang {
	case LanguageEnglish:
		return collectionEnglish, nil
	case LanguageUrdu:
		return collectionUrdu, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
}

// Chunk is one embeddable passage of textbook content.
type Chunk struct {
	Text         string
	ChapterID    string
	ChapterTitle string
	ChunkIndex   int64
	Vector       []float32
}

// Match is a retrieved passage with its similarity score (cosine, higher is
// closer), ordered by rank.
type Match struct {
	ChunkText    string
	ChapterID    string
	ChapterTitle string
	Score        float64
}

// SearchOption customizes a search. Defaults: DefaultTopK, DefaultMinScore.
type SearchOption func(*searchOptions)

type searchOptions struct {
	topK     int
	minScore float64
}

// WithTopK sets the maximum number of matches to return.
func WithTopK(k int) SearchOption {
	return func(o *searchOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithMinScore sets the similarity threshold below which matches are dropped.
func WithMinScore(score float64) SearchOption {
	return func(o *searchOptions) { o.minScore = score }
}

// Config holds Milvus connection settings.
type Config struct {
	Address  string
	Username string
	Password string
	DBName   string
}

// Store is the vector search gateway. Safe for concurrent use.
type Store struct {
	client *milvusclient.Client
	logger log.Logger
}

// New connects to Milvus and returns a Store.
func New(ctx context.Context, cfg Config, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to milvus: %w", err)
	}

	return &Store{client: c, logger: logger}, nil
}

// Close releases the Milvus connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// EnsureCollection creates the language's collection, index, and load state
// when missing. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context, lang string) error {
	name, err := collectionFor(lang)
	if err != nil {
		return err
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().
		WithName(name).
		WithDescription("textbook content chunks ("+lang+")").
		WithAutoID(true).
		WithField(entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true)).
		WithField(entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(Dimension)).
		WithField(entity.NewField().
			WithName("chunk_text").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(65535)).
		WithField(entity.NewField().
			WithName("chapter_id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64)).
		WithField(entity.NewField().
			WithName("chapter_title").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(512)).
		WithField(entity.NewField().
			WithName("chunk_index").
			WithDataType(entity.FieldTypeInt64))

	if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, 128)
	idxTask, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, "embedding", idx))
	if err != nil {
		return fmt.Errorf("creating index on %s: %w", name, err)
	}
	if err := idxTask.Await(ctx); err != nil {
		return fmt.Errorf("waiting for index on %s: %w", name, err)
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("loading collection %s: %w", name, err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("waiting for collection %s load: %w", name, err)
	}

	s.logger.Info("created vector collection", "collection", name)
	return nil
}

// Upsert inserts chunks into the language's collection and flushes so they
// become searchable immediately. Flushing per call costs throughput but
// ingestion is a batch job, not a request path.
func (s *Store) Upsert(ctx context.Context, lang string, chunks []Chunk) error {
	name, err := collectionFor(lang)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	vectors := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	chapterIDs := make([]string, len(chunks))
	titles := make([]string, len(chunks))
	indices := make([]int64, len(chunks))
	for i, c := range chunks {
		vectors[i] = c.Vector
		texts[i] = c.Text
		chapterIDs[i] = c.ChapterID
		titles[i] = c.ChapterTitle
		indices[i] = c.ChunkIndex
	}

	_, err = s.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name,
		column.NewColumnFloatVector("embedding", Dimension, vectors),
		column.NewColumnVarChar("chunk_text", texts),
		column.NewColumnVarChar("chapter_id", chapterIDs),
		column.NewColumnVarChar("chapter_title", titles),
		column.NewColumnInt64("chunk_index", indices),
	))
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", name, err)
	}

	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("flushing %s: %w", name, err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("waiting for flush of %s: %w", name, err)
	}

	s.logger.Debug("upserted chunks", "collection", name, "count", len(chunks))
	return nil
}

// Search returns the closest chunks to vector in the language's collection,
// rank-ordered, with matches below the threshold dropped.
func (s *Store) Search(ctx context.Context, lang string, vector []float32, opts ...SearchOption) ([]Match, error) {
	name, err := collectionFor(lang)
	if err != nil {
		return nil, err
	}

	o := searchOptions{topK: DefaultTopK, minScore: DefaultMinScore}
	for _, opt := range opts {
		opt(&o)
	}

	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		name,
		o.topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields("chunk_text", "chapter_id", "chapter_title"))
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", name, err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	res := results[0]
	matches := make([]Match, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		score := float64(res.Scores[i])
		if score < o.minScore {
			continue
		}

		m := Match{Score: score}
		for _, field := range res.Fields {
			col, ok := field.(*column.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case "chunk_text":
				m.ChunkText = col.Data()[i]
			case "chapter_id":
				m.ChapterID = col.Data()[i]
			case "chapter_title":
				m.ChapterTitle = col.Data()[i]
			}
		}
		matches = append(matches, m)
	}

	s.logger.Debug("vector search",
		"collection", name,
		"requested", o.topK,
		"matched", len(matches))
	return matches, nil
}

// Ping verifies the Milvus connection by listing collections.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.ListCollections(ctx, milvusclient.NewListCollectionOption()); err != nil {
		return fmt.Errorf("milvus ping: %w", err)
	}
	return nil
}
