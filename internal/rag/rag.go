// Package rag answers student questions from the textbook. A turn moves
// through three phases: Prepare resolves the session, persists the student's
// message and runs retrieval; Stream produces the answer tokens; Complete
// persists the assistant's message once the full text is known.
package rag

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/studyhall/ragchat/internal/auth"
	"github.com/studyhall/ragchat/internal/log"
	"github.com/studyhall/ragchat/internal/session"
	"github.com/studyhall/ragchat/internal/vector"
)

// ErrValidation marks a request the caller can fix. Handlers map it to a
// 400 response.
var ErrValidation = errors.New("invalid request")

// Limits are in characters, not bytes; Urdu text is multi-byte in UTF-8.
const (
	maxQueryLength        = 2000
	maxSelectedTextLength = 5000
)

// Request is one student question as it arrives from the transport layer.
type Request struct {
	Query        string
	Language     string
	SessionToken string
	SelectedText string

	// Identity is nil for anonymous students.
	Identity *auth.Identity
}

// validate normalizes the request in place and reports the first problem.
func (r *Request) validate() error {
	r.Query = strings.TrimSpace(r.Query)
	switch {
	case r.Query == "":
		return fmt.Errorf("%w: query must not be empty", ErrValidation)
	case utf8.RuneCountInString(r.Query) > maxQueryLength:
		return fmt.Errorf("%w: query exceeds %d characters", ErrValidation, maxQueryLength)
	case !vector.SupportedLanguage(r.Language):
		return fmt.Errorf("%w: unsupported language %q", ErrValidation, r.Language)
	case utf8.RuneCountInString(r.SessionToken) > session.MaxTokenLength:
		return fmt.Errorf("%w: session token exceeds %d characters", ErrValidation, session.MaxTokenLength)
	case utf8.RuneCountInString(r.SelectedText) > maxSelectedTextLength:
		return fmt.Errorf("%w: selected text exceeds %d characters", ErrValidation, maxSelectedTextLength)
	}
	return nil
}

// Embedder turns a query into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds the closest textbook chunks for a vector.
type Searcher interface {
	Search(ctx context.Context, lang string, vec []float32, opts ...vector.SearchOption) ([]vector.Match, error)
}

// Generator streams model output for a prompt.
type Generator interface {
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Ledger is the slice of the session store the orchestrator needs.
type Ledger interface {
	Resolve(ctx context.Context, rawToken string, userID *string, language string) (*session.Session, string, error)
	SaveMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata any) (uuid.UUID, error)
}

// Config tunes retrieval.
type Config struct {
	TopK     int
	MinScore float64
}

// Orchestrator wires embedding, search, generation and persistence into the
// question answering pipeline.
type Orchestrator struct {
	embedder  Embedder
	searcher  Searcher
	generator Generator
	ledger    Ledger
	logger    log.Logger
	topK      int
	minScore  float64
}

// New builds an Orchestrator. Zero config fields fall back to the retrieval
// defaults.
func New(embedder Embedder, searcher Searcher, generator Generator, ledger Ledger, cfg Config, logger log.Logger) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = vector.DefaultTopK
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = vector.DefaultMinScore
	}
	return &Orchestrator{
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		ledger:    ledger,
		logger:    logger,
		topK:      cfg.TopK,
		minScore:  cfg.MinScore,
	}
}

// Turn is a prepared question ready to stream. The raw session token is
// echoed back to the client with the terminal event so browsers without the
// cookie can hold onto it.
type Turn struct {
	Session      *session.Session
	SessionToken string
	Citations    []Citation
	Scores       []float64

	prompt   string
	fallback string
}

// Fallback reports whether retrieval came up empty and the turn will stream
// the canned message instead of model output.
func (t *Turn) Fallback() bool { return t.fallback != "" }

// Prepare validates the request, resolves the session, persists the
// student's message and runs retrieval. The student's message is saved
// before retrieval so it survives even when a later stage fails.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (*Turn, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var userID *string
	difficulty := ""
	if req.Identity != nil {
		userID = &req.Identity.UserID
		difficulty = req.Identity.Preferences.Difficulty
	}

	sess, rawToken, err := o.ledger.Resolve(ctx, req.SessionToken, userID, req.Language)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	if _, err := o.ledger.SaveMessage(ctx, sess.ID, session.RoleUser, req.Query, nil); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	vec, err := o.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := o.searcher.Search(ctx, req.Language, vec,
		vector.WithTopK(o.topK), vector.WithMinScore(o.minScore))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	turn := &Turn{
		Session:      sess,
		SessionToken: rawToken,
		Citations:    []Citation{},
		Scores:       []float64{},
	}

	if len(matches) == 0 {
		o.logger.InfoContext(ctx, "no relevant chunks, streaming fallback",
			"session_id", sess.ID, "language", req.Language)
		turn.fallback = FallbackMessage(req.Language)
		return turn, nil
	}

	turn.Citations = ExtractCitations(matches, req.Language)
	turn.Scores = make([]float64, len(matches))
	for i, m := range matches {
		turn.Scores[i] = m.Score
	}
	turn.prompt = buildPrompt(req.Query, matches, req.SelectedText, difficulty)

	o.logger.DebugContext(ctx, "turn prepared",
		"session_id", sess.ID, "matches", len(matches), "citations", len(turn.Citations))
	return turn, nil
}

// Stream yields the answer chunks for a prepared turn. Fallback turns yield
// the canned message as a single chunk; otherwise chunks come straight from
// the model and a mid-stream failure surfaces as a final non-nil error.
func (o *Orchestrator) Stream(ctx context.Context, turn *Turn) iter.Seq2[string, error] {
	if turn.Fallback() {
		return func(yield func(string, error) bool) {
			yield(turn.fallback, nil)
		}
	}
	return o.generator.Stream(ctx, turn.prompt)
}

// Complete persists the assistant's message after the stream finished
// cleanly and returns its id. Citations and similarity scores ride along as
// message metadata.
func (o *Orchestrator) Complete(ctx context.Context, turn *Turn, fullText string) (uuid.UUID, error) {
	metadata := map[string]any{
		"citations":         turn.Citations,
		"similarity_scores": turn.Scores,
	}
	id, err := o.ledger.SaveMessage(ctx, turn.Session.ID, session.RoleAssistant, fullText, metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save assistant message: %w", err)
	}
	return id, nil
}
