package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/studyhall/ragchat/internal/log"
)

// ErrStreamInterrupted indicates generation failed after streaming began.
var ErrStreamInterrupted = errors.New("generation stream interrupted")

// errStopStream is returned from the streaming callback when the consumer
// stops pulling; it cancels generation without surfacing an error.
var errStopStream = errors.New("stop stream")

// GeneratorConfig holds the fixed decoding parameters for answer generation.
type GeneratorConfig struct {
	ModelName   string
	Temperature float32
	TopP        float32
	TopK        int32
	MaxTokens   int
}

// Generator produces grounded answers as a lazy chunk sequence.
type Generator struct {
	g      *genkit.Genkit
	cfg    GeneratorConfig
	logger log.Logger
}

// NewGenerator creates a Generator. ModelName must be provider-qualified,
// e.g. "googleai/gemini-2.0-flash-exp".
func NewGenerator(g *genkit.Genkit, cfg GeneratorConfig, logger log.Logger) *Generator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Generator{g: g, cfg: cfg, logger: logger}
}

// Stream generates a response to prompt, yielding text chunks as they
// arrive. Generation runs while the sequence is consumed: breaking out of
// the range loop cancels it. A mid-stream provider failure is delivered as
// a final yield with a non-nil error wrapping ErrStreamInterrupted.
func (gen *Generator) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		// Once yield returns false it must never be called again, so track
		// the stop locally instead of relying on errStopStream surviving
		// genkit's error wrapping.
		stopped := false
		_, err := genkit.Generate(ctx, gen.g,
			ai.WithModelName(gen.cfg.ModelName),
			ai.WithPrompt(prompt),
			ai.WithConfig(&genai.GenerateContentConfig{
				Temperature:     genai.Ptr(gen.cfg.Temperature),
				TopP:            genai.Ptr(gen.cfg.TopP),
				TopK:            genai.Ptr(float32(gen.cfg.TopK)),
				MaxOutputTokens: int32(gen.cfg.MaxTokens),
			}),
			ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
				text := chunk.Text()
				if text == "" {
					return nil
				}
				if !yield(text, nil) {
					stopped = true
					return errStopStream
				}
				return nil
			}),
		)
		if err != nil && !stopped {
			gen.logger.Error("generation stream failed", "error", err)
			yield("", fmt.Errorf("%w: %v", ErrStreamInterrupted, err))
		}
	}
}

// Ping issues a minimal one-token generation to verify provider reachability.
func (gen *Generator) Ping(ctx context.Context) error {
	_, err := genkit.Generate(ctx, gen.g,
		ai.WithModelName(gen.cfg.ModelName),
		ai.WithPrompt("ping"),
		ai.WithConfig(&genai.GenerateContentConfig{MaxOutputTokens: 1}),
	)
	if err != nil {
		return fmt.Errorf("%w: generation ping: %v", ErrUpstream, err)
	}
	return nil
}
