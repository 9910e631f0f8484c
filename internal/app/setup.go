package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"

	"github.com/studyhall/ragchat/api"
	"github.com/studyhall/ragchat/db"
	"github.com/studyhall/ragchat/internal/auth"
	"github.com/studyhall/ragchat/internal/config"
	"github.com/studyhall/ragchat/internal/llm"
	"github.com/studyhall/ragchat/internal/log"
	"github.com/studyhall/ragchat/internal/observability"
	"github.com/studyhall/ragchat/internal/rag"
	"github.com/studyhall/ragchat/internal/session"
	"github.com/studyhall/ragchat/internal/vector"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			a.Close(ctx)
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Embedder = llm.NewEmbedder(googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), logger)
	a.Generator = llm.NewGenerator(g, llm.GeneratorConfig{
		ModelName:   cfg.FullModelName(),
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
		MaxTokens:   cfg.MaxTokens,
	}, logger)

	store, err := provideVectorStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.VectorStore = store

	a.SessionStore = session.NewStore(pool, logger)
	a.Verifier = auth.NewClient(cfg.AuthServiceURL, time.Duration(cfg.AuthTimeoutMS)*time.Millisecond, logger)

	a.Orchestrator = rag.New(a.Embedder, a.VectorStore, a.Generator, a.SessionStore, rag.Config{
		TopK:     cfg.RetrievalTopK,
		MinScore: cfg.ScoreThreshold,
	}, logger)

	a.Server = api.NewServer(
		api.NewChatHandler(a.Orchestrator, a.Verifier, logger),
		api.NewSessionHandler(a.SessionStore, logger),
		api.NewHealthHandler(pool, a.VectorStore, a.Generator, logger),
		api.Options{CORSOrigins: cfg.CORSOrigins, TrustProxy: cfg.TrustProxy},
		logger,
	)

	return a, nil
}

// Ingest holds the components the ingest pipeline needs. It skips
// PostgreSQL entirely, content loading only touches Gemini and Milvus.
type Ingest struct {
	Embedder    *llm.Embedder
	VectorStore *vector.Store
}

// SetupIngest builds the lean container for content ingestion.
func SetupIngest(ctx context.Context, cfg *config.Config, logger log.Logger) (*Ingest, func(), error) {
	g, err := provideGenkit(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := provideVectorStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("closing vector store", "error", err)
		}
	}

	return &Ingest{
		Embedder:    llm.NewEmbedder(googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), logger),
		VectorStore: store,
	}, cleanup, nil
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization so
// the TracerProvider is ready when flows start. An unreachable collector
// only disables tracing.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	// Genkit's TracerProvider reads these at Init.
	// SAFETY: os.Setenv is not concurrent-safe, but this runs exactly once
	// during startup before goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	return observability.Register(exporter, cfg.ServiceName, cfg.Environment, logger)
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context, logger log.Logger) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	logger.Info("initialized Genkit with gemini provider")
	return g, nil
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
// Pool is configured with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideVectorStore connects to Milvus and ensures both language
// collections exist and are loaded.
func provideVectorStore(ctx context.Context, cfg *config.Config, logger log.Logger) (*vector.Store, error) {
	store, err := vector.New(ctx, vector.Config{
		Address:  cfg.MilvusAddress,
		Username: cfg.MilvusUsername,
		Password: cfg.MilvusPassword,
		DBName:   cfg.MilvusDBName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to milvus: %w", err)
	}

	for _, lang := range []string{vector.LanguageEnglish, vector.LanguageUrdu} {
		if err := store.EnsureCollection(ctx, lang); err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			closeErr := store.Close(closeCtx)
			cancel()
			if closeErr != nil {
				logger.Warn("closing vector store after setup failure", "error", closeErr)
			}
			return nil, fmt.Errorf("ensuring collection for %s: %w", lang, err)
		}
	}

	return store, nil
}
