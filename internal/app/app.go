// Package app wires configuration, gateways and stores into a running
// application. Setup builds everything in dependency order and Close tears
// it down in reverse.
package app

import (
	"context"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyhall/ragchat/api"
	"github.com/studyhall/ragchat/internal/auth"
	"github.com/studyhall/ragchat/internal/config"
	"github.com/studyhall/ragchat/internal/llm"
	"github.com/studyhall/ragchat/internal/log"
	"github.com/studyhall/ragchat/internal/rag"
	"github.com/studyhall/ragchat/internal/session"
	"github.com/studyhall/ragchat/internal/vector"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit       *genkit.Genkit
	Pool         *pgxpool.Pool
	VectorStore  *vector.Store
	Embedder     *llm.Embedder
	Generator    *llm.Generator
	SessionStore *session.Store
	Verifier     auth.Verifier
	Orchestrator *rag.Orchestrator
	Server       *api.Server

	otelCleanup func()
}

// Close releases all resources. Safe to call on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.VectorStore != nil {
		if err := a.VectorStore.Close(ctx); err != nil {
			a.Logger.Warn("closing vector store", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
}
