// Package observability hooks an OTLP span exporter into Genkit's
// TracerProvider, so chat flows and our own spans land in the same
// collector. The collector endpoint handles authentication and forwarding,
// the application only speaks OTLP over HTTP.
package observability

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/studyhall/ragchat/internal/log"
)

// shutdownTimeout bounds the final span flush during teardown.
const shutdownTimeout = 5 * time.Second

// Register attaches the exporter to Genkit's TracerProvider and returns a
// cleanup that flushes and shuts the provider down.
func Register(exporter sdktrace.SpanExporter, service, environment string, logger log.Logger) func() {
	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled", "service", service, "environment", environment)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
