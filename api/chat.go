package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/studyhall/ragchat/internal/auth"
	"github.com/studyhall/ragchat/internal/llm"
	"github.com/studyhall/ragchat/internal/log"
	"github.com/studyhall/ragchat/internal/rag"
	"github.com/studyhall/ragchat/internal/session"
)

// maxQueryBodyBytes bounds the chat request body.
const maxQueryBodyBytes = 64 << 10

// ChatHandler handles the SSE question endpoint.
type ChatHandler struct {
	orchestrator *rag.Orchestrator
	verifier     auth.Verifier
	logger       log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(orchestrator *rag.Orchestrator, verifier auth.Verifier, logger log.Logger) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, verifier: verifier, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat/query", h.handleQuery)
}

// QueryRequest is the request body for the question endpoint.
type QueryRequest struct {
	Query        string `json:"query"`
	Language     string `json:"language"`
	SessionToken string `json:"sessionToken"`
	SelectedText string `json:"selectedText"`
}

// SSE event payloads. Events are data-framed JSON; the shape tells the
// client which kind it received.
type sseChunk struct {
	Chunk string `json:"chunk"`
}

type sseDone struct {
	Done         bool           `json:"done"`
	MessageID    string         `json:"messageId"`
	SessionToken string         `json:"sessionToken"`
	Citations    []rag.Citation `json:"citations"`
}

type sseError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleQuery answers a student question over SSE.
//
// Validation failures before the stream opens are plain JSON errors. Once
// streaming has begun all failures become terminal error events, and the
// assistant's message is only persisted after the stream finished cleanly.
func (h *ChatHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}

	ctx := r.Context()
	identity := h.verifier.Verify(ctx, auth.BearerFromHeader(r.Header.Get("Authorization")))

	turn, err := h.orchestrator.Prepare(ctx, rag.Request{
		Query:        req.Query,
		Language:     req.Language,
		SessionToken: req.SessionToken,
		SelectedText: req.SelectedText,
		Identity:     identity,
	})
	if err != nil {
		status, code := classify(err)
		h.logger.ErrorContext(ctx, "prepare failed", "error", err, "request_id", RequestID(ctx))
		writeError(w, r, status, code, publicMessage(err, code))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, codeUpstream, "streaming not supported")
		return
	}
	flusher.Flush()

	var full strings.Builder
	for chunk, err := range h.orchestrator.Stream(ctx, turn) {
		if ctx.Err() != nil {
			h.logger.InfoContext(ctx, "client disconnected", "session_id", turn.Session.ID)
			return
		}
		if err != nil {
			h.logger.ErrorContext(ctx, "stream failed",
				"error", err, "session_id", turn.Session.ID, "request_id", RequestID(ctx))
			h.writeEvent(w, flusher, sseError{Error: streamErrorCode(err), Message: "generation was interrupted"})
			return
		}
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		h.writeEvent(w, flusher, sseChunk{Chunk: chunk})
	}

	messageID, err := h.orchestrator.Complete(ctx, turn, full.String())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to persist answer",
			"error", err, "session_id", turn.Session.ID, "request_id", RequestID(ctx))
		h.writeEvent(w, flusher, sseError{Error: codeUpstream, Message: "failed to save the answer"})
		return
	}

	h.writeEvent(w, flusher, sseDone{
		Done:         true,
		MessageID:    messageID.String(),
		SessionToken: turn.SessionToken,
		Citations:    turn.Citations,
	})
	h.logger.InfoContext(ctx, "stream completed",
		"session_id", turn.Session.ID,
		"fallback", turn.Fallback(),
		"response_len", full.Len())
}

// writeEvent writes one data-framed SSE event and flushes it out.
func (h *ChatHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal SSE event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// classify maps domain errors onto the HTTP error taxonomy.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrMessageNotFound):
		return http.StatusNotFound, codeNotFound
	default:
		return http.StatusInternalServerError, codeUpstream
	}
}

// publicMessage keeps internal detail out of 5xx bodies.
func publicMessage(err error, code string) string {
	if code == codeUpstream {
		return "an internal error occurred"
	}
	return err.Error()
}

func streamErrorCode(err error) string {
	if errors.Is(err, llm.ErrStreamInterrupted) {
		return "StreamInterrupted"
	}
	return codeUpstream
}
