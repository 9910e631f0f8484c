package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall/ragchat/internal/log"
	"github.com/studyhall/ragchat/internal/rag"
	"github.com/studyhall/ragchat/internal/session"
)

// maxSessionBodyBytes bounds the feedback and migrate request bodies.
const maxSessionBodyBytes = 16 << 10

// SessionHandler handles history, feedback and migrate endpoints.
type SessionHandler struct {
	store  *session.Store
	logger log.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store *session.Store, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/chat/history", h.history)
	mux.HandleFunc("POST /api/v1/chat/feedback", h.feedback)
	mux.HandleFunc("POST /api/v1/chat/migrate", h.migrate)
}

// MessageResponse is one ledger entry as the client sees it. Citations are
// projected out of the stored metadata; user turns carry none.
type MessageResponse struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Citations []rag.Citation `json:"citations,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// HistoryResponse is one page of session history.
type HistoryResponse struct {
	Messages   []MessageResponse `json:"messages"`
	SessionID  string            `json:"sessionId"`
	TotalCount int64             `json:"totalCount"`
	HasMore    bool              `json:"hasMore"`
}

// messageCitations extracts the citations list from a message's stored
// metadata. Malformed or absent metadata yields nil.
func messageCitations(meta json.RawMessage) []rag.Citation {
	if len(meta) == 0 {
		return nil
	}
	var m struct {
		Citations []rag.Citation `json:"citations"`
	}
	if err := json.Unmarshal(meta, &m); err != nil {
		return nil
	}
	return m.Citations
}

// history returns a chronological page of the session's ledger.
// Query parameters: sessionToken (required), limit, offset.
func (h *SessionHandler) history(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("sessionToken")
	if token == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "sessionToken is required")
		return
	}
	if len(token) > session.MaxTokenLength {
		writeError(w, r, http.StatusBadRequest, codeValidation, "sessionToken too long")
		return
	}

	limit := session.NormalizeHistoryLimit(parseInt32Param(r, "limit", session.DefaultHistoryLimit))
	offset := parseInt32Param(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	sess, err := h.store.Get(r.Context(), token)
	if err != nil {
		h.respondError(w, r, "session lookup failed", err)
		return
	}

	page, err := h.store.History(r.Context(), sess.ID, limit, offset)
	if err != nil {
		h.respondError(w, r, "history query failed", err)
		return
	}

	resp := HistoryResponse{
		Messages:   make([]MessageResponse, len(page.Messages)),
		SessionID:  sess.ID.String(),
		TotalCount: page.TotalCount,
		HasMore:    page.HasMore,
	}
	for i, m := range page.Messages {
		resp.Messages[i] = MessageResponse{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			Citations: messageCitations(m.Metadata),
			CreatedAt: m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// FeedbackRequest is the request body for rating an assistant message.
type FeedbackRequest struct {
	MessageID    string `json:"messageId"`
	Rating       int16  `json:"rating"`
	FeedbackText string `json:"feedbackText"`
}

// feedback records a thumbs up or down on an assistant message.
func (h *SessionHandler) feedback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSessionBodyBytes)

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	if req.Rating != 1 && req.Rating != -1 {
		writeError(w, r, http.StatusBadRequest, codeValidation, "rating must be 1 or -1")
		return
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "messageId must be a UUID")
		return
	}

	feedbackID, err := h.store.SaveFeedback(r.Context(), messageID, req.Rating, req.FeedbackText)
	if err != nil {
		h.respondError(w, r, "feedback save failed", err)
		return
	}
	writeJSON(w, http.StatusOK, FeedbackResponse{Success: true, FeedbackID: feedbackID.String()})
}

// FeedbackResponse confirms a recorded rating.
type FeedbackResponse struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedbackId"`
}

// MigrateRequest is the request body for attaching a session to a user.
type MigrateRequest struct {
	SessionToken string `json:"sessionToken"`
	UserID       string `json:"userId"`
}

// migrate attaches an anonymous session to a signed-in user. The token
// stops resolving afterwards.
func (h *SessionHandler) migrate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSessionBodyBytes)

	var req MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	if req.SessionToken == "" || req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "sessionToken and userId are required")
		return
	}
	if len(req.SessionToken) > session.MaxTokenLength {
		writeError(w, r, http.StatusBadRequest, codeValidation, "sessionToken too long")
		return
	}

	if err := h.store.MigrateToUser(r.Context(), req.SessionToken, req.UserID); err != nil {
		h.respondError(w, r, "session migrate failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "migrated"})
}

// respondError logs and maps a store error onto the error taxonomy.
func (h *SessionHandler) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, "error", err, "request_id", RequestID(r.Context()))
	}
	writeError(w, r, status, code, publicMessage(err, code))
}

// parseInt32Param parses an integer query parameter, falling back on the
// default for missing or malformed values.
func parseInt32Param(r *http.Request, name string, defaultVal int32) int32 {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.ParseInt(str, 10, 32)
	if err != nil {
		return defaultVal
	}
	return int32(val)
}
