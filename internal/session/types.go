// Package session provides persistence for chat sessions, the append-only
// message ledger, and feedback ratings, backed by PostgreSQL.
//
// Sessions are identified by opaque client tokens. Only SHA-256 hashes of
// tokens are stored; the raw token exists solely in transit.
package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles in the ledger.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// History pagination bounds.
const (
	DefaultHistoryLimit int32 = 50
	MinHistoryLimit     int32 = 1
	MaxHistoryLimit     int32 = 200
)

// Sentinel errors for store operations, checked with errors.Is().
var (
	// ErrSessionNotFound indicates no session matches the given token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMessageNotFound indicates the message does not exist or is not
	// an assistant message.
	ErrMessageNotFound = errors.New("message not found")
)

// Session is a conversation scope. UserID is nil for anonymous sessions.
type Session struct {
	ID           uuid.UUID
	UserID       *string
	Language     string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Message is one turn in the append-only ledger. Metadata holds
// role-specific JSON; for assistant turns it carries citations and
// similarity scores.
type Message struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Role      string
	Content   string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// HistoryPage is one chronological page of a session's ledger.
//
// TotalCount comes from a separate query, so a concurrent append can skew
// HasMore by one; callers treat it as a hint.
type HistoryPage struct {
	Messages   []Message
	TotalCount int64
	HasMore    bool
}

// NormalizeHistoryLimit clamps a requested page size into
// [MinHistoryLimit, MaxHistoryLimit], defaulting zero and negatives.
func NormalizeHistoryLimit(limit int32) int32 {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
