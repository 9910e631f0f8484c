package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/studyhall/ragchat/internal/log"
)

// DB defines the database operations Store needs. Interfaces are defined by
// the consumer: *pgxpool.Pool satisfies this, and tests can substitute a
// lighter implementation.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages sessions, the message ledger, and feedback ratings.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a Store. A nil logger falls back to a no-op style default.
func NewStore(db DB, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Resolve finds the session for rawToken, or creates one when the token is
// empty or unknown. It returns the session together with the raw token the
// client should keep using: the same token when it resolved, a freshly
// minted one otherwise. An existing session gets its last_activity touched.
func (s *Store) Resolve(ctx context.Context, rawToken string, userID *string, language string) (*Session, string, error) {
	if rawToken != "" {
		sess, err := s.touchByToken(ctx, rawToken)
		if err == nil {
			return sess, rawToken, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, "", err
		}
		// Unknown token: fall through and mint a new session
	}

	token := NewToken()

	var (
		id           pgtype.UUID
		createdAt    pgtype.Timestamptz
		lastActivity pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx,
		`INSERT INTO chat_sessions (session_token, user_id, language)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, last_activity`,
		HashToken(token), userID, language,
	).Scan(&id, &createdAt, &lastActivity)
	if err != nil {
		return nil, "", fmt.Errorf("creating session: %w", err)
	}

	sess := &Session{
		ID:           uuid.UUID(id.Bytes),
		UserID:       userID,
		Language:     language,
		CreatedAt:    createdAt.Time,
		LastActivity: lastActivity.Time,
	}
	s.logger.Debug("created session", "session_id", sess.ID, "language", language)
	return sess, token, nil
}

// touchByToken updates last_activity and returns the matching session.
func (s *Store) touchByToken(ctx context.Context, rawToken string) (*Session, error) {
	var (
		id           pgtype.UUID
		userID       *string
		language     string
		createdAt    pgtype.Timestamptz
		lastActivity pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx,
		`UPDATE chat_sessions SET last_activity = now()
		 WHERE session_token = $1
		 RETURNING id, user_id, language, created_at, last_activity`,
		HashToken(rawToken),
	).Scan(&id, &userID, &language, &createdAt, &lastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}

	return &Session{
		ID:           uuid.UUID(id.Bytes),
		UserID:       userID,
		Language:     language,
		CreatedAt:    createdAt.Time,
		LastActivity: lastActivity.Time,
	}, nil
}

// Get resolves a raw token to its session without creating one.
func (s *Store) Get(ctx context.Context, rawToken string) (*Session, error) {
	var (
		id           pgtype.UUID
		userID       *string
		language     string
		createdAt    pgtype.Timestamptz
		lastActivity pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, language, created_at, last_activity
		 FROM chat_sessions WHERE session_token = $1`,
		HashToken(rawToken),
	).Scan(&id, &userID, &language, &createdAt, &lastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	return &Session{
		ID:           uuid.UUID(id.Bytes),
		UserID:       userID,
		Language:     language,
		CreatedAt:    createdAt.Time,
		LastActivity: lastActivity.Time,
	}, nil
}

// MigrateToUser attaches an anonymous session to a user account. The token
// column is nulled in the same statement, so the anonymous token stops
// resolving the moment the migration lands.
func (s *Store) MigrateToUser(ctx context.Context, rawToken, userID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE chat_sessions SET user_id = $1, session_token = NULL
		 WHERE session_token = $2`,
		userID, HashToken(rawToken),
	)
	if err != nil {
		return fmt.Errorf("migrating session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	s.logger.Info("migrated session to user", "user_id", userID)
	return nil
}

// SaveMessage appends a turn to the ledger and returns the message ID.
// A nil metadata stores an empty JSON object.
func (s *Store) SaveMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata any) (uuid.UUID, error) {
	metaJSON := []byte("{}")
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshaling message metadata: %w", err)
		}
	}

	var id pgtype.UUID
	err := s.db.QueryRow(ctx,
		`INSERT INTO chat_messages (session_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		uuidToPg(sessionID), role, content, metaJSON,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("saving message: %w", err)
	}

	return uuid.UUID(id.Bytes), nil
}

// History returns a chronological page of a session's ledger plus the total
// message count.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID, limit, offset int32) (*HistoryPage, error) {
	limit = NormalizeHistoryLimit(limit)
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		uuidToPg(sessionID), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			id        pgtype.UUID
			sessID    pgtype.UUID
			msg       Message
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &sessID, &msg.Role, &msg.Content, &msg.Metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.ID = uuid.UUID(id.Bytes)
		msg.SessionID = uuid.UUID(sessID.Bytes)
		msg.CreatedAt = createdAt.Time
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	var total int64
	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`,
		uuidToPg(sessionID),
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}

	return &HistoryPage{
		Messages:   messages,
		TotalCount: total,
		HasMore:    int64(offset)+int64(limit) < total,
	}, nil
}

// SaveFeedback records a rating for an assistant message and returns the
// new feedback row's ID. The target must exist and have the assistant role;
// anything else is ErrMessageNotFound so callers cannot probe which of the
// two failed.
func (s *Store) SaveFeedback(ctx context.Context, messageID uuid.UUID, rating int16, feedbackText string) (uuid.UUID, error) {
	var role string
	err := s.db.QueryRow(ctx,
		`SELECT role FROM chat_messages WHERE id = $1`,
		uuidToPg(messageID),
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrMessageNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("looking up message: %w", err)
	}
	if role != RoleAssistant {
		return uuid.Nil, ErrMessageNotFound
	}

	var textPtr *string
	if feedbackText != "" {
		textPtr = &feedbackText
	}

	var id pgtype.UUID
	err = s.db.QueryRow(ctx,
		`INSERT INTO feedback_ratings (message_id, rating, feedback_text)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		uuidToPg(messageID), rating, textPtr,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("saving feedback: %w", err)
	}

	s.logger.Debug("saved feedback", "message_id", messageID, "rating", rating)
	return uuid.UUID(id.Bytes), nil
}

// uuidToPg converts a uuid.UUID to its pgtype representation.
func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
