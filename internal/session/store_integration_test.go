package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/studyhall/ragchat/internal/log"
	"github.com/studyhall/ragchat/internal/session"
	"github.com/studyhall/ragchat/internal/testutil"
)

func setupStore(t *testing.T) (*session.Store, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	return session.NewStore(db.Pool, log.NewNop()), context.Background()
}

func TestResolveCreatesAndFinds(t *testing.T) {
	store, ctx := setupStore(t)

	// Empty token mints a new session
	sess, token, err := store.Resolve(ctx, "", nil, "en")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a minted token")
	}
	if sess.UserID != nil {
		t.Errorf("anonymous session should have nil UserID, got %v", *sess.UserID)
	}

	// Same token resolves to the same session and keeps the token
	again, sameToken, err := store.Resolve(ctx, token, nil, "en")
	if err != nil {
		t.Fatalf("Resolve() with existing token error: %v", err)
	}
	if again.ID != sess.ID {
		t.Errorf("resolved session ID = %v, want %v", again.ID, sess.ID)
	}
	if sameToken != token {
		t.Errorf("existing session must return the client's token, got %q", sameToken)
	}
	if again.LastActivity.Before(sess.LastActivity) {
		t.Error("last_activity should be touched on resolve")
	}

	// Unknown token mints a fresh session instead of failing
	fresh, freshToken, err := store.Resolve(ctx, "unknown-token", nil, "ur")
	if err != nil {
		t.Fatalf("Resolve() with unknown token error: %v", err)
	}
	if fresh.ID == sess.ID {
		t.Error("unknown token should create a new session")
	}
	if freshToken == "unknown-token" || freshToken == "" {
		t.Errorf("unknown token should be replaced, got %q", freshToken)
	}
	if fresh.Language != "ur" {
		t.Errorf("language = %q, want ur", fresh.Language)
	}
}

func TestGetUnknownToken(t *testing.T) {
	store, ctx := setupStore(t)

	_, err := store.Get(ctx, "never-issued")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
}

func TestMigrateToUser(t *testing.T) {
	store, ctx := setupStore(t)

	_, token, err := store.Resolve(ctx, "", nil, "en")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if err := store.MigrateToUser(ctx, token, "user-42"); err != nil {
		t.Fatalf("MigrateToUser() error: %v", err)
	}

	// The anonymous token must stop resolving after migration
	if _, err := store.Get(ctx, token); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("token still resolves after migration: %v", err)
	}

	// Migrating an unknown token is a not-found
	if err := store.MigrateToUser(ctx, "bogus", "user-42"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("MigrateToUser() error = %v, want ErrSessionNotFound", err)
	}
}

func TestLedgerAndHistory(t *testing.T) {
	store, ctx := setupStore(t)

	sess, _, err := store.Resolve(ctx, "", nil, "en")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	for i := range 5 {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		if _, err := store.SaveMessage(ctx, sess.ID, role, "turn", nil); err != nil {
			t.Fatalf("SaveMessage() error: %v", err)
		}
	}

	page, err := store.History(ctx, sess.ID, 3, 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(page.Messages) != 3 {
		t.Errorf("page size = %d, want 3", len(page.Messages))
	}
	if page.TotalCount != 5 {
		t.Errorf("TotalCount = %d, want 5", page.TotalCount)
	}
	if !page.HasMore {
		t.Error("HasMore should be true for offset 0 limit 3 of 5")
	}

	last, err := store.History(ctx, sess.ID, 3, 3)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(last.Messages) != 2 {
		t.Errorf("final page size = %d, want 2", len(last.Messages))
	}
	if last.HasMore {
		t.Error("HasMore should be false on the final page")
	}

	// Chronological order within the page
	for i := 1; i < len(page.Messages); i++ {
		if page.Messages[i].CreatedAt.Before(page.Messages[i-1].CreatedAt) {
			t.Error("messages out of chronological order")
		}
	}
}

func TestAssistantMetadataRoundTrip(t *testing.T) {
	store, ctx := setupStore(t)

	sess, _, err := store.Resolve(ctx, "", nil, "en")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	meta := map[string]any{
		"citations":         []map[string]string{{"chapterId": "1.2", "title": "Kinematics", "url": "/docs/module-1/chapter-2"}},
		"similarity_scores": []float64{0.91, 0.84},
	}
	id, err := store.SaveMessage(ctx, sess.ID, session.RoleAssistant, "answer", meta)
	if err != nil {
		t.Fatalf("SaveMessage() error: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected non-nil message ID")
	}

	page, err := store.History(ctx, sess.ID, 10, 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}

	var decoded struct {
		Citations []struct {
			ChapterID string `json:"chapterId"`
		} `json:"citations"`
	}
	if err := json.Unmarshal(page.Messages[0].Metadata, &decoded); err != nil {
		t.Fatalf("metadata did not round-trip: %v", err)
	}
	if len(decoded.Citations) != 1 || decoded.Citations[0].ChapterID != "1.2" {
		t.Errorf("unexpected citations: %+v", decoded.Citations)
	}
}

func TestSaveFeedback(t *testing.T) {
	store, ctx := setupStore(t)

	sess, _, err := store.Resolve(ctx, "", nil, "en")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	userMsg, err := store.SaveMessage(ctx, sess.ID, session.RoleUser, "question", nil)
	if err != nil {
		t.Fatalf("SaveMessage() error: %v", err)
	}
	assistantMsg, err := store.SaveMessage(ctx, sess.ID, session.RoleAssistant, "answer", nil)
	if err != nil {
		t.Fatalf("SaveMessage() error: %v", err)
	}

	first, err := store.SaveFeedback(ctx, assistantMsg, 1, "helpful")
	if err != nil {
		t.Errorf("SaveFeedback() on assistant message error: %v", err)
	}
	if first == uuid.Nil {
		t.Error("SaveFeedback() returned a nil feedback ID")
	}

	// Re-rating appends instead of failing
	second, err := store.SaveFeedback(ctx, assistantMsg, -1, "")
	if err != nil {
		t.Errorf("SaveFeedback() re-rating error: %v", err)
	}
	if second == first {
		t.Error("SaveFeedback() re-rating reused the feedback ID")
	}

	// User messages cannot be rated
	if _, err := store.SaveFeedback(ctx, userMsg, 1, ""); !errors.Is(err, session.ErrMessageNotFound) {
		t.Errorf("SaveFeedback() on user message = %v, want ErrMessageNotFound", err)
	}

	// Unknown message ID
	if _, err := store.SaveFeedback(ctx, uuid.New(), 1, ""); !errors.Is(err, session.ErrMessageNotFound) {
		t.Errorf("SaveFeedback() unknown message = %v, want ErrMessageNotFound", err)
	}
}
