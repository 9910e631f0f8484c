package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studyhall/ragchat/internal/log"
)

func TestVerifySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/verify" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer valid-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"user_id": "user-7",
			"preferences": {
				"difficulty": "advanced",
				"focus_tags": ["control", "perception"],
				"preferred_language": "en"
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, log.NewNop())

	identity := c.Verify(context.Background(), "valid-token")
	if identity == nil {
		t.Fatal("expected identity, got anonymous")
	}
	if identity.UserID != "user-7" {
		t.Errorf("UserID = %q, want user-7", identity.UserID)
	}
	if identity.Preferences.Difficulty != DifficultyAdvanced {
		t.Errorf("Difficulty = %q, want advanced", identity.Preferences.Difficulty)
	}
	if len(identity.Preferences.FocusTags) != 2 {
		t.Errorf("FocusTags = %v", identity.Preferences.FocusTags)
	}
}

func TestVerifyDegradesToAnonymous(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		bearer  string
	}{
		{
			name: "unauthorized status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			bearer: "expired",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			bearer: "valid",
		},
		{
			name: "empty user id",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"user_id": ""}`))
			},
			bearer: "valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, log.NewNop())
			if identity := c.Verify(context.Background(), tt.bearer); identity != nil {
				t.Errorf("expected anonymous, got %v", identity)
			}
		})
	}
}

func TestVerifyUnreachableService(t *testing.T) {
	// Closed server: connection refused must degrade, not error
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, 200*time.Millisecond, log.NewNop())
	if identity := c.Verify(context.Background(), "token"); identity != nil {
		t.Errorf("expected anonymous when auth is down, got %v", identity)
	}
}

func TestVerifyDisabled(t *testing.T) {
	c := NewClient("", time.Second, log.NewNop())
	if identity := c.Verify(context.Background(), "any"); identity != nil {
		t.Error("empty base URL must disable verification")
	}
}

func TestBearerFromHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Bearer   padded  ", "padded"},
		{"Basic dXNlcg==", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := BearerFromHeader(tt.header); got != tt.want {
			t.Errorf("BearerFromHeader(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
