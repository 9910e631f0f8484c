// Package auth provides the client for the external auth collaborator.
//
// Verification is best-effort: a missing token, a failed call, or an
// unverifiable token all degrade the request to anonymous. Chat never fails
// because auth is down.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/studyhall/ragchat/internal/log"
)

// Difficulty levels in user preferences.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Preferences are the learning preferences attached to a verified user.
type Preferences struct {
	Difficulty        string   `json:"difficulty"`
	FocusTags         []string `json:"focus_tags"`
	PreferredLanguage string   `json:"preferred_language"`
}

// Identity is a verified user.
type Identity struct {
	UserID      string      `json:"user_id"`
	Preferences Preferences `json:"preferences"`
}

// Verifier resolves bearer tokens to identities.
type Verifier interface {
	// Verify returns the identity for a bearer token, or nil for anonymous.
	// It never returns an error for an unverifiable token, only for
	// programming mistakes; callers treat nil identity as anonymous.
	Verify(ctx context.Context, bearer string) *Identity
}

// Client calls the auth service's verify endpoint over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates an auth client. An empty baseURL disables verification:
// every request resolves to anonymous.
func NewClient(baseURL string, timeout time.Duration, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Verify resolves a bearer token via GET /api/v1/auth/verify. Any failure
// degrades to anonymous with a warning log; the auth collaborator is not in
// this service's availability budget.
func (c *Client) Verify(ctx context.Context, bearer string) *Identity {
	if bearer == "" || c.baseURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/auth/verify", nil)
	if err != nil {
		c.logger.Warn("building auth request failed", "error", err)
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("auth service unreachable, continuing as anonymous", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("token not verified", "status", resp.StatusCode)
		return nil
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		c.logger.Warn("decoding auth response failed", "error", err)
		return nil
	}
	if identity.UserID == "" {
		return nil
	}

	return &identity
}

// BearerFromHeader extracts the bearer token from an Authorization header
// value, or "" when absent or malformed.
func BearerFromHeader(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// String implements Stringer for debug logging.
func (i *Identity) String() string {
	if i == nil {
		return "anonymous"
	}
	return fmt.Sprintf("user %s (%s)", i.UserID, i.Preferences.Difficulty)
}
