package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatking/chatking/internal/provider/resilience"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPConfig holds configuration for HTTPTokenProvider.
type HTTPConfig struct {
	// AuthURL is the chat server's auth endpoint; the user id is appended as a
	// path segment.
	AuthURL string

	// HTTPClient sends requests. If nil, a resilience client is created.
	HTTPClient HTTPDoer

	// Timeout for individual requests when HTTPClient is nil (default: 10s).
	Timeout time.Duration
}

// TokenResponse is the chat server's token payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// HTTPTokenProvider fetches user tokens from the chat server.
type HTTPTokenProvider struct {
	authURL    string
	httpClient HTTPDoer
}

// NewHTTPTokenProvider creates an HTTPTokenProvider.
func NewHTTPTokenProvider(cfg HTTPConfig) *HTTPTokenProvider {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultConfig("chat-auth")
		if cfg.Timeout != 0 {
			rc.Timeout = cfg.Timeout
		}
		httpClient = resilience.NewClient(rc)
	}

	return &HTTPTokenProvider{
		authURL:    strings.TrimSuffix(cfg.AuthURL, "/"),
		httpClient: httpClient,
	}
}

// FetchToken returns the access token the chat server issues for userID.
func (p *HTTPTokenProvider) FetchToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidUserID
	}

	u := p.authURL + "/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("fetch token: unexpected status %d", resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token", ErrInvalidResponse)
	}
	if token.UserID != "" && token.UserID != userID {
		return "", fmt.Errorf("%w: token issued for %q", ErrInvalidResponse, token.UserID)
	}
	return token.AccessToken, nil
}
