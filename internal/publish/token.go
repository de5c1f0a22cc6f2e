package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultTokenEndpoint = "https://oauth2.googleapis.com/token"

// Token mirrors the on-disk OAuth token file.
type Token struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	ClientID      string    `json:"client_id"`
	ClientSecret  string    `json:"client_secret"`
	Expiry        time.Time `json:"expiry"`
	TokenEndpoint string    `json:"token_endpoint,omitempty"`
}

func (t Token) expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	// Refresh a minute early so an in-flight upload does not straddle expiry.
	return time.Now().After(t.Expiry.Add(-time.Minute))
}

// TokenManager loads the OAuth token from disk and refreshes it when
// expired, persisting the refreshed token back to the same file.
type TokenManager struct {
	path   string
	client *http.Client

	mu    sync.Mutex
	token *Token
}

// NewTokenManager constructs a manager over the given token file.
func NewTokenManager(path string, client *http.Client) *TokenManager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{path: path, client: client}
}

// AccessToken returns a valid access token, refreshing through the OAuth
// endpoint when the cached one has expired.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		token, err := loadToken(m.path)
		if err != nil {
			return "", err
		}
		m.token = token
	}

	if !m.token.expired() {
		return m.token.AccessToken, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token.AccessToken, nil
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (m *TokenManager) refreshLocked(ctx context.Context) error {
	if strings.TrimSpace(m.token.RefreshToken) == "" {
		return fmt.Errorf("token file %s has no refresh token", m.path)
	}

	endpoint := m.token.TokenEndpoint
	if endpoint == "" {
		endpoint = defaultTokenEndpoint
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", m.token.RefreshToken)
	form.Set("client_id", m.token.ClientID)
	form.Set("client_secret", m.token.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token refresh returned %d", resp.StatusCode)
	}

	var payload refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("token refresh returned empty access token")
	}

	m.token.AccessToken = payload.AccessToken
	if payload.ExpiresIn > 0 {
		m.token.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	if err := saveToken(m.path, m.token); err != nil {
		return err
	}
	return nil
}

func loadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	if strings.TrimSpace(token.AccessToken) == "" && strings.TrimSpace(token.RefreshToken) == "" {
		return nil, fmt.Errorf("token file %s has neither access nor refresh token", path)
	}
	return &token, nil
}

func saveToken(path string, token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
