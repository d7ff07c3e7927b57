package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// HTTPClient speaks the link-token service's REST endpoints. It keeps the
// current session in memory, mirroring how a provider SDK caches credentials
// on device.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	session *Session
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPDoer overrides the underlying http.Client, mainly for tests.
func WithHTTPDoer(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) { h.http = c }
}

// NewHTTPClient builds a client for the service at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type userPayload struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	EmailVerified      bool   `json:"email_verified"`
	LegalAccepted      bool   `json:"legal_accepted"`
	Banned             bool   `json:"banned"`
	OnboardingComplete *bool  `json:"onboarding_complete"`
}

type sessionResponse struct {
	AccessToken string      `json:"access_token"`
	User        userPayload `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *HTTPClient) ExchangeCodeForSession(ctx context.Context, rawURL string) (*Session, error) {
	token, err := tokenFromURL(rawURL)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/exchange", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyExchangeError(resp)
	}

	var payload sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}

	now := time.Now()
	session := &Session{
		AccessToken: payload.AccessToken,
		UserID:      payload.User.ID,
		Email:       payload.User.Email,
	}
	if payload.User.EmailVerified {
		session.EmailConfirmedAt = &now
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	return session, nil
}

func (c *HTTPClient) GetSession(_ context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, nil
}

func (c *HTTPClient) GetUser(ctx context.Context) (*User, error) {
	session := c.currentSession()
	if session == nil {
		return nil, ErrInvalidRefreshToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("build me request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("me request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidRefreshToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("me request: unexpected status %d", resp.StatusCode)
	}

	var payload userPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode me response: %w", err)
	}

	return &User{
		ID:                 payload.ID,
		Email:              payload.Email,
		EmailVerified:      payload.EmailVerified,
		LegalAccepted:      payload.LegalAccepted,
		Banned:             payload.Banned,
		OnboardingComplete: payload.OnboardingComplete,
	}, nil
}

func (c *HTTPClient) UpdatePassword(ctx context.Context, newPassword string) error {
	session := c.currentSession()
	if session == nil {
		return ErrInvalidRefreshToken
	}

	body, _ := json.Marshal(map[string]string{"new_password": newPassword})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/password", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build password request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("password request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrInvalidRefreshToken
	default:
		return fmt.Errorf("password request: unexpected status %d", resp.StatusCode)
	}
}

func (c *HTTPClient) SignOut(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	return nil
}

func (c *HTTPClient) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func classifyExchangeError(resp *http.Response) error {
	var payload errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	switch payload.Error {
	case "expired":
		return ErrLinkExpired
	case "already_used", "conflict":
		return ErrLinkUsed
	}
	return fmt.Errorf("exchange failed: status %d (%s)", resp.StatusCode, payload.Error)
}

// tokenFromURL pulls the opaque token out of an auth callback URL, looking in
// both the query and the fragment (web targets deliver tokens in the hash).
func tokenFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse callback URL: %w", err)
	}
	if token := u.Query().Get("token"); token != "" {
		return token, nil
	}
	if frag, err := url.ParseQuery(u.Fragment); err == nil {
		if token := frag.Get("token"); token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("callback URL has no token")
}
