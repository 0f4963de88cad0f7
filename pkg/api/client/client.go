package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the anonify API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Message)
}

// Envelope is the success/message pair every response carries.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Pending is returned by sign-up and resend-code.
type Pending struct {
	Envelope
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignUp registers a new account; a verification code is mailed.
func (c *Client) SignUp(ctx context.Context, username, email, password string) (Pending, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	var resp Pending
	if err := c.do(ctx, http.MethodPost, "/auth/sign-up", body, "", &resp); err != nil {
		return Pending{}, err
	}
	return resp, nil
}

// Verify submits the emailed code.
func (c *Client) Verify(ctx context.Context, username, code string) error {
	body := map[string]string{"username": username, "code": code}
	return c.do(ctx, http.MethodPost, "/auth/verify", body, "", nil)
}

// ResendCode mails a fresh code to an unverified account.
func (c *Client) ResendCode(ctx context.Context, email string) (Pending, error) {
	var resp Pending
	if err := c.do(ctx, http.MethodPost, "/auth/resend-code", map[string]string{"email": email}, "", &resp); err != nil {
		return Pending{}, err
	}
	return resp, nil
}

// Account is the claim snapshot returned on sign-in.
type Account struct {
	AccountID         string    `json:"account_id"`
	Username          string    `json:"username"`
	Verified          bool      `json:"verified"`
	AcceptingMessages bool      `json:"accepting_messages"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Session carries the bearer token for owner routes.
type Session struct {
	Envelope
	Token   string  `json:"token"`
	Account Account `json:"account"`
}

// SignIn exchanges a username or email and password for a session.
func (c *Client) SignIn(ctx context.Context, identifier, password string) (Session, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "/auth/sign-in", body, "", &resp); err != nil {
		return Session{}, err
	}
	return resp, nil
}

// SignOut revokes token.
func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/sign-out", nil, token, nil)
}

// DeleteAccount removes the signed-in account and its inbox.
func (c *Client) DeleteAccount(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/account", nil, token, nil)
}

type acceptingResponse struct {
	Envelope
	Accepting bool `json:"is_accepting_messages"`
}

// Accepting reports whether the inbox currently takes messages.
func (c *Client) Accepting(ctx context.Context, token string) (bool, error) {
	var resp acceptingResponse
	if err := c.do(ctx, http.MethodGet, "/accept-messages", nil, token, &resp); err != nil {
		return false, err
	}
	return resp.Accepting, nil
}

// SetAccepting opens or pauses the inbox.
func (c *Client) SetAccepting(ctx context.Context, token string, accepting bool) (bool, error) {
	var resp acceptingResponse
	body := map[string]bool{"accept_messages": accepting}
	if err := c.do(ctx, http.MethodPost, "/accept-messages", body, token, &resp); err != nil {
		return false, err
	}
	return resp.Accepting, nil
}

// Message is one anonymous inbox entry.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessages returns the inbox, newest first.
func (c *Client) ListMessages(ctx context.Context, token string) ([]Message, error) {
	var resp struct {
		Envelope
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages", nil, token, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteMessage removes one message from the inbox.
func (c *Client) DeleteMessage(ctx context.Context, token, messageID string) error {
	path := "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, token, nil)
}

// SendMessage posts content anonymously to username.
func (c *Client) SendMessage(ctx context.Context, username, content string) error {
	body := map[string]string{"username": username, "content": content}
	return c.do(ctx, http.MethodPost, "/send-message", body, "", nil)
}

// Suggest asks for reply ideas seeded by message.
func (c *Client) Suggest(ctx context.Context, message string) ([]string, error) {
	var resp struct {
		Envelope
		Suggestions []string `json:"suggestions"`
	}
	if err := c.do(ctx, http.MethodPost, "/suggest-messages", map[string]string{"message": message}, "", &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// Profile is the public view of a recipient.
type Profile struct {
	Username          string `json:"username"`
	AcceptingMessages bool   `json:"accepting_messages"`
}

// GetProfile looks up a recipient by username.
func (c *Client) GetProfile(ctx context.Context, username string) (Profile, error) {
	var resp Profile
	if err := c.do(ctx, http.MethodGet, "/u/"+url.PathEscape(username), nil, "", &resp); err != nil {
		return Profile{}, err
	}
	return resp, nil
}
