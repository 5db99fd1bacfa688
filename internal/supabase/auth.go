// Package supabase is a thin client for the Supabase Auth REST API.
package supabase

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

	"github.com/tidwall/gjson"
)

type Config struct {
	URL        string
	AnonKey    string
	ServiceKey string
}

// User is the subset of the Supabase auth user the backend reads.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	Aud          string         `json:"aud"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AuthResponse is returned by sign-in and by sign-up when no email
// confirmation is required. AccessToken is empty when sign-up is waiting on
// confirmation.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Error is a non-2xx answer from Supabase Auth.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("supabase auth %d: %s", e.Status, e.Message)
}

type Client struct {
	cfg        Config
	authPrefix string
	httpClient *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		authPrefix: strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SignUp registers a user. name is stored in user metadata.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*AuthResponse, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"name": name},
	}
	raw, err := c.do(ctx, http.MethodPost, "/signup", c.cfg.AnonKey, "", body)
	if err != nil {
		return nil, err
	}

	// With confirmation on, Supabase answers with the bare user object.
	if !gjson.GetBytes(raw, "access_token").Exists() {
		var u User
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("decode signup user: %w", err)
		}
		return &AuthResponse{User: u}, nil
	}
	var out AuthResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode signup: %w", err)
	}
	return &out, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	raw, err := c.do(ctx, http.MethodPost, "/token?grant_type=password", c.cfg.AnonKey, "", body)
	if err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &out, nil
}

// GetUser resolves an access token to its user, validating it server-side.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	raw, err := c.do(ctx, http.MethodGet, "/user", c.cfg.AnonKey, accessToken, nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, http.MethodPost, "/logout", c.cfg.AnonKey, accessToken, nil)
	return err
}

// Recover sends a password-reset email. Supabase answers 200 whether or
// not the address is registered. redirectTo may be empty.
func (c *Client) Recover(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	_, err := c.do(ctx, http.MethodPost, path, c.cfg.AnonKey, "", map[string]string{"email": email})
	return err
}

type UserAttributes struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// UpdateUser changes the signed-in user's attributes. A recovery link
// signs the user in, so this is also how a reset password is set.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*User, error) {
	raw, err := c.do(ctx, http.MethodPut, "/user", c.cfg.AnonKey, accessToken, attrs)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes the auth user. Requires the service key.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if c.cfg.ServiceKey == "" {
		return fmt.Errorf("service key not configured")
	}
	_, err := c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), c.cfg.ServiceKey, c.cfg.ServiceKey, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path, apiKey, bearer string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.authPrefix+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase auth request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	return raw, nil
}

// errorMessage digs the human-readable message out of the several error
// shapes Supabase Auth uses.
func errorMessage(raw []byte) string {
	for _, key := range []string{"error_description", "msg", "message", "error"} {
		if v := gjson.GetBytes(raw, key); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	if len(raw) == 0 {
		return "empty response"
	}
	return strings.TrimSpace(string(raw))
}
