// client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ViniZap4/lumi-notes/domain"
)

// Client talks to a lumi-notes server. It holds no credentials: every
// authenticated call takes the bearer token as an argument, so one Client
// can serve any number of identities at once.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Session is returned by Register and Login.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *domain.Identity `json:"user"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("lumi: %d %s (%s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("lumi: %d %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err when it is an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// New returns a Client for the server at baseURL. A nil httpClient means
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("lumi: invalid base URL %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

func (c *Client) Register(ctx context.Context, login, password, displayName string) (*Session, error) {
	req := map[string]string{"login": login, "password": password, "display_name": displayName}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Login(ctx context.Context, login, password string) (*Session, error) {
	req := map[string]string{"login": login, "password": password}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ValidateToken reports whether the server accepts token, and for whom.
func (c *Client) ValidateToken(ctx context.Context, token string) (bool, *domain.Identity, error) {
	var resp struct {
		Valid bool             `json:"valid"`
		User  *domain.Identity `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/validate-token", "", map[string]string{"token": token}, &resp); err != nil {
		return false, nil, err
	}
	return resp.Valid, resp.User, nil
}

func (c *Client) Me(ctx context.Context, token string) (*domain.Identity, error) {
	var identity domain.Identity
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", token, nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *Client) ListNotes(ctx context.Context, token string) ([]domain.Note, error) {
	var notes []domain.Note
	if err := c.do(ctx, http.MethodGet, "/api/notes", token, nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (c *Client) GetNote(ctx context.Context, token, id string) (*domain.Note, error) {
	var note domain.Note
	if err := c.do(ctx, http.MethodGet, "/api/notes/"+url.PathEscape(id), token, nil, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) CreateNote(ctx context.Context, token string, draft domain.NoteDraft) (*domain.Note, error) {
	var note domain.Note
	if err := c.do(ctx, http.MethodPost, "/api/notes", token, draft, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) UpdateNote(ctx context.Context, token, id string, patch domain.NotePatch) (*domain.Note, error) {
	var note domain.Note
	if err := c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(id), token, patch, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) DeleteNote(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), token, nil, nil)
}

// do sends one request. The Authorization header is set from token alone
// and only when token is not empty.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("lumi: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("lumi: failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lumi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("lumi: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("lumi: failed to decode response: %w", err)
	}
	return nil
}
