package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wolman/go-client/pkg/models"
)

// Client is the HTTP collaborator for the session layer. It knows the
// server's endpoints and the bearer header convention, nothing about
// session state or envelope crypto.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Login exchanges credentials for a bearer token. Unauthenticated; the
// only endpoint that sees the password.
func (c *Client) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	var out models.LoginResponse
	body, err := c.do(ctx, http.MethodPost, "/auth/login", "", models.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("login response: %w", err)
	}
	if out.AccessToken == "" {
		return out, fmt.Errorf("%w: empty access token", ErrAuthentication)
	}
	return out, nil
}

// FetchServerKey retrieves the server's public key. Authenticated but not
// enveloped: it bootstraps the encryption.
func (c *Client) FetchServerKey(ctx context.Context, token string) (models.ServerKeyResponse, error) {
	var out models.ServerKeyResponse
	body, err := c.do(ctx, http.MethodGet, "/keys/server-public", token, nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("server key response: %w", err)
	}
	return out, nil
}

// RegisterClientKey uploads the client's fresh public key. Authenticated,
// not enveloped.
func (c *Client) RegisterClientKey(ctx context.Context, token, publicKeyPEM string) (models.RegisterKeyResponse, error) {
	var out models.RegisterKeyResponse
	body, err := c.do(ctx, http.MethodPost, "/keys/register", token, models.RegisterKeyRequest{
		PublicKey: publicKeyPEM,
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("register key response: %w", err)
	}
	return out, nil
}

// CallEnveloped sends a raw envelope body (or none) to an enveloped
// endpoint and returns the raw envelope response body.
func (c *Client) CallEnveloped(ctx context.Context, token, endpoint, method string, envelope []byte) ([]byte, error) {
	var payload any
	if len(envelope) > 0 {
		payload = json.RawMessage(envelope)
	}
	return c.do(ctx, method, endpoint, token, payload)
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
	default:
		c.logger.Warn("api request failed", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, fmt.Errorf("api request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
}
