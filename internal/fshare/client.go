// Package fshare wraps the Fshare authentication and download-session REST
// endpoints used by the VIP pathway.
package fshare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dloadly/backend/internal/config"
)

var (
	// ErrNotConfigured indicates VIP credentials are missing.
	ErrNotConfigured = errors.New("fshare credentials not configured")
	// ErrLoginFailed indicates the login endpoint rejected the credentials.
	ErrLoginFailed = errors.New("fshare login failed")
)

// Session carries the bearer token returned by a successful login.
type Session struct {
	Token     string
	SessionID string
}

// FileInfo describes an Fshare-hosted file.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size,string"`
}

// Client talks to the Fshare REST API. The zero value is not usable; build it
// with NewClient.
type Client struct {
	baseURL    string
	email      string
	password   string
	appKey     string
	httpClient *http.Client
}

// NewClient constructs a Client from configuration. The HTTP client carries a
// fixed timeout; Fshare calls are never retried here.
func NewClient(cfg config.FshareConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		email:      cfg.Email,
		password:   cfg.Password,
		appKey:     cfg.AppKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying HTTP client. Useful for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Login authenticates with the stored VIP credentials and returns a session.
func (c *Client) Login(ctx context.Context) (Session, error) {
	if c.email == "" || c.password == "" {
		return Session{}, ErrNotConfigured
	}

	payload := map[string]string{
		"user_email": c.email,
		"password":   c.password,
		"app_key":    c.appKey,
	}

	var resp struct {
		Code      int    `json:"code"`
		Message   string `json:"msg"`
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
	}

	if err := c.postJSON(ctx, "/user/login", payload, "", &resp); err != nil {
		return Session{}, fmt.Errorf("fshare login: %w", err)
	}

	if resp.Token == "" {
		if resp.Message != "" {
			return Session{}, fmt.Errorf("%w: %s", ErrLoginFailed, resp.Message)
		}
		return Session{}, ErrLoginFailed
	}

	return Session{Token: resp.Token, SessionID: resp.SessionID}, nil
}

// DownloadSession exchanges a file URL for a direct VIP download link.
func (c *Client) DownloadSession(ctx context.Context, session Session, fileURL, password string) (string, error) {
	payload := map[string]string{
		"url":      fileURL,
		"token":    session.Token,
		"password": password,
		"zipflag":  "0",
	}

	var resp struct {
		Location string `json:"location"`
		Message  string `json:"msg"`
	}

	if err := c.postJSON(ctx, "/session/download", payload, session.SessionID, &resp); err != nil {
		return "", fmt.Errorf("fshare download session: %w", err)
	}

	if resp.Location == "" {
		if resp.Message != "" {
			return "", fmt.Errorf("fshare download session: %s", resp.Message)
		}
		return "", errors.New("fshare download session: no location in response")
	}

	return resp.Location, nil
}

// FileInfo fetches name and size for a public file URL.
func (c *Client) FileInfo(ctx context.Context, fileURL string) (FileInfo, error) {
	payload := map[string]string{"url": fileURL}

	var info FileInfo
	if err := c.postJSON(ctx, "/fileops/get", payload, "", &info); err != nil {
		return FileInfo{}, fmt.Errorf("fshare file info: %w", err)
	}

	if info.Name == "" {
		return FileInfo{}, errors.New("fshare file info: empty response")
	}

	return info, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, sessionID string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "dloadly-backend")
	if sessionID != "" {
		req.Header.Set("Cookie", "session_id="+sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("call %s: unexpected status %d", path, resp.StatusCode)
	}

	// Fshare intermittently serves HTML error pages with a 200 status; a
	// decode failure here is the signal for the manual downgrade path.
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	return nil
}
