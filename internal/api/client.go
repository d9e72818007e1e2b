// Package api is the HTTP client for the game backend: the streaming action
// endpoint, NPC interaction and chat send.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/config"
)

const (
	actionStreamPath = "/api/actions/stream"
	npcInteractPath  = "/api/npc/interact"
	chatPath         = "/api/chat"
)

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Path, e.Status, e.Body)
}

// Client talks to the game backend over HTTP.
type Client struct {
	baseURL        string
	http           *http.Client
	requestTimeout time.Duration
	streamTimeout  time.Duration
	logger         *zap.Logger
}

// NewClient creates a Client from cfg. httpClient may be nil to use a default client.
//
// Precondition: cfg must have passed config validation.
// Postcondition: Returns a Client; per-request timeouts come from cfg.
func NewClient(cfg config.APIConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		http:           httpClient,
		requestTimeout: cfg.RequestTimeout,
		streamTimeout:  cfg.StreamTimeout,
		logger:         logger,
	}
}

// postJSON sends body as JSON to path and decodes a JSON response into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	resp, err := c.do(ctx, path, "application/json", body)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", path, err)
	}
	return nil
}

// do issues the POST and checks the status. The caller closes the body.
func (c *Client) do(ctx context.Context, path, accept string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encoding request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}
