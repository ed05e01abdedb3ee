// Package apiclient talks to a running kvedit server over its HTTP API.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kvedit/internal/api"
	"kvedit/internal/config"
)

// ErrUnavailable is returned when no API bind address is configured.
var ErrUnavailable = errors.New("kvedit api unavailable")

// Client calls the kvedit HTTP API. It implements dashboard.API so a CLI
// bridge can refresh the dashboards a server has open.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for bind, which may be host:port or a full URL.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawPath = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// NewFromConfig builds a client for the configured server.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrUnavailable
	}
	return New(cfg.Paths.APIBind, cfg.Paths.APIToken)
}

// StatusError reports a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("kvedit api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("kvedit api returned status %d: %s", e.StatusCode, e.Message)
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var out api.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// RefreshVisualization asks the server to refresh the visualization id on
// every connected dashboard.
func (c *Client) RefreshVisualization(ctx context.Context, id string) error {
	_, err := c.Refresh(ctx, id)
	return err
}

// Refresh is RefreshVisualization returning how many dashboards received it.
func (c *Client) Refresh(ctx context.Context, id string) (api.RefreshResponse, error) {
	var out api.RefreshResponse
	id = strings.TrimSpace(id)
	if id == "" {
		return out, errors.New("visualization id is required")
	}
	err := c.do(ctx, http.MethodPost, "/api/visualizations/"+url.PathEscape(id)+"/refresh", nil, &out)
	return out, err
}

// do sends a request to path, which must already be escaped.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var failure api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &StatusError{StatusCode: resp.StatusCode, Message: failure.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
