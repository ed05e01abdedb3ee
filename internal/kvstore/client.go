package kvstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"kvedit/internal/config"
	"kvedit/internal/logging"
)

// Record is an opaque KV Store document.
type Record = map[string]any

const (
	// KeyField is the KV Store primary key.
	KeyField = "_key"
	// UserField is the internal owner field KV Store adds to every document.
	UserField = "_user"
	// DefaultBatchSize matches the KV Store max_documents_per_batch_save limit.
	DefaultBatchSize = 1000
	// DefaultOwner scopes requests to app-level sharing.
	DefaultOwner = "nobody"
)

// Options configures a Client.
type Options struct {
	BaseURL            string
	Owner              string
	App                string
	Token              string
	Username           string
	Password           string
	FormKey            string
	InsecureSkipVerify bool
	Timeout            time.Duration
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

// Client issues authenticated requests against one Splunk app namespace.
type Client struct {
	base     *url.URL
	owner    string
	app      string
	token    string
	username string
	password string
	formKey  string
	http     *http.Client
	logger   *slog.Logger
}

// New builds a Client. A cookie jar is attached so splunkd session cookies
// persist across calls.
func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("kvstore: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("kvstore: parse base url: %w", err)
	}
	if strings.TrimSpace(opts.App) == "" {
		return nil, errors.New("kvstore: app is required")
	}
	owner := strings.TrimSpace(opts.Owner)
	if owner == "" {
		owner = DefaultOwner
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("kvstore: cookie jar: %w", err)
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // splunkd ships self-signed certificates
		}
		httpClient = &http.Client{Timeout: opts.Timeout, Jar: jar, Transport: transport}
	}

	return &Client{
		base:     base,
		owner:    owner,
		app:      strings.TrimSpace(opts.App),
		token:    opts.Token,
		username: opts.Username,
		password: opts.Password,
		formKey:  opts.FormKey,
		http:     httpClient,
		logger:   logging.NewComponentLogger(opts.Logger, "kvstore"),
	}, nil
}

// NewFromConfig builds a Client from the [splunk] configuration section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("kvstore: config is required")
	}
	return New(Options{
		BaseURL:            cfg.Splunk.URL,
		Owner:              cfg.Splunk.Owner,
		App:                cfg.Splunk.App,
		Token:              cfg.Splunk.Token,
		Username:           cfg.Splunk.Username,
		Password:           cfg.Splunk.Password,
		FormKey:            cfg.Splunk.FormKey,
		InsecureSkipVerify: cfg.Splunk.InsecureSkipVerify,
		Timeout:            cfg.SplunkTimeout(),
		Logger:             logger,
	})
}

// endpoint resolves a path below servicesNS/{owner}/{app}. Segments are
// escaped individually so keys may contain slashes.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	parts := append([]string{"servicesNS", c.owner, c.app}, segments...)
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = url.PathEscape(part)
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("output_mode", "json")

	resolved := *c.base
	resolved.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(parts, "/")
	resolved.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	resolved.RawQuery = query.Encode()
	return resolved.String()
}

// do sends one request and decodes a JSON response into out when out is
// non-nil and the response has a body.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.formKey != "" {
		req.Header.Set("X-Splunk-Form-Key", c.formKey)
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("splunk request",
		logging.String("method", method),
		logging.String("path", req.URL.Path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(method, req.URL.Path, resp, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	return c.do(ctx, method, endpoint, contentType, body, out)
}

func (c *Client) doForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), out)
}
