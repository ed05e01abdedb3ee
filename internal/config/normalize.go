package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// environment holds fallbacks for secrets that should not live in the file.
type environment struct {
	SplunkURL      string `env:"KVEDIT_SPLUNK_URL"`
	SplunkToken    string `env:"KVEDIT_SPLUNK_TOKEN"`
	SplunkUsername string `env:"KVEDIT_SPLUNK_USERNAME"`
	SplunkPassword string `env:"KVEDIT_SPLUNK_PASSWORD"`
	SplunkFormKey  string `env:"KVEDIT_SPLUNK_FORM_KEY"`
	APIToken       string `env:"KVEDIT_API_TOKEN"`
}

func (c *Config) normalize() error {
	var fallback environment
	if err := env.Parse(&fallback); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	c.normalizeSplunk(fallback)
	c.normalizeCollection()
	c.normalizeUpload()
	if err := c.normalizePaths(fallback); err != nil {
		return err
	}
	c.normalizeDashboard()
	if err := c.normalizeSnapshot(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (c *Config) normalizeSplunk(fallback environment) {
	c.Splunk.URL = strings.TrimRight(firstNonEmpty(c.Splunk.URL, fallback.SplunkURL, defaultSplunkURL), "/")
	c.Splunk.App = firstNonEmpty(c.Splunk.App, defaultSplunkApp)
	c.Splunk.Owner = firstNonEmpty(c.Splunk.Owner, defaultSplunkOwner)
	c.Splunk.Token = firstNonEmpty(c.Splunk.Token, fallback.SplunkToken)
	c.Splunk.Username = firstNonEmpty(c.Splunk.Username, fallback.SplunkUsername)
	if c.Splunk.Password == "" {
		c.Splunk.Password = fallback.SplunkPassword
	}
	c.Splunk.FormKey = firstNonEmpty(c.Splunk.FormKey, fallback.SplunkFormKey)
	if c.Splunk.TimeoutSeconds <= 0 {
		c.Splunk.TimeoutSeconds = defaultSplunkTimeoutSeconds
	}
}

func (c *Config) normalizeCollection() {
	c.Collection.Name = strings.TrimSpace(c.Collection.Name)
	c.Collection.Lookup = strings.TrimSpace(c.Collection.Lookup)
	c.Collection.Model = strings.TrimSpace(c.Collection.Model)
	c.Collection.Fields = dedupe(c.Collection.Fields)
	c.Collection.OmitColumns = dedupe(c.Collection.OmitColumns)
}

func (c *Config) normalizeUpload() {
	c.Upload.Mode = strings.ToLower(strings.TrimSpace(c.Upload.Mode))
	if c.Upload.Mode == "" {
		c.Upload.Mode = defaultUploadMode
	}
	if c.Upload.BatchSize <= 0 {
		c.Upload.BatchSize = defaultBatchSize
	}
	if c.Upload.MaxFileBytes <= 0 {
		c.Upload.MaxFileBytes = defaultMaxFileBytes
	}
}

func (c *Config) normalizePaths(fallback environment) error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Collection.Model != "" {
		if c.Collection.Model, err = expandPath(c.Collection.Model); err != nil {
			return fmt.Errorf("collection.model: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = firstNonEmpty(c.Paths.APIToken, fallback.APIToken)
	return nil
}

func (c *Config) normalizeDashboard() {
	c.Dashboard.VisualizationID = firstNonEmpty(c.Dashboard.VisualizationID, defaultVisualizationID)
	if c.Dashboard.PageSize <= 0 {
		c.Dashboard.PageSize = defaultPageSize
	}
	origins := make([]string, 0, len(c.Dashboard.AllowedOrigins))
	for _, origin := range c.Dashboard.AllowedOrigins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Dashboard.AllowedOrigins = origins
}

func (c *Config) normalizeSnapshot() error {
	var err error
	if strings.TrimSpace(c.Snapshot.Dir) == "" {
		c.Snapshot.Dir = defaultSnapshotDir
	}
	if c.Snapshot.Dir, err = expandPath(c.Snapshot.Dir); err != nil {
		return fmt.Errorf("snapshot.dir: %w", err)
	}
	if c.Snapshot.Keep <= 0 {
		c.Snapshot.Keep = defaultSnapshotKeep
	}
	if c.Snapshot.MinFreeMB < 0 {
		c.Snapshot.MinFreeMB = 0
	}
	c.Snapshot.S3Bucket = strings.TrimSpace(c.Snapshot.S3Bucket)
	c.Snapshot.S3Region = strings.TrimSpace(c.Snapshot.S3Region)
	c.Snapshot.S3Endpoint = strings.TrimSpace(c.Snapshot.S3Endpoint)
	c.Snapshot.S3Prefix = strings.TrimSpace(c.Snapshot.S3Prefix)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
