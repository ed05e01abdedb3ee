package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Collection and lookup names end up inside REST paths and search strings.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSplunk(); err != nil {
		return err
	}
	if err := c.validateCollection(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateSnapshot(); err != nil {
		return err
	}
	return c.validateDashboard()
}

func (c *Config) validateDashboard() error {
	for _, origin := range c.Dashboard.AllowedOrigins {
		if origin == "*" {
			continue
		}
		parsed, err := url.Parse(origin)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" || parsed.Path != "" {
			return fmt.Errorf("dashboard.allowed_origins: %q is not a scheme://host[:port] origin", origin)
		}
	}
	return nil
}

func (c *Config) validateSplunk() error {
	parsed, err := url.Parse(c.Splunk.URL)
	if err != nil {
		return fmt.Errorf("splunk.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("splunk.url must use http or https, got %q", c.Splunk.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("splunk.url must include a host, got %q", c.Splunk.URL)
	}
	if !namePattern.MatchString(c.Splunk.App) {
		return fmt.Errorf("splunk.app contains invalid characters: %q", c.Splunk.App)
	}
	if c.Splunk.Username != "" && c.Splunk.Password == "" {
		return errors.New("splunk.password must be set when splunk.username is set (or export KVEDIT_SPLUNK_PASSWORD)")
	}
	return nil
}

func (c *Config) validateCollection() error {
	if c.Collection.Name == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/kvedit/config.toml"
		}
		return fmt.Errorf("collection.name is required. Edit %s (create with 'kvedit config init')", defaultPath)
	}
	if !namePattern.MatchString(c.Collection.Name) {
		return fmt.Errorf("collection.name contains invalid characters: %q", c.Collection.Name)
	}
	if c.Collection.Lookup != "" && !namePattern.MatchString(c.Collection.Lookup) {
		return fmt.Errorf("collection.lookup contains invalid characters: %q", c.Collection.Lookup)
	}
	for _, field := range c.Collection.Fields {
		if strings.ContainsAny(field, "\r\n") {
			return fmt.Errorf("collection.fields entry %q contains a line break", field)
		}
	}
	return nil
}

func (c *Config) validateUpload() error {
	switch c.Upload.Mode {
	case UploadModeReplace, UploadModeIncremental:
	default:
		return fmt.Errorf("upload.mode must be %q or %q, got %q", UploadModeReplace, UploadModeIncremental, c.Upload.Mode)
	}
	if c.Upload.BatchSize > 1000 {
		return errors.New("upload.batch_size must not exceed 1000 (KV Store max_documents_per_batch_save)")
	}
	return nil
}

func (c *Config) validateSnapshot() error {
	if !c.Snapshot.Enabled {
		return nil
	}
	if c.Snapshot.S3Endpoint != "" && c.Snapshot.S3Bucket == "" {
		return errors.New("snapshot.s3_bucket must be set when snapshot.s3_endpoint is set")
	}
	return nil
}
