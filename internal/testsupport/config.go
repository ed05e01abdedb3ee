package testsupport

import (
	"path/filepath"
	"testing"

	"kvedit/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Splunk.URL = "http://127.0.0.1:1"
	cfgVal.Splunk.Token = "test-token"
	cfgVal.Collection.Name = "football"
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Snapshot.Dir = filepath.Join(base, "snapshots")
	cfgVal.Snapshot.MinFreeMB = 0

	builder := &configBuilder{
		t:   t,
		cfg: &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSplunk points the test config at a fake splunkd.
func WithSplunk(fake *FakeSplunk) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Splunk.URL = fake.URL()
		b.cfg.Splunk.Token = fake.Token
		b.cfg.Splunk.FormKey = fake.FormKey
	}
}

// WithCollection overrides the collection and its backing lookup.
func WithCollection(name, lookup string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Collection.Name = name
		b.cfg.Collection.Lookup = lookup
	}
}

// WithFields pins the table data fields.
func WithFields(fields ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Collection.Fields = fields
	}
}

// WithUploadMode sets the upload mode.
func WithUploadMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.Mode = mode
	}
}

// WithSnapshots enables local snapshots inside the test directory.
func WithSnapshots() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Snapshot.Enabled = true
	}
}

// WithAPIToken sets the bearer token the HTTP API requires.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}
