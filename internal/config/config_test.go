package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"kvedit/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "kvedit")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Collection.Name != "example_collection" {
		t.Fatalf("unexpected collection: %q", cfg.Collection.Name)
	}
	if cfg.Upload.Mode != config.UploadModeReplace {
		t.Fatalf("expected replace mode by default, got %q", cfg.Upload.Mode)
	}
	if cfg.Upload.BatchSize != 1000 {
		t.Fatalf("unexpected batch size: %d", cfg.Upload.BatchSize)
	}
	if cfg.Upload.MaxFileBytes != 1<<30 {
		t.Fatalf("unexpected file size limit: %d", cfg.Upload.MaxFileBytes)
	}
	if cfg.Dashboard.PageSize != 10 {
		t.Fatalf("unexpected page size: %d", cfg.Dashboard.PageSize)
	}
	if cfg.BackupEnabled() {
		t.Fatal("expected backups disabled without a lookup")
	}
	if len(cfg.Collection.OmitColumns) != 1 || cfg.Collection.OmitColumns[0] != "_user" {
		t.Fatalf("unexpected omit columns: %v", cfg.Collection.OmitColumns)
	}
}

func TestLoadReadsFileAndEnvironmentFallbacks(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("KVEDIT_SPLUNK_TOKEN", "env-token")

	path := filepath.Join(tempHome, "custom.toml")
	contents := map[string]any{
		"splunk": map[string]any{
			"url": "https://splunk.example.com:8089/",
			"app": "kv_editor",
		},
		"collection": map[string]any{
			"name":   "football",
			"lookup": "football_lookup",
			"fields": []string{"Score", " Title ", "Score", ""},
		},
		"upload": map[string]any{
			"mode":       "INCREMENTAL",
			"key_in_csv": true,
		},
		"paths": map[string]any{
			"state_dir": "~/state",
		},
		"dashboard": map[string]any{
			"allowed_origins": []string{" https://splunk.example.com:8000/ ", ""},
		},
	}
	data, err := toml.Marshal(contents)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected file to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Splunk.URL != "https://splunk.example.com:8089" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Splunk.URL)
	}
	if cfg.Splunk.Token != "env-token" {
		t.Fatalf("expected token from environment, got %q", cfg.Splunk.Token)
	}
	if cfg.Splunk.Owner != "nobody" {
		t.Fatalf("expected default owner, got %q", cfg.Splunk.Owner)
	}
	if cfg.Upload.Mode != config.UploadModeIncremental {
		t.Fatalf("expected normalized incremental mode, got %q", cfg.Upload.Mode)
	}
	if !cfg.Upload.KeyInCSV {
		t.Fatal("expected key_in_csv to be true")
	}
	if got := strings.Join(cfg.Collection.Fields, ","); got != "Score,Title" {
		t.Fatalf("unexpected fields: %q", got)
	}
	if got := strings.Join(cfg.Dashboard.AllowedOrigins, ","); got != "https://splunk.example.com:8000" {
		t.Fatalf("unexpected allowed origins: %q", got)
	}
	if !cfg.BackupEnabled() {
		t.Fatal("expected backups enabled with a lookup")
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.HistoryPath() != filepath.Join(tempHome, "state", "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.HistoryPath())
	}
	if cfg.LockPath("football") != filepath.Join(tempHome, "state", "locks", "football.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath("football"))
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "unknown upload mode",
			mutate: func(c *config.Config) { c.Upload.Mode = "merge" },
			want:   "upload.mode",
		},
		{
			name:   "oversized batch",
			mutate: func(c *config.Config) { c.Upload.BatchSize = 5000 },
			want:   "upload.batch_size",
		},
		{
			name:   "collection with slash",
			mutate: func(c *config.Config) { c.Collection.Name = "a/b" },
			want:   "collection.name",
		},
		{
			name:   "lookup with pipe",
			mutate: func(c *config.Config) { c.Collection.Lookup = "x | delete" },
			want:   "collection.lookup",
		},
		{
			name:   "ftp url",
			mutate: func(c *config.Config) { c.Splunk.URL = "ftp://example.com" },
			want:   "splunk.url",
		},
		{
			name:   "origin with path",
			mutate: func(c *config.Config) { c.Dashboard.AllowedOrigins = []string{"https://splunk.example.com/en-US"} },
			want:   "dashboard.allowed_origins",
		},
		{
			name:   "username without password",
			mutate: func(c *config.Config) { c.Splunk.Username = "admin" },
			want:   "splunk.password",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	target := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Collection.Name != "example_collection" {
		t.Fatalf("unexpected collection in sample: %q", cfg.Collection.Name)
	}
}
