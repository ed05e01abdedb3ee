package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Splunk contains connection settings for the splunkd management endpoint.
type Splunk struct {
	URL                string `toml:"url"`
	App                string `toml:"app"`
	Owner              string `toml:"owner"`
	Token              string `toml:"token"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	FormKey            string `toml:"form_key"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// Collection identifies the KV Store collection the table edits.
type Collection struct {
	Name string `toml:"name"`
	// Lookup is the lookup definition backed by the collection. Backups run
	// through search jobs against it; leave empty to disable backups.
	Lookup      string   `toml:"lookup"`
	Fields      []string `toml:"fields"`
	Model       string   `toml:"model"`
	OmitColumns []string `toml:"omit_columns"`
}

// Upload contains CSV upload settings.
type Upload struct {
	Mode         string `toml:"mode"`
	KeyInCSV     bool   `toml:"key_in_csv"`
	BatchSize    int    `toml:"batch_size"`
	MaxFileBytes int64  `toml:"max_file_bytes"`
}

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Dashboard contains settings for the browser visualization.
type Dashboard struct {
	VisualizationID string `toml:"visualization_id"`
	PageSize        int    `toml:"page_size"`
	// AllowedOrigins lists browser origins, such as the Splunk Web URL, that
	// may call the API and open the event stream. "*" allows any origin.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Snapshot contains configuration for local pre-change snapshots.
type Snapshot struct {
	Enabled   bool   `toml:"enabled"`
	Dir       string `toml:"dir"`
	Keep      int    `toml:"keep"`
	MinFreeMB int    `toml:"min_free_mb"`

	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Prefix    string `toml:"s3_prefix"`
	S3PathStyle bool   `toml:"s3_path_style"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for kvedit.
//
// Configuration sections by subsystem:
//   - Splunk: management endpoint, app namespace and credentials
//   - Collection: KV Store collection, backing lookup and field layout
//   - Upload: CSV upload mode and batching
//   - Paths: state/log directories and API bind address
//   - Dashboard: visualization id and page size
//   - Snapshot: local snapshots and optional S3 archive
//   - Logging: log format and level
type Config struct {
	Splunk     Splunk     `toml:"splunk"`
	Collection Collection `toml:"collection"`
	Upload     Upload     `toml:"upload"`
	Paths      Paths      `toml:"paths"`
	Dashboard  Dashboard  `toml:"dashboard"`
	Snapshot   Snapshot   `toml:"snapshot"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/kvedit/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kvedit.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Snapshot.Enabled && strings.TrimSpace(c.Snapshot.Dir) != "" {
		if err := os.MkdirAll(c.Snapshot.Dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory %q: %w", c.Snapshot.Dir, err)
		}
	}
	return nil
}

// HistoryPath returns the location of the operation journal.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the lock file guarding writes to the named collection.
func (c *Config) LockPath(collection string) string {
	return filepath.Join(c.Paths.StateDir, "locks", collection+".lock")
}

// SplunkTimeout returns the per-request timeout for splunkd calls.
func (c *Config) SplunkTimeout() time.Duration {
	return time.Duration(c.Splunk.TimeoutSeconds) * time.Second
}

// BackupEnabled reports whether uploads back the collection up first.
func (c *Config) BackupEnabled() bool {
	return strings.TrimSpace(c.Collection.Lookup) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
