package config

const (
	defaultSplunkURL            = "https://localhost:8089"
	defaultSplunkApp            = "search"
	defaultSplunkOwner          = "nobody"
	defaultSplunkTimeoutSeconds = 60
	defaultCollectionName       = "example_collection"
	defaultUploadMode           = UploadModeReplace
	defaultBatchSize            = 1000
	defaultMaxFileBytes         = 1 << 30
	defaultStateDir             = "~/.local/share/kvedit"
	defaultLogDir               = "~/.local/share/kvedit/logs"
	defaultSnapshotDir          = "~/.local/share/kvedit/snapshots"
	defaultSnapshotKeep         = 10
	defaultSnapshotMinFreeMB    = 64
	defaultAPIBind              = "127.0.0.1:7490"
	defaultVisualizationID      = "viz_edit_table"
	defaultPageSize             = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Upload modes.
const (
	UploadModeReplace     = "replace"
	UploadModeIncremental = "incremental"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Splunk: Splunk{
			URL:            defaultSplunkURL,
			App:            defaultSplunkApp,
			Owner:          defaultSplunkOwner,
			TimeoutSeconds: defaultSplunkTimeoutSeconds,
		},
		Collection: Collection{
			Name:        defaultCollectionName,
			OmitColumns: []string{"_user"},
		},
		Upload: Upload{
			Mode:         defaultUploadMode,
			BatchSize:    defaultBatchSize,
			MaxFileBytes: defaultMaxFileBytes,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Dashboard: Dashboard{
			VisualizationID: defaultVisualizationID,
			PageSize:        defaultPageSize,
		},
		Snapshot: Snapshot{
			Dir:       defaultSnapshotDir,
			Keep:      defaultSnapshotKeep,
			MinFreeMB: defaultSnapshotMinFreeMB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
