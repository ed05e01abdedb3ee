package api

import (
	"time"

	"kvedit/internal/dashboard"
	"kvedit/internal/history"
	"kvedit/internal/kvstore"
	"kvedit/internal/snapshot"
	"kvedit/internal/upload"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrorResponse is returned for failed requests. Banner is set when the
// failure has a user-facing message.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Banner *dashboard.Banner `json:"banner,omitempty"`
}

// Status describes the server and the collection it edits.
type Status struct {
	Collection       string `json:"collection"`
	Lookup           string `json:"lookup,omitempty"`
	BackupEnabled    bool   `json:"backupEnabled"`
	UploadMode       string `json:"uploadMode"`
	KeyInCSV         bool   `json:"keyInCsv"`
	VisualizationID  string `json:"visualizationId"`
	PageSize         int    `json:"pageSize"`
	SnapshotsEnabled bool   `json:"snapshotsEnabled"`
	Subscribers      int    `json:"subscribers"`
	HistoryPath      string `json:"historyPath,omitempty"`
}

// TablePage is one page of the table view. Loading is set while no
// metadata can be determined.
type TablePage struct {
	Loading    bool             `json:"loading"`
	DataFields []string         `json:"dataFields"`
	TotalItems int              `json:"totalItems"`
	Offset     int              `json:"offset"`
	Count      int              `json:"count"`
	Rows       []kvstore.Record `json:"rows"`
}

// CellClick is the payload the table emits when a cell is clicked.
type CellClick map[string]any

// RowResponse wraps one record.
type RowResponse struct {
	Row kvstore.Record `json:"row"`
}

// RowEditRequest carries the edited form values of a row.
type RowEditRequest struct {
	Edits map[string]string `json:"edits"`
}

// RunResponse reports a finished write run.
type RunResponse struct {
	RunID         string           `json:"runId"`
	Operation     string           `json:"operation"`
	Mode          string           `json:"mode,omitempty"`
	Outcome       string           `json:"outcome"`
	Removed       int              `json:"removed"`
	Added         int              `json:"added"`
	Updated       int              `json:"updated"`
	BackupCreated bool             `json:"backupCreated"`
	Restored      bool             `json:"restored"`
	Snapshot      string           `json:"snapshot,omitempty"`
	Message       string           `json:"message"`
	Banner        dashboard.Banner `json:"banner"`
}

// FromResult converts an upload result.
func FromResult(res upload.Result) RunResponse {
	return RunResponse{
		RunID:         res.RunID,
		Operation:     res.Operation,
		Mode:          res.Mode,
		Outcome:       string(res.Outcome),
		Removed:       res.Removed,
		Added:         res.Added,
		Updated:       res.Updated,
		BackupCreated: res.BackupCreated,
		Restored:      res.Restored,
		Snapshot:      res.Snapshot,
		Message:       res.Message,
		Banner:        res.Banner,
	}
}

// HistoryEntry is a journaled run.
type HistoryEntry struct {
	RunID      string `json:"runId"`
	Operation  string `json:"operation"`
	Collection string `json:"collection"`
	Mode       string `json:"mode,omitempty"`
	Outcome    string `json:"outcome"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Removed    int    `json:"removed"`
	Added      int    `json:"added"`
	Updated    int    `json:"updated"`
	Restored   bool   `json:"restored"`
	Snapshot   string `json:"snapshot,omitempty"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt"`
	DurationMs int64  `json:"durationMs"`
}

// HistoryResponse wraps journal entries, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// FromHistoryEntries converts journal entries.
func FromHistoryEntries(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			RunID:      e.RunID,
			Operation:  e.Operation,
			Collection: e.Collection,
			Mode:       e.Mode,
			Outcome:    string(e.Outcome),
			Message:    e.Message,
			Error:      e.Error,
			Removed:    e.Removed,
			Added:      e.Added,
			Updated:    e.Updated,
			Restored:   e.Restored,
			Snapshot:   e.Snapshot,
			StartedAt:  formatTime(e.StartedAt),
			FinishedAt: formatTime(e.FinishedAt),
			DurationMs: e.Duration().Milliseconds(),
		})
	}
	return out
}

// SnapshotInfo describes a local snapshot.
type SnapshotInfo struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
	CreatedAt  string `json:"createdAt"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// SnapshotListResponse wraps snapshots, newest first.
type SnapshotListResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

// FromSnapshots converts snapshot descriptions.
func FromSnapshots(infos []snapshot.Info) []SnapshotInfo {
	out := make([]SnapshotInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, SnapshotInfo{
			Name:       info.Name,
			Collection: info.Collection,
			CreatedAt:  formatTime(info.CreatedAt),
			SizeBytes:  info.SizeBytes,
		})
	}
	return out
}

// RefreshResponse reports how many dashboards were connected when the
// refresh was sent.
type RefreshResponse struct {
	ID        string `json:"id"`
	Delivered int    `json:"delivered"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
