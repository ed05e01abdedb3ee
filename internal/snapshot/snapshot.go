package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"golang.org/x/sys/unix"

	"kvedit/internal/config"
	"kvedit/internal/fileutil"
	"kvedit/internal/kvstore"
	"kvedit/internal/logging"
	"kvedit/internal/records"
)

const (
	// Extension is appended to every snapshot file name.
	Extension = ".csv.sz"

	timestampLayout = "20060102T150405.000000000Z"
	bytesPerMB      = 1024 * 1024
)

// ErrInsufficientSpace is returned when the snapshot directory's filesystem
// has less free space than configured.
var ErrInsufficientSpace = errors.New("insufficient free space for snapshot")

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (free uint64, err error)

// Archiver copies a finished snapshot somewhere off the machine.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) (string, error)
}

// Info describes one snapshot on disk.
type Info struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Collection string    `json:"collection"`
	CreatedAt  time.Time `json:"created_at"`
	SizeBytes  int64     `json:"size_bytes"`
	Rows       int       `json:"rows,omitempty"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
}

// Manager writes, lists and prunes snapshots.
type Manager struct {
	dir      string
	keep     int
	minFree  uint64
	logger   *slog.Logger
	statfs   statfsFunc
	archiver Archiver
	now      func() time.Time
}

// NewManager builds a manager when snapshots are enabled; it returns nil
// when they are disabled.
func NewManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil || !cfg.Snapshot.Enabled {
		return nil, nil
	}
	dir := strings.TrimSpace(cfg.Snapshot.Dir)
	if dir == "" {
		return nil, errors.New("snapshot: directory is required")
	}
	m := &Manager{
		dir:     dir,
		keep:    cfg.Snapshot.Keep,
		minFree: uint64(cfg.Snapshot.MinFreeMB) * bytesPerMB,
		logger:  logging.NewComponentLogger(logger, "snapshot"),
		statfs:  realStatfs,
		now:     time.Now,
	}
	if cfg.Snapshot.S3Bucket != "" {
		archiver, err := NewS3Archiver(ctx, S3Options{
			Bucket:       cfg.Snapshot.S3Bucket,
			Region:       cfg.Snapshot.S3Region,
			Endpoint:     cfg.Snapshot.S3Endpoint,
			Prefix:       cfg.Snapshot.S3Prefix,
			UsePathStyle: cfg.Snapshot.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		m.archiver = archiver
	}
	return m, nil
}

// SetArchiver replaces the archive destination.
func (m *Manager) SetArchiver(a Archiver) {
	if m != nil {
		m.archiver = a
	}
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string {
	if m == nil {
		return ""
	}
	return m.dir
}

// Capture writes rows as a new snapshot for collection, archives it when an
// archiver is configured and prunes older snapshots beyond the keep limit.
// Archive failures are logged and do not fail the capture.
func (m *Manager) Capture(ctx context.Context, collection string, rows []kvstore.Record) (Info, error) {
	if m == nil {
		return Info{}, errors.New("snapshot: manager is disabled")
	}
	if strings.TrimSpace(collection) == "" {
		return Info{}, errors.New("snapshot: collection is required")
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("snapshot: create directory: %w", err)
	}
	if err := m.checkSpace(); err != nil {
		return Info{}, err
	}

	data, err := Encode(rows)
	if err != nil {
		return Info{}, err
	}

	created := m.now().UTC()
	name := collection + "-" + created.Format(timestampLayout) + Extension
	path := filepath.Join(m.dir, name)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return Info{}, fmt.Errorf("snapshot: write: %w", err)
	}

	info := Info{
		Path:       path,
		Name:       name,
		Collection: collection,
		CreatedAt:  created,
		SizeBytes:  int64(len(data)),
		Rows:       len(rows),
	}
	if m.archiver != nil {
		uri, err := m.archiver.Archive(ctx, name, data)
		if err != nil {
			logging.WarnWithContext(m.logger, "snapshot archive failed", "snapshot_archive_failed",
				logging.String("snapshot", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "snapshot kept locally only"),
			)
		} else {
			info.ArchiveURI = uri
		}
	}

	if removed, err := m.Prune(collection); err != nil {
		m.logger.WarnContext(ctx, "snapshot prune failed", logging.Error(err))
	} else if removed > 0 {
		m.logger.DebugContext(ctx, "pruned snapshots", logging.Int("removed", removed))
	}
	m.logger.InfoContext(ctx, "snapshot written",
		logging.String("snapshot", path),
		logging.String(logging.FieldCollection, collection),
		logging.Int("rows", len(rows)),
	)
	return info, nil
}

func (m *Manager) checkSpace() error {
	if m.minFree == 0 || m.statfs == nil {
		return nil
	}
	free, err := m.statfs(m.dir)
	if err != nil {
		return fmt.Errorf("snapshot: stat filesystem: %w", err)
	}
	if free < m.minFree {
		return fmt.Errorf("%w: %d MB free, %d MB required", ErrInsufficientSpace, free/bytesPerMB, m.minFree/bytesPerMB)
	}
	return nil
}

// List returns snapshots for collection, newest first. An empty collection
// lists every snapshot.
func (m *Manager) List(collection string) ([]Info, error) {
	if m == nil {
		return nil, nil
	}
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read directory: %w", err)
	}
	var out []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := parseName(entry.Name())
		if !ok || (collection != "" && info.Collection != collection) {
			continue
		}
		info.Path = filepath.Join(m.dir, entry.Name())
		if stat, err := entry.Info(); err == nil {
			info.SizeBytes = stat.Size()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Prune removes the oldest snapshots of collection beyond the keep limit.
func (m *Manager) Prune(collection string) (int, error) {
	if m == nil || m.keep <= 0 {
		return 0, nil
	}
	infos, err := m.List(collection)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos[min(m.keep, len(infos)):] {
		if err := os.Remove(info.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("snapshot: remove %s: %w", info.Name, err)
		}
		removed++
	}
	return removed, nil
}

// Resolve maps a snapshot name to its path inside the snapshot directory.
// Paths that already exist are returned unchanged.
func (m *Manager) Resolve(name string) string {
	if _, err := os.Stat(name); err == nil || m == nil {
		return name
	}
	return filepath.Join(m.dir, filepath.Base(name))
}

// Encode renders rows as CSV and compresses the result.
func Encode(rows []kvstore.Record) ([]byte, error) {
	csvData, err := records.FormatCSV(rows, nil, records.DefaultOmitColumns)
	if err != nil {
		return nil, fmt.Errorf("snapshot: format csv: %w", err)
	}
	var buf bytes.Buffer
	writer := snappy.NewBufferedWriter(&buf)
	if _, err := writer.Write(csvData); err != nil {
		return nil, fmt.Errorf("snapshot: compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads a compressed snapshot stream back into records.
func Decode(r io.Reader) ([]kvstore.Record, error) {
	rows, err := records.ParseCSV(snappy.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return rows, nil
}

// Read loads the snapshot at path.
func Read(path string) ([]kvstore.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

func parseName(name string) (Info, bool) {
	if !strings.HasSuffix(name, Extension) {
		return Info{}, false
	}
	stem := strings.TrimSuffix(name, Extension)
	idx := strings.LastIndex(stem, "-")
	if idx <= 0 {
		return Info{}, false
	}
	created, err := time.Parse(timestampLayout, stem[idx+1:])
	if err != nil {
		return Info{}, false
	}
	return Info{Name: name, Collection: stem[:idx], CreatedAt: created}, true
}

func realStatfs(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
