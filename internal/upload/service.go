package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"kvedit/internal/config"
	"kvedit/internal/dashboard"
	"kvedit/internal/history"
	"kvedit/internal/kvstore"
	"kvedit/internal/logging"
	"kvedit/internal/rowmodel"
	"kvedit/internal/services"
	"kvedit/internal/snapshot"
	"kvedit/internal/table"
)

// Store is the subset of the KV Store client the workflows use.
type Store interface {
	table.Source
	GetEntry(ctx context.Context, collection, key string) (kvstore.Record, error)
	UpdateEntry(ctx context.Context, collection, key string, record kvstore.Record) (string, error)
	InsertEntry(ctx context.Context, collection string, record kvstore.Record) (string, error)
	DeleteAll(ctx context.Context, collection string) error
	BatchSaveAll(ctx context.Context, collection string, rows []kvstore.Record, batchSize int) ([]string, error)
	Backup(ctx context.Context, lookup string) error
	Restore(ctx context.Context, lookup string) error
}

// Notifier receives banners as runs progress.
type Notifier interface {
	Notify(dashboard.Banner)
}

// Options configures a Service. Model, Bridge, Notifier, History and
// Snapshots are optional.
type Options struct {
	Config    *config.Config
	Store     Store
	Model     *rowmodel.Model
	Bridge    *dashboard.Bridge
	Notifier  Notifier
	History   *history.Store
	Snapshots *snapshot.Manager
	Logger    *slog.Logger
}

// Service runs the write workflows against one collection.
type Service struct {
	cfg        *config.Config
	store      Store
	model      *rowmodel.Model
	bridge     *dashboard.Bridge
	notifier   Notifier
	history    *history.Store
	snapshots  *snapshot.Manager
	logger     *slog.Logger
	collection string
	lookup     string
	newRunID   func() string
	now        func() time.Time
}

// New validates options and builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("upload: config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("upload: store is required")
	}
	return &Service{
		cfg:        opts.Config,
		store:      opts.Store,
		model:      opts.Model,
		bridge:     opts.Bridge,
		notifier:   opts.Notifier,
		history:    opts.History,
		snapshots:  opts.Snapshots,
		logger:     logging.NewComponentLogger(opts.Logger, "upload"),
		collection: opts.Config.Collection.Name,
		lookup:     opts.Config.Collection.Lookup,
		newRunID:   uuid.NewString,
		now:        time.Now,
	}, nil
}

// Collection returns the collection the service writes to.
func (s *Service) Collection() string {
	return s.collection
}

// Result summarizes a finished run.
type Result struct {
	RunID         string           `json:"run_id"`
	Operation     string           `json:"operation"`
	Mode          string           `json:"mode,omitempty"`
	Outcome       services.Outcome `json:"outcome"`
	Removed       int              `json:"removed"`
	Added         int              `json:"added"`
	Updated       int              `json:"updated"`
	BackupCreated bool             `json:"backup_created"`
	Restored      bool             `json:"restored"`
	Snapshot      string           `json:"snapshot,omitempty"`
	Message       string           `json:"message"`
	Banner        dashboard.Banner `json:"banner"`
}

// run tracks one write operation from lock to journal entry.
type run struct {
	svc      *Service
	ctx      context.Context
	logger   *slog.Logger
	entry    history.Entry
	fallback string
	dismiss  time.Duration
	lock     *flock.Flock
}

func (s *Service) begin(ctx context.Context, operation, mode, fallback string) *run {
	id := s.newRunID()
	ctx = services.WithRunID(ctx, id)
	ctx = services.WithCollection(ctx, s.collection)
	ctx = services.WithOperation(ctx, operation)
	return &run{
		svc:      s,
		ctx:      ctx,
		logger:   logging.WithContext(ctx, s.logger),
		fallback: fallback,
		entry: history.Entry{
			RunID:      id,
			Operation:  operation,
			Collection: s.collection,
			Mode:       mode,
			StartedAt:  s.now().UTC(),
		},
	}
}

// exec runs fn while holding the collection lock.
func (r *run) exec(fn func(ctx context.Context) error) error {
	lockPath := r.svc.cfg.LockPath(r.svc.collection)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fail(r.fallback, fmt.Errorf("create lock directory: %w", err))
	}
	r.lock = flock.New(lockPath)
	ok, err := r.lock.TryLock()
	if err != nil {
		return fail(r.fallback, fmt.Errorf("acquire collection lock: %w", err))
	}
	if !ok {
		return fail(MsgUploadBusy, services.Wrap(services.ErrConflict, "upload", "lock", "collection is locked by another run", nil))
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("release collection lock failed", logging.Error(err))
		}
	}()
	return fn(r.ctx)
}

// succeed sets the message shown when the run completes without error.
func (r *run) succeed(message string) {
	r.entry.Message = message
}

// finish journals the run, publishes its banner, refreshes the
// visualization and returns the result.
func (r *run) finish(err error) (Result, error) {
	s := r.svc
	r.entry.FinishedAt = s.now().UTC()

	var banner dashboard.Banner
	if err == nil {
		r.entry.Outcome = services.OutcomeSucceeded
		banner = dashboard.Success(r.entry.Message)
		if r.dismiss > 0 {
			banner = banner.WithDismiss(r.dismiss)
		}
		r.logger.Info("run succeeded",
			logging.String("message", r.entry.Message),
			logging.Int("removed", r.entry.Removed),
			logging.Int("added", r.entry.Added),
			logging.Int("updated", r.entry.Updated),
			logging.Duration("elapsed", r.entry.Duration()),
		)
	} else {
		r.entry.Message = MessageOf(err, r.fallback)
		r.entry.Error = err.Error()
		r.entry.Outcome = services.FailureOutcome(err)
		if r.entry.Restored && r.entry.Outcome == services.OutcomeFailed {
			r.entry.Outcome = services.OutcomeRestored
		}
		banner = dashboard.Error(r.entry.Message)
		attrs := []logging.Attr{
			logging.String("message", r.entry.Message),
			logging.String("outcome", string(r.entry.Outcome)),
			logging.Error(err),
		}
		if r.entry.Outcome == services.OutcomeRejected {
			r.logger.Warn("run rejected", logging.Args(attrs...)...)
		} else {
			logging.ErrorWithContext(r.logger, "run failed", "upload_run_failed", attrs...)
		}
	}

	if s.history != nil {
		entry := r.entry
		if herr := s.history.Record(context.WithoutCancel(r.ctx), &entry); herr != nil {
			r.logger.Warn("record history failed", logging.Error(herr))
		}
	}
	s.notify(banner)
	s.refresh(r.ctx, r.logger)

	result := Result{
		RunID:         r.entry.RunID,
		Operation:     r.entry.Operation,
		Mode:          r.entry.Mode,
		Outcome:       r.entry.Outcome,
		Removed:       r.entry.Removed,
		Added:         r.entry.Added,
		Updated:       r.entry.Updated,
		BackupCreated: r.entry.BackupCreated,
		Restored:      r.entry.Restored,
		Snapshot:      r.entry.Snapshot,
		Message:       r.entry.Message,
		Banner:        banner,
	}
	return result, err
}

func (s *Service) notify(b dashboard.Banner) {
	if s.notifier != nil {
		s.notifier.Notify(b)
	}
}

// refresh asks the dashboard to reload the table.
func (s *Service) refresh(ctx context.Context, logger *slog.Logger) {
	if s.bridge == nil {
		return
	}
	id := s.cfg.Dashboard.VisualizationID
	err := s.bridge.Refresh(context.WithoutCancel(ctx), id)
	switch {
	case err == nil:
		logger.Debug("visualization refreshed", logging.String("visualization_id", id))
	case errors.Is(err, dashboard.ErrNoAPI):
		logger.Debug("no dashboard api shared, skipping refresh")
	default:
		logging.WarnWithContext(logger, "visualization refresh failed", "refresh_failed",
			logging.String("visualization_id", id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "table shows stale rows until reloaded"),
		)
	}
}

// snapshot captures rows before a destructive change. It is a no-op when
// snapshots are disabled.
func (s *Service) snapshot(r *run, rows []kvstore.Record) error {
	if s.snapshots == nil {
		return nil
	}
	info, err := s.snapshots.Capture(r.ctx, s.collection, rows)
	if err != nil {
		return fail(MsgBackupFailed, services.Wrap(services.ErrExternal, "upload", "snapshot", "capture snapshot", err))
	}
	r.entry.Snapshot = info.Path
	return nil
}

// listAll fetches every entry of the collection.
func (s *Service) listAll(ctx context.Context) ([]kvstore.Record, error) {
	rows, err := s.store.ListEntries(ctx, s.collection, kvstore.ListOptions{})
	if err != nil {
		return nil, fail(MsgFetchFailed, services.Wrap(services.ErrExternal, "upload", "list entries", "fetch collection entries", err))
	}
	return rows, nil
}

// Metadata describes the table the uploads are checked against.
func (s *Service) Metadata(ctx context.Context) (table.Metadata, error) {
	return table.Describe(ctx, s.store, s.collection, s.cfg.Collection.Fields)
}
