package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kvedit/internal/history"
	"kvedit/internal/logging"
	"kvedit/internal/services"
	"kvedit/internal/snapshot"
)

// withBackup backs the collection up through its lookup, runs change and
// restores the backup when change fails. Without a lookup the change runs
// unprotected.
func (s *Service) withBackup(ctx context.Context, r *run, change func(context.Context) error) error {
	lookup := strings.TrimSpace(s.lookup)
	if lookup == "" {
		return change(ctx)
	}

	if err := s.store.Backup(ctx, lookup); err != nil {
		return fail(MsgBackupFailed, services.Wrap(services.ErrExternal, "upload", "backup", "back up "+lookup, err))
	}
	r.entry.BackupCreated = true
	r.logger.Debug("backup created", logging.String("lookup", lookup))

	changeErr := change(ctx)
	if changeErr == nil {
		return nil
	}

	r.logger.Warn("change failed, restoring backup", logging.String("lookup", lookup), logging.Error(changeErr))
	if err := s.store.Restore(context.WithoutCancel(ctx), lookup); err != nil {
		logging.ErrorWithContext(r.logger, "restore from backup failed", "restore_failed",
			logging.String("lookup", lookup),
			logging.Error(err),
			logging.String(logging.FieldImpact, "collection may be missing data"),
		)
		return fail(MsgRestoreFailed, errors.Join(changeErr, services.Wrap(services.ErrExternal, "upload", "restore", "restore "+lookup, err)))
	}
	r.entry.Restored = true
	return changeErr
}

// Backup copies the collection's lookup into its backup CSV.
func (s *Service) Backup(ctx context.Context) (Result, error) {
	r := s.begin(ctx, history.OperationBackup, "", MsgBackupFailed)
	err := r.exec(func(ctx context.Context) error {
		lookup := strings.TrimSpace(s.lookup)
		if lookup == "" {
			return fail(MsgNoLookup, services.Wrap(services.ErrConfiguration, "backup", "lookup", "collection.lookup is not set", nil))
		}
		if err := s.store.Backup(ctx, lookup); err != nil {
			return fail(MsgBackupFailed, services.Wrap(services.ErrExternal, "backup", "search", "back up "+lookup, err))
		}
		r.entry.BackupCreated = true
		r.succeed(MsgBackupCreated)
		return nil
	})
	return r.finish(err)
}

// Restore replaces the collection with its backup CSV.
func (s *Service) Restore(ctx context.Context) (Result, error) {
	r := s.begin(ctx, history.OperationRestore, "backup", MsgRestoreFailed)
	err := r.exec(func(ctx context.Context) error {
		lookup := strings.TrimSpace(s.lookup)
		if lookup == "" {
			return fail(MsgNoLookup, services.Wrap(services.ErrConfiguration, "restore", "lookup", "collection.lookup is not set", nil))
		}
		if err := s.store.Restore(ctx, lookup); err != nil {
			return fail(MsgRestoreFailed, services.Wrap(services.ErrExternal, "restore", "search", "restore "+lookup, err))
		}
		r.entry.Restored = true
		r.succeed(MsgBackupRestored)
		return nil
	})
	return r.finish(err)
}

// RestoreSnapshot replaces the collection with the rows of a local snapshot.
// Snapshot values are CSV text, so they pass through the row model like an
// upload does. The replacement runs under the same backup protection.
func (s *Service) RestoreSnapshot(ctx context.Context, path string) (Result, error) {
	r := s.begin(ctx, history.OperationRestore, "snapshot", MsgRestoreFailed)
	err := r.exec(func(ctx context.Context) error {
		rows, err := snapshot.Read(path)
		if err != nil {
			return fail(MsgSnapshotRead, services.Wrap(services.ErrValidation, "restore", "read snapshot", path, err))
		}
		rows, err = s.model.CoerceRecords(rows)
		if err != nil {
			return fail(MsgInvalidValues, services.Wrap(services.ErrValidation, "restore", "coerce", "invalid field values", err))
		}
		total, err := s.store.CountEntries(ctx, s.collection)
		if err != nil {
			return fail(MsgFetchFailed, services.Wrap(services.ErrExternal, "restore", "count", "count entries", err))
		}
		r.entry.Snapshot = path
		if err := s.withBackup(ctx, r, func(ctx context.Context) error {
			return s.replaceRows(ctx, r, rows)
		}); err != nil {
			return err
		}
		r.entry.Removed = total
		r.succeed(fmt.Sprintf(snapshotRestoredFormat, total, len(rows)))
		return nil
	})
	return r.finish(err)
}
