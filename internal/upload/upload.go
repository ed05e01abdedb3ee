package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"kvedit/internal/config"
	"kvedit/internal/history"
	"kvedit/internal/kvstore"
	"kvedit/internal/logging"
	"kvedit/internal/records"
	"kvedit/internal/services"
	"kvedit/internal/table"
)

// Request is one CSV upload.
type Request struct {
	// Content is the raw file. Nil means no file was provided.
	Content  []byte
	FileName string
	Mode     string
	KeyInCSV bool
}

// NewRequest builds a request using the configured upload defaults.
func (s *Service) NewRequest(content []byte) Request {
	return Request{
		Content:  content,
		Mode:     s.cfg.Upload.Mode,
		KeyInCSV: s.cfg.Upload.KeyInCSV,
	}
}

// Upload parses req.Content, checks it against the table metadata and
// writes it to the collection in the requested mode.
func (s *Service) Upload(ctx context.Context, req Request) (Result, error) {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = s.cfg.Upload.Mode
	}
	r := s.begin(ctx, history.OperationUpload, mode, MsgInsertFailed)
	err := r.exec(func(ctx context.Context) error {
		switch mode {
		case config.UploadModeReplace:
			return s.replace(ctx, r, req)
		case config.UploadModeIncremental:
			return s.incremental(ctx, r, req)
		default:
			return fail(MsgInsertFailed, services.Wrap(services.ErrValidation, "upload", "mode",
				fmt.Sprintf("unsupported upload mode %q", mode), nil))
		}
	})
	return r.finish(err)
}

// prepare parses and checks the uploaded CSV. It returns the records to
// write projected onto the table's data fields.
func (s *Service) prepare(ctx context.Context, r *run, req Request) ([]kvstore.Record, table.Metadata, error) {
	if req.Content == nil {
		return nil, table.Metadata{}, fail(MsgNoData, services.Wrap(services.ErrValidation, "upload", "read", "no file content", nil))
	}
	parsed, err := records.ParseCSV(bytes.NewReader(req.Content))
	if err != nil {
		return nil, table.Metadata{}, fail(MsgEmptyCSV, services.Wrap(services.ErrValidation, "upload", "parse", "parse csv", err))
	}
	if len(parsed) == 0 {
		return nil, table.Metadata{}, fail(MsgEmptyCSV, services.Wrap(services.ErrValidation, "upload", "parse", "csv has no records", nil))
	}

	meta, err := s.Metadata(ctx)
	switch {
	case errors.Is(err, table.ErrNoMetadata):
		// Nothing describes the collection yet; the file defines its columns.
		meta = table.Metadata{DataFields: records.Columns(parsed, s.cfg.Collection.OmitColumns)}
		if meta.DataFields[0] != kvstore.KeyField {
			meta.DataFields = append([]string{kvstore.KeyField}, meta.DataFields...)
		}
	case err != nil:
		return nil, table.Metadata{}, fail(MsgFetchFailed, services.Wrap(services.ErrExternal, "upload", "metadata", "describe table", err))
	}

	required := meta.DataFields
	if !req.KeyInCSV {
		required = records.Without(meta.DataFields, kvstore.KeyField)
	}
	if !records.AllHaveFields(parsed, required) {
		missing := records.MissingFields(parsed, required)
		r.logger.Warn("csv columns do not match table",
			logging.Any("missing_fields", missing),
			logging.Any("data_fields", meta.DataFields),
		)
		return nil, meta, fail(MsgFieldMismatch, services.Wrap(services.ErrValidation, "upload", "check fields",
			"missing "+strings.Join(missing, ", "), nil))
	}

	rows := records.Project(parsed, meta.DataFields)
	if s.model != nil {
		typed, err := s.model.CoerceRecords(rows)
		if err != nil {
			return nil, meta, fail(MsgInvalidValues, services.Wrap(services.ErrValidation, "upload", "coerce", "invalid field values", err))
		}
		rows = typed
	}
	for _, row := range rows {
		if key, ok := row[kvstore.KeyField]; ok && key == "" {
			delete(row, kvstore.KeyField)
		}
	}
	return rows, meta, nil
}

func (s *Service) replace(ctx context.Context, r *run, req Request) error {
	rows, meta, err := s.prepare(ctx, r, req)
	if err != nil {
		return err
	}
	if s.snapshots != nil {
		current, err := s.listAll(ctx)
		if err != nil {
			return err
		}
		if err := s.snapshot(r, current); err != nil {
			return err
		}
	}

	if err := s.withBackup(ctx, r, func(ctx context.Context) error {
		return s.replaceRows(ctx, r, rows)
	}); err != nil {
		return err
	}
	r.entry.Removed = meta.TotalItems
	r.succeed(fmt.Sprintf(replaceSuccessFormat, meta.TotalItems, len(rows)))
	return nil
}

// replaceRows deletes the collection and inserts rows in batches.
func (s *Service) replaceRows(ctx context.Context, r *run, rows []kvstore.Record) error {
	if err := s.store.DeleteAll(ctx, s.collection); err != nil {
		return fail(MsgDeleteFailed, services.Wrap(services.ErrExternal, "upload", "delete all", "clear collection", err))
	}
	keys, err := s.store.BatchSaveAll(ctx, s.collection, rows, s.cfg.Upload.BatchSize)
	r.entry.Added = len(keys)
	if err != nil {
		return fail(MsgInsertFailed, services.Wrap(services.ErrExternal, "upload", "batch save", "insert records", err))
	}
	return nil
}

func (s *Service) incremental(ctx context.Context, r *run, req Request) error {
	rows, _, err := s.prepare(ctx, r, req)
	if err != nil {
		return err
	}
	existing, err := s.listAll(ctx)
	if err != nil {
		return err
	}
	updates, inserts := splitByKey(rows, existing)
	if err := s.snapshot(r, existing); err != nil {
		return err
	}

	if err := s.withBackup(ctx, r, func(ctx context.Context) error {
		for _, row := range updates {
			key := fmt.Sprint(row[kvstore.KeyField])
			if _, err := s.store.UpdateEntry(ctx, s.collection, key, row); err != nil {
				return fail(MsgUpdateFailed, services.Wrap(services.ErrExternal, "upload", "update entry", "update "+key, err))
			}
			r.entry.Updated++
		}
		switch len(inserts) {
		case 0:
			return nil
		case 1:
			if _, err := s.store.InsertEntry(ctx, s.collection, inserts[0]); err != nil {
				return fail(MsgInsertFailed, services.Wrap(services.ErrExternal, "upload", "insert entry", "insert record", err))
			}
			r.entry.Added = 1
			return nil
		}
		keys, err := s.store.BatchSaveAll(ctx, s.collection, inserts, s.cfg.Upload.BatchSize)
		r.entry.Added = len(keys)
		if err != nil {
			return fail(MsgInsertFailed, services.Wrap(services.ErrExternal, "upload", "batch save", "insert records", err))
		}
		return nil
	}); err != nil {
		return err
	}
	r.succeed(fmt.Sprintf(incrementalSuccessFormat, len(updates), len(inserts)))
	return nil
}

// splitByKey separates rows whose _key already exists from new rows.
func splitByKey(rows, existing []kvstore.Record) (updates, inserts []kvstore.Record) {
	keys := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		if key, ok := row[kvstore.KeyField]; ok {
			keys[fmt.Sprint(key)] = struct{}{}
		}
	}
	for _, row := range rows {
		key, ok := row[kvstore.KeyField]
		if ok {
			if _, found := keys[fmt.Sprint(key)]; found {
				updates = append(updates, row)
				continue
			}
		}
		inserts = append(inserts, row)
	}
	return updates, inserts
}
