package upload

import (
	"context"
	"time"

	"kvedit/internal/dashboard"
	"kvedit/internal/history"
	"kvedit/internal/kvstore"
	"kvedit/internal/services"
)

// rowUpdatedDismiss is how long the row update success banner stays up.
const rowUpdatedDismiss = time.Second

// EditRow applies edits to the row stored under key and saves it.
func (s *Service) EditRow(ctx context.Context, key string, edits map[string]string) (Result, error) {
	r := s.begin(ctx, history.OperationEdit, "", MsgRowUpdateFailed)
	r.dismiss = rowUpdatedDismiss
	s.notify(dashboard.Info(MsgUpdating))

	err := r.exec(func(ctx context.Context) error {
		if key == "" {
			return fail(MsgRowUpdateFailed, services.Wrap(services.ErrValidation, "edit", "key", "row key is required", nil))
		}
		current, err := s.store.GetEntry(ctx, s.collection, key)
		if err != nil {
			marker := services.ErrExternal
			if kvstore.IsNotFound(err) {
				marker = services.ErrNotFound
			}
			return fail(MsgRowUpdateFailed, services.Wrap(marker, "edit", "get entry", "load "+key, err))
		}
		updated, err := s.model.Apply(current, edits)
		if err != nil {
			return fail(MsgRowUpdateFailed, services.Wrap(services.ErrValidation, "edit", "apply", "apply edits", err))
		}
		delete(updated, kvstore.UserField)
		if _, err := s.store.UpdateEntry(ctx, s.collection, key, updated); err != nil {
			return fail(MsgRowUpdateFailed, services.Wrap(services.ErrExternal, "edit", "update entry", "save "+key, err))
		}
		r.entry.Updated = 1
		r.succeed(MsgRowUpdated)
		return nil
	})
	return r.finish(err)
}
