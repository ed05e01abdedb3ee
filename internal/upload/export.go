package upload

import (
	"context"

	"kvedit/internal/logging"
	"kvedit/internal/records"
	"kvedit/internal/services"
)

// Download is a rendered CSV export.
type Download struct {
	FileName string
	Data     []byte
	Rows     int
}

// Export renders every entry of the collection as CSV.
func (s *Service) Export(ctx context.Context) (Download, error) {
	ctx = services.WithCollection(ctx, s.collection)
	ctx = services.WithOperation(ctx, "export")
	logger := logging.WithContext(ctx, s.logger)

	rows, err := s.listAll(ctx)
	if err != nil {
		logger.Warn("export fetch failed", logging.Error(err))
		return Download{}, fail(MsgDownloadFailed, err)
	}
	if len(rows) == 0 {
		return Download{}, fail(MsgNoDownload, services.Wrap(services.ErrNotFound, "export", "list entries", "collection is empty", nil))
	}
	data, err := records.FormatCSV(rows, nil, s.cfg.Collection.OmitColumns)
	if err != nil {
		logger.Warn("export format failed", logging.Error(err))
		return Download{}, fail(MsgDownloadFailed, err)
	}
	logger.Info("collection exported", logging.Int("rows", len(rows)))
	return Download{FileName: s.collection + ".csv", Data: data, Rows: len(rows)}, nil
}
