package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"kvedit/internal/api"
	"kvedit/internal/history"
	"kvedit/internal/kvstore"
	"kvedit/internal/logging"
	"kvedit/internal/services"
	"kvedit/internal/table"
	"kvedit/internal/upload"
)

const maxJSONBody = 1 << 20

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := api.Status{
		Collection:       s.cfg.Collection.Name,
		Lookup:           s.cfg.Collection.Lookup,
		BackupEnabled:    s.cfg.BackupEnabled(),
		UploadMode:       s.cfg.Upload.Mode,
		KeyInCSV:         s.cfg.Upload.KeyInCSV,
		VisualizationID:  s.cfg.Dashboard.VisualizationID,
		PageSize:         s.cfg.Dashboard.PageSize,
		SnapshotsEnabled: s.snapshots != nil,
		Subscribers:      s.hub.Count(),
	}
	if s.history != nil {
		status.HistoryPath = s.history.Path()
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := table.PageRequest{Offset: 0, Count: s.cfg.Dashboard.PageSize}
	if value := query.Get("offset"); value != "" {
		offset, err := strconv.Atoi(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		req.Offset = offset
	}
	if value := query.Get("count"); value != "" {
		count, err := strconv.Atoi(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		req.Count = count
	}

	collection := s.cfg.Collection.Name
	meta, err := table.Describe(r.Context(), s.store, collection, s.cfg.Collection.Fields)
	if errors.Is(err, table.ErrNoMetadata) {
		s.writeJSON(w, http.StatusOK, api.TablePage{Loading: true, DataFields: []string{}, Rows: []kvstore.Record{}})
		return
	}
	if err != nil {
		s.writeFailure(w, http.StatusBadGateway, err, upload.MsgFetchFailed)
		return
	}
	page, err := table.LoadPage(r.Context(), s.store, collection, meta, req)
	if err != nil {
		s.writeFailure(w, http.StatusBadGateway, err, upload.MsgFetchFailed)
		return
	}
	rows := page.Rows
	if rows == nil {
		rows = []kvstore.Record{}
	}
	s.writeJSON(w, http.StatusOK, api.TablePage{
		DataFields: page.DataFields,
		TotalItems: page.TotalItems,
		Offset:     page.Offset,
		Count:      page.Count,
		Rows:       rows,
	})
}

func (s *Server) handleCellClick(w http.ResponseWriter, r *http.Request) {
	var payload api.CellClick
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid cell click payload")
		return
	}
	row := table.ExtractRow(payload)
	if len(row) == 0 {
		s.writeError(w, http.StatusBadRequest, "cell click payload has no row values")
		return
	}
	s.writeJSON(w, http.StatusOK, api.RowResponse{Row: row})
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	row, err := s.store.GetEntry(r.Context(), s.cfg.Collection.Name, key)
	if kvstore.IsNotFound(err) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("row %q not found", key))
		return
	}
	if err != nil {
		s.writeFailure(w, http.StatusBadGateway, err, upload.MsgFetchFailed)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RowResponse{Row: row})
}

func (s *Server) handleEditRow(w http.ResponseWriter, r *http.Request) {
	var req api.RowEditRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid row edit payload")
		return
	}
	res, err := s.svc.EditRow(r.Context(), r.PathValue("key"), req.Edits)
	s.writeRun(w, res, err)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	download, err := s.svc.Export(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, services.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeFailure(w, status, err, upload.MsgDownloadFailed)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": download.FileName}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(download.Data); err != nil {
		s.logger.Warn("write export failed", logging.Error(err))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileBytes)
	content, name, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload.max_file_bytes")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := s.svc.NewRequest(content)
	req.FileName = name
	query := r.URL.Query()
	if mode := strings.TrimSpace(query.Get("mode")); mode != "" {
		req.Mode = mode
	}
	if value := query.Get("key_in_csv"); value != "" {
		keyInCSV, err := strconv.ParseBool(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid key_in_csv")
			return
		}
		req.KeyInCSV = keyInCSV
	}
	res, err := s.svc.Upload(r.Context(), req)
	s.writeRun(w, res, err)
}

// readUpload returns the uploaded file from a multipart "file" field or the
// raw request body. A request without a file yields nil content.
func readUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", nil
		}
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, header.Filename, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", nil
	}
	return data, "", nil
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Backup(r.Context())
	s.writeRun(w, res, err)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Restore(r.Context())
	s.writeRun(w, res, err)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, _ *http.Request) {
	infos, err := s.snapshots.List(s.cfg.Collection.Name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.SnapshotListResponse{Snapshots: api.FromSnapshots(infos)})
}

func (s *Server) handleSnapshotRestore(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		s.writeError(w, http.StatusNotFound, "snapshots are disabled")
		return
	}
	name := filepath.Base(r.PathValue("name"))
	res, err := s.svc.RestoreSnapshot(r.Context(), filepath.Join(s.snapshots.Dir(), name))
	s.writeRun(w, res, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: []api.HistoryEntry{}})
		return
	}
	limit := 50
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := s.history.List(r.Context(), history.Filter{Collection: s.cfg.Collection.Name, Limit: limit})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: api.FromHistoryEntries(entries)})
}

// handleRefresh clicks the toolbar button for the table's own item; other
// items are refreshed through the bridge the button shares.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	connected := s.hub.Count()
	var err error
	if id == s.button.ItemID {
		err = s.button.Click(r.Context())
	} else {
		err = s.bridge.Refresh(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.RefreshResponse{ID: id, Delivered: connected})
}
