package upload_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"kvedit/internal/config"
	"kvedit/internal/dashboard"
	"kvedit/internal/history"
	"kvedit/internal/kvstore"
	"kvedit/internal/rowmodel"
	"kvedit/internal/services"
	"kvedit/internal/snapshot"
	"kvedit/internal/testsupport"
	"kvedit/internal/upload"
)

type recordingAPI struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingAPI) RefreshVisualization(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingAPI) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

type recordingNotifier struct {
	mu      sync.Mutex
	banners []dashboard.Banner
}

func (n *recordingNotifier) Notify(b dashboard.Banner) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.banners = append(n.banners, b)
}

type harness struct {
	fake     *testsupport.FakeSplunk
	cfg      *config.Config
	svc      *upload.Service
	api      *recordingAPI
	notifier *recordingNotifier
	history  *history.Store
}

type harnessOption func(*upload.Options)

func withModel(t *testing.T, yaml string) harnessOption {
	return func(o *upload.Options) {
		model, err := rowmodel.Parse([]byte(yaml))
		if err != nil {
			t.Fatalf("rowmodel.Parse: %v", err)
		}
		o.Model = model
	}
}

func newHarness(t *testing.T, cfgOpts []testsupport.ConfigOption, opts ...harnessOption) *harness {
	t.Helper()
	fake := testsupport.NewFakeSplunk(t)
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithSplunk(fake)}, cfgOpts...)...)
	client, err := kvstore.NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("kvstore.NewFromConfig: %v", err)
	}
	api := &recordingAPI{}
	notifier := &recordingNotifier{}
	store := testsupport.MustOpenHistory(t, cfg)
	options := upload.Options{
		Config:   cfg,
		Store:    client,
		Bridge:   dashboard.NewBridge(api),
		Notifier: notifier,
		History:  store,
	}
	if cfg.Snapshot.Enabled {
		manager, err := snapshot.NewManager(context.Background(), cfg, nil)
		if err != nil {
			t.Fatalf("snapshot.NewManager: %v", err)
		}
		options.Snapshots = manager
	}
	for _, opt := range opts {
		opt(&options)
	}
	svc, err := upload.New(options)
	if err != nil {
		t.Fatalf("upload.New: %v", err)
	}
	return &harness{fake: fake, cfg: cfg, svc: svc, api: api, notifier: notifier, history: store}
}

func (h *harness) seed(rows ...map[string]any) {
	h.fake.Seed(h.cfg.Collection.Name, rows...)
}

func (h *harness) lastEntry(t *testing.T) history.Entry {
	t.Helper()
	entries, err := h.history.List(context.Background(), history.Filter{Limit: 1})
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected a history entry, got %v, %v", entries, err)
	}
	return entries[0]
}

func withLookup() testsupport.ConfigOption {
	return testsupport.WithCollection("football", "football_lookup")
}

func seedFootball(h *harness) {
	h.fake.MapLookup("football_lookup", "football")
	h.seed(
		map[string]any{"_key": "k1", "Title": "A", "Score": "10"},
		map[string]any{"_key": "k2", "Title": "B", "Score": "20"},
		map[string]any{"_key": "k3", "Title": "C", "Score": "30"},
	)
}

func requireMessage(t *testing.T, err error, want string) {
	t.Helper()
	var failure *upload.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *upload.Failure, got %v", err)
	}
	if failure.Message != want {
		t.Fatalf("unexpected message %q, want %q", failure.Message, want)
	}
}

func TestReplaceDeletesOnceAndBatchesInserts(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{withLookup()})
	seedFootball(h)

	csv := testsupport.GenerateCSV([]string{"Title", "Score"}, 2501)
	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte(csv)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "CSV file successfully uploaded. Removed 3 items and added 2501 items."; res.Message != want {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if res.Banner.Type != dashboard.BannerSuccess || !res.BackupCreated || res.Restored {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := h.fake.Count(testsupport.OpDelete); got != 1 {
		t.Fatalf("expected exactly one delete, got %d", got)
	}
	if got := h.fake.Count(testsupport.OpBatchSave); got != 3 {
		t.Fatalf("expected ceil(2501/1000)=3 batch saves, got %d", got)
	}

	var writes []string
	for _, op := range h.fake.Ops() {
		switch op {
		case testsupport.OpBackup, testsupport.OpDelete, testsupport.OpBatchSave:
			writes = append(writes, op)
		}
	}
	if strings.Join(writes, ",") != "backup,delete,batch_save,batch_save,batch_save" {
		t.Fatalf("unexpected write order %v", writes)
	}
	if rows := h.fake.Rows("football"); len(rows) != 2501 {
		t.Fatalf("expected 2501 rows stored, got %d", len(rows))
	}
	if h.api.count() != 1 {
		t.Fatalf("expected one refresh, got %d", h.api.count())
	}

	entry := h.lastEntry(t)
	if entry.Outcome != services.OutcomeSucceeded || entry.Removed != 3 || entry.Added != 2501 || entry.RunID != res.RunID {
		t.Fatalf("unexpected history entry %+v", entry)
	}
}

func TestUploadRejectsBadInputWithoutWrites(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{name: "no file", content: nil, want: upload.MsgNoData},
		{name: "header only", content: []byte("Title,Score\n"), want: upload.MsgEmptyCSV},
		{name: "missing column", content: []byte("Title\nA\n"), want: upload.MsgFieldMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, []testsupport.ConfigOption{withLookup()})
			seedFootball(h)

			res, err := h.svc.Upload(context.Background(), h.svc.NewRequest(tc.content))
			requireMessage(t, err, tc.want)
			if res.Banner.Type != dashboard.BannerError || res.Outcome != services.OutcomeRejected {
				t.Fatalf("unexpected result %+v", res)
			}
			for _, op := range []string{testsupport.OpBackup, testsupport.OpDelete, testsupport.OpBatchSave, testsupport.OpInsert, testsupport.OpUpdate} {
				if n := h.fake.Count(op); n != 0 {
					t.Fatalf("expected no %s calls, got %d (%v)", op, n, h.fake.Ops())
				}
			}
			if h.api.count() != 1 {
				t.Fatal("expected refresh after a rejected upload")
			}
		})
	}
}

func TestKeyInCSVRequiresKeyColumn(t *testing.T) {
	h := newHarness(t, nil)
	seedFootball(h)

	req := h.svc.NewRequest([]byte("Title,Score\nA,1\n"))
	req.KeyInCSV = true
	_, err := h.svc.Upload(context.Background(), req)
	requireMessage(t, err, upload.MsgFieldMismatch)

	req.Content = []byte("_key,Title,Score\nk1,A,1\n")
	if _, err := h.svc.Upload(context.Background(), req); err != nil {
		t.Fatalf("Upload with key: %v", err)
	}
	rows := h.fake.Rows("football")
	if len(rows) != 1 || rows[0]["_key"] != "k1" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestReplaceFailureRestoresBackup(t *testing.T) {
	tests := []struct {
		name   string
		inject func(*testsupport.FakeSplunk)
		want   string
	}{
		{
			name:   "delete fails",
			inject: func(f *testsupport.FakeSplunk) { f.Fail(testsupport.OpDelete, http.StatusInternalServerError, "boom") },
			want:   upload.MsgDeleteFailed,
		},
		{
			name:   "insert fails",
			inject: func(f *testsupport.FakeSplunk) { f.FailAfter(testsupport.OpBatchSave, 1, http.StatusInternalServerError) },
			want:   upload.MsgInsertFailed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, []testsupport.ConfigOption{withLookup()})
			seedFootball(h)
			tc.inject(h.fake)

			csv := testsupport.GenerateCSV([]string{"Title", "Score"}, 1500)
			res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte(csv)))
			requireMessage(t, err, tc.want)
			if !res.Restored || res.Outcome != services.OutcomeRestored {
				t.Fatalf("expected restored run, got %+v", res)
			}
			if h.fake.Count(testsupport.OpRestore) != 1 {
				t.Fatalf("expected one restore, got %v", h.fake.Ops())
			}
			rows := h.fake.Rows("football")
			if len(rows) != 3 {
				t.Fatalf("expected original rows restored, got %d", len(rows))
			}
			if h.lastEntry(t).Outcome != services.OutcomeRestored {
				t.Fatal("expected restored outcome in history")
			}
		})
	}
}

func TestRestoreFailureReportsContactAdmin(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{withLookup()})
	seedFootball(h)
	h.fake.Fail(testsupport.OpBatchSave, http.StatusInternalServerError, "boom")
	h.fake.Fail(testsupport.OpRestore, http.StatusOK, "restore broken")

	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score\nA,1\n")))
	requireMessage(t, err, upload.MsgRestoreFailed)
	if res.Restored || res.Outcome != services.OutcomeFailed {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(err.Error(), "restore broken") {
		t.Fatalf("expected restore cause in error, got %v", err)
	}
}

func TestBackupFailureAbortsBeforeChanges(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{withLookup()})
	seedFootball(h)
	h.fake.Fail(testsupport.OpBackup, http.StatusOK, "lookup unavailable")

	_, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score\nA,1\n")))
	requireMessage(t, err, upload.MsgBackupFailed)
	if h.fake.Count(testsupport.OpDelete) != 0 || h.fake.Count(testsupport.OpBatchSave) != 0 {
		t.Fatalf("expected no writes, got %v", h.fake.Ops())
	}
}

func TestReplaceWithoutLookupSkipsBackup(t *testing.T) {
	h := newHarness(t, nil)
	seedFootball(h)
	h.fake.Fail(testsupport.OpBatchSave, http.StatusInternalServerError, "boom")

	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score\nA,1\n")))
	requireMessage(t, err, upload.MsgInsertFailed)
	if res.BackupCreated || res.Restored {
		t.Fatalf("unexpected backup activity %+v", res)
	}
	if h.fake.Count(testsupport.OpBackup) != 0 || h.fake.Count(testsupport.OpRestore) != 0 {
		t.Fatalf("expected no backup searches, got %v", h.fake.Ops())
	}
}

func TestIncrementalUpdatesExistingAndInsertsNew(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{withLookup(), testsupport.WithUploadMode(config.UploadModeIncremental)})
	seedFootball(h)

	csv := "_key,Title,Score\nk1,A2,11\n,New,5\nk9,Other,7\n"
	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte(csv)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "CSV file successfully uploaded. Update 1 items and added 2 items."; res.Message != want {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if res.Updated != 1 || res.Added != 2 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if h.fake.Count(testsupport.OpUpdate) != 1 || h.fake.Count(testsupport.OpBatchSave) != 1 || h.fake.Count(testsupport.OpDelete) != 0 {
		t.Fatalf("unexpected calls %v", h.fake.Ops())
	}
	rows := h.fake.Rows("football")
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row["_key"] == "k1" && row["Title"] != "A2" {
			t.Fatalf("expected k1 updated, got %v", row)
		}
		if row["_key"] == "" {
			t.Fatalf("expected empty key dropped before insert, got %v", row)
		}
	}
}

func TestIncrementalSingleInsertUsesInsertEntry(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithUploadMode(config.UploadModeIncremental)})
	seedFootball(h)

	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("_key,Title,Score\nk1,A2,11\n,New,5\n")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Updated != 1 || res.Added != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if h.fake.Count(testsupport.OpInsert) != 1 || h.fake.Count(testsupport.OpBatchSave) != 0 {
		t.Fatalf("unexpected calls %v", h.fake.Ops())
	}
	if got := len(h.fake.Rows("football")); got != 4 {
		t.Fatalf("expected 4 rows, got %d", got)
	}
}

func TestIncrementalUpdateFailure(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{withLookup(), testsupport.WithUploadMode(config.UploadModeIncremental)})
	seedFootball(h)
	h.fake.Fail(testsupport.OpUpdate, http.StatusInternalServerError, "boom")

	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("_key,Title,Score\nk1,A2,11\n")))
	requireMessage(t, err, upload.MsgUpdateFailed)
	if !res.Restored {
		t.Fatalf("expected restore after failed update, got %+v", res)
	}
}

func TestIncrementalFetchFailure(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithFields("Title", "Score")})
	seedFootball(h)
	h.fake.FailAfter(testsupport.OpList, 1, http.StatusInternalServerError)

	req := h.svc.NewRequest([]byte("Title,Score\nA,1\n"))
	req.Mode = config.UploadModeIncremental
	_, err := h.svc.Upload(context.Background(), req)
	requireMessage(t, err, upload.MsgFetchFailed)
	if h.fake.Count(testsupport.OpBatchSave) != 0 {
		t.Fatalf("expected no inserts, got %v", h.fake.Ops())
	}
}

func TestUploadCoercesWithRowModel(t *testing.T) {
	model := "fields:\n  Score: { type: number, min: 0, max: 100 }\n"
	h := newHarness(t, nil, withModel(t, model))
	seedFootball(h)

	_, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score\nA,abc\n")))
	requireMessage(t, err, upload.MsgInvalidValues)
	if h.fake.Count(testsupport.OpDelete) != 0 {
		t.Fatal("expected no delete for invalid values")
	}

	if _, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score\nA,42\n"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	rows := h.fake.Rows("football")
	if len(rows) != 1 {
		t.Fatalf("unexpected rows %v", rows)
	}
	if score, ok := rows[0]["Score"].(float64); !ok || score != 42 {
		t.Fatalf("expected numeric score, got %#v", rows[0]["Score"])
	}
}

func TestFirstUploadIntoEmptyCollectionUsesCSVColumns(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score\nA,1\nB,2\n")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Added != 2 || res.Removed != 0 {
		t.Fatalf("unexpected counts %+v", res)
	}
}

func TestUploadRejectedWhileCollectionLocked(t *testing.T) {
	h := newHarness(t, nil)
	seedFootball(h)

	path := h.cfg.LockPath("football")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(path)
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer held.Unlock()

	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score\nA,1\n")))
	requireMessage(t, err, upload.MsgUploadBusy)
	if res.Outcome != services.OutcomeRejected || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
	if h.fake.Count(testsupport.OpList) != 0 {
		t.Fatalf("expected no splunk calls, got %v", h.fake.Ops())
	}
}

func TestReplaceWritesSnapshot(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithSnapshots()})
	seedFootball(h)

	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score\nZ,1\n")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Snapshot == "" {
		t.Fatal("expected snapshot path")
	}
	rows, err := snapshot.Read(res.Snapshot)
	if err != nil {
		t.Fatalf("snapshot.Read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected snapshot of the previous rows, got %d", len(rows))
	}

	restored, err := h.svc.RestoreSnapshot(context.Background(), res.Snapshot)
	if err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if want := "Snapshot restored. Removed 1 items and added 3 items."; restored.Message != want {
		t.Fatalf("unexpected message %q", restored.Message)
	}
	if got := len(h.fake.Rows("football")); got != 3 {
		t.Fatalf("expected 3 rows after snapshot restore, got %d", got)
	}
}

func TestRestoreSnapshotCoercesWithRowModel(t *testing.T) {
	model := "fields:\n  Score: { type: number }\n  Active: { type: boolean }\n"
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithSnapshots()}, withModel(t, model))
	h.seed(
		map[string]any{"_key": "k1", "Title": "A", "Score": 10.0, "Active": true},
		map[string]any{"_key": "k2", "Title": "B", "Score": 20.5, "Active": false},
	)

	res, err := h.svc.Upload(context.Background(), h.svc.NewRequest([]byte("Title,Score,Active\nZ,1,true\n")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := h.svc.RestoreSnapshot(context.Background(), res.Snapshot); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}

	rows := h.fake.Rows("football")
	if len(rows) != 2 {
		t.Fatalf("expected 2 restored rows, got %v", rows)
	}
	for _, row := range rows {
		if _, ok := row["Score"].(float64); !ok {
			t.Fatalf("expected numeric Score, got %#v in %v", row["Score"], row)
		}
		if _, ok := row["Active"].(bool); !ok {
			t.Fatalf("expected boolean Active, got %#v in %v", row["Active"], row)
		}
	}

	if _, err := h.svc.EditRow(context.Background(), "k1", map[string]string{"Title": "Edited"}); err != nil {
		t.Fatalf("EditRow after restore: %v", err)
	}
}

func TestRestoreSnapshotMissingFile(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.RestoreSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing.csv.sz"))
	requireMessage(t, err, upload.MsgSnapshotRead)
	if h.fake.Count(testsupport.OpDelete) != 0 {
		t.Fatal("expected no delete")
	}
}

func TestBackupAndRestoreCommands(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Backup(context.Background())
	requireMessage(t, err, upload.MsgNoLookup)

	h = newHarness(t, []testsupport.ConfigOption{withLookup()})
	seedFootball(h)
	res, err := h.svc.Backup(context.Background())
	if err != nil || res.Message != upload.MsgBackupCreated {
		t.Fatalf("Backup: %+v %v", res, err)
	}
	if rows, ok := h.fake.Backup("football_lookup"); !ok || len(rows) != 3 {
		t.Fatalf("expected backup of 3 rows, got %v %v", rows, ok)
	}

	res, err = h.svc.Restore(context.Background())
	if err != nil || res.Message != upload.MsgBackupRestored || !res.Restored {
		t.Fatalf("Restore: %+v %v", res, err)
	}
}

func TestEditRow(t *testing.T) {
	h := newHarness(t, nil)
	seedFootball(h)

	res, err := h.svc.EditRow(context.Background(), "k1", map[string]string{"Title": "Edited"})
	if err != nil {
		t.Fatalf("EditRow: %v", err)
	}
	if res.Message != upload.MsgRowUpdated || res.Banner.DismissAfter.Seconds() != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, row := range h.fake.Rows("football") {
		if row["_key"] == "k1" && row["Title"] != "Edited" {
			t.Fatalf("expected edit stored, got %v", row)
		}
	}

	h.notifier.mu.Lock()
	banners := append([]dashboard.Banner(nil), h.notifier.banners...)
	h.notifier.mu.Unlock()
	if len(banners) != 2 || banners[0].Message != upload.MsgUpdating || banners[1].Type != dashboard.BannerSuccess {
		t.Fatalf("unexpected banners %+v", banners)
	}
	if h.api.count() != 1 {
		t.Fatal("expected refresh after edit")
	}
}

func TestEditRowLeavesUnmodeledStoredValues(t *testing.T) {
	h := newHarness(t, nil, withModel(t, "fields:\n  Active: { type: boolean }\n"))
	h.seed(map[string]any{"_key": "k1", "Title": "A", "Score": "10", "Active": "true"})

	res, err := h.svc.EditRow(context.Background(), "k1", map[string]string{"Title": "Edited"})
	if err != nil {
		t.Fatalf("EditRow: %v (%+v)", err, res)
	}
	row := h.fake.Rows("football")[0]
	if row["Title"] != "Edited" || row["Active"] != "true" {
		t.Fatalf("unexpected stored row %v", row)
	}
}

func TestEditRowFailures(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		edits   map[string]string
		outcome services.Outcome
	}{
		{name: "unknown key", key: "missing", edits: map[string]string{"Title": "x"}, outcome: services.OutcomeFailed},
		{name: "unknown field", key: "k1", edits: map[string]string{"Nope": "x"}, outcome: services.OutcomeRejected},
		{name: "key change", key: "k1", edits: map[string]string{"_key": "k9"}, outcome: services.OutcomeRejected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			seedFootball(h)
			res, err := h.svc.EditRow(context.Background(), tc.key, tc.edits)
			requireMessage(t, err, upload.MsgRowUpdateFailed)
			if res.Outcome != tc.outcome {
				t.Fatalf("unexpected outcome %s", res.Outcome)
			}
			if h.fake.Count(testsupport.OpUpdate) != 0 {
				t.Fatal("expected no update call")
			}
		})
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Export(context.Background())
	requireMessage(t, err, upload.MsgNoDownload)

	seedFootball(h)
	download, err := h.svc.Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if download.FileName != "football.csv" || download.Rows != 3 {
		t.Fatalf("unexpected download %+v", download)
	}
	lines := strings.Split(string(download.Data), "\n")
	if lines[0] != `"_key","Score","Title"` || lines[1] != `"k1","10","A"` {
		t.Fatalf("unexpected csv %q", download.Data)
	}

	h.fake.Fail(testsupport.OpList, http.StatusInternalServerError, "boom")
	_, err = h.svc.Export(context.Background())
	requireMessage(t, err, upload.MsgDownloadFailed)
}
