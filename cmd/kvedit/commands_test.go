package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kvedit/internal/api"
	"kvedit/internal/testsupport"
	"kvedit/internal/upload"
)

func TestRowsList(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed()

	stdout, _, err := env.run(t, "rows", "list", "--count", "2")
	if err != nil {
		t.Fatalf("rows list: %v", err)
	}
	requireContains(t, stdout, "_key")
	requireContains(t, stdout, "k2")
	requireContains(t, stdout, "Rows 1-2 of 3")
	if strings.Contains(stdout, "k3") {
		t.Fatalf("expected k3 on the next page, got:\n%s", stdout)
	}

	stdout, _, err = env.run(t, "--json", "rows", "list", "--offset", "2")
	if err != nil {
		t.Fatalf("rows list --json: %v", err)
	}
	var page api.TablePage
	if err := json.Unmarshal([]byte(stdout), &page); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if page.TotalItems != 3 || len(page.Rows) != 1 || page.Rows[0]["_key"] != "k3" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestRowsListEmptyCollection(t *testing.T) {
	env := setupCLITestEnv(t)
	stdout, _, err := env.run(t, "rows", "list")
	if err != nil {
		t.Fatalf("rows list: %v", err)
	}
	requireContains(t, stdout, "has no rows")
}

func TestRowsShowAndEdit(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed()

	stdout, _, err := env.run(t, "rows", "show", "k1")
	if err != nil {
		t.Fatalf("rows show: %v", err)
	}
	requireContains(t, stdout, "Title")
	requireContains(t, stdout, "A")

	stdout, stderr, err := env.run(t, "rows", "edit", "k1", "Title=Edited")
	if err != nil {
		t.Fatalf("rows edit: %v", err)
	}
	requireContains(t, stdout, "succeeded")
	requireContains(t, stderr, "[INFO] "+upload.MsgUpdating)
	requireContains(t, stderr, "[OK] "+upload.MsgRowUpdated)

	for _, row := range env.fake.Rows("football") {
		if row["_key"] == "k1" && row["Title"] != "Edited" {
			t.Fatalf("expected edited title, got %v", row)
		}
	}

	if _, _, err := env.run(t, "rows", "show", "missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if _, _, err := env.run(t, "rows", "edit", "k1", "Title"); err == nil {
		t.Fatal("expected error for malformed edit")
	}
}

func TestUploadReplaceAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed()
	path := testsupport.WriteCSV(t, filepath.Join(env.baseDir, "football.csv"), "Title,Score", "X,1", "Y,2")

	stdout, stderr, err := env.run(t, "upload", path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, stdout, "Removed:   3")
	requireContains(t, stdout, "Added:     2")
	requireContains(t, stderr, "CSV file successfully uploaded. Removed 3 items and added 2 items.")
	if rows := env.fake.Rows("football"); len(rows) != 2 {
		t.Fatalf("expected 2 rows after replace, got %v", rows)
	}

	stdout, _, err = env.run(t, "--json", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var history api.HistoryResponse
	if err := json.Unmarshal([]byte(stdout), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Entries) != 1 || history.Entries[0].Operation != "upload" || history.Entries[0].Removed != 3 {
		t.Fatalf("unexpected history %+v", history.Entries)
	}
}

func TestUploadIncrementalFlag(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed()
	path := testsupport.WriteCSV(t, filepath.Join(env.baseDir, "delta.csv"), "_key,Title,Score", "k1,Z,99", ",New,5")

	stdout, _, err := env.run(t, "upload", "--mode", "incremental", "--key-in-csv", path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, stdout, "Updated:   1")
	requireContains(t, stdout, "Added:     1")
	if rows := env.fake.Rows("football"); len(rows) != 4 {
		t.Fatalf("expected 4 rows after incremental upload, got %d", len(rows))
	}
}

func TestUploadMismatchFails(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed()
	path := testsupport.WriteCSV(t, filepath.Join(env.baseDir, "bad.csv"), "Title", "X")

	_, stderr, err := env.run(t, "upload", path)
	if err == nil {
		t.Fatal("expected upload to fail")
	}
	requireContains(t, err.Error(), "rejected")
	requireContains(t, stderr, "[ERROR] "+upload.MsgFieldMismatch)
	if env.fake.Count(testsupport.OpDelete) != 0 {
		t.Fatalf("expected no delete, got %v", env.fake.Ops())
	}
}

func TestExportToFile(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed()
	target := filepath.Join(env.baseDir, "out.csv")

	stdout, _, err := env.run(t, "export", "--output", target)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, stdout, "Wrote 3 rows")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), `"_key","Score","Title"`) {
		t.Fatalf("unexpected export %q", data)
	}
}

func TestExportToDirectoryUsesCollectionFileName(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed()
	dir := filepath.Join(env.baseDir, "exports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	stdout, _, err := env.run(t, "export", "-o", dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := filepath.Join(dir, "football.csv")
	requireContains(t, stdout, want)
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s: %v", want, err)
	}
}

func TestBackupRequiresLookup(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := env.run(t, "backup", "create")
	if err == nil {
		t.Fatal("expected backup to fail without lookup")
	}
	requireContains(t, err.Error(), upload.MsgNoLookup)
}

func TestBackupCreateWithLookup(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithCollection("football", "football_lookup"))
	env.fake.MapLookup("football_lookup", "football")
	env.seed()

	stdout, _, err := env.run(t, "backup", "create")
	if err != nil {
		t.Fatalf("backup create: %v", err)
	}
	requireContains(t, stdout, upload.MsgBackupCreated)
}

func TestSnapshotCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "snapshot", "list"); !errors.Is(err, errSnapshotsDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}

	env = setupCLITestEnv(t, testsupport.WithSnapshots())
	env.seed()
	path := testsupport.WriteCSV(t, filepath.Join(env.baseDir, "football.csv"), "Title,Score", "X,1")
	if _, _, err := env.run(t, "upload", path); err != nil {
		t.Fatalf("upload: %v", err)
	}

	stdout, _, err := env.run(t, "--json", "snapshot", "list")
	if err != nil {
		t.Fatalf("snapshot list: %v", err)
	}
	var list api.SnapshotListResponse
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %+v", list)
	}

	stdout, _, err = env.run(t, "snapshot", "restore", list.Snapshots[0].Name)
	if err != nil {
		t.Fatalf("snapshot restore: %v", err)
	}
	requireContains(t, stdout, "Snapshot restored. Removed 1 items and added 3 items.")
	if rows := env.fake.Rows("football"); len(rows) != 3 {
		t.Fatalf("expected seeded rows back, got %v", rows)
	}
}

func TestRefreshCallsServer(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.RefreshResponse{ID: "viz_edit_table", Delivered: 1})
	}))
	defer server.Close()

	env := setupCLITestEnv(t)
	env.cfg.Paths.APIBind = strings.TrimPrefix(server.URL, "http://")
	writeTestConfig(t, env.configPath, env.cfg)

	stdout, _, err := env.run(t, "refresh")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	requireContains(t, stdout, "Refreshed viz_edit_table on 1 dashboard(s)")
	if gotPath != "/api/visualizations/viz_edit_table/refresh" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestRefreshWithoutServerAddress(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "refresh"); err == nil {
		t.Fatal("expected error without api_bind")
	}
}

func TestStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed()
	stdout, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "football (3 rows")
	requireContains(t, stdout, "no api_bind configured")
}
