package kvstore_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kvedit/internal/kvstore"
	"kvedit/internal/testsupport"
)

func newClient(t *testing.T, fake *testsupport.FakeSplunk) *kvstore.Client {
	t.Helper()
	client, err := kvstore.New(kvstore.Options{
		BaseURL: fake.URL(),
		App:     "kv_editor",
		Token:   fake.Token,
		FormKey: fake.FormKey,
	})
	if err != nil {
		t.Fatalf("kvstore.New: %v", err)
	}
	return client
}

func TestNewRequiresBaseURLAndApp(t *testing.T) {
	if _, err := kvstore.New(kvstore.Options{App: "search"}); err == nil {
		t.Fatal("expected error without base url")
	}
	if _, err := kvstore.New(kvstore.Options{BaseURL: "https://localhost:8089"}); err == nil {
		t.Fatal("expected error without app")
	}
}

func TestRequestsUseNamespacedURLAndHeaders(t *testing.T) {
	var gotPath, gotQuery string
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_key":"a/b"}`))
	}))
	defer server.Close()

	client, err := kvstore.New(kvstore.Options{BaseURL: server.URL + "/", App: "kv_editor", Username: "admin", Password: "changeme", FormKey: "fk"})
	if err != nil {
		t.Fatalf("kvstore.New: %v", err)
	}
	key, err := client.UpdateEntry(context.Background(), "football", "a/b", kvstore.Record{"Score": "1"})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if key != "a/b" {
		t.Fatalf("unexpected key %q", key)
	}
	if want := "/servicesNS/nobody/kv_editor/storage/collections/data/football/a%2Fb"; gotPath != want {
		t.Fatalf("unexpected path %q want %q", gotPath, want)
	}
	if gotQuery != "output_mode=json" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotHeader.Get("X-Splunk-Form-Key") != "fk" {
		t.Fatalf("missing form key header: %v", gotHeader)
	}
	if gotHeader.Get("X-Requested-With") != "XMLHttpRequest" {
		t.Fatalf("missing X-Requested-With header: %v", gotHeader)
	}
	if user, pass, ok := (&http.Request{Header: gotHeader}).BasicAuth(); !ok || user != "admin" || pass != "changeme" {
		t.Fatalf("expected basic auth, got %q %q %v", user, pass, ok)
	}
}

func TestListUpdateInsertAndDelete(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	fake.Seed("football", map[string]any{"_key": "k1", "Title": "A", "Score": "10"})
	client := newClient(t, fake)
	ctx := context.Background()

	rows, err := client.ListEntries(ctx, "football", kvstore.ListOptions{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(rows) != 1 || rows[0]["Title"] != "A" {
		t.Fatalf("unexpected rows %v", rows)
	}

	if _, err := client.UpdateEntry(ctx, "football", "k1", kvstore.Record{"Title": "B", "Score": "11"}); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	row, err := client.GetEntry(ctx, "football", "k1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if row["Title"] != "B" {
		t.Fatalf("expected updated title, got %v", row)
	}

	key, err := client.InsertEntry(ctx, "football", kvstore.Record{"Title": "C"})
	if err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if key == "" {
		t.Fatal("expected generated key")
	}
	if count, err := client.CountEntries(ctx, "football"); err != nil || count != 2 {
		t.Fatalf("CountEntries = %d, %v", count, err)
	}

	if err := client.DeleteAll(ctx, "football"); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if got := fake.Rows("football"); len(got) != 0 {
		t.Fatalf("expected empty collection, got %v", got)
	}
}

func TestListOptionsArePassedThrough(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	for _, title := range []string{"c", "a", "b", "d"} {
		fake.Seed("football", map[string]any{"Title": title})
	}
	client := newClient(t, fake)

	rows, err := client.ListEntries(context.Background(), "football", kvstore.ListOptions{Sort: "Title", Skip: 1, Limit: 2, Fields: []string{"Title"}})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(rows) != 2 || rows[0]["Title"] != "b" || rows[1]["Title"] != "c" {
		t.Fatalf("unexpected page %v", rows)
	}
	if _, ok := rows[0]["_key"]; ok {
		t.Fatalf("expected fields projection, got %v", rows[0])
	}
}

func TestUpdateMissingKeyIsNotFound(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	client := newClient(t, fake)

	_, err := client.UpdateEntry(context.Background(), "football", "missing", kvstore.Record{"Title": "A"})
	if !kvstore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var statusErr *kvstore.StatusError
	if !errors.As(err, &statusErr) || len(statusErr.Messages) == 0 {
		t.Fatalf("expected splunk messages on status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Could not find object") {
		t.Fatalf("expected message text in error, got %q", err.Error())
	}
}

func TestBatchSaveAllSplitsIntoSequentialBatches(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	client := newClient(t, fake)

	rows := make([]kvstore.Record, 2501)
	for i := range rows {
		rows[i] = kvstore.Record{"n": i}
	}
	keys, err := client.BatchSaveAll(context.Background(), "football", rows, kvstore.DefaultBatchSize)
	if err != nil {
		t.Fatalf("BatchSaveAll: %v", err)
	}
	if len(keys) != len(rows) {
		t.Fatalf("expected %d keys, got %d", len(rows), len(keys))
	}

	var sizes []int
	for _, call := range fake.Calls() {
		if call.Op == testsupport.OpBatchSave {
			sizes = append(sizes, call.Documents)
		}
	}
	if len(sizes) != 3 || sizes[0] != 1000 || sizes[1] != 1000 || sizes[2] != 501 {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}
}

func TestBatchSaveAllStopsAtFirstFailure(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	fake.FailAfter(testsupport.OpBatchSave, 1, http.StatusInternalServerError)
	client := newClient(t, fake)

	rows := make([]kvstore.Record, 30)
	for i := range rows {
		rows[i] = kvstore.Record{"n": i}
	}
	keys, err := client.BatchSaveAll(context.Background(), "football", rows, 10)
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(keys) != 10 {
		t.Fatalf("expected keys from the first batch only, got %d", len(keys))
	}
	if fake.Count(testsupport.OpBatchSave) != 2 {
		t.Fatalf("expected two batch calls, got %v", fake.Ops())
	}
}

func TestSplitBatches(t *testing.T) {
	rows := make([]kvstore.Record, 5)
	tests := []struct {
		size int
		want []int
	}{
		{size: 2, want: []int{2, 2, 1}},
		{size: 5, want: []int{5}},
		{size: 0, want: []int{5}},
	}
	for _, tc := range tests {
		batches := kvstore.SplitBatches(rows, tc.size)
		if len(batches) != len(tc.want) {
			t.Fatalf("size %d: got %d batches", tc.size, len(batches))
		}
		for i, batch := range batches {
			if len(batch) != tc.want[i] {
				t.Fatalf("size %d: batch %d has %d rows", tc.size, i, len(batch))
			}
		}
	}
	if kvstore.SplitBatches(nil, 10) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestCollectionFieldsAreSorted(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	fake.SetFields("football", "Year", "Score", "Title")
	client := newClient(t, fake)

	fields, err := client.CollectionFields(context.Background(), "football")
	if err != nil {
		t.Fatalf("CollectionFields: %v", err)
	}
	if strings.Join(fields, ",") != "Score,Title,Year" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestBackupAndRestoreRunLookupSearches(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	fake.MapLookup("football_lookup", "football")
	fake.Seed("football", map[string]any{"_key": "k1", "Title": "A"})
	client := newClient(t, fake)
	ctx := context.Background()

	if err := client.Backup(ctx, "football_lookup"); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if err := client.DeleteAll(ctx, "football"); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if err := client.Restore(ctx, "football_lookup"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	rows := fake.Rows("football")
	if len(rows) != 1 || rows[0]["Title"] != "A" {
		t.Fatalf("expected restored rows, got %v", rows)
	}

	calls := fake.Calls()
	if calls[0].Search != "|inputlookup football_lookup |outputlookup football_lookup.bak.csv" {
		t.Fatalf("unexpected backup search %q", calls[0].Search)
	}
	if calls[2].Search != "|inputlookup football_lookup.bak.csv |outputlookup football_lookup" {
		t.Fatalf("unexpected restore search %q", calls[2].Search)
	}
}

func TestRunSearchFailsOnErrorMessages(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	client := newClient(t, fake)

	err := client.Backup(context.Background(), "unknown_lookup")
	if !errors.Is(err, kvstore.ErrSearchFailed) {
		t.Fatalf("expected search failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown_lookup") {
		t.Fatalf("expected message text in error, got %q", err.Error())
	}
}

func TestMissingTokenIsRejected(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	client, err := kvstore.New(kvstore.Options{BaseURL: fake.URL(), App: "search"})
	if err != nil {
		t.Fatalf("kvstore.New: %v", err)
	}
	_, err = client.ListEntries(context.Background(), "football", kvstore.ListOptions{})
	var statusErr *kvstore.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
}
