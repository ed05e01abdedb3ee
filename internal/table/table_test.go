package table_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"kvedit/internal/kvstore"
	"kvedit/internal/table"
	"kvedit/internal/testsupport"
)

func newClient(t *testing.T, fake *testsupport.FakeSplunk) *kvstore.Client {
	t.Helper()
	client, err := kvstore.New(kvstore.Options{BaseURL: fake.URL(), App: "search", Token: fake.Token, FormKey: fake.FormKey})
	if err != nil {
		t.Fatalf("kvstore.New: %v", err)
	}
	return client
}

func TestDescribeFieldSources(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	fake.Seed("football", map[string]any{"_key": "k1", "Title": "A", "Score": "1"})
	client := newClient(t, fake)
	ctx := context.Background()

	meta, err := table.Describe(ctx, client, "football", nil)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if strings.Join(meta.DataFields, ",") != "_key,Score,Title" || meta.TotalItems != 1 {
		t.Fatalf("unexpected record-derived metadata %+v", meta)
	}

	fake.SetFields("football", "Year", "Title")
	meta, err = table.Describe(ctx, client, "football", nil)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if strings.Join(meta.DataFields, ",") != "_key,Title,Year" {
		t.Fatalf("expected config fields, got %v", meta.DataFields)
	}

	meta, err = table.Describe(ctx, client, "football", []string{"Score", "_key"})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if strings.Join(meta.DataFields, ",") != "_key,Score" {
		t.Fatalf("expected pinned fields, got %v", meta.DataFields)
	}
}

func TestDescribeEmptyCollectionHasNoMetadata(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	client := newClient(t, fake)

	_, err := table.Describe(context.Background(), client, "football", nil)
	if !errors.Is(err, table.ErrNoMetadata) {
		t.Fatalf("expected ErrNoMetadata, got %v", err)
	}
}

func TestLoadPage(t *testing.T) {
	fake := testsupport.NewFakeSplunk(t)
	for _, key := range []string{"k3", "k1", "k2"} {
		fake.Seed("football", map[string]any{"_key": key, "Title": key, "Hidden": "x"})
	}
	client := newClient(t, fake)
	meta := table.Metadata{DataFields: []string{"_key", "Title"}, TotalItems: 3}

	page, err := table.LoadPage(context.Background(), client, "football", meta, table.PageRequest{Offset: 1, Count: 1})
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0]["_key"] != "k2" {
		t.Fatalf("unexpected rows %v", page.Rows)
	}
	if _, ok := page.Rows[0]["Hidden"]; ok {
		t.Fatalf("expected projection onto data fields, got %v", page.Rows[0])
	}
	if page.TotalItems != 3 || page.Offset != 1 || page.Count != 1 {
		t.Fatalf("unexpected page window %+v", page)
	}
}

func TestPageRequestNormalize(t *testing.T) {
	tests := []struct {
		in   table.PageRequest
		want table.PageRequest
	}{
		{in: table.PageRequest{}, want: table.PageRequest{Offset: 0, Count: 10}},
		{in: table.PageRequest{Offset: -5, Count: -1}, want: table.PageRequest{Offset: 0, Count: 10}},
		{in: table.PageRequest{Offset: 20, Count: 5000}, want: table.PageRequest{Offset: 20, Count: 1000}},
	}
	for _, tc := range tests {
		if got := tc.in.Normalize(); got != tc.want {
			t.Fatalf("Normalize(%+v) = %+v want %+v", tc.in, got, tc.want)
		}
	}
}

func TestExtractRow(t *testing.T) {
	payload := map[string]any{
		"row._key.value":  "k1",
		"row.Title.value": "A",
		"row.a.b.value":   "nested",
		"value":           "ignored",
		"row.Score":       "ignored",
	}
	row := table.ExtractRow(payload)
	if len(row) != 2 || row["_key"] != "k1" || row["Title"] != "A" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestCells(t *testing.T) {
	row := kvstore.Record{"_key": "k1", "Score": json.Number("10"), "Active": true, "Ratio": 0.5}
	got := table.Cells(row, []string{"_key", "Score", "Active", "Ratio", "Missing"})
	if strings.Join(got, "|") != "k1|10|true|0.5|" {
		t.Fatalf("unexpected cells %v", got)
	}
}
