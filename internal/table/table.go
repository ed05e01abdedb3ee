// Package table provides the data behind the editable table view: which
// columns it shows, how rows are paged and how a clicked cell maps back to a
// record.
package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"kvedit/internal/kvstore"
	"kvedit/internal/records"
)

const (
	// DefaultCount is the page size the visualization requests initially.
	DefaultCount = 10
	// MaxCount caps a single page request.
	MaxCount = 1000
)

// ErrNoMetadata is returned when no data fields can be determined. The view
// shows its loading state until metadata appears.
var ErrNoMetadata = errors.New("table metadata unavailable")

// Source is the subset of the KV Store client the table reads through.
type Source interface {
	ListEntries(ctx context.Context, collection string, opts kvstore.ListOptions) ([]kvstore.Record, error)
	CountEntries(ctx context.Context, collection string) (int, error)
	CollectionFields(ctx context.Context, collection string) ([]string, error)
}

// Metadata describes the table: its data fields and total row count.
type Metadata struct {
	DataFields []string `json:"dataFields"`
	TotalItems int      `json:"totalItems"`
}

// Describe determines the table metadata. Data fields are _key followed by
// the pinned fields when any are configured, else the fields declared in the
// collection config, else the union of the stored record keys.
func Describe(ctx context.Context, source Source, collection string, pinned []string) (Metadata, error) {
	total, err := source.CountEntries(ctx, collection)
	if err != nil {
		return Metadata{}, fmt.Errorf("count entries: %w", err)
	}

	fields := withKey(pinned)
	if len(fields) == 0 {
		declared, err := source.CollectionFields(ctx, collection)
		if err != nil && !kvstore.IsNotFound(err) {
			return Metadata{}, fmt.Errorf("collection fields: %w", err)
		}
		fields = withKey(declared)
	}
	if len(fields) == 0 && total > 0 {
		rows, err := source.ListEntries(ctx, collection, kvstore.ListOptions{})
		if err != nil {
			return Metadata{}, fmt.Errorf("list entries: %w", err)
		}
		fields = records.Columns(rows, []string{kvstore.UserField})
	}
	if len(fields) == 0 {
		return Metadata{}, ErrNoMetadata
	}
	return Metadata{DataFields: fields, TotalItems: total}, nil
}

func withKey(fields []string) []string {
	rest := records.Without(fields, kvstore.KeyField, kvstore.UserField)
	if len(rest) == 0 {
		return nil
	}
	return append([]string{kvstore.KeyField}, rest...)
}

// PageRequest mirrors the visualization's request params.
type PageRequest struct {
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// Normalize clamps the request into a valid window.
func (r PageRequest) Normalize() PageRequest {
	if r.Offset < 0 {
		r.Offset = 0
	}
	if r.Count <= 0 {
		r.Count = DefaultCount
	}
	if r.Count > MaxCount {
		r.Count = MaxCount
	}
	return r
}

// Page is one window of rows together with the table metadata.
type Page struct {
	Metadata
	Offset int              `json:"offset"`
	Count  int              `json:"count"`
	Rows   []kvstore.Record `json:"rows"`
}

// LoadPage fetches the rows of one page ordered by _key and restricted to the
// data fields.
func LoadPage(ctx context.Context, source Source, collection string, meta Metadata, req PageRequest) (Page, error) {
	req = req.Normalize()
	rows, err := source.ListEntries(ctx, collection, kvstore.ListOptions{
		Limit: req.Count,
		Skip:  req.Offset,
		Sort:  kvstore.KeyField,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list entries: %w", err)
	}
	return Page{
		Metadata: meta,
		Offset:   req.Offset,
		Count:    req.Count,
		Rows:     records.Project(rows, meta.DataFields),
	}, nil
}

var cellKey = regexp.MustCompile(`^row\.([^.]+)\.value$`)

// ExtractRow rebuilds the clicked row from a cell-click payload, whose keys
// have the form row.<field>.value. Other keys are ignored.
func ExtractRow(payload map[string]any) kvstore.Record {
	row := kvstore.Record{}
	for key, value := range payload {
		if match := cellKey.FindStringSubmatch(key); match != nil {
			row[match[1]] = value
		}
	}
	return row
}

// CellText renders a record value for display in a table cell.
func CellText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return strings.TrimSpace(string(encoded))
	}
}

// Cells renders a row in data field order.
func Cells(row kvstore.Record, fields []string) []string {
	out := make([]string, len(fields))
	for i, field := range fields {
		out[i] = CellText(row[field])
	}
	return out
}
