package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"kvedit/internal/logging"
)

// ListOptions narrows a collection listing.
type ListOptions struct {
	Limit  int
	Skip   int
	Sort   string
	Fields []string
	Query  string
}

func (o ListOptions) values() url.Values {
	values := url.Values{}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Skip > 0 {
		values.Set("skip", strconv.Itoa(o.Skip))
	}
	if order := strings.TrimSpace(o.Sort); order != "" {
		values.Set("sort", order)
	}
	if len(o.Fields) > 0 {
		values.Set("fields", strings.Join(o.Fields, ","))
	}
	if query := strings.TrimSpace(o.Query); query != "" {
		values.Set("query", query)
	}
	return values
}

type keyResponse struct {
	Key string `json:"_key"`
}

func dataPath(collection string, extra ...string) []string {
	return append([]string{"storage", "collections", "data", collection}, extra...)
}

func requireCollection(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return errors.New("kvstore: collection is required")
	}
	return nil
}

// ListEntries returns the documents of a collection.
func (c *Client) ListEntries(ctx context.Context, collection string, opts ListOptions) ([]Record, error) {
	if err := requireCollection(collection); err != nil {
		return nil, err
	}
	var out []Record
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(opts.values(), dataPath(collection)...), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// CountEntries returns the number of documents in a collection.
func (c *Client) CountEntries(ctx context.Context, collection string) (int, error) {
	keys, err := c.ListEntries(ctx, collection, ListOptions{Fields: []string{KeyField}})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// GetEntry fetches one document by key.
func (c *Client) GetEntry(ctx context.Context, collection, key string) (Record, error) {
	if err := requireCollection(collection); err != nil {
		return nil, err
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("kvstore: key is required")
	}
	var out Record
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, dataPath(collection, key)...), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEntry replaces the document stored under key and returns its key.
func (c *Client) UpdateEntry(ctx context.Context, collection, key string, record Record) (string, error) {
	if err := requireCollection(collection); err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("kvstore: key is required")
	}
	var out keyResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, dataPath(collection, key)...), record, &out); err != nil {
		return "", err
	}
	if out.Key == "" {
		out.Key = key
	}
	return out.Key, nil
}

// InsertEntry adds a document and returns the key splunkd assigned.
func (c *Client) InsertEntry(ctx context.Context, collection string, record Record) (string, error) {
	if err := requireCollection(collection); err != nil {
		return "", err
	}
	var out keyResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, dataPath(collection)...), record, &out); err != nil {
		return "", err
	}
	return out.Key, nil
}

// DeleteAll removes every document of a collection.
func (c *Client) DeleteAll(ctx context.Context, collection string) error {
	if err := requireCollection(collection); err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodDelete, c.endpoint(nil, dataPath(collection)...), nil, nil)
}

// BatchSave writes records with a single batch_save call. Documents carrying
// an existing _key are replaced.
func (c *Client) BatchSave(ctx context.Context, collection string, batch []Record) ([]string, error) {
	if err := requireCollection(collection); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}
	var keys []string
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, dataPath(collection, "batch_save")...), batch, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// BatchSaveAll writes records in sequential batch_save calls of at most
// batchSize documents. It stops at the first failing batch and returns the
// keys written so far.
func (c *Client) BatchSaveAll(ctx context.Context, collection string, rows []Record, batchSize int) ([]string, error) {
	batches := SplitBatches(rows, batchSize)
	keys := make([]string, 0, len(rows))
	for i, batch := range batches {
		saved, err := c.BatchSave(ctx, collection, batch)
		if err != nil {
			return keys, fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err)
		}
		keys = append(keys, saved...)
		c.logger.Debug("batch saved",
			logging.String("collection", collection),
			logging.Int("batch", i+1),
			logging.Int("batches", len(batches)),
			logging.Int("documents", len(batch)),
		)
	}
	return keys, nil
}

// SplitBatches cuts rows into contiguous chunks of at most size records.
func SplitBatches(rows []Record, size int) [][]Record {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(rows) == 0 {
		return nil
	}
	batches := make([][]Record, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batches = append(batches, rows[start:end])
	}
	return batches
}

// CollectionFields returns the field.<name> declarations of a collection
// config, sorted by name.
func (c *Client) CollectionFields(ctx context.Context, collection string) ([]string, error) {
	if err := requireCollection(collection); err != nil {
		return nil, err
	}
	var payload struct {
		Entry []struct {
			Name    string                     `json:"name"`
			Content map[string]json.RawMessage `json:"content"`
		} `json:"entry"`
	}
	endpoint := c.endpoint(nil, "storage", "collections", "config", collection)
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	for _, entry := range payload.Entry {
		if entry.Name != "" && entry.Name != collection {
			continue
		}
		return declaredFields(entry.Content), nil
	}
	return nil, nil
}

func declaredFields(content map[string]json.RawMessage) []string {
	var fields []string
	for name := range content {
		if field, ok := strings.CutPrefix(name, "field."); ok && field != "" {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}
