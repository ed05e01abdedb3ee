package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Operation names used by FakeSplunk for call recording and failure injection.
const (
	OpList      = "list"
	OpGet       = "get"
	OpUpdate    = "update"
	OpInsert    = "insert"
	OpDelete    = "delete"
	OpBatchSave = "batch_save"
	OpConfig    = "config"
	OpBackup    = "backup"
	OpRestore   = "restore"
)

// Call records one request handled by FakeSplunk.
type Call struct {
	Op         string
	Method     string
	Collection string
	Key        string
	Documents  int
	Search     string
	Header     http.Header
}

type failure struct {
	status  int
	message string
}

// FakeSplunk is an in-memory splunkd serving the KV Store data, config and
// oneshot search endpoints.
type FakeSplunk struct {
	Token   string
	FormKey string

	server *httptest.Server

	mu          sync.Mutex
	collections map[string][]map[string]any
	fields      map[string][]string
	lookups     map[string]string
	backups     map[string][]map[string]any
	failures    map[string][]failure
	calls       []Call
	nextKey     int
}

var lookupSearch = regexp.MustCompile(`^\|\s*inputlookup\s+(\S+)\s*\|\s*outputlookup\s+(\S+)\s*$`)

// NewFakeSplunk starts a fake splunkd and closes it when the test ends.
func NewFakeSplunk(t testing.TB) *FakeSplunk {
	t.Helper()

	fake := &FakeSplunk{
		Token:       "test-token",
		FormKey:     "form-key",
		collections: map[string][]map[string]any{},
		fields:      map[string][]string{},
		lookups:     map[string]string{},
		backups:     map[string][]map[string]any{},
		failures:    map[string][]failure{},
	}
	fake.server = httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(fake.server.Close)
	return fake
}

// URL returns the management endpoint base URL.
func (f *FakeSplunk) URL() string {
	return f.server.URL
}

// Seed appends rows to a collection, assigning keys where missing.
func (f *FakeSplunk) Seed(collection string, rows ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		f.upsertLocked(collection, row)
	}
}

// Rows returns a copy of the documents stored in a collection.
func (f *FakeSplunk) Rows(collection string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRows(f.collections[collection])
}

// SetFields declares field.<name> entries in the collection config.
func (f *FakeSplunk) SetFields(collection string, fields ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[collection] = fields
}

// MapLookup registers lookup as the lookup definition backed by collection.
func (f *FakeSplunk) MapLookup(lookup, collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[lookup] = collection
}

// Backup returns the rows stored in the backup CSV of lookup.
func (f *FakeSplunk) Backup(lookup string) ([]map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.backups[lookup]
	return cloneRows(rows), ok
}

// Fail makes the next call of op fail. For searches (backup, restore) a
// status of 200 answers with an ERROR message instead of an HTTP error.
// Failures queue up: calling Fail twice fails the next two calls.
func (f *FakeSplunk) Fail(op string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], failure{status: status, message: message})
}

// FailAfter lets n calls of op succeed and fails the one after.
func (f *FakeSplunk) FailAfter(op string, n int, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := make([]failure, 0, n+1)
	for range n {
		queue = append(queue, failure{})
	}
	f.failures[op] = append(queue, failure{status: status, message: "injected failure"})
}

// Calls returns every recorded call in order.
func (f *FakeSplunk) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Ops returns the recorded operation names in order.
func (f *FakeSplunk) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, call.Op)
	}
	return out
}

// Count returns how many calls of op were recorded.
func (f *FakeSplunk) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if call.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the recorded calls.
func (f *FakeSplunk) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeSplunk) serve(w http.ResponseWriter, r *http.Request) {
	if f.Token != "" && r.Header.Get("Authorization") != "Bearer "+f.Token {
		writeMessages(w, http.StatusUnauthorized, "ERROR", "call not properly authenticated")
		return
	}
	if f.FormKey != "" && r.Method != http.MethodGet && r.Header.Get("X-Splunk-Form-Key") != f.FormKey {
		writeMessages(w, http.StatusUnauthorized, "ERROR", "form key mismatch")
		return
	}

	segments, err := splitPath(r.URL.EscapedPath())
	if err != nil || len(segments) < 4 || segments[0] != "servicesNS" {
		writeMessages(w, http.StatusNotFound, "ERROR", "unknown endpoint")
		return
	}
	rest := segments[3:]

	switch {
	case len(rest) == 2 && rest[0] == "search" && rest[1] == "jobs" && r.Method == http.MethodPost:
		f.serveSearch(w, r)
	case len(rest) == 4 && rest[0] == "storage" && rest[1] == "collections" && rest[2] == "config":
		f.serveConfig(w, r, rest[3])
	case len(rest) >= 4 && rest[0] == "storage" && rest[1] == "collections" && rest[2] == "data":
		f.serveData(w, r, rest[3], rest[4:])
	default:
		writeMessages(w, http.StatusNotFound, "ERROR", "unknown endpoint")
	}
}

func (f *FakeSplunk) serveData(w http.ResponseWriter, r *http.Request, collection string, tail []string) {
	switch {
	case len(tail) == 0 && r.Method == http.MethodGet:
		if f.record(w, Call{Op: OpList, Method: r.Method, Collection: collection, Header: r.Header.Clone()}) {
			return
		}
		f.mu.Lock()
		rows := listRows(f.collections[collection], r.URL.Query())
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, rows)

	case len(tail) == 0 && r.Method == http.MethodDelete:
		if f.record(w, Call{Op: OpDelete, Method: r.Method, Collection: collection, Header: r.Header.Clone()}) {
			return
		}
		f.mu.Lock()
		f.collections[collection] = nil
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)

	case len(tail) == 0 && r.Method == http.MethodPost:
		var row map[string]any
		if !decodeBody(w, r, &row) {
			return
		}
		if f.record(w, Call{Op: OpInsert, Method: r.Method, Collection: collection, Documents: 1, Header: r.Header.Clone()}) {
			return
		}
		f.mu.Lock()
		key := f.upsertLocked(collection, row)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]string{"_key": key})

	case len(tail) == 1 && tail[0] == "batch_save" && r.Method == http.MethodPost:
		var rows []map[string]any
		if !decodeBody(w, r, &rows) {
			return
		}
		if f.record(w, Call{Op: OpBatchSave, Method: r.Method, Collection: collection, Documents: len(rows), Header: r.Header.Clone()}) {
			return
		}
		f.mu.Lock()
		keys := make([]string, 0, len(rows))
		for _, row := range rows {
			keys = append(keys, f.upsertLocked(collection, row))
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, keys)

	case len(tail) == 1 && r.Method == http.MethodGet:
		if f.record(w, Call{Op: OpGet, Method: r.Method, Collection: collection, Key: tail[0], Header: r.Header.Clone()}) {
			return
		}
		f.mu.Lock()
		idx := indexOf(f.collections[collection], tail[0])
		var row map[string]any
		if idx >= 0 {
			row = cloneRow(f.collections[collection][idx])
		}
		f.mu.Unlock()
		if row == nil {
			writeMessages(w, http.StatusNotFound, "ERROR", "Could not find object.")
			return
		}
		writeJSON(w, http.StatusOK, row)

	case len(tail) == 1 && r.Method == http.MethodPost:
		var row map[string]any
		if !decodeBody(w, r, &row) {
			return
		}
		if f.record(w, Call{Op: OpUpdate, Method: r.Method, Collection: collection, Key: tail[0], Documents: 1, Header: r.Header.Clone()}) {
			return
		}
		f.mu.Lock()
		idx := indexOf(f.collections[collection], tail[0])
		if idx >= 0 {
			row["_key"] = tail[0]
			f.upsertLocked(collection, row)
		}
		f.mu.Unlock()
		if idx < 0 {
			writeMessages(w, http.StatusNotFound, "ERROR", "Could not find object.")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"_key": tail[0]})

	default:
		writeMessages(w, http.StatusMethodNotAllowed, "ERROR", "method not allowed")
	}
}

func (f *FakeSplunk) serveConfig(w http.ResponseWriter, r *http.Request, collection string) {
	if f.record(w, Call{Op: OpConfig, Method: r.Method, Collection: collection, Header: r.Header.Clone()}) {
		return
	}
	f.mu.Lock()
	fields, ok := f.fields[collection]
	_, hasData := f.collections[collection]
	f.mu.Unlock()
	if !ok && !hasData {
		writeMessages(w, http.StatusNotFound, "ERROR", fmt.Sprintf("Could not find object id=%s", collection))
		return
	}
	content := map[string]any{"disabled": false}
	for _, field := range fields {
		content["field."+field] = "string"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry": []map[string]any{{"name": collection, "content": content}},
	})
}

func (f *FakeSplunk) serveSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeMessages(w, http.StatusBadRequest, "ERROR", err.Error())
		return
	}
	search := r.PostForm.Get("search")
	match := lookupSearch.FindStringSubmatch(strings.TrimSpace(search))
	if match == nil {
		writeMessages(w, http.StatusBadRequest, "ERROR", "unsupported search")
		return
	}
	source, target := match[1], match[2]
	op := OpBackup
	if strings.HasSuffix(source, ".bak.csv") {
		op = OpRestore
	}
	if f.record(w, Call{Op: op, Method: r.Method, Search: search, Header: r.Header.Clone()}) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if op == OpBackup {
		collection, ok := f.lookups[source]
		if !ok {
			writeMessages(w, http.StatusOK, "ERROR", fmt.Sprintf("The lookup table '%s' does not exist or is not available.", source))
			return
		}
		f.backups[source] = cloneRows(f.collections[collection])
		writeJSON(w, http.StatusOK, map[string]any{"messages": []any{}, "results": []any{}})
		return
	}

	lookup := strings.TrimSuffix(source, ".bak.csv")
	collection, ok := f.lookups[target]
	rows, hasBackup := f.backups[lookup]
	if !ok || !hasBackup {
		writeMessages(w, http.StatusOK, "ERROR", fmt.Sprintf("The lookup table '%s' does not exist or is not available.", source))
		return
	}
	f.collections[collection] = cloneRows(rows)
	writeJSON(w, http.StatusOK, map[string]any{"messages": []any{}, "results": []any{}})
}

// record stores the call and reports whether an injected failure was written.
func (f *FakeSplunk) record(w http.ResponseWriter, call Call) bool {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	var injected *failure
	if queue := f.failures[call.Op]; len(queue) > 0 {
		next := queue[0]
		f.failures[call.Op] = queue[1:]
		if next.status != 0 {
			injected = &next
		}
	}
	f.mu.Unlock()

	if injected == nil {
		return false
	}
	message := injected.message
	if message == "" {
		message = "injected failure"
	}
	writeMessages(w, injected.status, "ERROR", message)
	return true
}

func (f *FakeSplunk) upsertLocked(collection string, row map[string]any) string {
	doc := cloneRow(row)
	key, _ := doc["_key"].(string)
	if key == "" {
		f.nextKey++
		key = fmt.Sprintf("%024x", f.nextKey)
		doc["_key"] = key
	}
	if _, ok := doc["_user"]; !ok {
		doc["_user"] = "nobody"
	}
	rows := f.collections[collection]
	if idx := indexOf(rows, key); idx >= 0 {
		rows[idx] = doc
	} else {
		rows = append(rows, doc)
	}
	f.collections[collection] = rows
	return key
}

func listRows(rows []map[string]any, query url.Values) []map[string]any {
	out := cloneRows(rows)
	if order := query.Get("sort"); order != "" {
		field, dir, _ := strings.Cut(order, ":")
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][field]), fmt.Sprint(out[j][field])
			if dir == "-1" {
				return a > b
			}
			return a < b
		})
	}
	if skip, err := strconv.Atoi(query.Get("skip")); err == nil && skip > 0 {
		if skip >= len(out) {
			out = out[:0]
		} else {
			out = out[skip:]
		}
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	if fields := query.Get("fields"); fields != "" {
		keep := strings.Split(fields, ",")
		for i, row := range out {
			projected := map[string]any{}
			for _, field := range keep {
				if value, ok := row[field]; ok {
					projected[field] = value
				}
			}
			out[i] = projected
		}
	}
	return out
}

func indexOf(rows []map[string]any, key string) int {
	for i, row := range rows {
		if row["_key"] == key {
			return i
		}
	}
	return -1
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func cloneRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, cloneRow(row))
	}
	return out
}

func splitPath(escaped string) ([]string, error) {
	parts := strings.Split(strings.Trim(escaped, "/"), "/")
	for i, part := range parts {
		unescaped, err := url.PathUnescape(part)
		if err != nil {
			return nil, err
		}
		parts[i] = unescaped
	}
	return parts, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeMessages(w, http.StatusBadRequest, "ERROR", err.Error())
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		writeMessages(w, http.StatusBadRequest, "ERROR", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessages(w http.ResponseWriter, status int, kind, text string) {
	writeJSON(w, status, map[string]any{
		"messages": []map[string]string{{"type": kind, "text": text}},
	})
}
