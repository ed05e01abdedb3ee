package records

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"kvedit/internal/kvstore"
)

// DefaultOmitColumns lists columns left out of downloads unless configured otherwise.
var DefaultOmitColumns = []string{"_user"}

// ParseCSV reads a CSV document whose header row names the record fields.
// Every value is kept as a string. Rows shorter than the header leave the
// trailing fields out of the record.
func ParseCSV(r io.Reader) ([]kvstore.Record, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []kvstore.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if isBlankRow(row) {
			continue
		}
		record := make(kvstore.Record, len(header))
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			record[name] = row[i]
		}
		out = append(out, record)
	}
	return out, nil
}

func isBlankRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

// Columns returns the download column order: _key first, then the remaining
// keys of all records in sorted order. Omitted columns are skipped.
func Columns(rows []kvstore.Record, omit []string) []string {
	skip := make(map[string]struct{}, len(omit))
	for _, name := range omit {
		skip[name] = struct{}{}
	}
	seen := map[string]struct{}{}
	hasKey := false
	var rest []string
	for _, row := range rows {
		for name := range row {
			if _, ok := skip[name]; ok {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			if name == kvstore.KeyField {
				hasKey = true
				continue
			}
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	if hasKey {
		return append([]string{kvstore.KeyField}, rest...)
	}
	return rest
}

// FormatCSV renders records as CSV. Column names and string values are
// quoted, numbers and booleans are written bare and missing values are empty.
// When columns is empty the order comes from Columns.
func FormatCSV(rows []kvstore.Record, columns []string, omit []string) ([]byte, error) {
	if len(columns) == 0 {
		columns = Columns(rows, omit)
	}
	var buf bytes.Buffer
	for i, column := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(quote(column))
	}
	for _, row := range rows {
		buf.WriteByte('\n')
		for i, column := range columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			cell, err := formatCell(row[column])
			if err != nil {
				return nil, fmt.Errorf("format column %q: %w", column, err)
			}
			buf.WriteString(cell)
		}
	}
	return buf.Bytes(), nil
}

func quote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func formatCell(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return quote(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return quote(string(encoded)), nil
	}
}
