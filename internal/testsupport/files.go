package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// WriteCSV writes the given lines joined by newlines to path, creating parent
// directories as needed.
func WriteCSV(t testing.TB, path string, lines ...string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// GenerateCSV builds a CSV document with a header of fields and n rows whose
// values are derived from the row index.
func GenerateCSV(fields []string, n int) string {
	var b strings.Builder
	b.WriteString(strings.Join(fields, ","))
	for i := range n {
		b.WriteByte('\n')
		for j, field := range fields {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(field)
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(i))
		}
	}
	b.WriteByte('\n')
	return b.String()
}
