package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// HistoryDBPath returns a history database path under a fresh temp
// directory. Extra elements become intermediate directories that do not
// exist yet.
func HistoryDBPath(t *testing.T, dirs ...string) string {
	t.Helper()
	root, err := os.MkdirTemp("", "questchat-test-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(root) })
	return filepath.Join(append(append([]string{root}, dirs...), "history.db")...)
}

// JSONMarshal encodes v or fails the test
func JSONMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %T: %v", v, err)
	}
	return data
}

// DecodeJSONLines decodes one JSON value of type T per non-blank line
func DecodeJSONLines[T any](t *testing.T, data []byte) []T {
	t.Helper()
	var out []T
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			t.Fatalf("line %d is not valid JSON: %v\n%s", n, err, line)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan lines: %v", err)
	}
	return out
}
