package obs

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestLogRequestWritesOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	Logger().SetOutput(&buf)
	defer Logger().SetOutput(os.Stdout)

	LogRequest(map[string]any{"method": "GET", "path": "/healthz", "status": 200})

	line := bytes.TrimSpace(buf.Bytes())
	if bytes.ContainsRune(line, '\n') {
		t.Fatalf("expected a single line, got %q", line)
	}
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["method"] != "GET" || entry["path"] != "/healthz" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLogRequestReportsUnmarshalableFields(t *testing.T) {
	var buf bytes.Buffer
	Logger().SetOutput(&buf)
	defer Logger().SetOutput(os.Stdout)

	LogRequest(map[string]any{"bad": func() {}})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("fallback line is not JSON: %v", err)
	}
	if entry["msg"] != "unloggable entry" {
		t.Fatalf("unexpected fallback: %v", entry)
	}
}
