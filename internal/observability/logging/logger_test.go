package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestJSONLoggerTagsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "dermafusion-api", "warn")

	logger.Info("diagnosis_started")
	logger.Warn("generative_backend_failed", "provider", "gemini")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected only the warn record, got %d lines: %s", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["service"] != "dermafusion-api" || record["msg"] != "generative_backend_failed" || record["provider"] != "gemini" {
		t.Fatalf("unexpected record %v", record)
	}
}
