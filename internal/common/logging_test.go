package common

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info", "json")
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("submission created", "submission_id", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not json: %v", err)
	}
	if record["msg"] != "submission created" || record["submission_id"] != float64(7) {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "DEBUG", "text")
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("expected debug record in text output, got %q", buf.String())
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	tests := []struct {
		name, level, format string
	}{
		{name: "unknown level", level: "verbose", format: "text"},
		{name: "unknown format", level: "info", format: "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLogger(&bytes.Buffer{}, tt.level, tt.format); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
