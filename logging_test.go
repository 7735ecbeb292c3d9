package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, logFormatJSON, "info")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Debug("hidden")
	log.Info("hello", "capability", "acme")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "hello" || rec["capability"] != "acme" {
		t.Errorf("record = %v", rec)
	}
	if id, _ := rec["run_id"].(string); len(id) != 36 {
		t.Errorf("run_id = %v, want a UUID", rec["run_id"])
	}
}

func TestNewLogger_TextDebug(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, logFormatText, "debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Debug("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
	}{
		{"bad format", "xml", "info"},
		{"bad level", logFormatJSON, "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newLogger(&bytes.Buffer{}, tt.format, tt.level); err == nil {
				t.Error("expected error")
			}
		})
	}
}
