package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse JSON output %q: %v", buf.String(), err)
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level to be info, got %s", cfg.Level)
	}
	if cfg.ServiceName != "mailtriage" {
		t.Errorf("expected default service name 'mailtriage', got %s", cfg.ServiceName)
	}
	if cfg.JSONFormat {
		t.Error("expected default JSONFormat to be false")
	}
}

func TestNewLogger_NilConfig(t *testing.T) {
	if NewLogger(nil) == nil {
		t.Error("expected non-nil logger with nil config")
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelDebug, ServiceName: "triage-test", JSONFormat: true, Output: buf})

	log.Info("analysis complete", F("fingerprint", "a1b2c3d4e5f60718"), F("score", 65))

	out := decodeLine(t, buf)
	if out["message"] != "analysis complete" {
		t.Errorf("expected message, got %v", out["message"])
	}
	if out["service_name"] != "triage-test" {
		t.Errorf("expected service_name 'triage-test', got %v", out["service_name"])
	}
	if out["fingerprint"] != "a1b2c3d4e5f60718" {
		t.Errorf("expected fingerprint field, got %v", out["fingerprint"])
	}
	if out["score"] != float64(65) {
		t.Errorf("expected score 65, got %v", out["score"])
	}
	if out["level"] != "info" {
		t.Errorf("expected level 'info', got %v", out["level"])
	}
	if _, ok := out["time"]; !ok {
		t.Error("expected timestamp field 'time'")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelWarn, JSONFormat: true, Output: buf})

	log.Debug("hidden")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug/info to be filtered, got %q", buf.String())
	}

	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn entry, got %q", buf.String())
	}
}

func TestLogger_WithFieldsAndComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelDebug, JSONFormat: true, Output: buf}).
		With(Component("intake"), F("remote", "127.0.0.1"))

	log.Error("rejected message", Err(errors.New("parse error: truncated")))

	out := decodeLine(t, buf)
	if out["component"] != "intake" {
		t.Errorf("expected component 'intake', got %v", out["component"])
	}
	if out["remote"] != "127.0.0.1" {
		t.Errorf("expected remote field, got %v", out["remote"])
	}
	if out["error"] != "parse error: truncated" {
		t.Errorf("expected error field, got %v", out["error"])
	}
}

func TestLogger_WithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewLogger(&Config{Level: LevelDebug, JSONFormat: true, Output: buf})

	ctx := context.WithValue(context.Background(), JobIDKey, "job-42")
	ctx = context.WithValue(ctx, SessionIDKey, "sess-7")
	base.WithContext(ctx).Info("processing")

	out := decodeLine(t, buf)
	if out["job_id"] != "job-42" {
		t.Errorf("expected job_id, got %v", out["job_id"])
	}
	if out["session_id"] != "sess-7" {
		t.Errorf("expected session_id, got %v", out["session_id"])
	}

	buf.Reset()
	base.WithContext(context.Background()).Info("no ids")
	out = decodeLine(t, buf)
	if _, ok := out["job_id"]; ok {
		t.Error("expected no job_id for empty context")
	}
}

func TestLogger_FieldTypes(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelDebug, JSONFormat: true, Output: buf})

	log.Info("types",
		F("flag", true),
		F("ratio", 0.5),
		F("big", int64(1<<40)),
		F("took", 1500*time.Millisecond),
		F("files", []string{"a.eml", "b.eml"}),
	)

	out := decodeLine(t, buf)
	if out["flag"] != true {
		t.Errorf("expected flag true, got %v", out["flag"])
	}
	if out["ratio"] != 0.5 {
		t.Errorf("expected ratio 0.5, got %v", out["ratio"])
	}
	if out["big"] != float64(1<<40) {
		t.Errorf("expected big, got %v", out["big"])
	}
	files, ok := out["files"].([]interface{})
	if !ok || len(files) != 2 {
		t.Errorf("expected two files, got %v", out["files"])
	}
}

func TestLogger_ConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelInfo, Output: buf})
	log.Info("console message", F("key", "value"))

	if !strings.Contains(buf.String(), "console message") {
		t.Errorf("expected console output to contain message, got %q", buf.String())
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Error("expected console output, got JSON")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warn ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Info("ignored")
	if log.With(F("a", 1)) != log {
		t.Error("expected nop With to return itself")
	}
	if log.WithContext(context.Background()) != log {
		t.Error("expected nop WithContext to return itself")
	}
}
