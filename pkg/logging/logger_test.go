package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerIncludesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:       LevelDebug,
		ServiceName: "intake-test",
		Environment: "test",
		JSONFormat:  true,
		Output:      &buf,
	})

	log.Info("hello", F("intake_id", "abc-123"), F("attempt", 2))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v\n%s", err, buf.String())
	}

	if entry["service_name"] != "intake-test" {
		t.Errorf("expected service_name intake-test, got %v", entry["service_name"])
	}
	if entry["intake_id"] != "abc-123" {
		t.Errorf("expected intake_id abc-123, got %v", entry["intake_id"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("expected attempt 2, got %v", entry["attempt"])
	}
	if entry["message"] != "hello" {
		t.Errorf("expected message hello, got %v", entry["message"])
	}
}

func TestWithAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelInfo,
		JSONFormat: true,
		Output:     &buf,
	})

	child := log.With(F("component", "pipeline"))
	child.Info("processing")

	if !strings.Contains(buf.String(), `"component":"pipeline"`) {
		t.Errorf("expected component field in output: %s", buf.String())
	}
}

func TestWithContextExtractsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelInfo,
		JSONFormat: true,
		Output:     &buf,
	})

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	log.WithContext(ctx).Info("handled")

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("expected request_id in output: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelError,
		JSONFormat: true,
		Output:     &buf,
	})

	log.Debug("quiet")
	log.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("expected no output below error level, got: %s", buf.String())
	}

	log.Error("loud")
	if buf.Len() == 0 {
		t.Error("expected error level output")
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	log := NewNopLogger()
	// Must not panic and must keep returning a usable logger.
	log.With(F("k", "v")).WithContext(context.Background()).Error("ignored", Err(nil))
}
