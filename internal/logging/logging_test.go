package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"axocore/internal/logging"
)

func TestNewJSONHandlerEmitsParsableJSON(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Output: &buf, JSON: true})

	log.Info("session established", slog.String("user", "alice"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "session established" {
		t.Fatalf("unexpected msg field: %v", entry["msg"])
	}
	if entry["user"] != "alice" {
		t.Fatalf("unexpected user field: %v", entry["user"])
	}
}

func TestNewDefaultHandlerIsDevlog(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Output: &buf})

	log.Info("hello")

	if buf.Len() == 0 {
		t.Fatal("expected devlog handler to write some output")
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatal("expected devlog's human-readable format, not JSON")
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Output: &buf, JSON: true, Level: slog.LevelWarn})

	log.Info("should be filtered out")
	if buf.Len() != 0 {
		t.Fatalf("expected info log below Warn level to be suppressed, got %q", buf.String())
	}

	log.Warn("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected warn log to be emitted")
	}
}
