package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/infra/config"
)

func TestConfigure_JSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	configure(l, &config.AppConfig{LogLevel: "warn", Environment: "production"}, &buf)

	l.WithField("guild_id", "g1").Info("dropped")
	l.WithField("guild_id", "g1").Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 line at warn level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["message"] != "kept" || entry["guild_id"] != "g1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestConfigure_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	configure(l, &config.AppConfig{LogLevel: "chatty", Environment: "development"}, &buf)
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("want info, got %s", l.GetLevel())
	}
	if !strings.Contains(buf.String(), "Invalid log level") {
		t.Fatalf("expected a warning, got %q", buf.String())
	}
}
