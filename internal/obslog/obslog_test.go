package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceRestores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	L().Info("match_create", zap.String("match_id", "m1"))
	restore()
	L().Info("after_restore")

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "match_create" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].ContextMap()["match_id"] != "m1" {
		t.Fatalf("missing field: %+v", entries[0].ContextMap())
	}
}

func TestInitFromEnvWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "duo.log")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_FORMAT", "json")

	prev := L()
	t.Cleanup(func() { globalLogger = prev })

	if err := InitFromEnv("duo-test"); err != nil {
		t.Fatalf("InitFromEnv: %v", err)
	}
	L().Info("reaper_run")
	Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"service":"duo-test"`) || !strings.Contains(string(raw), "reaper_run") {
		t.Fatalf("unexpected log content: %s", raw)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != zapcore.WarnLevel || parseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("unexpected level parsing")
	}
}
