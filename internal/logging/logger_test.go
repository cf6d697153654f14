package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docsorter/internal/config"
	"docsorter/internal/logging"
	"docsorter/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogFile = filepath.Join(t.TempDir(), "logs", "docsorter.log")

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("sorter started")

	if got := readLog(t, cfg.Paths.LogFile); !strings.Contains(got, "sorter started") {
		t.Fatalf("expected message in log file, got %q", got)
	}
}

func TestConsoleLoggerFormatsComponentAndSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithFile(context.Background(), "/inbox/scan1.pdf")
	ctx = services.WithStage(ctx, "extract")
	componentLogger := logging.NewComponentLogger(logger, "pipeline")
	logging.WithContext(ctx, componentLogger).Info("text extracted", logging.Int("chars", 120))

	got := readLog(t, logPath)
	for _, fragment := range []string{"INFO", "[pipeline]", "scan1.pdf (extract)", "text extracted", "chars=120"} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("expected %q in %q", fragment, got)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("expected no ANSI colour for file output, got %q", got)
	}
	if strings.Contains(got, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", got)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("message with caller")

	if got := readLog(t, logPath); !strings.Contains(got, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", got)
	}
}

func TestConsoleLoggerForcedColour(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "colour.log")
	on := true
	logger, err := logging.New(logging.Options{
		Format:      "console",
		OutputPaths: []string{logPath},
		Color:       &on,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("careful")

	if got := readLog(t, logPath); !strings.Contains(got, "\x1b[33mWARN") {
		t.Fatalf("expected coloured level, got %q", got)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("placed", logging.String("category", "Invoices"), logging.Bytes("size", 2048))

	var record map[string]any
	line := strings.TrimSpace(readLog(t, logPath))
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("decode json log line %q: %v", line, err)
	}
	if record["msg"] != "placed" || record["level"] != "info" {
		t.Fatalf("unexpected record %#v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %#v", record)
	}
	if record["size"] != "2.0 kB" {
		t.Fatalf("expected humanized size, got %#v", record["size"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "ocr unavailable", "ocr_engine_missing",
		logging.String(logging.FieldErrorHint, "install tesseract"))

	got := readLog(t, logPath)
	for _, fragment := range []string{`"event_type":"ocr_engine_missing"`, `"error_hint":"install tesseract"`, `"impact":`} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("expected %s in %q", fragment, got)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("nop logger should not be enabled")
	}
	logging.NewComponentLogger(nil, "watcher").Info("ignored")
}
