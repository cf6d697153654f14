package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"docsorter/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"INBOX_PATH", "TARGET_ROOT", "LOG_FILE", "OLLAMA_URL", "MODEL_NAME", "CLASSIFIER_API_KEY",
		"OCR_LANGUAGES", "LOG_LEVEL", "MIN_CONTENT_LENGTH", "CONTENT_PREVIEW_LENGTH", "FILE_STABILIZATION_DELAY", "NTFY_TOPIC",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, "Documents", "Inbox_Scan"); cfg.Paths.InboxDir != want {
		t.Fatalf("unexpected inbox dir: got %q want %q", cfg.Paths.InboxDir, want)
	}
	if want := filepath.Join(tempHome, "Documents", "Sorted_Documents"); cfg.Paths.OutputRoot != want {
		t.Fatalf("unexpected output root: got %q want %q", cfg.Paths.OutputRoot, want)
	}
	if cfg.Classifier.BaseURL != "http://localhost:11434" || cfg.Classifier.Model != "llama3.2" {
		t.Fatalf("unexpected classifier defaults: %+v", cfg.Classifier)
	}
	if cfg.Extraction.MinContentLength != 50 {
		t.Fatalf("expected min content length 50, got %d", cfg.Extraction.MinContentLength)
	}
	if cfg.Extraction.OCRLanguages != "deu+eng" {
		t.Fatalf("unexpected OCR languages %q", cfg.Extraction.OCRLanguages)
	}
	if cfg.StabilizationDelay() != 2*time.Second {
		t.Fatalf("unexpected stabilization delay %s", cfg.StabilizationDelay())
	}
	if cfg.Classifier.PreviewLength != 2000 {
		t.Fatalf("unexpected preview length %d", cfg.Classifier.PreviewLength)
	}
	if cfg.LockPath() != filepath.Join(tempHome, ".local", "share", "docsorter", "docsorter.lock") {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
}

func TestLoadReadsTOMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "docsorter.toml")
	content := `
[paths]
inbox_dir = "` + filepath.Join(dir, "in") + `"
output_root = "` + filepath.Join(dir, "out") + `"

[classifier]
api = "OpenAI"
base_url = "https://llm.example.com/v1/chat/completions"
model = "gpt-4o-mini"

[watcher]
stabilization_delay_seconds = 0.5

[logging]
level = "WARNING"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected file to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Classifier.API != config.APIOpenAI {
		t.Fatalf("expected api normalized to openai, got %q", cfg.Classifier.API)
	}
	if cfg.Classifier.BaseURL != "https://llm.example.com/v1" {
		t.Fatalf("expected endpoint suffix stripped, got %q", cfg.Classifier.BaseURL)
	}
	if cfg.StabilizationDelay() != 500*time.Millisecond {
		t.Fatalf("unexpected delay %s", cfg.StabilizationDelay())
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected warning mapped to warn, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[paths]\ninbox = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("INBOX_PATH", filepath.Join(dir, "scans"))
	t.Setenv("TARGET_ROOT", filepath.Join(dir, "sorted"))
	t.Setenv("OLLAMA_URL", "http://ollama.lan:11434/api/generate")
	t.Setenv("MODEL_NAME", "mistral")
	t.Setenv("MIN_CONTENT_LENGTH", "120")
	t.Setenv("FILE_STABILIZATION_DELAY", "1.5")
	t.Setenv("CONTENT_PREVIEW_LENGTH", "500")
	t.Setenv("OCR_LANGUAGES", "de, en, fr")

	cfg, _, _, err := config.Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.InboxDir != filepath.Join(dir, "scans") || cfg.Paths.OutputRoot != filepath.Join(dir, "sorted") {
		t.Fatalf("unexpected paths %+v", cfg.Paths)
	}
	if cfg.Classifier.BaseURL != "http://ollama.lan:11434" {
		t.Fatalf("expected generate suffix stripped, got %q", cfg.Classifier.BaseURL)
	}
	if cfg.Classifier.Model != "mistral" || cfg.Classifier.PreviewLength != 500 {
		t.Fatalf("unexpected classifier %+v", cfg.Classifier)
	}
	if cfg.Extraction.MinContentLength != 120 {
		t.Fatalf("unexpected min length %d", cfg.Extraction.MinContentLength)
	}
	if cfg.StabilizationDelay() != 1500*time.Millisecond {
		t.Fatalf("unexpected delay %s", cfg.StabilizationDelay())
	}
	if cfg.Extraction.OCRLanguages != "deu+eng+fra" {
		t.Fatalf("expected language codes mapped for tesseract, got %q", cfg.Extraction.OCRLanguages)
	}
}

func TestEnvironmentRejectsMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MIN_CONTENT_LENGTH", "lots")
	if _, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"same dirs", func(c *config.Config) { c.Paths.OutputRoot = c.Paths.InboxDir }, "must differ"},
		{"nested output", func(c *config.Config) { c.Paths.OutputRoot = filepath.Join(c.Paths.InboxDir, "sorted") }, "inside paths.inbox_dir"},
		{"nested inbox", func(c *config.Config) { c.Paths.InboxDir = filepath.Join(c.Paths.OutputRoot, "in") }, "inside paths.output_root"},
		{"bad api", func(c *config.Config) { c.Classifier.API = "grpc" }, "classifier.api"},
		{"bad url", func(c *config.Config) { c.Classifier.BaseURL = "localhost" }, "classifier.base_url"},
		{"no model", func(c *config.Config) { c.Classifier.Model = "" }, "classifier.model"},
		{"zero preview", func(c *config.Config) { c.Classifier.PreviewLength = 0 }, "classifier.preview_length"},
		{"negative min length", func(c *config.Config) { c.Extraction.MinContentLength = -1 }, "min_content_length"},
		{"negative delay", func(c *config.Config) { c.Watcher.StabilizationDelaySeconds = -1 }, "stabilization_delay"},
		{"zero workers", func(c *config.Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"bad ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" }, "notifications.ntfy_topic"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.InboxDir = "/srv/inbox"
			cfg.Paths.OutputRoot = "/srv/sorted"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestValidatePathsRequiresExistingParents(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboxDir = filepath.Join(dir, "inbox")
	cfg.Paths.OutputRoot = filepath.Join(dir, "missing", "sorted")
	if err := cfg.ValidatePaths(); err == nil || !strings.Contains(err.Error(), "paths.output_root") {
		t.Fatalf("expected output_root parent error, got %v", err)
	}

	cfg.Paths.OutputRoot = filepath.Join(dir, "sorted")
	if err := cfg.ValidatePaths(); err != nil {
		t.Fatalf("expected valid paths, got %v", err)
	}

	if err := os.WriteFile(cfg.Paths.InboxDir, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cfg.ValidatePaths(); err == nil {
		t.Fatal("expected error when inbox is a file")
	}
}

func TestEnsureDirectoriesCreatesTree(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboxDir = filepath.Join(dir, "inbox")
	cfg.Paths.OutputRoot = filepath.Join(dir, "sorted")
	cfg.Paths.StateDir = filepath.Join(dir, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, p := range []string{cfg.Paths.InboxDir, cfg.Paths.OutputRoot, cfg.Paths.StateDir} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", p, err)
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories should be idempotent: %v", err)
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	cfg := config.Default()
	out, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(out, "inbox_dir") || !strings.Contains(out, "[classifier]") {
		t.Fatalf("unexpected encoding %q", out)
	}
}
