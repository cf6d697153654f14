package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable. It does not touch the
// filesystem; see ValidatePaths for the directory checks run at start-up.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateRuntime(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.InboxDir == "" {
		return errors.New("paths.inbox_dir must be set (or set INBOX_PATH)")
	}
	if c.Paths.OutputRoot == "" {
		return errors.New("paths.output_root must be set (or set TARGET_ROOT)")
	}
	if c.Paths.InboxDir == c.Paths.OutputRoot {
		return errors.New("paths.inbox_dir and paths.output_root must differ")
	}
	if isWithin(c.Paths.OutputRoot, c.Paths.InboxDir) {
		return errors.New("paths.output_root must not be inside paths.inbox_dir")
	}
	if isWithin(c.Paths.InboxDir, c.Paths.OutputRoot) {
		return errors.New("paths.inbox_dir must not be inside paths.output_root")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.API {
	case APIOllama, APIOpenAI:
	default:
		return fmt.Errorf("classifier.api: unsupported value %q (want %q or %q)", c.Classifier.API, APIOllama, APIOpenAI)
	}
	if c.Classifier.BaseURL == "" {
		return errors.New("classifier.base_url must be set (or set OLLAMA_URL)")
	}
	parsed, err := url.Parse(c.Classifier.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("classifier.base_url: expected an http(s) URL, got %q", c.Classifier.BaseURL)
	}
	if c.Classifier.Model == "" {
		return errors.New("classifier.model must be set (or set MODEL_NAME)")
	}
	return ensurePositiveMap(map[string]int{
		"classifier.timeout_seconds":    c.Classifier.TimeoutSeconds,
		"classifier.retry_max_attempts": c.Classifier.RetryMaxAttempts,
		"classifier.preview_length":     c.Classifier.PreviewLength,
	})
}

func (c *Config) validateExtraction() error {
	if c.Extraction.MinContentLength < 0 {
		return errors.New("extraction.min_content_length must be >= 0")
	}
	if c.Extraction.MaxPages < 0 {
		return errors.New("extraction.max_pages must be >= 0")
	}
	if c.Extraction.OCRDPI <= 0 {
		return errors.New("extraction.ocr_dpi must be positive")
	}
	return nil
}

func (c *Config) validateRuntime() error {
	if c.Watcher.StabilizationDelaySeconds < 0 {
		return errors.New("watcher.stabilization_delay_seconds must be >= 0")
	}
	if c.Pipeline.ShutdownGraceSeconds < 0 {
		return errors.New("pipeline.shutdown_grace_seconds must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"pipeline.queue_size": c.Pipeline.QueueSize,
		"pipeline.workers":    c.Pipeline.Workers,
	})
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

// ValidatePaths checks that the parent of each configured directory exists so
// EnsureDirectories will not silently build a tree somewhere unexpected.
func (c *Config) ValidatePaths() error {
	for _, entry := range []struct {
		key  string
		path string
	}{
		{"paths.inbox_dir", c.Paths.InboxDir},
		{"paths.output_root", c.Paths.OutputRoot},
	} {
		parent := filepath.Dir(entry.path)
		info, err := os.Stat(parent)
		if err != nil {
			return fmt.Errorf("%s: parent directory %q does not exist", entry.key, parent)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: parent %q is not a directory", entry.key, parent)
		}
		if info, err := os.Stat(entry.path); err == nil && !info.IsDir() {
			return fmt.Errorf("%s: %q exists but is not a directory", entry.key, entry.path)
		}
	}
	return nil
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
