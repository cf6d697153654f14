package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"docsorter/internal/language"
)

// applyEnv lets the classic environment variables override file values.
func (c *Config) applyEnv() error {
	stringVars := []struct {
		name   string
		target *string
	}{
		{"INBOX_PATH", &c.Paths.InboxDir},
		{"TARGET_ROOT", &c.Paths.OutputRoot},
		{"LOG_FILE", &c.Paths.LogFile},
		{"OLLAMA_URL", &c.Classifier.BaseURL},
		{"MODEL_NAME", &c.Classifier.Model},
		{"CLASSIFIER_API_KEY", &c.Classifier.APIKey},
		{"OCR_LANGUAGES", &c.Extraction.OCRLanguages},
		{"LOG_LEVEL", &c.Logging.Level},
		{"NTFY_TOPIC", &c.Notifications.NtfyTopic},
	}
	for _, v := range stringVars {
		if value, ok := os.LookupEnv(v.name); ok && strings.TrimSpace(value) != "" {
			*v.target = strings.TrimSpace(value)
		}
	}

	intVars := []struct {
		name   string
		target *int
	}{
		{"MIN_CONTENT_LENGTH", &c.Extraction.MinContentLength},
		{"CONTENT_PREVIEW_LENGTH", &c.Classifier.PreviewLength},
	}
	for _, v := range intVars {
		value, ok := os.LookupEnv(v.name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: expected integer, got %q", v.name, value)
		}
		*v.target = parsed
	}

	if value, ok := os.LookupEnv("FILE_STABILIZATION_DELAY"); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("FILE_STABILIZATION_DELAY: expected seconds, got %q", value)
		}
		c.Watcher.StabilizationDelaySeconds = parsed
	}
	return nil
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeClassifier()
	c.normalizeExtraction()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InboxDir, err = expandPath(strings.TrimSpace(c.Paths.InboxDir)); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if c.Paths.OutputRoot, err = expandPath(strings.TrimSpace(c.Paths.OutputRoot)); err != nil {
		return fmt.Errorf("paths.output_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogFile, err = expandPath(strings.TrimSpace(c.Paths.LogFile)); err != nil {
		return fmt.Errorf("paths.log_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeClassifier() {
	c.Classifier.API = strings.ToLower(strings.TrimSpace(c.Classifier.API))
	if c.Classifier.API == "" {
		c.Classifier.API = defaultClassifierAPI
	}
	base := strings.TrimSpace(c.Classifier.BaseURL)
	base = strings.TrimRight(base, "/")
	// Older setups point straight at the generate endpoint.
	base = strings.TrimSuffix(base, "/api/generate")
	base = strings.TrimSuffix(base, "/chat/completions")
	if base == "" && c.Classifier.API == APIOllama {
		base = defaultOllamaBaseURL
	}
	c.Classifier.BaseURL = base
	c.Classifier.Model = strings.TrimSpace(c.Classifier.Model)
	c.Classifier.APIKey = strings.TrimSpace(c.Classifier.APIKey)
}

func (c *Config) normalizeExtraction() {
	c.Extraction.OCRLanguages = language.TesseractSelection(c.Extraction.OCRLanguages)
	if c.Extraction.OCRLanguages == "" {
		c.Extraction.OCRLanguages = defaultOCRLanguages
	}
	c.Extraction.PdftoppmBinary = strings.TrimSpace(c.Extraction.PdftoppmBinary)
	if c.Extraction.PdftoppmBinary == "" {
		c.Extraction.PdftoppmBinary = defaultPdftoppmBinary
	}
	c.Extraction.TesseractBinary = strings.TrimSpace(c.Extraction.TesseractBinary)
	if c.Extraction.TesseractBinary == "" {
		c.Extraction.TesseractBinary = defaultTesseractBinary
	}
	c.Extraction.TessdataDir = strings.TrimSpace(c.Extraction.TessdataDir)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "":
		c.Logging.Level = defaultLogLevel
	case "warning":
		c.Logging.Level = "warn"
	case "critical":
		c.Logging.Level = "error"
	}
}
