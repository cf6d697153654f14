package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"docsorter/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// OCR binaries point at names that do not exist unless WithStubbedOCR is used,
// and the stabilization delay is shortened for fast watcher tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.Paths.OutputRoot = filepath.Join(base, "sorted")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Classifier.RetryMaxAttempts = 1
	cfgVal.Extraction.PdftoppmBinary = "docsorter-missing-pdftoppm"
	cfgVal.Extraction.TesseractBinary = "docsorter-missing-tesseract"
	cfgVal.Watcher.StabilizationDelaySeconds = 0.01

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithClassifier points the classifier at baseURL.
func WithClassifier(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Classifier.BaseURL = baseURL
	}
}

// WithDirectories creates the inbox, output root and state directory.
func WithDirectories() ConfigOption {
	return func(b *configBuilder) {
		if err := b.cfg.EnsureDirectories(); err != nil {
			b.t.Fatalf("ensure directories: %v", err)
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names into the
// config's bin directory and prepends it to PATH. Each stub exits 0 silently.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		for _, name := range names {
			WriteScript(b.t, filepath.Join(b.binDir(), name), "exit 0\n")
		}
		b.prependPath()
	}
}

// WithStubbedOCR installs a tesseract stub that reports deu and eng language
// packs and prints text for every image, plus a pdftoppm stub that renders
// pages PNG files named like the real tool.
func WithStubbedOCR(text string, pages int) ConfigOption {
	return func(b *configBuilder) {
		tesseract := "if [ \"$1\" = \"--list-langs\" ]; then\n" +
			"  echo 'List of available languages in \"/usr/share/tessdata/\" (2):'\n" +
			"  echo deu\n  echo eng\n  exit 0\nfi\n" +
			"cat <<'OCR'\n" + text + "\nOCR\n"
		pdftoppm := "for last; do :; done\n" +
			"i=1\nwhile [ $i -le " + strconv.Itoa(pages) + " ]; do\n" +
			"  printf 'png' > \"$last-$i.png\"\n  i=$((i+1))\ndone\n"
		WriteScript(b.t, filepath.Join(b.binDir(), "tesseract"), tesseract)
		WriteScript(b.t, filepath.Join(b.binDir(), "pdftoppm"), pdftoppm)
		b.cfg.Extraction.TesseractBinary = filepath.Join(b.binDir(), "tesseract")
		b.cfg.Extraction.PdftoppmBinary = filepath.Join(b.binDir(), "pdftoppm")
	}
}

func (b *configBuilder) binDir() string {
	dir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	return dir
}

func (b *configBuilder) prependPath() {
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", b.binDir()+string(os.PathListSeparator)+oldPath); err != nil {
		b.t.Fatalf("set PATH: %v", err)
	}
	b.t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
