package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"docsorter/internal/logging"
)

var (
	// ErrEngineUnavailable reports a missing OCR or rendering binary.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
	// ErrRender reports that a PDF could not be rasterized.
	ErrRender = errors.New("pdf render failed")
)

// Config selects the external binaries and recognition settings.
type Config struct {
	Pdftoppm    string
	Tesseract   string
	Languages   string
	TessdataDir string
	DPI         int
	MaxPages    int
}

// Page is the recognition result for one rendered page.
type Page struct {
	Number int
	Text   string
	Err    error
}

// Engine renders PDFs with pdftoppm and recognizes bitmaps with tesseract.
type Engine struct {
	cfg      Config
	runner   Runner
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRunner overrides command execution.
func WithRunner(r Runner) Option {
	return func(e *Engine) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithLookPath overrides binary discovery.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.lookPath = fn
		}
	}
}

// New constructs an OCR engine.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	logger = logging.NewComponentLogger(logger, "ocr")
	e := &Engine{
		cfg:      cfg,
		runner:   ExecRunner{Logger: logger},
		lookPath: exec.LookPath,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Languages returns the tesseract language set, e.g. "deu+eng".
func (e *Engine) Languages() string {
	return e.cfg.Languages
}

// Available reports whether the binaries needed for this kind of input exist.
func (e *Engine) Available(pdf bool) error {
	binaries := []string{e.cfg.Tesseract}
	if pdf {
		binaries = append(binaries, e.cfg.Pdftoppm)
	}
	for _, bin := range binaries {
		if _, err := e.lookPath(bin); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, bin, err)
		}
	}
	return nil
}

// RecognizeImage runs tesseract on a single bitmap.
func (e *Engine) RecognizeImage(ctx context.Context, path string) (string, error) {
	if err := e.Available(false); err != nil {
		return "", err
	}
	return e.tesseract(ctx, path)
}

// RecognizePDF renders every page (up to MaxPages) and recognizes each in
// page order. A page that fails recognition carries its error; a render
// failure fails the whole call with ErrRender.
func (e *Engine) RecognizePDF(ctx context.Context, path string) ([]Page, error) {
	if err := e.Available(true); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "docsorter-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove render dir", logging.String("dir", tmpDir), logging.Error(err))
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, path, prefix)
	if _, stderr, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrRender, err, strings.TrimSpace(truncate(string(stderr), 512)))
	}

	images, err := renderedPages(prefix)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no images", ErrRender)
	}

	pages := make([]Page, 0, len(images))
	for i, img := range images {
		text, err := e.tesseract(ctx, img)
		pages = append(pages, Page{Number: i + 1, Text: text, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return pages, nil
}

func (e *Engine) tesseract(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Languages}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, stderr, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w: %s", filepath.Base(path), err, strings.TrimSpace(truncate(string(stderr), 512)))
	}
	return normalize(string(out)), nil
}

// renderedPages returns prefix-N.png files ordered by page number.
func renderedPages(prefix string) ([]string, error) {
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	number := func(path string) int {
		base := strings.TrimSuffix(filepath.Base(path), ".png")
		idx := strings.LastIndexByte(base, '-')
		n, err := strconv.Atoi(base[idx+1:])
		if err != nil {
			return 0
		}
		return n
	}
	sort.Slice(matches, func(i, j int) bool {
		return number(matches[i]) < number(matches[j])
	})
	return matches, nil
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
