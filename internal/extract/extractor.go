package extract

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"docsorter/internal/extract/ocr"
	"docsorter/internal/inbox"
	"docsorter/internal/logging"
	"docsorter/internal/services"
)

// Recognizer is the OCR side of extraction.
type Recognizer interface {
	RecognizeImage(ctx context.Context, path string) (string, error)
	RecognizePDF(ctx context.Context, path string) ([]ocr.Page, error)
}

// Config holds the extraction thresholds.
type Config struct {
	// MinContentLength is the trimmed native text length below which OCR runs.
	MinContentLength int
}

// Extractor turns inbox documents into plain text: embedded PDF text first,
// OCR when that yields too little.
type Extractor struct {
	cfg    Config
	native TextReader
	ocr    Recognizer
	logger *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithTextReader overrides native PDF text extraction.
func WithTextReader(r TextReader) Option {
	return func(e *Extractor) {
		if r != nil {
			e.native = r
		}
	}
}

// New constructs an extractor around an OCR recognizer.
func New(cfg Config, recognizer Recognizer, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		cfg:    cfg,
		native: PDFCPUReader{},
		ocr:    recognizer,
		logger: logging.NewComponentLogger(logger, "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract produces the document text. The only error is a missing file;
// engine failures degrade the result and are recorded as diagnostics.
func (e *Extractor) Extract(ctx context.Context, cand inbox.FileCandidate) (Content, error) {
	ctx = services.WithStage(ctx, "extract")
	logger := logging.WithContext(ctx, e.logger)

	if _, err := os.Stat(cand.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Content{}, services.Wrap(services.ErrNotFound, "extract", "stat", cand.Path, err)
		}
	}

	start := time.Now()
	var content Content
	var parts []string

	if cand.IsPDF() {
		content.Stage = StageNative
		if text := e.nativeText(ctx, cand.Path, &content); text != "" {
			parts = append(parts, text)
		}
	}

	nativeLen := utf8.RuneCountInString(strings.TrimSpace(strings.Join(parts, "")))
	if nativeLen < e.cfg.MinContentLength || !cand.IsPDF() {
		if cand.IsPDF() {
			logger.Debug("native text below threshold; running ocr",
				logging.Int("native_chars", nativeLen),
				logging.Int("min_content_length", e.cfg.MinContentLength),
			)
			content.Stage = StageBoth
		} else {
			content.Stage = StageOCR
		}
		if text := e.ocrText(ctx, cand, &content); text != "" {
			parts = append(parts, text)
		}
	}

	content.Text = strings.Join(parts, "\n")
	content.Chars = utf8.RuneCountInString(content.Text)
	if strings.TrimSpace(content.Text) == "" {
		content.Diagnostics = append(content.Diagnostics, Diagnostic{Stage: content.Stage, Code: CodeNoText})
	}

	attrs := []logging.Attr{
		logging.String("source_stage", string(content.Stage)),
		logging.Int("chars", content.Chars),
		logging.Duration("duration", time.Since(start)),
	}
	if codes := content.Codes(); codes != "" {
		attrs = append(attrs, logging.String("diagnostics", codes))
	}
	if content.Degraded() {
		logging.WarnWithContext(logger, "extraction degraded", "extraction_degraded", append(attrs,
			logging.String(logging.FieldErrorHint, "check the OCR binaries and the source document"),
			logging.String(logging.FieldImpact, "classification uses partial text"),
		)...)
	} else {
		logger.Info("text extracted", logging.Args(attrs...)...)
	}
	return content, nil
}

func (e *Extractor) nativeText(ctx context.Context, path string, content *Content) string {
	pages, err := e.native.ReadPages(ctx, path)
	if err != nil {
		content.Diagnostics = append(content.Diagnostics, Diagnostic{
			Stage: StageNative, Code: CodeNativeUnreadable, Detail: err.Error(),
		})
	}
	var b strings.Builder
	for _, page := range pages {
		if page.Err != nil {
			content.Diagnostics = append(content.Diagnostics, Diagnostic{
				Stage: StageNative, Code: CodeNativePageFailed, Page: page.Number, Detail: page.Err.Error(),
			})
			continue
		}
		b.WriteString(page.Text)
		b.WriteByte('\n')
	}
	text := b.String()
	if err == nil && strings.TrimSpace(text) == "" {
		content.Diagnostics = append(content.Diagnostics, Diagnostic{Stage: StageNative, Code: CodeNativeEmpty})
	}
	return text
}

func (e *Extractor) ocrText(ctx context.Context, cand inbox.FileCandidate, content *Content) string {
	if e.ocr == nil {
		content.Diagnostics = append(content.Diagnostics, Diagnostic{
			Stage: StageOCR, Code: CodeOCREngineUnavailable, Detail: "no recognizer configured",
		})
		return ""
	}

	if !cand.IsPDF() {
		text, err := e.ocr.RecognizeImage(ctx, cand.Path)
		if err != nil {
			content.Diagnostics = append(content.Diagnostics, ocrFailure(err, 1))
			return ""
		}
		return text
	}

	pages, err := e.ocr.RecognizePDF(ctx, cand.Path)
	if err != nil {
		content.Diagnostics = append(content.Diagnostics, ocrFailure(err, 0))
		return ""
	}
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		if page.Err != nil {
			content.Diagnostics = append(content.Diagnostics, Diagnostic{
				Stage: StageOCR, Code: CodeOCRPageFailed, Page: page.Number, Detail: page.Err.Error(),
			})
			continue
		}
		if strings.TrimSpace(page.Text) != "" {
			texts = append(texts, page.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func ocrFailure(err error, page int) Diagnostic {
	code := CodeOCRPageFailed
	switch {
	case errors.Is(err, ocr.ErrEngineUnavailable):
		code = CodeOCREngineUnavailable
	case errors.Is(err, ocr.ErrRender):
		code = CodeOCRRenderFailed
	}
	return Diagnostic{Stage: StageOCR, Code: code, Page: page, Detail: err.Error()}
}
