package daemonrun

import (
	"log/slog"

	"docsorter/internal/config"
	"docsorter/internal/extract"
	"docsorter/internal/extract/ocr"
	"docsorter/internal/organizer"
	"docsorter/internal/pipeline"
	"docsorter/internal/services/llm"
)

// Components bundles the collaborators built from one configuration.
type Components struct {
	OCR        *ocr.Engine
	Extractor  *extract.Extractor
	Classifier *llm.Client
	Organizer  *organizer.Organizer
	Pipeline   *pipeline.Pipeline
}

// NewOCREngine builds the pdftoppm/tesseract engine from config.
func NewOCREngine(cfg *config.Config, logger *slog.Logger) *ocr.Engine {
	return ocr.New(ocr.Config{
		Pdftoppm:    cfg.Extraction.PdftoppmBinary,
		Tesseract:   cfg.Extraction.TesseractBinary,
		Languages:   cfg.Extraction.OCRLanguages,
		TessdataDir: cfg.Extraction.TessdataDir,
		DPI:         cfg.Extraction.OCRDPI,
		MaxPages:    cfg.Extraction.MaxPages,
	}, logger)
}

// NewExtractor builds the native-then-OCR content extractor.
func NewExtractor(cfg *config.Config, logger *slog.Logger) *extract.Extractor {
	return extract.New(extract.Config{MinContentLength: cfg.Extraction.MinContentLength}, NewOCREngine(cfg, logger), logger)
}

// NewClassifier builds the classifier client with the configured retry budget.
func NewClassifier(cfg *config.Config, logger *slog.Logger) *llm.Client {
	return llm.NewClient(llm.Config{
		API:            cfg.Classifier.API,
		BaseURL:        cfg.Classifier.BaseURL,
		Model:          cfg.Classifier.Model,
		APIKey:         cfg.Classifier.APIKey,
		TimeoutSeconds: cfg.Classifier.TimeoutSeconds,
		PreviewLength:  cfg.Classifier.PreviewLength,
	},
		llm.WithRetryMaxAttempts(cfg.Classifier.RetryMaxAttempts),
		llm.WithLogger(logger),
	)
}

// Build wires extractor, classifier and organizer into a pipeline.
func Build(cfg *config.Config, logger *slog.Logger, opts ...pipeline.Option) Components {
	c := Components{
		OCR:        NewOCREngine(cfg, logger),
		Classifier: NewClassifier(cfg, logger),
		Organizer:  organizer.New(cfg.Paths.OutputRoot, logger),
	}
	c.Extractor = extract.New(extract.Config{MinContentLength: cfg.Extraction.MinContentLength}, c.OCR, logger)
	c.Pipeline = pipeline.New(pipeline.Config{
		Workers:       cfg.Pipeline.Workers,
		ShutdownGrace: cfg.ShutdownGrace(),
	}, c.Extractor, c.Classifier, c.Organizer, logger, opts...)
	return c
}
