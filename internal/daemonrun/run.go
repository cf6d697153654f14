package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docsorter/internal/config"
	"docsorter/internal/daemon"
	"docsorter/internal/deps"
	"docsorter/internal/logging"
	"docsorter/internal/notifications"
	"docsorter/internal/pipeline"
	"docsorter/internal/preflight"
	"docsorter/internal/services"
	"docsorter/internal/watcher"
)

const notifyTimeout = 15 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// CatchUpOnly processes the files already in the inbox and returns.
	CatchUpOnly bool
	// Observer receives every finished outcome.
	Observer func(pipeline.Outcome)
	// Logger replaces the logger built from config.
	Logger *slog.Logger
}

// Run validates the environment, starts the watcher and pipeline, and blocks
// until SIGINT/SIGTERM, cmdCtx cancellation, or (in catch-up mode) the end of
// the start-up scan. An error means the sorter never started.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) (pipeline.Stats, error) {
	if cfg == nil {
		return pipeline.Stats{}, fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = newLogger(cfg, opts)
		if err != nil {
			return pipeline.Stats{}, fmt.Errorf("init logger: %w", err)
		}
	}

	if err := cfg.ValidatePaths(); err != nil {
		return pipeline.Stats{}, startupFailure(logger, services.Wrap(services.ErrConfiguration, "startup", "validate paths", "invalid directory layout", err),
			"set paths.inbox_dir and paths.output_root to separate directories")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return pipeline.Stats{}, startupFailure(logger, services.Wrap(services.ErrConfiguration, "startup", "create directories", "cannot create sorter directories", err),
			"check permissions on the configured paths")
	}

	logDependencySnapshot(logger, cfg)

	results := preflight.RunAll(signalCtx, cfg, preflight.NewClassifierChecker(cfg.Classifier))
	logPreflight(logger, results)
	if err := preflight.Err(results); err != nil {
		return pipeline.Stats{}, startupFailure(logger, err, "run `docsorter check` for details")
	}

	notifier := notifications.NewService(cfg.Notifications)
	queue := newNotifyQueue(logger, notifyQueueSize, notifyTimeout)
	defer queue.close()
	started := time.Now()
	components := Build(cfg, logger, pipeline.WithObserver(outcomeObserver(queue, notifier, opts.Observer)))
	w := watcher.New(watcher.Config{
		Dir:                cfg.Paths.InboxDir,
		StabilizationDelay: cfg.StabilizationDelay(),
		QueueSize:          cfg.Pipeline.QueueSize,
		CatchUpOnly:        opts.CatchUpOnly,
	}, logger)

	d, err := daemon.New(cfg.LockPath(), cfg.PIDPath(), w, components.Pipeline, logger)
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return pipeline.Stats{}, startupFailure(logger, err, "check that the inbox exists and no other instance holds "+cfg.LockPath())
	}

	logger.Info("docsorter running",
		logging.String("inbox", cfg.Paths.InboxDir),
		logging.String("output_root", cfg.Paths.OutputRoot),
		logging.String("classifier_model", cfg.Classifier.Model),
		logging.Bool("catch_up_only", opts.CatchUpOnly),
	)

	select {
	case <-signalCtx.Done():
		logger.Info("docsorter shutting down", logging.String("reason", shutdownReason(signalCtx)))
	case <-d.Done():
	}

	stats := d.Stop()
	queue.close()
	logger.Info("docsorter run summary",
		logging.String(logging.FieldEventType, "run_summary"),
		logging.Int("processed", stats.Processed),
		logging.Int("skipped", stats.Skipped),
		logging.Int("failed", stats.Failed),
		logging.Int("deferred", stats.Deferred),
	)
	if stats.Total() > 0 {
		notify(logger, func(ctx context.Context) error {
			return notifier.NotifyRunSummary(ctx, notifications.Summary{
				Processed: stats.Processed,
				Skipped:   stats.Skipped,
				Failed:    stats.Failed,
				Deferred:  stats.Deferred,
				Duration:  time.Since(started),
			})
		})
	}
	if err := d.Err(); err != nil {
		return stats, fmt.Errorf("pipeline: %w", err)
	}
	return stats, nil
}

func outcomeObserver(queue *notifyQueue, notifier notifications.Service, next func(pipeline.Outcome)) func(pipeline.Outcome) {
	return func(o pipeline.Outcome) {
		switch {
		case !notifier.Enabled():
		case o.Status == pipeline.StatusFailed:
			queue.enqueue(func(ctx context.Context) error {
				return notifier.NotifyDocumentFailed(ctx, o.Candidate.Name(), o.Stage, o.Err)
			})
		case o.Status == pipeline.StatusProcessed:
			queue.enqueue(func(ctx context.Context) error {
				return notifier.NotifyDocumentSorted(ctx, o.Candidate.Name(), o.Placement.Final)
			})
		}
		if next != nil {
			next(o)
		}
	}
}

// notify runs one delivery detached from shutdown so a final summary still
// goes out after the signal context is done.
func notify(logger *slog.Logger, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	outputs := []string{"stdout"}
	if path := strings.TrimSpace(cfg.Paths.LogFile); path != "" {
		outputs = append(outputs, path)
	}
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
	})
}

func startupFailure(logger *slog.Logger, err error, hint string) error {
	logging.ErrorWithContext(logger, "docsorter start-up failed", "startup_failed",
		logging.Error(err),
		logging.String("error_kind", services.FailureKind(err)),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "no files were processed"),
	)
	return err
}

func shutdownReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause.Error()
	}
	return "signal"
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, r := range results {
		attrs := []logging.Attr{
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.Bool("optional", r.Optional),
		}
		switch {
		case r.Passed:
			logger.Debug("preflight check passed", logging.Args(attrs...)...)
		case r.Optional:
			logging.WarnWithContext(logger, "optional preflight check failed", "preflight_optional_failed",
				append(attrs, logging.String(logging.FieldImpact, "OCR fallback may be unavailable"))...)
		default:
			logger.Error("preflight check failed", logging.Args(attrs...)...)
		}
	}
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("classifier_api", cfg.Classifier.API),
		logging.String("classifier_endpoint", cfg.Classifier.BaseURL),
		logging.Bool("classifier_key_present", strings.TrimSpace(cfg.Classifier.APIKey) != ""),
		logging.String("ocr_languages", cfg.Extraction.OCRLanguages),
	}
	for _, status := range deps.CheckBinaries(deps.OCRRequirements(cfg.Extraction.PdftoppmBinary, cfg.Extraction.TesseractBinary)) {
		attrs = append(attrs,
			logging.Bool(status.Name+"_available", status.Available),
			logging.String(status.Name+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
