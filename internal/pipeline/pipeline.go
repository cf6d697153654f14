package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"docsorter/internal/inbox"
	"docsorter/internal/logging"
	"docsorter/internal/services"
	"docsorter/internal/services/llm"
)

// Config controls concurrency and shutdown.
type Config struct {
	Workers       int
	ShutdownGrace time.Duration
}

// Pipeline runs extract, classify and place for each candidate. Candidates
// run concurrently on a bounded pool; the organizer serializes placement.
type Pipeline struct {
	cfg        Config
	extractor  Extractor
	classifier Classifier
	organizer  Organizer
	logger     *slog.Logger
	observer   func(Outcome)

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	deferred  atomic.Int64
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithObserver registers a callback invoked once per finished candidate.
// It may be called from several goroutines at once.
func WithObserver(fn func(Outcome)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// New constructs a pipeline.
func New(cfg Config, extractor Extractor, classifier Classifier, organizer Organizer, logger *slog.Logger, opts ...Option) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		cfg:        cfg,
		extractor:  extractor,
		classifier: classifier,
		organizer:  organizer,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns a snapshot of the outcome counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed: int(p.processed.Load()),
		Skipped:   int(p.skipped.Load()),
		Failed:    int(p.failed.Load()),
		Deferred:  int(p.deferred.Load()),
	}
}

// Run consumes candidates until the channel closes or ctx is cancelled.
// After cancellation, queued candidates are left for the next catch-up scan
// and running ones get the shutdown grace period before their context is
// cancelled too.
func (p *Pipeline) Run(ctx context.Context, candidates <-chan inbox.FileCandidate) (Stats, error) {
	pool, err := ants.NewPool(p.cfg.Workers)
	if err != nil {
		return p.Stats(), services.Wrap(services.ErrConfiguration, "pipeline", "create pool", "", err)
	}
	defer pool.Release()

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	slots := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup

	p.logger.Info("pipeline started", logging.Int("workers", p.cfg.Workers))

intake:
	for {
		select {
		case <-ctx.Done():
			break intake
		case cand, ok := <-candidates:
			if !ok {
				break intake
			}
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				p.deferCandidate(cand)
				break intake
			}
			wg.Add(1)
			task := func() {
				defer func() {
					<-slots
					wg.Done()
				}()
				p.Process(workCtx, cand)
			}
			if err := pool.Submit(task); err != nil {
				wg.Done()
				<-slots
				p.deferCandidate(cand)
				p.logger.Error("submit to worker pool failed", logging.Error(err))
			}
		}
	}

	if ctx.Err() != nil {
		p.drainDeferred(candidates)
	}
	p.awaitInFlight(ctx, &wg, cancelWork)

	stats := p.Stats()
	p.logger.Info("pipeline stopped",
		logging.Int("processed", stats.Processed),
		logging.Int("skipped", stats.Skipped),
		logging.Int("failed", stats.Failed),
		logging.Int("deferred", stats.Deferred),
	)
	return stats, nil
}

// drainDeferred accounts for candidates already buffered at shutdown without
// waiting for more.
func (p *Pipeline) drainDeferred(candidates <-chan inbox.FileCandidate) {
	for {
		select {
		case cand, ok := <-candidates:
			if !ok {
				return
			}
			p.deferCandidate(cand)
		default:
			return
		}
	}
}

func (p *Pipeline) deferCandidate(cand inbox.FileCandidate) {
	p.deferred.Add(1)
	p.logger.Info("candidate deferred to next start",
		logging.String(logging.FieldFile, cand.Path),
		logging.String(logging.FieldCorrelationID, cand.CorrelationID),
	)
}

func (p *Pipeline) awaitInFlight(ctx context.Context, wg *sync.WaitGroup, cancelWork context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if ctx.Err() == nil {
		<-done
		return
	}
	grace := p.cfg.ShutdownGrace
	if grace <= 0 {
		cancelWork()
		<-done
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logging.WarnWithContext(p.logger, "shutdown grace expired; cancelling in-flight documents", "shutdown_grace_expired",
			logging.Duration("grace", grace),
			logging.String(logging.FieldErrorHint, "raise pipeline.shutdown_grace_seconds for slow models"),
			logging.String(logging.FieldImpact, "interrupted documents stay in the inbox"),
		)
		cancelWork()
		<-done
	}
}

// Process runs one candidate through every stage and reports the outcome.
func (p *Pipeline) Process(ctx context.Context, cand inbox.FileCandidate) Outcome {
	start := time.Now()
	ctx = services.WithFile(ctx, cand.Path)
	ctx = services.WithRequestID(ctx, cand.CorrelationID)
	out := Outcome{Candidate: cand}

	if _, _, reason := inbox.CheckFile(cand.Path); reason != inbox.SkipNone {
		out.Status = StatusSkipped
		out.Stage = "recheck"
		out.Reason = string(reason)
		return p.finish(ctx, out, start)
	}

	content, err := p.extractor.Extract(ctx, cand)
	if err != nil {
		out.Stage = "extract"
		out.Err = err
		out.Status = StatusFailed
		if errors.Is(err, services.ErrNotFound) {
			out.Status = StatusSkipped
			out.Reason = string(inbox.SkipMissing)
		}
		return p.finish(ctx, out, start)
	}
	out.Content = content

	meta, err := p.classifier.Classify(ctx, llm.Request{Text: content.Text, OriginalName: cand.Name()})
	if err != nil {
		out.Stage = "classify"
		out.Status = StatusFailed
		out.Err = err
		return p.finish(ctx, out, start)
	}
	out.Metadata = meta

	placement, err := p.organizer.Place(services.WithStage(ctx, "place"), cand.Path, meta.Category, meta.Filename)
	if err != nil {
		out.Stage = "place"
		out.Status = StatusFailed
		out.Err = err
		return p.finish(ctx, out, start)
	}
	out.Placement = placement
	out.Stage = "place"
	out.Status = StatusProcessed
	return p.finish(ctx, out, start)
}

func (p *Pipeline) finish(ctx context.Context, out Outcome, start time.Time) Outcome {
	out.Duration = time.Since(start)
	logger := logging.WithContext(ctx, p.logger)

	switch out.Status {
	case StatusProcessed:
		p.processed.Add(1)
		logger.Info("document sorted",
			logging.String(logging.FieldEventType, "document_sorted"),
			logging.String("category", out.Placement.Category),
			logging.String("target", out.Placement.Final),
			logging.String("source_stage", string(out.Content.Stage)),
			logging.Duration("duration", out.Duration),
		)
	case StatusSkipped:
		p.skipped.Add(1)
		logger.Info("document skipped",
			logging.String("stage", out.Stage),
			logging.String("reason", out.Reason),
		)
	default:
		p.failed.Add(1)
		kind := services.FailureKind(out.Err)
		logging.ErrorWithContext(logger, "document left in inbox", "document_failed",
			logging.String("failed_stage", out.Stage),
			logging.String("failure_kind", kind),
			logging.Error(out.Err),
			logging.String(logging.FieldErrorHint, failureHint(kind)),
			logging.Duration("duration", out.Duration),
		)
	}

	if p.observer != nil {
		p.observer(out)
	}
	return out
}

func failureHint(kind string) string {
	switch kind {
	case "unavailable":
		return "check that the classifier endpoint is running; the file is retried on next start"
	case "validation":
		return "the model returned unusable metadata; try another model or sort the file manually"
	case "configuration":
		return "check classifier model and api key"
	case "placement_ambiguous":
		return "too many files share this name; tidy the category folder"
	case "timeout":
		return "raise classifier.timeout_seconds or use a faster model"
	default:
		return "check logs for details; the file stays in the inbox"
	}
}
