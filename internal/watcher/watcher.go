package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"docsorter/internal/inbox"
	"docsorter/internal/logging"
	"docsorter/internal/services"
)

const eventBuffer = 256

// Config controls one inbox watcher.
type Config struct {
	Dir                string
	StabilizationDelay time.Duration
	// QueueSize bounds the candidate channel; emission blocks when it is full.
	QueueSize int
	// CatchUpOnly stops after the start-up scan without live watching.
	CatchUpOnly bool
}

// Watcher emits inbox files: first everything already present, then files
// announced by filesystem events once they have been quiet for the
// stabilization delay.
type Watcher struct {
	cfg    Config
	logger *slog.Logger
	out    chan inbox.FileCandidate
	state  atomic.Int32

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*pendingFile
	scanned  map[string]os.FileInfo
	stopping bool
	started  bool

	timers   sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

type pendingFile struct {
	timer *time.Timer
	gen   uint64
}

// New constructs a watcher for cfg.Dir.
func New(cfg Config, logger *slog.Logger) *Watcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.StabilizationDelay < 0 {
		cfg.StabilizationDelay = 0
	}
	if abs, err := filepath.Abs(cfg.Dir); err == nil {
		cfg.Dir = abs
	}
	return &Watcher{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		out:     make(chan inbox.FileCandidate, cfg.QueueSize),
		pending: make(map[string]*pendingFile),
		scanned: make(map[string]os.FileInfo),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Candidates is closed once the watcher has stopped.
func (w *Watcher) Candidates() <-chan inbox.FileCandidate {
	return w.out
}

// State reports the current lifecycle state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

func (w *Watcher) setState(s State) {
	w.state.Store(int32(s))
	w.logger.Debug("watcher state changed", logging.String("state", s.String()))
}

// Start establishes the filesystem watch and begins the catch-up scan. A watch
// that cannot be established is returned as an error; everything after that
// is reported through logs.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("watcher already started")
	}

	if !w.cfg.CatchUpOnly {
		fsw, err := fsnotify.NewBufferedWatcher(eventBuffer)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "watcher", "create watch", "", err)
		}
		if err := fsw.Add(w.cfg.Dir); err != nil {
			_ = fsw.Close()
			return services.Wrap(services.ErrConfiguration, "watcher", "watch", w.cfg.Dir, err)
		}
		w.fsw = fsw
	}
	w.started = true
	w.setState(StateScanningCatchUp)

	go w.run(ctx)
	return nil
}

// Stop ends watching and waits until the candidate channel is closed.
func (w *Watcher) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

// Wait blocks until the watcher has stopped.
func (w *Watcher) Wait() {
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer w.finish(ctx)
	if !w.catchUp(ctx) {
		return
	}
	if w.cfg.CatchUpOnly {
		return
	}
	w.setState(StateLiveWatching)
	w.logger.Info("watching inbox for new files",
		logging.String("dir", w.cfg.Dir),
		logging.Duration("stabilization_delay", w.cfg.StabilizationDelay),
	)
	w.loop(ctx)
}

// catchUp emits every eligible file already in the inbox, sorted by name.
// It returns false when stopped mid-scan.
func (w *Watcher) catchUp(ctx context.Context) bool {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		logging.WarnWithContext(w.logger, "catch-up scan failed", "catch_up_scan_failed",
			logging.String("dir", w.cfg.Dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the inbox exists and is readable"),
			logging.String(logging.FieldImpact, "files already in the inbox are not processed until restart"),
		)
		return true
	}

	emitted, skipped := 0, 0
	for i, entry := range entries {
		path := filepath.Join(w.cfg.Dir, entry.Name())
		_, info, reason := inbox.CheckFile(path)
		if reason != inbox.SkipNone {
			skipped++
			w.logger.Debug("catch-up skip", logging.String(logging.FieldFile, path), logging.String("reason", string(reason)))
			continue
		}
		cand, err := inbox.NewCandidate(path, inbox.SourceCatchUp)
		if err != nil {
			skipped++
			continue
		}
		w.mu.Lock()
		w.scanned[cand.Path] = info
		w.mu.Unlock()
		if !w.emit(ctx, cand) {
			w.logger.Info("catch-up scan interrupted",
				logging.Int("emitted", emitted),
				logging.Int("remaining", len(entries)-i),
			)
			return false
		}
		emitted++
	}
	w.logger.Info("catch-up scan complete",
		logging.String("dir", w.cfg.Dir),
		logging.Int("queued", emitted),
		logging.Int("skipped", skipped),
	)
	return true
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "filesystem watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "events may have been lost; restart to rescan the inbox"),
				logging.String(logging.FieldImpact, "some new files may not be noticed"),
			)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if filepath.Dir(path) != filepath.Clean(w.cfg.Dir) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// The name left the inbox; whatever shows up under it next is new.
		w.mu.Lock()
		delete(w.scanned, path)
		w.mu.Unlock()
		return
	case ev.Has(fsnotify.Create):
	case ev.Has(fsnotify.Write):
		// Writes only extend a stabilization wait that is already running.
		w.mu.Lock()
		_, waiting := w.pending[path]
		w.mu.Unlock()
		if !waiting {
			return
		}
	default:
		return
	}

	if _, reason := inbox.Eligible(path); reason != inbox.SkipNone {
		w.logger.Debug("ignoring event", logging.String(logging.FieldFile, path), logging.String("reason", string(reason)))
		return
	}
	info, statErr := os.Lstat(path)
	if statErr == nil && info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopping {
		return
	}
	if seen, ok := w.scanned[path]; ok && ev.Has(fsnotify.Create) {
		delete(w.scanned, path)
		if statErr != nil || os.SameFile(seen, info) {
			w.logger.Debug("event for file already queued by catch-up scan", logging.String(logging.FieldFile, path))
			return
		}
	}
	w.armLocked(ctx, path)
}

// armLocked starts or restarts the stabilization timer for path.
func (w *Watcher) armLocked(ctx context.Context, path string) {
	p, ok := w.pending[path]
	if !ok {
		p = &pendingFile{}
		w.pending[path] = p
	} else if p.timer.Stop() {
		w.timers.Done()
	}
	p.gen++
	gen := p.gen
	w.timers.Add(1)
	p.timer = time.AfterFunc(w.cfg.StabilizationDelay, func() {
		defer w.timers.Done()
		w.release(ctx, path, gen)
	})
}

func (w *Watcher) release(ctx context.Context, path string, gen uint64) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok || p.gen != gen || w.stopping {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	cand, err := inbox.NewCandidate(path, inbox.SourceLiveEvent)
	if err != nil {
		w.logger.Debug("file not eligible after stabilization",
			logging.String(logging.FieldFile, path),
			logging.Error(err),
		)
		return
	}
	if !w.emit(ctx, cand) {
		logging.WarnWithContext(w.logger, "stabilized file not queued", "candidate_abandoned",
			logging.String(logging.FieldFile, path),
			logging.String(logging.FieldErrorHint, "the file stays in the inbox and is picked up by the next catch-up scan"),
			logging.String(logging.FieldImpact, "file not processed in this run"),
		)
	}
}

// emit blocks until the candidate is queued or the watcher stops. Nothing is
// queued once stopping has begun.
func (w *Watcher) emit(ctx context.Context, cand inbox.FileCandidate) bool {
	if w.halted(ctx) {
		return false
	}
	select {
	case w.out <- cand:
		w.logger.Debug("candidate queued",
			logging.String(logging.FieldFile, cand.Path),
			logging.String("source", string(cand.Source)),
			logging.String(logging.FieldCorrelationID, cand.CorrelationID),
		)
		return true
	case <-w.quit:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *Watcher) halted(ctx context.Context) bool {
	select {
	case <-w.quit:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (w *Watcher) finish(ctx context.Context) {
	w.setState(StateDraining)

	w.mu.Lock()
	w.stopping = true
	for path, p := range w.pending {
		if p.timer.Stop() {
			w.timers.Done()
		}
		logging.WarnWithContext(w.logger, "abandoning file awaiting stabilization", "stabilization_abandoned",
			logging.String(logging.FieldFile, path),
			logging.String(logging.FieldErrorHint, "the file stays in the inbox and is picked up by the next catch-up scan"),
			logging.String(logging.FieldImpact, "file not processed in this run"),
		)
		delete(w.pending, path)
	}
	fsw := w.fsw
	w.mu.Unlock()

	w.timers.Wait()
	if fsw != nil {
		if err := fsw.Close(); err != nil {
			w.logger.Debug("close watch failed", logging.Error(err))
		}
	}
	close(w.out)
	if ctx.Err() != nil {
		// The consumer stops reading on cancellation; report whatever it left behind.
		for cand := range w.out {
			logging.WarnWithContext(w.logger, "queued file not taken before shutdown", "candidate_abandoned",
				logging.String(logging.FieldFile, cand.Path),
				logging.String(logging.FieldCorrelationID, cand.CorrelationID),
				logging.String(logging.FieldErrorHint, "the file stays in the inbox and is picked up by the next catch-up scan"),
				logging.String(logging.FieldImpact, "file not processed in this run"),
			)
		}
	}
	w.setState(StateStopped)
	w.logger.Info("watcher stopped")
	close(w.done)
}
