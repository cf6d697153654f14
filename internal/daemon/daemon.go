package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"docsorter/internal/inbox"
	"docsorter/internal/logging"
	"docsorter/internal/pipeline"
	"docsorter/internal/services"
	"docsorter/internal/watcher"
)

// ErrAlreadyRunning reports that another instance holds the lock.
var ErrAlreadyRunning = errors.New("another docsorter instance is already running")

// Watcher produces inbox candidates.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
	Candidates() <-chan inbox.FileCandidate
	State() watcher.State
}

// Pipeline consumes candidates until the channel closes or ctx ends.
type Pipeline interface {
	Run(ctx context.Context, candidates <-chan inbox.FileCandidate) (pipeline.Stats, error)
}

// Daemon owns the single-instance lock and the watcher/pipeline lifecycle.
type Daemon struct {
	logger   *slog.Logger
	watcher  Watcher
	pipeline Pipeline

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	stats  pipeline.Stats
	runErr error
}

// New constructs a daemon. pidPath may be empty.
func New(lockPath, pidPath string, w Watcher, p Pipeline, logger *slog.Logger) (*Daemon, error) {
	if w == nil || p == nil {
		return nil, errors.New("daemon requires a watcher and a pipeline")
	}
	if lockPath == "" {
		return nil, errors.New("daemon requires a lock path")
	}
	return &Daemon{
		logger:   logging.NewComponentLogger(logger, "daemon"),
		watcher:  w,
		pipeline: p,
		lockPath: lockPath,
		pidPath:  pidPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock, starts the pipeline and then the watcher. A watch
// that cannot be established undoes everything and is returned.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}
	if err := d.writePID(); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		stats, err := d.pipeline.Run(runCtx, d.watcher.Candidates())
		d.mu.Lock()
		d.stats, d.runErr = stats, err
		d.mu.Unlock()
	}()

	if err := d.watcher.Start(runCtx); err != nil {
		cancel()
		<-d.done
		d.release()
		return err
	}

	d.running.Store(true)
	d.logger.Info("docsorter daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Done is closed when the pipeline has finished, either because the watcher
// closed its channel or because the daemon was stopped.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Stop cancels processing, waits for the pipeline to drain and releases the lock.
func (d *Daemon) Stop() pipeline.Stats {
	if !d.running.Swap(false) {
		return d.Stats()
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.watcher.Stop()
	<-d.done
	d.release()

	stats := d.Stats()
	d.logger.Info("docsorter daemon stopped",
		logging.Int("processed", stats.Processed),
		logging.Int("skipped", stats.Skipped),
		logging.Int("failed", stats.Failed),
		logging.Int("deferred", stats.Deferred),
	)
	return stats
}

// Stats returns the counters of the last pipeline run.
func (d *Daemon) Stats() pipeline.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Err returns the pipeline's terminal error, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Running reports whether the daemon is started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status summarizes the daemon for the CLI.
type Status struct {
	Running      bool
	WatcherState string
	LockFilePath string
	Stats        pipeline.Stats
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		WatcherState: d.watcher.State().String(),
		LockFilePath: d.lockPath,
		Stats:        d.Stats(),
	}
}

func (d *Daemon) release() {
	if d.pidPath != "" {
		if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
			d.logger.Debug("remove pid file failed", logging.Error(err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start reports a running instance"),
		)
	}
}

func (d *Daemon) writePID() error {
	if d.pidPath == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(d.pidPath, []byte(value), 0o644)
}

// IsStartupError reports whether err should abort the process before any file
// is processed.
func IsStartupError(err error) bool {
	return errors.Is(err, ErrAlreadyRunning) ||
		errors.Is(err, services.ErrConfiguration) ||
		errors.Is(err, services.ErrUnavailable)
}
