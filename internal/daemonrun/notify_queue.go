package daemonrun

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docsorter/internal/logging"
)

const notifyQueueSize = 32

// notifyQueue delivers per-document notifications on one background
// goroutine so pipeline workers never wait on the ntfy server.
type notifyQueue struct {
	logger    *slog.Logger
	jobs      chan func(context.Context) error
	done      chan struct{}
	closeOnce sync.Once
	wait      time.Duration
}

func newNotifyQueue(logger *slog.Logger, size int, wait time.Duration) *notifyQueue {
	if size <= 0 {
		size = 1
	}
	q := &notifyQueue{
		logger: logger,
		jobs:   make(chan func(context.Context) error, size),
		done:   make(chan struct{}),
		wait:   wait,
	}
	go q.run()
	return q
}

func (q *notifyQueue) run() {
	defer close(q.done)
	for send := range q.jobs {
		notify(q.logger, send)
	}
}

// enqueue never blocks; a full queue drops the notification.
func (q *notifyQueue) enqueue(send func(context.Context) error) {
	select {
	case q.jobs <- send:
	default:
		logging.WarnWithContext(q.logger, "notification dropped", "notification_dropped",
			logging.Int("queue_size", cap(q.jobs)),
			logging.String(logging.FieldErrorHint, "the ntfy server is slow or unreachable"),
			logging.String(logging.FieldImpact, "document processing is unaffected"),
		)
	}
}

// close stops intake and waits up to q.wait for queued deliveries. It must
// not be called while producers may still enqueue.
func (q *notifyQueue) close() {
	q.closeOnce.Do(func() { close(q.jobs) })
	timer := time.NewTimer(q.wait)
	defer timer.Stop()
	select {
	case <-q.done:
	case <-timer.C:
		logging.WarnWithContext(q.logger, "pending notifications not delivered before exit", "notification_flush_timeout",
			logging.Duration("waited", q.wait),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
