// Package notifications posts sorter events to an ntfy topic.
//
// Failed documents and run summaries are always sent when a topic is
// configured; successful placements only with notify_sorted. Without a topic
// the service is a no-op.
package notifications
