// Package watcher turns one inbox directory into a stream of file candidates.
//
// Start establishes an fsnotify watch before listing the directory, so no
// arrival is missed between the catch-up scan and live watching. Live events
// are read only after the scan has been queued; a create event for a file the
// scan already emitted is dropped. Each new file waits out a stabilization
// delay, restarted by further writes, before it is re-checked and queued.
// The candidate channel is bounded and emission blocks while it is full.
package watcher
