// Package daemon coordinates the long-running docsorter process.
//
// It holds a flock-based lock so only one instance sorts a given state
// directory, starts the pipeline before the watcher so catch-up candidates
// have a consumer, and on Stop cancels intake, waits for in-flight documents
// and releases the lock. Process wiring (logging, preflight, signals) lives in
// daemonrun.
package daemon
