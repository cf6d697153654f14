// Package logging assembles structured slog loggers and formatting helpers used
// across the sorter.
//
// It owns the console and JSON handlers, centralizes level and output plumbing
// (stdout plus an optional log file), and exposes context-aware helpers so
// pipeline code can tag log lines with the inbox file, stage, and correlation
// ID. The package also provides a no-op logger for tests.
package logging
