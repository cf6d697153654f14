// Package preflight provides the start-up checks that gate processing.
//
// The daemon runs RunAll before the watcher starts; any failed required check
// (inbox or output root not usable, classifier unreachable) aborts start-up
// before a single file is touched. OCR tooling is optional: a missing binary
// only degrades extraction. The CLI "check" command renders the same results
// as a table.
package preflight
