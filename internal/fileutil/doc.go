// Package fileutil holds the file moves and verified copies used when placing
// documents into the output tree.
package fileutil
