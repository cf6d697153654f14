// Package inbox defines the file candidates that flow from the directory
// watcher into the ingestion pipeline, along with the rules that keep hidden,
// placeholder, and unsupported files out of it.
package inbox
